package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	Verbose      bool
	Quiet        bool
	OutputFormat string
	ConfigFile   string
	DatabasePath string
}

var globalFlags = &GlobalFlags{}

// RegisterGlobalFlags registers persistent flags on the root command.
func RegisterGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().StringVarP(&globalFlags.OutputFormat, "output", "o", "text", "Output format (text|json)")
	cmd.PersistentFlags().StringVar(&globalFlags.ConfigFile, "config", "", "Path to config file (default: ~/.lineage/config.yaml)")
	cmd.PersistentFlags().StringVar(&globalFlags.DatabasePath, "database", "", "Path to the lineage database (overrides config)")
}

// ValidateGlobalFlags checks flag combinations before any command runs.
func ValidateGlobalFlags(cmd *cobra.Command) error {
	if globalFlags.OutputFormat != "text" && globalFlags.OutputFormat != "json" {
		return fmt.Errorf("invalid output format %q (want text or json)", globalFlags.OutputFormat)
	}
	if globalFlags.Verbose && globalFlags.Quiet {
		return fmt.Errorf("--verbose and --quiet cannot be used together")
	}
	return nil
}

// parseKeyValue splits a "key=value" argument.
func parseKeyValue(arg string) (string, string, error) {
	key, value, found := strings.Cut(arg, "=")
	if !found || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", arg)
	}
	return key, value, nil
}

// parseKeyValues turns repeated "key=value" flags into a map, rejecting
// duplicate keys.
func parseKeyValues(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, err := parseKeyValue(arg)
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate key %q", key)
		}
		out[key] = value
	}
	return out, nil
}
