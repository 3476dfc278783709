package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValue(t *testing.T) {
	key, value, err := parseKeyValue("threshold=0.5")
	require.NoError(t, err)
	assert.Equal(t, "threshold", key)
	assert.Equal(t, "0.5", value)

	// Values may themselves contain "=".
	key, value, err = parseKeyValue("flags=--mode=fast")
	require.NoError(t, err)
	assert.Equal(t, "flags", key)
	assert.Equal(t, "--mode=fast", value)

	_, _, err = parseKeyValue("no-equals")
	assert.Error(t, err)

	_, _, err = parseKeyValue("=value")
	assert.Error(t, err)
}

func TestParseKeyValuesRejectsDuplicates(t *testing.T) {
	out, err := parseKeyValues([]string{"a=1", "b=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, out)

	_, err = parseKeyValues([]string{"a=1", "a=2"})
	assert.ErrorContains(t, err, "duplicate key")
}

func TestParseParameterSpec(t *testing.T) {
	base, err := parseParameterSpec("input-data=data.csv")
	require.NoError(t, err)
	assert.Equal(t, "input-data", base.Name)
	assert.Equal(t, "data.csv", base.DefaultValue)
	assert.Empty(t, base.Prefix)

	base, err = parseParameterSpec("output=result.txt:-o ")
	require.NoError(t, err)
	assert.Equal(t, "result.txt", base.DefaultValue)
	assert.Equal(t, "-o ", base.Prefix)

	base, err = parseParameterSpec("bare")
	require.NoError(t, err)
	assert.Equal(t, "bare", base.Name)
	assert.Nil(t, base.DefaultValue)

	_, err = parseParameterSpec("=oops")
	assert.Error(t, err)
}

func TestCollectIterations(t *testing.T) {
	iterations, err := collectIterations("", []string{
		"threshold=0.1,0.5,0.9",
		"input@run=a.csv,b.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"0.1", "0.5", "0.9"}, iterations["threshold"])
	assert.Equal(t, []any{"a.csv", "b.csv"}, iterations["input@run"])

	_, err = collectIterations("", []string{"no-equals"})
	assert.Error(t, err)

	_, err = collectIterations("", nil)
	assert.ErrorContains(t, err, "nothing to iterate")
}
