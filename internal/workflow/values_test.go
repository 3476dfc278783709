package workflow

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValuesNested(t *testing.T) {
	doc := []byte(`
input-data: override.csv
step2:
  param1: B
  threshold: 7
`)
	values, err := ParseValues(doc)
	require.NoError(t, err)

	assert.Equal(t, "override.csv", values["input-data"])
	nested, ok := asStringMap(values["step2"])
	require.True(t, ok)
	assert.Equal(t, "B", nested["param1"])
	assert.Equal(t, 7, nested["threshold"])
}

func TestParseValuesInvalid(t *testing.T) {
	_, err := ParseValues([]byte("not: [valid"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse values document")
}

func TestExportValuesPlan(t *testing.T) {
	plan := buildTestPlan(t, "exported")

	resolved, _, err := ApplyValues(plan, map[string]any{"threshold": 9})
	require.NoError(t, err)

	values := ExportValues(resolved)
	assert.Equal(t, map[string]any{
		"input-data": "data.csv",
		"result":     "result.txt",
		"threshold":  9,
	}, values)
}

func TestExportValuesRoundTrip(t *testing.T) {
	composite := buildTestComposite(t)
	_, err := composite.AddMapping("shared-input", "mapped.csv", "", []ParamRef{
		{Steps: []string{"step2"}, Param: "input1"},
	})
	require.NoError(t, err)

	resolved, _, err := ApplyValues(composite, map[string]any{
		"shared-input": "first.csv",
		"step2":        map[string]any{"param1": "B"},
	})
	require.NoError(t, err)

	exported := ExportValues(resolved)

	// Re-applying the exported document to the original must reproduce the
	// same resolved values, mappings and all.
	again, report, err := ApplyValues(composite, exported)
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	assert.Equal(t, exported, ExportValues(again))
	assert.Equal(t, "first.csv", paramActual(t, again, "step2", "input1"))
	assert.Equal(t, "B", paramActual(t, again, "step2", "param1"))
}

func TestWriteValuesYAML(t *testing.T) {
	plan := buildTestPlan(t, "written")

	resolved, _, err := ApplyValues(plan, map[string]any{"threshold": 3})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteValues(resolved, &buf))

	parsed, err := ParseValues(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "data.csv", parsed["input-data"])
	assert.Equal(t, 3, parsed["threshold"])
}
