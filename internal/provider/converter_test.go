package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

func TestConvertPlanToYAML(t *testing.T) {
	plan := resolvedPlan(t, "process", "result.txt")

	out, err := NewConverterRegistry().Convert(plan, "/project", "yaml")
	require.NoError(t, err)

	var doc exportStep
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "process", doc.Name)
	assert.Equal(t, "python process.py", doc.Command)
	require.Len(t, doc.Inputs, 1)
	assert.Equal(t, "/project/data.csv", doc.Inputs[0].Value)
	require.Len(t, doc.Outputs, 1)
	assert.Equal(t, "/project/result.txt", doc.Outputs[0].Value)
}

func TestConvertCompositeToYAML(t *testing.T) {
	producer := resolvedPlan(t, "generate", "data.csv")
	consumer := resolvedPlan(t, "process", "result.txt")

	composite, err := workflow.NewCompositePlan("pipeline", producer, consumer)
	require.NoError(t, err)
	_, err = composite.AddLink(
		workflow.ParamRef{Steps: []string{"generate"}, Param: "output1"},
		[]workflow.ParamRef{{Steps: []string{"process"}, Param: "input1"}},
	)
	require.NoError(t, err)

	out, err := NewConverterRegistry().Convert(composite, "", "yaml")
	require.NoError(t, err)

	var doc exportStep
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "pipeline", doc.Name)
	require.Len(t, doc.Steps, 2)
	assert.Equal(t, "generate", doc.Steps[0].Name)
	require.Len(t, doc.Links, 1)
	assert.Equal(t, "generate.output1 -> process.input1", doc.Links[0])
}

func TestConvertUnknownFormat(t *testing.T) {
	plan := resolvedPlan(t, "process", "result.txt")

	_, err := NewConverterRegistry().Convert(plan, "", "cwl")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.PROVIDER_NOT_FOUND, ""))
}
