package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveReferenceAbsolute(t *testing.T) {
	composite := buildTestComposite(t)

	ref, err := ResolveReference(composite, "step2.input1")
	require.NoError(t, err)
	assert.Equal(t, []string{"step2"}, ref.Steps)
	assert.Equal(t, "input1", ref.Param)

	binding, err := composite.ResolveRef(ref)
	require.NoError(t, err)
	assert.Equal(t, "step2", binding.Owner.StepName())
	assert.IsType(t, &CommandInput{}, binding.Target)
}

func TestResolveReferenceByID(t *testing.T) {
	composite := buildTestComposite(t)
	step2 := composite.Plans[1].(*Plan)

	ref, err := ResolveReference(composite, step2.ID+"."+step2.Inputs[0].ID)
	require.NoError(t, err)

	// References canonicalize to names.
	assert.Equal(t, []string{"step2"}, ref.Steps)
	assert.Equal(t, "input1", ref.Param)
}

func TestResolveReferencePositional(t *testing.T) {
	composite := buildTestComposite(t)

	tests := []struct {
		expr      string
		wantSteps []string
		wantParam string
	}{
		{"@step1.@output1", []string{"step1"}, "output1"},
		{"@step2.@input1", []string{"step2"}, "input1"},
		{"@step2.@param1", []string{"step2"}, "param1"},
		{"step2.@output1", []string{"step2"}, "output1"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ref, err := ResolveReference(composite, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSteps, ref.Steps)
			assert.Equal(t, tt.wantParam, ref.Param)
		})
	}
}

func TestResolveReferenceMappingPositional(t *testing.T) {
	composite := buildTestComposite(t)
	_, err := composite.AddMapping("exposed", nil, "", []ParamRef{
		{Steps: []string{"step2"}, Param: "param1"},
	})
	require.NoError(t, err)

	ref, err := ResolveReference(composite, "@mapping1")
	require.NoError(t, err)
	assert.Empty(t, ref.Steps)
	assert.Equal(t, "exposed", ref.Param)
}

func TestResolveReferenceNested(t *testing.T) {
	inner := buildTestComposite(t)
	outer, err := NewCompositePlan("outer", inner)
	require.NoError(t, err)

	ref, err := ResolveReference(outer, "pipeline.step2.input1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pipeline", "step2"}, ref.Steps)
	assert.Equal(t, "input1", ref.Param)

	ref, err = ResolveReference(outer, "@step1.@step2.@input1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pipeline", "step2"}, ref.Steps)
	assert.Equal(t, "input1", ref.Param)
}

func TestResolveReferenceErrors(t *testing.T) {
	composite := buildTestComposite(t)

	tests := []struct {
		name string
		expr string
		code WorkflowErrorCode
	}{
		{"unknown step", "nope.input1", WorkflowErrorReferenceNotFound},
		{"unknown parameter", "step2.nope", WorkflowErrorReferenceNotFound},
		{"step index out of range", "@step7.@input1", WorkflowErrorReferenceNotFound},
		{"input index out of range", "@step2.@input9", WorkflowErrorReferenceNotFound},
		{"bare name without mapping", "nope", WorkflowErrorReferenceNotFound},
		{"empty expression", "", WorkflowErrorInvalidReference},
		{"plain plan cannot nest", "step2.inner.param", WorkflowErrorInvalidReference},
		{"input token cannot select step", "@input1.@param1", WorkflowErrorInvalidReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveReference(composite, tt.expr)
			require.Error(t, err)

			var werr *WorkflowError
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, tt.code, werr.Code)
		})
	}
}

func TestParseMappingTargets(t *testing.T) {
	composite := buildTestComposite(t)

	refs, err := ParseMappingTargets(composite, "step1.output1,step2.input1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "step1.output1", refs[0].String())
	assert.Equal(t, "step2.input1", refs[1].String())
}

func TestParseMappingExpression(t *testing.T) {
	composite := buildTestComposite(t)

	name, refs, err := ParseMappingExpression(composite, "data=step1.output1,step2.input1")
	require.NoError(t, err)
	assert.Equal(t, "data", name)
	assert.Len(t, refs, 2)

	_, _, err = ParseMappingExpression(composite, "no-equals-sign")
	require.Error(t, err)
}

func TestParseLinkExpression(t *testing.T) {
	composite := buildTestComposite(t)

	source, sinks, err := ParseLinkExpression(composite, "step1.output1=step2.input1")
	require.NoError(t, err)
	assert.Equal(t, "step1.output1", source.String())
	require.Len(t, sinks, 1)
	assert.Equal(t, "step2.input1", sinks[0].String())

	_, _, err = ParseLinkExpression(composite, "step1.output1=")
	require.Error(t, err)
}
