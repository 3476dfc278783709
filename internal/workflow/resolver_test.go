package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPrecedenceComposite wires every override layer around step2.param1:
// the parameter's own default is "A", a mapping with default "B" targets it,
// and a link from step1.output1 (default "E") can be added on top.
func buildPrecedenceComposite(t *testing.T, withLink bool) *CompositePlan {
	t.Helper()

	step1, err := NewPlan("step1", "generate").
		AddOutput(&CommandOutput{ParameterBase: ParameterBase{
			Name:         "output1",
			DefaultValue: "E",
		}}).
		Build()
	require.NoError(t, err)

	step2, err := NewPlan("step2", "process").
		AddParameter(&CommandParameter{ParameterBase: ParameterBase{
			Name:         "param1",
			DefaultValue: "A",
		}}).
		Build()
	require.NoError(t, err)

	composite, err := NewCompositePlan("precedence", step1, step2)
	require.NoError(t, err)

	_, err = composite.AddMapping("mapped", "B", "", []ParamRef{
		{Steps: []string{"step2"}, Param: "param1"},
	})
	require.NoError(t, err)

	if withLink {
		_, err = composite.AddLink(
			ParamRef{Steps: []string{"step1"}, Param: "output1"},
			[]ParamRef{{Steps: []string{"step2"}, Param: "param1"}},
		)
		require.NoError(t, err)
	}
	return composite
}

func paramActual(t *testing.T, step Step, stepName, paramName string) any {
	t.Helper()
	composite, ok := step.(*CompositePlan)
	require.True(t, ok)
	plan, ok := composite.FindStep(stepName).(*Plan)
	require.True(t, ok)
	target := plan.FindTarget(paramName)
	require.NotNil(t, target)
	return target.Actual()
}

func TestValuePrecedenceAllLayers(t *testing.T) {
	composite := buildPrecedenceComposite(t, true)

	resolved, report, err := ApplyValues(composite, map[string]any{
		"mapped": "C",
		"param1": "D",
	})
	require.NoError(t, err)
	assert.Empty(t, report.Missing)

	// The link wins over every other layer.
	assert.Equal(t, "E", paramActual(t, resolved, "step2", "param1"))
}

func TestValuePrecedenceWithoutLink(t *testing.T) {
	composite := buildPrecedenceComposite(t, false)

	resolved, report, err := ApplyValues(composite, map[string]any{
		"mapped": "C",
		"param1": "D",
	})
	require.NoError(t, err)
	assert.Empty(t, report.Missing)

	// Direct parameter override beats the mapping override.
	assert.Equal(t, "D", paramActual(t, resolved, "step2", "param1"))
}

func TestValuePrecedenceLayerByLayer(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		composite := buildPrecedenceComposite(t, false)
		composite.Mappings[0].DefaultValue = nil

		resolved, _, err := ApplyValues(composite, nil)
		require.NoError(t, err)
		assert.Equal(t, "A", paramActual(t, resolved, "step2", "param1"))
	})

	t.Run("mapping default beats parameter default", func(t *testing.T) {
		composite := buildPrecedenceComposite(t, false)

		resolved, _, err := ApplyValues(composite, nil)
		require.NoError(t, err)
		assert.Equal(t, "B", paramActual(t, resolved, "step2", "param1"))
	})

	t.Run("mapping override beats mapping default", func(t *testing.T) {
		composite := buildPrecedenceComposite(t, false)

		resolved, _, err := ApplyValues(composite, map[string]any{"mapped": "C"})
		require.NoError(t, err)
		assert.Equal(t, "C", paramActual(t, resolved, "step2", "param1"))
	})
}

func TestApplyValuesDoesNotMutateOriginal(t *testing.T) {
	composite := buildPrecedenceComposite(t, false)

	_, _, err := ApplyValues(composite, map[string]any{"param1": "D"})
	require.NoError(t, err)

	original := composite.FindStep("step2").(*Plan)
	assert.Nil(t, original.Parameters[0].ActualValue)
	assert.Equal(t, "A", original.Parameters[0].Actual())
}

func TestApplyValuesNestedByStepName(t *testing.T) {
	composite := buildTestComposite(t)

	resolved, report, err := ApplyValues(composite, map[string]any{
		"step2": map[string]any{
			"param1": "Z",
			"input1": "nested.csv",
		},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	assert.Equal(t, "Z", paramActual(t, resolved, "step2", "param1"))
	assert.Equal(t, "nested.csv", paramActual(t, resolved, "step2", "input1"))
}

func TestApplyValuesAmbiguousFlatKeyAppliesToAll(t *testing.T) {
	// Both step1 and step2 declare a parameter named output1.
	composite := buildTestComposite(t)

	resolved, report, err := ApplyValues(composite, map[string]any{"output1": "shared.out"})
	require.NoError(t, err)
	assert.Empty(t, report.Missing)
	assert.Equal(t, "shared.out", paramActual(t, resolved, "step1", "output1"))
	assert.Equal(t, "shared.out", paramActual(t, resolved, "step2", "output1"))
}

func TestApplyValuesReportsMissingKeys(t *testing.T) {
	composite := buildTestComposite(t)

	resolved, report, err := ApplyValues(composite, map[string]any{
		"nonexistent": "x",
		"step2":       map[string]any{"also-missing": 1},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"nonexistent", "step2.also-missing"}, report.Missing)

	// The rest of the resolution still happened; plan is usable.
	assert.Equal(t, "A", paramActual(t, resolved, "step2", "param1"))
}

func TestApplyValuesOnPlainPlan(t *testing.T) {
	plan := buildTestPlan(t, "solo")

	resolved, report, err := ApplyValues(plan, map[string]any{
		"threshold": 9,
		"typo":      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"typo"}, report.Missing)

	resolvedPlan := resolved.(*Plan)
	assert.Equal(t, 9, resolvedPlan.FindTarget("threshold").Actual())
	assert.NotEqual(t, plan.ID, resolvedPlan.ID)
}

func TestLinkPropagationChains(t *testing.T) {
	// step1.output1 -> step2.input1, step2.output1 -> step3.input1.
	// Overriding step1's output must flow through both hops.
	step3, err := NewPlan("step3", "archive").
		AddInput(&CommandInput{ParameterBase: ParameterBase{
			Name:         "input1",
			DefaultValue: "result.txt",
		}}).
		Build()
	require.NoError(t, err)

	composite, err := NewCompositePlan("deep", buildProducer(t), buildConsumer(t), step3)
	require.NoError(t, err)
	_, err = composite.AddLink(
		ParamRef{Steps: []string{"step1"}, Param: "output1"},
		[]ParamRef{{Steps: []string{"step2"}, Param: "input1"}},
	)
	require.NoError(t, err)
	_, err = composite.AddLink(
		ParamRef{Steps: []string{"step2"}, Param: "output1"},
		[]ParamRef{{Steps: []string{"step3"}, Param: "input1"}},
	)
	require.NoError(t, err)

	resolved, _, err := ApplyValues(composite, map[string]any{
		"step1": map[string]any{"output1": "fresh.csv"},
		"step2": map[string]any{"output1": "fresh-result.txt"},
	})
	require.NoError(t, err)

	assert.Equal(t, "fresh.csv", paramActual(t, resolved, "step2", "input1"))
	assert.Equal(t, "fresh-result.txt", paramActual(t, resolved, "step3", "input1"))
}

func TestLinkFanInFirstDeclarationWins(t *testing.T) {
	alpha, err := NewPlan("alpha", "generate").
		AddOutput(&CommandOutput{ParameterBase: ParameterBase{
			Name:         "result",
			DefaultValue: "A.txt",
		}}).
		Build()
	require.NoError(t, err)

	beta, err := NewPlan("beta", "generate").
		AddOutput(&CommandOutput{ParameterBase: ParameterBase{
			Name:         "result",
			DefaultValue: "B.txt",
		}}).
		Build()
	require.NoError(t, err)

	gamma, err := NewPlan("gamma", "merge").
		AddInput(&CommandInput{ParameterBase: ParameterBase{
			Name:         "source",
			DefaultValue: "old.txt",
		}}).
		Build()
	require.NoError(t, err)

	composite, err := NewCompositePlan("fan-in", alpha, beta, gamma)
	require.NoError(t, err)

	_, err = composite.AddLink(
		ParamRef{Steps: []string{"alpha"}, Param: "result"},
		[]ParamRef{{Steps: []string{"gamma"}, Param: "source"}},
	)
	require.NoError(t, err)
	_, err = composite.AddLink(
		ParamRef{Steps: []string{"beta"}, Param: "result"},
		[]ParamRef{{Steps: []string{"gamma"}, Param: "source"}},
	)
	require.NoError(t, err)

	// Both links feed gamma.source; the earlier declared one wins, the
	// later one does not silently overwrite it.
	resolved, _, err := ApplyValues(composite, nil)
	require.NoError(t, err)
	assert.Equal(t, "A.txt", paramActual(t, resolved, "gamma", "source"))
}

func TestApplyValuesDeterministic(t *testing.T) {
	composite := buildPrecedenceComposite(t, true)
	overrides := map[string]any{"mapped": "C", "param1": "D"}

	first, _, err := ApplyValues(composite, overrides)
	require.NoError(t, err)
	want := ExportValues(first)

	for i := 0; i < 10; i++ {
		again, _, err := ApplyValues(composite, overrides)
		require.NoError(t, err)
		assert.Equal(t, want, ExportValues(again))
	}
}
