package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planActual(t *testing.T, step Step, name string) any {
	t.Helper()
	plan, ok := step.(*Plan)
	require.True(t, ok)
	target := plan.FindTarget(name)
	require.NotNil(t, target)
	return target.Actual()
}

func TestExpandIterationsCrossProduct(t *testing.T) {
	plan := buildTestPlan(t, "iterated")

	expanded, err := ExpandIterations(plan, map[string][]any{
		"input-data": {"a.csv", "b.csv"},
		"threshold":  {1, 2},
	})
	require.NoError(t, err)
	require.Len(t, expanded, 4)

	// Sorted key order makes input-data the outer dimension.
	want := [][2]any{
		{"a.csv", 1}, {"a.csv", 2},
		{"b.csv", 1}, {"b.csv", 2},
	}
	for i, step := range expanded {
		assert.Equal(t, want[i][0], planActual(t, step, "input-data"), "plan %d", i)
		assert.Equal(t, want[i][1], planActual(t, step, "threshold"), "plan %d", i)
	}
}

func TestExpandIterationsTaggedZip(t *testing.T) {
	plan := buildTestPlan(t, "zipped")

	expanded, err := ExpandIterations(plan, map[string][]any{
		"input-data@run": {"a.csv", "b.csv", "c.csv"},
		"result@run":     {"a.out", "b.out", "c.out"},
	})
	require.NoError(t, err)
	require.Len(t, expanded, 3)

	for i, step := range expanded {
		prefix := string("abc"[i])
		assert.Equal(t, prefix+".csv", planActual(t, step, "input-data"))
		assert.Equal(t, prefix+".out", planActual(t, step, "result"))
	}
}

func TestExpandIterationsTagLengthMismatch(t *testing.T) {
	plan := buildTestPlan(t, "mismatched")

	_, err := ExpandIterations(plan, map[string][]any{
		"input-data@run": {"a.csv", "b.csv", "c.csv"},
		"threshold@run":  {1, 2},
	})
	require.Error(t, err)

	var wfErr *WorkflowError
	require.ErrorAs(t, err, &wfErr)
	assert.Equal(t, WorkflowErrorIterationMismatch, wfErr.Code)
	assert.Contains(t, wfErr.Error(), "threshold")
	assert.Contains(t, wfErr.Error(), "run")
}

func TestExpandIterationsIterIndexSubstitution(t *testing.T) {
	plan := buildTestPlan(t, "indexed")

	expanded, err := ExpandIterations(plan, map[string][]any{
		"input-data": {"a.csv", "b.csv", "c.csv"},
		"result":     {"out_{iter_index}.txt"},
	})
	require.NoError(t, err)
	require.Len(t, expanded, 3)

	for i, step := range expanded {
		assert.Equal(t, fmt.Sprintf("out_%d.txt", i), planActual(t, step, "result"))
	}
}

func TestExpandIterationsScopedIntoComposite(t *testing.T) {
	composite := buildTestComposite(t)

	expanded, err := ExpandIterations(composite, map[string][]any{
		"step2.param1": {"X", "Y"},
	})
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	for i, want := range []string{"X", "Y"} {
		assert.Equal(t, want, paramActual(t, expanded[i], "step2", "param1"))
	}
}

func TestExpandIterationsErrors(t *testing.T) {
	plan := buildTestPlan(t, "invalid")

	tests := []struct {
		name   string
		values map[string][]any
		code   WorkflowErrorCode
	}{
		{
			name:   "no values",
			values: nil,
			code:   WorkflowErrorMissingIteration,
		},
		{
			name:   "empty value list",
			values: map[string][]any{"threshold": {}},
			code:   WorkflowErrorMissingIteration,
		},
		{
			name:   "unknown parameter",
			values: map[string][]any{"nonexistent": {1, 2}},
			code:   WorkflowErrorMissingIteration,
		},
		{
			name:   "empty tag",
			values: map[string][]any{"threshold@": {1}},
			code:   WorkflowErrorInvalidReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandIterations(plan, tt.values)
			require.Error(t, err)
			var wfErr *WorkflowError
			require.ErrorAs(t, err, &wfErr)
			assert.Equal(t, tt.code, wfErr.Code)
		})
	}
}

func TestExpandIterationsBaseUntouched(t *testing.T) {
	plan := buildTestPlan(t, "pristine")

	expanded, err := ExpandIterations(plan, map[string][]any{
		"threshold": {10, 20},
	})
	require.NoError(t, err)

	assert.Nil(t, plan.Parameters[0].ActualValue)
	for _, step := range expanded {
		assert.NotEqual(t, plan.ID, step.(*Plan).ID)
		assert.Equal(t, plan.ID, step.(*Plan).DerivedFrom)
	}
}
