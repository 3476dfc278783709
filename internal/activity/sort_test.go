package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

func testActivity(id string, plan *workflow.Plan, endedAt time.Time, uses, gens []string) *Activity {
	a := &Activity{
		ID:        id,
		Plan:      plan,
		StartedAt: endedAt.Add(-time.Minute),
		EndedAt:   endedAt,
		Agent:     "tester",
	}
	for _, path := range uses {
		a.Usages = append(a.Usages, Usage{Path: path, Value: path})
	}
	for _, path := range gens {
		a.Generations = append(a.Generations, Generation{Path: path, Value: path})
	}
	return a
}

func activityIDs(activities []*Activity) []string {
	ids := make([]string, len(activities))
	for i, a := range activities {
		ids[i] = a.ID
	}
	return ids
}

func TestSortActivitiesByPathDependency(t *testing.T) {
	now := time.Now()
	producer := testActivity("gen", &workflow.Plan{ID: "p1", Name: "generate"}, now,
		nil, []string{"data.csv"})
	consumer := testActivity("use", &workflow.Plan{ID: "p2", Name: "process"}, now.Add(time.Hour),
		[]string{"data.csv"}, []string{"result.txt"})

	// Input order must not matter.
	sorted, err := SortActivities([]*Activity{consumer, producer}, SortOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"gen", "use"}, activityIDs(sorted))
}

func TestSortActivitiesIndependentKeepInputOrder(t *testing.T) {
	now := time.Now()
	a := testActivity("a", &workflow.Plan{ID: "p1", Name: "one"}, now, nil, []string{"a.txt"})
	b := testActivity("b", &workflow.Plan{ID: "p2", Name: "two"}, now, nil, []string{"b.txt"})

	sorted, err := SortActivities([]*Activity{b, a}, SortOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, activityIDs(sorted))
}

func TestSortActivitiesSamePathOrderedByDerivation(t *testing.T) {
	now := time.Now()
	base := &workflow.Plan{ID: "p1", Name: "generate"}
	edited := &workflow.Plan{ID: "p2", Name: "generate", DerivedFrom: "p1"}

	older := testActivity("older", base, now.Add(time.Hour), nil, []string{"data.csv"})
	newer := testActivity("newer", edited, now, nil, []string{"data.csv"})

	// Plan derivation decides, not end time: the derived version is newer.
	sorted, err := SortActivities([]*Activity{newer, older}, SortOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"older", "newer"}, activityIDs(sorted))
}

func TestSortActivitiesSamePlanOrderedByEndTime(t *testing.T) {
	now := time.Now()
	plan := &workflow.Plan{ID: "p1", Name: "generate"}

	first := testActivity("first", plan, now, nil, []string{"data.csv"})
	second := testActivity("second", plan, now.Add(time.Hour), nil, []string{"data.csv"})

	sorted, err := SortActivities([]*Activity{second, first}, SortOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, activityIDs(sorted))
}

func TestSortActivitiesUnorderableTie(t *testing.T) {
	now := time.Now()
	// Unrelated plan lineages generating the same path cannot be ordered.
	a := testActivity("a", &workflow.Plan{ID: "p1", Name: "one"}, now, nil, []string{"data.csv"})
	b := testActivity("b", &workflow.Plan{ID: "p2", Name: "two"}, now, nil, []string{"data.csv"})

	_, err := SortActivities([]*Activity{a, b}, SortOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.ACTIVITY_UNORDERED, ""))
	assert.Contains(t, err.Error(), "cannot create an order")
}

func TestSortActivitiesCycle(t *testing.T) {
	now := time.Now()
	a := testActivity("a", &workflow.Plan{ID: "p1", Name: "one"}, now,
		[]string{"x.txt"}, []string{"y.txt"})
	b := testActivity("b", &workflow.Plan{ID: "p2", Name: "two"}, now,
		[]string{"y.txt"}, []string{"x.txt"})

	_, err := SortActivities([]*Activity{a, b}, SortOptions{})
	require.Error(t, err)

	var cycleErr *workflow.GraphCycleError
	require.True(t, errors.As(err, &cycleErr))
	require.NotEmpty(t, cycleErr.Cycles)
}

func TestSortActivitiesPruneSuperseded(t *testing.T) {
	now := time.Now()
	base := &workflow.Plan{ID: "p1", Name: "generate"}
	edited := &workflow.Plan{ID: "p2", Name: "generate", DerivedFrom: "p1"}

	a := testActivity("a", base, now, nil, []string{"p1.txt", "p2.txt"})
	b := testActivity("b", edited, now.Add(time.Hour), nil, []string{"p1.txt", "p2.txt"})

	t.Run("prune disabled keeps both in order", func(t *testing.T) {
		sorted, err := SortActivities([]*Activity{b, a}, SortOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, activityIDs(sorted))
	})

	t.Run("prune drops the superseded one", func(t *testing.T) {
		sorted, err := SortActivities([]*Activity{b, a}, SortOptions{Prune: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, activityIDs(sorted))
	})
}

func TestSortActivitiesPrunePartialOverrideKept(t *testing.T) {
	now := time.Now()
	base := &workflow.Plan{ID: "p1", Name: "generate"}
	edited := &workflow.Plan{ID: "p2", Name: "generate", DerivedFrom: "p1"}

	// b regenerates only one of a's two paths; a still matters.
	a := testActivity("a", base, now, nil, []string{"p1.txt", "p2.txt"})
	b := testActivity("b", edited, now.Add(time.Hour), nil, []string{"p1.txt"})

	sorted, err := SortActivities([]*Activity{a, b}, SortOptions{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, activityIDs(sorted))
}

func TestSortActivitiesPruneAncestors(t *testing.T) {
	now := time.Now()
	feeder := testActivity("feeder", &workflow.Plan{ID: "p1", Name: "fetch"}, now,
		nil, []string{"raw.csv"})
	middle := testActivity("middle", &workflow.Plan{ID: "p2", Name: "clean"}, now.Add(time.Hour),
		[]string{"raw.csv"}, []string{"clean.csv"})
	replacement := testActivity("replacement",
		&workflow.Plan{ID: "p3", Name: "clean", DerivedFrom: "p2"}, now.Add(2*time.Hour),
		nil, []string{"clean.csv"})

	t.Run("without ancestor pruning the feeder survives", func(t *testing.T) {
		sorted, err := SortActivities([]*Activity{feeder, middle, replacement}, SortOptions{Prune: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"feeder", "replacement"}, activityIDs(sorted))
	})

	t.Run("with ancestor pruning only the replacement remains", func(t *testing.T) {
		sorted, err := SortActivities([]*Activity{feeder, middle, replacement},
			SortOptions{Prune: true, PruneAncestors: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"replacement"}, activityIDs(sorted))
	})
}

func TestNewActivitySnapshotsResolvedPlan(t *testing.T) {
	plan, err := workflow.NewPlan("process", "process").
		AddInput(&workflow.CommandInput{ParameterBase: workflow.ParameterBase{
			Name:         "input1",
			DefaultValue: "data.csv",
		}}).
		AddOutput(&workflow.CommandOutput{ParameterBase: workflow.ParameterBase{
			Name:         "output1",
			DefaultValue: "result.txt",
		}}).
		Build()
	require.NoError(t, err)

	resolved, _, err := workflow.ApplyValues(plan, map[string]any{"input1": "fresh.csv"})
	require.NoError(t, err)

	started := time.Now().Add(-time.Minute)
	ended := time.Now()
	a := NewActivity(resolved.(*workflow.Plan), started, ended, "alice")

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "alice", a.Agent)
	assert.Equal(t, []string{"fresh.csv"}, a.UsagePaths())
	assert.Equal(t, []string{"result.txt"}, a.GenerationPaths())
}

func TestNewCollection(t *testing.T) {
	now := time.Now()
	a := testActivity("a", &workflow.Plan{ID: "p1", Name: "one"}, now, nil, []string{"a.txt"})
	b := testActivity("b", &workflow.Plan{ID: "p2", Name: "two"}, now, nil, []string{"b.txt"})

	c := NewCollection("run-1", a, b)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "run-1", c.Name)
	assert.Len(t, c.Activities, 2)
}
