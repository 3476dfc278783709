package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

func storedComposite(t *testing.T, name string) *workflow.CompositePlan {
	t.Helper()

	producer := storedPlan(t, name+"-generate")
	consumer := storedPlan(t, name+"-process")

	composite, err := workflow.NewCompositePlan(name, producer, consumer)
	require.NoError(t, err)

	_, err = composite.AddMapping("shared-input", "mapped.csv", "", []workflow.ParamRef{
		{Steps: []string{name + "-process"}, Param: "input-data"},
	})
	require.NoError(t, err)

	_, err = composite.AddLink(
		workflow.ParamRef{Steps: []string{name + "-generate"}, Param: "result"},
		[]workflow.ParamRef{{Steps: []string{name + "-process"}, Param: "input-data"}},
	)
	require.NoError(t, err)

	return composite
}

func TestCompositeDAORoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewCompositeDAO(db)

	composite := storedComposite(t, "pipeline")
	require.NoError(t, dao.Create(ctx, composite))

	retrieved, err := dao.GetByName(ctx, "pipeline")
	require.NoError(t, err)
	assert.Equal(t, composite.ID, retrieved.ID)
	require.Len(t, retrieved.Plans, 2)
	assert.Equal(t, "pipeline-generate", retrieved.Plans[0].StepName())
	require.Len(t, retrieved.Mappings, 1)
	assert.Equal(t, "shared-input", retrieved.Mappings[0].Name)
	require.Len(t, retrieved.Links, 1)
	assert.Equal(t, "pipeline-generate.result", retrieved.Links[0].Source.String())

	// The restored tree is fully operational, not just data.
	graph, err := workflow.BuildGraph(retrieved, false)
	require.NoError(t, err)
	order, err := graph.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order, 2)
	assert.Equal(t, "pipeline-generate", order[0].Name)
}

func TestCompositeDAONameTaken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewCompositeDAO(db)

	require.NoError(t, dao.Create(ctx, storedComposite(t, "pipeline")))
	err := dao.Create(ctx, storedComposite(t, "pipeline"))
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NAME_TAKEN, ""))
}

func TestCompositeDAONameTakenByPlan(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewPlanDAO(db).Create(ctx, storedPlan(t, "pipeline")))

	err := NewCompositeDAO(db).Create(ctx, storedComposite(t, "pipeline"))
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NAME_TAKEN, ""))
}

func TestCompositeDAOInvalidate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewCompositeDAO(db)

	composite := storedComposite(t, "pipeline")
	require.NoError(t, dao.Create(ctx, composite))
	require.NoError(t, dao.Invalidate(ctx, composite.ID))

	_, err := dao.GetByName(ctx, "pipeline")
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NOT_FOUND, ""))

	all, err := dao.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCompositeDAONestedWorkflow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewCompositeDAO(db)

	inner := storedComposite(t, "inner")
	outer, err := workflow.NewCompositePlan("outer", inner, storedPlan(t, "archive"))
	require.NoError(t, err)
	require.NoError(t, dao.Create(ctx, outer))

	retrieved, err := dao.GetByName(ctx, "outer")
	require.NoError(t, err)
	require.Len(t, retrieved.Plans, 2)

	nested, ok := retrieved.Plans[0].(*workflow.CompositePlan)
	require.True(t, ok)
	assert.Equal(t, "inner", nested.Name)
	assert.Len(t, nested.Plans, 2)
}
