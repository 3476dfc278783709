package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

func storedPlan(t *testing.T, name string) *workflow.Plan {
	t.Helper()
	plan, err := workflow.NewPlan(name, "python process.py").
		AddInput(&workflow.CommandInput{ParameterBase: workflow.ParameterBase{
			Name:         "input-data",
			DefaultValue: "data.csv",
		}}).
		AddOutput(&workflow.CommandOutput{ParameterBase: workflow.ParameterBase{
			Name:         "result",
			DefaultValue: "result.txt",
		}}).
		Build()
	require.NoError(t, err)
	return plan
}

func TestPlanDAOCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewPlanDAO(db)

	plan := storedPlan(t, "process")
	require.NoError(t, dao.Create(ctx, plan))

	retrieved, err := dao.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, retrieved.ID)
	assert.Equal(t, "process", retrieved.Name)
	assert.Equal(t, "python process.py", retrieved.Command)
	require.Len(t, retrieved.Inputs, 1)
	assert.Equal(t, "data.csv", retrieved.Inputs[0].DefaultValue)
}

func TestPlanDAOGetByIDNotFound(t *testing.T) {
	db := setupTestDB(t)
	dao := NewPlanDAO(db)

	_, err := dao.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NOT_FOUND, ""))
}

func TestPlanDAONameTaken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewPlanDAO(db)

	require.NoError(t, dao.Create(ctx, storedPlan(t, "process")))

	err := dao.Create(ctx, storedPlan(t, "process"))
	require.Error(t, err)
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NAME_TAKEN, ""))
}

func TestPlanDAONameTakenByWorkflow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCompositeDAO(db).Create(ctx, storedComposite(t, "pipeline")))

	// Plans and workflows share one name namespace in both directions.
	err := NewPlanDAO(db).Create(ctx, storedPlan(t, "pipeline"))
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NAME_TAKEN, ""))
}

func TestPlanDAODerivedVersionsShareName(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewPlanDAO(db)

	base := storedPlan(t, "process")
	require.NoError(t, dao.Create(ctx, base))

	edited, err := base.Edit(workflow.EditOptions{
		SetDefaults: map[string]any{"input-data": "fresh.csv"},
	})
	require.NoError(t, err)
	require.NoError(t, dao.Create(ctx, edited))

	// GetByName returns the newest version of the lineage.
	newest, err := dao.GetByName(ctx, "process")
	require.NoError(t, err)
	assert.Equal(t, edited.ID, newest.ID)
	assert.Equal(t, base.ID, newest.DerivedFrom)

	// The old version stays reachable by exact ID.
	old, err := dao.GetByID(ctx, base.ID)
	require.NoError(t, err)
	assert.Equal(t, "data.csv", old.Inputs[0].DefaultValue)
}

func TestPlanDAOGetNewestPlansByNames(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewPlanDAO(db)

	base := storedPlan(t, "process")
	require.NoError(t, dao.Create(ctx, base))
	edited, err := base.Edit(workflow.EditOptions{
		SetDefaults: map[string]any{"input-data": "fresh.csv"},
	})
	require.NoError(t, err)
	require.NoError(t, dao.Create(ctx, edited))

	other := storedPlan(t, "generate")
	require.NoError(t, dao.Create(ctx, other))

	invalidated := storedPlan(t, "obsolete")
	require.NoError(t, dao.Create(ctx, invalidated))
	require.NoError(t, dao.Invalidate(ctx, invalidated.ID))

	newest, err := dao.GetNewestPlansByNames(ctx)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, edited.ID, newest["process"].ID)
	assert.Equal(t, other.ID, newest["generate"].ID)
}

func TestPlanDAOInvalidate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewPlanDAO(db)

	plan := storedPlan(t, "process")
	require.NoError(t, dao.Create(ctx, plan))
	require.NoError(t, dao.Invalidate(ctx, plan.ID))

	_, err := dao.GetByName(ctx, "process")
	assert.ErrorIs(t, err, types.NewError(types.PLAN_NOT_FOUND, ""))

	retrieved, err := dao.GetByID(ctx, plan.ID)
	require.NoError(t, err)
	assert.NotNil(t, retrieved.InvalidatedAt)
	assert.False(t, retrieved.IsActive())
}

func TestPlanDAOList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	dao := NewPlanDAO(db)

	require.NoError(t, dao.Create(ctx, storedPlan(t, "one")))
	two := storedPlan(t, "two")
	require.NoError(t, dao.Create(ctx, two))
	require.NoError(t, dao.Invalidate(ctx, two.ID))

	active, err := dao.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := dao.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
