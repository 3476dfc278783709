package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lineage-dev/lineage/internal/types"
	"github.com/lineage-dev/lineage/internal/workflow"
)

// PlanDAO is the persistence gateway for plan versions. Plans are stored as
// immutable version rows; soft deletion and derivation live in the row
// metadata so every historical version stays reachable.
type PlanDAO interface {
	// Create persists a new plan version. Creating a new lineage under a
	// name an active lineage already holds is an error; derived versions
	// keep their lineage's name.
	Create(ctx context.Context, plan *workflow.Plan) error

	// GetByID retrieves an exact plan version.
	GetByID(ctx context.Context, id string) (*workflow.Plan, error)

	// GetByName retrieves the newest active version of the named lineage.
	GetByName(ctx context.Context, name string) (*workflow.Plan, error)

	// GetNewestPlansByNames returns the newest active version of every
	// lineage, keyed by plan name. Invalidated lineages are excluded.
	GetNewestPlansByNames(ctx context.Context) (map[string]*workflow.Plan, error)

	// Invalidate soft-deletes a plan version. The row remains so recorded
	// executions can still resolve it.
	Invalidate(ctx context.Context, id string) error

	// List returns all stored plan versions, oldest first, optionally
	// including invalidated ones.
	List(ctx context.Context, includeInvalidated bool) ([]*workflow.Plan, error)
}

type planDAO struct {
	db *DB
}

// NewPlanDAO creates a new plan DAO.
func NewPlanDAO(db *DB) PlanDAO {
	return &planDAO{db: db}
}

// newestActiveFilter selects versions that are active and not superseded by
// a later derivation.
const newestActiveFilter = `
	invalidated_at IS NULL
	AND id NOT IN (SELECT derived_from FROM plans WHERE derived_from IS NOT NULL)
`

func (d *planDAO) Create(ctx context.Context, plan *workflow.Plan) error {
	if plan.ID == "" {
		return types.NewError(types.PLAN_INVALID, "plan has no ID")
	}

	if plan.DerivedFrom == "" {
		taken, err := nameTaken(ctx, d.db, plan.Name)
		if err != nil {
			return err
		}
		if taken {
			return types.NewError(types.PLAN_NAME_TAKEN,
				fmt.Sprintf("an active plan or workflow named %q already exists", plan.Name))
		}
	}

	document, err := json.Marshal(plan)
	if err != nil {
		return types.WrapError(types.PLAN_INVALID, "failed to serialize plan", err)
	}

	var derivedFrom any
	if plan.DerivedFrom != "" {
		derivedFrom = plan.DerivedFrom
	}

	_, err = d.db.conn.ExecContext(ctx, `
		INSERT INTO plans (id, name, derived_from, invalidated_at, date_created, document)
		VALUES (?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.Name, derivedFrom, plan.InvalidatedAt, plan.DateCreated, string(document))
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to insert plan", err)
	}
	return nil
}

func (d *planDAO) GetByID(ctx context.Context, id string) (*workflow.Plan, error) {
	var document string
	err := d.db.conn.QueryRowContext(ctx,
		"SELECT document FROM plans WHERE id = ?", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.PLAN_NOT_FOUND, fmt.Sprintf("plan %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query plan", err)
	}
	return decodePlan(document)
}

func (d *planDAO) GetByName(ctx context.Context, name string) (*workflow.Plan, error) {
	var document string
	err := d.db.conn.QueryRowContext(ctx, `
		SELECT document FROM plans
		WHERE name = ? AND `+newestActiveFilter+`
		ORDER BY date_created DESC LIMIT 1
	`, name).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.PLAN_NOT_FOUND,
			fmt.Sprintf("no active plan named %q", name))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query plan by name", err)
	}
	return decodePlan(document)
}

func (d *planDAO) GetNewestPlansByNames(ctx context.Context) (map[string]*workflow.Plan, error) {
	rows, err := d.db.conn.QueryContext(ctx, `
		SELECT document FROM plans
		WHERE `+newestActiveFilter+`
		ORDER BY date_created ASC
	`)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query newest plans", err)
	}
	defer rows.Close()

	plans := make(map[string]*workflow.Plan)
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan plan row", err)
		}
		plan, err := decodePlan(document)
		if err != nil {
			return nil, err
		}
		plans[plan.Name] = plan
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "plan row iteration failed", err)
	}
	return plans, nil
}

func (d *planDAO) Invalidate(ctx context.Context, id string) error {
	plan, err := d.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	plan.InvalidatedAt = &now

	document, err := json.Marshal(plan)
	if err != nil {
		return types.WrapError(types.PLAN_INVALID, "failed to serialize plan", err)
	}

	_, err = d.db.conn.ExecContext(ctx,
		"UPDATE plans SET invalidated_at = ?, document = ? WHERE id = ?",
		now, string(document), id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to invalidate plan", err)
	}
	return nil
}

func (d *planDAO) List(ctx context.Context, includeInvalidated bool) ([]*workflow.Plan, error) {
	query := "SELECT document FROM plans"
	if !includeInvalidated {
		query += " WHERE invalidated_at IS NULL"
	}
	query += " ORDER BY date_created ASC"

	rows, err := d.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list plans", err)
	}
	defer rows.Close()

	var plans []*workflow.Plan
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan plan row", err)
		}
		plan, err := decodePlan(document)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "plan row iteration failed", err)
	}
	return plans, nil
}

func decodePlan(document string) (*workflow.Plan, error) {
	var plan workflow.Plan
	if err := json.Unmarshal([]byte(document), &plan); err != nil {
		return nil, types.WrapError(types.PLAN_INVALID, "failed to decode stored plan", err)
	}
	return &plan, nil
}
