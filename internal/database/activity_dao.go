package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lineage-dev/lineage/internal/activity"
	"github.com/lineage-dev/lineage/internal/types"
)

// ActivityDAO is the persistence gateway for execution records. Activities
// are immutable once stored; there are no update or delete operations.
type ActivityDAO interface {
	// Create persists an execution record.
	Create(ctx context.Context, a *activity.Activity) error

	// GetByID retrieves an execution record.
	GetByID(ctx context.Context, id string) (*activity.Activity, error)

	// ListByPlan returns the execution records of one exact plan version,
	// oldest first.
	ListByPlan(ctx context.Context, planID string) ([]*activity.Activity, error)

	// List returns all execution records, oldest first.
	List(ctx context.Context) ([]*activity.Activity, error)

	// CreateCollection persists a collection and its member activities in
	// one transaction; a failure rolls back the whole group.
	CreateCollection(ctx context.Context, c *activity.Collection) error

	// GetCollection retrieves a collection with its members in recorded
	// order.
	GetCollection(ctx context.Context, id string) (*activity.Collection, error)
}

type activityDAO struct {
	db *DB
}

// NewActivityDAO creates a new activity DAO.
func NewActivityDAO(db *DB) ActivityDAO {
	return &activityDAO{db: db}
}

func (d *activityDAO) Create(ctx context.Context, a *activity.Activity) error {
	return d.insert(ctx, d.db.conn, a)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *activityDAO) insert(ctx context.Context, conn execer, a *activity.Activity) error {
	if a.ID == "" {
		return types.NewError(types.PLAN_INVALID, "activity has no ID")
	}
	if a.Plan == nil {
		return types.NewError(types.PLAN_INVALID, "activity has no plan snapshot")
	}

	document, err := json.Marshal(a)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to serialize activity", err)
	}

	_, err = conn.ExecContext(ctx, `
		INSERT INTO activities (id, plan_id, agent, started_at, ended_at, document)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.Plan.ID, a.Agent, a.StartedAt, a.EndedAt, string(document))
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to insert activity", err)
	}
	return nil
}

func (d *activityDAO) GetByID(ctx context.Context, id string) (*activity.Activity, error) {
	var document string
	err := d.db.conn.QueryRowContext(ctx,
		"SELECT document FROM activities WHERE id = ?", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.ACTIVITY_NOT_FOUND,
			fmt.Sprintf("activity %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query activity", err)
	}
	return decodeActivity(document)
}

func (d *activityDAO) ListByPlan(ctx context.Context, planID string) ([]*activity.Activity, error) {
	return d.list(ctx,
		"SELECT document FROM activities WHERE plan_id = ? ORDER BY ended_at ASC", planID)
}

func (d *activityDAO) List(ctx context.Context) ([]*activity.Activity, error) {
	return d.list(ctx, "SELECT document FROM activities ORDER BY ended_at ASC")
}

func (d *activityDAO) list(ctx context.Context, query string, args ...any) ([]*activity.Activity, error) {
	rows, err := d.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list activities", err)
	}
	defer rows.Close()

	var activities []*activity.Activity
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan activity row", err)
		}
		a, err := decodeActivity(document)
		if err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "activity row iteration failed", err)
	}
	return activities, nil
}

func (d *activityDAO) CreateCollection(ctx context.Context, c *activity.Collection) error {
	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_collections (id, name, date_created)
			VALUES (?, ?, ?)
		`, c.ID, c.Name, c.DateCreated)
		if err != nil {
			return types.WrapError(types.DB_QUERY_FAILED, "failed to insert collection", err)
		}
		for i, a := range c.Activities {
			if err := d.insert(ctx, tx, a); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO activity_collection_members (collection_id, activity_id, position)
				VALUES (?, ?, ?)
			`, c.ID, a.ID, i)
			if err != nil {
				return types.WrapError(types.DB_QUERY_FAILED, "failed to insert collection member", err)
			}
		}
		return nil
	})
}

func (d *activityDAO) GetCollection(ctx context.Context, id string) (*activity.Collection, error) {
	c := &activity.Collection{ID: id}
	err := d.db.conn.QueryRowContext(ctx,
		"SELECT name, date_created FROM activity_collections WHERE id = ?", id).
		Scan(&c.Name, &c.DateCreated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.ACTIVITY_NOT_FOUND,
			fmt.Sprintf("activity collection %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query collection", err)
	}

	activities, err := d.list(ctx, `
		SELECT a.document FROM activities a
		JOIN activity_collection_members m ON m.activity_id = a.id
		WHERE m.collection_id = ?
		ORDER BY m.position ASC
	`, id)
	if err != nil {
		return nil, err
	}
	c.Activities = activities
	return c, nil
}

func decodeActivity(document string) (*activity.Activity, error) {
	var a activity.Activity
	if err := json.Unmarshal([]byte(document), &a); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to decode stored activity", err)
	}
	return &a, nil
}
