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

// CompositeDAO is the persistence gateway for composite plan versions. The
// children are stored inline as snapshots: a composed workflow references
// exact plan versions, never the mutable latest ones.
type CompositeDAO interface {
	// Create persists a composite version. Composing under a name an
	// active plan or workflow already holds is an error.
	Create(ctx context.Context, composite *workflow.CompositePlan) error

	// GetByID retrieves an exact composite version.
	GetByID(ctx context.Context, id string) (*workflow.CompositePlan, error)

	// GetByName retrieves the newest active version of the named workflow.
	GetByName(ctx context.Context, name string) (*workflow.CompositePlan, error)

	// Invalidate soft-deletes a composite version.
	Invalidate(ctx context.Context, id string) error

	// List returns all stored composite versions, oldest first, optionally
	// including invalidated ones.
	List(ctx context.Context, includeInvalidated bool) ([]*workflow.CompositePlan, error)
}

type compositeDAO struct {
	db *DB
}

// NewCompositeDAO creates a new composite plan DAO.
func NewCompositeDAO(db *DB) CompositeDAO {
	return &compositeDAO{db: db}
}

// stepDoc serializes one child of a composite with a type tag, since the
// in-memory tree holds children behind the Step interface.
type stepDoc struct {
	Kind      string         `json:"kind"`
	Plan      *workflow.Plan `json:"plan,omitempty"`
	Composite *compositeDoc  `json:"workflow,omitempty"`
}

type compositeDoc struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Description   string               `json:"description,omitempty"`
	Keywords      []string             `json:"keywords,omitempty"`
	Steps         []stepDoc            `json:"steps"`
	Mappings      []*workflow.Mapping  `json:"mappings,omitempty"`
	Links         []*workflow.Link     `json:"links,omitempty"`
	DerivedFrom   string               `json:"derived_from,omitempty"`
	InvalidatedAt *time.Time           `json:"invalidated_at,omitempty"`
	DateCreated   time.Time            `json:"date_created"`
}

func encodeComposite(c *workflow.CompositePlan) (*compositeDoc, error) {
	doc := &compositeDoc{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		Keywords:      c.Keywords,
		Mappings:      c.Mappings,
		Links:         c.Links,
		DerivedFrom:   c.DerivedFrom,
		InvalidatedAt: c.InvalidatedAt,
		DateCreated:   c.DateCreated,
	}
	for _, child := range c.Plans {
		switch s := child.(type) {
		case *workflow.Plan:
			doc.Steps = append(doc.Steps, stepDoc{Kind: "plan", Plan: s})
		case *workflow.CompositePlan:
			nested, err := encodeComposite(s)
			if err != nil {
				return nil, err
			}
			doc.Steps = append(doc.Steps, stepDoc{Kind: "workflow", Composite: nested})
		default:
			return nil, types.NewError(types.PLAN_INVALID,
				fmt.Sprintf("cannot persist step %q", child.StepName()))
		}
	}
	return doc, nil
}

func decodeComposite(doc *compositeDoc) (*workflow.CompositePlan, error) {
	c := &workflow.CompositePlan{
		ID:            doc.ID,
		Name:          doc.Name,
		Description:   doc.Description,
		Keywords:      doc.Keywords,
		Mappings:      doc.Mappings,
		Links:         doc.Links,
		DerivedFrom:   doc.DerivedFrom,
		InvalidatedAt: doc.InvalidatedAt,
		DateCreated:   doc.DateCreated,
	}
	for _, step := range doc.Steps {
		switch step.Kind {
		case "plan":
			c.Plans = append(c.Plans, step.Plan)
		case "workflow":
			nested, err := decodeComposite(step.Composite)
			if err != nil {
				return nil, err
			}
			c.Plans = append(c.Plans, nested)
		default:
			return nil, types.NewError(types.PLAN_INVALID,
				fmt.Sprintf("unknown step kind %q in stored workflow", step.Kind))
		}
	}
	return c, nil
}

func (d *compositeDAO) Create(ctx context.Context, composite *workflow.CompositePlan) error {
	if composite.ID == "" {
		return types.NewError(types.PLAN_INVALID, "workflow has no ID")
	}

	if composite.DerivedFrom == "" {
		taken, err := nameTaken(ctx, d.db, composite.Name)
		if err != nil {
			return err
		}
		if taken {
			return types.NewError(types.PLAN_NAME_TAKEN,
				fmt.Sprintf("an active plan or workflow named %q already exists", composite.Name))
		}
	}

	doc, err := encodeComposite(composite)
	if err != nil {
		return err
	}
	document, err := json.Marshal(doc)
	if err != nil {
		return types.WrapError(types.PLAN_INVALID, "failed to serialize workflow", err)
	}

	var derivedFrom any
	if composite.DerivedFrom != "" {
		derivedFrom = composite.DerivedFrom
	}

	_, err = d.db.conn.ExecContext(ctx, `
		INSERT INTO composite_plans (id, name, derived_from, invalidated_at, date_created, document)
		VALUES (?, ?, ?, ?, ?, ?)
	`, composite.ID, composite.Name, derivedFrom, composite.InvalidatedAt,
		composite.DateCreated, string(document))
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to insert workflow", err)
	}
	return nil
}

// nameTaken reports whether an active plan or workflow holds the name.
// Plans and workflows share one name namespace since lookup resolves them
// uniformly.
func nameTaken(ctx context.Context, db *DB, name string) (bool, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM composite_plans WHERE name = ? AND invalidated_at IS NULL)
			+ (SELECT COUNT(*) FROM plans WHERE name = ? AND invalidated_at IS NULL)
	`, name, name).Scan(&count)
	if err != nil {
		return false, types.WrapError(types.DB_QUERY_FAILED, "failed to check name", err)
	}
	return count > 0, nil
}

func (d *compositeDAO) GetByID(ctx context.Context, id string) (*workflow.CompositePlan, error) {
	var document string
	err := d.db.conn.QueryRowContext(ctx,
		"SELECT document FROM composite_plans WHERE id = ?", id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.PLAN_NOT_FOUND,
			fmt.Sprintf("workflow %s not found", id))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query workflow", err)
	}
	return decodeCompositeDocument(document)
}

func (d *compositeDAO) GetByName(ctx context.Context, name string) (*workflow.CompositePlan, error) {
	var document string
	err := d.db.conn.QueryRowContext(ctx, `
		SELECT document FROM composite_plans
		WHERE name = ?
			AND invalidated_at IS NULL
			AND id NOT IN (SELECT derived_from FROM composite_plans WHERE derived_from IS NOT NULL)
		ORDER BY date_created DESC LIMIT 1
	`, name).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewError(types.PLAN_NOT_FOUND,
			fmt.Sprintf("no active workflow named %q", name))
	}
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to query workflow by name", err)
	}
	return decodeCompositeDocument(document)
}

func (d *compositeDAO) Invalidate(ctx context.Context, id string) error {
	composite, err := d.GetByID(ctx, id)
	if err != nil {
		return err
	}
	composite.Invalidate()

	doc, err := encodeComposite(composite)
	if err != nil {
		return err
	}
	document, err := json.Marshal(doc)
	if err != nil {
		return types.WrapError(types.PLAN_INVALID, "failed to serialize workflow", err)
	}

	_, err = d.db.conn.ExecContext(ctx,
		"UPDATE composite_plans SET invalidated_at = ?, document = ? WHERE id = ?",
		composite.InvalidatedAt, string(document), id)
	if err != nil {
		return types.WrapError(types.DB_QUERY_FAILED, "failed to invalidate workflow", err)
	}
	return nil
}

func (d *compositeDAO) List(ctx context.Context, includeInvalidated bool) ([]*workflow.CompositePlan, error) {
	query := "SELECT document FROM composite_plans"
	if !includeInvalidated {
		query += " WHERE invalidated_at IS NULL"
	}
	query += " ORDER BY date_created ASC"

	rows, err := d.db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to list workflows", err)
	}
	defer rows.Close()

	var composites []*workflow.CompositePlan
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, types.WrapError(types.DB_QUERY_FAILED, "failed to scan workflow row", err)
		}
		composite, err := decodeCompositeDocument(document)
		if err != nil {
			return nil, err
		}
		composites = append(composites, composite)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.DB_QUERY_FAILED, "workflow row iteration failed", err)
	}
	return composites, nil
}

func decodeCompositeDocument(document string) (*workflow.CompositePlan, error) {
	var doc compositeDoc
	if err := json.Unmarshal([]byte(document), &doc); err != nil {
		return nil, types.WrapError(types.PLAN_INVALID, "failed to decode stored workflow", err)
	}
	return decodeComposite(&doc)
}
