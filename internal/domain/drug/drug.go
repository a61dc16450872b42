// Package drug provides the read-only drug catalog.
package drug

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound indicates the drug does not exist in the catalog.
var ErrNotFound = errors.New("drug not found")

// Drug is one catalog row.
type Drug struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Strength string `json:"strength"`
	Form     string `json:"form,omitempty"`
}

// DisplayName is the name shown everywhere a drug is referenced.
func (d *Drug) DisplayName() string {
	return d.Name + " " + d.Strength
}

// Repository provides catalog lookups.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// GetByID retrieves one drug.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Drug, error) {
	var d Drug
	err := r.pool.QueryRow(ctx, `
		SELECT drug_id, name, strength, COALESCE(form, '')
		FROM drugs
		WHERE drug_id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Strength, &d.Form)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get drug: %w", err)
	}
	return &d, nil
}

// DisplayName returns the drug's display name, for callers that only need
// the label.
func (r *Repository) DisplayName(ctx context.Context, id int64) (string, error) {
	d, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return d.DisplayName(), nil
}

// List returns the full catalog ordered by name, for the add-medication
// picker.
func (r *Repository) List(ctx context.Context) ([]*Drug, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT drug_id, name, strength, COALESCE(form, '')
		FROM drugs
		ORDER BY name, strength
	`)
	if err != nil {
		return nil, fmt.Errorf("list drugs: %w", err)
	}
	defer rows.Close()

	var drugs []*Drug
	for rows.Next() {
		var d Drug
		if err := rows.Scan(&d.ID, &d.Name, &d.Strength, &d.Form); err != nil {
			return nil, err
		}
		drugs = append(drugs, &d)
	}
	return drugs, rows.Err()
}
