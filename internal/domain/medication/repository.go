// Package medication provides the medication store repository.
package medication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound indicates the medication row does not exist.
var ErrNotFound = errors.New("medication not found")

// Repository provides persistence for patient medications.
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

const medCols = `m.patient_med_id, m.user_id, m.drug_id, m.dose, m.instructions,
       m.start_date, m.end_date, m.prescribed_by, m.timing, d.name || ' ' || d.strength`

func scanMedication(row pgx.Row) (*Medication, error) {
	var m Medication
	var timing string
	err := row.Scan(
		&m.ID, &m.PatientID, &m.DrugID, &m.Dose, &m.Instructions,
		&m.StartDate, &m.EndDate, &m.PrescribedBy, &timing, &m.DrugName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m.Timing = Timing(timing)
	return &m, nil
}

// Insert stores a new medication row and fills in its ID.
// The date range is taken as given: an inverted range yields a row that is
// never active, matching how the store has always behaved.
func (r *Repository) Insert(ctx context.Context, m *Medication) error {
	query := `
		INSERT INTO patient_medications
			(user_id, drug_id, dose, instructions, start_date, end_date, prescribed_by, timing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING patient_med_id
	`
	err := r.pool.QueryRow(ctx, query,
		m.PatientID, m.DrugID, m.Dose, m.Instructions,
		m.StartDate, m.EndDate, m.PrescribedBy, string(m.Timing),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert medication: %w", err)
	}
	r.logger.Info("medication inserted",
		zap.Int64("patient_med_id", m.ID),
		zap.Int64("patient_id", m.PatientID),
		zap.Int64("drug_id", m.DrugID))
	return nil
}

// Update replaces the mutable fields of a medication row.
// user_id and drug_id are immutable after creation.
func (r *Repository) Update(ctx context.Context, id int64, dose, instructions string, start time.Time, end *time.Time, prescribedBy string, timing Timing) error {
	query := `
		UPDATE patient_medications
		SET dose = $2, instructions = $3, start_date = $4, end_date = $5, prescribed_by = $6, timing = $7
		WHERE patient_med_id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, dose, instructions, start, end, prescribedBy, string(timing))
	if err != nil {
		return fmt.Errorf("update medication: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID retrieves a single medication row.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Medication, error) {
	query := `
		SELECT ` + medCols + `
		FROM patient_medications m
		JOIN drugs d ON m.drug_id = d.drug_id
		WHERE m.patient_med_id = $1
	`
	return scanMedication(r.pool.QueryRow(ctx, query, id))
}

// ListByDrug returns one row per drug (the most recent by start date) for a
// patient, regardless of status. The library view wants one card per drug;
// the full-row variants below feed the schedule views.
func (r *Repository) ListByDrug(ctx context.Context, patientID int64) ([]*Medication, error) {
	query := `
		SELECT DISTINCT ON (m.drug_id) ` + medCols + `
		FROM patient_medications m
		JOIN drugs d ON m.drug_id = d.drug_id
		WHERE m.user_id = $1
		ORDER BY m.drug_id, m.start_date DESC
	`
	return r.list(ctx, query, patientID)
}

// ListActive returns one active row per drug (most recent by start date).
func (r *Repository) ListActive(ctx context.Context, patientID int64) ([]*Medication, error) {
	today := DateOf(time.Now())
	query := `
		SELECT DISTINCT ON (m.drug_id) ` + medCols + `
		FROM patient_medications m
		JOIN drugs d ON m.drug_id = d.drug_id
		WHERE m.user_id = $1 AND m.start_date <= $2 AND (m.end_date IS NULL OR m.end_date >= $2)
		ORDER BY m.drug_id, m.start_date DESC
	`
	return r.list(ctx, query, patientID, today)
}

// ListInactive returns one ended row per drug (most recent by start date).
func (r *Repository) ListInactive(ctx context.Context, patientID int64) ([]*Medication, error) {
	today := DateOf(time.Now())
	query := `
		SELECT DISTINCT ON (m.drug_id) ` + medCols + `
		FROM patient_medications m
		JOIN drugs d ON m.drug_id = d.drug_id
		WHERE m.user_id = $1 AND m.end_date IS NOT NULL AND m.end_date < $2
		ORDER BY m.drug_id, m.start_date DESC
	`
	return r.list(ctx, query, patientID, today)
}

// ListAllEntries returns every medication row for a patient, including
// multiple timing rows for the same drug.
func (r *Repository) ListAllEntries(ctx context.Context, patientID int64) ([]*Medication, error) {
	query := `
		SELECT ` + medCols + `
		FROM patient_medications m
		JOIN drugs d ON m.drug_id = d.drug_id
		WHERE m.user_id = $1
		ORDER BY m.start_date DESC, m.drug_id, m.timing
	`
	return r.list(ctx, query, patientID)
}

// ListDaily returns every row active today, one per dose slot.
func (r *Repository) ListDaily(ctx context.Context, patientID int64) ([]*Medication, error) {
	today := DateOf(time.Now())
	query := `
		SELECT ` + medCols + `
		FROM patient_medications m
		JOIN drugs d ON m.drug_id = d.drug_id
		WHERE m.user_id = $1 AND m.start_date <= $2 AND (m.end_date IS NULL OR m.end_date >= $2)
		ORDER BY m.drug_id, m.timing, m.start_date DESC
	`
	return r.list(ctx, query, patientID, today)
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]*Medication, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []*Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}
