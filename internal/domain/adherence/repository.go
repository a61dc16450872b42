package adherence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/domain/intake"
	"github.com/medipal/medtrack/internal/domain/medication"
)

// Scope narrows a drug-level adherence query. The zero value covers every
// patient who has ever been prescribed the drug.
type Scope struct {
	patientID *int64
}

// ScopeAllPatients covers every patient on the drug.
func ScopeAllPatients() Scope {
	return Scope{}
}

// ScopePatient restricts the rate to one patient's rows.
func ScopePatient(patientID int64) Scope {
	return Scope{patientID: &patientID}
}

// Repository computes adherence statistics from the database.
type Repository struct {
	pool    *pgxpool.Pool
	meds    *medication.Repository
	intakes *intake.Repository
	logger  *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool, meds *medication.Repository, intakes *intake.Repository, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, meds: meds, intakes: intakes, logger: logger}
}

func (r *Repository) rate(ctx context.Context, query string, args ...interface{}) (*int, error) {
	var taken, total int
	err := r.pool.QueryRow(ctx, query, args...).Scan(&taken, &total)
	if err != nil {
		return nil, fmt.Errorf("adherence query: %w", err)
	}
	return Rate(taken, total), nil
}

// RateForEntry returns the all-time adherence for one medication row
// (one drug at one dose slot), or nil when nothing was ever logged.
func (r *Repository) RateForEntry(ctx context.Context, entryID int64) (*int, error) {
	return r.rate(ctx, `
		SELECT COUNT(*) FILTER (WHERE taken), COUNT(*)
		FROM medication_intake_log
		WHERE patient_med_id = $1
	`, entryID)
}

// RateForDrug returns the all-time adherence across every medication row for
// a drug within the given scope, or nil when no doses were logged.
func (r *Repository) RateForDrug(ctx context.Context, drugID int64, scope Scope) (*int, error) {
	if scope.patientID != nil {
		return r.rate(ctx, `
			SELECT COUNT(*) FILTER (WHERE l.taken), COUNT(l.log_id)
			FROM medication_intake_log l
			JOIN patient_medications m ON l.patient_med_id = m.patient_med_id
			WHERE m.drug_id = $1 AND m.user_id = $2
		`, drugID, *scope.patientID)
	}
	return r.rate(ctx, `
		SELECT COUNT(*) FILTER (WHERE l.taken), COUNT(l.log_id)
		FROM medication_intake_log l
		JOIN patient_medications m ON l.patient_med_id = m.patient_med_id
		WHERE m.drug_id = $1
	`, drugID)
}

// RateForPatient returns the all-time adherence across every medication row
// the patient has, or nil when no doses were logged.
func (r *Repository) RateForPatient(ctx context.Context, patientID int64) (*int, error) {
	return r.rate(ctx, `
		SELECT COUNT(*) FILTER (WHERE l.taken), COUNT(l.log_id)
		FROM medication_intake_log l
		JOIN patient_medications m ON l.patient_med_id = m.patient_med_id
		WHERE m.user_id = $1
	`, patientID)
}

// TodaySummary builds the patient's summary for the current day from the
// per-slot intake statuses of every medication scheduled today.
func (r *Repository) TodaySummary(ctx context.Context, patientID int64) (Summary, error) {
	now := time.Now()

	daily, err := r.meds.ListDaily(ctx, patientID)
	if err != nil {
		return Summary{}, err
	}

	statuses := make([]intake.Status, 0, len(daily))
	for _, m := range daily {
		st, err := r.intakes.TodayStatus(ctx, m.ID, now)
		if err != nil {
			return Summary{}, err
		}
		statuses = append(statuses, st)
	}

	active, err := r.meds.ListActive(ctx, patientID)
	if err != nil {
		return Summary{}, err
	}

	return Summarize(statuses, len(active)), nil
}
