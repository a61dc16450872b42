package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/domain/medication"
	"github.com/medipal/medtrack/internal/infrastructure/postgres"
	"github.com/medipal/medtrack/internal/infrastructure/redpanda"
)

// Repository provides persistence for the intake log.
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

// Log records one intake event and writes an intake.logged outbox entry in
// the same transaction.
func (r *Repository) Log(ctx context.Context, entryID int64, taken bool, at time.Time) (*Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	e := &Entry{MedicationEntryID: entryID, Taken: taken, TakenTime: at}
	err = tx.QueryRow(ctx, `
		INSERT INTO medication_intake_log (patient_med_id, taken, taken_time)
		VALUES ($1, $2, $3)
		RETURNING log_id
	`, entryID, taken, at).Scan(&e.ID)
	if err != nil {
		return nil, fmt.Errorf("insert intake log: %w", err)
	}

	if err := r.writeEvent(ctx, tx, e); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("intake logged",
		zap.Int64("log_id", e.ID),
		zap.Int64("patient_med_id", entryID),
		zap.Bool("taken", taken))
	return e, nil
}

// LogBulkMissed inserts missed entries for the given medication rows with a
// single timestamp, all in one transaction.
func (r *Repository) LogBulkMissed(ctx context.Context, entryIDs []int64, at time.Time) error {
	if len(entryIDs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range entryIDs {
		e := &Entry{MedicationEntryID: id, Taken: false, TakenTime: at}
		err := tx.QueryRow(ctx, `
			INSERT INTO medication_intake_log (patient_med_id, taken, taken_time)
			VALUES ($1, FALSE, $2)
			RETURNING log_id
		`, id, at).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("insert missed log for %d: %w", id, err)
		}
		if err := r.writeEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("bulk missed logged", zap.Int("count", len(entryIDs)))
	return nil
}

// MissedForDay backfills missed entries for every medication row active on
// the given day that has no log entry that day, stamped at 23:59:59. It
// returns the number of rows inserted. Safe to rerun: already-logged rows
// are skipped.
func (r *Repository) MissedForDay(ctx context.Context, patientID int64, day time.Time) (int, error) {
	d := medication.DateOf(day)

	rows, err := r.pool.Query(ctx, `
		SELECT m.patient_med_id
		FROM patient_medications m
		WHERE m.user_id = $1
		  AND m.start_date <= $2
		  AND (m.end_date IS NULL OR m.end_date >= $2)
		  AND NOT EXISTS (
			SELECT 1 FROM medication_intake_log l
			WHERE l.patient_med_id = m.patient_med_id
			  AND l.taken_time::date = $2::date
		  )
	`, patientID, d)
	if err != nil {
		return 0, fmt.Errorf("find unlogged medications: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	if err := r.LogBulkMissed(ctx, ids, EndOfDay(d)); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ForEntry returns every log row for a medication row, newest first.
func (r *Repository) ForEntry(ctx context.Context, entryID int64) ([]*Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT log_id, patient_med_id, taken, taken_time
		FROM medication_intake_log
		WHERE patient_med_id = $1
		ORDER BY taken_time DESC
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("list intake log: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.MedicationEntryID, &e.Taken, &e.TakenTime); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// TodayStatus returns the status of the medication row's dose on the given
// day, or StatusNone when nothing was logged.
func (r *Repository) TodayStatus(ctx context.Context, entryID int64, day time.Time) (Status, error) {
	d := medication.DateOf(day)
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT taken
		FROM medication_intake_log
		WHERE patient_med_id = $1 AND taken_time::date = $2::date
		ORDER BY taken_time DESC
		LIMIT 1
	`, entryID, d).Scan(&taken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StatusNone, nil
		}
		return StatusNone, fmt.Errorf("query today status: %w", err)
	}
	if taken {
		return StatusTaken, nil
	}
	return StatusMissed, nil
}

func (r *Repository) writeEvent(ctx context.Context, tx pgx.Tx, e *Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal intake event: %w", err)
	}
	entry := &postgres.OutboxEntry{
		AggregateID:   strconv.FormatInt(e.ID, 10),
		AggregateType: "intake_log",
		EventType:     "intake.logged",
		Payload:       payload,
		Topic:         redpanda.TopicIntakeEvents,
		MessageKey:    strconv.FormatInt(e.MedicationEntryID, 10),
	}
	return postgres.WriteEntry(ctx, tx, entry)
}
