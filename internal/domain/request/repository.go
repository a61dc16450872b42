package request

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

// Repository provides persistence for medication requests. Mutations write
// outbox entries in the same transaction, so every committed decision
// eventually reaches the broker.
type Repository struct {
	pool   *pgxpool.Pool
	meds   *medication.Repository
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool, meds *medication.Repository, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, meds: meds, logger: logger}
}

const reqCols = `r.request_id, r.patient_id, r.clinician_id, r.drug_id, r.dose, r.instructions,
       r.start_date, r.end_date, r.timing, r.request_type, r.target_med_id,
       r.responded, r.approved, r.created_at, r.responded_at`

// Create validates and stores a new pending request, emitting a
// request.created event through the outbox.
func (r *Repository) Create(ctx context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO medication_requests
			(patient_id, clinician_id, drug_id, dose, instructions, start_date, end_date,
			 timing, request_type, target_med_id, responded, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, FALSE)
		RETURNING request_id, created_at
	`
	err = tx.QueryRow(ctx, query,
		req.PatientID, req.ClinicianID, req.DrugID, req.Dose, req.Instructions,
		req.StartDate, req.EndDate, string(req.Timing), string(req.Type), req.TargetMedID,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	entry := &postgres.OutboxEntry{
		AggregateID:   strconv.FormatInt(req.ID, 10),
		AggregateType: "medication_request",
		EventType:     "request.created",
		Payload:       payload,
		Topic:         redpanda.TopicMedicationRequests,
		MessageKey:    strconv.FormatInt(req.PatientID, 10),
	}
	if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("request created",
		zap.Int64("request_id", req.ID),
		zap.Int64("patient_id", req.PatientID),
		zap.String("type", string(req.Type)))
	return nil
}

// GetByID retrieves a single request with its drug and clinician names.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Request, error) {
	query := `
		SELECT ` + reqCols + `, d.name || ' ' || d.strength, c.full_name
		FROM medication_requests r
		JOIN drugs d ON r.drug_id = d.drug_id
		JOIN users c ON r.clinician_id = c.user_id
		WHERE r.request_id = $1
	`
	row := r.pool.QueryRow(ctx, query, id)

	var req Request
	var timing, reqType string
	err := row.Scan(
		&req.ID, &req.PatientID, &req.ClinicianID, &req.DrugID, &req.Dose, &req.Instructions,
		&req.StartDate, &req.EndDate, &timing, &reqType, &req.TargetMedID,
		&req.Responded, &req.Approved, &req.CreatedAt, &req.RespondedAt,
		&req.DrugName, &req.ClinicianName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	req.Timing = medication.Timing(timing)
	req.Type = Type(reqType)
	return &req, nil
}

// PendingForPatient returns the patient's unresponded requests, newest first.
func (r *Repository) PendingForPatient(ctx context.Context, patientID int64) ([]*Request, error) {
	query := `
		SELECT ` + reqCols + `, d.name || ' ' || d.strength, c.full_name
		FROM medication_requests r
		JOIN drugs d ON r.drug_id = d.drug_id
		JOIN users c ON r.clinician_id = c.user_id
		WHERE r.patient_id = $1 AND r.responded = FALSE
		ORDER BY r.created_at DESC
	`
	return r.listWithNames(ctx, query, patientID)
}

// AllForClinician returns every request the clinician has authored, newest
// first, across all lifecycle states.
func (r *Repository) AllForClinician(ctx context.Context, clinicianID int64) ([]*Request, error) {
	query := `
		SELECT ` + reqCols + `, d.name || ' ' || d.strength, p.full_name
		FROM medication_requests r
		JOIN drugs d ON r.drug_id = d.drug_id
		JOIN users p ON r.patient_id = p.user_id
		WHERE r.clinician_id = $1
		ORDER BY r.created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, clinicianID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var reqs []*Request
	for rows.Next() {
		var req Request
		var timing, reqType string
		err := rows.Scan(
			&req.ID, &req.PatientID, &req.ClinicianID, &req.DrugID, &req.Dose, &req.Instructions,
			&req.StartDate, &req.EndDate, &timing, &reqType, &req.TargetMedID,
			&req.Responded, &req.Approved, &req.CreatedAt, &req.RespondedAt,
			&req.DrugName, &req.PatientName,
		)
		if err != nil {
			return nil, err
		}
		req.Timing = medication.Timing(timing)
		req.Type = Type(reqType)
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

func (r *Repository) listWithNames(ctx context.Context, query string, args ...interface{}) ([]*Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var reqs []*Request
	for rows.Next() {
		var req Request
		var timing, reqType string
		err := rows.Scan(
			&req.ID, &req.PatientID, &req.ClinicianID, &req.DrugID, &req.Dose, &req.Instructions,
			&req.StartDate, &req.EndDate, &timing, &reqType, &req.TargetMedID,
			&req.Responded, &req.Approved, &req.CreatedAt, &req.RespondedAt,
			&req.DrugName, &req.ClinicianName,
		)
		if err != nil {
			return nil, err
		}
		req.Timing = medication.Timing(timing)
		req.Type = Type(reqType)
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

// Respond records the patient's decision in a single transaction. The update
// is guarded on responded = FALSE, so exactly one response wins; a losing
// second response gets ErrAlreadyResponded. When the request is approved the
// same transaction writes a medication.approvals outbox entry carrying the
// full request snapshot, and every decision writes an audit entry.
func (r *Repository) Respond(ctx context.Context, requestID int64, approved bool) (*Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE medication_requests r
		SET responded = TRUE, approved = $2, responded_at = NOW()
		FROM drugs d, users c
		WHERE r.request_id = $1 AND r.responded = FALSE
		  AND d.drug_id = r.drug_id AND c.user_id = r.clinician_id
		RETURNING ` + reqCols + `, d.name || ' ' || d.strength, c.full_name
	`
	row := tx.QueryRow(ctx, query, requestID, approved)

	var req Request
	var timing, reqType string
	err = row.Scan(
		&req.ID, &req.PatientID, &req.ClinicianID, &req.DrugID, &req.Dose, &req.Instructions,
		&req.StartDate, &req.EndDate, &timing, &reqType, &req.TargetMedID,
		&req.Responded, &req.Approved, &req.CreatedAt, &req.RespondedAt,
		&req.DrugName, &req.ClinicianName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing request from a lost race.
			var exists bool
			if chkErr := r.pool.QueryRow(ctx,
				"SELECT EXISTS(SELECT 1 FROM medication_requests WHERE request_id = $1)",
				requestID).Scan(&exists); chkErr == nil && exists {
				return nil, ErrAlreadyResponded
			}
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("respond to request: %w", err)
	}
	req.Timing = medication.Timing(timing)
	req.Type = Type(reqType)

	payload, err := json.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if approved {
		entry := &postgres.OutboxEntry{
			AggregateID:   strconv.FormatInt(req.ID, 10),
			AggregateType: "medication_request",
			EventType:     "request.approved",
			Payload:       payload,
			Topic:         redpanda.TopicMedicationApprovals,
			MessageKey:    strconv.FormatInt(req.PatientID, 10),
		}
		if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	decision := "rejected"
	if approved {
		decision = "accepted"
	}
	audit, err := json.Marshal(map[string]interface{}{
		"request_id": req.ID,
		"patient_id": req.PatientID,
		"decision":   decision,
		"decided_at": req.RespondedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit: %w", err)
	}
	auditEntry := &postgres.OutboxEntry{
		AggregateID:   strconv.FormatInt(req.ID, 10),
		AggregateType: "medication_request",
		EventType:     "request.responded",
		Payload:       audit,
		Topic:         redpanda.TopicAuditTrail,
		MessageKey:    strconv.FormatInt(req.PatientID, 10),
	}
	if err := postgres.WriteEntry(ctx, tx, auditEntry); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	r.logger.Info("request responded",
		zap.Int64("request_id", req.ID),
		zap.String("decision", decision))
	return &req, nil
}

// Apply materializes an accepted request into the medication store: an add
// inserts a new row, an edit overwrites the target row's mutable fields.
// It is invoked by the apply worker after the approval event clears the
// idempotency inbox, so a redelivered event never applies twice.
func (r *Repository) Apply(ctx context.Context, req *Request) (*medication.Medication, error) {
	if req.State() != StateAccepted {
		return nil, fmt.Errorf("cannot apply request %d in state %s", req.ID, req.State())
	}

	switch req.Type {
	case TypeAdd:
		med := &medication.Medication{
			PatientID:    req.PatientID,
			DrugID:       req.DrugID,
			Dose:         req.Dose,
			Instructions: req.Instructions,
			StartDate:    req.StartDate,
			EndDate:      req.EndDate,
			PrescribedBy: req.ClinicianName,
			Timing:       req.Timing,
		}
		if err := r.meds.Insert(ctx, med); err != nil {
			return nil, err
		}
		return med, nil

	case TypeEdit:
		if req.TargetMedID == nil {
			return nil, ErrMissingTarget
		}
		err := r.meds.Update(ctx, *req.TargetMedID,
			req.Dose, req.Instructions, req.StartDate, req.EndDate,
			req.ClinicianName, req.Timing)
		if err != nil {
			return nil, err
		}
		return r.meds.GetByID(ctx, *req.TargetMedID)

	default:
		return nil, fmt.Errorf("invalid request type %q", req.Type)
	}
}

// ApprovedUnapplied returns approved requests whose medication change has
// not been materialized yet, oldest first. The grace period keeps requests
// still in flight through the broker out of the result.
func (r *Repository) ApprovedUnapplied(ctx context.Context, grace time.Duration) ([]*Request, error) {
	cutoff := time.Now().Add(-grace)
	query := `
		SELECT ` + reqCols + `, d.name || ' ' || d.strength, c.full_name
		FROM medication_requests r
		JOIN drugs d ON r.drug_id = d.drug_id
		JOIN users c ON r.clinician_id = c.user_id
		WHERE r.responded = TRUE AND r.approved = TRUE
		  AND r.applied_at IS NULL AND r.responded_at <= $1
		ORDER BY r.responded_at
	`
	return r.listWithNames(ctx, query, cutoff)
}

// MarkApplied stamps the applied_at column after the worker has materialized
// the change, and emits a medication.applied event.
func (r *Repository) MarkApplied(ctx context.Context, requestID int64, med *medication.Medication) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"UPDATE medication_requests SET applied_at = NOW() WHERE request_id = $1",
		requestID); err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"request_id":     requestID,
		"patient_med_id": med.ID,
		"patient_id":     med.PatientID,
		"drug_id":        med.DrugID,
	})
	if err != nil {
		return fmt.Errorf("marshal applied event: %w", err)
	}
	entry := &postgres.OutboxEntry{
		AggregateID:   strconv.FormatInt(requestID, 10),
		AggregateType: "medication_request",
		EventType:     "request.applied",
		Payload:       payload,
		Topic:         redpanda.TopicMedicationApplied,
		MessageKey:    strconv.FormatInt(med.PatientID, 10),
	}
	if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
