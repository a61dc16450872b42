// Package integration provides integration tests for the medication workflow.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medipal/medtrack/internal/domain/adherence"
	"github.com/medipal/medtrack/internal/domain/intake"
	"github.com/medipal/medtrack/internal/domain/medication"
	"github.com/medipal/medtrack/internal/domain/request"
	"github.com/medipal/medtrack/internal/domain/user"
	"github.com/medipal/medtrack/pkg/idempotency"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatalf("database connection failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool, name string, role user.Role) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO users (full_name, role) VALUES ($1, $2) RETURNING user_id
	`, name, int(role)).Scan(&id)
	if err != nil {
		t.Fatalf("seed user failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM users WHERE user_id = $1", id)
	})
	return id
}

func seedDrug(t *testing.T, pool *pgxpool.Pool, name, strength string) int64 {
	t.Helper()
	ctx := context.Background()
	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO drugs (name, strength, form) VALUES ($1, $2, 'tablet') RETURNING drug_id
	`, name, strength).Scan(&id)
	if err != nil {
		t.Fatalf("seed drug failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM drugs WHERE drug_id = $1", id)
	})
	return id
}

func TestRequestWorkflow(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	patientID := seedUser(t, pool, "Workflow Patient", user.RolePatient)
	clinicianID := seedUser(t, pool, "Workflow Clinician", user.RoleClinician)
	drugID := seedDrug(t, pool, "Lisinopril", "10mg")

	medRepo := medication.NewRepository(pool, nil)
	reqRepo := request.NewRepository(pool, medRepo, nil)

	req := &request.Request{
		PatientID:    patientID,
		ClinicianID:  clinicianID,
		DrugID:       drugID,
		Dose:         "10mg",
		Instructions: "Take with water",
		StartDate:    time.Now(),
		Timing:       medication.TimingMorning,
		Type:         request.TypeAdd,
	}
	if err := reqRepo.Create(ctx, req); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM medication_requests WHERE request_id = $1", req.ID)
	})

	// Shows up in the patient's pending list
	pending, err := reqRepo.PendingForPatient(ctx, patientID)
	if err != nil {
		t.Fatalf("pending list failed: %v", err)
	}
	found := false
	for _, p := range pending {
		if p.ID == req.ID {
			found = true
			if p.State() != request.StatePending {
				t.Errorf("expected pending state, got %s", p.State())
			}
		}
	}
	if !found {
		t.Fatal("created request not in pending list")
	}

	// Patient approves
	responded, err := reqRepo.Respond(ctx, req.ID, true)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if responded.State() != request.StateAccepted {
		t.Errorf("expected accepted state, got %s", responded.State())
	}
	if responded.DrugName == "" {
		t.Error("expected drug name on responded request")
	}

	// Second response loses
	if _, err := reqRepo.Respond(ctx, req.ID, false); !errors.Is(err, request.ErrAlreadyResponded) {
		t.Errorf("expected ErrAlreadyResponded, got %v", err)
	}

	// Apply creates the medication entry
	med, err := reqRepo.Apply(ctx, responded)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM patient_medications WHERE patient_med_id = $1", med.ID)
	})
	if med.PatientID != patientID || med.DrugID != drugID {
		t.Errorf("applied medication has wrong identity: %+v", med)
	}

	if err := reqRepo.MarkApplied(ctx, req.ID, med); err != nil {
		t.Fatalf("mark applied failed: %v", err)
	}

	active, err := medRepo.ListActive(ctx, patientID)
	if err != nil {
		t.Fatalf("active list failed: %v", err)
	}
	found = false
	for _, m := range active {
		if m.ID == med.ID {
			found = true
		}
	}
	if !found {
		t.Error("applied medication not in active list")
	}
}

func TestRejectedRequestIsNotApplied(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	patientID := seedUser(t, pool, "Reject Patient", user.RolePatient)
	clinicianID := seedUser(t, pool, "Reject Clinician", user.RoleClinician)
	drugID := seedDrug(t, pool, "Metformin", "500mg")

	medRepo := medication.NewRepository(pool, nil)
	reqRepo := request.NewRepository(pool, medRepo, nil)

	req := &request.Request{
		PatientID:   patientID,
		ClinicianID: clinicianID,
		DrugID:      drugID,
		Dose:        "500mg",
		StartDate:   time.Now(),
		Timing:      medication.TimingEvening,
		Type:        request.TypeAdd,
	}
	if err := reqRepo.Create(ctx, req); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM medication_requests WHERE request_id = $1", req.ID)
	})

	responded, err := reqRepo.Respond(ctx, req.ID, false)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}
	if responded.State() != request.StateRejected {
		t.Errorf("expected rejected state, got %s", responded.State())
	}

	if _, err := reqRepo.Apply(ctx, responded); err == nil {
		t.Error("expected apply of a rejected request to fail")
	}

	active, err := medRepo.ListActive(ctx, patientID)
	if err != nil {
		t.Fatalf("active list failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("rejected request produced %d active medications", len(active))
	}
}

func TestIntakeAndAdherence(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	patientID := seedUser(t, pool, "Adherence Patient", user.RolePatient)
	drugID := seedDrug(t, pool, "Atorvastatin", "20mg")

	medRepo := medication.NewRepository(pool, nil)
	intakeRepo := intake.NewRepository(pool, nil)
	adhRepo := adherence.NewRepository(pool, medRepo, intakeRepo, nil)

	med := &medication.Medication{
		PatientID:    patientID,
		DrugID:       drugID,
		Dose:         "20mg",
		StartDate:    time.Now().AddDate(0, 0, -7),
		PrescribedBy: "Dr. Seed",
		Timing:       medication.TimingEvening,
	}
	if err := medRepo.Insert(ctx, med); err != nil {
		t.Fatalf("insert medication failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM medication_intake_log WHERE patient_med_id = $1", med.ID)
		pool.Exec(ctx, "DELETE FROM patient_medications WHERE patient_med_id = $1", med.ID)
	})

	now := time.Now()
	if _, err := intakeRepo.Log(ctx, med.ID, true, now.AddDate(0, 0, -2)); err != nil {
		t.Fatalf("log intake failed: %v", err)
	}
	if _, err := intakeRepo.Log(ctx, med.ID, false, now.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("log intake failed: %v", err)
	}

	rate, err := adhRepo.RateForEntry(ctx, med.ID)
	if err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if rate == nil {
		t.Fatal("expected a rate, got no data")
	}
	if *rate != 50 {
		t.Errorf("expected 50%%, got %d", *rate)
	}

	status, err := intakeRepo.TodayStatus(ctx, med.ID, now)
	if err != nil {
		t.Fatalf("today status failed: %v", err)
	}
	if status != intake.StatusNone {
		t.Errorf("expected no status today, got %q", status)
	}

	if _, err := intakeRepo.Log(ctx, med.ID, true, now); err != nil {
		t.Fatalf("log intake failed: %v", err)
	}
	summary, err := adhRepo.TodaySummary(ctx, patientID)
	if err != nil {
		t.Fatalf("today summary failed: %v", err)
	}
	if summary.Taken != 1 || summary.Total != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.CompletionRate != 100 {
		t.Errorf("expected 100%% completion, got %d", summary.CompletionRate)
	}
}

func TestRedeliveredApprovalIsAppliedOnce(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	inbox := idempotency.NewInbox(pool, idempotency.DefaultInboxConfig(), nil)

	key := idempotency.GenerateKey("apply-request", time.Now().UnixNano())
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM inbox WHERE idempotency_key = $1", key)
	})

	payload := json.RawMessage(`{"request_id": 1}`)
	calls := 0
	handler := func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"applied": true}`), nil
	}

	first, err := inbox.Process(ctx, key, "apply-request", payload, handler)
	if err != nil {
		t.Fatalf("first process failed: %v", err)
	}
	if !first.IsNew {
		t.Error("first delivery should be new")
	}

	second, err := inbox.Process(ctx, key, "apply-request", payload, handler)
	if err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if second.IsNew {
		t.Error("redelivery should not be new")
	}
	if string(second.Result) != `{"applied": true}` {
		t.Errorf("redelivery should return the stored result, got %s", second.Result)
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}

func TestUnappliedApprovalsAreListed(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	patientID := seedUser(t, pool, "Stranded Patient", user.RolePatient)
	clinicianID := seedUser(t, pool, "Stranded Clinician", user.RoleClinician)
	drugID := seedDrug(t, pool, "Amlodipine", "5mg")

	medRepo := medication.NewRepository(pool, nil)
	reqRepo := request.NewRepository(pool, medRepo, nil)

	req := &request.Request{
		PatientID:   patientID,
		ClinicianID: clinicianID,
		DrugID:      drugID,
		Dose:        "5mg",
		StartDate:   time.Now(),
		Timing:      medication.TimingMorning,
		Type:        request.TypeAdd,
	}
	if err := reqRepo.Create(ctx, req); err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM medication_requests WHERE request_id = $1", req.ID)
	})

	responded, err := reqRepo.Respond(ctx, req.ID, true)
	if err != nil {
		t.Fatalf("respond failed: %v", err)
	}

	// Approved but never applied: the sweep must see it
	stranded, err := reqRepo.ApprovedUnapplied(ctx, 0)
	if err != nil {
		t.Fatalf("unapplied query failed: %v", err)
	}
	found := false
	for _, s := range stranded {
		if s.ID == req.ID {
			found = true
			if s.ClinicianName == "" {
				t.Error("expected clinician name on stranded request")
			}
		}
	}
	if !found {
		t.Fatal("approved request without applied_at not listed")
	}

	med, err := reqRepo.Apply(ctx, responded)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(ctx, "DELETE FROM patient_medications WHERE patient_med_id = $1", med.ID)
	})
	if err := reqRepo.MarkApplied(ctx, req.ID, med); err != nil {
		t.Fatalf("mark applied failed: %v", err)
	}

	stranded, err = reqRepo.ApprovedUnapplied(ctx, 0)
	if err != nil {
		t.Fatalf("unapplied query failed: %v", err)
	}
	for _, s := range stranded {
		if s.ID == req.ID {
			t.Error("applied request still listed as unapplied")
		}
	}
}

func TestApplyKeyIsStablePerRequest(t *testing.T) {
	key1 := idempotency.GenerateKey("apply-request", 42)
	key2 := idempotency.GenerateKey("apply-request", 42)
	key3 := idempotency.GenerateKey("apply-request", 43)
	key4 := idempotency.GenerateKey("other-handler", 42)

	if key1 != key2 {
		t.Error("same request should produce same key")
	}
	if key1 == key3 {
		t.Error("different requests should produce different keys")
	}
	if key1 == key4 {
		t.Error("different handlers should produce different keys")
	}
}
