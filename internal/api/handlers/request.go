package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/api/middleware"
	"github.com/medipal/medtrack/internal/domain/medication"
	"github.com/medipal/medtrack/internal/domain/request"
	"github.com/medipal/medtrack/internal/observability/metrics"
)

// RequestHandler handles medication request workflow endpoints
type RequestHandler struct {
	repo    *request.Repository
	meds    *medication.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRequestHandler creates a new handler
func NewRequestHandler(repo *request.Repository, meds *medication.Repository, m *metrics.Metrics, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{repo: repo, meds: meds, metrics: m, logger: logger}
}

// CreateRequestBody is the request body for proposing a medication change
type CreateRequestBody struct {
	PatientID    int64      `json:"patient_id"`
	DrugID       int64      `json:"drug_id"`
	Dose         string     `json:"dose"`
	Instructions string     `json:"instructions"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Timing       string     `json:"timing"`
	Type         string     `json:"request_type"`
	TargetMedID  *int64     `json:"target_medication_id,omitempty"`
}

// Create handles POST /requests. The acting clinician is taken from the
// request context, never from the body.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("request-handler")
	ctx, span := tracer.Start(ctx, "create_request")
	defer span.End()

	clinicianID, ok := middleware.GetActorID(ctx)
	if !ok {
		jsonError(w, "missing actor", http.StatusUnauthorized)
		return
	}

	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	req := &request.Request{
		PatientID:    body.PatientID,
		ClinicianID:  clinicianID,
		DrugID:       body.DrugID,
		Dose:         body.Dose,
		Instructions: body.Instructions,
		StartDate:    body.StartDate,
		EndDate:      body.EndDate,
		Timing:       medication.Timing(body.Timing),
		Type:         request.Type(body.Type),
		TargetMedID:  body.TargetMedID,
	}

	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.Create(ctx, req); err != nil {
		h.logger.Error("create request failed", zap.Error(err))
		jsonError(w, "failed to create request", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.Int64("request_id", req.ID))
	h.metrics.RequestsCreated.Inc()

	writeJSON(w, http.StatusCreated, req)
}

// ListPending handles GET /requests/pending. The actor is the patient whose
// inbox is listed.
func (h *RequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	patientID, ok := middleware.GetActorID(r.Context())
	if !ok {
		jsonError(w, "missing actor", http.StatusUnauthorized)
		return
	}

	reqs, err := h.repo.PendingForPatient(r.Context(), patientID)
	if err != nil {
		h.logger.Error("list pending failed", zap.Error(err))
		jsonError(w, "failed to list requests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": reqs})
}

// ListForClinician handles GET /requests. The actor is the clinician whose
// authored requests are listed, grouped by state.
func (h *RequestHandler) ListForClinician(w http.ResponseWriter, r *http.Request) {
	clinicianID, ok := middleware.GetActorID(r.Context())
	if !ok {
		jsonError(w, "missing actor", http.StatusUnauthorized)
		return
	}

	reqs, err := h.repo.AllForClinician(r.Context(), clinicianID)
	if err != nil {
		h.logger.Error("list for clinician failed", zap.Error(err))
		jsonError(w, "failed to list requests", http.StatusInternalServerError)
		return
	}

	pending, accepted, rejected := request.Partition(reqs)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":  pending,
		"accepted": accepted,
		"rejected": rejected,
	})
}

// Get handles GET /requests/{id}
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	req, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			jsonError(w, "request not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load request", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request": req,
		"state":   req.State(),
	})
}

// Diff handles GET /requests/{id}/diff. For edit requests it returns the
// changed fields against the current medication row; add requests and edits
// whose target vanished return an empty diff.
func (h *RequestHandler) Diff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	req, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			jsonError(w, "request not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load request", http.StatusInternalServerError)
		return
	}

	var current *medication.Medication
	if req.Type == request.TypeEdit && req.TargetMedID != nil {
		current, err = h.meds.GetByID(r.Context(), *req.TargetMedID)
		if err != nil && !errors.Is(err, medication.ErrNotFound) {
			jsonError(w, "failed to load medication", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"changes": req.Diff(current)})
}

// RespondBody is the request body for the patient's decision
type RespondBody struct {
	Approved bool `json:"approved"`
}

// Respond handles POST /requests/{id}/respond. A request accepts exactly one
// response; a second one gets 409.
func (h *RequestHandler) Respond(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("request-handler")
	ctx, span := tracer.Start(ctx, "respond_request")
	defer span.End()

	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid request id", http.StatusBadRequest)
		return
	}

	patientID, ok := middleware.GetActorID(ctx)
	if !ok {
		jsonError(w, "missing actor", http.StatusUnauthorized)
		return
	}

	var body RespondBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			jsonError(w, "request not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load request", http.StatusInternalServerError)
		return
	}
	if existing.PatientID != patientID {
		jsonError(w, "request belongs to another patient", http.StatusForbidden)
		return
	}

	req, err := h.repo.Respond(ctx, id, body.Approved)
	if err != nil {
		switch {
		case errors.Is(err, request.ErrAlreadyResponded):
			jsonError(w, "request already responded", http.StatusConflict)
		case errors.Is(err, request.ErrNotFound):
			jsonError(w, "request not found", http.StatusNotFound)
		default:
			h.logger.Error("respond failed", zap.Error(err))
			jsonError(w, "failed to respond", http.StatusInternalServerError)
		}
		return
	}

	decision := "rejected"
	if body.Approved {
		decision = "accepted"
	}
	span.SetAttributes(attribute.String("decision", decision))
	h.metrics.RequestsResponded.WithLabelValues(decision).Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request": req,
		"state":   req.State(),
	})
}
