package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/domain/medication"
	"github.com/medipal/medtrack/internal/observability/metrics"
)

// MedicationHandler handles medication store endpoints
type MedicationHandler struct {
	repo    *medication.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMedicationHandler creates a new handler
func NewMedicationHandler(repo *medication.Repository, m *metrics.Metrics, logger *zap.Logger) *MedicationHandler {
	return &MedicationHandler{repo: repo, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *MedicationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	return r
}

// CreateMedicationRequest is the request body for inserting a medication
type CreateMedicationRequest struct {
	PatientID    int64      `json:"patient_id"`
	DrugID       int64      `json:"drug_id"`
	Dose         string     `json:"dose"`
	Instructions string     `json:"instructions"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	PrescribedBy string     `json:"prescribed_by"`
	Timing       string     `json:"timing"`
}

// Create handles POST /medications
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("medication-handler")
	ctx, span := tracer.Start(ctx, "create_medication")
	defer span.End()

	var req CreateMedicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	timing, err := medication.ParseTiming(req.Timing)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	med := &medication.Medication{
		PatientID:    req.PatientID,
		DrugID:       req.DrugID,
		Dose:         req.Dose,
		Instructions: req.Instructions,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		PrescribedBy: req.PrescribedBy,
		Timing:       timing,
	}

	if err := h.repo.Insert(ctx, med); err != nil {
		h.logger.Error("insert failed", zap.Error(err))
		jsonError(w, "failed to insert medication", http.StatusInternalServerError)
		return
	}

	span.SetAttributes(attribute.Int64("patient_med_id", med.ID))
	h.metrics.MedicationsInserted.Inc()

	writeJSON(w, http.StatusCreated, med)
}

// Get handles GET /medications/{id}
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid medication id", http.StatusBadRequest)
		return
	}

	med, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, medication.ErrNotFound) {
			jsonError(w, "medication not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load medication", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"medication": med,
		"status":     med.StatusOn(time.Now()),
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateMedicationRequest is the request body for updating a medication
type UpdateMedicationRequest struct {
	Dose         string     `json:"dose"`
	Instructions string     `json:"instructions"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	PrescribedBy string     `json:"prescribed_by"`
	Timing       string     `json:"timing"`
}

// Update handles PUT /medications/{id}
func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid medication id", http.StatusBadRequest)
		return
	}

	var req UpdateMedicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	timing, err := medication.ParseTiming(req.Timing)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.repo.Update(r.Context(), id, req.Dose, req.Instructions, req.StartDate, req.EndDate, req.PrescribedBy, timing)
	if err != nil {
		if errors.Is(err, medication.ErrNotFound) {
			jsonError(w, "medication not found", http.StatusNotFound)
			return
		}
		h.logger.Error("update failed", zap.Error(err))
		jsonError(w, "failed to update medication", http.StatusInternalServerError)
		return
	}

	med, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		jsonError(w, "failed to load medication", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// List handles GET /medications?patient_id=N&view=V.
// Views: by-drug (default, one row per drug), active, inactive (both
// deduplicated per drug), entries (every row), daily (today's schedule).
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	patientID, ok, err := queryID(r, "patient_id")
	if err != nil || !ok {
		jsonError(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	view := r.URL.Query().Get("view")
	if view == "" {
		view = "by-drug"
	}

	var meds []*medication.Medication
	switch view {
	case "by-drug":
		meds, err = h.repo.ListByDrug(ctx, patientID)
	case "active":
		meds, err = h.repo.ListActive(ctx, patientID)
	case "inactive":
		meds, err = h.repo.ListInactive(ctx, patientID)
	case "entries":
		meds, err = h.repo.ListAllEntries(ctx, patientID)
	case "daily":
		meds, err = h.repo.ListDaily(ctx, patientID)
	default:
		jsonError(w, "unknown view "+view, http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("list failed", zap.String("view", view), zap.Error(err))
		jsonError(w, "failed to list medications", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	items := make([]map[string]interface{}, 0, len(meds))
	for _, m := range meds {
		items = append(items, map[string]interface{}{
			"medication": m,
			"status":     m.StatusOn(now),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"view": view, "medications": items})
}
