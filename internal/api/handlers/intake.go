package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/api/middleware"
	"github.com/medipal/medtrack/internal/domain/intake"
	"github.com/medipal/medtrack/internal/observability/metrics"
)

// IntakeHandler handles intake log endpoints
type IntakeHandler struct {
	repo    *intake.Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewIntakeHandler creates a new handler
func NewIntakeHandler(repo *intake.Repository, m *metrics.Metrics, logger *zap.Logger) *IntakeHandler {
	return &IntakeHandler{repo: repo, metrics: m, logger: logger}
}

// Routes returns the handler routes
func (h *IntakeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Log)
	r.Post("/missed-backfill", h.MissedBackfill)
	r.Get("/entry/{id}", h.History)
	r.Get("/entry/{id}/today", h.TodayStatus)
	return r
}

// LogBody is the request body for logging an intake event
type LogBody struct {
	MedicationEntryID int64      `json:"medication_entry_id"`
	Taken             bool       `json:"taken"`
	TakenTime         *time.Time `json:"taken_time,omitempty"`
}

// Log handles POST /intake
func (h *IntakeHandler) Log(w http.ResponseWriter, r *http.Request) {
	var body LogBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.MedicationEntryID == 0 {
		jsonError(w, "medication_entry_id is required", http.StatusBadRequest)
		return
	}

	at := time.Now()
	if body.TakenTime != nil {
		at = *body.TakenTime
	}

	entry, err := h.repo.Log(r.Context(), body.MedicationEntryID, body.Taken, at)
	if err != nil {
		h.logger.Error("log intake failed", zap.Error(err))
		jsonError(w, "failed to log intake", http.StatusInternalServerError)
		return
	}

	h.metrics.IntakeEvents.WithLabelValues(strconv.FormatBool(body.Taken)).Inc()
	writeJSON(w, http.StatusCreated, entry)
}

// MissedBackfillBody is the request body for the end-of-day missed backfill
type MissedBackfillBody struct {
	Day time.Time `json:"day"`
}

// MissedBackfill handles POST /intake/missed-backfill. The actor is the
// patient whose unlogged doses for the day are marked missed at 23:59:59.
func (h *IntakeHandler) MissedBackfill(w http.ResponseWriter, r *http.Request) {
	patientID, ok := middleware.GetActorID(r.Context())
	if !ok {
		jsonError(w, "missing actor", http.StatusUnauthorized)
		return
	}

	var body MissedBackfillBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.Day.IsZero() {
		jsonError(w, "day is required", http.StatusBadRequest)
		return
	}

	count, err := h.repo.MissedForDay(r.Context(), patientID, body.Day)
	if err != nil {
		h.logger.Error("missed backfill failed", zap.Error(err))
		jsonError(w, "failed to backfill missed intakes", http.StatusInternalServerError)
		return
	}

	h.metrics.IntakeEvents.WithLabelValues("false").Add(float64(count))
	writeJSON(w, http.StatusOK, map[string]int{"marked_missed": count})
}

// History handles GET /intake/entry/{id}
func (h *IntakeHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	entries, err := h.repo.ForEntry(r.Context(), id)
	if err != nil {
		h.logger.Error("intake history failed", zap.Error(err))
		jsonError(w, "failed to list intake history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// TodayStatus handles GET /intake/entry/{id}/today. Status is "taken",
// "missed", or null when nothing was logged today.
func (h *IntakeHandler) TodayStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	status, err := h.repo.TodayStatus(r.Context(), id, time.Now())
	if err != nil {
		h.logger.Error("today status failed", zap.Error(err))
		jsonError(w, "failed to load today status", http.StatusInternalServerError)
		return
	}

	var payload interface{}
	if status != intake.StatusNone {
		payload = string(status)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": payload})
}
