package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/api/middleware"
	"github.com/medipal/medtrack/internal/domain/adherence"
)

// AdherenceHandler handles adherence statistics endpoints
type AdherenceHandler struct {
	repo   *adherence.Repository
	logger *zap.Logger
}

// NewAdherenceHandler creates a new handler
func NewAdherenceHandler(repo *adherence.Repository, logger *zap.Logger) *AdherenceHandler {
	return &AdherenceHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes
func (h *AdherenceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/entries/{id}", h.ForEntry)
	r.Get("/drugs/{id}", h.ForDrug)
	r.Get("/patients/{id}", h.ForPatient)
	r.Get("/today-summary", h.TodaySummary)
	return r
}

// rateResponse renders a nilable rate; rate is null when no doses were
// ever logged, which the UI shows as "no data" rather than 0%.
func (h *AdherenceHandler) rateResponse(w http.ResponseWriter, rate *int, err error) {
	if err != nil {
		h.logger.Error("adherence query failed", zap.Error(err))
		jsonError(w, "failed to compute adherence", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*int{"rate": rate})
}

// ForEntry handles GET /adherence/entries/{id}
func (h *AdherenceHandler) ForEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid entry id", http.StatusBadRequest)
		return
	}
	rate, err := h.repo.RateForEntry(r.Context(), id)
	h.rateResponse(w, rate, err)
}

// ForDrug handles GET /adherence/drugs/{id}. Without a patient_id query
// parameter the rate spans every patient on the drug.
func (h *AdherenceHandler) ForDrug(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid drug id", http.StatusBadRequest)
		return
	}

	scope := adherence.ScopeAllPatients()
	if patientID, ok, err := queryID(r, "patient_id"); err != nil {
		jsonError(w, "invalid patient_id", http.StatusBadRequest)
		return
	} else if ok {
		scope = adherence.ScopePatient(patientID)
	}

	rate, err := h.repo.RateForDrug(r.Context(), id, scope)
	h.rateResponse(w, rate, err)
}

// ForPatient handles GET /adherence/patients/{id}
func (h *AdherenceHandler) ForPatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid patient id", http.StatusBadRequest)
		return
	}
	rate, err := h.repo.RateForPatient(r.Context(), id)
	h.rateResponse(w, rate, err)
}

// TodaySummary handles GET /adherence/today-summary for the acting patient.
func (h *AdherenceHandler) TodaySummary(w http.ResponseWriter, r *http.Request) {
	patientID, ok := middleware.GetActorID(r.Context())
	if !ok {
		jsonError(w, "missing actor", http.StatusUnauthorized)
		return
	}

	summary, err := h.repo.TodaySummary(r.Context(), patientID)
	if err != nil {
		h.logger.Error("today summary failed", zap.Error(err))
		jsonError(w, "failed to compute today summary", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
