package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medipal/medtrack/internal/domain/drug"
)

// DrugHandler handles drug catalog endpoints
type DrugHandler struct {
	repo   *drug.Repository
	logger *zap.Logger
}

// NewDrugHandler creates a new handler
func NewDrugHandler(repo *drug.Repository, logger *zap.Logger) *DrugHandler {
	return &DrugHandler{repo: repo, logger: logger}
}

// Routes returns the handler routes
func (h *DrugHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	return r
}

// List handles GET /drugs, the catalog for the add-medication picker.
func (h *DrugHandler) List(w http.ResponseWriter, r *http.Request) {
	drugs, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("list drugs failed", zap.Error(err))
		jsonError(w, "failed to list drugs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drugs": drugs})
}

// Get handles GET /drugs/{id}
func (h *DrugHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		jsonError(w, "invalid drug id", http.StatusBadRequest)
		return
	}

	d, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, drug.ErrNotFound) {
			jsonError(w, "drug not found", http.StatusNotFound)
			return
		}
		jsonError(w, "failed to load drug", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"drug":         d,
		"display_name": d.DisplayName(),
	})
}
