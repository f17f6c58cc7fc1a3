package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/internal/archetype"
	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/service"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
)

// PersonaHandler handles persona endpoints.
type PersonaHandler struct {
	service *service.PersonaService
	logger  *logger.Logger
}

// NewPersonaHandler creates a new persona handler.
func NewPersonaHandler(svc *service.PersonaService, log *logger.Logger) *PersonaHandler {
	return &PersonaHandler{
		service: svc,
		logger:  log,
	}
}

// Create handles POST /api/v1/personas
func (h *PersonaHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.PersonaInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	policy, err := h.service.Create(&req)
	if err != nil {
		var verr *archetype.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error":  "invalid persona",
				"errors": verr.Errors,
			})
		case errors.Is(err, archetype.ErrPersonaExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to create persona", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create persona")
		}
		return
	}

	writeJSON(w, http.StatusCreated, policy)
}

// List handles GET /api/v1/personas
func (h *PersonaHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.List())
}

// Get handles GET /api/v1/personas/{id}
func (h *PersonaHandler) Get(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "persona not found")
		return
	}
	writeJSON(w, http.StatusOK, policy)
}
