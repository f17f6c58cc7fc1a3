// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/handoff-engine/internal/handoff"
	"github.com/capitalize-ai/handoff-engine/internal/middleware"
	"github.com/capitalize-ai/handoff-engine/internal/model"
	"github.com/capitalize-ai/handoff-engine/internal/service"
	"github.com/capitalize-ai/handoff-engine/pkg/logger"
)

// AuditMirror reads the copy of the audit log published to the message stream.
type AuditMirror interface {
	ReadAudit(ctx context.Context, conversationID string, limit int) ([]model.PolicyLogEntry, error)
}

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	service *service.ConversationService
	mirror  AuditMirror
	logger  *logger.Logger
}

// NewConversationHandler creates a new conversation handler. mirror may be nil.
func NewConversationHandler(svc *service.ConversationService, mirror AuditMirror, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		service: svc,
		mirror:  mirror,
		logger:  log,
	}
}

// conversationID reads and validates the {id} route parameter.
func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// Inbound handles POST /api/v1/conversations/{id}/inbound
func (h *ConversationHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.InboundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidatePersonaID(req.PersonaID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := h.service.HandleInbound(r.Context(), id, req.PersonaID, req.FromID, req.Text)
	if err != nil {
		h.writeServiceError(w, r, "failed to handle inbound message", err)
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, model.InboundResponse{
		Reply:        reply.Text,
		Kind:         reply.Kind,
		DelaySeconds: reply.Delay.Seconds(),
	})
}

// TakeOver handles POST /api/v1/conversations/{id}/takeover
func (h *ConversationHandler) TakeOver(w http.ResponseWriter, r *http.Request) {
	h.handoff(w, r, h.service.TakeOver)
}

// Return handles POST /api/v1/conversations/{id}/return
func (h *ConversationHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.handoff(w, r, h.service.ReturnToAutomated)
}

func (h *ConversationHandler) handoff(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, conversationID, operator string) (*service.HandoffResult, error),
) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	result, err := apply(r.Context(), id, middleware.GetOperator(r.Context()))
	if errors.Is(err, handoff.ErrStateConflict) && result != nil {
		writeJSON(w, http.StatusConflict, result)
		return
	}
	if err != nil {
		h.writeServiceError(w, r, "failed to apply handoff", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Outbound handles POST /api/v1/conversations/{id}/outbound
func (h *ConversationHandler) Outbound(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.OutboundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.service.RecordAutomatedSend(r.Context(), id, req.PersonaID, req.Text)
	if err != nil {
		h.writeServiceError(w, r, "failed to record outbound message", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HumanReply handles POST /api/v1/conversations/{id}/human-reply
func (h *ConversationHandler) HumanReply(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.HumanReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	st, err := h.service.RecordHumanReply(r.Context(), id, middleware.GetOperator(r.Context()), req.Text)
	if err != nil {
		h.writeServiceError(w, r, "failed to record human reply", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	st, err := h.service.State(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "failed to get conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Audit handles GET /api/v1/conversations/{id}/audit
func (h *ConversationHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	entries, err := h.service.AuditLog(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "failed to get audit log", err)
		return
	}
	if entries == nil {
		entries = []model.PolicyLogEntry{}
	}
	writeJSON(w, http.StatusOK, model.ListAuditResponse{
		ConversationID: id,
		Entries:        entries,
		Total:          len(entries),
	})
}

// AuditMirror handles GET /api/v1/conversations/{id}/audit/mirror
func (h *ConversationHandler) AuditMirror(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	if h.mirror == nil {
		writeError(w, http.StatusNotFound, "audit mirror not configured")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	entries, err := h.mirror.ReadAudit(r.Context(), id, limit)
	if err != nil {
		h.writeServiceError(w, r, "failed to read audit mirror", err)
		return
	}
	if entries == nil {
		entries = []model.PolicyLogEntry{}
	}
	writeJSON(w, http.StatusOK, model.ListAuditResponse{
		ConversationID: id,
		Entries:        entries,
		Total:          len(entries),
	})
}

func (h *ConversationHandler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, service.ErrUnknownPersona):
		writeError(w, http.StatusNotFound, "persona not found")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDispatcherClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		ctx := r.Context()
		h.logger.WithContext(middleware.GetCorrelationID(ctx), middleware.GetOperator(ctx)).
			Error(msg, zap.String("conversation_id", chi.URLParam(r, "id")), zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
}
