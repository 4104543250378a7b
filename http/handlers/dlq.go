package handlers

import (
	"net/http"
	"strings"

	resp "enrollment-crm/http/response"
	"enrollment-crm/utils"
)

// GetDLQMessages retrieves unresolved DLQ messages
// GET /api/dlq/messages?limit=50
func (h *Handler) GetDLQMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.DLQ.List(r.Context(), utils.ParseLimit(r, 50))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "DLQ messages retrieved", map[string]interface{}{
		"count": len(messages),
		"data":  messages,
	})
}

// RetryDLQMessage replays a specific DLQ message
// POST /api/dlq/messages/{id}/retry
func (h *Handler) RetryDLQMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")
	ok, err := h.DLQ.Retry(r.Context(), messageID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	message := "Message retried successfully"
	if !ok {
		message = "Message retry failed, it stays in the DLQ"
	}
	resp.SuccessResponse(w, http.StatusOK, message, map[string]interface{}{
		"messageId": messageID,
		"resolved":  ok,
	})
}

// ResolveDLQMessage marks a DLQ message as resolved
// POST /api/dlq/messages/{id}/resolve
func (h *Handler) ResolveDLQMessage(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("id")

	var req struct {
		Notes string `json:"notes"`
	}
	if err := utils.DecodeJSONRequest(r, &req); err != nil && !isEmptyBody(err) {
		respondError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Notes) == "" {
		req.Notes = "Manually resolved"
	}

	if err := h.DLQ.Resolve(r.Context(), messageID, req.Notes); err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Message marked as resolved", map[string]interface{}{
		"messageId": messageID,
	})
}

// GetDLQStats retrieves statistics about DLQ messages
// GET /api/dlq/stats
func (h *Handler) GetDLQStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.DLQ.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "DLQ statistics", stats)
}
