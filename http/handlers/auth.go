package handlers

import (
	"net/http"

	"enrollment-crm/http/middleware"
	resp "enrollment-crm/http/response"
	"enrollment-crm/services"
	"enrollment-crm/utils"
)

// Login exchanges credentials for a session token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	session, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Logged in", session)
}

// CurrentSession returns the user behind the bearer token.
// GET /api/auth/session
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	resp.SuccessResponse(w, http.StatusOK, "", currentUser(r))
}

// Logout revokes the bearer token.
// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Logged out", nil)
}
