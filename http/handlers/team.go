package handlers

import (
	"net/http"

	resp "enrollment-crm/http/response"
	"enrollment-crm/services"
	"enrollment-crm/utils"
)

// ListTeam returns every user.
// GET /api/team
func (h *Handler) ListTeam(w http.ResponseWriter, r *http.Request) {
	users, err := h.Team.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", users)
}

// CreateTeamMember adds a user.
// POST /api/team
func (h *Handler) CreateTeamMember(w http.ResponseWriter, r *http.Request) {
	var in services.UserInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := h.Team.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated, "User created", user)
}

// UpdateTeamMember changes name, role, avatar or password.
// PUT /api/team/{id}
func (h *Handler) UpdateTeamMember(w http.ResponseWriter, r *http.Request) {
	var in services.UserUpdate
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := h.Team.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "User updated", user)
}

// DeleteTeamMember removes a user once confirmed.
// DELETE /api/team/{id}
func (h *Handler) DeleteTeamMember(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !confirmed(w, r, "Remover usuário", "Deseja remover este usuário da equipe?") {
		return
	}
	if err := h.Team.Delete(r.Context(), currentUser(r).ID, id); err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "User deleted", map[string]string{"id": id})
}
