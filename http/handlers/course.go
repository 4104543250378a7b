package handlers

import (
	"fmt"
	"net/http"

	resp "enrollment-crm/http/response"
	"enrollment-crm/services"
	"enrollment-crm/utils"
)

// ListCourses returns the catalog.
// GET /api/courses?active=true
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	active, err := utils.ParseBoolParam(r, "active")
	if err != nil {
		respondInvalid(w, r, err)
		return
	}
	courses, err := h.Courses.List(r.Context(), active != nil && *active)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", courses)
}

// GetCourse returns one course.
// GET /api/courses/{id}
func (h *Handler) GetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.Courses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "", course)
}

// CreateCourse adds a course to the catalog.
// POST /api/courses
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var in services.CourseInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	course, err := h.Courses.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusCreated, "Course created", course)
}

// UpdateCourse replaces a course. A rename is carried over to the titles
// of its financial records.
// PUT /api/courses/{id}
func (h *Handler) UpdateCourse(w http.ResponseWriter, r *http.Request) {
	var in services.CourseInput
	if err := utils.DecodeJSONRequest(r, &in); err != nil {
		respondError(w, r, err)
		return
	}
	course, err := h.Courses.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Course updated", course)
}

// DeleteCourse removes a course once confirmed.
// DELETE /api/courses/{id}
func (h *Handler) DeleteCourse(w http.ResponseWriter, r *http.Request) {
	course, err := h.Courses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !confirmed(w, r, "Excluir curso", fmt.Sprintf("Deseja excluir o curso %s?", course.Name)) {
		return
	}
	if err := h.Courses.Delete(r.Context(), course.ID); err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Course deleted", map[string]string{"id": course.ID})
}

// ToggleCourse activates or deactivates a course. Without a body the flag
// is flipped.
// PATCH /api/courses/{id}/active
func (h *Handler) ToggleCourse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := utils.DecodeJSONRequest(r, &req); err != nil && !isEmptyBody(err) {
		respondError(w, r, err)
		return
	}
	course, err := h.Courses.ToggleActive(r.Context(), r.PathValue("id"), req.Active)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.SuccessResponse(w, http.StatusOK, "Course updated", course)
}
