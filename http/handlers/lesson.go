package handlers

import (
	"net/http"

	"learning-platform/http/response"
	"learning-platform/utils"
)

const lessonsPath = "/lessons/"

type enrollRequest struct {
	CourseID int64 `json:"course_id" validate:"required,gt=0"`
}

// Enroll adds a course to the calling student's enrollments.
func (h *Handler) Enroll(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req enrollRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		response.ErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.Validator.Validate(req); err != nil {
		response.FromError(w, err)
		return
	}

	student, err := h.Access.Enroll(r.Context(), p, req.CourseID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "Successfully enrolled in course.", student.ToResponse())
}

// Lessons serves GET /lessons/ and GET /lessons/{id}/.
func (h *Handler) Lessons(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	if r.URL.Path == lessonsPath {
		h.listLessons(w, r)
		return
	}
	h.getLesson(w, r)
}

func (h *Handler) listLessons(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	lessons, err := h.Access.ListLessons(r.Context(), p)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "", lessons)
}

func (h *Handler) getLesson(w http.ResponseWriter, r *http.Request) {
	lessonID, err := utils.PathID(r, lessonsPath)
	if err != nil {
		response.ErrorResponse(w, http.StatusNotFound, "Not found.")
		return
	}
	p, ok := principal(w, r)
	if !ok {
		return
	}

	lesson, err := h.Access.GetLesson(r.Context(), p, lessonID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.SuccessResponse(w, http.StatusOK, "", lesson)
}
