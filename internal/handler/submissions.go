package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/submission"
)

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submission.Request
	if err := h.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	res, err := h.manager.Submit(r.Context(), req)
	if errors.Is(err, model.ErrGradingFailed) {
		// answers are stored; tell the client which submission will be retried
		slog.Warn("submission stored without grades", "submission_id", res.SubmissionID, "error", err)
		respondJSON(w, http.StatusServiceUnavailable, envelope{
			Error: i18n.T(r.Context(), "GradingFailed"),
			Data:  res,
		})
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, envelope{
		Message: i18n.T(r.Context(), "SubmissionGraded"),
		Data:    res,
	})
}

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "submissionID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	view, err := h.store.GetSubmissionView(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Data: view})
}

func (h *Handler) handleRegrade(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "submissionID")
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.manager.Regrade(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{
		Message: i18n.T(r.Context(), "SubmissionRegraded"),
		Data:    res,
	})
}

type historyResponse struct {
	Submissions []model.Submission `json:"submissions"`
	Statistics  model.StudentStats `json:"statistics"`
}

func (h *Handler) handleStudentSubmissions(w http.ResponseWriter, r *http.Request) {
	studentID := strings.TrimSpace(chi.URLParam(r, "studentID"))
	if studentID == "" {
		respondError(w, r, errBadRequest)
		return
	}
	subs, stats, err := h.manager.History(r.Context(), studentID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}

	msg := i18n.T(r.Context(), "NoSubmissions")
	if len(subs) > 0 {
		msg = i18n.Tp(r.Context(), "SubmissionsFound", len(subs))
	}
	respondJSON(w, http.StatusOK, envelope{
		Message: msg,
		Data:    historyResponse{Submissions: subs, Statistics: stats},
	})
}

type gradeRequest struct {
	QuestionID int64  `json:"question_id" validate:"required"`
	AnswerText string `json:"answer_text" validate:"max=10000"`
}

// handleGrade scores a single answer without storing anything.
func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	q, err := h.store.GetQuestion(r.Context(), req.QuestionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	res, err := h.grader.Grade(r.Context(), q, req.AnswerText)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, envelope{Data: res})
}
