package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/autograde/internal/grading"
	"github.com/pavelanni/autograde/internal/i18n"
	"github.com/pavelanni/autograde/internal/importer"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/submission"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 20

// Store is the read side the handlers query directly.
type Store interface {
	GetSubmissionView(ctx context.Context, id int64) (model.SubmissionView, error)
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    Store
	manager  *submission.Manager
	grader   submission.Grader
	importer *importer.Importer
	validate *validator.Validate
}

// New creates a new Handler.
func New(s Store, m *submission.Manager, g submission.Grader, im *importer.Importer) (*Handler, error) {
	if s == nil || m == nil || g == nil || im == nil {
		return nil, errors.New("handler: store, manager, grader and importer are required")
	}
	return &Handler{store: s, manager: m, grader: g, importer: im, validate: validator.New()}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/submissions", h.handleSubmit)
		r.Get("/submissions/{submissionID}", h.handleGetSubmission)
		r.Post("/submissions/{submissionID}/regrade", h.handleRegrade)
		r.Get("/students/{studentID}/submissions", h.handleStudentSubmissions)
		r.Post("/grade", h.handleGrade)
		r.Post("/exams", h.handleUploadExam)
	})
}

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Error("encode response", "error", err)
		}
	}
}

// respondError maps domain errors to a status code and a localized message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, msg := http.StatusInternalServerError, i18n.T(ctx, "InternalError")

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, errBadRequest), errors.Is(err, importer.ErrInvalidExam), errors.Is(err, model.ErrMissingStudent):
		status, msg = http.StatusBadRequest, i18n.Td(ctx, "BadRequest", map[string]any{"Detail": err.Error()})
	case errors.Is(err, model.ErrExamNotFound):
		status, msg = http.StatusNotFound, i18n.T(ctx, "ExamNotFound")
	case errors.Is(err, model.ErrSubmissionNotFound):
		status, msg = http.StatusNotFound, i18n.T(ctx, "SubmissionNotFound")
	case errors.Is(err, model.ErrQuestionNotFound):
		status, msg = http.StatusNotFound, i18n.T(ctx, "QuestionNotFound")
	case errors.Is(err, model.ErrDuplicateSubmission):
		status, msg = http.StatusConflict, i18n.T(ctx, "DuplicateSubmission")
	case errors.Is(err, model.ErrInvalidTransition):
		status, msg = http.StatusConflict, i18n.T(ctx, "InvalidTransition")
	case errors.Is(err, model.ErrExamUnavailable):
		status, msg = http.StatusUnprocessableEntity, i18n.T(ctx, "ExamUnavailable")
	case errors.Is(err, model.ErrAnswerSetMismatch):
		status, msg = http.StatusUnprocessableEntity, i18n.T(ctx, "AnswerSetMismatch")
	case errors.Is(err, model.ErrAnswerTooLong):
		status, msg = http.StatusUnprocessableEntity, i18n.Td(ctx, "AnswerTooLong", map[string]any{"Max": submission.MaxAnswerLength})
	case errors.Is(err, grading.ErrInvalidQuestion):
		status, msg = http.StatusUnprocessableEntity, i18n.T(ctx, "InvalidQuestion")
	case errors.Is(err, model.ErrGradingFailed):
		status, msg = http.StatusServiceUnavailable, i18n.T(ctx, "GradingFailed")
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, envelope{Error: msg})
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into v and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := h.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
