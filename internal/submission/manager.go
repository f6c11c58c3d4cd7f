// Package submission takes a student's answers from receipt to a graded
// result: validation, persistence, scoring and aggregation.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/autograde/internal/grading"
	"github.com/pavelanni/autograde/internal/model"
)

// MaxAnswerLength is the longest accepted answer text, in characters.
const MaxAnswerLength = 10000

// Repository is the storage the manager needs.
type Repository interface {
	GetExam(ctx context.Context, id int64) (model.Exam, error)
	ListQuestions(ctx context.Context, examID int64) ([]model.Question, error)
	SubmissionExists(ctx context.Context, studentID string, examID int64) (bool, error)
	CreateSubmission(ctx context.Context, sub model.Submission, answers []model.Answer) (model.Submission, []model.Answer, error)
	GetSubmission(ctx context.Context, id int64) (model.Submission, error)
	ListAnswers(ctx context.Context, submissionID int64) ([]model.Answer, error)
	FinalizeSubmission(ctx context.Context, submissionID int64, grades []model.AnswerGrade, totals model.Totals, gradedAt time.Time) error
	ListStudentSubmissions(ctx context.Context, studentID string) ([]model.Submission, error)
}

// Grader scores one answer. *grading.Dispatcher satisfies it.
type Grader interface {
	Grade(ctx context.Context, q model.Question, answer string) (model.GradeResult, error)
}

// AnswerInput is one answer in a submission request.
type AnswerInput struct {
	QuestionID int64  `json:"question_id" validate:"required"`
	Text       string `json:"answer_text"`
}

// Request is a student's submission of answers for an exam.
type Request struct {
	StudentID string        `json:"student_id" validate:"required"`
	ExamID    int64         `json:"exam_id" validate:"required"`
	Answers   []AnswerInput `json:"answers" validate:"dive"`
}

// QuestionGrade is the grade of one answer as reported to the caller.
type QuestionGrade struct {
	QuestionID   int64   `json:"question_id"`
	AwardedMarks float64 `json:"awarded_marks"`
	MaxMarks     int     `json:"max_marks"`
	Feedback     string  `json:"feedback"`
}

// Result is the outcome of Submit or Regrade. Totals and Grades are only
// set once the submission reached graded.
type Result struct {
	SubmissionID int64                  `json:"submission_id"`
	Status       model.SubmissionStatus `json:"status"`
	Totals       *model.Totals          `json:"totals,omitempty"`
	Grades       []QuestionGrade        `json:"grades,omitempty"`
}

// Manager drives submissions through the lifecycle.
type Manager struct {
	repo   Repository
	grader Grader
	now    func() time.Time
	locks  *keyedMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// NewManager creates a Manager.
func NewManager(repo Repository, grader Grader, opts ...Option) *Manager {
	m := &Manager{
		repo:   repo,
		grader: grader,
		now:    time.Now,
		locks:  newKeyedMutex(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type validated struct {
	exam      model.Exam
	questions []model.Question
	answers   []model.Answer
}

type persisted struct {
	submission model.Submission
	questions  []model.Question
	answers    []model.Answer
}

type scored struct {
	grades []model.AnswerGrade
}

// Submit validates, stores and grades a submission. Validation errors leave
// nothing behind. When grading fails after the answers are stored, the
// returned error wraps model.ErrGradingFailed and the Result carries the
// saved submission at status submitted.
func (m *Manager) Submit(ctx context.Context, req Request) (Result, error) {
	v, err := m.validate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	p, err := m.persist(ctx, req.StudentID, v)
	if err != nil {
		return Result{}, err
	}
	return m.grade(ctx, p)
}

// Regrade retries grading of a submission still at submitted. Every answer
// is scored again, so repeating it converges on the same result.
func (m *Manager) Regrade(ctx context.Context, submissionID int64) (Result, error) {
	sub, err := m.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}
	if sub.Status != model.StatusSubmitted {
		return Result{SubmissionID: sub.ID, Status: sub.Status},
			fmt.Errorf("%w: submission %d is %s", model.ErrInvalidTransition, sub.ID, sub.Status)
	}
	questions, err := m.repo.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return Result{}, fmt.Errorf("list questions: %w", err)
	}
	answers, err := m.repo.ListAnswers(ctx, sub.ID)
	if err != nil {
		return Result{}, fmt.Errorf("list answers: %w", err)
	}
	slog.Info("regrading submission", "id", sub.ID, "answers", len(answers))
	return m.grade(ctx, persisted{submission: sub, questions: questions, answers: answers})
}

// History returns a student's submissions with summary statistics.
func (m *Manager) History(ctx context.Context, studentID string) ([]model.Submission, model.StudentStats, error) {
	subs, err := m.repo.ListStudentSubmissions(ctx, studentID)
	if err != nil {
		return nil, model.StudentStats{}, err
	}
	return subs, Summarize(subs), nil
}

func (m *Manager) grade(ctx context.Context, p persisted) (Result, error) {
	pending := Result{SubmissionID: p.submission.ID, Status: model.StatusSubmitted}

	sc, err := m.score(ctx, p)
	if err != nil {
		slog.Error("grading failed", "submission_id", p.submission.ID, "error", err)
		return pending, fmt.Errorf("%w: %w", model.ErrGradingFailed, err)
	}
	res, err := m.finalize(ctx, p, sc)
	if err != nil {
		slog.Error("finalizing grades failed", "submission_id", p.submission.ID, "error", err)
		return pending, fmt.Errorf("%w: %w", model.ErrGradingFailed, err)
	}
	return res, nil
}

func (m *Manager) validate(ctx context.Context, req Request) (validated, error) {
	if strings.TrimSpace(req.StudentID) == "" {
		return validated{}, model.ErrMissingStudent
	}
	exam, err := m.repo.GetExam(ctx, req.ExamID)
	if err != nil {
		if errors.Is(err, model.ErrExamNotFound) {
			return validated{}, err
		}
		return validated{}, fmt.Errorf("get exam %d: %w", req.ExamID, err)
	}
	if !exam.AvailableAt(m.now()) {
		return validated{}, model.ErrExamUnavailable
	}

	questions, err := m.repo.ListQuestions(ctx, exam.ID)
	if err != nil {
		return validated{}, fmt.Errorf("list questions: %w", err)
	}
	if len(req.Answers) != len(questions) {
		return validated{}, fmt.Errorf("%w: got %d answers for %d questions", model.ErrAnswerSetMismatch, len(req.Answers), len(questions))
	}

	byID := make(map[int64]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	seen := make(map[int64]bool, len(req.Answers))
	answers := make([]model.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			return validated{}, fmt.Errorf("%w: question %d is not part of exam %d", model.ErrAnswerSetMismatch, a.QuestionID, exam.ID)
		}
		if seen[a.QuestionID] {
			return validated{}, fmt.Errorf("%w: question %d answered twice", model.ErrAnswerSetMismatch, a.QuestionID)
		}
		seen[a.QuestionID] = true
		if utf8.RuneCountInString(a.Text) > MaxAnswerLength {
			return validated{}, fmt.Errorf("%w: question %d exceeds %d characters", model.ErrAnswerTooLong, a.QuestionID, MaxAnswerLength)
		}
		answers = append(answers, model.Answer{QuestionID: q.ID, Position: q.Position, Text: a.Text})
	}
	return validated{exam: exam, questions: questions, answers: answers}, nil
}

func (m *Manager) persist(ctx context.Context, studentID string, v validated) (persisted, error) {
	unlock := m.locks.Lock(studentID + "\x00" + strconv.FormatInt(v.exam.ID, 10))
	defer unlock()

	exists, err := m.repo.SubmissionExists(ctx, studentID, v.exam.ID)
	if err != nil {
		return persisted{}, fmt.Errorf("check existing submission: %w", err)
	}
	if exists {
		return persisted{}, model.ErrDuplicateSubmission
	}

	sub, answers, err := m.repo.CreateSubmission(ctx, model.Submission{
		StudentID:   studentID,
		ExamID:      v.exam.ID,
		Status:      model.StatusSubmitted,
		SubmittedAt: m.now(),
	}, v.answers)
	if err != nil {
		if errors.Is(err, model.ErrDuplicateSubmission) {
			return persisted{}, err
		}
		return persisted{}, fmt.Errorf("create submission: %w", err)
	}
	return persisted{submission: sub, questions: v.questions, answers: answers}, nil
}

func (m *Manager) score(ctx context.Context, p persisted) (scored, error) {
	byID := make(map[int64]model.Question, len(p.questions))
	for _, q := range p.questions {
		byID[q.ID] = q
	}

	grades := make([]model.AnswerGrade, 0, len(p.answers))
	for _, a := range p.answers {
		if err := ctx.Err(); err != nil {
			return scored{}, err
		}
		q, ok := byID[a.QuestionID]
		if !ok {
			return scored{}, fmt.Errorf("answer %d refers to unknown question %d", a.ID, a.QuestionID)
		}
		res, err := m.grader.Grade(ctx, q, a.Text)
		switch {
		case errors.Is(err, grading.ErrInvalidQuestion):
			slog.Warn("answer could not be graded", "submission_id", p.submission.ID, "question_id", q.ID, "error", err)
			res = model.GradeResult{
				Feedback: "Grading failed: " + err.Error(),
				Metadata: model.GradingMetadata{Error: err.Error()},
			}
		case err != nil:
			return scored{}, fmt.Errorf("grade question %d: %w", q.ID, err)
		}
		res.Marks = math.Max(0, math.Min(float64(q.Marks), res.Marks))
		grades = append(grades, model.AnswerGrade{AnswerID: a.ID, Result: res})
	}
	return scored{grades: grades}, nil
}

func (m *Manager) finalize(ctx context.Context, p persisted, sc scored) (Result, error) {
	totals := Aggregate(p.questions, sc.grades)
	if err := m.repo.FinalizeSubmission(ctx, p.submission.ID, sc.grades, totals, m.now()); err != nil {
		return Result{}, err
	}
	slog.Info("submission graded",
		"submission_id", p.submission.ID,
		"total_score", totals.TotalScore,
		"exam_total", totals.ExamTotal,
		"percentage", totals.Percentage,
		"passed", totals.Passed,
	)

	maxByID := make(map[int64]int, len(p.questions))
	for _, q := range p.questions {
		maxByID[q.ID] = q.Marks
	}
	grades := make([]QuestionGrade, len(sc.grades))
	for i, g := range sc.grades {
		qid := p.answers[i].QuestionID
		grades[i] = QuestionGrade{
			QuestionID:   qid,
			AwardedMarks: g.Result.Marks,
			MaxMarks:     maxByID[qid],
			Feedback:     g.Result.Feedback,
		}
	}
	return Result{
		SubmissionID: p.submission.ID,
		Status:       model.StatusGraded,
		Totals:       &totals,
		Grades:       grades,
	}, nil
}
