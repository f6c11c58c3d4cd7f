package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/autograde/internal/grading"
	"github.com/pavelanni/autograde/internal/model"
	"github.com/pavelanni/autograde/internal/store"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func testQuestions() []model.Question {
	return []model.Question{
		{Type: model.QuestionMCQ, Text: "2+2?", Marks: 2, ExpectedAnswer: "4", Choices: []string{"3", "4"}},
		{Type: model.QuestionTrueFalse, Text: "Go has generics", Marks: 2, ExpectedAnswer: "true"},
		{Type: model.QuestionShort, Text: "Name a Go keyword", Marks: 6, Keywords: []string{"func"}},
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *fakeRepo, model.Exam, []model.Question) {
	t.Helper()
	repo := newFakeRepo()
	exam := repo.addExam(model.Exam{Title: "Go basics", IsActive: true}, testQuestions())
	qs, _ := repo.ListQuestions(context.Background(), exam.ID)
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewManager(repo, grading.NewDispatcher(), opts...), repo, exam, qs
}

func fullRequest(student string, exam model.Exam, qs []model.Question) Request {
	return Request{
		StudentID: student,
		ExamID:    exam.ID,
		Answers: []AnswerInput{
			{QuestionID: qs[0].ID, Text: "4"},
			{QuestionID: qs[1].ID, Text: "True"},
			{QuestionID: qs[2].ID, Text: "func"},
		},
	}
}

func TestSubmitGradesSubmission(t *testing.T) {
	m, repo, exam, qs := newTestManager(t)
	ctx := context.Background()

	res, err := m.Submit(ctx, fullRequest("s1", exam, qs))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != model.StatusGraded {
		t.Fatalf("status = %s, want graded", res.Status)
	}
	if res.Totals == nil {
		t.Fatal("expected totals")
	}
	if res.Totals.TotalScore != 10 || res.Totals.ExamTotal != 10 || res.Totals.Percentage != 100 || !res.Totals.Passed {
		t.Errorf("unexpected totals %+v", *res.Totals)
	}
	if len(res.Grades) != 3 || res.Grades[0].Feedback != "Correct!" || res.Grades[2].MaxMarks != 6 {
		t.Errorf("unexpected grades %+v", res.Grades)
	}

	sub, err := repo.GetSubmission(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Status != model.StatusGraded || sub.GradedAt == nil || !sub.GradedAt.Equal(testNow) {
		t.Errorf("unexpected stored submission %+v", sub)
	}
	answers, _ := repo.ListAnswers(ctx, res.SubmissionID)
	for _, a := range answers {
		if a.AwardedMarks == nil || a.Grading == nil {
			t.Errorf("answer %d not graded", a.ID)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	start := testNow.Add(time.Hour)
	end := testNow.Add(-time.Hour)

	tests := []struct {
		name    string
		exam    model.Exam
		build   func(exam model.Exam, qs []model.Question) Request
		wantErr error
	}{
		{
			name: "exam not found",
			exam: model.Exam{Title: "x", IsActive: true},
			build: func(exam model.Exam, qs []model.Question) Request {
				r := fullRequest("s1", exam, qs)
				r.ExamID = 9999
				return r
			},
			wantErr: model.ErrExamNotFound,
		},
		{
			name:    "blank student",
			exam:    model.Exam{Title: "x", IsActive: true},
			build:   func(exam model.Exam, qs []model.Question) Request { return fullRequest("  ", exam, qs) },
			wantErr: model.ErrMissingStudent,
		},
		{
			name:    "inactive exam",
			exam:    model.Exam{Title: "x"},
			build:   func(exam model.Exam, qs []model.Question) Request { return fullRequest("s1", exam, qs) },
			wantErr: model.ErrExamUnavailable,
		},
		{
			name:    "before start",
			exam:    model.Exam{Title: "x", IsActive: true, StartTime: &start},
			build:   func(exam model.Exam, qs []model.Question) Request { return fullRequest("s1", exam, qs) },
			wantErr: model.ErrExamUnavailable,
		},
		{
			name:    "after end",
			exam:    model.Exam{Title: "x", IsActive: true, EndTime: &end},
			build:   func(exam model.Exam, qs []model.Question) Request { return fullRequest("s1", exam, qs) },
			wantErr: model.ErrExamUnavailable,
		},
		{
			name: "missing answer",
			exam: model.Exam{Title: "x", IsActive: true},
			build: func(exam model.Exam, qs []model.Question) Request {
				r := fullRequest("s1", exam, qs)
				r.Answers = r.Answers[:2]
				return r
			},
			wantErr: model.ErrAnswerSetMismatch,
		},
		{
			name: "extra answer",
			exam: model.Exam{Title: "x", IsActive: true},
			build: func(exam model.Exam, qs []model.Question) Request {
				r := fullRequest("s1", exam, qs)
				r.Answers = append(r.Answers, AnswerInput{QuestionID: 9999, Text: "?"})
				return r
			},
			wantErr: model.ErrAnswerSetMismatch,
		},
		{
			name: "unknown question",
			exam: model.Exam{Title: "x", IsActive: true},
			build: func(exam model.Exam, qs []model.Question) Request {
				r := fullRequest("s1", exam, qs)
				r.Answers[2].QuestionID = 9999
				return r
			},
			wantErr: model.ErrAnswerSetMismatch,
		},
		{
			name: "question answered twice",
			exam: model.Exam{Title: "x", IsActive: true},
			build: func(exam model.Exam, qs []model.Question) Request {
				r := fullRequest("s1", exam, qs)
				r.Answers[2].QuestionID = qs[0].ID
				return r
			},
			wantErr: model.ErrAnswerSetMismatch,
		},
		{
			name: "answer too long",
			exam: model.Exam{Title: "x", IsActive: true},
			build: func(exam model.Exam, qs []model.Question) Request {
				r := fullRequest("s1", exam, qs)
				r.Answers[2].Text = strings.Repeat("é", MaxAnswerLength+1)
				return r
			},
			wantErr: model.ErrAnswerTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			exam := repo.addExam(tt.exam, testQuestions())
			qs, _ := repo.ListQuestions(context.Background(), exam.ID)
			m := NewManager(repo, grading.NewDispatcher(), WithClock(func() time.Time { return testNow }))

			_, err := m.Submit(context.Background(), tt.build(exam, qs))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if n := repo.count(); n != 0 {
				t.Errorf("validation failure stored %d submissions", n)
			}
		})
	}
}

func TestSubmitAnswerAtLengthLimit(t *testing.T) {
	m, _, exam, qs := newTestManager(t)
	req := fullRequest("s1", exam, qs)
	req.Answers[2].Text = strings.Repeat("a", MaxAnswerLength)
	if _, err := m.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmitAnswerOrderIndependent(t *testing.T) {
	m, _, exam, qs := newTestManager(t)
	req := fullRequest("s1", exam, qs)
	req.Answers[0], req.Answers[2] = req.Answers[2], req.Answers[0]
	res, err := m.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Totals.TotalScore != 10 {
		t.Errorf("total = %v, want 10", res.Totals.TotalScore)
	}
	if res.Grades[0].QuestionID != qs[2].ID {
		t.Errorf("grades not reported in answer order: %+v", res.Grades)
	}
}

func TestSubmitDuplicate(t *testing.T) {
	m, repo, exam, qs := newTestManager(t)
	ctx := context.Background()
	if _, err := m.Submit(ctx, fullRequest("s1", exam, qs)); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := m.Submit(ctx, fullRequest("s1", exam, qs))
	if !errors.Is(err, model.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
	if _, err := m.Submit(ctx, fullRequest("s2", exam, qs)); err != nil {
		t.Errorf("other student rejected: %v", err)
	}
	if n := repo.count(); n != 2 {
		t.Errorf("expected 2 submissions, got %d", n)
	}
}

func TestSubmitConcurrentDuplicates(t *testing.T) {
	m, repo, exam, qs := newTestManager(t)
	const n = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Submit(context.Background(), fullRequest("s1", exam, qs))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, model.ErrDuplicateSubmission):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || dupes != n-1 {
		t.Errorf("successes=%d dupes=%d, want 1/%d", successes, dupes, n-1)
	}
	if c := repo.count(); c != 1 {
		t.Errorf("stored %d submissions, want 1", c)
	}
	if s := m.locks.size(); s != 0 {
		t.Errorf("%d lock entries left behind", s)
	}
}

func TestSubmitDuplicateCaughtByStorage(t *testing.T) {
	repo := newFakeRepo()
	exam := repo.addExam(model.Exam{Title: "x", IsActive: true}, testQuestions())
	qs, _ := repo.ListQuestions(context.Background(), exam.ID)
	repo.hideExists = true

	// Two managers do not share a lock, so only storage can reject the second.
	m1 := NewManager(repo, grading.NewDispatcher())
	m2 := NewManager(repo, grading.NewDispatcher())
	if _, err := m1.Submit(context.Background(), fullRequest("s1", exam, qs)); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := m2.Submit(context.Background(), fullRequest("s1", exam, qs))
	if !errors.Is(err, model.ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}
}

func TestSubmitPerAnswerFailure(t *testing.T) {
	repo := newFakeRepo()
	qs := testQuestions()
	qs[1].ExpectedAnswer = "" // true/false without a reference answer cannot be graded
	exam := repo.addExam(model.Exam{Title: "x", IsActive: true}, qs)
	qs, _ = repo.ListQuestions(context.Background(), exam.ID)
	m := NewManager(repo, grading.NewDispatcher())

	res, err := m.Submit(context.Background(), fullRequest("s1", exam, qs))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != model.StatusGraded {
		t.Fatalf("status = %s, want graded", res.Status)
	}
	g := res.Grades[1]
	if g.AwardedMarks != 0 || !strings.HasPrefix(g.Feedback, "Grading failed") {
		t.Errorf("unexpected failed grade %+v", g)
	}
	if res.Totals.TotalScore != 8 || res.Totals.Percentage != 80 {
		t.Errorf("unexpected totals %+v", *res.Totals)
	}

	answers, _ := repo.ListAnswers(context.Background(), res.SubmissionID)
	if answers[1].Grading == nil || answers[1].Grading.Error == "" {
		t.Errorf("failure not recorded in grading metadata: %+v", answers[1].Grading)
	}
}

func TestSubmitSystemicFailureThenRegrade(t *testing.T) {
	repo := newFakeRepo()
	exam := repo.addExam(model.Exam{Title: "x", IsActive: true}, testQuestions())
	qs, _ := repo.ListQuestions(context.Background(), exam.ID)
	ctx := context.Background()

	broken := NewManager(repo, failingGrader{err: errors.New("cache unreachable")})
	res, err := broken.Submit(ctx, fullRequest("s1", exam, qs))
	if !errors.Is(err, model.ErrGradingFailed) {
		t.Fatalf("expected ErrGradingFailed, got %v", err)
	}
	if res.SubmissionID == 0 || res.Status != model.StatusSubmitted {
		t.Fatalf("unexpected result %+v", res)
	}
	sub, _ := repo.GetSubmission(ctx, res.SubmissionID)
	if sub.Status != model.StatusSubmitted || sub.TotalScore != nil {
		t.Errorf("submission changed after failed grading: %+v", sub)
	}
	answers, _ := repo.ListAnswers(ctx, res.SubmissionID)
	if len(answers) != 3 {
		t.Errorf("answers lost: %d", len(answers))
	}

	// The student cannot resubmit; the stored answers are regraded instead.
	if _, err := broken.Submit(ctx, fullRequest("s1", exam, qs)); !errors.Is(err, model.ErrDuplicateSubmission) {
		t.Errorf("expected ErrDuplicateSubmission on resubmit, got %v", err)
	}

	fixed := NewManager(repo, grading.NewDispatcher())
	again, err := fixed.Regrade(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("Regrade: %v", err)
	}
	if again.Status != model.StatusGraded || again.Totals.TotalScore != 10 {
		t.Errorf("unexpected regrade result %+v", again)
	}

	if _, err := fixed.Regrade(ctx, res.SubmissionID); !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for graded submission, got %v", err)
	}
	if _, err := fixed.Regrade(ctx, 9999); !errors.Is(err, model.ErrSubmissionNotFound) {
		t.Errorf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestSubmitFinalizeFailure(t *testing.T) {
	m, repo, exam, qs := newTestManager(t)
	repo.finalizeErr = errors.New("disk full")

	res, err := m.Submit(context.Background(), fullRequest("s1", exam, qs))
	if !errors.Is(err, model.ErrGradingFailed) {
		t.Fatalf("expected ErrGradingFailed, got %v", err)
	}
	sub, _ := repo.GetSubmission(context.Background(), res.SubmissionID)
	if sub.Status != model.StatusSubmitted {
		t.Errorf("status = %s, want submitted", sub.Status)
	}
}

func TestSubmitEmptyAnswersScoreZero(t *testing.T) {
	m, _, exam, qs := newTestManager(t)
	req := fullRequest("s1", exam, qs)
	for i := range req.Answers {
		req.Answers[i].Text = ""
	}
	res, err := m.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Totals.TotalScore != 0 || res.Totals.Passed {
		t.Errorf("unexpected totals %+v", *res.Totals)
	}
}

func TestHistory(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, grading.NewDispatcher())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		exam := repo.addExam(model.Exam{Title: fmt.Sprintf("exam %d", i), IsActive: true}, testQuestions())
		qs, _ := repo.ListQuestions(ctx, exam.ID)
		req := fullRequest("s1", exam, qs)
		if i == 2 {
			for j := range req.Answers {
				req.Answers[j].Text = "wrong"
			}
		}
		if _, err := m.Submit(ctx, req); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	subs, stats, err := m.History(ctx, "s1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(subs) != 3 || stats.TotalSubmissions != 3 || stats.GradedCount != 3 {
		t.Errorf("unexpected history %d %+v", len(subs), stats)
	}
	if stats.PassedCount != 2 || stats.PassRate != 66.67 {
		t.Errorf("pass stats = %d / %v", stats.PassedCount, stats.PassRate)
	}
}

func TestSubmitWithSQLStore(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	examID, err := s.CreateExam(ctx, model.Exam{Title: "Go basics", IsActive: true}, testQuestions())
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	exam, _ := s.GetExam(ctx, examID)
	qs, _ := s.ListQuestions(ctx, examID)

	m := NewManager(s, grading.NewDispatcher(grading.WithCache(grading.NewMemoryCache())))
	res, err := m.Submit(ctx, fullRequest("s1", exam, qs))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	view, err := s.GetSubmissionView(ctx, res.SubmissionID)
	if err != nil {
		t.Fatalf("GetSubmissionView: %v", err)
	}
	if view.Submission.Status != model.StatusGraded || view.Submission.Percentage == nil || *view.Submission.Percentage != 100 {
		t.Errorf("unexpected stored submission %+v", view.Submission)
	}

	if _, err := m.Submit(ctx, fullRequest("s1", exam, qs)); !errors.Is(err, model.ErrDuplicateSubmission) {
		t.Errorf("expected ErrDuplicateSubmission, got %v", err)
	}
}
