package submission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

// fakeRepo is an in-memory Repository with the same uniqueness and
// transition rules as the SQL store.
type fakeRepo struct {
	mu          sync.Mutex
	exams       map[int64]model.Exam
	questions   map[int64][]model.Question
	subs        map[int64]model.Submission
	answers     map[int64][]model.Answer
	nextID      int64
	hideExists  bool
	finalizeErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		exams:     map[int64]model.Exam{},
		questions: map[int64][]model.Question{},
		subs:      map[int64]model.Submission{},
		answers:   map[int64][]model.Answer{},
	}
}

func (r *fakeRepo) addExam(e model.Exam, qs []model.Question) model.Exam {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	for i := range qs {
		r.nextID++
		qs[i].ID = r.nextID
		qs[i].ExamID = e.ID
		qs[i].Position = i + 1
	}
	r.exams[e.ID] = e
	r.questions[e.ID] = qs
	return e
}

func (r *fakeRepo) GetExam(_ context.Context, id int64) (model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return model.Exam{}, model.ErrExamNotFound
	}
	return e, nil
}

func (r *fakeRepo) ListQuestions(_ context.Context, examID int64) ([]model.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Question(nil), r.questions[examID]...), nil
}

func (r *fakeRepo) SubmissionExists(_ context.Context, studentID string, examID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideExists {
		return false, nil
	}
	return r.findLocked(studentID, examID), nil
}

func (r *fakeRepo) findLocked(studentID string, examID int64) bool {
	for _, s := range r.subs {
		if s.StudentID == studentID && s.ExamID == examID {
			return true
		}
	}
	return false
}

func (r *fakeRepo) CreateSubmission(_ context.Context, sub model.Submission, answers []model.Answer) (model.Submission, []model.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findLocked(sub.StudentID, sub.ExamID) {
		return sub, nil, model.ErrDuplicateSubmission
	}
	r.nextID++
	sub.ID = r.nextID
	saved := make([]model.Answer, len(answers))
	for i, a := range answers {
		r.nextID++
		a.ID = r.nextID
		a.SubmissionID = sub.ID
		saved[i] = a
	}
	r.subs[sub.ID] = sub
	r.answers[sub.ID] = saved
	return sub, append([]model.Answer(nil), saved...), nil
}

func (r *fakeRepo) GetSubmission(_ context.Context, id int64) (model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return model.Submission{}, model.ErrSubmissionNotFound
	}
	return s, nil
}

func (r *fakeRepo) ListAnswers(_ context.Context, submissionID int64) ([]model.Answer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Answer(nil), r.answers[submissionID]...), nil
}

func (r *fakeRepo) FinalizeSubmission(_ context.Context, id int64, grades []model.AnswerGrade, totals model.Totals, gradedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	sub, ok := r.subs[id]
	if !ok {
		return model.ErrSubmissionNotFound
	}
	if sub.Status != model.StatusSubmitted {
		return model.ErrInvalidTransition
	}
	answers := append([]model.Answer(nil), r.answers[id]...)
	for _, g := range grades {
		found := false
		for i := range answers {
			if answers[i].ID == g.AnswerID {
				marks := g.Result.Marks
				md := g.Result.Metadata
				answers[i].AwardedMarks = &marks
				answers[i].Feedback = g.Result.Feedback
				answers[i].Grading = &md
				found = true
			}
		}
		if !found {
			return errors.New("unknown answer")
		}
	}
	sub.Status = model.StatusGraded
	sub.TotalScore = &totals.TotalScore
	sub.Percentage = &totals.Percentage
	sub.Passed = &totals.Passed
	sub.GradedAt = &gradedAt
	r.subs[id] = sub
	r.answers[id] = answers
	return nil
}

func (r *fakeRepo) ListStudentSubmissions(_ context.Context, studentID string) ([]model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Submission
	for _, s := range r.subs {
		if s.StudentID == studentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// failingGrader fails every call with err.
type failingGrader struct{ err error }

func (g failingGrader) Grade(context.Context, model.Question, string) (model.GradeResult, error) {
	return model.GradeResult{}, g.err
}
