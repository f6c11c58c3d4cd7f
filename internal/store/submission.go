package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

const submissionColumns = `id, student_id, exam_id, status, submitted_at, total_score, percentage, passed, graded_at`

// SubmissionExists reports whether the student already submitted the exam.
func (s *Store) SubmissionExists(ctx context.Context, studentID string, examID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM submissions WHERE student_id = ? AND exam_id = ?`), studentID, examID,
	).Scan(&n)
	return n > 0, err
}

// CreateSubmission inserts a submission and all its answers in one
// transaction. A second submission for the same student and exam fails
// with model.ErrDuplicateSubmission.
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission, answers []model.Answer) (model.Submission, []model.Answer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sub, nil, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, s.rebind(
		`INSERT INTO submissions (student_id, exam_id, status, submitted_at) VALUES (?, ?, ?, ?) RETURNING id`),
		sub.StudentID, sub.ExamID, string(sub.Status), sub.SubmittedAt,
	).Scan(&sub.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return sub, nil, model.ErrDuplicateSubmission
		}
		return sub, nil, fmt.Errorf("insert submission: %w", err)
	}

	saved := make([]model.Answer, len(answers))
	for i, a := range answers {
		a.SubmissionID = sub.ID
		if a.Position == 0 {
			a.Position = i + 1
		}
		err := tx.QueryRowContext(ctx, s.rebind(
			`INSERT INTO answers (submission_id, question_id, position, answer_text) VALUES (?, ?, ?, ?) RETURNING id`),
			a.SubmissionID, a.QuestionID, a.Position, a.Text,
		).Scan(&a.ID)
		if err != nil {
			return sub, nil, fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
		}
		saved[i] = a
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return sub, nil, model.ErrDuplicateSubmission
		}
		return sub, nil, err
	}
	slog.Info("created submission", "id", sub.ID, "student_id", sub.StudentID, "exam_id", sub.ExamID, "answers", len(saved))
	return sub, saved, nil
}

// GetSubmission returns a submission by ID, or model.ErrSubmissionNotFound.
func (s *Store) GetSubmission(ctx context.Context, id int64) (model.Submission, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`), id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, model.ErrSubmissionNotFound
	}
	return sub, err
}

// ListStudentSubmissions returns a student's submissions, newest first.
func (s *Store) ListStudentSubmissions(ctx context.Context, studentID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+submissionColumns+` FROM submissions WHERE student_id = ? ORDER BY submitted_at DESC, id DESC`), studentID,
	)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

// ListSubmissions returns all submissions in ID order.
func (s *Store) ListSubmissions(ctx context.Context) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return collectSubmissions(rows)
}

func collectSubmissions(rows *sql.Rows) ([]model.Submission, error) {
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubmission(sc scanner) (model.Submission, error) {
	var (
		sub    model.Submission
		status string
	)
	err := sc.Scan(&sub.ID, &sub.StudentID, &sub.ExamID, &status, &sub.SubmittedAt,
		&sub.TotalScore, &sub.Percentage, &sub.Passed, &sub.GradedAt)
	sub.Status = model.SubmissionStatus(status)
	return sub, err
}

// ListAnswers returns the answers of a submission in position order.
func (s *Store) ListAnswers(ctx context.Context, submissionID int64) ([]model.Answer, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, submission_id, question_id, position, answer_text, awarded_marks, feedback, grading_json
		 FROM answers WHERE submission_id = ? ORDER BY position, id`), submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.Answer
	for rows.Next() {
		var (
			a       model.Answer
			grading string
		)
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &a.Position, &a.Text, &a.AwardedMarks, &a.Feedback, &grading); err != nil {
			return nil, err
		}
		if grading != "" {
			var md model.GradingMetadata
			if err := json.Unmarshal([]byte(grading), &md); err != nil {
				return nil, fmt.Errorf("decode grading of answer %d: %w", a.ID, err)
			}
			a.Grading = &md
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// FinalizeSubmission records grades and totals and moves the submission
// from submitted through grading to graded, all in one transaction. If any
// step fails nothing is written and the submission stays submitted.
func (s *Store) FinalizeSubmission(ctx context.Context, submissionID int64, grades []model.AnswerGrade, totals model.Totals, gradedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.advance(ctx, tx, submissionID, model.StatusSubmitted, model.StatusGrading); err != nil {
		return err
	}

	for _, g := range grades {
		md, err := json.Marshal(g.Result.Metadata)
		if err != nil {
			return fmt.Errorf("encode grading of answer %d: %w", g.AnswerID, err)
		}
		res, err := tx.ExecContext(ctx, s.rebind(
			`UPDATE answers SET awarded_marks = ?, feedback = ?, grading_json = ? WHERE id = ? AND submission_id = ?`),
			g.Result.Marks, g.Result.Feedback, string(md), g.AnswerID, submissionID,
		)
		if err != nil {
			return fmt.Errorf("update answer %d: %w", g.AnswerID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return fmt.Errorf("answer %d does not belong to submission %d", g.AnswerID, submissionID)
		}
	}

	_, err = tx.ExecContext(ctx, s.rebind(
		`UPDATE submissions SET total_score = ?, percentage = ?, passed = ?, graded_at = ? WHERE id = ?`),
		totals.TotalScore, totals.Percentage, totals.Passed, gradedAt, submissionID,
	)
	if err != nil {
		return fmt.Errorf("update totals: %w", err)
	}

	if err := s.advance(ctx, tx, submissionID, model.StatusGrading, model.StatusGraded); err != nil {
		return err
	}
	return tx.Commit()
}

// advance moves a submission between statuses only if it is currently at from.
func (s *Store) advance(ctx context.Context, tx *sql.Tx, id int64, from, to model.SubmissionStatus) error {
	if !from.CanAdvanceTo(to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}
	res, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE submissions SET status = ? WHERE id = ? AND status = ?`), string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("set status %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var current string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status FROM submissions WHERE id = ?`), id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrSubmissionNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: submission %d is %s, not %s", model.ErrInvalidTransition, id, current, from)
}

// GetSubmissionView builds a submission with its exam title and answers
// joined to their questions.
func (s *Store) GetSubmissionView(ctx context.Context, id int64) (model.SubmissionView, error) {
	sub, err := s.GetSubmission(ctx, id)
	if err != nil {
		return model.SubmissionView{}, err
	}
	exam, err := s.GetExam(ctx, sub.ExamID)
	if err != nil {
		return model.SubmissionView{}, fmt.Errorf("get exam %d: %w", sub.ExamID, err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT q.id, q.text, q.type, a.answer_text, a.awarded_marks, q.marks, a.feedback
		 FROM answers a JOIN questions q ON q.id = a.question_id
		 WHERE a.submission_id = ? ORDER BY a.position, a.id`), id,
	)
	if err != nil {
		return model.SubmissionView{}, err
	}
	defer rows.Close()
	answers := []model.AnswerView{}
	for rows.Next() {
		var (
			av  model.AnswerView
			typ string
		)
		if err := rows.Scan(&av.QuestionID, &av.QuestionText, &typ, &av.AnswerText, &av.AwardedMarks, &av.MaxMarks, &av.Feedback); err != nil {
			return model.SubmissionView{}, err
		}
		av.QuestionType = model.QuestionType(typ)
		answers = append(answers, av)
	}
	if err := rows.Err(); err != nil {
		return model.SubmissionView{}, err
	}

	return model.SubmissionView{
		Submission: sub,
		ExamTitle:  exam.Title,
		Answers:    answers,
	}, nil
}
