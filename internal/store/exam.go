package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/autograde/internal/model"
)

// CreateExam stores an exam with its questions in one transaction and
// returns the new exam ID.
func (s *Store) CreateExam(ctx context.Context, e model.Exam, questions []model.Question) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var examID int64
	err = tx.QueryRowContext(ctx, s.rebind(
		`INSERT INTO exams (title, is_active, start_time, end_time) VALUES (?, ?, ?, ?) RETURNING id`),
		e.Title, e.IsActive, e.StartTime, e.EndTime,
	).Scan(&examID)
	if err != nil {
		return 0, fmt.Errorf("insert exam: %w", err)
	}

	for i, q := range questions {
		choices, err := json.Marshal(nonNil(q.Choices))
		if err != nil {
			return 0, err
		}
		keywords, err := json.Marshal(nonNil(q.Keywords))
		if err != nil {
			return 0, err
		}
		pos := q.Position
		if pos == 0 {
			pos = i + 1
		}
		_, err = tx.ExecContext(ctx, s.rebind(
			`INSERT INTO questions (exam_id, position, type, text, marks, expected_answer, choices_json, min_word_count, keywords_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			examID, pos, string(q.Type), q.Text, q.Marks, q.ExpectedAnswer, string(choices), q.MinWordCount, string(keywords),
		)
		if err != nil {
			return 0, fmt.Errorf("insert question %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	slog.Info("created exam", "id", examID, "title", e.Title, "questions", len(questions))
	return examID, nil
}

// GetExam returns an exam by ID, or model.ErrExamNotFound.
func (s *Store) GetExam(ctx context.Context, id int64) (model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, is_active, start_time, end_time FROM exams WHERE id = ?`), id,
	).Scan(&e.ID, &e.Title, &e.IsActive, &e.StartTime, &e.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return e, model.ErrExamNotFound
	}
	return e, err
}

// ListExams returns all exams ordered by ID.
func (s *Store) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, is_active, start_time, end_time FROM exams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.IsActive, &e.StartTime, &e.EndTime); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// ListQuestions returns the questions of an exam in position order.
func (s *Store) ListQuestions(ctx context.Context, examID int64) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, exam_id, position, type, text, marks, expected_answer, choices_json, min_word_count, keywords_json
		 FROM questions WHERE exam_id = ? ORDER BY position, id`), examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID, or model.ErrQuestionNotFound.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, exam_id, position, type, text, marks, expected_answer, choices_json, min_word_count, keywords_json
		 FROM questions WHERE id = ?`), id,
	)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return q, model.ErrQuestionNotFound
	}
	return q, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (model.Question, error) {
	var (
		q                 model.Question
		typ               string
		choices, keywords string
		minWords          sql.NullInt64
	)
	if err := sc.Scan(&q.ID, &q.ExamID, &q.Position, &typ, &q.Text, &q.Marks, &q.ExpectedAnswer, &choices, &minWords, &keywords); err != nil {
		return q, err
	}
	q.Type = model.QuestionType(typ)
	if minWords.Valid {
		n := int(minWords.Int64)
		q.MinWordCount = &n
	}
	if err := json.Unmarshal([]byte(choices), &q.Choices); err != nil {
		return q, fmt.Errorf("decode choices of question %d: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(keywords), &q.Keywords); err != nil {
		return q, fmt.Errorf("decode keywords of question %d: %w", q.ID, err)
	}
	return q, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
