// Package importer loads exams and their questions from JSON files.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/autograde/internal/model"
)

// ErrInvalidExam is returned when an exam file cannot be decoded or fails validation.
var ErrInvalidExam = errors.New("invalid exam file")

// Store is the storage an Importer writes to.
type Store interface {
	CreateExam(ctx context.Context, e model.Exam, questions []model.Question) (int64, error)
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// Result describes one import.
type Result struct {
	ExamID    int64  `json:"exam_id,omitempty"`
	Title     string `json:"title,omitempty"`
	Questions int    `json:"questions"`
	Skipped   bool   `json:"skipped"`
}

// Importer validates exam files and stores them. A file whose content
// hash matches the last import under the same name is skipped.
type Importer struct {
	store    Store
	validate *validator.Validate
}

// New creates an Importer.
func New(s Store) *Importer {
	return &Importer{store: s, validate: validator.New()}
}

// ImportFile reads and imports the exam file at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}
	return im.Import(ctx, path, data)
}

// Import decodes data as a model.ExamImport and stores it under name.
func (im *Importer) Import(ctx context.Context, name string, data []byte) (Result, error) {
	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])

	storedHash, err := im.store.GetImportedFileHash(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("check import status: %w", err)
	}
	if storedHash == hash {
		slog.Info("exam file unchanged, skipping", "file", name)
		return Result{Skipped: true}, nil
	}

	ei, err := im.Decode(data)
	if err != nil {
		return Result{}, err
	}

	questions := ei.ToQuestions()
	id, err := im.store.CreateExam(ctx, ei.Exam(), questions)
	if err != nil {
		return Result{}, fmt.Errorf("store exam: %w", err)
	}
	if err := im.store.SetImportedFileHash(ctx, name, hash); err != nil {
		slog.Error("failed to record import", "file", name, "error", err)
	}
	slog.Info("imported exam", "file", name, "exam_id", id, "questions", len(questions))
	return Result{ExamID: id, Title: ei.Title, Questions: len(questions)}, nil
}

// Decode parses and validates an exam file without storing it.
func (im *Importer) Decode(data []byte) (model.ExamImport, error) {
	var ei model.ExamImport
	if err := json.Unmarshal(data, &ei); err != nil {
		return ei, fmt.Errorf("%w: %v", ErrInvalidExam, err)
	}
	if err := im.validate.Struct(ei); err != nil {
		return ei, fmt.Errorf("%w: %v", ErrInvalidExam, err)
	}
	if ei.StartTime != nil && ei.EndTime != nil && !ei.EndTime.After(*ei.StartTime) {
		return ei, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidExam)
	}
	for i, q := range ei.Questions {
		if q.Type == model.QuestionMCQ && len(q.Choices) > 0 && !containsFold(q.Choices, q.ExpectedAnswer) {
			return ei, fmt.Errorf("%w: question %d: expected answer is not one of the choices", ErrInvalidExam, i+1)
		}
	}
	return ei, nil
}

func containsFold(choices []string, answer string) bool {
	answer = strings.TrimSpace(answer)
	for _, c := range choices {
		if strings.EqualFold(strings.TrimSpace(c), answer) {
			return true
		}
	}
	return false
}
