package model

import "time"

// SubmissionExport is the top-level JSON structure for submission export.
type SubmissionExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one submission with its graded answers for export.
type StudentResult struct {
	SubmissionID int64            `json:"submission_id"`
	StudentID    string           `json:"student_id"`
	ExamID       int64            `json:"exam_id"`
	ExamTitle    string           `json:"exam_title"`
	Status       SubmissionStatus `json:"status"`
	SubmittedAt  time.Time        `json:"submitted_at"`
	GradedAt     *time.Time       `json:"graded_at,omitempty"`
	TotalScore   *float64         `json:"total_score,omitempty"`
	Percentage   *float64         `json:"percentage,omitempty"`
	Passed       *bool            `json:"passed,omitempty"`
	Answers      []AnswerView     `json:"answers"`
}

// ExamImport is used for loading an exam and its questions from JSON.
type ExamImport struct {
	Title     string           `json:"title" validate:"required"`
	IsActive  bool             `json:"is_active"`
	StartTime *time.Time       `json:"start_time,omitempty"`
	EndTime   *time.Time       `json:"end_time,omitempty"`
	Questions []QuestionImport `json:"questions" validate:"required,min=1,dive"`
}

// QuestionImport is one question inside an ExamImport.
type QuestionImport struct {
	Type           QuestionType `json:"type" validate:"required,oneof=mcq true_false short essay"`
	Text           string       `json:"text" validate:"required"`
	Marks          int          `json:"marks" validate:"gt=0"`
	ExpectedAnswer string       `json:"expected_answer" validate:"required_if=Type mcq,required_if=Type true_false"`
	Choices        []string     `json:"choices,omitempty" validate:"omitempty,min=2"`
	MinWordCount   *int         `json:"min_word_count,omitempty" validate:"omitempty,gte=0"`
	Keywords       []string     `json:"keywords,omitempty" validate:"omitempty,dive,required"`
}

// Exam converts the import into an Exam without an ID.
func (ei ExamImport) Exam() Exam {
	return Exam{
		Title:     ei.Title,
		IsActive:  ei.IsActive,
		StartTime: ei.StartTime,
		EndTime:   ei.EndTime,
	}
}

// ToQuestions converts the imported questions, numbering them in file order.
func (ei ExamImport) ToQuestions() []Question {
	out := make([]Question, 0, len(ei.Questions))
	for i, qi := range ei.Questions {
		out = append(out, Question{
			Position:       i + 1,
			Type:           qi.Type,
			Text:           qi.Text,
			Marks:          qi.Marks,
			ExpectedAnswer: qi.ExpectedAnswer,
			Choices:        qi.Choices,
			MinWordCount:   qi.MinWordCount,
			Keywords:       qi.Keywords,
		})
	}
	return out
}
