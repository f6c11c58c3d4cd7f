package model

import (
	"strings"
	"time"
)

// QuestionType identifies which scorer handles a question.
type QuestionType string

const (
	// QuestionMCQ is a multiple-choice question graded by exact match.
	QuestionMCQ QuestionType = "mcq"
	// QuestionTrueFalse is a true/false question graded by exact match.
	QuestionTrueFalse QuestionType = "true_false"
	// QuestionShort is a short free-text answer graded by the essay scorer.
	QuestionShort QuestionType = "short"
	// QuestionEssay is a long free-text answer graded by the essay scorer.
	QuestionEssay QuestionType = "essay"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionTrueFalse, QuestionShort, QuestionEssay:
		return true
	default:
		return false
	}
}

// SubmissionStatus represents the status of a submission.
type SubmissionStatus string

const (
	StatusInProgress SubmissionStatus = "in_progress"
	StatusSubmitted  SubmissionStatus = "submitted"
	StatusGrading    SubmissionStatus = "grading"
	StatusGraded     SubmissionStatus = "graded"
)

var statusOrder = map[SubmissionStatus]int{
	StatusInProgress: 0,
	StatusSubmitted:  1,
	StatusGrading:    2,
	StatusGraded:     3,
}

// CanAdvanceTo reports whether a submission may move from s to next.
// Statuses only move forward, one step at a time.
func (s SubmissionStatus) CanAdvanceTo(next SubmissionStatus) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Exam is the exam metadata needed to decide whether submissions are accepted.
type Exam struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	IsActive  bool       `json:"is_active"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// AvailableAt reports whether the exam accepts submissions at t.
// A nil window bound is open-ended.
func (e Exam) AvailableAt(t time.Time) bool {
	if !e.IsActive {
		return false
	}
	if e.StartTime != nil && t.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && t.After(*e.EndTime) {
		return false
	}
	return true
}

// Question represents an exam question.
type Question struct {
	ID             int64        `json:"id"`
	ExamID         int64        `json:"exam_id"`
	Position       int          `json:"position"`
	Type           QuestionType `json:"type"`
	Text           string       `json:"text"`
	Marks          int          `json:"marks"`
	ExpectedAnswer string       `json:"expected_answer,omitempty"`
	Choices        []string     `json:"choices,omitempty"`
	MinWordCount   *int         `json:"min_word_count,omitempty"`
	Keywords       []string     `json:"keywords,omitempty"`
}

// HasExpectedAnswer reports whether the question carries non-blank reference text.
func (q Question) HasExpectedAnswer() bool {
	return strings.TrimSpace(q.ExpectedAnswer) != ""
}

// Answer is a student's response to one question of a submission.
type Answer struct {
	ID           int64            `json:"id"`
	SubmissionID int64            `json:"submission_id"`
	QuestionID   int64            `json:"question_id"`
	Position     int              `json:"position"`
	Text         string           `json:"answer_text"`
	AwardedMarks *float64         `json:"awarded_marks,omitempty"`
	Feedback     string           `json:"feedback,omitempty"`
	Grading      *GradingMetadata `json:"grading,omitempty"`
}

// Submission is a student's graded (or pending) attempt at an exam.
// Score fields stay nil until the submission is graded.
type Submission struct {
	ID          int64            `json:"id"`
	StudentID   string           `json:"student_id"`
	ExamID      int64            `json:"exam_id"`
	Status      SubmissionStatus `json:"status"`
	SubmittedAt time.Time        `json:"submitted_at"`
	TotalScore  *float64         `json:"total_score,omitempty"`
	Percentage  *float64         `json:"percentage,omitempty"`
	Passed      *bool            `json:"passed,omitempty"`
	GradedAt    *time.Time       `json:"graded_at,omitempty"`
}

// GradingMetadata records how a grade was produced. Essay signals are
// only present for scored free-text answers.
type GradingMetadata struct {
	GradingType string `json:"grading_type,omitempty"`
	Algorithm   string `json:"algorithm,omitempty"`
	IsCorrect   *bool  `json:"is_correct,omitempty"`
	*EssaySignals
	Error string `json:"error,omitempty"`
}

// EssaySignals are the component scores behind an essay grade. Every
// field is always serialized, zero values included.
type EssaySignals struct {
	WordCount         int      `json:"word_count"`
	WordCountScore    float64  `json:"word_count_score"`
	KeywordScore      float64  `json:"keyword_score"`
	SimilarityScore   float64  `json:"similarity_score"`
	CombinedScore     float64  `json:"combined_score"`
	KeywordsFound     []string `json:"keywords_found"`
	HasKeywords       bool     `json:"has_keywords"`
	HasExpectedAnswer bool     `json:"has_expected_answer"`
}

// GradeResult is the outcome of scoring one answer.
type GradeResult struct {
	Marks    float64         `json:"awarded_marks"`
	Feedback string          `json:"feedback"`
	Metadata GradingMetadata `json:"metadata"`
}

// AnswerGrade pairs a persisted answer with its grade.
type AnswerGrade struct {
	AnswerID int64
	Result   GradeResult
}

// Totals is the aggregated outcome of a graded submission.
type Totals struct {
	TotalScore float64 `json:"total_score"`
	ExamTotal  int     `json:"exam_total"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

// AnswerView combines an answer with its question for display.
type AnswerView struct {
	QuestionID   int64        `json:"question_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	AnswerText   string       `json:"your_answer"`
	AwardedMarks *float64     `json:"awarded_marks"`
	MaxMarks     int          `json:"max_marks"`
	Feedback     string       `json:"feedback,omitempty"`
}

// SubmissionView combines a submission with its exam and answers for display.
type SubmissionView struct {
	Submission Submission   `json:"submission"`
	ExamTitle  string       `json:"exam_title"`
	Answers    []AnswerView `json:"answers"`
}

// StudentStats summarizes a student's submission history.
type StudentStats struct {
	TotalSubmissions  int     `json:"total_submissions"`
	GrandTotalScore   float64 `json:"exam_grand_score"`
	AveragePercentage float64 `json:"average_percentage"`
	PassedCount       int     `json:"passed_count"`
	GradedCount       int     `json:"graded_count"`
	PassRate          float64 `json:"pass_rate"`
}
