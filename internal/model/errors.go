package model

import "errors"

// Validation errors reject a submission before anything is written.
var (
	ErrMissingStudent      = errors.New("student id is required")
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamUnavailable     = errors.New("exam is not currently available")
	ErrAnswerSetMismatch   = errors.New("answers do not match the exam questions")
	ErrAnswerTooLong       = errors.New("answer is too long")
	ErrDuplicateSubmission = errors.New("exam already submitted by this student")
)

var (
	// ErrSubmissionNotFound is returned when a submission lookup misses.
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrQuestionNotFound   = errors.New("question not found")
	// ErrInvalidTransition is returned when a status change would move backwards or skip a step.
	ErrInvalidTransition = errors.New("invalid submission status transition")
	// ErrGradingFailed marks a systemic grading failure. The submission stays
	// submitted and its answers are kept so grading can be retried.
	ErrGradingFailed = errors.New("submission saved but grading failed")
)
