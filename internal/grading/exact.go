package grading

import (
	"context"
	"fmt"

	"github.com/pavelanni/autograde/internal/model"
)

// ExactMatchScorer awards full marks when the answer equals the expected
// answer after trimming and lower-casing, and nothing otherwise.
type ExactMatchScorer struct{}

func (ExactMatchScorer) Score(_ context.Context, q model.Question, answer string) (model.GradeResult, error) {
	if q.Marks <= 0 {
		return model.GradeResult{}, fmt.Errorf("%w: question %d has non-positive marks", ErrInvalidQuestion, q.ID)
	}
	if !q.HasExpectedAnswer() {
		return model.GradeResult{}, fmt.Errorf("%w: question %d has no expected answer", ErrInvalidQuestion, q.ID)
	}

	correct := normalizeExact(answer) == normalizeExact(q.ExpectedAnswer)
	res := model.GradeResult{
		Metadata: model.GradingMetadata{
			GradingType: "exact_match",
			Algorithm:   "string_comparison",
			IsCorrect:   &correct,
		},
	}
	if correct {
		res.Marks = float64(q.Marks)
		res.Feedback = "Correct!"
	} else {
		res.Feedback = "Incorrect. The correct answer is: " + q.ExpectedAnswer
	}
	return res, nil
}
