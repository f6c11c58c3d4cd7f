package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/autograde/internal/model"
)

// ExportAll builds export-ready results from all submissions.
func (s *Store) ExportAll(ctx context.Context) ([]model.StudentResult, error) {
	subs, err := s.ListSubmissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	results := make([]model.StudentResult, 0, len(subs))
	for _, sub := range subs {
		view, err := s.GetSubmissionView(ctx, sub.ID)
		if err != nil {
			return nil, fmt.Errorf("get submission %d: %w", sub.ID, err)
		}
		results = append(results, model.StudentResult{
			SubmissionID: sub.ID,
			StudentID:    sub.StudentID,
			ExamID:       sub.ExamID,
			ExamTitle:    view.ExamTitle,
			Status:       sub.Status,
			SubmittedAt:  sub.SubmittedAt,
			GradedAt:     sub.GradedAt,
			TotalScore:   sub.TotalScore,
			Percentage:   sub.Percentage,
			Passed:       sub.Passed,
			Answers:      view.Answers,
		})
	}
	return results, nil
}
