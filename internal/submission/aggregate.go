package submission

import (
	"math"

	"github.com/pavelanni/autograde/internal/model"
)

// PassThreshold is the minimum percentage for a passing submission.
const PassThreshold = 50.0

// Aggregate totals the awarded marks of a graded submission against the
// marks available in the exam.
func Aggregate(questions []model.Question, grades []model.AnswerGrade) model.Totals {
	var t model.Totals
	for _, g := range grades {
		t.TotalScore += g.Result.Marks
	}
	for _, q := range questions {
		t.ExamTotal += q.Marks
	}
	if t.ExamTotal > 0 {
		t.Percentage = t.TotalScore / float64(t.ExamTotal) * 100
	}
	t.Passed = t.Percentage >= PassThreshold
	return t
}

// Summarize computes history statistics over a student's submissions.
// Scores and percentages only count once a submission has been graded.
func Summarize(subs []model.Submission) model.StudentStats {
	stats := model.StudentStats{TotalSubmissions: len(subs)}
	var pctSum float64
	var pctN int
	for _, s := range subs {
		if s.Status == model.StatusGraded {
			stats.GradedCount++
		}
		if s.TotalScore != nil {
			stats.GrandTotalScore += *s.TotalScore
		}
		if s.Percentage != nil {
			pctSum += *s.Percentage
			pctN++
		}
		if s.Passed != nil && *s.Passed {
			stats.PassedCount++
		}
	}
	if pctN > 0 {
		stats.AveragePercentage = round2(pctSum / float64(pctN))
	}
	if stats.GradedCount > 0 {
		stats.PassRate = round2(float64(stats.PassedCount) / float64(stats.GradedCount) * 100)
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
