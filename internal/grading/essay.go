package grading

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pavelanni/autograde/internal/model"
)

// Weights are the combination weights for the three essay signals.
type Weights struct {
	Keyword    float64
	Similarity float64
	Length     float64
}

// WeightsFor picks the combination weights from the signals a question
// provides. Length always contributes.
func WeightsFor(hasKeywords, hasExpected bool) Weights {
	switch {
	case hasKeywords && hasExpected:
		return Weights{Keyword: 0.4, Similarity: 0.4, Length: 0.2}
	case hasKeywords:
		return Weights{Keyword: 0.7, Length: 0.3}
	case hasExpected:
		return Weights{Similarity: 0.8, Length: 0.2}
	default:
		return Weights{Length: 1.0}
	}
}

// LengthScore is 1 when minWords is unset or met, otherwise the ratio of
// words to minWords with a floor of 0.5.
func LengthScore(words int, minWords *int) float64 {
	if minWords == nil || *minWords <= 0 || words >= *minWords {
		return 1.0
	}
	return math.Max(0.5, float64(words)/float64(*minWords))
}

// EssayScorer grades free-text answers from length adequacy, keyword
// coverage and TF-IDF similarity to the expected answer.
type EssayScorer struct{}

func (EssayScorer) Score(_ context.Context, q model.Question, answer string) (model.GradeResult, error) {
	if q.Marks <= 0 {
		return model.GradeResult{}, fmt.Errorf("%w: question %d has non-positive marks", ErrInvalidQuestion, q.ID)
	}
	if strings.TrimSpace(answer) == "" {
		return model.GradeResult{
			Feedback: "No answer provided",
			Metadata: model.GradingMetadata{GradingType: "empty"},
		}, nil
	}

	words := wordCount(answer)
	lengthScore := LengthScore(words, q.MinWordCount)

	keywords := usableKeywords(q.Keywords)
	hasKeywords := len(keywords) > 0
	var keywordScore float64
	var found []string
	if hasKeywords {
		keywordScore, found = KeywordCoverage(answer, keywords)
	}

	hasExpected := q.HasExpectedAnswer()
	var similarity float64
	if hasExpected {
		similarity = Similarity(answer, q.ExpectedAnswer)
	}

	w := WeightsFor(hasKeywords, hasExpected)
	combined := w.Keyword*keywordScore + w.Similarity*similarity + w.Length*lengthScore
	combined = math.Max(0, math.Min(1, combined))
	marks := roundTo(float64(q.Marks)*combined, 2)

	var parts []string
	if lengthScore < 1.0 {
		parts = append(parts, fmt.Sprintf("Answer is below minimum word count (%d/%d)", words, *q.MinWordCount))
	}
	if hasKeywords && keywordScore < 0.5 {
		parts = append(parts, fmt.Sprintf("Consider including %d more key concepts", len(keywords)-len(found)))
	}
	if hasExpected {
		switch {
		case similarity > 0.7:
			parts = append(parts, "Excellent coverage of expected content")
		case similarity > 0.4:
			parts = append(parts, "Good partial coverage of expected content")
		default:
			parts = append(parts, "Answer could be more aligned with expected response")
		}
	}
	feedback := "Good answer"
	if len(parts) > 0 {
		feedback = strings.Join(parts, ". ")
	}

	if found == nil {
		found = []string{}
	}
	return model.GradeResult{
		Marks:    marks,
		Feedback: feedback,
		Metadata: model.GradingMetadata{
			GradingType: string(q.Type),
			Algorithm:   "multi_factor_analysis_adaptive",
			EssaySignals: &model.EssaySignals{
				WordCount:         words,
				WordCountScore:    roundTo(lengthScore, 3),
				KeywordScore:      roundTo(keywordScore, 3),
				SimilarityScore:   roundTo(similarity, 3),
				CombinedScore:     roundTo(combined, 3),
				KeywordsFound:     found,
				HasKeywords:       hasKeywords,
				HasExpectedAnswer: hasExpected,
			},
		},
	}, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
