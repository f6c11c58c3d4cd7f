package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/autograde/internal/model"
)

// ErrInvalidQuestion is returned by scorers when a question cannot be graded
// as configured. It affects only the answer being scored.
var ErrInvalidQuestion = errors.New("invalid question")

// Scorer grades a single answer.
type Scorer interface {
	Score(ctx context.Context, q model.Question, answer string) (model.GradeResult, error)
}

// Dispatcher routes a question to the scorer for its type, consulting the
// cache first when one is configured.
type Dispatcher struct {
	cache Cache
	ttl   time.Duration
	exact Scorer
	essay Scorer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithCache(c Cache) Option { return func(d *Dispatcher) { d.cache = c } }
func WithTTL(ttl time.Duration) Option { return func(d *Dispatcher) { d.ttl = ttl } }
func WithExactScorer(s Scorer) Option { return func(d *Dispatcher) { d.exact = s } }
func WithEssayScorer(s Scorer) Option { return func(d *Dispatcher) { d.essay = s } }

// NewDispatcher installs the built-in scorers. Without WithCache every call scores afresh.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ttl:   DefaultTTL,
		exact: ExactMatchScorer{},
		essay: EssayScorer{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Grade scores answer against q. Errors wrapping ErrInvalidQuestion concern
// this answer only; any other error means the cache is unusable.
func (d *Dispatcher) Grade(ctx context.Context, q model.Question, answer string) (model.GradeResult, error) {
	key := Fingerprint(q.ID, answer)
	if d.cache != nil {
		cached, ok, err := d.cache.Get(ctx, key)
		if err != nil {
			return model.GradeResult{}, fmt.Errorf("read grade cache: %w", err)
		}
		if ok {
			slog.Debug("grade cache hit", "question_id", q.ID)
			return cached, nil
		}
	}

	var (
		res model.GradeResult
		err error
	)
	switch q.Type {
	case model.QuestionMCQ, model.QuestionTrueFalse:
		res, err = d.exact.Score(ctx, q, answer)
	case model.QuestionShort, model.QuestionEssay:
		res, err = d.essay.Score(ctx, q, answer)
	default:
		res = model.GradeResult{Feedback: "Unknown question type"}
	}
	if err != nil {
		return model.GradeResult{}, err
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, key, res, d.ttl); err != nil {
			return model.GradeResult{}, fmt.Errorf("write grade cache: %w", err)
		}
	}
	return res, nil
}
