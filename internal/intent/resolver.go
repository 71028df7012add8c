package intent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"medcmd/pkg"
	"medcmd/src/logger"
)

// Classifier scores an utterance against the supported intents.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, text string) (pkg.IntentResult, error)
}

// Resolver asks its classifiers in order and returns the first usable answer.
// When every classifier fails or times out the result is unknown with confidence 0.
type Resolver struct {
	classifiers   []Classifier
	timeout       time.Duration
	minConfidence float64
}

// NewResolver creates a resolver. Classifiers are tried in the given order.
func NewResolver(timeout time.Duration, minConfidence float64, classifiers ...Classifier) *Resolver {
	return &Resolver{
		classifiers:   classifiers,
		timeout:       timeout,
		minConfidence: minConfidence,
	}
}

// Resolve never fails: it degrades to pkg.UnknownIntent. A classifier that
// answers unknown does not stop later classifiers from being asked.
func (r *Resolver) Resolve(ctx context.Context, text string) pkg.IntentResult {
	var undecided *pkg.IntentResult
	for _, c := range r.classifiers {
		result, err := r.classify(ctx, c, text)
		if err != nil {
			logger.Warn().Str("classifier", c.Name()).Err(err).Msg("Intent classifier failed, trying next")
			continue
		}

		normalized := r.normalize(result)
		if normalized.PrimaryIntent != pkg.IntentUnknown {
			return normalized
		}
		if undecided == nil {
			undecided = &normalized
		}
	}

	if undecided != nil {
		return *undecided
	}
	return pkg.UnknownIntent()
}

func (r *Resolver) classify(ctx context.Context, c Classifier, text string) (result pkg.IntentResult, err error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	type outcome struct {
		result pkg.IntentResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("classifier panicked: %v", p)}
			}
		}()
		res, err := c.Classify(ctx, text)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return pkg.IntentResult{}, fmt.Errorf("classification timed out: %w", ctx.Err())
	case out := <-done:
		return out.result, out.err
	}
}

// normalize sorts alternatives, picks the arg-max as primary and maps labels
// outside the supported set (or below the confidence floor) to unknown.
func (r *Resolver) normalize(result pkg.IntentResult) pkg.IntentResult {
	return Normalize(result, r.minConfidence)
}

// Normalize is the shared post-processing for any classifier output.
func Normalize(result pkg.IntentResult, minConfidence float64) pkg.IntentResult {
	scores := append([]pkg.IntentScore{}, result.Alternatives...)
	if result.PrimaryIntent != "" && !containsIntent(scores, result.PrimaryIntent) {
		scores = append(scores, pkg.IntentScore{Intent: result.PrimaryIntent, Score: result.Confidence})
	}
	for i := range scores {
		scores[i].Score = clamp(scores[i].Score)
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	if len(scores) == 0 {
		return pkg.UnknownIntent()
	}

	top := scores[0]
	out := pkg.IntentResult{
		PrimaryIntent: top.Intent,
		Confidence:    top.Score,
		Alternatives:  scores,
	}
	if !pkg.IsSupportedIntent(top.Intent) || top.Score < minConfidence {
		out.PrimaryIntent = pkg.IntentUnknown
	}
	return out
}

func containsIntent(scores []pkg.IntentScore, intent string) bool {
	for _, s := range scores {
		if s.Intent == intent {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
