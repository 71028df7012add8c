package entity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"medcmd/pkg"
	"medcmd/src/logger"
)

// Source is anything that can pull candidate entities out of an utterance:
// a span model, a rule table or a generative backend.
type Source interface {
	Name() string
	Extract(ctx context.Context, text string) ([]pkg.ExtractedEntity, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, text string) ([]pkg.ExtractedEntity, error)
}

func (f SourceFunc) Name() string { return f.SourceName }

func (f SourceFunc) Extract(ctx context.Context, text string) ([]pkg.ExtractedEntity, error) {
	return f.Fn(ctx, text)
}

// Collect runs every source concurrently, each bounded by timeout, and returns
// their normalized outputs in source order. A source that fails, panics or
// overruns contributes an empty list.
func Collect(ctx context.Context, sources []Source, text string, timeout time.Duration) [][]pkg.ExtractedEntity {
	results := make([][]pkg.ExtractedEntity, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i] = SafeExtract(ctx, src, text, timeout)
		}(i, src)
	}
	wg.Wait()

	return results
}

// SafeExtract calls one source under a deadline and degrades every failure to an empty list.
func SafeExtract(ctx context.Context, src Source, text string, timeout time.Duration) []pkg.ExtractedEntity {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		entities []pkg.ExtractedEntity
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("source panicked: %v", r)}
			}
		}()
		entities, err := src.Extract(ctx, text)
		done <- outcome{entities: entities, err: err}
	}()

	select {
	case <-ctx.Done():
		logger.Warn().Str("source", src.Name()).Err(ctx.Err()).Msg("Entity source timed out, continuing without it")
		return []pkg.ExtractedEntity{}
	case res := <-done:
		if res.err != nil {
			logger.Warn().Str("source", src.Name()).Err(res.err).Msg("Entity source failed, continuing without it")
			return []pkg.ExtractedEntity{}
		}
		return normalize(res.entities)
	}
}

// normalize drops empty spans and clamps confidence into [0, 1].
func normalize(entities []pkg.ExtractedEntity) []pkg.ExtractedEntity {
	out := make([]pkg.ExtractedEntity, 0, len(entities))
	for _, e := range entities {
		e.Text = strings.TrimSpace(e.Text)
		if e.Text == "" || strings.TrimSpace(e.RawLabel) == "" {
			continue
		}
		switch {
		case e.Confidence < 0:
			e.Confidence = 0
		case e.Confidence > 1:
			e.Confidence = 1
		}
		out = append(out, e)
	}
	return out
}
