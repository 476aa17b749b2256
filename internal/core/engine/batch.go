package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lingualens/lingualens/internal/core"
)

// BatchOptions tunes AnalyzeBatch.
type BatchOptions struct {
	CompactMode bool
	// Classify maps a per-item error to a stable code. Nil uses BatchErrorCode.
	Classify func(error) string
	// Progress is called after each item with the number done so far.
	Progress func(done, total int)
}

// BatchErrorCode is the fallback classification for failed batch items.
func BatchErrorCode(err error) string {
	var limited *RateLimitedError
	switch {
	case errors.As(err, &limited):
		return "RATE_LIMITED"
	case errors.Is(err, context.Canceled):
		return "REQUEST_CANCELED"
	default:
		return "ERROR"
	}
}

// AnalyzeBatch analyzes texts one at a time in order. Item failures,
// including local quota denials, become error rows and the run continues.
// Cancellation stops the run and returns the rows completed so far.
func (g *Gateway) AnalyzeBatch(ctx context.Context, texts []string, opts BatchOptions) (*core.BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	classify := opts.Classify
	if classify == nil {
		classify = BatchErrorCode
	}

	result := &core.BatchResult{Items: make([]core.BatchItem, 0, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			result.CompletedAt = g.now()
			return result, err
		}

		item := core.BatchItem{Index: i + 1, Text: text}
		outcome, err := g.Analyze(ctx, core.AnalyzeRequest{Text: text, CompactMode: opts.CompactMode})
		switch {
		case err != nil && ctx.Err() != nil:
			result.CompletedAt = g.now()
			return result, ctx.Err()
		case err != nil:
			item.Status = core.BatchStatusError
			item.Code = classify(err)
			item.Error = err.Error()
			result.Failed++
			if g.Logger != nil {
				g.Logger.Debug("batch item failed", zap.Int("index", item.Index), zap.String("code", item.Code))
			}
		default:
			item.Status = core.BatchStatusSuccess
			item.Result = outcome.Data
			item.FromCache = outcome.FromCache
			result.Succeeded++
		}
		result.Items = append(result.Items, item)

		if opts.Progress != nil {
			opts.Progress(i+1, len(texts))
		}
	}

	result.CompletedAt = g.now()
	return result, nil
}
