package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultEmbedRetries is the default attempt budget for embedding calls.
// Embeddings gate every search, so the budget is deliberately generous.
const DefaultEmbedRetries = 20

// WithEmbedRetry wraps a provider so that Embed calls are retried with
// exponential backoff and jitter. Chat calls pass through untouched;
// chat failures are handled per search strategy, not here.
func WithEmbedRetry(p Provider, maxAttempts int) Provider {
	if maxAttempts <= 0 {
		maxAttempts = DefaultEmbedRetries
	}
	return &embedRetryProvider{Provider: p, maxAttempts: maxAttempts}
}

type embedRetryProvider struct {
	Provider
	maxAttempts int
}

func (p *embedRetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall time

	var result [][]float32
	op := func() error {
		out, err := p.Provider.Embed(ctx, texts)
		if err != nil {
			return err
		}
		result = out
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(p.maxAttempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return result, nil
}
