package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"dex-market-data/internal/domain"
)

// retry runs op with exponential backoff until it succeeds, returns a
// permanent error or the retry budget is spent.
//
// Attempts are counted in *attempts.
func (t *CachedTransport) retry(ctx context.Context, dataset string, attempts *int, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retryDelay
	b.MaxInterval = t.maxDelay
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.maxRetries)), ctx)

	counted := func() error {
		*attempts++
		return op()
	}
	notify := func(err error, delay time.Duration) {
		t.metrics.RecordRetry(dataset)
		t.logger.WithFields(logrus.Fields{
			"dataset": dataset,
			"attempt": *attempts,
		}).Warnf("Attempt failed: %v. Retrying in %v...", err, delay)
	}

	return backoff.RetryNotify(counted, policy, notify)
}

// classify decides whether err from one attempt is worth retrying.
// Non-retryable errors are wrapped in backoff.Permanent.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return backoff.Permanent(ctxErr)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}
	if errors.Is(err, domain.ErrAuthentication) ||
		errors.Is(err, domain.ErrDataUnavailable) ||
		errors.Is(err, domain.ErrNotFound) {
		return backoff.Permanent(err)
	}
	var srvErr *ServerError
	var localErr *localError
	if errors.As(err, &srvErr) || errors.As(err, &localErr) {
		return backoff.Permanent(err)
	}
	// Network errors, resets, idle timeouts and truncated bodies.
	return err
}

// finalError maps the result of a retry loop onto the error taxonomy.
// Authentication, not-found and data-unavailable errors pass through;
// everything else becomes domain.ErrDownloadFailed.
func finalError(ctx context.Context, what string, attempts int, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	if errors.Is(err, domain.ErrAuthentication) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrDataUnavailable) ||
		errors.Is(err, domain.ErrDownloadFailed) && !isRetryableHTTP(err) {
		return err
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrDownloadFailed, what, attempts, err)
}

func isRetryableHTTP(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Retryable()
}
