package store

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Retryable classifies an error from the underlying connection as
// retryable (stale connection: gone / interface closed) or terminal. This
// is the explicit policy §9 asks for in place of a scattered try/except:
// callers run their operation through WithRetry once instead of repeating
// this classification at every call site.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "closed") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "conn busy")
}

// WithRetry runs op once, and on a Retryable error, reconnects via reopen
// and retries exactly once more. Any second failure propagates untouched;
// non-retryable errors never reach reopen.
func WithRetry(ctx context.Context, reopen func(ctx context.Context) error, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !Retryable(err) {
		return err
	}
	if reopenErr := reopen(ctx); reopenErr != nil {
		return reopenErr
	}
	return op(ctx)
}
