package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError is reported when the handshake did not reach a terminal state
// within the session deadline.
type TimeoutError struct {
	Deadline time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s", e.Deadline)
}

// withDeadline races run against one deadline for the whole handshake. On
// expiry it returns at once; run is left to unwind when the caller tears
// the provider down. A panic in run is reported as a failed outcome.
func withDeadline(parent context.Context, deadline time.Duration, run func(ctx context.Context) outcome) outcome {
	ctx, cancel := context.WithTimeout(parent, deadline)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{state: StateFailed, err: fmt.Errorf("internal error: %v", r)}
			}
		}()
		done <- run(ctx)
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		// Prefer a result that landed together with expiry.
		select {
		case out := <-done:
			return out
		default:
		}
		if err := parent.Err(); err != nil {
			return outcome{state: StateFailed, err: fmt.Errorf("discovery canceled: %w", err)}
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return outcome{state: StateFailed, err: &TimeoutError{Deadline: deadline}}
		}
		return outcome{state: StateFailed, err: ctx.Err()}
	}
}
