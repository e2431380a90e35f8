package images

import "context"

// Attempt identifies one delivery of a commit. In-process commits run once,
// queued commits may be delivered again after a failure.
type Attempt struct {
	Number int
	Final  bool
}

type attemptKey struct{}

// WithAttempt tells Apply which delivery of a queued commit it is running.
func WithAttempt(ctx context.Context, attempt Attempt) context.Context {
	if attempt.Number < 1 {
		attempt.Number = 1
	}
	return context.WithValue(ctx, attemptKey{}, attempt)
}

// AttemptFrom returns the delivery recorded by WithAttempt, or a single final
// attempt.
func AttemptFrom(ctx context.Context) Attempt {
	if attempt, ok := ctx.Value(attemptKey{}).(Attempt); ok {
		return attempt
	}
	return Attempt{Number: 1, Final: true}
}
