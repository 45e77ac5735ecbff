package logging

import "context"

type contextKey string

const progressKey contextKey = "qdgo-progress"

// Progress carries run-position counters through a context so every log
// line emitted inside a batch is attributable to it.
type Progress struct {
	Batch       int
	Evaluations int
	QDScore     float64
}

// WithProgress returns a context carrying the given run progress.
func WithProgress(ctx context.Context, p Progress) context.Context {
	return context.WithValue(ctx, progressKey, p)
}

// GetProgress extracts run progress from the context if present.
func GetProgress(ctx context.Context) (Progress, bool) {
	p, ok := ctx.Value(progressKey).(Progress)
	return p, ok
}
