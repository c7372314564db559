package progress

import "context"

type runKey struct{}

// WithRunID tags ctx so downstream fetch events are attributed to the run.
func WithRunID(ctx context.Context, id [16]byte) context.Context {
	return context.WithValue(ctx, runKey{}, id)
}

// RunIDFrom returns the run tagged on ctx, or the zero value.
func RunIDFrom(ctx context.Context) [16]byte {
	id, _ := ctx.Value(runKey{}).([16]byte)
	return id
}
