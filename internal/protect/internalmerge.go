package protect

import "context"

type internalMergeKey struct{}

// WithInternalMerge marks the context as belonging to a merge the system
// performs itself.
// The guard lets pushes carrying the marker pass, it is the only sanctioned
// bypass. The marker is scoped to the derived context and is never
// persisted, the suppression ends when the context goes out of scope.
func WithInternalMerge(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalMergeKey{}, true)
}

// IsInternalMerge reports whether ctx carries the internal-merge marker.
func IsInternalMerge(ctx context.Context) bool {
	val, ok := ctx.Value(internalMergeKey{}).(bool)
	return ok && val
}
