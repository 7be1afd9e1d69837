// Package opid tags contexts with an operation id so that events published
// from the same startup step can be correlated by subscribers.
package opid

import (
	"context"
	"math/rand/v2"
)

type key struct{}

// NewContext returns a copy of parent carrying a fresh random id, and the id.
func NewContext(parent context.Context) (context.Context, uint64) {
	id := rand.Uint64()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the id from ctx and reports whether it was present.
func FromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(key{}).(uint64)
	return id, ok
}
