// Package flight coalesces concurrent loads of the same key. Results are
// never kept: every call after the shared one returns loads again, so a
// failure reported by the loader always reaches the caller.
package flight

import "golang.org/x/sync/singleflight"

type Group[T any] struct {
	sfg singleflight.Group
}

// Do runs fn once for all callers that ask for key while it is running.
// shared reports whether the result went to more than one caller.
func (g *Group[T]) Do(key string, fn func() (T, error)) (v T, shared bool, err error) {
	res, err, shared := g.sfg.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return v, shared, err
	}
	return res.(T), shared, nil
}
