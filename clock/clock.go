// Package clock carries the active Runner's notion of "now" through a
// tick's context.Context, generalizing the teacher's
// ratelimit.Clock{Now,Sleep} split into a process-tree-wide virtual or
// real clock namespace (spec.md §4.4 "now()", §5 "task-local/
// thread-local current Runner handle").
package clock

import (
	"context"
	"time"
)

// Clock returns the current time in nanoseconds.
type Clock interface {
	Now() int64
}

// System is the real monotonic clock, used by WallRunner. Readings are
// nanoseconds elapsed since the package was loaded.
type System struct{}

// monoEpoch anchors System's readings to Go's monotonic clock reading.
var monoEpoch = time.Now()

func (System) Now() int64 { return int64(time.Since(monoEpoch)) }

type ctxKey struct{}

// WithClock registers c as the active clock for ctx and everything
// derived from it.
func WithClock(ctx context.Context, c Clock) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the clock registered on ctx, if any.
func FromContext(ctx context.Context) (Clock, bool) {
	c, ok := ctx.Value(ctxKey{}).(Clock)
	return c, ok
}

// Now returns ctx's active clock's time, or real monotonic system time if
// no Runner has registered one — Process.now()'s fallback per spec.md §4.4.
func Now(ctx context.Context) int64 {
	if c, ok := FromContext(ctx); ok {
		return c.Now()
	}
	return System{}.Now()
}
