package sync

import (
	"errors"
	"time"

	"github.com/jstaf/driveflux/internal/remote"
)

// backoff tracks an exponentially-doubling delay with a ceiling, reset to
// base on success. Grounded in the teacher's delta-loop offline/online
// backoff (fs/delta.go), generalized to the puller/uploader's 60s/300s and
// 30s/300s figures (spec.md §5).
type backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	return &backoff{base: base, max: max, current: base}
}

func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.base
}

// isTransient reports whether err is a remote.ErrTransient (or wraps one),
// the signal the run loops use to tell an expected-to-clear network hiccup
// from a failure worth logging loudly.
func isTransient(err error) bool {
	var t *remote.ErrTransient
	return errors.As(err, &t)
}
