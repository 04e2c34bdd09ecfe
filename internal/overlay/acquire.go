package overlay

import (
	"context"
	"errors"
	"time"
)

// AcquireTimeout bounds how long Acquire waits for a resource to appear.
const AcquireTimeout = 7 * time.Second

// ErrAnchorTimeout is returned when no anchor appeared before the deadline.
var ErrAnchorTimeout = errors.New("overlay anchor not found before deadline")

// Subscribe starts observing changes. The returned func stops observation
// and must be safe to call once.
type Subscribe func() (changes <-chan struct{}, stop func())

// Acquire probes once, then re-probes on every change notification until the
// probe succeeds, the timeout elapses or ctx is done. Observation is always
// stopped before returning and the first successful probe wins.
func Acquire[T any](ctx context.Context, timeout time.Duration, probe func() (T, bool), subscribe Subscribe) (T, error) {
	if v, ok := probe(); ok {
		return v, nil
	}

	changes, stop := subscribe()
	defer stop()

	// A change may have landed between the first probe and subscribing.
	if v, ok := probe(); ok {
		return v, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			return zero, ErrAnchorTimeout
		case _, open := <-changes:
			if v, ok := probe(); ok {
				return v, nil
			}
			if !open {
				changes = nil
			}
		}
	}
}
