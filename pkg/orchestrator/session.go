package orchestrator

import (
	"context"
	"time"

	"github.com/trackpilot/trackpilot/pkg/core"
)

// session is the mutual-exclusion guard for the single automation surface.
// At most one job holds it, whatever the worker pool size.
type session struct {
	slot chan struct{}
}

func newSession() *session {
	s := &session{slot: make(chan struct{}, 1)}
	s.slot <- struct{}{}
	return s
}

// acquire blocks until the session is free, the wait elapses, or ctx ends.
// The returned release function must be called exactly once.
func (s *session) acquire(ctx context.Context, wait time.Duration) (func(), error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-s.slot:
		return func() { s.slot <- struct{}{} }, nil
	case <-timer.C:
		return nil, &core.ContentionError{Resource: "automation session", Waited: wait}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
