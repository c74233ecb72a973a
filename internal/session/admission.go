package session

import (
	"context"
	"time"
)

// acquire reserves a queue slot and then the single evaluation slot. Only the
// wait is bounded (ctx, MaxWait); the evaluation that follows is not.
// Returns a release func to be deferred.
func (s *TextSession) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}

	var expired <-chan time.Time
	if s.cfg.MaxWait > 0 {
		timer := time.NewTimer(s.cfg.MaxWait)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case s.queueCh <- struct{}{}:
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-expired:
		tooBusyTotal.WithLabelValues(s.kind).Inc()
		return func() {}, ErrTooBusy
	}

	acquired := false
	defer func() {
		if !acquired {
			<-s.queueCh
		}
	}()
	select {
	case s.genCh <- struct{}{}:
		acquired = true
		return func() { <-s.genCh; <-s.queueCh }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-expired:
		tooBusyTotal.WithLabelValues(s.kind).Inc()
		return func() {}, ErrTooBusy
	}
}
