package reconcile

import (
	"errors"
	"sync"
)

// ErrRunInProgress is returned when a run is requested for a source that is
// already being imported. Overlapping same-source runs would race on the
// reconciliation key lookups.
var ErrRunInProgress = errors.New("an import run for this source is already in progress")

// runLocks is an in-process keyed lock, one slot per source id.
type runLocks struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func (l *runLocks) tryAcquire(sourceID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[int64]struct{})
	}
	if _, busy := l.held[sourceID]; busy {
		return false
	}
	l.held[sourceID] = struct{}{}
	return true
}

func (l *runLocks) release(sourceID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sourceID)
}
