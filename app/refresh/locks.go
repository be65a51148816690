package refresh

import (
	"sync"
)

// SourceLocks is a keyed mutex over source ids. Only TryLock is offered:
// a refresh that finds its source busy reports it instead of queueing.
type SourceLocks struct {
	locks sync.Map // source id -> *sync.Mutex
}

func NewSourceLocks() *SourceLocks {
	return &SourceLocks{}
}

func (l *SourceLocks) TryLock(sourceID string) bool {
	mu, _ := l.locks.LoadOrStore(sourceID, &sync.Mutex{})
	return mu.(*sync.Mutex).TryLock()
}

func (l *SourceLocks) Unlock(sourceID string) {
	if mu, ok := l.locks.Load(sourceID); ok {
		mu.(*sync.Mutex).Unlock()
	}
}
