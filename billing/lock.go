/*
lock.go - In-process lock registry keyed by record ID

PURPOSE:
  Serializes billing transitions on the same record within one process,
  before the backing store's optimistic check is ever consulted. Two
  near-simultaneous invoice creations on the same record then collapse to
  "first wins, second revalidates against fresh state and fails" instead of
  both burning retry attempts against each other.

  This replaces the ambient global boolean pattern: the lock is explicit,
  keyed per record, and released on completion or failure. Records not
  currently in flight hold no memory - entries are reference-counted and
  removed when the last holder releases.
*/
package billing

import "sync"

// recordLocks is a registry of per-record mutexes. The zero value is ready
// to use.
type recordLocks struct {
	mu    sync.Mutex
	locks map[string]*recordLock
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// acquire blocks until the record's lock is held and returns the release
// function. Callers must release exactly once, typically via defer.
func (r *recordLocks) acquire(id string) (release func()) {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[string]*recordLock)
	}
	l, ok := r.locks[id]
	if !ok {
		l = &recordLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}
