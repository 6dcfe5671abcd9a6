package session

import (
	"sync"
	"time"

	"github.com/trogers1052/stocks-daily/internal/models"
)

type entry struct {
	s models.Session
	// gen changes whenever an input of the forecast changes so that a forecast
	// started on old inputs is discarded when it completes.
	gen uint64
	// convGen changes with every conversion request so that only the latest
	// one writes its result.
	convGen uint64
	touched time.Time
}

// Store keeps sessions in memory and expires those idle longer than ttl
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	now      func() time.Time
}

// NewStore creates a store. A zero ttl never expires sessions.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (st *Store) expired(e *entry, now time.Time) bool {
	return st.ttl > 0 && now.Sub(e.touched) > st.ttl
}

func (st *Store) put(s models.Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = &entry{s: s, touched: st.now()}
}

// get returns a copy of the session
func (st *Store) get(id string) (models.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.lookup(id)
	if !ok {
		return models.Session{}, false
	}
	return e.s, true
}

// must be called with mu held
func (st *Store) lookup(id string) (*entry, bool) {
	e, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	now := st.now()
	if st.expired(e, now) {
		delete(st.sessions, id)
		return nil, false
	}
	e.touched = now
	return e, true
}

// update applies fn to the session under the store lock and returns a copy of
// the result. fn's error is returned after the copy is taken.
func (st *Store) update(id string, fn func(e *entry) error) (models.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.lookup(id)
	if !ok {
		return models.Session{}, ErrNotFound
	}
	err := fn(e)
	if err == nil {
		e.s.UpdatedAt = st.now()
	}
	return e.s, err
}

// Sweep removes expired sessions and returns how many were removed
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	removed := 0
	for id, e := range st.sessions {
		if st.expired(e, now) {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored sessions, expired or not
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
