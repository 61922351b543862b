package session

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Store owns all sessions. It is constructed once at process start and holds
// no shared mutable state across scopes beyond the session map itself.
//
// Two locking levels:
//   - an internal map/session lock guarding individual operations, and
//   - a per-scope turn lock (LockScope) that callers hold across one whole
//     conversational turn so that rapid messages in the same scope are
//     applied in arrival order.
//
// Different scopes never contend on the turn locks.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	turnMu    sync.Mutex
	turnLocks map[string]*sync.Mutex

	logger *zap.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions:  make(map[string]*Session),
		turnLocks: make(map[string]*sync.Mutex),
		logger:    logger,
	}
}

// LockScope acquires the turn lock for a scope and returns its release
// func. Coordinator turns run entirely under this lock; external calls
// inside the turn are bounded by timeouts so a hung turn releases the scope
// once the timeout path fires.
func (s *Store) LockScope(scopeID string) (unlock func()) {
	s.turnMu.Lock()
	l, ok := s.turnLocks[scopeID]
	if !ok {
		l = &sync.Mutex{}
		s.turnLocks[scopeID] = l
	}
	s.turnMu.Unlock()

	l.Lock()
	return l.Unlock
}

// GetOrCreate returns the session for a scope, creating it idle if absent.
// Idempotent.
func (s *Store) GetOrCreate(scopeID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[scopeID]
	if !ok {
		sess = newSession(scopeID)
		s.sessions[scopeID] = sess
		s.logger.Info("session created", zap.String("scope", scopeID))
	}
	return sess
}

// Get returns the session for a scope without creating one.
func (s *Store) Get(scopeID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[scopeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, scopeID)
	}
	return sess, nil
}

// Status returns the current status for a scope.
func (s *Store) Status(scopeID string) (Status, error) {
	sess, err := s.Get(scopeID)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.Status, nil
}

// Transition applies a validated status change for a scope. Anything not in
// the fixed transition table is rejected; operations on a closed session
// fail with ErrClosed.
func (s *Store) Transition(scopeID string, target Status) error {
	sess, err := s.Get(scopeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := sess.Status
	if err := sess.transition(target); err != nil {
		return err
	}
	s.logger.Info("session status changed",
		zap.String("scope", scopeID),
		zap.String("from", string(prev)),
		zap.String("to", string(target)))
	return nil
}

// Reset forces a session back to idle, discarding its preferences. This is
// the only way back to idle and is reserved for an explicit organizer reset;
// it works from any status, including closed.
func (s *Store) Reset(scopeID string) error {
	sess, err := s.Get(scopeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess.Status = StatusIdle
	sess.Preferences = NewPreferences()
	s.logger.Info("session reset", zap.String("scope", scopeID))
	return nil
}

// Record appends one utterance. An empty contributor records into the common
// bucket, otherwise into that contributor's bucket. Appends to a missing
// session fail with ErrNotFound and to a closed one with ErrClosed; neither
// mutates anything.
func (s *Store) Record(scopeID, contributor, text string) error {
	sess, err := s.Get(scopeID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.Status == StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, scopeID)
	}
	if contributor == "" {
		sess.Preferences.AppendCommon(text)
	} else {
		sess.Preferences.AppendContributor(contributor, text)
	}
	return nil
}

// CommonWishes returns a snapshot of the common-bucket texts in arrival
// order. The copy is taken under the store lock so callers can walk it
// while other turns keep appending.
func (s *Store) CommonWishes(scopeID string) ([]string, error) {
	sess, err := s.Get(scopeID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(sess.Preferences.Common))
	for _, u := range sess.Preferences.Common {
		out = append(out, u.Text)
	}
	return out, nil
}

// Summary returns the deterministic preference projection for a scope.
func (s *Store) Summary(scopeID string) (string, error) {
	sess, err := s.Get(scopeID)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sess.Preferences.Summary(), nil
}
