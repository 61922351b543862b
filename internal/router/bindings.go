package router

import "sync"

// Bindings maps contributors to the session they currently belong to.
//
// Membership is observed from group-thread traffic; the contributor→scope
// binding itself is populated only at the hand-off to individual hearing.
// An individual message from a contributor with no binding is rejected, not
// guessed.
type Bindings struct {
	mu      sync.RWMutex
	members map[string][]string            // scope → members, first-appearance order
	seen    map[string]map[string]struct{} // scope → member set
	scopeOf map[string]string              // contributor → bound scope
}

// NewBindings creates an empty binding table.
func NewBindings() *Bindings {
	return &Bindings{
		members: make(map[string][]string),
		seen:    make(map[string]map[string]struct{}),
		scopeOf: make(map[string]string),
	}
}

// AddMember records that a contributor was seen in a group's thread.
// Idempotent; order of first appearance is preserved.
func (b *Bindings) AddMember(scopeID, contributor string) {
	if contributor == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.seen[scopeID]
	if !ok {
		set = make(map[string]struct{})
		b.seen[scopeID] = set
	}
	if _, dup := set[contributor]; dup {
		return
	}
	set[contributor] = struct{}{}
	b.members[scopeID] = append(b.members[scopeID], contributor)
}

// Members returns the known members of a group in first-appearance order.
func (b *Bindings) Members(scopeID string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.members[scopeID]))
	copy(out, b.members[scopeID])
	return out
}

// BindAll binds every known member of the group to it and returns them.
// Called exactly when a session hands off to individual hearing. A member
// already bound elsewhere is rebound; the latest hand-off wins.
func (b *Bindings) BindAll(scopeID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	members := make([]string, len(b.members[scopeID]))
	copy(members, b.members[scopeID])
	for _, m := range members {
		b.scopeOf[m] = scopeID
	}
	return members
}

// ScopeOf resolves the session a contributor is bound to.
func (b *Bindings) ScopeOf(contributor string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scope, ok := b.scopeOf[contributor]
	return scope, ok
}

// ClearScope removes a group's membership and every binding pointing at it.
// Used on explicit reset.
func (b *Bindings) ClearScope(scopeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for contributor, scope := range b.scopeOf {
		if scope == scopeID {
			delete(b.scopeOf, contributor)
		}
	}
	delete(b.members, scopeID)
	delete(b.seen, scopeID)
}
