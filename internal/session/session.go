// Package session owns per-group conversation state: the hearing status
// machine and the append-only preference record replayed into every prompt.
package session

import "fmt"

// Status tracks how far a group coordination has progressed.
type Status string

const (
	// StatusIdle is the state before the organizer triggers a hearing.
	StatusIdle Status = "idle"

	// StatusHearingCommon collects shared wishes in the group thread.
	StatusHearingCommon Status = "hearing_common"

	// StatusHearingIndividual collects private wishes one-on-one.
	StatusHearingIndividual Status = "hearing_individual"

	// StatusFinalizing means the decision capability has been triggered.
	StatusFinalizing Status = "finalizing"

	// StatusClosed means the decision was delivered. Terminal except for
	// an explicit reset.
	StatusClosed Status = "closed"
)

// transitions is the fixed table of allowed status changes. Anything not
// listed is rejected. Reset back to idle is deliberately absent; it goes
// through Store.Reset, which is policy-gated.
var transitions = map[Status]Status{
	StatusIdle:              StatusHearingCommon,
	StatusHearingCommon:     StatusHearingIndividual,
	StatusHearingIndividual: StatusFinalizing,
	StatusFinalizing:        StatusClosed,
}

// Session is the state record for one group scope. Access goes through the
// Store, which serializes mutations per scope.
type Session struct {
	ScopeID     string
	Status      Status
	Preferences *Preferences
}

func newSession(scopeID string) *Session {
	return &Session{
		ScopeID:     scopeID,
		Status:      StatusIdle,
		Preferences: NewPreferences(),
	}
}

// transition applies one validated status change.
func (s *Session) transition(target Status) error {
	if s.Status == StatusClosed {
		return fmt.Errorf("%w: %s", ErrClosed, s.ScopeID)
	}
	if transitions[s.Status] != target {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, s.Status, target)
	}
	s.Status = target
	return nil
}
