// Package router classifies inbound events by scope, resolves the session
// they belong to, and hands them to the coordinator.
package router

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enkai/internal/capability"
	"enkai/internal/coordinator"
	"enkai/internal/session"
)

// Canned router-level replies. Delivered by the transport gateway directly;
// they do not go through capability dispatch.
const (
	startedText      = "お店探しを始めます！🍻\nまずはグループみんなの共通の希望（場所・日時・雰囲気など）を聞かせてください。"
	notStartedText   = "まだ調整は始まっていません。幹事さんは「スタート」と話しかけてくださいね。"
	noBindingText    = "参加中のお店調整が見つかりませんでした。グループでの調整開始をお待ちください。"
	closedText       = "この調整は終了しています。新しく始めるには、グループで「リセット」と送ってください。"
	resetText        = "調整をリセットしました。「スタート」でいつでも再開できます。"
	alreadyRunning   = "調整はすでに始まっています。希望をそのまま話しかけてください。"
	decisionTooEarly = "お店の決定は、個別ヒアリングが始まってからお願いします。"
)

// DecisionCapability is the decision-class action invoked on the explicit
// decision trigger.
const DecisionCapability = "make_final_decision"

// Event is one inbound message from the transport gateway. GroupID is empty
// for one-on-one threads; ContributorID identifies the sender in both cases.
type Event struct {
	GroupID       string
	ContributorID string
	Text          string
	ReplyHandle   string
}

// IsGroup reports whether the event arrived on a group thread.
func (e Event) IsGroup() bool { return e.GroupID != "" }

// Outcome is the deterministic result of routing one event.
type Outcome struct {
	// Reply is a canned user-visible text handled at the router level
	// (triggers, rejections). Empty when the event went through the
	// coordinator.
	Reply string

	// Result is set when the event drove a capability dispatch.
	Result *capability.Result
}

// Triggers holds the literal phrases the router acts on. Any of the listed
// phrases (exact match after trimming) fires the trigger.
type Triggers struct {
	Start    []string
	Decision []string
	Reset    []string
}

// DefaultTriggers mirrors the phrases the original bot listened for.
func DefaultTriggers() Triggers {
	return Triggers{
		Start:    []string{"start", "スタート", "調整スタート"},
		Decision: []string{"decide", "お店を決める！"},
		Reset:    []string{"reset", "リセット"},
	}
}

func matches(list []string, text string) bool {
	for _, phrase := range list {
		if text == phrase {
			return true
		}
	}
	return false
}

// Router is the top-level entry point for inbound events.
type Router struct {
	store      *session.Store
	coord      *coordinator.Coordinator
	dispatcher *capability.Dispatcher
	bindings   *Bindings
	triggers   Triggers
	logger     *zap.Logger
}

// New creates a router.
func New(store *session.Store, coord *coordinator.Coordinator, dispatcher *capability.Dispatcher, bindings *Bindings, triggers Triggers, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		store:      store,
		coord:      coord,
		dispatcher: dispatcher,
		bindings:   bindings,
		triggers:   triggers,
		logger:     logger,
	}
}

// Route classifies one event and drives it to completion. Every path yields
// a deterministic user-visible outcome; store errors are converted here and
// logged as routing defects, never propagated raw to the transport.
func (r *Router) Route(ctx context.Context, ev Event) Outcome {
	if ev.IsGroup() {
		return r.routeGroup(ctx, ev)
	}
	return r.routeIndividual(ctx, ev)
}

func (r *Router) routeGroup(ctx context.Context, ev Event) Outcome {
	r.bindings.AddMember(ev.GroupID, ev.ContributorID)

	switch {
	case matches(r.triggers.Reset, ev.Text):
		return r.reset(ev)
	case matches(r.triggers.Start, ev.Text):
		return r.start(ev)
	case matches(r.triggers.Decision, ev.Text):
		return r.decide(ctx, ev)
	}

	status, err := r.store.Status(ev.GroupID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		// No session yet: nothing before the start trigger is recorded.
		return Outcome{Reply: notStartedText}
	case err != nil:
		return r.defect(ev, err)
	case status == session.StatusIdle:
		return Outcome{Reply: notStartedText}
	case status == session.StatusClosed:
		return Outcome{Reply: closedText}
	}

	res, err := r.coord.ProcessMessage(ctx, coordinator.Event{
		ScopeID:     ev.GroupID,
		Contributor: ev.ContributorID,
		Text:        ev.Text,
		ReplyHandle: ev.ReplyHandle,
	})
	if err != nil {
		return r.defect(ev, err)
	}
	return Outcome{Result: &res}
}

// start opens the common hearing. The session is created here, on the first
// start trigger; the transition runs under the scope's turn lock so it
// cannot interleave with an in-flight turn for the same scope.
func (r *Router) start(ev Event) Outcome {
	unlock := r.store.LockScope(ev.GroupID)
	defer unlock()

	r.store.GetOrCreate(ev.GroupID)
	if err := r.store.Transition(ev.GroupID, session.StatusHearingCommon); err != nil {
		if errors.Is(err, session.ErrBadTransition) {
			return Outcome{Reply: alreadyRunning}
		}
		return r.defect(ev, err)
	}
	return Outcome{Reply: startedText}
}

// decide moves the session to finalizing and invokes the decision
// capability, all under the scope's turn lock so the decision reads a
// settled preference record.
func (r *Router) decide(ctx context.Context, ev Event) Outcome {
	unlock := r.store.LockScope(ev.GroupID)
	defer unlock()

	if err := r.store.Transition(ev.GroupID, session.StatusFinalizing); err != nil {
		switch {
		case errors.Is(err, session.ErrBadTransition):
			return Outcome{Reply: decisionTooEarly}
		case errors.Is(err, session.ErrNotFound):
			return Outcome{Reply: notStartedText}
		}
		return r.defect(ev, err)
	}
	res := r.dispatcher.Dispatch(ctx, capability.Request{
		ID:          uuid.NewString(),
		Name:        DecisionCapability,
		Args:        map[string]any{},
		ReplyHandle: ev.ReplyHandle,
		ScopeID:     ev.GroupID,
	})
	return Outcome{Result: &res}
}

func (r *Router) routeIndividual(ctx context.Context, ev Event) Outcome {
	scopeID, ok := r.bindings.ScopeOf(ev.ContributorID)
	if !ok {
		// No heuristic fallback: an unbound contributor is rejected
		// with a visible message rather than guessed into a session.
		r.logger.Info("individual event without binding",
			zap.String("contributor", ev.ContributorID))
		return Outcome{Reply: noBindingText}
	}

	res, err := r.coord.ProcessMessage(ctx, coordinator.Event{
		ScopeID:     scopeID,
		Contributor: ev.ContributorID,
		Individual:  true,
		Text:        ev.Text,
		ReplyHandle: ev.ReplyHandle,
	})
	if err != nil {
		return r.defect(ev, err)
	}
	return Outcome{Result: &res}
}

// reset is the only path back to idle, deliberately gated on the group
// thread so a single member's private message cannot wipe the session.
func (r *Router) reset(ev Event) Outcome {
	unlock := r.store.LockScope(ev.GroupID)
	defer unlock()

	if err := r.store.Reset(ev.GroupID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return Outcome{Reply: notStartedText}
		}
		return r.defect(ev, err)
	}
	members := r.bindings.Members(ev.GroupID)
	r.bindings.ClearScope(ev.GroupID)
	r.coord.ResetThread(ev.GroupID, members...)
	return Outcome{Reply: resetText}
}

// defect converts store-level errors into a deterministic outcome. NotFound
// and Closed indicate a routing defect and are logged loudly.
func (r *Router) defect(ev Event, err error) Outcome {
	r.logger.Error("routing defect",
		zap.String("group", ev.GroupID),
		zap.String("contributor", ev.ContributorID),
		zap.Error(err))
	if errors.Is(err, session.ErrClosed) {
		return Outcome{Reply: closedText}
	}
	if errors.Is(err, session.ErrNotFound) {
		return Outcome{Reply: noBindingText}
	}
	return Outcome{Reply: apologyFallback}
}

const apologyFallback = "すみません、うまく処理できませんでした。もう一度お願いします。"
