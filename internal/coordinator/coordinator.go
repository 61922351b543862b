// Package coordinator drives one conversational turn end to end: record the
// utterance, consult the reasoning backend, and dispatch whatever action the
// backend selected.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"enkai/internal/backend"
	"enkai/internal/capability"
	"enkai/internal/session"
)

// apologyText is the fixed reply when the backend fails or times out. The
// turn is not retried; the user's next message is a fresh attempt.
const apologyText = "すみません、AIが応答できませんでした。もう一度話しかけてください。"

// Event is one inbound utterance, already classified by the router.
type Event struct {
	// ScopeID is the group session the event belongs to.
	ScopeID string

	// Contributor is the sender. Empty only for system-style group events.
	Contributor string

	// Individual is true when the event arrived on the contributor's
	// private thread rather than the group thread.
	Individual bool

	Text        string
	ReplyHandle string
}

// Config holds coordinator tunables. The instruction texts are opaque,
// versioned configuration; the coordinator never parses them.
type Config struct {
	GroupInstructions      string
	IndividualInstructions string

	// TurnTimeout bounds the backend round trip plus dispatch so a hung
	// external call surfaces as an error instead of stalling the scope's
	// serialized queue.
	TurnTimeout time.Duration
}

const defaultTurnTimeout = 30 * time.Second

// Coordinator holds one backend conversation per thread, created lazily on
// first use and primed once with scope-appropriate instructions.
type Coordinator struct {
	store      *session.Store
	dispatcher *capability.Dispatcher
	backend    backend.Backend
	cfg        Config
	logger     *zap.Logger

	mu    sync.Mutex
	convs map[string]backend.Conversation
}

// New creates a coordinator.
func New(store *session.Store, dispatcher *capability.Dispatcher, be backend.Backend, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:      store,
		dispatcher: dispatcher,
		backend:    be,
		cfg:        cfg,
		logger:     logger,
		convs:      make(map[string]backend.Conversation),
	}
}

// ProcessMessage runs one turn under the scope's turn lock:
//
//  1. Record the utterance into the common bucket (group thread) or the
//     contributor's bucket (private thread).
//  2. Build the prompt from the deterministic preference projection plus the
//     new utterance and send it to the backend under the turn timeout.
//  3. Interpret the reply: free text becomes a synthesized reply_with_text;
//     when the backend proposes several actions only the first is honored.
//  4. Dispatch the resulting request with the event's reply handle injected.
//
// Backend failure yields the fixed apology and leaves session state alone.
// NotFound/Closed from the store surface as errors to the router.
func (c *Coordinator) ProcessMessage(ctx context.Context, ev Event) (capability.Result, error) {
	unlock := c.store.LockScope(ev.ScopeID)
	defer unlock()

	contributor := ""
	if ev.Individual {
		contributor = ev.Contributor
	}
	if err := c.store.Record(ev.ScopeID, contributor, ev.Text); err != nil {
		return capability.Result{}, fmt.Errorf("record utterance: %w", err)
	}

	turnCtx, cancel := context.WithTimeout(ctx, c.cfg.TurnTimeout)
	defer cancel()

	reply, err := c.consult(turnCtx, ev)
	if err != nil {
		c.logger.Warn("backend unavailable, sending apology",
			zap.String("scope", ev.ScopeID),
			zap.Error(err))
		return c.dispatch(turnCtx, ev, capability.FallbackReplyName, map[string]any{"text": apologyText}), nil
	}

	if reply.HasProposals() {
		if n := len(reply.Proposals); n > 1 {
			// First proposal wins; the rest are dropped so behavior
			// stays reproducible.
			c.logger.Debug("multiple proposals, honoring first",
				zap.String("scope", ev.ScopeID),
				zap.Int("proposals", n))
		}
		first := reply.First()
		return c.dispatch(turnCtx, ev, first.Name, first.Args), nil
	}

	text := reply.Text
	if text == "" {
		text = apologyText
	}
	return c.dispatch(turnCtx, ev, capability.FallbackReplyName, map[string]any{"text": text}), nil
}

// consult sends the turn prompt on the thread's primed conversation.
func (c *Coordinator) consult(ctx context.Context, ev Event) (*backend.Reply, error) {
	conv, err := c.conversation(ctx, ev)
	if err != nil {
		return nil, err
	}

	prompt, err := c.buildPrompt(ev)
	if err != nil {
		return nil, err
	}
	return conv.Send(ctx, prompt)
}

// buildPrompt renders the preference projection plus the new utterance.
func (c *Coordinator) buildPrompt(ev Event) (string, error) {
	summary, err := c.store.Summary(ev.ScopeID)
	if err != nil {
		return "", err
	}

	speaker := "グループ"
	if ev.Individual {
		speaker = ev.Contributor
	}
	return fmt.Sprintf("これまでの希望:\n%s\n\n新しい発言 (%s): %s", summary, speaker, ev.Text), nil
}

// conversation returns the thread's conversation, creating and priming it on
// first use. Group and individual threads get different instruction sets.
func (c *Coordinator) conversation(ctx context.Context, ev Event) (backend.Conversation, error) {
	key := "group/" + ev.ScopeID
	instructions := c.cfg.GroupInstructions
	if ev.Individual {
		key = "individual/" + ev.Contributor
		instructions = c.cfg.IndividualInstructions
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if conv, ok := c.convs[key]; ok {
		return conv, nil
	}
	conv, err := c.backend.NewConversation(ctx, instructions)
	if err != nil {
		return nil, fmt.Errorf("start conversation %s: %w", key, err)
	}
	c.convs[key] = conv
	c.logger.Info("conversation primed", zap.String("thread", key))
	return conv, nil
}

// dispatch forwards one action request with the event's reply handle.
func (c *Coordinator) dispatch(ctx context.Context, ev Event, name string, args map[string]any) capability.Result {
	res := c.dispatcher.Dispatch(ctx, capability.Request{
		ID:          uuid.NewString(),
		Name:        name,
		Args:        args,
		ReplyHandle: ev.ReplyHandle,
		ScopeID:     ev.ScopeID,
	})
	if !res.OK() {
		c.logger.Warn("dispatch ended in error",
			zap.String("scope", ev.ScopeID),
			zap.String("action", name),
			zap.String("detail", res.Detail))
	}
	return res
}

// ResetThread drops the cached conversations for a scope: the group thread
// and the individual threads of the given contributors. Used on explicit
// session reset so a restarted coordination is primed fresh.
func (c *Coordinator) ResetThread(scopeID string, contributors ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.convs, "group/"+scopeID)
	for _, contributor := range contributors {
		delete(c.convs, "individual/"+contributor)
	}
}
