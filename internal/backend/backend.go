// Package backend abstracts the reasoning model behind the coordinator.
//
// The backend owns cross-turn context continuity opaquely: the coordinator
// creates one conversation per scope, primes it once, and thereafter only
// sends prompts and interprets replies.
package backend

import "context"

// Proposal is one named action the model wants executed, with decoded
// arguments. Arguments are untrusted input until the dispatcher validates
// them.
type Proposal struct {
	Name string
	Args map[string]any
}

// Reply is the model's answer to one prompt: free text, or one or more
// action proposals. When both are present the proposals take precedence.
type Reply struct {
	Text      string
	Proposals []Proposal
}

// HasProposals reports whether the model proposed at least one action.
func (r *Reply) HasProposals() bool {
	return r != nil && len(r.Proposals) > 0
}

// First returns the first proposal. Callers honor only this one when the
// model proposes several ("first proposal wins").
func (r *Reply) First() Proposal {
	return r.Proposals[0]
}

// Conversation is one primed model session. Send blocks for the round trip;
// callers bound it with a context deadline.
type Conversation interface {
	Send(ctx context.Context, prompt string) (*Reply, error)
}

// Backend creates primed conversations and answers one-shot completions.
type Backend interface {
	// NewConversation starts a session primed with the given instruction
	// text. The instructions are opaque configuration; the engine never
	// parses or branches on them.
	NewConversation(ctx context.Context, instructions string) (Conversation, error)

	// Complete answers a single prompt without conversation state. Used
	// by collaborators such as review summarization.
	Complete(ctx context.Context, prompt string) (string, error)
}
