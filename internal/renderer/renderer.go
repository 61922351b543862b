// Package renderer turns result payloads into displayable messages and
// delivers them to a reply handle.
//
// Contract with the engine: accept a destination handle plus payload, fail
// loud on transport errors, never panic into the caller.
package renderer

import (
	"context"

	"enkai/internal/places"
)

// Renderer delivers messages. The reply-handle variants answer one inbound
// event; Push opens a new one-on-one message to a contributor.
type Renderer interface {
	ReplyText(ctx context.Context, replyHandle, text string) error
	ReplyQuickReply(ctx context.Context, replyHandle, question string, choices []string) error
	ReplyVenues(ctx context.Context, replyHandle string, venues []places.Venue) error
	ReplyFinalVenue(ctx context.Context, replyHandle string, venue places.Venue) error
	PushText(ctx context.Context, to, text string) error
}
