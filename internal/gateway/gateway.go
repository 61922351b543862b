// Package gateway terminates the LINE webhook: it verifies message
// signatures, converts platform events into router events, and delivers
// router-level canned replies.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"enkai/internal/router"
)

const signatureHeader = "X-Line-Signature"

const greetingText = "招待ありがとうございます！🍻\n" +
	"お店探しの幹事アシスタント「エンカイ」です。\n" +
	"お店の調整を始めるときは「スタート」と話しかけてくださいね。"

// EventRouter routes one inbound event to a deterministic outcome.
type EventRouter interface {
	Route(ctx context.Context, ev router.Event) router.Outcome
}

// Replier delivers canned text replies that never go through capability
// dispatch.
type Replier interface {
	ReplyText(ctx context.Context, replyHandle, text string) error
}

// webhookBody mirrors the LINE webhook payload, limited to the fields the
// gateway consumes.
type webhookBody struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken"`
	Source     struct {
		Type    string `json:"type"`
		GroupID string `json:"groupId"`
		UserID  string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// Handler is the webhook HTTP handler.
type Handler struct {
	router  EventRouter
	replier Replier
	secret  []byte
	logger  *zap.Logger
}

// NewHandler creates a webhook handler. channelSecret is the LINE channel
// secret used for signature verification.
func NewHandler(r EventRouter, replier Replier, channelSecret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		router:  r,
		replier: replier,
		secret:  []byte(channelSecret),
		logger:  logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("webhook signature rejected",
			zap.String("remote", r.RemoteAddr))
		http.Error(w, "bad signature", http.StatusBadRequest)
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	for _, ev := range payload.Events {
		h.handleEvent(r.Context(), ev)
	}
	w.WriteHeader(http.StatusOK)
}

// validSignature checks the HMAC-SHA256 digest of the raw body against the
// base64 signature header.
func (h *Handler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	claimed, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return subtle.ConstantTimeCompare(claimed, mac.Sum(nil)) == 1
}

func (h *Handler) handleEvent(ctx context.Context, ev webhookEvent) {
	switch ev.Type {
	case "join":
		if err := h.replier.ReplyText(ctx, ev.ReplyToken, greetingText); err != nil {
			h.logger.Warn("greeting delivery failed", zap.Error(err))
		}

	case "message":
		if ev.Message.Type != "text" {
			return
		}
		routed := router.Event{
			ContributorID: ev.Source.UserID,
			Text:          ev.Message.Text,
			ReplyHandle:   ev.ReplyToken,
		}
		if ev.Source.Type == "group" {
			routed.GroupID = ev.Source.GroupID
		}

		out := h.router.Route(ctx, routed)
		if out.Reply == "" {
			return
		}
		if err := h.replier.ReplyText(ctx, ev.ReplyToken, out.Reply); err != nil {
			h.logger.Warn("reply delivery failed",
				zap.String("group", routed.GroupID),
				zap.Error(err))
		}

	default:
		h.logger.Debug("ignoring webhook event", zap.String("type", ev.Type))
	}
}
