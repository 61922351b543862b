package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"enkai/internal/places"
)

const defaultLineBaseURL = "https://api.line.me/v2/bot"

// LineConfig holds configuration for the LINE renderer.
type LineConfig struct {
	ChannelToken string
	BaseURL      string
	Timeout      time.Duration
}

// Line implements Renderer on the LINE Messaging API.
type Line struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLine creates a LINE renderer.
func NewLine(cfg LineConfig, logger *zap.Logger) (*Line, error) {
	if cfg.ChannelToken == "" {
		return nil, fmt.Errorf("LINE channel token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLineBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Line{
		token:      cfg.ChannelToken,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

func (l *Line) ReplyText(ctx context.Context, replyHandle, text string) error {
	return l.reply(ctx, replyHandle, []map[string]any{textMessage(text)})
}

func (l *Line) ReplyQuickReply(ctx context.Context, replyHandle, question string, choices []string) error {
	items := make([]map[string]any, 0, len(choices))
	for _, choice := range choices {
		items = append(items, map[string]any{
			"type": "action",
			"action": map[string]any{
				"type":  "message",
				"label": choice,
				"text":  choice,
			},
		})
	}
	msg := textMessage(question)
	msg["quickReply"] = map[string]any{"items": items}
	return l.reply(ctx, replyHandle, []map[string]any{msg})
}

func (l *Line) ReplyVenues(ctx context.Context, replyHandle string, venues []places.Venue) error {
	bubbles := make([]map[string]any, 0, len(venues))
	for _, v := range venues {
		bubbles = append(bubbles, venueBubble(v, "詳しく見る"))
	}
	return l.reply(ctx, replyHandle, []map[string]any{
		textMessage("こちらのお店はいかがでしょうか？"),
		flexMessage("おすすめのお店が見つかりました！", map[string]any{
			"type":     "carousel",
			"contents": bubbles,
		}),
	})
}

func (l *Line) ReplyFinalVenue(ctx context.Context, replyHandle string, venue places.Venue) error {
	return l.reply(ctx, replyHandle, []map[string]any{
		textMessage("お店が決定しました！"),
		flexMessage("お店が決定しました！", venueBubble(venue, "予約する")),
	})
}

func (l *Line) PushText(ctx context.Context, to, text string) error {
	return l.send(ctx, "/message/push", map[string]any{
		"to":       to,
		"messages": []map[string]any{textMessage(text)},
	})
}

func (l *Line) reply(ctx context.Context, replyHandle string, messages []map[string]any) error {
	return l.send(ctx, "/message/reply", map[string]any{
		"replyToken": replyHandle,
		"messages":   messages,
	})
}

func (l *Line) send(ctx context.Context, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.token)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("LINE delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("LINE API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	l.logger.Debug("message delivered", zap.String("endpoint", path))
	return nil
}

func textMessage(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

func flexMessage(altText string, contents map[string]any) map[string]any {
	return map[string]any{
		"type":     "flex",
		"altText":  altText,
		"contents": contents,
	}
}

// venueBubble renders one venue card: photo, name, rating, address, genre,
// review digests, and a link button.
func venueBubble(v places.Venue, buttonLabel string) map[string]any {
	imageURL := v.ImageURL
	if imageURL == "" {
		imageURL = "https://placehold.co/600x400/EFEFEF/AAAAAA?text=No+Image"
	}

	body := []map[string]any{
		{"type": "text", "text": nonEmpty(v.Name, "名前不明"), "weight": "bold", "size": "lg", "wrap": true},
		{"type": "text", "text": fmt.Sprintf("★ %.1f（%d件のレビュー）", v.Rating, v.RatingCount), "size": "sm", "color": "#999999"},
		{"type": "text", "text": nonEmpty(v.Address, "-"), "size": "sm", "color": "#929292", "wrap": true},
		{"type": "separator", "margin": "lg"},
		{"type": "text", "text": "ジャンル: " + nonEmpty(v.Genre, "その他"), "size": "sm", "color": "#929292", "wrap": true},
		{"type": "text", "text": "👍 " + v.GoodSummary, "size": "sm", "color": "#929292", "wrap": true},
		{"type": "text", "text": "👎 " + v.BadSummary, "size": "sm", "color": "#929292", "wrap": true},
	}

	return map[string]any{
		"type": "bubble",
		"hero": map[string]any{
			"type":        "image",
			"url":         imageURL,
			"size":        "full",
			"aspectRatio": "20:13",
			"aspectMode":  "cover",
		},
		"body": map[string]any{
			"type":     "box",
			"layout":   "vertical",
			"spacing":  "md",
			"contents": body,
		},
		"footer": map[string]any{
			"type":   "box",
			"layout": "vertical",
			"contents": []map[string]any{
				{
					"type":   "button",
					"style":  "primary",
					"color":  "#CB2200",
					"height": "sm",
					"action": map[string]any{
						"type":  "uri",
						"label": buttonLabel,
						"uri":   nonEmpty(v.URL, "https://www.google.com/maps"),
					},
				},
			},
		},
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
