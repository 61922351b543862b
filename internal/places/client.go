package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL    = "https://places.googleapis.com/v1"
	defaultMaxResults = 3
	defaultLanguage   = "ja"
)

// Summarizer writes short digests from prompts. Satisfied by the reasoning
// backend's one-shot completion path.
type Summarizer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config holds configuration for the Places client.
type Config struct {
	APIKey     string
	BaseURL    string
	Language   string
	MaxResults int
	Timeout    time.Duration
}

// Client implements Provider on the Google Places API (v1 text search +
// place details), with review summaries delegated to the summarizer.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	maxResults int
	httpClient *http.Client
	summarizer Summarizer
	logger     *zap.Logger
}

// NewClient creates a Places client.
func NewClient(cfg Config, summarizer Summarizer, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		language:   cfg.Language,
		maxResults: cfg.MaxResults,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		summarizer: summarizer,
		logger:     logger,
	}, nil
}

type searchRequest struct {
	TextQuery      string   `json:"textQuery"`
	LanguageCode   string   `json:"languageCode"`
	MaxResultCount int      `json:"maxResultCount"`
	PriceLevels    []string `json:"priceLevels,omitempty"`
}

type searchResponse struct {
	Places []struct {
		ID string `json:"id"`
	} `json:"places"`
}

type detailResponse struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string  `json:"formattedAddress"`
	Rating           float64 `json:"rating"`
	UserRatingCount  int     `json:"userRatingCount"`
	WebsiteURI       string  `json:"websiteUri"`
	CurrentOpeningHours struct {
		WeekdayDescriptions []string `json:"weekdayDescriptions"`
	} `json:"currentOpeningHours"`
	Reviews []struct {
		Text struct {
			Text string `json:"text"`
		} `json:"text"`
	} `json:"reviews"`
	Photos []struct {
		Name string `json:"name"`
	} `json:"photos"`
}

// Search runs a text search and enriches each hit with details and review
// summaries. A venue whose detail fetch fails is skipped, not fatal.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Venue, error) {
	limit := opts.MaxResults
	if limit <= 0 {
		limit = c.maxResults
	}

	req := searchRequest{
		TextQuery:      query,
		LanguageCode:   c.language,
		MaxResultCount: limit,
		PriceLevels:    priceLevels(opts.MinPrice, opts.MaxPrice),
	}

	var sr searchResponse
	if err := c.post(ctx, "/places:searchText", "places.id", req, &sr); err != nil {
		return nil, fmt.Errorf("venue search failed: %w", err)
	}
	c.logger.Debug("venue search", zap.String("query", query), zap.Int("hits", len(sr.Places)))

	venues := make([]Venue, 0, len(sr.Places))
	for _, p := range sr.Places {
		if p.ID == "" {
			continue
		}
		v, err := c.fetchVenue(ctx, p.ID)
		if err != nil {
			c.logger.Warn("venue detail fetch failed",
				zap.String("place", p.ID),
				zap.Error(err))
			continue
		}
		venues = append(venues, v)
	}
	return venues, nil
}

func (c *Client) fetchVenue(ctx context.Context, placeID string) (Venue, error) {
	const fields = "displayName,formattedAddress,rating,userRatingCount,reviews,photos,currentOpeningHours.weekdayDescriptions,websiteUri"

	var d detailResponse
	if err := c.get(ctx, "/places/"+placeID, fields, &d); err != nil {
		return Venue{}, err
	}

	reviews := make([]string, 0, len(d.Reviews))
	for _, r := range d.Reviews {
		if r.Text.Text != "" {
			reviews = append(reviews, r.Text.Text)
		}
	}

	v := Venue{
		ID:           placeID,
		Name:         d.DisplayName.Text,
		Address:      d.FormattedAddress,
		Rating:       d.Rating,
		RatingCount:  d.UserRatingCount,
		URL:          d.WebsiteURI,
		OpeningHours: d.CurrentOpeningHours.WeekdayDescriptions,
		GoodSummary:  c.summarize(ctx, reviews, "以下のレストランに関する良い口コミを150字程度で簡潔に要約してください。なければ「特にありません」と回答してください。"),
		BadSummary:   c.summarize(ctx, reviews, "以下のレストランに関する悪い口コミを150字程度で簡潔に要約してください。なければ「特にありません」と回答してください。"),
		Genre:        c.summarize(ctx, reviews, "以下のレストランに関する口コミから最も的確なジャンルを一つだけ、簡潔に回答してください。例: 居酒屋, イタリアン, ラーメン"),
	}
	if v.URL == "" {
		v.URL = "https://www.google.com/maps/search/?api=1&query=Google&query_place_id=" + url.QueryEscape(placeID)
	}
	if len(d.Photos) > 0 && d.Photos[0].Name != "" {
		v.ImageURL = fmt.Sprintf("%s/%s/media?maxWidthPx=800&key=%s", c.baseURL, d.Photos[0].Name, c.apiKey)
	}
	return v, nil
}

// summarize is best effort: a summarizer failure degrades to a placeholder
// instead of failing the whole search.
func (c *Client) summarize(ctx context.Context, reviews []string, basePrompt string) string {
	const placeholder = "口コミ情報はありません。"
	if c.summarizer == nil || len(reviews) == 0 {
		return placeholder
	}

	prompt := fmt.Sprintf("%s\n\n---\n口コミ一覧:\n- %s\n---", basePrompt, strings.Join(reviews, "\n- "))
	out, err := c.summarizer.Complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("review summarization failed", zap.Error(err))
		return placeholder
	}
	return strings.TrimSpace(out)
}

func (c *Client) post(ctx context.Context, path, fieldMask string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path, fieldMask string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?languageCode="+url.QueryEscape(c.language), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("places API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// priceLevels maps a yen-per-head range onto the Places price level enum.
// Rough thresholds: inexpensive up to 2000, moderate to 5000, expensive to
// 10000, very expensive above.
func priceLevels(minPrice, maxPrice float64) []string {
	if minPrice <= 0 && maxPrice <= 0 {
		return nil
	}

	levels := []struct {
		name string
		low  float64
		high float64
	}{
		{"PRICE_LEVEL_INEXPENSIVE", 0, 2000},
		{"PRICE_LEVEL_MODERATE", 2000, 5000},
		{"PRICE_LEVEL_EXPENSIVE", 5000, 10000},
		{"PRICE_LEVEL_VERY_EXPENSIVE", 10000, 1 << 30},
	}

	var out []string
	for _, l := range levels {
		if maxPrice > 0 && l.low >= maxPrice {
			continue
		}
		if minPrice > 0 && l.high <= minPrice {
			continue
		}
		out = append(out, l.name)
	}
	return out
}
