package places

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeSummarizer struct {
	prompts []string
}

func (f *fakeSummarizer) Complete(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	switch {
	case strings.Contains(prompt, "良い口コミ"):
		return "雰囲気が良いと評判。", nil
	case strings.Contains(prompt, "悪い口コミ"):
		return "週末は混みがち。", nil
	default:
		return "居酒屋", nil
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/places:searchText", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Api-Key") == "" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.TextQuery == "" {
			http.Error(w, "empty query", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"places": []map[string]any{{"id": "place-1"}, {"id": "place-2"}},
		})
	})
	mux.HandleFunc("/places/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/places/")
		if id == "place-2" {
			// Detail failures must be skipped, not fatal.
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"displayName":      map[string]any{"text": "炉端焼き なごみ"},
			"formattedAddress": "東京都千代田区1-1",
			"rating":           4.3,
			"userRatingCount":  212,
			"websiteUri":       "https://example.com/nagomi",
			"currentOpeningHours": map[string]any{
				"weekdayDescriptions": []string{"月曜日: 17:00～23:00"},
			},
			"reviews": []map[string]any{
				{"text": map[string]any{"text": "最高でした"}},
				{"text": map[string]any{"text": "やや騒がしい"}},
			},
			"photos": []map[string]any{{"name": "places/place-1/photos/p1"}},
		})
	})
	return httptest.NewServer(mux)
}

func TestSearchEnrichesVenues(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()

	sum := &fakeSummarizer{}
	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, sum, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	venues, err := c.Search(context.Background(), "新宿 居酒屋", SearchOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(venues) != 1 {
		t.Fatalf("got %d venues, want 1 (failed detail skipped)", len(venues))
	}

	v := venues[0]
	if v.Name != "炉端焼き なごみ" {
		t.Errorf("name = %q", v.Name)
	}
	if v.Rating != 4.3 || v.RatingCount != 212 {
		t.Errorf("rating = %v (%d)", v.Rating, v.RatingCount)
	}
	if v.GoodSummary != "雰囲気が良いと評判。" {
		t.Errorf("good summary = %q", v.GoodSummary)
	}
	if v.BadSummary != "週末は混みがち。" {
		t.Errorf("bad summary = %q", v.BadSummary)
	}
	if v.Genre != "居酒屋" {
		t.Errorf("genre = %q", v.Genre)
	}
	if !strings.Contains(v.ImageURL, "maxWidthPx=800") {
		t.Errorf("image URL = %q", v.ImageURL)
	}

	// The review texts must reach the summarizer.
	if len(sum.prompts) != 3 {
		t.Fatalf("summarizer called %d times, want 3", len(sum.prompts))
	}
	if !strings.Contains(sum.prompts[0], "最高でした") {
		t.Error("summarizer prompt should contain review text")
	}
}

func TestSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Search(context.Background(), "q", SearchOptions{}); err == nil {
		t.Fatal("expected error on non-200 search response")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}, nil, nil); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestPriceLevels(t *testing.T) {
	tests := []struct {
		name string
		min  float64
		max  float64
		want []string
	}{
		{"unbounded", 0, 0, nil},
		{"cheap only", 0, 2000, []string{"PRICE_LEVEL_INEXPENSIVE"}},
		{"mid range", 2000, 5000, []string{"PRICE_LEVEL_MODERATE"}},
		{"from five thousand", 5000, 0, []string{"PRICE_LEVEL_EXPENSIVE", "PRICE_LEVEL_VERY_EXPENSIVE"}},
		{"wide", 1000, 8000, []string{"PRICE_LEVEL_INEXPENSIVE", "PRICE_LEVEL_MODERATE", "PRICE_LEVEL_EXPENSIVE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := priceLevels(tt.min, tt.max)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("priceLevels(%v, %v) mismatch (-want +got):\n%s", tt.min, tt.max, diff)
			}
		})
	}
}
