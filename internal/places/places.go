// Package places finds candidate venues and enriches them with
// model-written review summaries.
package places

import "context"

// Venue is one searchable venue with its enriched details.
type Venue struct {
	ID           string
	Name         string
	Address      string
	URL          string
	ImageURL     string
	Genre        string
	Rating       float64
	RatingCount  int
	OpeningHours []string

	// GoodSummary and BadSummary are short model-written digests of the
	// venue's reviews.
	GoodSummary string
	BadSummary  string
}

// SearchOptions narrows a venue search. Prices are in yen per head; zero
// means unbounded.
type SearchOptions struct {
	MinPrice   float64
	MaxPrice   float64
	MaxResults int
}

// Provider searches venues. Implementations block on network I/O; callers
// bound them with a context deadline.
type Provider interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Venue, error)
}
