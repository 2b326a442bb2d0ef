package model

import "time"

// Tip is a piece of curated care-guidance content. Read-mostly; queries are
// served through the TTL cache.
type Tip struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	Category      string    `json:"category"`
	Week          *int      `json:"week,omitempty"`
	Important     bool      `json:"important"`
	TrendingScore int       `json:"trending_score"`
	PublishedAt   time.Time `json:"published_at"`
}
