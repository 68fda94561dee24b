// internal/models/place.go
package models

// Place is a venue record as stored in PostgreSQL. PriceRange is a
// "low - high" string band and OpeningHours a "HH:MM - HH:MM" window
// (or an all-day marker), both kept verbatim for display.
type Place struct {
	ID           int    `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	Address      string `json:"address" db:"address"`
	PriceRange   string `json:"priceRange" db:"price_range"`
	OpeningHours string `json:"hours" db:"opening_hours"`
	Category     string `json:"category" db:"category"`
}

// ScoredPlace is a Place with its combined hybrid score. Produced only by
// the retriever and never mutated afterward.
type ScoredPlace struct {
	Place
	Score float64 `json:"score"`
}
