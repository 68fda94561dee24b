// internal/search/constraint/constraint.go
package constraint

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidConstraint = errors.New("INVALID_CONSTRAINT")
)

// Strategy selects how the hybrid score weighs lexical rank against vector
// similarity.
type Strategy string

const (
	StrategyPrecise  Strategy = "precise"
	StrategySemantic Strategy = "semantic"
)

// ParseStrategy maps an externally-sourced strategy string onto the enum.
// Unrecognized values fall back to semantic rather than failing, since the
// value comes from an imprecise classifier.
func ParseStrategy(s string) Strategy {
	if Strategy(strings.ToLower(strings.TrimSpace(s))) == StrategyPrecise {
		return StrategyPrecise
	}
	return StrategySemantic
}

// Model is the typed representation of a parsed search intent. Absence of a
// field always means "no filter". Treat values as read-only: a relaxed model
// is a new value derived from the original, never a mutation of it.
type Model struct {
	Query            string   `json:"query"`
	Strategy         Strategy `json:"strategy"`
	District         string   `json:"district,omitempty"`
	MinPrice         *int     `json:"minPrice,omitempty"`
	MaxPrice         *int     `json:"maxPrice,omitempty"`
	OpenNow          bool     `json:"openNow,omitempty"`
	ExcludeKeywords  []string `json:"excludeKeywords,omitempty"`
	ExcludeDistricts []string `json:"excludeDistricts,omitempty"`
	TargetCategories []string `json:"targetCategories,omitempty"`
}

// New validates and normalizes a model. The query must be non-empty after
// trimming; price bounds must be non-negative and ordered when both present.
func New(m Model) (Model, error) {
	m.Query = strings.TrimSpace(m.Query)
	if m.Query == "" {
		return Model{}, fmt.Errorf("%w: query must not be empty", ErrInvalidConstraint)
	}

	m.Strategy = ParseStrategy(string(m.Strategy))

	if m.MinPrice != nil && *m.MinPrice < 0 {
		return Model{}, fmt.Errorf("%w: min price must be non-negative", ErrInvalidConstraint)
	}
	if m.MaxPrice != nil && *m.MaxPrice < 0 {
		return Model{}, fmt.Errorf("%w: max price must be non-negative", ErrInvalidConstraint)
	}
	if m.MinPrice != nil && m.MaxPrice != nil && *m.MinPrice > *m.MaxPrice {
		return Model{}, fmt.Errorf("%w: min price %d exceeds max price %d",
			ErrInvalidConstraint, *m.MinPrice, *m.MaxPrice)
	}

	return m, nil
}

// Default is the fallback model used when extraction fails: raw text under
// the semantic strategy, no filters.
func Default(query string) Model {
	return Model{Query: strings.TrimSpace(query), Strategy: StrategySemantic}
}

// HasPriceOrHours reports whether any of the price bounds or the open-now
// flag is set.
func (m Model) HasPriceOrHours() bool {
	return m.MinPrice != nil || m.MaxPrice != nil || m.OpenNow
}

// HasDistrict reports whether a district inclusion filter is set.
func (m Model) HasDistrict() bool {
	return m.District != ""
}

// WithoutPriceAndHours derives a new model with the price bounds and the
// open-now flag removed.
func (m Model) WithoutPriceAndHours() Model {
	relaxed := m
	relaxed.MinPrice = nil
	relaxed.MaxPrice = nil
	relaxed.OpenNow = false
	return relaxed
}

// WithoutDistrict derives a new model with the district filter and the
// open-now flag removed.
func (m Model) WithoutDistrict() Model {
	relaxed := m
	relaxed.District = ""
	relaxed.OpenNow = false
	return relaxed
}

// SemanticOnly derives the loosest model: free text under the semantic
// strategy, everything else dropped.
func (m Model) SemanticOnly() Model {
	return Model{Query: m.Query, Strategy: StrategySemantic}
}
