// Package listing validates new market listings before they are priced and
// persisted.
package listing

import (
	"fmt"
	"strings"
	"time"

	"github.com/atmx/binary-amm/internal/model"
)

// Field bounds, in bytes of UTF-8.
const (
	MaxQuestionLen    = 200
	MaxDescriptionLen = 1000
	MaxCategoryLen    = 50
)

// DefaultMinSeed is the smallest seed a market may be created with.
const DefaultMinSeed uint64 = 10_000_000

// Listing is a request to open a market.
type Listing struct {
	ID             uint64    `json:"id"`
	Question       string    `json:"question"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	ResolutionTime time.Time `json:"resolution_time"`
	Seed           uint64    `json:"seed_amount"`
}

// Normalize trims surrounding whitespace from the text fields.
func (l *Listing) Normalize() {
	l.Question = strings.TrimSpace(l.Question)
	l.Description = strings.TrimSpace(l.Description)
	l.Category = strings.TrimSpace(l.Category)
}

// Validate checks l against the listing rules at time now. Every violation
// wraps model.ErrInvalidParameter.
func (l *Listing) Validate(now time.Time, minSeed uint64) error {
	if l.Question == "" {
		return fmt.Errorf("%w: question is required", model.ErrInvalidParameter)
	}
	if len(l.Question) > MaxQuestionLen {
		return fmt.Errorf("%w: question exceeds %d bytes", model.ErrInvalidParameter, MaxQuestionLen)
	}
	if len(l.Description) > MaxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d bytes", model.ErrInvalidParameter, MaxDescriptionLen)
	}
	if len(l.Category) > MaxCategoryLen {
		return fmt.Errorf("%w: category exceeds %d bytes", model.ErrInvalidParameter, MaxCategoryLen)
	}
	if !l.ResolutionTime.After(now) {
		return fmt.Errorf("%w: resolution time %s is not in the future",
			model.ErrInvalidParameter, l.ResolutionTime.UTC().Format(time.RFC3339))
	}
	if l.Seed < minSeed {
		return fmt.Errorf("%w: seed %d below minimum %d", model.ErrInvalidParameter, l.Seed, minSeed)
	}
	return nil
}

// SimilarityThreshold is the word-overlap ratio at which two questions count
// as duplicates.
const SimilarityThreshold = 0.7

// DuplicateLookback is how long a resolved market still blocks similar
// questions.
const DuplicateLookback = 24 * time.Hour

var questionPunct = strings.NewReplacer("?", "", "!", "")

func normalizeQuestion(q string) string {
	return strings.TrimSpace(questionPunct.Replace(strings.ToLower(q)))
}

// SimilarQuestion reports whether two questions are too alike to list side by
// side: equal or containing one another after normalization, or sharing at
// least SimilarityThreshold of the longer question's distinct words.
func SimilarQuestion(a, b string) bool {
	na, nb := normalizeQuestion(a), normalizeQuestion(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb || strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	wa, wb := wordSet(na), wordSet(nb)
	overlap := 0
	for w := range wa {
		if wb[w] {
			overlap++
		}
	}
	return float64(overlap)/float64(max(len(wa), len(wb))) >= SimilarityThreshold
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// Blocks reports whether market m prevents listing a similar question at
// time now: it is unresolved, or it resolved within DuplicateLookback.
func Blocks(m *model.Market, now time.Time) bool {
	if !m.Resolved {
		return true
	}
	return m.ResolvedAt != nil && now.Sub(*m.ResolvedAt) < DuplicateLookback
}
