package store

import (
	"strings"
	"time"

	"github.com/citemesh/backend/pkg/common"
)

const (
	yearMin = 1400
	yearMax = 2100
)

// ValidateCitation rejects malformed citation input before any write.
func ValidateCitation(c common.Citation) error {
	if strings.TrimSpace(c.Title) == "" {
		return common.Validationf("title", "must not be empty")
	}
	if c.Year != 0 && (c.Year < yearMin || c.Year > yearMax) {
		return common.Validationf("year", "out of range: %d", c.Year)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return common.Validationf("confidence", "must be within [0,1]: %v", c.Confidence)
	}
	return nil
}

// ChunkRange invokes fn over [start, end) windows of at most chunkSize
// elements.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings drops empty and repeated values, preserving first-seen
// order.
func DedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SearchBlob builds the denormalized text the search operation ranks
// against.
func SearchBlob(c common.Citation) string {
	parts := make([]string, 0, 4)
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if len(c.Authors) > 0 {
		parts = append(parts, strings.Join(c.Authors, " "))
	}
	if c.Journal != "" {
		parts = append(parts, c.Journal)
	}
	if c.Abstract != "" {
		parts = append(parts, c.Abstract)
	}
	return strings.Join(parts, "\n")
}

// SearchTerms splits a query into deduplicated lowercase terms.
func SearchTerms(query string) []string {
	return DedupeStrings(strings.Fields(strings.ToLower(query)))
}

// ScoreTerms reports the fraction of terms contained in blob.
func ScoreTerms(blob string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(blob)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// RunningAverage folds value into an average over n prior samples.
func RunningAverage(avg float64, n int, value float64) float64 {
	if n <= 0 {
		return value
	}
	return (avg*float64(n) + value) / float64(n+1)
}

// MatchesFilter applies a SearchFilter to a citation.
func MatchesFilter(c common.Citation, f SearchFilter) bool {
	if f.YearFrom != 0 && c.Year < f.YearFrom {
		return false
	}
	if f.YearTo != 0 && (c.Year == 0 || c.Year > f.YearTo) {
		return false
	}
	if f.Journal != "" && !strings.EqualFold(c.Journal, f.Journal) {
		return false
	}
	if f.UsedOnly && c.UsageCount == 0 {
		return false
	}
	return true
}

// LaterOf returns the later of two timestamps.
func LaterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
