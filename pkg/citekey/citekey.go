package citekey

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/citemesh/backend/pkg/common"
)

const minTitleWordLen = 4

// Derive builds the base slug key for a citation from its identity
// fields: the lowercased alpha-only last name of the first author, the
// year (or "unknown"), and the first title word longer than three
// characters (or "untitled"). Identical inputs always produce the same
// key; collisions between different works are resolved by ResolveKey.
func Derive(title string, authors []string, year int) string {
	name := "unknown"
	if len(authors) > 0 {
		if n := lastNameOf(authors[0]); n != "" {
			name = n
		}
	}

	yearPart := "unknown"
	if year > 0 {
		yearPart = fmt.Sprintf("%d", year)
	}

	word := firstTitleWord(title)
	if word == "" {
		word = "untitled"
	}

	return name + yearPart + word
}

// SameIdentity reports whether two citations describe the same work:
// equal titles and equal author lists, compared case-insensitively
// with surrounding whitespace ignored.
func SameIdentity(a, b common.Citation) bool {
	if !strings.EqualFold(strings.TrimSpace(a.Title), strings.TrimSpace(b.Title)) {
		return false
	}
	if len(a.Authors) != len(b.Authors) {
		return false
	}
	for i := range a.Authors {
		if !strings.EqualFold(strings.TrimSpace(a.Authors[i]), strings.TrimSpace(b.Authors[i])) {
			return false
		}
	}
	return true
}

// ResolveKey finds the key under which incoming should be stored. It
// walks the base key and its numeric suffixes (_1, _2, ...) until it
// hits either a record with the same identity (merge target) or a free
// slot. The lookup callback makes the resolution independent of any
// storage backend. The returned citation is nil when a free slot was
// found.
func ResolveKey(lookup func(key string) *common.Citation, incoming common.Citation) (string, *common.Citation) {
	base := Derive(incoming.Title, incoming.Authors, incoming.Year)

	key := base
	for suffix := 1; ; suffix++ {
		existing := lookup(key)
		if existing == nil {
			return key, nil
		}
		if SameIdentity(*existing, incoming) {
			return key, existing
		}
		key = fmt.Sprintf("%s_%d", base, suffix)
	}
}

// Merge folds incoming into existing, assuming both share the same
// identity. Sets are unioned, entity contexts merged (incoming wins on
// conflict), scalar fields filled in when the existing record lacks
// them, and LastUsed advanced. The merge is commutative for the fields
// that matter, which makes concurrent ingestion of the same identity
// from two documents converge to one record regardless of order.
func Merge(existing, incoming common.Citation) common.Citation {
	out := existing

	if out.Year == 0 {
		out.Year = incoming.Year
	}
	if out.Journal == "" {
		out.Journal = incoming.Journal
	}
	if out.DOI == "" {
		out.DOI = incoming.DOI
	}
	if out.URL == "" {
		out.URL = incoming.URL
	}
	if out.Abstract == "" {
		out.Abstract = incoming.Abstract
	}
	if out.DocumentPath == "" {
		out.DocumentPath = incoming.DocumentPath
	}

	out.LinkedEntityIDs = unionStrings(out.LinkedEntityIDs, incoming.LinkedEntityIDs)
	out.SourceLocations = unionStrings(out.SourceLocations, incoming.SourceLocations)

	if len(incoming.EntityContexts) > 0 {
		if out.EntityContexts == nil {
			out.EntityContexts = make(map[string]string, len(incoming.EntityContexts))
		}
		for id, ctx := range incoming.EntityContexts {
			out.EntityContexts[id] = ctx
		}
	}

	if incoming.Confidence > out.Confidence {
		out.Confidence = common.ClampConfidence(incoming.Confidence)
	}
	if incoming.LastUsed.After(out.LastUsed) {
		out.LastUsed = incoming.LastUsed
	}
	if !incoming.FirstUsed.IsZero() && (out.FirstUsed.IsZero() || incoming.FirstUsed.Before(out.FirstUsed)) {
		out.FirstUsed = incoming.FirstUsed
	}

	return out
}

// IsValidKey reports whether key contains only slug characters.
func IsValidKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

func lastNameOf(author string) string {
	fields := strings.Fields(author)
	if len(fields) == 0 {
		return ""
	}
	return alphaOnly(fields[len(fields)-1])
}

func firstTitleWord(title string) string {
	for _, field := range strings.Fields(title) {
		word := alphaNumOnly(field)
		if len(word) >= minTitleWordLen {
			return word
		}
	}
	return ""
}

func alphaOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) && r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func alphaNumOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (unicode.IsLetter(r) || unicode.IsDigit(r)) && r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unionStrings(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range b {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
