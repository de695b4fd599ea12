package bibliography

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store"
)

// Supported styles.
const (
	StyleAPA    = "apa"
	StyleIEEE   = "ieee"
	StyleNature = "nature"
	StyleMLA    = "mla"
)

// Sort orders for GenerateBibliography.
const (
	SortByAuthor = "author"
	SortByYear   = "year"
	SortByTitle  = "title"
	SortByUsage  = "usage"
)

// Config selects style, filtering and ordering for one rendering run.
// There is no global style registry; callers construct a Config and
// pass it in.
type Config struct {
	Style    string
	UsedOnly bool
	SortBy   string
}

// Formatter renders bibliographies and in-text citations from the
// citation catalog.
type Formatter struct {
	citations store.CitationRepository
}

func NewFormatter(citations store.CitationRepository) *Formatter {
	return &Formatter{citations: citations}
}

// GenerateBibliography renders the catalog (or its used subset) as
// ordered entries. Output is deterministic: the requested sort key with
// the citation key as tiebreaker.
func (f *Formatter) GenerateBibliography(ctx context.Context, cfg Config) ([]string, error) {
	if err := validateStyle(cfg.Style); err != nil {
		return nil, err
	}
	sortBy := cfg.SortBy
	if sortBy == "" {
		sortBy = SortByAuthor
	}
	switch sortBy {
	case SortByAuthor, SortByYear, SortByTitle, SortByUsage:
	default:
		return nil, common.Validationf("sort_by", "unsupported sort order %q", cfg.SortBy)
	}

	var (
		citations []common.Citation
		err       error
	)
	if cfg.UsedOnly {
		citations, err = f.citations.Used(ctx)
	} else {
		citations, err = f.citations.All(ctx)
	}
	if err != nil {
		return nil, err
	}

	sortCitations(citations, sortBy)

	out := make([]string, 0, len(citations))
	for _, c := range citations {
		entry, err := FormatEntry(c, cfg.Style)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// InTextCitation renders the short in-text form for one citation. The
// page argument is only used by MLA; pass "" otherwise.
func (f *Formatter) InTextCitation(ctx context.Context, key, style, page string) (string, error) {
	if err := validateStyle(style); err != nil {
		return "", err
	}
	c, err := f.citations.Get(ctx, key)
	if err != nil {
		return "", err
	}

	switch style {
	case StyleAPA:
		return apaInText(*c), nil
	case StyleIEEE:
		// stable sequence number assigned at first insertion, not a
		// live positional index
		return fmt.Sprintf("[%d]", c.SeqNo), nil
	case StyleNature:
		return superscript(c.SeqNo), nil
	default:
		return mlaInText(*c, page), nil
	}
}

// FormatEntry renders a single citation as a bibliography entry in the
// given style.
func FormatEntry(c common.Citation, style string) (string, error) {
	if err := validateStyle(style); err != nil {
		return "", err
	}
	switch style {
	case StyleAPA:
		return apaEntry(c), nil
	case StyleIEEE:
		return ieeeEntry(c), nil
	case StyleNature:
		return natureEntry(c), nil
	default:
		return mlaEntry(c), nil
	}
}

func validateStyle(style string) error {
	switch style {
	case StyleAPA, StyleIEEE, StyleNature, StyleMLA:
		return nil
	}
	return common.Validationf("style", "unsupported style %q", style)
}

func sortCitations(citations []common.Citation, sortBy string) {
	sort.Slice(citations, func(i, j int) bool {
		a, b := citations[i], citations[j]
		switch sortBy {
		case SortByYear:
			if a.Year != b.Year {
				return a.Year < b.Year
			}
		case SortByTitle:
			at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if at != bt {
				return at < bt
			}
		case SortByUsage:
			if a.UsageCount != b.UsageCount {
				return a.UsageCount > b.UsageCount
			}
		default: // author
			aa, ba := strings.ToLower(firstAuthorLastName(a)), strings.ToLower(firstAuthorLastName(b))
			if aa != ba {
				return aa < ba
			}
		}
		return a.Key < b.Key
	})
}

// apaAuthors joins all authors with "&" before the last when there are
// at most seven, otherwise the first six, an ellipsis, and the last.
func apaAuthors(authors []string) string {
	switch {
	case len(authors) == 0:
		return ""
	case len(authors) == 1:
		return authors[0]
	case len(authors) <= 7:
		return strings.Join(authors[:len(authors)-1], ", ") + " & " + authors[len(authors)-1]
	default:
		return strings.Join(authors[:6], ", ") + ", … " + authors[len(authors)-1]
	}
}

// ieeeAuthors abbreviates to "et al." beyond three authors.
func ieeeAuthors(authors []string) string {
	if len(authors) > 3 {
		return authors[0] + " et al."
	}
	return strings.Join(authors, ", ")
}

// natureAuthors joins with "&" for up to five authors, otherwise first
// author plus "et al.".
func natureAuthors(authors []string) string {
	switch {
	case len(authors) == 0:
		return ""
	case len(authors) == 1:
		return authors[0]
	case len(authors) <= 5:
		return strings.Join(authors[:len(authors)-1], ", ") + " & " + authors[len(authors)-1]
	default:
		return authors[0] + " et al."
	}
}

// mlaAuthors abbreviates to "et al." beyond a single author.
func mlaAuthors(authors []string) string {
	if len(authors) == 0 {
		return ""
	}
	if len(authors) > 1 {
		return authors[0] + ", et al."
	}
	return authors[0]
}

func apaEntry(c common.Citation) string {
	var b strings.Builder
	if authors := apaAuthors(c.Authors); authors != "" {
		b.WriteString(authors)
		b.WriteString(" ")
	}
	b.WriteString("(" + yearOrND(c.Year) + "). ")
	b.WriteString(c.Title + ".")
	if c.Journal != "" {
		b.WriteString(" " + c.Journal + ".")
	}
	if c.DOI != "" {
		b.WriteString(" https://doi.org/" + c.DOI)
	} else if c.URL != "" {
		b.WriteString(" " + c.URL)
	}
	return b.String()
}

func ieeeEntry(c common.Citation) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%d] ", c.SeqNo))
	if authors := ieeeAuthors(c.Authors); authors != "" {
		b.WriteString(authors + ", ")
	}
	b.WriteString(`"` + c.Title + `,"`)
	if c.Journal != "" {
		b.WriteString(" " + c.Journal + ",")
	}
	if c.Year != 0 {
		b.WriteString(fmt.Sprintf(" %d.", c.Year))
	} else {
		b.WriteString(" n.d.")
	}
	return b.String()
}

func natureEntry(c common.Citation) string {
	var b strings.Builder
	if authors := natureAuthors(c.Authors); authors != "" {
		b.WriteString(authors + ". ")
	}
	b.WriteString(c.Title + ".")
	if c.Journal != "" {
		b.WriteString(" " + c.Journal)
	}
	if c.Year != 0 {
		b.WriteString(fmt.Sprintf(" (%d).", c.Year))
	} else if c.Journal != "" {
		b.WriteString(".")
	}
	return b.String()
}

func mlaEntry(c common.Citation) string {
	var b strings.Builder
	if authors := mlaAuthors(c.Authors); authors != "" {
		b.WriteString(authors + ". ")
	}
	b.WriteString(`"` + c.Title + `."`)
	if c.Journal != "" {
		b.WriteString(" " + c.Journal + ",")
	}
	if c.Year != 0 {
		b.WriteString(fmt.Sprintf(" %d.", c.Year))
	}
	return strings.TrimSpace(b.String())
}

func apaInText(c common.Citation) string {
	year := yearOrND(c.Year)
	switch len(c.Authors) {
	case 0:
		return "(" + c.Key + ", " + year + ")"
	case 1:
		return "(" + lastName(c.Authors[0]) + ", " + year + ")"
	case 2:
		return "(" + lastName(c.Authors[0]) + " & " + lastName(c.Authors[1]) + ", " + year + ")"
	default:
		return "(" + lastName(c.Authors[0]) + " et al., " + year + ")"
	}
}

func mlaInText(c common.Citation, page string) string {
	if len(c.Authors) == 0 {
		return "(" + c.Key + ")"
	}
	name := lastName(c.Authors[0])
	if len(c.Authors) > 1 {
		name += " et al."
	}
	if page != "" {
		return "(" + name + ", " + page + ")"
	}
	return "(" + name + ")"
}

func yearOrND(year int) string {
	if year == 0 {
		return "n.d."
	}
	return fmt.Sprintf("%d", year)
}

func firstAuthorLastName(c common.Citation) string {
	if len(c.Authors) == 0 {
		return c.Key
	}
	return lastName(c.Authors[0])
}

func lastName(fullName string) string {
	fields := strings.Fields(fullName)
	if len(fields) == 0 {
		return fullName
	}
	return fields[len(fields)-1]
}

var superscriptDigits = map[rune]rune{
	'0': '⁰', '1': '¹', '2': '²', '3': '³', '4': '⁴',
	'5': '⁵', '6': '⁶', '7': '⁷', '8': '⁸', '9': '⁹',
}

func superscript(n int64) string {
	plain := fmt.Sprintf("%d", n)
	var b strings.Builder
	for _, r := range plain {
		if s, ok := superscriptDigits[r]; ok {
			b.WriteRune(s)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
