package bibliography

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store/memory"
)

func seedStore(t *testing.T) *memory.CitationStore {
	t.Helper()
	ctx := context.Background()
	s := memory.NewCitationStore()

	add := func(c common.Citation) string {
		key, _, err := s.AddOrMerge(ctx, c)
		if err != nil {
			t.Fatalf("seed add failed: %v", err)
		}
		return key
	}

	add(common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani", "Noam Shazeer"}, Year: 2017, Journal: "NeurIPS"})
	add(common.Citation{Title: "Deep Residual Learning", Authors: []string{"Kaiming He"}, Year: 2015, Journal: "CVPR"})
	used := add(common.Citation{Title: "Neural Attention Models", Authors: []string{"Dzmitry Bahdanau"}, Year: 2014, Journal: "ICLR"})

	if ok, err := s.AppendUsage(ctx, common.UsageEvent{ID: "u1", CitationKey: used, Confidence: 0.9}); err != nil || !ok {
		t.Fatalf("seed usage failed: ok=%v err=%v", ok, err)
	}
	return s
}

func TestInTextCitation_APA(t *testing.T) {
	ctx := context.Background()
	f := NewFormatter(seedStore(t))

	got, err := f.InTextCitation(ctx, "vaswani2017attention", StyleAPA, "")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "(Vaswani & Shazeer, 2017)" {
		t.Fatalf("unexpected APA in-text %q", got)
	}

	got, err = f.InTextCitation(ctx, "he2015deep", StyleAPA, "")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "(He, 2015)" {
		t.Fatalf("unexpected APA in-text %q", got)
	}
}

func TestInTextCitation_APAManyAuthors(t *testing.T) {
	ctx := context.Background()
	s := memory.NewCitationStore()
	key, _, err := s.AddOrMerge(ctx, common.Citation{
		Title:   "Language Models Are Few-Shot Learners",
		Authors: []string{"Tom Brown", "Benjamin Mann", "Nick Ryder"},
		Year:    2020,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	got, err := NewFormatter(s).InTextCitation(ctx, key, StyleAPA, "")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "(Brown et al., 2020)" {
		t.Fatalf("unexpected APA in-text %q", got)
	}
}

func TestInTextCitation_IEEEAndNatureUseStableSeq(t *testing.T) {
	ctx := context.Background()
	f := NewFormatter(seedStore(t))

	// he2015deep was the second insertion
	got, err := f.InTextCitation(ctx, "he2015deep", StyleIEEE, "")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "[2]" {
		t.Fatalf("unexpected IEEE index %q", got)
	}

	got, err = f.InTextCitation(ctx, "he2015deep", StyleNature, "")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "²" {
		t.Fatalf("unexpected Nature superscript %q", got)
	}
}

func TestInTextCitation_MLA(t *testing.T) {
	ctx := context.Background()
	f := NewFormatter(seedStore(t))

	got, err := f.InTextCitation(ctx, "vaswani2017attention", StyleMLA, "5")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "(Vaswani et al., 5)" {
		t.Fatalf("unexpected MLA in-text %q", got)
	}

	got, err = f.InTextCitation(ctx, "he2015deep", StyleMLA, "")
	if err != nil {
		t.Fatalf("in-text failed: %v", err)
	}
	if got != "(He)" {
		t.Fatalf("unexpected MLA in-text %q", got)
	}
}

func TestGenerateBibliography_UsedOnly(t *testing.T) {
	ctx := context.Background()
	f := NewFormatter(seedStore(t))

	entries, err := f.GenerateBibliography(ctx, Config{Style: StyleAPA, UsedOnly: true})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the used citation, got %d entries", len(entries))
	}
	if !strings.Contains(entries[0], "Neural Attention Models") {
		t.Fatalf("unexpected entry %q", entries[0])
	}
}

func TestGenerateBibliography_Deterministic(t *testing.T) {
	ctx := context.Background()
	f := NewFormatter(seedStore(t))

	first, err := f.GenerateBibliography(ctx, Config{Style: StyleAPA, SortBy: SortByAuthor})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	second, err := f.GenerateBibliography(ctx, Config{Style: StyleAPA, SortBy: SortByAuthor})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated calls over unchanged state must return identical output")
	}

	// author order: Bahdanau, He, Vaswani
	if !strings.Contains(first[0], "Bahdanau") || !strings.Contains(first[2], "Vaswani") {
		t.Fatalf("unexpected author order %v", first)
	}
}

func TestGenerateBibliography_SortByYearAndUsage(t *testing.T) {
	ctx := context.Background()
	f := NewFormatter(seedStore(t))

	byYear, err := f.GenerateBibliography(ctx, Config{Style: StyleAPA, SortBy: SortByYear})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(byYear[0], "2014") || !strings.Contains(byYear[2], "2017") {
		t.Fatalf("unexpected year order %v", byYear)
	}

	byUsage, err := f.GenerateBibliography(ctx, Config{Style: StyleAPA, SortBy: SortByUsage})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(byUsage[0], "Neural Attention Models") {
		t.Fatalf("most used citation must sort first, got %v", byUsage)
	}
}

func TestGenerateBibliography_UnsupportedStyle(t *testing.T) {
	f := NewFormatter(seedStore(t))
	if _, err := f.GenerateBibliography(context.Background(), Config{Style: "chicago"}); !common.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.GenerateBibliography(context.Background(), Config{Style: StyleAPA, SortBy: "color"}); !common.IsValidation(err) {
		t.Fatalf("expected validation error for sort order, got %v", err)
	}
}

func TestFormatEntry_AuthorTruncation(t *testing.T) {
	many := common.Citation{
		Key:   "brown2020language",
		SeqNo: 1,
		Title: "Language Models Are Few-Shot Learners",
		Authors: []string{
			"A One", "B Two", "C Three", "D Four",
			"E Five", "F Six", "G Seven", "H Eight",
		},
		Year: 2020,
	}

	apa, err := FormatEntry(many, StyleAPA)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if !strings.Contains(apa, "…") || !strings.Contains(apa, "H Eight") || strings.Contains(apa, "G Seven") {
		t.Fatalf("APA >7 authors must elide to first six plus last, got %q", apa)
	}

	ieee, err := FormatEntry(many, StyleIEEE)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if !strings.Contains(ieee, "A One et al.") {
		t.Fatalf("IEEE >3 authors must abbreviate, got %q", ieee)
	}

	nature, err := FormatEntry(many, StyleNature)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if !strings.Contains(nature, "A One et al.") {
		t.Fatalf("Nature >5 authors must abbreviate, got %q", nature)
	}

	mla, err := FormatEntry(many, StyleMLA)
	if err != nil {
		t.Fatalf("format failed: %v", err)
	}
	if !strings.Contains(mla, "A One, et al.") {
		t.Fatalf("MLA >1 author must abbreviate, got %q", mla)
	}
}

func TestFormatEntry_FewAuthors(t *testing.T) {
	c := common.Citation{
		Key:     "vaswani2017attention",
		SeqNo:   1,
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani", "Noam Shazeer"},
		Year:    2017,
		Journal: "NeurIPS",
	}

	apa, _ := FormatEntry(c, StyleAPA)
	if !strings.HasPrefix(apa, "Ashish Vaswani & Noam Shazeer (2017). Attention Is All You Need.") {
		t.Fatalf("unexpected APA entry %q", apa)
	}

	nature, _ := FormatEntry(c, StyleNature)
	if !strings.Contains(nature, "Ashish Vaswani & Noam Shazeer") || !strings.Contains(nature, "(2017)") {
		t.Fatalf("unexpected Nature entry %q", nature)
	}
}
