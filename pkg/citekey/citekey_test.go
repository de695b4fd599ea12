package citekey

import (
	"testing"
	"time"

	"github.com/citemesh/backend/pkg/common"
)

func TestDerive_KnownExample(t *testing.T) {
	key := Derive("Attention Is All You Need", []string{"Ashish Vaswani"}, 2017)
	if key != "vaswani2017attention" {
		t.Fatalf("expected vaswani2017attention, got %q", key)
	}
}

func TestDerive_Deterministic(t *testing.T) {
	a := Derive("Deep Residual Learning", []string{"Kaiming He"}, 2015)
	b := Derive("Deep Residual Learning", []string{"Kaiming He"}, 2015)
	if a != b {
		t.Fatalf("expected identical keys, got %q and %q", a, b)
	}
}

func TestDerive_MissingFields(t *testing.T) {
	key := Derive("", nil, 0)
	if key != "unknownunknownuntitled" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestDerive_SkipsShortTitleWords(t *testing.T) {
	key := Derive("On the Origin of Species", []string{"Charles Darwin"}, 1859)
	if key != "darwin1859origin" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestDerive_StripsNonAlpha(t *testing.T) {
	key := Derive("GPT-4: Technical Report", []string{"J. O'Brien"}, 2023)
	if key != "obrien2023gpt4" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestResolveKey_FreeSlot(t *testing.T) {
	lookup := func(string) *common.Citation { return nil }
	key, existing := ResolveKey(lookup, common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017})
	if key != "vaswani2017attention" {
		t.Fatalf("unexpected key %q", key)
	}
	if existing != nil {
		t.Fatalf("expected no existing record, got %+v", existing)
	}
}

func TestResolveKey_MergeTarget(t *testing.T) {
	stored := common.Citation{
		Key:     "vaswani2017attention",
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
	}
	lookup := func(key string) *common.Citation {
		if key == stored.Key {
			c := stored
			return &c
		}
		return nil
	}

	key, existing := ResolveKey(lookup, common.Citation{Title: "attention is all you need", Authors: []string{"ashish vaswani"}, Year: 2017})
	if key != "vaswani2017attention" {
		t.Fatalf("unexpected key %q", key)
	}
	if existing == nil {
		t.Fatal("expected merge target")
	}
}

func TestResolveKey_SuffixOnCollision(t *testing.T) {
	occupied := map[string]common.Citation{
		"vaswani2017attention": {
			Key:     "vaswani2017attention",
			Title:   "Attention Mechanisms in Vision",
			Authors: []string{"Rohit Vaswani"},
			Year:    2017,
		},
		"vaswani2017attention_1": {
			Key:     "vaswani2017attention_1",
			Title:   "Attention and Memory",
			Authors: []string{"Priya Vaswani"},
			Year:    2017,
		},
	}
	lookup := func(key string) *common.Citation {
		if c, ok := occupied[key]; ok {
			return &c
		}
		return nil
	}

	key, existing := ResolveKey(lookup, common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017})
	if key != "vaswani2017attention_2" {
		t.Fatalf("expected suffixed key, got %q", key)
	}
	if existing != nil {
		t.Fatalf("expected free slot, got %+v", existing)
	}
}

func TestMerge_UnionsAndFills(t *testing.T) {
	now := time.Now()
	existing := common.Citation{
		Key:             "vaswani2017attention",
		Title:           "Attention Is All You Need",
		Authors:         []string{"Ashish Vaswani"},
		Year:            2017,
		LinkedEntityIDs: []string{"e1"},
		EntityContexts:  map[string]string{"e1": "transformer"},
		Confidence:      0.6,
	}
	incoming := common.Citation{
		Title:           "Attention Is All You Need",
		Authors:         []string{"Ashish Vaswani"},
		Journal:         "NeurIPS",
		LinkedEntityIDs: []string{"e1", "e2"},
		EntityContexts:  map[string]string{"e2": "self-attention"},
		Confidence:      0.9,
		LastUsed:        now,
	}

	merged := Merge(existing, incoming)
	if merged.Journal != "NeurIPS" {
		t.Fatalf("expected journal to fill in, got %q", merged.Journal)
	}
	if len(merged.LinkedEntityIDs) != 2 {
		t.Fatalf("expected 2 linked entities, got %v", merged.LinkedEntityIDs)
	}
	if merged.EntityContexts["e1"] != "transformer" || merged.EntityContexts["e2"] != "self-attention" {
		t.Fatalf("unexpected contexts %v", merged.EntityContexts)
	}
	if merged.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", merged.Confidence)
	}
	if !merged.LastUsed.Equal(now) {
		t.Fatalf("expected last used to advance")
	}
}

func TestMerge_Commutative(t *testing.T) {
	a := common.Citation{
		Title:           "Attention Is All You Need",
		Authors:         []string{"Ashish Vaswani"},
		LinkedEntityIDs: []string{"e1"},
		Confidence:      0.5,
	}
	b := common.Citation{
		Title:           "Attention Is All You Need",
		Authors:         []string{"Ashish Vaswani"},
		LinkedEntityIDs: []string{"e2"},
		Confidence:      0.8,
	}

	ab := Merge(a, b)
	ba := Merge(b, a)

	if len(ab.LinkedEntityIDs) != 2 || len(ba.LinkedEntityIDs) != 2 {
		t.Fatalf("expected both orders to union entities: %v vs %v", ab.LinkedEntityIDs, ba.LinkedEntityIDs)
	}
	if ab.Confidence != ba.Confidence {
		t.Fatalf("expected confidence to converge: %v vs %v", ab.Confidence, ba.Confidence)
	}
}

func TestIsValidKey(t *testing.T) {
	cases := []struct {
		key   string
		valid bool
	}{
		{"vaswani2017attention", true},
		{"vaswani2017attention_1", true},
		{"", false},
		{"Vaswani2017", false},
		{"key with space", false},
		{"key-dash", false},
	}
	for _, tc := range cases {
		if got := IsValidKey(tc.key); got != tc.valid {
			t.Fatalf("IsValidKey(%q) = %v, want %v", tc.key, got, tc.valid)
		}
	}
}
