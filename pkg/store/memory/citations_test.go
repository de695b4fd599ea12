package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store"
)

func TestAddOrMerge_SameIdentityMerges(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()

	key1, merged, err := s.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
	})
	if err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if merged {
		t.Fatal("first add should not merge")
	}
	if key1 != "vaswani2017attention" {
		t.Fatalf("unexpected key %q", key1)
	}

	key2, merged, err := s.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
		Journal: "NeurIPS",
	})
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if !merged {
		t.Fatal("second add should merge")
	}
	if key2 != key1 {
		t.Fatalf("expected same key, got %q and %q", key1, key2)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(all))
	}
	if all[0].Journal != "NeurIPS" {
		t.Fatalf("expected merged journal, got %q", all[0].Journal)
	}
}

func TestAddOrMerge_CollisionGetsSuffix(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()

	key1, _, err := s.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	key2, merged, err := s.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Mechanisms in Vision",
		Authors: []string{"Rohit Vaswani"},
		Year:    2017,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if merged {
		t.Fatal("different identity should not merge")
	}
	if key2 != key1+"_1" {
		t.Fatalf("expected suffixed key, got %q", key2)
	}

	// both stay independently retrievable
	if _, err := s.Get(ctx, key1); err != nil {
		t.Fatalf("base key lookup failed: %v", err)
	}
	if _, err := s.Get(ctx, key2); err != nil {
		t.Fatalf("suffixed key lookup failed: %v", err)
	}

	collisions, err := s.KeyCollisions(ctx)
	if err != nil {
		t.Fatalf("collisions failed: %v", err)
	}
	if len(collisions) != 1 || collisions[0] != key1 {
		t.Fatalf("expected collision record for %q, got %v", key1, collisions)
	}
}

func TestAddOrMerge_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()

	if _, _, err := s.AddOrMerge(ctx, common.Citation{Title: "   "}); !common.IsValidation(err) {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
	if _, _, err := s.AddOrMerge(ctx, common.Citation{Title: "ok", Year: 9999}); !common.IsValidation(err) {
		t.Fatalf("expected validation error for bad year, got %v", err)
	}

	all, _ := s.All(ctx)
	if len(all) != 0 {
		t.Fatalf("rejected input must not be stored, got %d records", len(all))
	}
}

func TestGet_UnknownKey(t *testing.T) {
	s := NewCitationStore()
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	s := NewCitationStore()
	results, err := s.Search(context.Background(), "anything", store.SearchFilter{})
	if err != nil {
		t.Fatalf("search must not fail on empty store: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %d", len(results))
	}
}

func TestSearch_RanksAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()

	mustAdd(t, s, common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017, Abstract: "transformer attention"})
	mustAdd(t, s, common.Citation{Title: "Deep Residual Learning", Authors: []string{"Kaiming He"}, Year: 2015})
	mustAdd(t, s, common.Citation{Title: "Neural Attention Models", Authors: []string{"Dzmitry Bahdanau"}, Year: 2014, Journal: "ICLR"})

	results, err := s.Search(ctx, "attention transformer", store.SearchFilter{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(results))
	}
	if results[0].Citation.Key != "vaswani2017attention" {
		t.Fatalf("expected best match first, got %q", results[0].Citation.Key)
	}

	filtered, err := s.Search(ctx, "attention", store.SearchFilter{YearFrom: 2015})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Citation.Year != 2017 {
		t.Fatalf("expected year filter to keep only 2017, got %v", filtered)
	}
}

func TestAppendUsage_UnknownKeyCreatesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()

	ok, err := s.AppendUsage(ctx, common.UsageEvent{ID: "u1", CitationKey: "phantom"})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if ok {
		t.Fatal("unknown key must report false")
	}
	all, _ := s.All(ctx)
	if len(all) != 0 {
		t.Fatal("no phantom record may be created")
	}
	events, _ := s.AllUsageEvents(ctx)
	if len(events) != 0 {
		t.Fatal("no orphan event may be created")
	}
}

func TestAppendUsage_CountsAndRunningAverage(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()
	key := mustAdd(t, s, common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017})

	for i, conf := range []float64{0.9, 0.7} {
		ok, err := s.AppendUsage(ctx, common.UsageEvent{
			ID:          string(rune('a' + i)),
			CitationKey: key,
			Confidence:  conf,
		})
		if err != nil || !ok {
			t.Fatalf("append %d failed: ok=%v err=%v", i, ok, err)
		}
	}

	c, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if c.UsageCount != 2 {
		t.Fatalf("expected usage count 2, got %d", c.UsageCount)
	}
	if diff := c.Confidence - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected running average 0.8, got %v", c.Confidence)
	}
	if c.FirstUsed.IsZero() || c.LastUsed.Before(c.FirstUsed) {
		t.Fatalf("expected usage window to be set, got %v..%v", c.FirstUsed, c.LastUsed)
	}
}

func TestUsedUnused(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()
	used := mustAdd(t, s, common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017})
	mustAdd(t, s, common.Citation{Title: "Deep Residual Learning", Authors: []string{"Kaiming He"}, Year: 2015})

	if ok, _ := s.AppendUsage(ctx, common.UsageEvent{ID: "u1", CitationKey: used, Confidence: 0.9}); !ok {
		t.Fatal("append failed")
	}

	usedList, _ := s.Used(ctx)
	unusedList, _ := s.Unused(ctx)
	if len(usedList) != 1 || usedList[0].Key != used {
		t.Fatalf("unexpected used set %v", usedList)
	}
	if len(unusedList) != 1 || unusedList[0].Key == used {
		t.Fatalf("unexpected unused set %v", unusedList)
	}
}

func TestRemoveUsageEventsAndSetUsageStats(t *testing.T) {
	ctx := context.Background()
	s := NewCitationStore()
	key := mustAdd(t, s, common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017})

	s.AppendUsage(ctx, common.UsageEvent{ID: "u1", CitationKey: key, Confidence: 0.5})
	s.AppendUsage(ctx, common.UsageEvent{ID: "u2", CitationKey: key, Confidence: 0.5})

	removed, err := s.RemoveUsageEvents(ctx, []string{"u1"})
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removal, got %d err=%v", removed, err)
	}

	now := time.Now().UTC()
	if err := s.SetUsageStats(ctx, key, 1, now, now); err != nil {
		t.Fatalf("set usage stats failed: %v", err)
	}
	c, _ := s.Get(ctx, key)
	if c.UsageCount != 1 {
		t.Fatalf("expected repaired count 1, got %d", c.UsageCount)
	}
}

func mustAdd(t *testing.T, s *CitationStore, c common.Citation) string {
	t.Helper()
	key, _, err := s.AddOrMerge(context.Background(), c)
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	return key
}
