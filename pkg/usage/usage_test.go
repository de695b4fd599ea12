package usage

import (
	"context"
	"errors"
	"testing"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store/memory"
)

func TestTrack_KnownKey(t *testing.T) {
	ctx := context.Background()
	citations := memory.NewCitationStore()
	tracker := NewTracker(citations)

	key, _, err := citations.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
	})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := tracker.Track(ctx, TrackParams{
			CitationKey: key,
			Context:     "background section",
			Confidence:  0.9,
		})
		if err != nil || !ok {
			t.Fatalf("track %d: ok=%v err=%v", i, ok, err)
		}
	}

	summary, err := tracker.GetUsage(ctx, key)
	if err != nil {
		t.Fatalf("get usage failed: %v", err)
	}
	if summary.Count != 3 {
		t.Fatalf("expected 3 uses, got %d", summary.Count)
	}
	if len(summary.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(summary.Events))
	}
	if summary.FirstUsed.IsZero() || summary.LastUsed.Before(summary.FirstUsed) {
		t.Fatalf("bad usage window %v..%v", summary.FirstUsed, summary.LastUsed)
	}

	c, _ := citations.Get(ctx, key)
	if c.UsageCount != 3 {
		t.Fatalf("cached counter should match events, got %d", c.UsageCount)
	}
}

func TestTrack_UnknownKeyIsFalseNotError(t *testing.T) {
	ctx := context.Background()
	citations := memory.NewCitationStore()
	tracker := NewTracker(citations)

	ok, err := tracker.Track(ctx, TrackParams{CitationKey: "phantom2024nothing"})
	if err != nil {
		t.Fatalf("unknown key must not error: %v", err)
	}
	if ok {
		t.Fatal("unknown key must report false")
	}

	all, _ := citations.All(ctx)
	if len(all) != 0 {
		t.Fatal("tracking must never create citations")
	}
}

func TestGetUsage_UnknownKey(t *testing.T) {
	tracker := NewTracker(memory.NewCitationStore())
	if _, err := tracker.GetUsage(context.Background(), "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTrack_EventIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	citations := memory.NewCitationStore()
	tracker := NewTracker(citations)

	key, _, _ := citations.AddOrMerge(ctx, common.Citation{
		Title:   "Deep Residual Learning",
		Authors: []string{"Kaiming He"},
		Year:    2015,
	})

	for i := 0; i < 5; i++ {
		if ok, err := tracker.Track(ctx, TrackParams{CitationKey: key, Confidence: 0.5}); err != nil || !ok {
			t.Fatalf("track failed: ok=%v err=%v", ok, err)
		}
	}

	events, _ := citations.UsageEvents(ctx, key)
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			t.Fatal("event id must not be empty")
		}
		if _, dup := seen[ev.ID]; dup {
			t.Fatalf("duplicate event id %q", ev.ID)
		}
		seen[ev.ID] = struct{}{}
	}
}
