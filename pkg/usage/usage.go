package usage

import (
	"context"
	"time"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/store"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Tracker records downstream uses of citations against the append-only
// event log. Counts and the usage window on the citation record are
// maintained by the repository; the tracker never creates citations.
type Tracker struct {
	citations store.CitationRepository
}

func NewTracker(citations store.CitationRepository) *Tracker {
	return &Tracker{citations: citations}
}

// TrackParams describes a single usage occurrence.
type TrackParams struct {
	CitationKey string
	Context     string
	Section     string
	Confidence  float64
}

// Track appends a usage event for the given citation key. Returns false
// when the key is unknown; nothing is created in that case.
func (t *Tracker) Track(ctx context.Context, params TrackParams) (bool, error) {
	id, err := gonanoid.New()
	if err != nil {
		return false, common.Processingf("track: generate event id", err)
	}

	ok, err := t.citations.AppendUsage(ctx, common.UsageEvent{
		ID:          id,
		CitationKey: params.CitationKey,
		Context:     params.Context,
		Section:     params.Section,
		Confidence:  common.ClampConfidence(params.Confidence),
		RecordedAt:  time.Now().UTC(),
	})
	if err != nil {
		return false, err
	}
	if !ok {
		logger.Warn("[Usage][Track] Unknown citation key", "key", params.CitationKey)
	}
	return ok, nil
}

// Summary is the per-citation usage report.
type Summary struct {
	CitationKey   string              `json:"citation_key"`
	Count         int                 `json:"count"`
	FirstUsed     time.Time           `json:"first_used,omitzero"`
	LastUsed      time.Time           `json:"last_used,omitzero"`
	AvgConfidence float64             `json:"avg_confidence"`
	Events        []common.UsageEvent `json:"events"`
}

// GetUsage returns the usage summary for a citation. The count comes
// from the event log, not the cached counter.
func (t *Tracker) GetUsage(ctx context.Context, key string) (*Summary, error) {
	c, err := t.citations.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	events, err := t.citations.UsageEvents(ctx, key)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		CitationKey: key,
		Count:       len(events),
		FirstUsed:   c.FirstUsed,
		LastUsed:    c.LastUsed,
		Events:      events,
	}
	if len(events) > 0 {
		sum := 0.0
		for _, ev := range events {
			sum += ev.Confidence
		}
		summary.AvgConfidence = sum / float64(len(events))
	}
	return summary, nil
}
