package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/citemesh/backend/pkg/citekey"
	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store"
)

// CitationStore is the embedded CitationRepository. It backs tests and
// single-process deployments; the pgx store is the networked
// counterpart behind the same interface.
type CitationStore struct {
	mu         sync.Mutex
	citations  map[string]*common.Citation
	events     map[string][]common.UsageEvent
	collisions []string
	nextSeq    int64
}

func NewCitationStore() *CitationStore {
	return &CitationStore{
		citations: make(map[string]*common.Citation),
		events:    make(map[string][]common.UsageEvent),
	}
}

func (s *CitationStore) AddOrMerge(ctx context.Context, c common.Citation) (string, bool, error) {
	if err := store.ValidateCitation(c); err != nil {
		return "", false, err
	}
	c.Confidence = common.ClampConfidence(c.Confidence)

	s.mu.Lock()
	defer s.mu.Unlock()

	lookup := func(key string) *common.Citation {
		return s.citations[key]
	}
	key, existing := citekey.ResolveKey(lookup, c)

	if existing != nil {
		merged := citekey.Merge(*existing, c)
		merged.Key = existing.Key
		merged.SeqNo = existing.SeqNo
		merged.UsageCount = existing.UsageCount
		s.citations[key] = &merged
		return key, true, nil
	}

	base := citekey.Derive(c.Title, c.Authors, c.Year)
	if key != base {
		s.collisions = append(s.collisions, base)
	}

	s.nextSeq++
	c.Key = key
	c.SeqNo = s.nextSeq
	s.citations[key] = cloneCitation(&c)
	return key, false, nil
}

func (s *CitationStore) Get(ctx context.Context, key string) (*common.Citation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.citations[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneCitation(c), nil
}

func (s *CitationStore) All(ctx context.Context) ([]common.Citation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(*common.Citation) bool { return true }), nil
}

func (s *CitationStore) Used(ctx context.Context) ([]common.Citation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(c *common.Citation) bool { return c.UsageCount > 0 }), nil
}

func (s *CitationStore) Unused(ctx context.Context) ([]common.Citation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(func(c *common.Citation) bool { return c.UsageCount == 0 }), nil
}

func (s *CitationStore) Search(ctx context.Context, query string, filter store.SearchFilter) ([]store.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms := store.SearchTerms(query)
	results := make([]store.SearchResult, 0)

	for _, c := range s.citations {
		if !store.MatchesFilter(*c, filter) {
			continue
		}
		score := store.ScoreTerms(store.SearchBlob(*c), terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		results = append(results, store.SearchResult{Citation: *cloneCitation(c), Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Citation.Key < results[j].Citation.Key
	})

	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *CitationStore) Stats(ctx context.Context) (*common.CitationStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &common.CitationStats{}
	journalCounts := make(map[string]int)
	confidenceSum := 0.0

	for _, c := range s.citations {
		stats.Total++
		if c.UsageCount > 0 {
			stats.Used++
		} else {
			stats.Unused++
		}
		confidenceSum += c.Confidence
		if c.Year != 0 {
			if stats.YearMin == 0 || c.Year < stats.YearMin {
				stats.YearMin = c.Year
			}
			if c.Year > stats.YearMax {
				stats.YearMax = c.Year
			}
		}
		if c.Journal != "" {
			journalCounts[c.Journal]++
		}
	}

	if stats.Total > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.Total)
	}
	stats.TopJournals = topJournals(journalCounts, 5)
	return stats, nil
}

func (s *CitationStore) LinkEntity(ctx context.Context, key, entityID, linkContext string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.citations[key]
	if !ok {
		return false, nil
	}

	found := false
	for _, id := range c.LinkedEntityIDs {
		if id == entityID {
			found = true
			break
		}
	}
	if !found {
		c.LinkedEntityIDs = append(c.LinkedEntityIDs, entityID)
	}
	if linkContext != "" {
		if c.EntityContexts == nil {
			c.EntityContexts = make(map[string]string)
		}
		c.EntityContexts[entityID] = linkContext
	}
	return true, nil
}

func (s *CitationStore) AppendUsage(ctx context.Context, event common.UsageEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.citations[event.CitationKey]
	if !ok {
		return false, nil
	}

	prior := len(s.events[event.CitationKey])
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	event.Confidence = common.ClampConfidence(event.Confidence)
	s.events[event.CitationKey] = append(s.events[event.CitationKey], event)

	c.UsageCount = prior + 1
	c.Confidence = store.RunningAverage(c.Confidence, prior, event.Confidence)
	if c.FirstUsed.IsZero() || event.RecordedAt.Before(c.FirstUsed) {
		c.FirstUsed = event.RecordedAt
	}
	c.LastUsed = store.LaterOf(c.LastUsed, event.RecordedAt)
	return true, nil
}

func (s *CitationStore) UsageEvents(ctx context.Context, key string) ([]common.UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[key]
	out := make([]common.UsageEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *CitationStore) AllUsageEvents(ctx context.Context) ([]common.UsageEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.events))
	for key := range s.events {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]common.UsageEvent, 0)
	for _, key := range keys {
		out = append(out, s.events[key]...)
	}
	return out, nil
}

func (s *CitationStore) RemoveUsageEvents(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	removed := 0
	for key, events := range s.events {
		kept := events[:0]
		for _, ev := range events {
			if _, ok := drop[ev.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, ev)
		}
		if len(kept) == 0 {
			delete(s.events, key)
		} else {
			s.events[key] = kept
		}
	}
	return removed, nil
}

func (s *CitationStore) SetUsageStats(ctx context.Context, key string, count int, first, last time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.citations[key]
	if !ok {
		return common.ErrNotFound
	}
	c.UsageCount = count
	c.FirstUsed = first
	c.LastUsed = last
	return nil
}

func (s *CitationStore) KeyCollisions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.collisions))
	copy(out, s.collisions)
	return out, nil
}

func (s *CitationStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.citations = make(map[string]*common.Citation)
	s.events = make(map[string][]common.UsageEvent)
	s.collisions = nil
	s.nextSeq = 0
	return nil
}

func (s *CitationStore) snapshot(keep func(*common.Citation) bool) []common.Citation {
	out := make([]common.Citation, 0, len(s.citations))
	for _, c := range s.citations {
		if keep(c) {
			out = append(out, *cloneCitation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNo < out[j].SeqNo })
	return out
}

func cloneCitation(c *common.Citation) *common.Citation {
	out := *c
	out.Authors = append([]string(nil), c.Authors...)
	out.LinkedEntityIDs = append([]string(nil), c.LinkedEntityIDs...)
	out.SourceLocations = append([]string(nil), c.SourceLocations...)
	if c.EntityContexts != nil {
		out.EntityContexts = make(map[string]string, len(c.EntityContexts))
		for k, v := range c.EntityContexts {
			out.EntityContexts[k] = v
		}
	}
	return &out
}

func topJournals(counts map[string]int, limit int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > limit {
		names = names[:limit]
	}
	return names
}
