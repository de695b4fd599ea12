package provenance

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/citemesh/backend/internal/util"
	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/store"
)

const (
	defaultMaxTries  = 3
	defaultBaseDelay = 100 * time.Millisecond
	defaultMaxDelay  = 2 * time.Second
)

// Linker orchestrates the dual write between the citation catalog and
// the entity graph. Citations are always persisted before the entities
// that reference them, so a failure mid-batch can never leave an entity
// pointing at a citation that does not exist.
//
// Writes are not transactional across the two stores. A failed side is
// retried with bounded backoff and, if still failing, counted and
// skipped; committed work stays committed.
type Linker struct {
	citations store.CitationRepository
	graph     store.EntityGraphRepository

	maxTries  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func NewLinker(citations store.CitationRepository, graph store.EntityGraphRepository) *Linker {
	return &Linker{
		citations: citations,
		graph:     graph,
		maxTries:  defaultMaxTries,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
	}
}

// CreateResult reports what a CreateEntityWithProvenance call actually
// persisted. FailedCitations counts inputs that could not be stored
// after retries; the rest of the batch proceeds regardless.
type CreateResult struct {
	EntityID        string   `json:"entity_id"`
	Created         bool     `json:"created"`
	CitationKeys    []string `json:"citation_keys"`
	LinkedCount     int      `json:"linked_count"`
	FailedCitations int      `json:"failed_citations"`
}

// CreateEntityWithProvenance stores the supporting citations, then the
// entity, then the citation-side back references. Citation failures are
// skipped and counted; an entity upsert failure aborts since there is
// nothing to link.
func (l *Linker) CreateEntityWithProvenance(
	ctx context.Context,
	entity common.Entity,
	citations []common.Citation,
) (*CreateResult, error) {
	result := &CreateResult{EntityID: entity.ID}

	for _, c := range citations {
		var key string
		err := util.RetryBackoff(ctx, l.maxTries, l.baseDelay, l.maxDelay, func(ctx context.Context) error {
			k, _, err := l.citations.AddOrMerge(ctx, c)
			if err != nil {
				return err
			}
			key = k
			return nil
		})
		if err != nil {
			if common.IsValidation(err) {
				logger.Warn("[Provenance][Create] Rejected citation", "title", c.Title, "err", err)
			} else {
				logger.Error("[Provenance][Create] Failed to store citation", "title", c.Title, "err", err)
			}
			result.FailedCitations++
			continue
		}
		result.CitationKeys = append(result.CitationKeys, key)
	}
	result.CitationKeys = store.DedupeStrings(result.CitationKeys)

	var created bool
	err := util.RetryBackoff(ctx, l.maxTries, l.baseDelay, l.maxDelay, func(ctx context.Context) error {
		c, err := l.graph.UpsertEntity(ctx, entity, result.CitationKeys)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return result, common.Processingf("provenance: upsert entity", err)
	}
	result.Created = created

	for _, key := range result.CitationKeys {
		linkContext := ""
		if entity.Name != "" {
			linkContext = "supports " + entity.Name
		}
		err := util.RetryBackoff(ctx, l.maxTries, l.baseDelay, l.maxDelay, func(ctx context.Context) error {
			_, err := l.citations.LinkEntity(ctx, key, entity.ID, linkContext)
			return err
		})
		if err != nil {
			logger.Error("[Provenance][Create] Citation back reference failed", "key", key, "entity", entity.ID, "err", err)
			continue
		}
		result.LinkedCount++
	}

	logger.Info("[Provenance][Create] Entity linked",
		"entity", entity.ID,
		"created", result.Created,
		"citations", len(result.CitationKeys),
		"failed", result.FailedCitations,
	)
	return result, nil
}

// LinkEntitiesToCitations writes each entity↔citation association into
// both stores. A pair counts as linked only when both the graph edge
// and the citation back reference were written. The citation key is
// resolved up front, so a pair naming an unknown citation is a no-op on
// both stores rather than a dangling graph edge; pairs naming an
// unknown entity are skipped likewise. Returns the number of fully
// linked pairs.
func (l *Linker) LinkEntitiesToCitations(ctx context.Context, links []common.Link) (int, error) {
	linked := 0
	for _, link := range links {
		if _, err := l.citations.Get(ctx, link.CitationKey); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				logger.Warn("[Provenance][Link] Unknown citation key", "key", link.CitationKey)
			} else {
				logger.Error("[Provenance][Link] Citation lookup failed", "key", link.CitationKey, "err", err)
			}
			continue
		}

		var edgeOK bool
		err := util.RetryBackoff(ctx, l.maxTries, l.baseDelay, l.maxDelay, func(ctx context.Context) error {
			got, err := l.graph.LinkEntityToCitation(ctx, link)
			if err != nil {
				return err
			}
			edgeOK = got
			return nil
		})
		if err != nil {
			logger.Error("[Provenance][Link] Graph edge failed", "entity", link.EntityID, "key", link.CitationKey, "err", err)
			continue
		}
		if !edgeOK {
			logger.Warn("[Provenance][Link] Unknown entity", "entity", link.EntityID)
			continue
		}

		var backRefOK bool
		err = util.RetryBackoff(ctx, l.maxTries, l.baseDelay, l.maxDelay, func(ctx context.Context) error {
			got, err := l.citations.LinkEntity(ctx, link.CitationKey, link.EntityID, link.Context)
			if err != nil {
				return err
			}
			backRefOK = got
			return nil
		})
		if err != nil || !backRefOK {
			// graph edge is committed and retry-safe; the pair still
			// only counts once both sides are written
			logger.Error("[Provenance][Link] Citation back reference failed", "entity", link.EntityID, "key", link.CitationKey, "err", err)
			continue
		}
		linked++
	}
	return linked, nil
}

// Report is the answer to a provenance query: the entity, its CITED_BY
// edges, the resolved citations and a summary over them.
type Report struct {
	Entity    common.Entity     `json:"entity"`
	Links     []common.Link     `json:"links"`
	Citations []common.Citation `json:"citations"`
	Summary   Summary           `json:"summary"`
}

// Summary aggregates the supporting citations of one entity.
type Summary struct {
	CitationCount int      `json:"citation_count"`
	AvgConfidence float64  `json:"avg_confidence"`
	YearMin       int      `json:"year_min,omitempty"`
	YearMax       int      `json:"year_max,omitempty"`
	TopJournals   []string `json:"top_journals,omitempty"`
}

// QueryEntityProvenance resolves an entity's supporting citations.
// Links whose citation record is missing (a dangling half of the dual
// write) are kept in Links but absent from Citations.
func (l *Linker) QueryEntityProvenance(ctx context.Context, entityID string) (*Report, error) {
	entity, err := l.graph.GetEntity(ctx, entityID)
	if err != nil {
		return nil, err
	}

	links, err := l.graph.EntityCitations(ctx, entityID)
	if err != nil {
		return nil, err
	}

	report := &Report{Entity: *entity, Links: links}
	confidenceSum := 0.0
	journalCounts := make(map[string]int)

	for _, link := range links {
		confidenceSum += link.Confidence

		c, err := l.citations.Get(ctx, link.CitationKey)
		if err != nil {
			logger.Warn("[Provenance][Query] Dangling link", "entity", entityID, "key", link.CitationKey)
			continue
		}
		report.Citations = append(report.Citations, *c)

		if c.Year != 0 {
			if report.Summary.YearMin == 0 || c.Year < report.Summary.YearMin {
				report.Summary.YearMin = c.Year
			}
			if c.Year > report.Summary.YearMax {
				report.Summary.YearMax = c.Year
			}
		}
		if c.Journal != "" {
			journalCounts[c.Journal]++
		}
	}

	report.Summary.CitationCount = len(report.Citations)
	if len(links) > 0 {
		report.Summary.AvgConfidence = confidenceSum / float64(len(links))
	}
	report.Summary.TopJournals = rankJournals(journalCounts, 5)
	return report, nil
}

func rankJournals(counts map[string]int, limit int) []string {
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
