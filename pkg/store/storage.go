package store

import (
	"context"
	"time"

	"github.com/citemesh/backend/pkg/common"
)

// SearchFilter narrows citation search results.
type SearchFilter struct {
	YearFrom int
	YearTo   int
	Journal  string
	UsedOnly bool
	Limit    int
}

// SearchResult pairs a citation with its ranking score. Higher is more
// relevant.
type SearchResult struct {
	Citation common.Citation `json:"citation"`
	Score    float64         `json:"score"`
}

// CitationRepository persists deduplicated citation records keyed by
// their derived slug. Implementations must make AddOrMerge an
// idempotent merge: at most one record exists per distinct
// (title, authors, year) identity, and re-adding the same identity
// merges into it rather than duplicating.
type CitationRepository interface {
	// AddOrMerge derives the key for c, merging into an existing record
	// when the identity matches and storing under a suffixed key when it
	// does not. Returns the resolved key and whether an existing record
	// was merged.
	AddOrMerge(ctx context.Context, c common.Citation) (string, bool, error)
	Get(ctx context.Context, key string) (*common.Citation, error)
	All(ctx context.Context) ([]common.Citation, error)
	Used(ctx context.Context) ([]common.Citation, error)
	Unused(ctx context.Context) ([]common.Citation, error)
	// Search ranks citations against a free-text query over the
	// denormalized title+authors+abstract blob. An empty store yields an
	// empty list, never an error.
	Search(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error)
	Stats(ctx context.Context) (*common.CitationStats, error)

	// LinkEntity adds entityID to the citation's linked set and records
	// the context. Returns false when the key is unknown.
	LinkEntity(ctx context.Context, key, entityID, context string) (bool, error)

	// AppendUsage appends a usage event, bumps the cached usage count,
	// advances first/last used and folds the event confidence into the
	// record as a running average. Returns false when the key is
	// unknown; no phantom record is created.
	AppendUsage(ctx context.Context, event common.UsageEvent) (bool, error)
	UsageEvents(ctx context.Context, key string) ([]common.UsageEvent, error)
	AllUsageEvents(ctx context.Context) ([]common.UsageEvent, error)

	// RemoveUsageEvents deletes events by ID and returns how many were
	// removed. Used by integrity repair only.
	RemoveUsageEvents(ctx context.Context, ids []string) (int, error)
	// SetUsageStats overwrites the cached usage counters for key. Used
	// by integrity repair only.
	SetUsageStats(ctx context.Context, key string, count int, first, last time.Time) error

	// KeyCollisions lists base keys that required suffix resolution
	// since the store was created, for the integrity report.
	KeyCollisions(ctx context.Context) ([]string, error)

	Clear(ctx context.Context) error
}

// EntityGraphRepository persists entity nodes, typed relationship edges
// and citation linkage edges. All upserts are idempotent by key or
// composite key: repeated calls update properties in place and never
// duplicate nodes or edges.
type EntityGraphRepository interface {
	// UpsertEntity creates or updates the entity and merges CITED_BY
	// edges for the supplied citation keys in the same call. Returns
	// true when the entity was created.
	UpsertEntity(ctx context.Context, e common.Entity, citationKeys []string) (bool, error)
	// UpsertRelationship creates or updates the edge identified by
	// (source, target, type) and merges SUPPORTED_BY edges for its
	// citation keys. Returns true when the edge was created.
	UpsertRelationship(ctx context.Context, r common.Relationship) (bool, error)
	// LinkEntityToCitation creates or refreshes a CITED_BY edge. Returns
	// false when the entity does not exist.
	LinkEntityToCitation(ctx context.Context, l common.Link) (bool, error)

	GetEntity(ctx context.Context, id string) (*common.Entity, error)
	// EntityCitations returns the citation links recorded for an entity.
	EntityCitations(ctx context.Context, entityID string) ([]common.Link, error)
	EntitiesByCitation(ctx context.Context, citationKey string) ([]common.Entity, error)
	EntityRelationships(ctx context.Context, entityID string) ([]common.Relationship, error)
	CitationImpact(ctx context.Context, citationKey string) (*common.CitationImpact, error)

	Clear(ctx context.Context) error
}
