package common

import "time"

// Citation is a deduplicated record of a cited source. Each citation is
// identified by a derived slug key and carries denormalized usage and
// linkage data so that the citation catalog can answer provenance
// questions without consulting the graph store.
//
// Invariants maintained by the stores:
//   - Key is unique within the catalog.
//   - UsageCount equals the number of recorded usage events (the event
//     log is the source of truth; the counter is a cache).
//   - Confidence stays within [0, 1].
type Citation struct {
	Key             string            `json:"key"`
	SeqNo           int64             `json:"seq_no"`
	Title           string            `json:"title"`
	Authors         []string          `json:"authors"`
	Year            int               `json:"year,omitempty"`
	Journal         string            `json:"journal,omitempty"`
	DOI             string            `json:"doi,omitempty"`
	URL             string            `json:"url,omitempty"`
	Abstract        string            `json:"abstract,omitempty"`
	DocumentPath    string            `json:"document_path,omitempty"`
	UsageCount      int               `json:"usage_count"`
	FirstUsed       time.Time         `json:"first_used,omitzero"`
	LastUsed        time.Time         `json:"last_used,omitzero"`
	LinkedEntityIDs []string          `json:"linked_entity_ids,omitempty"`
	EntityContexts  map[string]string `json:"entity_contexts,omitempty"`
	SourceLocations []string          `json:"source_locations,omitempty"`
	Confidence      float64           `json:"confidence"`
}

// Entity represents a discovered object (person, method, concept) in
// source text. Entities are upserted by ID; re-ingestion updates
// properties in place rather than duplicating nodes.
type Entity struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Properties     map[string]any `json:"properties,omitempty"`
	Confidence     float64        `json:"confidence"`
	DocumentSource string         `json:"document_source,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitzero"`
}

// Relationship is a typed, directed edge between two entities. The
// composite key (SourceID, TargetID, Type) is unique; repeated upserts
// merge properties and supporting citation keys instead of duplicating
// the edge.
type Relationship struct {
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	Type         string         `json:"type"`
	Properties   map[string]any `json:"properties,omitempty"`
	Confidence   float64        `json:"confidence"`
	Context      string         `json:"context,omitempty"`
	CitationKeys []string       `json:"citation_keys,omitempty"`
}

// Link is a bidirectional entity↔citation association. A link is
// logically one per (entity_id, citation_key) pair and must be
// discoverable from both the graph store (as an edge) and the citation
// record (as set membership). The dual write is eventual, not atomic.
type Link struct {
	EntityID    string    `json:"entity_id"`
	CitationKey string    `json:"citation_key"`
	Context     string    `json:"context,omitempty"`
	Confidence  float64   `json:"confidence"`
	LinkedAt    time.Time `json:"linked_at,omitzero"`
}

// UsageEvent records a single downstream use of a citation. Events are
// append-only; usage counts are always recomputable from them.
type UsageEvent struct {
	ID          string    `json:"id"`
	CitationKey string    `json:"citation_key"`
	Context     string    `json:"context,omitempty"`
	Section     string    `json:"section,omitempty"`
	Confidence  float64   `json:"confidence"`
	RecordedAt  time.Time `json:"recorded_at,omitzero"`
}

// CitationImpact summarizes how much of the graph a citation supports.
type CitationImpact struct {
	CitationKey       string  `json:"citation_key"`
	EntityCount       int     `json:"entity_count"`
	RelationshipCount int     `json:"relationship_count"`
	AvgConfidence     float64 `json:"avg_confidence"`
}

// CitationStats is the catalog-level summary returned by the stats
// operation.
type CitationStats struct {
	Total         int      `json:"total"`
	Used          int      `json:"used"`
	Unused        int      `json:"unused"`
	AvgConfidence float64  `json:"avg_confidence"`
	YearMin       int      `json:"year_min,omitempty"`
	YearMax       int      `json:"year_max,omitempty"`
	TopJournals   []string `json:"top_journals,omitempty"`
}

// ClampConfidence forces a confidence score into [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
