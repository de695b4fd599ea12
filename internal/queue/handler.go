package queue

import (
	"context"

	"github.com/citemesh/backend/pkg/ai"
	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/provenance"
	"github.com/citemesh/backend/pkg/store"
)

// ExtractionPayload is what the analysis pipeline enqueues per
// document: discovered entities, the citations supporting them, and
// relationships between the entities. The producer is an LLM stage, so
// payloads are parsed tolerantly.
type ExtractionPayload struct {
	DocumentPath  string                  `json:"document_path,omitempty"`
	Entities      []ExtractedEntity       `json:"entities"`
	Citations     []ExtractedCitation     `json:"citations"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

type ExtractedEntity struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence float64        `json:"confidence"`
	Context    string         `json:"context,omitempty"`
}

type ExtractedCitation struct {
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Year       int      `json:"year,omitempty"`
	Journal    string   `json:"journal,omitempty"`
	DOI        string   `json:"doi,omitempty"`
	URL        string   `json:"url,omitempty"`
	Context    string   `json:"context,omitempty"`
	Confidence float64  `json:"confidence"`
}

type ExtractedRelationship struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
}

// PayloadSchema returns the JSON schema of ExtractionPayload for
// upstream producers.
func PayloadSchema() any {
	return ai.GenerateSchema(ExtractionPayload{})
}

// ProcessIngestMessage replays one extraction payload into the stores:
// citations first, then entities referencing them, then relationships.
// Per-item failures are logged and skipped; the message only fails when
// the payload itself cannot be parsed.
func ProcessIngestMessage(
	ctx context.Context,
	linker *provenance.Linker,
	graph store.EntityGraphRepository,
	body string,
) error {
	var payload ExtractionPayload
	if err := ai.UnmarshalFlexible(body, &payload); err != nil {
		return common.Processingf("ingest: parse payload", err)
	}

	citations := make([]common.Citation, 0, len(payload.Citations))
	for _, c := range payload.Citations {
		citation := common.Citation{
			Title:        c.Title,
			Authors:      c.Authors,
			Year:         c.Year,
			Journal:      c.Journal,
			DOI:          c.DOI,
			URL:          c.URL,
			DocumentPath: payload.DocumentPath,
			Confidence:   c.Confidence,
		}
		if c.Context != "" {
			citation.SourceLocations = []string{c.Context}
		}
		citations = append(citations, citation)
	}

	citationKeys := make([]string, 0)
	entityCount := 0
	for _, e := range payload.Entities {
		entity := common.Entity{
			ID:         e.ID,
			Type:       e.Type,
			Name:       e.Name,
			Properties: e.Properties,
			Confidence: e.Confidence,
		}
		if payload.DocumentPath != "" {
			entity.DocumentSource = payload.DocumentPath
		}

		result, err := linker.CreateEntityWithProvenance(ctx, entity, citations)
		if err != nil {
			logger.Error("[Queue][Ingest] Entity failed", "entity", e.ID, "err", err)
			continue
		}
		entityCount++
		citationKeys = store.DedupeStrings(append(citationKeys, result.CitationKeys...))
	}

	relationshipCount := 0
	for _, r := range payload.Relationships {
		_, err := graph.UpsertRelationship(ctx, common.Relationship{
			SourceID:     r.Source,
			TargetID:     r.Target,
			Type:         r.Type,
			Confidence:   r.Confidence,
			Context:      r.Context,
			CitationKeys: citationKeys,
		})
		if err != nil {
			logger.Error("[Queue][Ingest] Relationship failed",
				"source", r.Source, "target", r.Target, "type", r.Type, "err", err)
			continue
		}
		relationshipCount++
	}

	logger.Info("[Queue][Ingest] Payload processed",
		"document", payload.DocumentPath,
		"entities", entityCount,
		"citations", len(citationKeys),
		"relationships", relationshipCount,
	)
	return nil
}
