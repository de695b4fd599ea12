package pgx

import (
	"context"
	"errors"
	"time"

	"github.com/citemesh/backend/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
)

// UpsertEntity creates or updates an entity node by its public ID and
// links it to the given citations in the same transaction. Returns true
// when a new node was created.
func (s *GraphDBStore) UpsertEntity(ctx context.Context, e common.Entity, citationKeys []string) (bool, error) {
	if e.ID == "" {
		return false, common.Validationf("id", "must not be empty")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Confidence = common.ClampConfidence(e.Confidence)

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO entities (public_id, type, name, properties, confidence, document_source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (public_id) DO UPDATE SET
			type = CASE WHEN EXCLUDED.type <> '' THEN EXCLUDED.type ELSE entities.type END,
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE entities.name END,
			properties = entities.properties || EXCLUDED.properties,
			confidence = EXCLUDED.confidence,
			document_source = CASE WHEN EXCLUDED.document_source <> '' THEN EXCLUDED.document_source ELSE entities.document_source END
		RETURNING (xmax = 0)`,
		e.ID, e.Type, e.Name, propertiesOrEmpty(e.Properties), e.Confidence,
		e.DocumentSource, e.CreatedAt)

	var created bool
	if err := row.Scan(&created); err != nil {
		return false, err
	}

	for _, key := range citationKeys {
		if key == "" {
			continue
		}
		if err := upsertLink(ctx, tx, common.Link{
			EntityID:    e.ID,
			CitationKey: key,
			Confidence:  e.Confidence,
			LinkedAt:    time.Now().UTC(),
		}); err != nil {
			return false, err
		}
	}
	return created, tx.Commit(ctx)
}

// UpsertRelationship creates or updates the edge identified by
// (source, target, type), unioning supporting citation keys. Returns
// true when a new edge was created.
func (s *GraphDBStore) UpsertRelationship(ctx context.Context, r common.Relationship) (bool, error) {
	if r.SourceID == "" || r.TargetID == "" || r.Type == "" {
		return false, common.Validationf("relationship", "source, target and type are required")
	}
	r.Confidence = common.ClampConfidence(r.Confidence)

	row := s.conn.QueryRow(ctx, `
		INSERT INTO relationships (source_id, target_id, type, context, confidence, properties, citation_keys)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_id, target_id, type) DO UPDATE SET
			context = CASE WHEN EXCLUDED.context <> '' THEN EXCLUDED.context ELSE relationships.context END,
			confidence = EXCLUDED.confidence,
			properties = relationships.properties || EXCLUDED.properties,
			citation_keys = (
				SELECT coalesce(array_agg(DISTINCT k ORDER BY k), '{}')
				FROM unnest(relationships.citation_keys || EXCLUDED.citation_keys) AS k
			)
		RETURNING (xmax = 0)`,
		r.SourceID, r.TargetID, r.Type, r.Context, r.Confidence,
		propertiesOrEmpty(r.Properties), keysOrEmpty(r.CitationKeys))

	var created bool
	if err := row.Scan(&created); err != nil {
		return false, err
	}
	return created, nil
}

// LinkEntityToCitation records a CITED_BY edge. Returns false when the
// entity does not exist; repeated linking of the same pair is
// idempotent and keeps the original linked_at.
func (s *GraphDBStore) LinkEntityToCitation(ctx context.Context, l common.Link) (bool, error) {
	if l.EntityID == "" || l.CitationKey == "" {
		return false, common.Validationf("link", "entity_id and citation_key are required")
	}

	var exists bool
	err := s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entities WHERE public_id = $1)`, l.EntityID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	if l.LinkedAt.IsZero() {
		l.LinkedAt = time.Now().UTC()
	}
	if err := upsertLink(ctx, s.conn, l); err != nil {
		return false, err
	}
	return true, nil
}

func upsertLink(ctx context.Context, conn pgxIConn, l common.Link) error {
	_, err := conn.Exec(ctx, `
		INSERT INTO entity_citation_links (entity_id, citation_key, context, confidence, linked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_id, citation_key) DO UPDATE SET
			context = CASE WHEN EXCLUDED.context <> '' THEN EXCLUDED.context ELSE entity_citation_links.context END,
			confidence = greatest(entity_citation_links.confidence, EXCLUDED.confidence)`,
		l.EntityID, l.CitationKey, l.Context, common.ClampConfidence(l.Confidence), l.LinkedAt)
	return err
}

func (s *GraphDBStore) GetEntity(ctx context.Context, id string) (*common.Entity, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT public_id, type, name, properties, confidence, document_source, created_at
		FROM entities WHERE public_id = $1`, id)

	var e common.Entity
	err := row.Scan(&e.ID, &e.Type, &e.Name, &e.Properties, &e.Confidence,
		&e.DocumentSource, &e.CreatedAt)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *GraphDBStore) EntityCitations(ctx context.Context, entityID string) ([]common.Link, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT entity_id, citation_key, context, confidence, linked_at
		FROM entity_citation_links
		WHERE entity_id = $1
		ORDER BY citation_key`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Link, 0)
	for rows.Next() {
		var l common.Link
		if err := rows.Scan(&l.EntityID, &l.CitationKey, &l.Context, &l.Confidence, &l.LinkedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *GraphDBStore) EntitiesByCitation(ctx context.Context, citationKey string) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT e.public_id, e.type, e.name, e.properties, e.confidence, e.document_source, e.created_at
		FROM entities e
		JOIN entity_citation_links l ON l.entity_id = e.public_id
		WHERE l.citation_key = $1
		ORDER BY e.public_id`, citationKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Entity, 0)
	for rows.Next() {
		var e common.Entity
		err := rows.Scan(&e.ID, &e.Type, &e.Name, &e.Properties, &e.Confidence,
			&e.DocumentSource, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *GraphDBStore) EntityRelationships(ctx context.Context, entityID string) ([]common.Relationship, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source_id, target_id, type, context, confidence, properties, citation_keys
		FROM relationships
		WHERE source_id = $1 OR target_id = $1
		ORDER BY source_id, target_id, type`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Relationship, 0)
	for rows.Next() {
		var r common.Relationship
		err := rows.Scan(&r.SourceID, &r.TargetID, &r.Type, &r.Context,
			&r.Confidence, &r.Properties, &r.CitationKeys)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *GraphDBStore) CitationImpact(ctx context.Context, citationKey string) (*common.CitationImpact, error) {
	impact := &common.CitationImpact{CitationKey: citationKey}

	var (
		linkSum float64
		relSum  float64
	)
	err := s.conn.QueryRow(ctx, `
		SELECT count(*), coalesce(sum(confidence), 0)
		FROM entity_citation_links WHERE citation_key = $1`,
		citationKey).Scan(&impact.EntityCount, &linkSum)
	if err != nil {
		return nil, err
	}

	err = s.conn.QueryRow(ctx, `
		SELECT count(*), coalesce(sum(confidence), 0)
		FROM relationships WHERE $1 = ANY(citation_keys)`,
		citationKey).Scan(&impact.RelationshipCount, &relSum)
	if err != nil {
		return nil, err
	}

	samples := impact.EntityCount + impact.RelationshipCount
	if samples > 0 {
		impact.AvgConfidence = (linkSum + relSum) / float64(samples)
	}
	return impact, nil
}

func (s *GraphDBStore) Clear(ctx context.Context) error {
	_, err := s.conn.Exec(ctx,
		`TRUNCATE entities, relationships, entity_citation_links RESTART IDENTITY`)
	return err
}

func propertiesOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func keysOrEmpty(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}
