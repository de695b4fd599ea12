package pgx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/citemesh/backend/pkg/citekey"
	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

const citationColumns = `key, seq_no, title, authors, year, journal, doi, url,
	abstract, document_path, usage_count, first_used, last_used,
	linked_entity_ids, entity_contexts, source_locations, confidence`

const removeEventsChunk = 500

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCitation(row rowScanner) (*common.Citation, error) {
	var (
		c         common.Citation
		firstUsed *time.Time
		lastUsed  *time.Time
	)
	err := row.Scan(
		&c.Key, &c.SeqNo, &c.Title, &c.Authors, &c.Year, &c.Journal, &c.DOI,
		&c.URL, &c.Abstract, &c.DocumentPath, &c.UsageCount, &firstUsed,
		&lastUsed, &c.LinkedEntityIDs, &c.EntityContexts, &c.SourceLocations,
		&c.Confidence,
	)
	if err != nil {
		return nil, err
	}
	if firstUsed != nil {
		c.FirstUsed = *firstUsed
	}
	if lastUsed != nil {
		c.LastUsed = *lastUsed
	}
	return &c, nil
}

func getCitation(ctx context.Context, conn pgxIConn, key string) (*common.Citation, error) {
	row := conn.QueryRow(ctx,
		`SELECT `+citationColumns+` FROM citations WHERE key = $1`, key)
	c, err := scanCitation(row)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddOrMerge inserts a citation or merges it into the record sharing its
// identity, resolving key collisions with numeric suffixes. The whole
// resolution runs inside one transaction so concurrent ingests cannot
// race the same key.
func (s *CitationDBStore) AddOrMerge(ctx context.Context, c common.Citation) (string, bool, error) {
	if err := store.ValidateCitation(c); err != nil {
		return "", false, err
	}
	c.Confidence = common.ClampConfidence(c.Confidence)

	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback(ctx)

	var lookupErr error
	lookup := func(key string) *common.Citation {
		got, err := getCitation(ctx, tx, key)
		if err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				lookupErr = err
			}
			return nil
		}
		return got
	}
	key, existing := citekey.ResolveKey(lookup, c)
	if lookupErr != nil {
		return "", false, lookupErr
	}

	if existing != nil {
		merged := citekey.Merge(*existing, c)
		merged.Key = existing.Key
		merged.SeqNo = existing.SeqNo
		merged.UsageCount = existing.UsageCount

		embedding, err := s.embeddingFor(ctx, merged)
		if err != nil {
			return "", false, err
		}
		_, err = tx.Exec(ctx, `
			UPDATE citations SET
				title = $2, authors = $3, year = $4, journal = $5, doi = $6,
				url = $7, abstract = $8, document_path = $9,
				first_used = $10, last_used = $11, linked_entity_ids = $12,
				entity_contexts = $13, source_locations = $14,
				confidence = $15, embedding = $16
			WHERE key = $1`,
			key, merged.Title, merged.Authors, merged.Year, merged.Journal,
			merged.DOI, merged.URL, merged.Abstract, merged.DocumentPath,
			nullTime(merged.FirstUsed), nullTime(merged.LastUsed),
			merged.LinkedEntityIDs, contextsOrEmpty(merged.EntityContexts),
			merged.SourceLocations, merged.Confidence, embedding,
		)
		if err != nil {
			return "", false, err
		}
		return key, true, tx.Commit(ctx)
	}

	base := citekey.Derive(c.Title, c.Authors, c.Year)
	if key != base {
		logger.Debug("[Citations][AddOrMerge] Key collision", "base", base, "key", key)
		if _, err := tx.Exec(ctx,
			`INSERT INTO key_collisions (base_key) VALUES ($1)`, base); err != nil {
			return "", false, err
		}
	}

	embedding, err := s.embeddingFor(ctx, c)
	if err != nil {
		return "", false, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO citations (
			key, title, authors, year, journal, doi, url, abstract,
			document_path, first_used, last_used, linked_entity_ids,
			entity_contexts, source_locations, confidence, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		key, c.Title, c.Authors, c.Year, c.Journal, c.DOI, c.URL, c.Abstract,
		c.DocumentPath, nullTime(c.FirstUsed), nullTime(c.LastUsed),
		c.LinkedEntityIDs, contextsOrEmpty(c.EntityContexts),
		c.SourceLocations, c.Confidence, embedding,
	)
	if err != nil {
		return "", false, err
	}
	return key, false, tx.Commit(ctx)
}

func (s *CitationDBStore) Get(ctx context.Context, key string) (*common.Citation, error) {
	return getCitation(ctx, s.conn, key)
}

func (s *CitationDBStore) All(ctx context.Context) ([]common.Citation, error) {
	return s.list(ctx, ``)
}

func (s *CitationDBStore) Used(ctx context.Context) ([]common.Citation, error) {
	return s.list(ctx, `WHERE usage_count > 0`)
}

func (s *CitationDBStore) Unused(ctx context.Context) ([]common.Citation, error) {
	return s.list(ctx, `WHERE usage_count = 0`)
}

func (s *CitationDBStore) list(ctx context.Context, where string) ([]common.Citation, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT `+citationColumns+` FROM citations `+where+` ORDER BY seq_no`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.Citation, 0)
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Search ranks citations against the query. With an embedding client it
// orders by cosine similarity over the denormalized citation blob;
// otherwise it falls back to ILIKE term matching.
func (s *CitationDBStore) Search(ctx context.Context, query string, filter store.SearchFilter) ([]store.SearchResult, error) {
	if s.aiClient != nil && strings.TrimSpace(query) != "" {
		results, err := s.searchByEmbedding(ctx, query, filter)
		if err == nil {
			return results, nil
		}
		logger.Warn("[Citations][Search] Embedding search failed, falling back to terms", "err", err)
	}
	return s.searchByTerms(ctx, query, filter)
}

func (s *CitationDBStore) searchByEmbedding(ctx context.Context, query string, filter store.SearchFilter) ([]store.SearchResult, error) {
	vec, err := s.aiClient.GenerateEmbedding(ctx, []byte(query))
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT `+citationColumns+`, 1 - (embedding <=> $1) AS score
		FROM citations
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1`,
		pgvector.NewVector(vec))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.SearchResult, 0)
	for rows.Next() {
		var (
			c         common.Citation
			firstUsed *time.Time
			lastUsed  *time.Time
			score     float64
		)
		err := rows.Scan(
			&c.Key, &c.SeqNo, &c.Title, &c.Authors, &c.Year, &c.Journal,
			&c.DOI, &c.URL, &c.Abstract, &c.DocumentPath, &c.UsageCount,
			&firstUsed, &lastUsed, &c.LinkedEntityIDs, &c.EntityContexts,
			&c.SourceLocations, &c.Confidence, &score,
		)
		if err != nil {
			return nil, err
		}
		if firstUsed != nil {
			c.FirstUsed = *firstUsed
		}
		if lastUsed != nil {
			c.LastUsed = *lastUsed
		}
		if !store.MatchesFilter(c, filter) {
			continue
		}
		out = append(out, store.SearchResult{Citation: c, Score: score})
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *CitationDBStore) searchByTerms(ctx context.Context, query string, filter store.SearchFilter) ([]store.SearchResult, error) {
	terms := store.SearchTerms(query)

	where := make([]string, 0, len(terms))
	args := make([]any, 0, len(terms))
	for i, term := range terms {
		where = append(where, fmt.Sprintf(
			`(title || ' ' || array_to_string(authors, ' ') || ' ' || journal || ' ' || abstract) ILIKE $%d`,
			i+1))
		args = append(args, "%"+term+"%")
	}

	sql := `SELECT ` + citationColumns + ` FROM citations`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, ` OR `)
	}
	sql += ` ORDER BY seq_no`

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.SearchResult, 0)
	for rows.Next() {
		c, err := scanCitation(rows)
		if err != nil {
			return nil, err
		}
		if !store.MatchesFilter(*c, filter) {
			continue
		}
		score := store.ScoreTerms(store.SearchBlob(*c), terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		out = append(out, store.SearchResult{Citation: *c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortResults(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *CitationDBStore) Stats(ctx context.Context) (*common.CitationStats, error) {
	stats := &common.CitationStats{}
	row := s.conn.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE usage_count > 0),
			coalesce(avg(confidence), 0),
			coalesce(min(year) FILTER (WHERE year <> 0), 0),
			coalesce(max(year), 0)
		FROM citations`)
	err := row.Scan(&stats.Total, &stats.Used, &stats.AvgConfidence,
		&stats.YearMin, &stats.YearMax)
	if err != nil {
		return nil, err
	}
	stats.Unused = stats.Total - stats.Used

	rows, err := s.conn.Query(ctx, `
		SELECT journal FROM citations
		WHERE journal <> ''
		GROUP BY journal
		ORDER BY count(*) DESC, journal ASC
		LIMIT 5`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var journal string
		if err := rows.Scan(&journal); err != nil {
			return nil, err
		}
		stats.TopJournals = append(stats.TopJournals, journal)
	}
	return stats, rows.Err()
}

// LinkEntity records entity membership on the citation record. Returns
// false when the key is unknown; no record is created.
func (s *CitationDBStore) LinkEntity(ctx context.Context, key, entityID, linkContext string) (bool, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT linked_entity_ids, entity_contexts FROM citations WHERE key = $1 FOR UPDATE`, key)
	var (
		ids      []string
		contexts map[string]string
	)
	if err := row.Scan(&ids, &contexts); err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	found := false
	for _, id := range ids {
		if id == entityID {
			found = true
			break
		}
	}
	if !found {
		ids = append(ids, entityID)
	}
	if linkContext != "" {
		if contexts == nil {
			contexts = make(map[string]string)
		}
		contexts[entityID] = linkContext
	}

	_, err = tx.Exec(ctx,
		`UPDATE citations SET linked_entity_ids = $2, entity_contexts = $3 WHERE key = $1`,
		key, ids, contextsOrEmpty(contexts))
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// AppendUsage appends a usage event and refreshes the cached counters.
// Returns false for unknown keys without creating anything.
func (s *CitationDBStore) AppendUsage(ctx context.Context, event common.UsageEvent) (bool, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT confidence, first_used, last_used FROM citations WHERE key = $1 FOR UPDATE`,
		event.CitationKey)
	var (
		confidence float64
		firstUsed  *time.Time
		lastUsed   *time.Time
	)
	if err := row.Scan(&confidence, &firstUsed, &lastUsed); err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	var prior int
	if err := tx.QueryRow(ctx,
		`SELECT count(*) FROM usage_events WHERE citation_key = $1`,
		event.CitationKey).Scan(&prior); err != nil {
		return false, err
	}

	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	event.Confidence = common.ClampConfidence(event.Confidence)

	_, err = tx.Exec(ctx, `
		INSERT INTO usage_events (public_id, citation_key, context, section, confidence, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.CitationKey, event.Context, event.Section,
		event.Confidence, event.RecordedAt)
	if err != nil {
		return false, err
	}

	newConfidence := store.RunningAverage(confidence, prior, event.Confidence)
	newFirst := event.RecordedAt
	if firstUsed != nil && firstUsed.Before(newFirst) {
		newFirst = *firstUsed
	}
	newLast := event.RecordedAt
	if lastUsed != nil {
		newLast = store.LaterOf(*lastUsed, event.RecordedAt)
	}

	_, err = tx.Exec(ctx, `
		UPDATE citations SET usage_count = $2, confidence = $3, first_used = $4, last_used = $5
		WHERE key = $1`,
		event.CitationKey, prior+1, newConfidence, newFirst, newLast)
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *CitationDBStore) UsageEvents(ctx context.Context, key string) ([]common.UsageEvent, error) {
	return s.listEvents(ctx,
		`SELECT public_id, citation_key, context, section, confidence, recorded_at
		FROM usage_events WHERE citation_key = $1
		ORDER BY recorded_at, public_id`, key)
}

func (s *CitationDBStore) AllUsageEvents(ctx context.Context) ([]common.UsageEvent, error) {
	return s.listEvents(ctx,
		`SELECT public_id, citation_key, context, section, confidence, recorded_at
		FROM usage_events
		ORDER BY citation_key, recorded_at, public_id`)
}

func (s *CitationDBStore) listEvents(ctx context.Context, sql string, args ...any) ([]common.UsageEvent, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]common.UsageEvent, 0)
	for rows.Next() {
		var ev common.UsageEvent
		err := rows.Scan(&ev.ID, &ev.CitationKey, &ev.Context, &ev.Section,
			&ev.Confidence, &ev.RecordedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *CitationDBStore) RemoveUsageEvents(ctx context.Context, ids []string) (int, error) {
	removed := 0
	err := store.ChunkRange(len(ids), removeEventsChunk, func(start, end int) error {
		tag, err := s.conn.Exec(ctx,
			`DELETE FROM usage_events WHERE public_id = ANY($1)`, ids[start:end])
		if err != nil {
			return err
		}
		removed += int(tag.RowsAffected())
		return nil
	})
	return removed, err
}

func (s *CitationDBStore) SetUsageStats(ctx context.Context, key string, count int, first, last time.Time) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE citations SET usage_count = $2, first_used = $3, last_used = $4
		WHERE key = $1`,
		key, count, nullTime(first), nullTime(last))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *CitationDBStore) KeyCollisions(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT base_key FROM key_collisions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (s *CitationDBStore) Clear(ctx context.Context) error {
	_, err := s.conn.Exec(ctx,
		`TRUNCATE citations, usage_events, key_collisions RESTART IDENTITY`)
	return err
}

func (s *CitationDBStore) embeddingFor(ctx context.Context, c common.Citation) (*pgvector.Vector, error) {
	if s.aiClient == nil {
		return nil, nil
	}
	raw, err := s.aiClient.GenerateEmbedding(ctx, []byte(store.SearchBlob(c)))
	if err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(raw)
	return &vec, nil
}

func sortResults(results []store.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Citation.Key < results[j].Citation.Key
	})
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func contextsOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
