package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/citemesh/backend/pkg/common"
)

type relationshipKey struct {
	source string
	target string
	rtype  string
}

// GraphStore is the embedded EntityGraphRepository: entity nodes, typed
// relationship edges and CITED_BY linkage edges held in adjacency maps.
type GraphStore struct {
	mu            sync.Mutex
	entities      map[string]*common.Entity
	relationships map[relationshipKey]*common.Relationship
	links         map[string]map[string]*common.Link
}

func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities:      make(map[string]*common.Entity),
		relationships: make(map[relationshipKey]*common.Relationship),
		links:         make(map[string]map[string]*common.Link),
	}
}

func (s *GraphStore) UpsertEntity(ctx context.Context, e common.Entity, citationKeys []string) (bool, error) {
	if e.ID == "" {
		return false, common.Validationf("id", "must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entities[e.ID]
	created := !ok
	if created {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		s.entities[e.ID] = cloneEntity(&e)
	} else {
		if e.Type != "" {
			existing.Type = e.Type
		}
		if e.Name != "" {
			existing.Name = e.Name
		}
		if e.DocumentSource != "" {
			existing.DocumentSource = e.DocumentSource
		}
		existing.Confidence = common.ClampConfidence(e.Confidence)
		mergeProperties(existing, e.Properties)
	}

	for _, key := range citationKeys {
		if key == "" {
			continue
		}
		s.putLink(common.Link{
			EntityID:    e.ID,
			CitationKey: key,
			Confidence:  e.Confidence,
			LinkedAt:    time.Now().UTC(),
		})
	}
	return created, nil
}

func (s *GraphStore) UpsertRelationship(ctx context.Context, r common.Relationship) (bool, error) {
	if r.SourceID == "" || r.TargetID == "" || r.Type == "" {
		return false, common.Validationf("relationship", "source, target and type are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := relationshipKey{source: r.SourceID, target: r.TargetID, rtype: r.Type}
	existing, ok := s.relationships[key]
	if !ok {
		stored := r
		stored.CitationKeys = append([]string(nil), r.CitationKeys...)
		s.relationships[key] = &stored
		return true, nil
	}

	if r.Context != "" {
		existing.Context = r.Context
	}
	existing.Confidence = common.ClampConfidence(r.Confidence)
	if existing.Properties == nil && len(r.Properties) > 0 {
		existing.Properties = make(map[string]any, len(r.Properties))
	}
	for k, v := range r.Properties {
		existing.Properties[k] = v
	}
	existing.CitationKeys = unionKeys(existing.CitationKeys, r.CitationKeys)
	return false, nil
}

func (s *GraphStore) LinkEntityToCitation(ctx context.Context, l common.Link) (bool, error) {
	if l.EntityID == "" || l.CitationKey == "" {
		return false, common.Validationf("link", "entity_id and citation_key are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[l.EntityID]; !ok {
		return false, nil
	}
	if l.LinkedAt.IsZero() {
		l.LinkedAt = time.Now().UTC()
	}
	s.putLink(l)
	return true, nil
}

func (s *GraphStore) GetEntity(ctx context.Context, id string) (*common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return cloneEntity(e), nil
}

func (s *GraphStore) EntityCitations(ctx context.Context, entityID string) ([]common.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey := s.links[entityID]
	out := make([]common.Link, 0, len(byKey))
	for _, l := range byKey {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitationKey < out[j].CitationKey })
	return out, nil
}

func (s *GraphStore) EntitiesByCitation(ctx context.Context, citationKey string) ([]common.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Entity, 0)
	for entityID, byKey := range s.links {
		if _, ok := byKey[citationKey]; !ok {
			continue
		}
		if e, ok := s.entities[entityID]; ok {
			out = append(out, *cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *GraphStore) EntityRelationships(ctx context.Context, entityID string) ([]common.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]common.Relationship, 0)
	for key, r := range s.relationships {
		if key.source == entityID || key.target == entityID {
			stored := *r
			stored.CitationKeys = append([]string(nil), r.CitationKeys...)
			out = append(out, stored)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		if out[i].TargetID != out[j].TargetID {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *GraphStore) CitationImpact(ctx context.Context, citationKey string) (*common.CitationImpact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	impact := &common.CitationImpact{CitationKey: citationKey}
	confidenceSum := 0.0
	samples := 0

	for _, byKey := range s.links {
		if l, ok := byKey[citationKey]; ok {
			impact.EntityCount++
			confidenceSum += l.Confidence
			samples++
		}
	}
	for _, r := range s.relationships {
		for _, key := range r.CitationKeys {
			if key == citationKey {
				impact.RelationshipCount++
				confidenceSum += r.Confidence
				samples++
				break
			}
		}
	}

	if samples > 0 {
		impact.AvgConfidence = confidenceSum / float64(samples)
	}
	return impact, nil
}

func (s *GraphStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[string]*common.Entity)
	s.relationships = make(map[relationshipKey]*common.Relationship)
	s.links = make(map[string]map[string]*common.Link)
	return nil
}

// putLink stores a link edge, keeping the original LinkedAt when the
// pair already exists so that repeated linking stays idempotent.
func (s *GraphStore) putLink(l common.Link) {
	byKey := s.links[l.EntityID]
	if byKey == nil {
		byKey = make(map[string]*common.Link)
		s.links[l.EntityID] = byKey
	}
	if existing, ok := byKey[l.CitationKey]; ok {
		if l.Context != "" {
			existing.Context = l.Context
		}
		if l.Confidence > existing.Confidence {
			existing.Confidence = l.Confidence
		}
		return
	}
	stored := l
	byKey[l.CitationKey] = &stored
}

func cloneEntity(e *common.Entity) *common.Entity {
	out := *e
	if e.Properties != nil {
		out.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			out.Properties[k] = v
		}
	}
	return &out
}

func mergeProperties(e *common.Entity, props map[string]any) {
	if len(props) == 0 {
		return
	}
	if e.Properties == nil {
		e.Properties = make(map[string]any, len(props))
	}
	for k, v := range props {
		e.Properties[k] = v
	}
}

func unionKeys(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a))
	for _, k := range a {
		seen[k] = struct{}{}
	}
	for _, k := range b {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		a = append(a, k)
	}
	return a
}
