package provenance

import (
	"context"
	"errors"
	"testing"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store/memory"
)

func newLinker() (*Linker, *memory.CitationStore, *memory.GraphStore) {
	citations := memory.NewCitationStore()
	graph := memory.NewGraphStore()
	return NewLinker(citations, graph), citations, graph
}

func TestCreateEntityWithProvenance(t *testing.T) {
	ctx := context.Background()
	linker, citations, graph := newLinker()

	result, err := linker.CreateEntityWithProvenance(ctx,
		common.Entity{ID: "transformer", Type: "method", Name: "Transformer", Confidence: 0.9},
		[]common.Citation{
			{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017, Journal: "NeurIPS"},
			{Title: "Neural Attention Models", Authors: []string{"Dzmitry Bahdanau"}, Year: 2014},
		},
	)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !result.Created {
		t.Fatal("expected entity to be created")
	}
	if len(result.CitationKeys) != 2 || result.FailedCitations != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.LinkedCount != 2 {
		t.Fatalf("expected 2 back references, got %d", result.LinkedCount)
	}

	// graph side: CITED_BY edges exist
	links, _ := graph.EntityCitations(ctx, "transformer")
	if len(links) != 2 {
		t.Fatalf("expected 2 graph edges, got %d", len(links))
	}

	// citation side: back references exist
	c, err := citations.Get(ctx, "vaswani2017attention")
	if err != nil {
		t.Fatalf("citation lookup failed: %v", err)
	}
	if len(c.LinkedEntityIDs) != 1 || c.LinkedEntityIDs[0] != "transformer" {
		t.Fatalf("expected back reference, got %v", c.LinkedEntityIDs)
	}
}

func TestCreateEntityWithProvenance_SkipsBadCitations(t *testing.T) {
	ctx := context.Background()
	linker, citations, _ := newLinker()

	result, err := linker.CreateEntityWithProvenance(ctx,
		common.Entity{ID: "resnet", Type: "method", Name: "ResNet"},
		[]common.Citation{
			{Title: "   "}, // rejected by validation
			{Title: "Deep Residual Learning", Authors: []string{"Kaiming He"}, Year: 2015},
		},
	)
	if err != nil {
		t.Fatalf("create must continue past bad citations: %v", err)
	}
	if result.FailedCitations != 1 {
		t.Fatalf("expected 1 failed citation, got %d", result.FailedCitations)
	}
	if len(result.CitationKeys) != 1 {
		t.Fatalf("expected 1 stored citation, got %v", result.CitationKeys)
	}

	all, _ := citations.All(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 citation record, got %d", len(all))
	}
}

func TestCreateEntityWithProvenance_MergesDuplicateCitations(t *testing.T) {
	ctx := context.Background()
	linker, citations, _ := newLinker()

	result, err := linker.CreateEntityWithProvenance(ctx,
		common.Entity{ID: "attention", Type: "concept", Name: "Attention"},
		[]common.Citation{
			{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017},
			{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017, Journal: "NeurIPS"},
		},
	)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(result.CitationKeys) != 1 {
		t.Fatalf("same identity must resolve to one key, got %v", result.CitationKeys)
	}

	all, _ := citations.All(ctx)
	if len(all) != 1 || all[0].Journal != "NeurIPS" {
		t.Fatalf("expected one merged record, got %+v", all)
	}
}

func TestLinkEntitiesToCitations(t *testing.T) {
	ctx := context.Background()
	linker, citations, graph := newLinker()

	key, _, _ := citations.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
	})
	graph.UpsertEntity(ctx, common.Entity{ID: "transformer", Type: "method", Name: "Transformer"}, nil)

	linked, err := linker.LinkEntitiesToCitations(ctx, []common.Link{
		{EntityID: "transformer", CitationKey: key, Context: "architecture", Confidence: 0.8},
		{EntityID: "ghost", CitationKey: key},
	})
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if linked != 1 {
		t.Fatalf("expected 1 successful link, got %d", linked)
	}

	c, _ := citations.Get(ctx, key)
	if len(c.LinkedEntityIDs) != 1 {
		t.Fatalf("expected citation-side reference, got %v", c.LinkedEntityIDs)
	}
	if c.EntityContexts["transformer"] != "architecture" {
		t.Fatalf("expected link context preserved, got %v", c.EntityContexts)
	}
}

func TestLinkEntitiesToCitations_UnknownCitationKey(t *testing.T) {
	ctx := context.Background()
	linker, citations, graph := newLinker()

	graph.UpsertEntity(ctx, common.Entity{ID: "transformer", Type: "method", Name: "Transformer"}, nil)

	linked, err := linker.LinkEntitiesToCitations(ctx, []common.Link{
		{EntityID: "transformer", CitationKey: "ghostkey2020nothing", Confidence: 0.7},
	})
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if linked != 0 {
		t.Fatalf("unknown citation key must not count as linked, got %d", linked)
	}

	// neither store may carry any trace of the pair
	edges, _ := graph.EntityCitations(ctx, "transformer")
	if len(edges) != 0 {
		t.Fatalf("expected no graph edge for unknown citation, got %v", edges)
	}
	all, _ := citations.All(ctx)
	if len(all) != 0 {
		t.Fatalf("expected no citation record to appear, got %d", len(all))
	}
}

func TestLinkEntitiesToCitations_Idempotent(t *testing.T) {
	ctx := context.Background()
	linker, citations, graph := newLinker()

	key, _, _ := citations.AddOrMerge(ctx, common.Citation{
		Title:   "Attention Is All You Need",
		Authors: []string{"Ashish Vaswani"},
		Year:    2017,
	})
	graph.UpsertEntity(ctx, common.Entity{ID: "transformer", Type: "method", Name: "Transformer"}, nil)

	links := []common.Link{
		{EntityID: "transformer", CitationKey: key, Context: "architecture", Confidence: 0.8},
	}

	first, err := linker.LinkEntitiesToCitations(ctx, links)
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	second, err := linker.LinkEntitiesToCitations(ctx, links)
	if err != nil {
		t.Fatalf("repeat link failed: %v", err)
	}
	if first != 1 || second != 1 {
		t.Fatalf("expected both calls to report 1 link, got %d and %d", first, second)
	}

	edges, _ := graph.EntityCitations(ctx, "transformer")
	if len(edges) != 1 {
		t.Fatalf("repeat call must not duplicate the edge, got %d", len(edges))
	}
	c, _ := citations.Get(ctx, key)
	if len(c.LinkedEntityIDs) != 1 {
		t.Fatalf("repeat call must not duplicate the back reference, got %v", c.LinkedEntityIDs)
	}
}

func TestQueryEntityProvenance(t *testing.T) {
	ctx := context.Background()
	linker, _, _ := newLinker()

	_, err := linker.CreateEntityWithProvenance(ctx,
		common.Entity{ID: "transformer", Type: "method", Name: "Transformer", Confidence: 0.9},
		[]common.Citation{
			{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017, Journal: "NeurIPS"},
			{Title: "Neural Attention Models", Authors: []string{"Dzmitry Bahdanau"}, Year: 2014, Journal: "ICLR"},
		},
	)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	report, err := linker.QueryEntityProvenance(ctx, "transformer")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if report.Entity.ID != "transformer" {
		t.Fatalf("unexpected entity %+v", report.Entity)
	}
	if report.Summary.CitationCount != 2 {
		t.Fatalf("expected 2 citations, got %d", report.Summary.CitationCount)
	}
	if report.Summary.YearMin != 2014 || report.Summary.YearMax != 2017 {
		t.Fatalf("unexpected year range %d..%d", report.Summary.YearMin, report.Summary.YearMax)
	}
	if len(report.Summary.TopJournals) != 2 {
		t.Fatalf("expected 2 journals, got %v", report.Summary.TopJournals)
	}
}

func TestQueryEntityProvenance_UnknownEntity(t *testing.T) {
	linker, _, _ := newLinker()
	if _, err := linker.QueryEntityProvenance(context.Background(), "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
