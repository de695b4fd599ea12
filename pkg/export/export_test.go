package export

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/store/memory"
)

func seedStore(t *testing.T) *memory.CitationStore {
	t.Helper()
	ctx := context.Background()
	s := memory.NewCitationStore()

	add := func(c common.Citation) string {
		key, _, err := s.AddOrMerge(ctx, c)
		if err != nil {
			t.Fatalf("seed add failed: %v", err)
		}
		return key
	}

	k1 := add(common.Citation{Title: "Attention Is All You Need", Authors: []string{"Ashish Vaswani"}, Year: 2017, Journal: "NeurIPS", DOI: "10.5555/3295222"})
	// same derived key, different identity: suffix expected
	k2 := add(common.Citation{Title: "Attention Mechanisms in Vision", Authors: []string{"Rohit Vaswani"}, Year: 2017})
	if k2 != k1+"_1" {
		t.Fatalf("seed expected suffixed key, got %q", k2)
	}
	add(common.Citation{Title: "Deep Residual Learning", Authors: []string{"Kaiming He"}, Year: 2015})

	s.AppendUsage(ctx, common.UsageEvent{ID: "u1", CitationKey: k1, Context: "intro", Confidence: 0.9})
	s.AppendUsage(ctx, common.UsageEvent{ID: "u2", CitationKey: k1, Context: "methods", Confidence: 0.7})
	s.LinkEntity(ctx, k1, "transformer", "architecture definition")
	return s
}

func TestRoundTripJSON(t *testing.T) {
	ctx := context.Background()
	source := seedStore(t)

	data, err := NewExporter(source).ExportJSON(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	fresh := memory.NewCitationStore()
	result, err := NewExporter(fresh).ImportJSON(ctx, data)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Failed != 0 {
		t.Fatalf("expected clean import, got %+v", result)
	}
	if result.Imported != 3 {
		t.Fatalf("expected 3 imports, got %d", result.Imported)
	}

	want, _ := source.All(ctx)
	got, _ := fresh.All(ctx)
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Key != want[i].Key {
			t.Fatalf("key mismatch at %d: %q vs %q", i, got[i].Key, want[i].Key)
		}
		if got[i].UsageCount != want[i].UsageCount {
			t.Fatalf("usage count mismatch for %q: %d vs %d", want[i].Key, got[i].UsageCount, want[i].UsageCount)
		}
		if !reflect.DeepEqual(got[i].LinkedEntityIDs, want[i].LinkedEntityIDs) {
			t.Fatalf("linked entities mismatch for %q: %v vs %v", want[i].Key, got[i].LinkedEntityIDs, want[i].LinkedEntityIDs)
		}
	}
}

func TestImportJSON_SkipsBadRecords(t *testing.T) {
	ctx := context.Background()
	fresh := memory.NewCitationStore()

	dump := `{
		"version": 1,
		"citations": [
			{"key": "vaswani2017attention", "title": "Attention Is All You Need", "authors": ["Ashish Vaswani"], "year": 2017},
			{"key": "broken", "title": "   "},
			{"key": "weird9999", "title": "Future Paper", "year": 9999}
		],
		"usage_events": [
			{"id": "u1", "citation_key": "vaswani2017attention", "confidence": 0.9},
			{"id": "ghost", "citation_key": "missing2001paper", "confidence": 0.5}
		]
	}`

	result, err := NewExporter(fresh).ImportJSON(ctx, []byte(dump))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if result.Imported != 1 || result.Failed != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(result.Warnings) != 3 {
		t.Fatalf("expected 2 rejection warnings plus 1 orphan warning, got %v", result.Warnings)
	}

	c, err := fresh.Get(ctx, "vaswani2017attention")
	if err != nil {
		t.Fatalf("imported citation missing: %v", err)
	}
	if c.UsageCount != 1 {
		t.Fatalf("expected replayed usage, got %d", c.UsageCount)
	}
}

func TestImportJSON_MalformedPayload(t *testing.T) {
	_, err := NewExporter(memory.NewCitationStore()).ImportJSON(context.Background(), []byte("not json"))
	if !common.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExportBibTeX(t *testing.T) {
	ctx := context.Background()
	data, err := NewExporter(seedStore(t)).ExportBibTeX(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	out := string(data)

	if !strings.Contains(out, "@article{vaswani2017attention,") {
		t.Fatalf("missing base entry:\n%s", out)
	}
	if !strings.Contains(out, "@article{vaswani2017attention_1,") {
		t.Fatalf("missing suffixed entry:\n%s", out)
	}
	if !strings.Contains(out, "author = {Ashish Vaswani},") {
		t.Fatalf("missing author field:\n%s", out)
	}
	if !strings.Contains(out, "doi = {10.5555/3295222},") {
		t.Fatalf("missing doi field:\n%s", out)
	}
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	data, err := NewExporter(seedStore(t)).ExportCSV(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "key,title,authors") {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "vaswani2017attention") || !strings.Contains(lines[1], ",2,") {
		t.Fatalf("expected first row with usage count 2, got %q", lines[1])
	}
}

func TestImport_RejectsNonJSONFormats(t *testing.T) {
	ctx := context.Background()
	exporter := NewExporter(memory.NewCitationStore())

	for _, format := range []string{FormatBibTeX, FormatCSV, "xml"} {
		if _, err := exporter.Import(ctx, []byte("@article{x,}"), format); !common.IsValidation(err) {
			t.Fatalf("format %q: expected validation error, got %v", format, err)
		}
	}

	// empty format defaults to json
	dump := `{"version": 1, "citations": [{"title": "Deep Residual Learning", "authors": ["Kaiming He"], "year": 2015}]}`
	result, err := exporter.Import(ctx, []byte(dump), "")
	if err != nil {
		t.Fatalf("json import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Fatalf("expected 1 import, got %+v", result)
	}
}

func TestExport_UnsupportedFormat(t *testing.T) {
	_, _, err := NewExporter(memory.NewCitationStore()).Export(context.Background(), "xml")
	if !common.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
