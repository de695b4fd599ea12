package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/store"
)

// Supported formats.
const (
	FormatJSON   = "json"
	FormatBibTeX = "bibtex"
	FormatCSV    = "csv"
)

// Exporter serializes the citation catalog and replays dumps back into
// a store. Only JSON dumps carry enough state (usage events, linkage)
// to round-trip; BibTeX and CSV are one-way interchange formats.
type Exporter struct {
	citations store.CitationRepository
}

func NewExporter(citations store.CitationRepository) *Exporter {
	return &Exporter{citations: citations}
}

// Dump is the JSON export envelope. Citations are ordered by their
// stable sequence number so that replaying them through add-or-merge
// reproduces identical keys, including collision suffixes.
type Dump struct {
	Version     int                 `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	Citations   []common.Citation   `json:"citations"`
	UsageEvents []common.UsageEvent `json:"usage_events"`
}

const dumpVersion = 1

// Export renders the catalog in the requested format and returns the
// payload with its content type.
func (e *Exporter) Export(ctx context.Context, format string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		data, err := e.ExportJSON(ctx)
		return data, "application/json", err
	case FormatBibTeX:
		data, err := e.ExportBibTeX(ctx)
		return data, "application/x-bibtex", err
	case FormatCSV:
		data, err := e.ExportCSV(ctx)
		return data, "text/csv", err
	}
	return nil, "", common.Validationf("format", "unsupported export format %q", format)
}

func (e *Exporter) ExportJSON(ctx context.Context) ([]byte, error) {
	citations, err := e.citations.All(ctx)
	if err != nil {
		return nil, common.Processingf("export: list citations", err)
	}
	events, err := e.citations.AllUsageEvents(ctx)
	if err != nil {
		return nil, common.Processingf("export: list usage events", err)
	}

	dump := Dump{
		Version:     dumpVersion,
		ExportedAt:  time.Now().UTC(),
		Citations:   citations,
		UsageEvents: events,
	}
	return json.MarshalIndent(dump, "", "  ")
}

func (e *Exporter) ExportBibTeX(ctx context.Context) ([]byte, error) {
	citations, err := e.citations.All(ctx)
	if err != nil {
		return nil, common.Processingf("export: list citations", err)
	}

	var b bytes.Buffer
	for _, c := range citations {
		b.WriteString("@article{" + c.Key + ",\n")
		writeBibField(&b, "title", c.Title)
		if len(c.Authors) > 0 {
			writeBibField(&b, "author", strings.Join(c.Authors, " and "))
		}
		if c.Year != 0 {
			writeBibField(&b, "year", strconv.Itoa(c.Year))
		}
		writeBibField(&b, "journal", c.Journal)
		writeBibField(&b, "doi", c.DOI)
		writeBibField(&b, "url", c.URL)
		b.WriteString("}\n\n")
	}
	return b.Bytes(), nil
}

func writeBibField(b *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "  %s = {%s},\n", name, value)
}

func (e *Exporter) ExportCSV(ctx context.Context) ([]byte, error) {
	citations, err := e.citations.All(ctx)
	if err != nil {
		return nil, common.Processingf("export: list citations", err)
	}

	var b bytes.Buffer
	w := csv.NewWriter(&b)
	header := []string{"key", "title", "authors", "year", "journal", "doi", "url", "usage_count", "confidence"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, c := range citations {
		record := []string{
			c.Key,
			c.Title,
			strings.Join(c.Authors, "|"),
			strconv.Itoa(c.Year),
			c.Journal,
			c.DOI,
			c.URL,
			strconv.Itoa(c.UsageCount),
			strconv.FormatFloat(c.Confidence, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return b.Bytes(), w.Error()
}

// ImportResult reports the outcome of an import: how many records made
// it in, how many were rejected, and human-readable warnings for
// anything skipped or renamed.
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Warnings []string `json:"warnings,omitempty"`
}

// Import replays a dump in the given format; an empty format means
// json. BibTeX and CSV are export-only since they cannot carry usage
// events or linkage, so importing them is rejected before any parse.
func (e *Exporter) Import(ctx context.Context, data []byte, format string) (*ImportResult, error) {
	switch format {
	case "", FormatJSON:
		return e.ImportJSON(ctx, data)
	case FormatBibTeX, FormatCSV:
		return nil, common.Validationf("format", "%s is export-only; imports must be json dumps", format)
	}
	return nil, common.Validationf("format", "unsupported import format %q", format)
}

// ImportJSON replays a JSON dump into the store. Citations are merged
// in dump order so collision suffixes resolve as they did originally;
// usage events are appended afterwards. Per-record failures are counted
// and skipped rather than aborting the batch.
func (e *Exporter) ImportJSON(ctx context.Context, data []byte) (*ImportResult, error) {
	var dump Dump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, common.Validationf("payload", "malformed dump: %v", err)
	}

	result := &ImportResult{}
	for _, c := range dump.Citations {
		wantKey := c.Key
		c.Key = ""
		c.SeqNo = 0
		c.UsageCount = 0

		key, _, err := e.citations.AddOrMerge(ctx, c)
		if err != nil {
			result.Failed++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("citation %q rejected: %v", wantKey, err))
			continue
		}
		if wantKey != "" && key != wantKey {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("citation %q imported as %q", wantKey, key))
		}
		result.Imported++
	}

	for _, ev := range dump.UsageEvents {
		ok, err := e.citations.AppendUsage(ctx, ev)
		if err != nil {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("usage event %q failed: %v", ev.ID, err))
			continue
		}
		if !ok {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("usage event %q references unknown key %q, skipped", ev.ID, ev.CitationKey))
		}
	}

	logger.Info("[Export][Import] Dump replayed",
		"imported", result.Imported,
		"failed", result.Failed,
		"warnings", len(result.Warnings),
	)
	return result, nil
}
