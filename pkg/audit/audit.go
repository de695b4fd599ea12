package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/citemesh/backend/pkg/common"
	"github.com/citemesh/backend/pkg/logger"
	"github.com/citemesh/backend/pkg/store"
)

// Health statuses.
const (
	StatusHealthy = "healthy"
	StatusWarning = "warning"
	StatusError   = "error"
)

// Auditor detects and repairs drift between the citation catalog, its
// usage-event log and the entity graph. Report and repair are separate
// explicit calls; the report never mutates anything.
//
// The audit pass reads a full snapshot and should be serialized against
// concurrent ingestion; repairing while writes are in flight can
// observe a mid-update state.
type Auditor struct {
	citations store.CitationRepository
	graph     store.EntityGraphRepository
}

func NewAuditor(citations store.CitationRepository, graph store.EntityGraphRepository) *Auditor {
	return &Auditor{citations: citations, graph: graph}
}

// InvalidCitation names a record failing field validity checks.
type InvalidCitation struct {
	Key      string   `json:"key"`
	Problems []string `json:"problems"`
}

// CountMismatch is a citation whose cached usage counter disagrees with
// the event log.
type CountMismatch struct {
	Key      string `json:"key"`
	Recorded int    `json:"recorded"`
	Actual   int    `json:"actual"`
}

// Report is the full integrity picture at one point in time.
type Report struct {
	Total  int `json:"total"`
	Used   int `json:"used"`
	Unused int `json:"unused"`

	InvalidCitations   []InvalidCitation `json:"invalid_citations,omitempty"`
	DuplicateKeys      []string          `json:"duplicate_keys,omitempty"`
	OrphanedUsageIDs   []string          `json:"orphaned_usage_ids,omitempty"`
	CountMismatches    []CountMismatch   `json:"count_mismatches,omitempty"`
	DanglingEntityRefs []string          `json:"dangling_entity_refs,omitempty"`
}

// GetIntegrityReport walks the catalog and the event log and reports
// invalid records, recorded key collisions, orphaned usage events,
// cached counters that drifted from the log, and citation→entity
// references whose entity no longer resolves.
func (a *Auditor) GetIntegrityReport(ctx context.Context) (*Report, error) {
	citations, err := a.citations.All(ctx)
	if err != nil {
		return nil, common.Processingf("audit: list citations", err)
	}

	report := &Report{Total: len(citations)}
	known := make(map[string]struct{}, len(citations))

	for _, c := range citations {
		known[c.Key] = struct{}{}
		if c.UsageCount > 0 {
			report.Used++
		} else {
			report.Unused++
		}

		if problems := fieldProblems(c); len(problems) > 0 {
			report.InvalidCitations = append(report.InvalidCitations, InvalidCitation{
				Key:      c.Key,
				Problems: problems,
			})
		}

		for _, entityID := range c.LinkedEntityIDs {
			if _, err := a.graph.GetEntity(ctx, entityID); err != nil {
				report.DanglingEntityRefs = append(report.DanglingEntityRefs,
					c.Key+" -> "+entityID)
			}
		}
	}

	collisions, err := a.citations.KeyCollisions(ctx)
	if err != nil {
		return nil, common.Processingf("audit: list collisions", err)
	}
	report.DuplicateKeys = collisions

	events, err := a.citations.AllUsageEvents(ctx)
	if err != nil {
		return nil, common.Processingf("audit: list usage events", err)
	}

	eventCounts := make(map[string]int)
	for _, ev := range events {
		if _, ok := known[ev.CitationKey]; !ok {
			report.OrphanedUsageIDs = append(report.OrphanedUsageIDs, ev.ID)
			continue
		}
		eventCounts[ev.CitationKey]++
	}

	for _, c := range citations {
		actual := eventCounts[c.Key]
		if c.UsageCount != actual {
			report.CountMismatches = append(report.CountMismatches, CountMismatch{
				Key:      c.Key,
				Recorded: c.UsageCount,
				Actual:   actual,
			})
		}
	}

	return report, nil
}

// RepairResult reports what a repair pass changed.
type RepairResult struct {
	RemovedOrphans int `json:"removed_orphans"`
	RepairedCounts int `json:"repaired_counts"`
}

// RepairDataIntegrity removes orphaned usage events and recomputes the
// cached usage counters and windows from the surviving event log. The
// used/unused partition follows from the recomputed counts.
func (a *Auditor) RepairDataIntegrity(ctx context.Context) (*RepairResult, error) {
	citations, err := a.citations.All(ctx)
	if err != nil {
		return nil, common.Processingf("repair: list citations", err)
	}
	known := make(map[string]struct{}, len(citations))
	for _, c := range citations {
		known[c.Key] = struct{}{}
	}

	events, err := a.citations.AllUsageEvents(ctx)
	if err != nil {
		return nil, common.Processingf("repair: list usage events", err)
	}

	orphanIDs := make([]string, 0)
	type window struct {
		count int
		first time.Time
		last  time.Time
	}
	windows := make(map[string]window, len(known))
	for _, ev := range events {
		if _, ok := known[ev.CitationKey]; !ok {
			orphanIDs = append(orphanIDs, ev.ID)
			continue
		}
		w := windows[ev.CitationKey]
		w.count++
		if w.first.IsZero() || ev.RecordedAt.Before(w.first) {
			w.first = ev.RecordedAt
		}
		w.last = store.LaterOf(w.last, ev.RecordedAt)
		windows[ev.CitationKey] = w
	}

	result := &RepairResult{}
	if len(orphanIDs) > 0 {
		removed, err := a.citations.RemoveUsageEvents(ctx, orphanIDs)
		if err != nil {
			return nil, common.Processingf("repair: remove orphans", err)
		}
		result.RemovedOrphans = removed
		logger.Info("[Audit][Repair] Removed orphaned usage events", "count", removed)
	}

	for _, c := range citations {
		w := windows[c.Key]
		if c.UsageCount == w.count && c.FirstUsed.Equal(w.first) && c.LastUsed.Equal(w.last) {
			continue
		}
		if err := a.citations.SetUsageStats(ctx, c.Key, w.count, w.first, w.last); err != nil {
			logger.Error("[Audit][Repair] Failed to repair counters", "key", c.Key, "err", err)
			continue
		}
		result.RepairedCounts++
	}

	logger.Info("[Audit][Repair] Repair finished",
		"removed_orphans", result.RemovedOrphans,
		"repaired_counts", result.RepairedCounts,
	)
	return result, nil
}

// Health aggregates the report into a single status.
type Health struct {
	Status string  `json:"status"`
	Report *Report `json:"report"`
}

// GetHealthCheck classifies the current report: error when more than
// half the citations are invalid, warning when any issue exists,
// healthy otherwise.
func (a *Auditor) GetHealthCheck(ctx context.Context) (*Health, error) {
	report, err := a.GetIntegrityReport(ctx)
	if err != nil {
		return nil, err
	}

	status := StatusHealthy
	if len(report.InvalidCitations) > 0 || len(report.DuplicateKeys) > 0 ||
		len(report.OrphanedUsageIDs) > 0 || len(report.CountMismatches) > 0 ||
		len(report.DanglingEntityRefs) > 0 {
		status = StatusWarning
	}
	if report.Total > 0 && len(report.InvalidCitations)*2 > report.Total {
		status = StatusError
	}
	return &Health{Status: status, Report: report}, nil
}

func fieldProblems(c common.Citation) []string {
	var problems []string
	if strings.TrimSpace(c.Title) == "" {
		problems = append(problems, "empty title")
	}
	if c.Year != 0 && (c.Year < 1400 || c.Year > 2100) {
		problems = append(problems, fmt.Sprintf("year out of range: %d", c.Year))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		problems = append(problems, fmt.Sprintf("confidence out of range: %v", c.Confidence))
	}
	if c.DOI != "" && !validDOI(c.DOI) {
		problems = append(problems, "malformed doi: "+c.DOI)
	}
	if c.URL != "" && !validURL(c.URL) {
		problems = append(problems, "malformed url: "+c.URL)
	}
	return problems
}

func validDOI(doi string) bool {
	return strings.HasPrefix(doi, "10.") && strings.Contains(doi, "/")
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
