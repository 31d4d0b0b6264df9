package integrity

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Report aggregates verification results into a summary verdict.
type Report struct {
	RunID              string    `json:"runId"`
	BaselineLabel      string    `json:"baselineLabel"`
	BaselineCapturedAt time.Time `json:"baselineCapturedAt"`
	VerifiedAt         time.Time `json:"verifiedAt"`
	Results            []Result  `json:"results"`
	Passed             int       `json:"passed"`
	Warned             int       `json:"warned"`
	Failed             int       `json:"failed"`
	Incomplete         int       `json:"incomplete"`
	Overall            Status    `json:"overall"`
}

// NewReport sorts the results deterministically, tallies per-status
// counts, and derives the overall status: Fail if any Fail exists, else
// Warn if any Warn or Incomplete exists, else Pass.
func NewReport(baseline *Snapshot, results []Result) *Report {
	SortResults(results)

	r := &Report{
		RunID:              uuid.NewString(),
		BaselineLabel:      baseline.Metadata.SourceLabel,
		BaselineCapturedAt: baseline.Metadata.CapturedAt,
		VerifiedAt:         time.Now().UTC(),
		Results:            results,
		Overall:            StatusPass,
	}
	for _, res := range results {
		switch res.Status {
		case StatusPass:
			r.Passed++
		case StatusWarn:
			r.Warned++
		case StatusFail:
			r.Failed++
		case StatusIncomplete:
			r.Incomplete++
		}
	}
	switch {
	case r.Failed > 0:
		r.Overall = StatusFail
	case r.Warned > 0 || r.Incomplete > 0:
		r.Overall = StatusWarn
	}
	return r
}

// ExitCode maps the report onto process exit semantics: 0 when the run
// completed without Fail results (Warn allowed), 1 otherwise. Fatal
// pre-run errors are exit 2 and never reach a report.
func (r *Report) ExitCode() int {
	if r.Failed > 0 {
		return 1
	}
	return 0
}

// Render writes a human-readable, table-name-sorted report.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "Migration verification %s\n", r.RunID)
	fmt.Fprintf(w, "Baseline: %s (captured %s)\n", r.BaselineLabel, r.BaselineCapturedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Verified: %s\n\n", r.VerifiedAt.Format(time.RFC3339))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Check", "Status", "Detail"})
	for _, res := range r.Results {
		t.AppendRow(table.Row{res.Table, res.Category, res.Status.String(), res.Detail})
	}
	t.AppendFooter(table.Row{"", "", r.Overall.String(),
		fmt.Sprintf("%d passed, %d warnings, %d failed, %d incomplete", r.Passed, r.Warned, r.Failed, r.Incomplete)})
	t.Render()
}

// WriteJSON streams the report as a structured document for downstream
// sinks (logging, HTML rendering).
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
