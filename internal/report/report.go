package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/jobdigest/internal/collector"
	"github.com/FranksOps/jobdigest/internal/record"
)

// Options controls digest rendering.
type Options struct {
	Now        time.Time
	Roles      []string
	Locations  []string
	MaxResults int
	// HTMLLimit caps the rows listed in the email body. Zero means DefaultHTMLLimit.
	HTMLLimit int
	// SnippetLimit caps snippet length in the email body, in runes.
	SnippetLimit int
}

func (o Options) withDefaults() Options {
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	if o.HTMLLimit <= 0 {
		o.HTMLLimit = DefaultHTMLLimit
	}
	if o.SnippetLimit <= 0 {
		o.SnippetLimit = DefaultSnippetLimit
	}
	return o
}

// Digest is everything needed to deliver one run's report.
type Digest struct {
	Subject        string
	HTML           string
	CSV            []byte
	AttachmentName string
	Count          int
}

// Subject returns the email subject for the day of now.
func Subject(now time.Time) string {
	return "Daily Job Search Results - " + now.Format("2006-01-02")
}

// AttachmentName returns the CSV file name for the day of now.
func AttachmentName(now time.Time) string {
	return "jobs-" + now.Format("2006-01-02") + ".csv"
}

// Build renders the HTML body and CSV attachment for records, which are
// expected in final order.
func Build(records []record.JobRecord, opts Options) (*Digest, error) {
	opts = opts.withDefaults()

	var html bytes.Buffer
	if err := WriteHTML(&html, records, opts); err != nil {
		return nil, err
	}
	var csv bytes.Buffer
	if err := WriteCSV(&csv, records); err != nil {
		return nil, err
	}

	return &Digest{
		Subject:        Subject(opts.Now),
		HTML:           html.String(),
		CSV:            csv.Bytes(),
		AttachmentName: AttachmentName(opts.Now),
		Count:          len(records),
	}, nil
}

// Summary contains aggregated figures about one run.
type Summary struct {
	RunID         string
	Queries       int
	Succeeded     int
	Empty         int
	Failed        int
	Results       int
	Duplicates    int
	Records       int
	Official      int
	Experience    int
	FailedQueries []FailedQuery
	Delivery      string
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// FailedQuery names a query that errored and why.
type FailedQuery struct {
	Query string
	Error string
}

// GenerateSummary aggregates per-query outcomes and the final record set.
func GenerateSummary(outcomes []collector.Outcome, records []record.JobRecord, start, end time.Time) Summary {
	s := Summary{
		Queries:   len(outcomes),
		Records:   len(records),
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
	}
	s.Official, s.Experience = record.Counts(records)

	for _, o := range outcomes {
		s.Results += o.Results
		s.Duplicates += o.Duplicates
		switch o.Status {
		case collector.StatusOK:
			s.Succeeded++
		case collector.StatusEmpty:
			s.Empty++
		case collector.StatusFailed:
			s.Failed++
			fq := FailedQuery{Query: o.Query.Text}
			if o.Err != nil {
				fq.Error = o.Err.Error()
			}
			s.FailedQueries = append(s.FailedQueries, fq)
		}
	}
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

var textTmpl = template.Must(template.New("textReport").Parse(`Job Digest Summary
------------------
{{if .RunID}}Run:           {{.RunID}}
{{end -}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Queries:       {{.Queries}} ({{.Succeeded}} ok, {{.Empty}} empty, {{.Failed}} failed)
Results:       {{.Results}} ({{.Duplicates}} duplicates)
Records:       {{.Records}} ({{.Official}} official, {{.Experience}} entry level)
{{if .Delivery}}Delivery:      {{.Delivery}}
{{end}}
Failed Queries:
{{- range .FailedQueries}}
  {{.Query}}: {{.Error}}
{{- else}}
  None
{{- end}}
`))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textTmpl.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}
