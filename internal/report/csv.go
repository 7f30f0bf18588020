package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/FranksOps/jobdigest/internal/record"
)

// Header is the column layout of the CSV attachment.
var Header = []string{"role", "location", "title", "link", "source", "official_site", "experience_match", "snippet"}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// flatten replaces line breaks with a single space so every record stays on
// one physical line.
func flatten(s string) string {
	return newlines.Replace(s)
}

// WriteCSV writes the header and one row per record, in order. Nothing is
// truncated.
func WriteCSV(w io.Writer, records []record.JobRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			flatten(r.Role),
			flatten(r.Location),
			flatten(r.Title),
			flatten(r.Link),
			flatten(r.Source),
			strconv.FormatBool(r.OfficialSite),
			strconv.FormatBool(r.ExperienceMatch),
			flatten(r.Snippet),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// ReadCSV parses a stream produced by WriteCSV back into records.
func ReadCSV(r io.Reader) ([]record.JobRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("report: csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("report: read csv header: %w", err)
	}
	for i, h := range Header {
		if head[i] != h {
			return nil, fmt.Errorf("report: csv column %d is %q, want %q", i+1, head[i], h)
		}
	}

	var out []record.JobRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("report: read csv: %w", err)
		}
		official, err := strconv.ParseBool(row[5])
		if err != nil {
			return nil, fmt.Errorf("report: csv line %d official_site: %w", line, err)
		}
		experience, err := strconv.ParseBool(row[6])
		if err != nil {
			return nil, fmt.Errorf("report: csv line %d experience_match: %w", line, err)
		}
		out = append(out, record.JobRecord{
			Role:            row[0],
			Location:        row[1],
			Title:           row[2],
			Link:            row[3],
			Source:          row[4],
			OfficialSite:    official,
			ExperienceMatch: experience,
			Snippet:         row[7],
		})
	}
	return out, nil
}
