package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/jobdigest/internal/record"
	"github.com/FranksOps/jobdigest/internal/report"
)

func sample() []record.JobRecord {
	return []record.JobRecord{
		{Role: "frontend developer", Location: "Chennai", Title: "Frontend Dev", Link: "https://jobs.lever.co/a/1", OfficialSite: true, ExperienceMatch: true, Snippet: "fresher"},
		{Role: "software developer", Location: "India", Title: "SDE", Link: "https://example.com/2", Snippet: "multi\nline"},
	}
}

func TestDir_Export(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	d, err := NewDir(dir, nil)
	require.NoError(t, err)

	recs := sample()
	digest, err := report.Build(recs, report.Options{Now: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	paths, err := d.Export(context.Background(), digest, recs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "jobs-2026-10-19.html"),
		filepath.Join(dir, "jobs-2026-10-19.csv"),
		filepath.Join(dir, "jobs-2026-10-19.ndjson"),
	}, paths)

	html, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, digest.HTML, string(html))

	csvData, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, digest.CSV, csvData)

	f, err := os.Open(paths[2])
	require.NoError(t, err)
	defer f.Close()
	back, err := ReadNDJSON(f)
	require.NoError(t, err)
	assert.Equal(t, recs, back)

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDir_ExportOverwrites(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDir(dir, nil)
	require.NoError(t, err)

	digest := &report.Digest{AttachmentName: "jobs-2026-10-19.csv", HTML: "first", CSV: []byte("a")}
	_, err = d.Export(context.Background(), digest, nil)
	require.NoError(t, err)

	digest.HTML = "second"
	paths, err := d.Export(context.Background(), digest, nil)
	require.NoError(t, err)

	html, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "second", string(html))
}

func TestDir_ExportCanceled(t *testing.T) {
	d, err := NewDir(t.TempDir(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = d.Export(ctx, &report.Digest{AttachmentName: "x.csv"}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewDir_Empty(t *testing.T) {
	_, err := NewDir("", nil)
	require.Error(t, err)
}

func TestNDJSON_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteNDJSON(&buf, sample()))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	back, err := ReadNDJSON(strings.NewReader(buf.String() + "\n\n"))
	require.NoError(t, err)
	assert.Equal(t, sample(), back)
}

func TestReadNDJSON_Malformed(t *testing.T) {
	_, err := ReadNDJSON(strings.NewReader("{\"title\":\"ok\"}\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}
