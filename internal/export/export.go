// Package export writes a digest to local files instead of mailing it.
package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/FranksOps/jobdigest/internal/record"
	"github.com/FranksOps/jobdigest/internal/report"
)

// Exporter persists a rendered digest somewhere other than email.
type Exporter interface {
	Export(ctx context.Context, d *report.Digest, records []record.JobRecord) ([]string, error)
}

// Dir writes <name>.html, <name>.csv and <name>.ndjson into a directory,
// where name is the attachment name without its extension.
type Dir struct {
	path   string
	logger *slog.Logger
}

// NewDir creates the directory if needed.
func NewDir(path string, logger *slog.Logger) (*Dir, error) {
	if path == "" {
		return nil, fmt.Errorf("export: directory is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{path: path, logger: logger}, nil
}

// Export writes the three files and returns their paths. Existing files of
// the same day are replaced.
func (d *Dir) Export(ctx context.Context, digest *report.Digest, records []record.JobRecord) ([]string, error) {
	base := strings.TrimSuffix(digest.AttachmentName, filepath.Ext(digest.AttachmentName))
	if base == "" {
		base = "jobs"
	}

	var nd bytes.Buffer
	if err := WriteNDJSON(&nd, records); err != nil {
		return nil, err
	}

	files := []struct {
		name string
		data []byte
	}{
		{base + ".html", []byte(digest.HTML)},
		{base + ".csv", digest.CSV},
		{base + ".ndjson", nd.Bytes()},
	}

	var paths []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return paths, fmt.Errorf("export: %w", err)
		}
		p := filepath.Join(d.path, f.name)
		if err := writeFile(p, f.data); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}

	d.logger.Info("digest exported", "dir", d.path, "records", len(records))
	return paths, nil
}

// writeFile replaces path via a temp file and rename so readers never see a
// partial file.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// WriteNDJSON writes one JSON object per record per line.
func WriteNDJSON(w io.Writer, records []record.JobRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("export: encode record: %w", err)
		}
	}
	return nil
}

// ReadNDJSON parses records written by WriteNDJSON. Blank lines are skipped.
func ReadNDJSON(r io.Reader) ([]record.JobRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var out []record.JobRecord
	for line := 1; scanner.Scan(); line++ {
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec record.JobRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return out, nil
}
