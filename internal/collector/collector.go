// Package collector runs the search queries of a digest one after another,
// classifies each hit and keeps the first record seen for every link.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/jobdigest/internal/classify"
	"github.com/FranksOps/jobdigest/internal/metrics"
	"github.com/FranksOps/jobdigest/internal/query"
	"github.com/FranksOps/jobdigest/internal/record"
	"github.com/FranksOps/jobdigest/internal/serp"
	"github.com/FranksOps/jobdigest/pkg/ratelimit"
)

// Status summarizes how a single query went.
type Status string

const (
	StatusOK     Status = metrics.SearchOK
	StatusEmpty  Status = metrics.SearchEmpty
	StatusFailed Status = metrics.SearchFailed
)

// Outcome is the per-query result of Ingest.
type Outcome struct {
	Query      query.Query
	Status     Status
	Results    int // raw results returned
	Kept       int // results that became new records
	Duplicates int // results whose link was already kept
	Skipped    int // results without a link
	Duration   time.Duration
	Err        error
}

// Config provides the collaborators of a Collector.
type Config struct {
	Searcher   serp.Searcher
	Classifier *classify.Classifier
	// Pacer is waited on after every query. Nil means no pause.
	Pacer ratelimit.Pacer
	// Limit is the per-query result cap passed to the searcher.
	Limit   int
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Collector accumulates records across queries. It is not safe for
// concurrent use; queries run strictly in sequence.
type Collector struct {
	cfg    Config
	logger *slog.Logger

	seen     map[string]struct{}
	records  []record.JobRecord
	outcomes []Outcome
}

// New creates an empty collector.
func New(cfg Config) (*Collector, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("collector: searcher is nil")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("collector: classifier is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]struct{}),
	}, nil
}

// Ingest runs one query and folds its results into the collector. A search
// failure is logged and reported in the Outcome; it never aborts the run.
func (c *Collector) Ingest(ctx context.Context, q query.Query) Outcome {
	out := Outcome{Query: q}

	start := time.Now()
	results, err := c.cfg.Searcher.Search(ctx, serp.Request{
		Query:    q.Text,
		Location: q.Location,
		Limit:    c.cfg.Limit,
	})
	out.Duration = time.Since(start)

	switch {
	case err != nil:
		out.Status = StatusFailed
		out.Err = err
		c.logger.Warn("search failed",
			"query", q.Text,
			"location", q.Location,
			"error", err,
		)
	case len(results) == 0:
		out.Status = StatusEmpty
		c.logger.Info("no results", "query", q.Text)
	default:
		out.Status = StatusOK
		out.Results = len(results)
		for _, r := range results {
			link := strings.TrimSpace(r.Link)
			if link == "" {
				out.Skipped++
				continue
			}
			if _, ok := c.seen[link]; ok {
				c.cfg.Metrics.RecordDuplicate()
				out.Duplicates++
				continue
			}
			c.seen[link] = struct{}{}

			flags := c.cfg.Classifier.Classify(r.Title, r.Snippet, link)
			c.records = append(c.records, record.JobRecord{
				Role:            q.Role,
				Location:        q.Location,
				Title:           r.Title,
				Link:            link,
				Source:          r.Source,
				OfficialSite:    flags.OfficialSite,
				ExperienceMatch: flags.ExperienceMatch,
				Snippet:         r.Snippet,
			})
			c.cfg.Metrics.RecordKept(flags.OfficialSite)
			out.Kept++
		}
		c.logger.Info("search complete",
			"query", q.Text,
			"results", out.Results,
			"new", out.Kept,
			"duplicates", out.Duplicates,
		)
	}

	c.cfg.Metrics.RecordSearch(string(out.Status), out.Results, out.Duration)
	c.outcomes = append(c.outcomes, out)
	return out
}

// Collect ingests every query in order, pausing after each one whatever its
// outcome. It only stops early when ctx is canceled, returning ctx.Err()
// alongside whatever was collected so far.
func (c *Collector) Collect(ctx context.Context, queries []query.Query) ([]record.JobRecord, error) {
	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return c.Finalize(), err
		}
		c.logger.Debug("running query", "n", i+1, "of", len(queries), "query", q.Text)
		c.Ingest(ctx, q)

		if c.cfg.Pacer != nil {
			if err := c.cfg.Pacer.Wait(ctx); err != nil {
				return c.Finalize(), err
			}
		}
	}
	return c.Finalize(), nil
}

// Finalize returns the kept records, official sites first, discovery order
// otherwise. The collector's own state is not modified.
func (c *Collector) Finalize() []record.JobRecord {
	return record.SortOfficialFirst(c.records)
}

// Outcomes returns the per-query outcomes in the order the queries ran.
func (c *Collector) Outcomes() []Outcome {
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	return out
}
