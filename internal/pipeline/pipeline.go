// Package pipeline runs one digest end to end: build the queries, collect
// and classify results, render the report and deliver it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/jobdigest/internal/classify"
	"github.com/FranksOps/jobdigest/internal/collector"
	"github.com/FranksOps/jobdigest/internal/export"
	"github.com/FranksOps/jobdigest/internal/mailer"
	"github.com/FranksOps/jobdigest/internal/metrics"
	"github.com/FranksOps/jobdigest/internal/profile"
	"github.com/FranksOps/jobdigest/internal/query"
	"github.com/FranksOps/jobdigest/internal/record"
	"github.com/FranksOps/jobdigest/internal/report"
	"github.com/FranksOps/jobdigest/internal/serp"
	"github.com/FranksOps/jobdigest/pkg/ratelimit"
)

// RunHeader carries the run ID on every sent message.
const RunHeader = "X-Jobdigest-Run"

// ErrDelivery marks a run whose report could not be sent.
var ErrDelivery = errors.New("delivery failed")

// Delivery describes what happened to the rendered report.
type Delivery string

const (
	DeliverySent     Delivery = "sent"
	DeliverySkipped  Delivery = "skipped"
	DeliveryExported Delivery = "exported"
	DeliveryDryRun   Delivery = "dry-run"
	DeliveryFailed   Delivery = "failed"
)

// MailSettings are the envelope addresses of the report.
type MailSettings struct {
	From string
	To   string
}

// Pipeline holds the collaborators of a run. Searcher is required; Sender
// and Mail are required unless DryRun is set.
type Pipeline struct {
	Profile    profile.Profile
	Searcher   serp.Searcher
	Classifier *classify.Classifier
	Pacer      ratelimit.Pacer
	Sender     mailer.Sender
	Exporter   export.Exporter
	Mail       MailSettings
	MaxResults int
	// SendEmpty sends a "no jobs found" report instead of skipping delivery.
	SendEmpty bool
	DryRun    bool
	Metrics   *metrics.Metrics
	// PushURL is the Pushgateway to push run metrics to. Empty disables.
	PushURL string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Result is what a run produced, returned even when Run fails part way.
type Result struct {
	RunID    string
	Queries  []query.Query
	Records  []record.JobRecord
	Outcomes []collector.Outcome
	Digest   *report.Digest
	Delivery Delivery
	Exported []string
	Summary  report.Summary
}

func (p *Pipeline) validate() error {
	var errs []error
	if p.Searcher == nil {
		errs = append(errs, errors.New("searcher is nil"))
	}
	if !p.DryRun {
		if p.Sender == nil {
			errs = append(errs, errors.New("sender is nil"))
		}
		if p.Mail.From == "" || p.Mail.To == "" {
			errs = append(errs, errors.New("mail from and to are required"))
		}
	}
	if err := p.Profile.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// Run executes one digest. A canceled ctx stops collection and returns its
// error; a failed send returns an error matching ErrDelivery. Finding no jobs
// is not an error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	base := p.Logger
	if base == nil {
		base = slog.Default()
	}

	res := &Result{RunID: uuid.NewString()}
	logger := base.With("run_id", res.RunID)
	start := now()

	clf := p.Classifier
	if clf == nil {
		clf = classify.New(p.Profile.ExperienceKeywords, p.Profile.OfficialSitePatterns)
	}

	res.Queries = query.FromProfile(p.Profile)
	logger.Info("starting run",
		"queries", len(res.Queries),
		"roles", len(p.Profile.Roles),
		"locations", len(p.Profile.Locations),
		"dry_run", p.DryRun,
	)

	c, err := collector.New(collector.Config{
		Searcher:   p.Searcher,
		Classifier: clf,
		Pacer:      p.Pacer,
		Limit:      p.MaxResults,
		Metrics:    p.Metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	records, err := c.Collect(ctx, res.Queries)
	res.Records = records
	res.Outcomes = c.Outcomes()
	if err != nil {
		p.finish(ctx, logger, res, start, now(), false)
		return res, fmt.Errorf("pipeline: collect: %w", err)
	}

	official, experience := record.Counts(records)
	logger.Info("collection complete",
		"records", len(records),
		"official", official,
		"experience", experience,
	)

	if len(records) == 0 && !p.SendEmpty {
		logger.Info("no jobs found, skipping delivery")
		res.Delivery = DeliverySkipped
		p.Metrics.RecordDelivery(metrics.DeliverySkipped)
		p.finish(ctx, logger, res, start, now(), true)
		return res, nil
	}

	digest, err := report.Build(records, report.Options{
		Now:        start,
		Roles:      p.Profile.Roles,
		Locations:  p.Profile.Locations,
		MaxResults: p.MaxResults,
	})
	if err != nil {
		p.finish(ctx, logger, res, start, now(), false)
		return res, fmt.Errorf("pipeline: %w", err)
	}
	res.Digest = digest

	if p.DryRun {
		res.Delivery = DeliveryDryRun
		if p.Exporter != nil {
			paths, err := p.Exporter.Export(ctx, digest, records)
			if err != nil {
				p.finish(ctx, logger, res, start, now(), false)
				return res, fmt.Errorf("pipeline: %w", err)
			}
			res.Exported = paths
			res.Delivery = DeliveryExported
			p.Metrics.RecordDelivery(metrics.DeliveryExported)
		}
		p.finish(ctx, logger, res, start, now(), true)
		return res, nil
	}

	msg := mailer.Message{
		From:    p.Mail.From,
		To:      p.Mail.To,
		Subject: digest.Subject,
		HTML:    digest.HTML,
		Headers: map[string]string{RunHeader: res.RunID},
	}
	if len(records) > 0 {
		msg.Attachment = &mailer.Attachment{
			Filename:    digest.AttachmentName,
			ContentType: "text/csv",
			Data:        digest.CSV,
		}
	}

	if err := p.Sender.Send(ctx, msg); err != nil {
		logger.Error("failed to send report",
			"to", p.Mail.To,
			"records", len(records),
			"error", err,
		)
		res.Delivery = DeliveryFailed
		p.Metrics.RecordDelivery(metrics.DeliveryFailed)
		p.finish(ctx, logger, res, start, now(), false)
		return res, fmt.Errorf("pipeline: %w: %w", ErrDelivery, err)
	}

	res.Delivery = DeliverySent
	p.Metrics.RecordDelivery(metrics.DeliverySent)
	p.finish(ctx, logger, res, start, now(), true)
	return res, nil
}

// finish fills the summary, records run metrics and pushes them. A push
// failure is only logged.
func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, res *Result, start, end time.Time, success bool) {
	res.Summary = report.GenerateSummary(res.Outcomes, res.Records, start, end)
	res.Summary.RunID = res.RunID
	res.Summary.Delivery = string(res.Delivery)

	logger.Info("run finished",
		"delivery", res.Delivery,
		"records", len(res.Records),
		"failed_queries", res.Summary.Failed,
		"duration", end.Sub(start),
	)

	p.Metrics.RecordRun(end.Sub(start), success, end)
	if p.PushURL == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.Metrics.Push(pushCtx, p.PushURL, "jobdigest"); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}
