package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/FranksOps/jobdigest/internal/classify"
	"github.com/FranksOps/jobdigest/internal/config"
	"github.com/FranksOps/jobdigest/internal/export"
	"github.com/FranksOps/jobdigest/internal/metrics"
	"github.com/FranksOps/jobdigest/internal/pipeline"
	"github.com/FranksOps/jobdigest/internal/profile"
	"github.com/FranksOps/jobdigest/internal/report"
	"github.com/FranksOps/jobdigest/internal/serp"
	"github.com/FranksOps/jobdigest/pkg/ratelimit"
)

type runOptions struct {
	dryRun      bool
	exportDir   string
	profilePath string
	sendEmpty   bool
}

func envProfilePath() string {
	return os.Getenv(config.KeyProfilePath)
}

func newRunCmd(deps Deps) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search, build the digest and deliver it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.exportDir != "" {
				opts.dryRun = true
			}
			return runDigest(cmd.Context(), deps, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "search and print results without sending email")
	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "write html, csv and ndjson files to this directory instead of sending (implies --dry-run)")
	cmd.Flags().StringVar(&opts.profilePath, "profile", "", "search profile YAML (default: PROFILE_PATH or built-in)")
	cmd.Flags().BoolVar(&opts.sendEmpty, "send-empty", false, "send a report even when no jobs were found")
	return cmd
}

func runDigest(ctx context.Context, deps Deps, opts runOptions) error {
	cfg, err := config.Load(config.Options{RequireMail: !opts.dryRun})
	if err != nil {
		return exitWith(ExitConfig, err)
	}
	logger := cfg.Logging.NewLogger(deps.Stderr)

	profilePath := opts.profilePath
	if profilePath == "" {
		profilePath = cfg.ProfilePath
	}
	prof, err := profile.Load(profilePath)
	if err != nil {
		return exitWith(ExitConfig, err)
	}

	if cfg.LockFile != "" {
		lock := flock.New(cfg.LockFile)
		locked, err := lock.TryLock()
		if err != nil {
			return exitWith(ExitRuntime, fmt.Errorf("lock %s: %w", cfg.LockFile, err))
		}
		if !locked {
			logger.Warn("another run holds the lock, skipping", "lock_file", cfg.LockFile)
			return nil
		}
		defer lock.Unlock()
	}

	proxies, err := cfg.SerpAPI.ProxyPool()
	if err != nil {
		return exitWith(ExitConfig, err)
	}
	if proxies != nil {
		logger.Info("routing searches through proxies", "count", proxies.Len())
	}

	searcher, err := serp.NewClient(serp.ClientConfig{
		Endpoint:    cfg.SerpAPI.Endpoint,
		APIKey:      cfg.SerpAPIKey,
		GL:          cfg.SerpAPI.GL,
		HL:          cfg.SerpAPI.HL,
		Recency:     cfg.SerpAPI.Recency,
		IncludeJobs: cfg.SerpAPI.IncludeJobs,
		Timeout:     cfg.SerpAPI.Timeout,
		TLSProfile:  cfg.SerpAPI.TLSProfile,
		UserAgent:   "jobdigest/" + deps.Version,
		Proxies:     proxies,
		Logger:      logger,
	})
	if err != nil {
		return exitWith(ExitConfig, err)
	}

	p := &pipeline.Pipeline{
		Profile:    prof,
		Searcher:   searcher,
		Classifier: classify.New(prof.ExperienceKeywords, prof.OfficialSitePatterns),
		Pacer:      ratelimit.NewPause(cfg.QueryDelay, 0),
		MaxResults: cfg.MaxResults,
		SendEmpty:  cfg.SendEmpty || opts.sendEmpty,
		DryRun:     opts.dryRun,
		Metrics:    metrics.New(),
		PushURL:    cfg.PushgatewayURL,
		Logger:     logger,
	}
	if opts.dryRun {
		if opts.exportDir != "" {
			exp, err := export.NewDir(opts.exportDir, logger)
			if err != nil {
				return exitWith(ExitConfig, err)
			}
			p.Exporter = exp
		}
	} else {
		p.Sender = deps.NewSender(cfg.SMTP, logger)
		p.Mail = pipeline.MailSettings{From: cfg.Sender, To: cfg.Recipient}
	}

	logger.Debug("configuration loaded",
		"endpoint", cfg.SerpAPI.Endpoint,
		"max_results", cfg.MaxResults,
		"smtp_host", cfg.SMTP.Host,
		"smtp_port", cfg.SMTP.Port,
		"tls_profile", cfg.SerpAPI.TLSProfile,
	)

	res, runErr := p.Run(ctx)
	if res != nil {
		printResult(deps.Stdout, res, opts)
	}
	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, pipeline.ErrDelivery):
		return exitWith(ExitDelivery, runErr)
	default:
		return exitWith(ExitRuntime, runErr)
	}
}

func printResult(w io.Writer, res *pipeline.Result, opts runOptions) {
	if res.Delivery == pipeline.DeliveryDryRun && len(res.Records) > 0 {
		if err := renderRecords(w, res.Records); err != nil {
			fmt.Fprintf(w, "could not render results: %v\n", err)
		}
		fmt.Fprintln(w)
	}

	_ = report.WriteText(w, res.Summary)

	switch res.Delivery {
	case pipeline.DeliverySent:
		color.New(color.FgGreen).Fprintf(w, "Report sent (%d listings)\n", len(res.Records))
	case pipeline.DeliverySkipped:
		color.New(color.FgYellow).Fprintln(w, "No jobs found, nothing sent")
	case pipeline.DeliveryExported:
		color.New(color.FgCyan).Fprintf(w, "Report written to %s\n", opts.exportDir)
		for _, p := range res.Exported {
			fmt.Fprintf(w, "  %s\n", p)
		}
	case pipeline.DeliveryFailed:
		color.New(color.FgRed).Fprintln(w, "Report could not be sent")
	}
}
