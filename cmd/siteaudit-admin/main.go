package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/target/mmk-site-audit/config"
	"github.com/target/mmk-site-audit/internal/adapters/reaper"
	"github.com/target/mmk-site-audit/internal/bootstrap"
	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/data"
	"github.com/target/mmk-site-audit/internal/domain/model"
	"github.com/target/mmk-site-audit/internal/migrate"
	"github.com/target/mmk-site-audit/internal/report"
	"github.com/target/mmk-site-audit/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultHistoryLimit     = 20

	formatText = "text"
	formatJSON = "json"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		slog.ErrorContext(ctx, "command failed", "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newApp(w io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "siteaudit-admin",
		Usage:  "Operate the site audit service: one-off audits, migrations and history",
		Writer: w,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Audit a single URL in-process and print the report",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "target URL", Required: true},
					&cli.StringFlag{Name: "api-key", Usage: "performance insights API key (defaults to PAGESPEED_API_KEY)"},
					&cli.StringFlag{Name: "format", Usage: "output format: text or json", Value: formatText},
				},
				Action: runAuditAction,
			},
			{
				Name:  "migrate",
				Usage: "Apply audit history migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "status", Usage: "list applied migrations instead of applying"},
					&cli.DurationFlag{Name: "timeout", Usage: "migration timeout", Value: defaultMigrationTimeout},
				},
				Action: migrateAction,
			},
			{
				Name:  "history",
				Usage: "List persisted audit runs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "only runs for this target"},
					&cli.IntFlag{Name: "limit", Usage: "maximum rows", Value: defaultHistoryLimit},
				},
				Action: historyAction,
			},
			{
				Name:  "prune-history",
				Usage: "Delete persisted audit runs older than the retention window",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "retention", Usage: "keep runs newer than this (defaults to REAPER_HISTORY_RETENTION)"},
					&cli.IntFlag{Name: "batch-size", Usage: "rows deleted per statement (defaults to REAPER_BATCH_SIZE)"},
				},
				Action: pruneHistoryAction,
			},
			{
				Name:  "archive",
				Usage: "Inspect archived audit results in Redis",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "Print an archived audit",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "audit job id", Required: true},
							&cli.StringFlag{Name: "format", Usage: "output format: text or json", Value: formatText},
						},
						Action: archiveShowAction,
					},
					{
						Name:  "delete",
						Usage: "Remove an archived audit",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "id", Usage: "audit job id", Required: true},
						},
						Action: archiveDeleteAction,
					},
				},
			},
		},
	}
}

// adminContext carries what every command needs.
type adminContext struct {
	Config *config.AppConfig
	Logger *slog.Logger
	Out    io.Writer
}

func loadAdminContext(cmd *cli.Command) (*adminContext, error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, err
	}
	// logs go to stderr so reports on stdout stay machine readable
	logger := bootstrap.NewLogger(os.Stderr, cfg.Log)
	slog.SetDefault(logger)

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	return &adminContext{Config: &cfg, Logger: logger, Out: out}, nil
}

func validateFormat(format string) error {
	switch format {
	case formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("unknown format %q (valid options: text, json)", format)
	}
}

// writeJob prints job in the requested format and reports a failed audit as an error.
func writeJob(w io.Writer, job *model.AuditJob, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(job); err != nil {
			return fmt.Errorf("encode audit: %w", err)
		}
	default:
		if err := report.WriteSummary(w, job); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if job.Status == model.JobStatusFailed {
		reason := "unknown error"
		if job.Error != nil {
			reason = job.Error.Reason
		}
		return fmt.Errorf("audit %s failed: %s", job.ID, reason)
	}
	return nil
}

func runAuditAction(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	app, err := loadAdminContext(cmd)
	if err != nil {
		return err
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{Config: app.Config, Logger: app.Logger})
	if err != nil {
		return err
	}
	defer func() {
		if serr := services.Audits.Shutdown(context.Background()); serr != nil {
			app.Logger.Warn("audit service shutdown failed", "error", serr)
		}
	}()

	resp, err := services.Audits.SubmitAudit(ctx, service.SubmitAuditRequest{
		URL:    cmd.String("url"),
		APIKey: cmd.String("api-key"),
	})
	if err != nil {
		return err
	}
	app.Logger.InfoContext(ctx, "audit submitted", "job_id", resp.JobID)

	// the audit deadline bounds the job itself; the margin covers scoring and recording
	waitCtx, cancel := context.WithTimeout(ctx, app.Config.Audit.Timeout+10*time.Second)
	defer cancel()
	job, err := services.Audits.Wait(waitCtx, resp.JobID)
	if err != nil {
		return fmt.Errorf("wait for audit: %w", err)
	}
	return writeJob(app.Out, job, format)
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	app, err := loadAdminContext(cmd)
	if err != nil {
		return err
	}
	db, closeDB, err := app.openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	if cmd.Bool("status") {
		applied, err := migrate.Status(ctx, db)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return writeMigrationStatus(app.Out, applied)
	}

	if err := bootstrap.RunMigrations(ctx, db, app.Logger); err != nil {
		return err
	}
	_, err = fmt.Fprintln(app.Out, "migrations applied")
	return err
}

func writeMigrationStatus(w io.Writer, applied []migrate.Applied) error {
	if len(applied) == 0 {
		_, err := fmt.Fprintln(w, "(no migrations applied)")
		return err
	}
	for _, m := range applied {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", m.Version, m.AppliedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	opts := model.AuditRunListOptions{Limit: cmd.Int("limit")}
	if raw := cmd.String("url"); raw != "" {
		target, err := model.NormalizeTargetURL(raw)
		if err != nil {
			return fmt.Errorf("invalid --url: %w", err)
		}
		opts.TargetURL = target
	}

	app, err := loadAdminContext(cmd)
	if err != nil {
		return err
	}
	db, closeDB, err := app.openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := data.NewAuditHistoryRepo(db).List(ctx, opts)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	return report.WriteHistory(app.Out, runs)
}

func pruneHistoryAction(ctx context.Context, cmd *cli.Command) error {
	app, err := loadAdminContext(cmd)
	if err != nil {
		return err
	}
	reaperCfg := app.Config.Reaper
	if cmd.IsSet("retention") {
		reaperCfg.HistoryRetention = cmd.Duration("retention")
	}
	if cmd.IsSet("batch-size") {
		reaperCfg.BatchSize = cmd.Int("batch-size")
	}
	if reaperCfg.HistoryRetention <= 0 || reaperCfg.BatchSize <= 0 {
		return errors.New("--retention and --batch-size must be positive")
	}

	db, closeDB, err := app.openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		History: data.NewAuditHistoryRepo(db),
		Config:  reaperCfg,
		Logger:  app.Logger,
	})
	if err != nil {
		return err
	}
	if err := runner.RunOnce(ctx); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	_, err = fmt.Fprintf(app.Out, "audit runs older than %s pruned\n", reaperCfg.HistoryRetention)
	return err
}

func openArchive(cmd *cli.Command) (*adminContext, *core.ResultArchive, func(), error) {
	app, err := loadAdminContext(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	client, closer, err := app.openRedis()
	if err != nil {
		return nil, nil, nil, err
	}
	archive := core.NewResultArchive(core.ResultArchiveOptions{
		Cache:  data.NewRedisCacheRepo(client),
		TTL:    app.Config.Cache.TTL,
		Logger: app.Logger,
	})
	return app, archive, closer, nil
}

func archiveShowAction(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if err := validateFormat(format); err != nil {
		return err
	}
	app, archive, closer, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer closer()

	job, err := archive.Load(ctx, cmd.String("id"))
	if err != nil {
		return err
	}
	return writeJob(app.Out, job, format)
}

func archiveDeleteAction(ctx context.Context, cmd *cli.Command) error {
	app, archive, closer, err := openArchive(cmd)
	if err != nil {
		return err
	}
	defer closer()

	id := cmd.String("id")
	deleted, err := archive.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		_, err = fmt.Fprintf(app.Out, "audit %s not archived\n", id)
		return err
	}
	_, err = fmt.Fprintf(app.Out, "audit %s removed from archive\n", id)
	return err
}
