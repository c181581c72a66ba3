package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/probe/internal/archive"
	"github.com/tinytelemetry/probe/internal/duckdb"
	"github.com/tinytelemetry/probe/internal/executor"
	"github.com/tinytelemetry/probe/internal/httpserver"
	"github.com/tinytelemetry/probe/internal/model"
	"github.com/tinytelemetry/probe/internal/runner"
	"github.com/tinytelemetry/probe/internal/tui"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [case...]",
		Short: "Run cases from the case file",
		Long: `Run the named cases, or every case in file order when none is given.
Each input file's rows are sent to the case URL and outcomes are appended to
the paired output and error files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCases(cmd.Context(), args)
		},
	}

	f := cmd.Flags()
	f.String("cases-file", defaultCasesFile, "YAML file defining the cases")
	f.Int("concurrency", defaultConcurrency, "maximum requests in flight per case")
	f.Duration("timeout", defaultTimeout, "per-attempt request timeout")
	f.Int("retries", defaultRetries, "retries after the first attempt")
	f.Duration("backoff-base", defaultBackoffBase, "wait before the first retry; doubles each retry")
	f.Int("flush-every", defaultFlushEvery, "processed rows between flushes")
	f.Int("max-rows", 0, "only consider the first N rows of each file (0 = all)")
	f.String("order", defaultOrder, "delivery order to the output files: completion or input")
	f.Float64("rate-limit", 0, "maximum request attempts per second (0 = unlimited)")
	f.Int("rate-burst", defaultRateBurst, "burst allowed by --rate-limit")
	f.String("query-column", model.DefaultQueryColumn, "default query column for cases that do not set one")
	f.String("query-field", model.DefaultQueryField, "default body field that receives the query")
	f.String("sheet", "", "worksheet to read from workbooks (default: first)")
	f.String("encoding", "", "charset of CSV inputs (utf-8, euc-kr, cp949, windows-1251)")
	f.String("db-path", "", "DuckDB run index path (disabled when empty)")
	f.Bool("api-enabled", false, "serve the status API while running")
	f.String("api-addr", defaultAPIAddr, "status API listen address")
	f.Bool("tui", false, "show the live progress dashboard")
	return cmd
}

func (a *app) newExecutor() *executor.Executor {
	return executor.New(a.cfg.policy(),
		executor.WithLogger(a.log),
		executor.WithRateLimit(a.cfg.RateLimit, a.cfg.RateBurst),
	)
}

// runCases runs the selected cases with the optional run index, archive,
// status API and dashboard wired around the runner.
func (a *app) runCases(parent context.Context, names []string) error {
	cfg := a.cfg
	if parent == nil {
		parent = context.Background()
	}

	set, err := model.LoadCaseFile(cfg.CasesFile, cfg.caseDefaults())
	if err != nil {
		return err
	}
	cases, err := set.Select(names...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := runner.NewTracker()
	opts := []runner.Option{
		runner.WithLogger(a.log),
		runner.WithExecutor(a.newExecutor()),
		runner.WithObserver(tracker),
	}

	var runs model.RunReader
	var snapshots archive.Snapshotter
	if cfg.DBPath != "" {
		store, err := duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize run index: %w", err)
		}
		defer store.Close()
		runs = store
		snapshots = store
		opts = append(opts, runner.WithIndex(store))
	}

	arch, err := archive.New(cfg.archiveConfig(), snapshots, a.log)
	if err != nil {
		return err
	}
	if arch != nil {
		opts = append(opts, runner.WithArchiver(arch))
	}

	if cfg.APIEnabled {
		srv := httpserver.NewServer(cfg.APIAddr, tracker, runs)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer srv.Stop()
		a.log.Info("status api listening", zap.String("addr", srv.Addr()))
	}

	var (
		program *tea.Program
		dash    *tui.DashboardModel
		feed    *tui.Feed
	)
	if cfg.TUI {
		dash = tui.NewDashboard(caseTitle(cases))
		program = tea.NewProgram(dash, tea.WithAltScreen())
		feed = tui.NewFeed(program)
		opts = append(opts, runner.WithObserver(feed))
	} else {
		printStartupBanner(a.out, cfg, cases)
		if cfg.LogFile != "" {
			opts = append(opts, runner.WithObserver(newProgressPrinter(a.out, cfg.FlushEvery)))
		}
	}

	r := runner.New(cfg.runnerConfig(), opts...)

	var (
		g       errgroup.Group
		reports []runner.FileReport
		runErr  error
	)
	g.Go(func() error {
		reports, runErr = r.RunCases(ctx, cases)
		if feed != nil {
			feed.Done(runErr)
		}
		return nil
	})
	if program != nil {
		g.Go(func() error {
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			if dash.Aborted() {
				a.log.Info("dashboard closed; run continues")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(a.out, reports)
	return runErr
}

func caseTitle(cases []model.CaseConfig) string {
	names := make([]string, 0, len(cases))
	for _, c := range cases {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
