package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/probe/internal/model"
	"github.com/tinytelemetry/probe/internal/pipeline"
	"github.com/tinytelemetry/probe/internal/rows"
)

type pipelineFlags struct {
	input       string
	expandURL   string
	intentURL   string
	generateURL string
	results     string
	failed      string
	pause       time.Duration
}

func newPipelineCmd(a *app) *cobra.Command {
	var pf pipelineFlags
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run queries through query expansion and intent classification",
		Long: `Send each query to the expansion endpoint, parse the completed query from
the answer, then classify it with the intent endpoint. Successes and
failures are written to separate JSONL files when the run ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPipeline(cmd.Context(), pf)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&pf.input, "input", "i", "", "spreadsheet or CSV holding the queries")
	f.StringVar(&pf.expandURL, "expand-url", "", "query expansion endpoint")
	f.StringVar(&pf.intentURL, "intent-url", "", "intent classification endpoint")
	f.StringVar(&pf.generateURL, "generate-url", "", "optional answer endpoint called after classification")
	f.StringVar(&pf.results, "results", "results.jsonl", "file for queries that passed every stage")
	f.StringVar(&pf.failed, "failed", "failed.jsonl", "file for queries that stopped at a stage")
	f.DurationVar(&pf.pause, "pause", 150*time.Millisecond, "pause between queries")
	f.String("query-column", model.DefaultQueryColumn, "column holding the query")
	f.Duration("timeout", defaultTimeout, "per-attempt request timeout")
	f.Int("retries", defaultRetries, "retries after the first attempt")
	f.String("sheet", "", "worksheet to read from workbooks (default: first)")
	f.String("encoding", "", "charset of CSV inputs")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("expand-url")
	_ = cmd.MarkFlagRequired("intent-url")
	return cmd
}

func (a *app) runPipeline(parent context.Context, pf pipelineFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	column := a.cfg.QueryColumn
	loaded, err := rows.Load(pf.input, rows.Options{
		Required: []string{column},
		Sheet:    a.cfg.Sheet,
		Encoding: a.cfg.Encoding,
	})
	if err != nil {
		return err
	}
	queries := make([]string, 0, len(loaded))
	for _, row := range loaded {
		queries = append(queries, row.Value(column))
	}

	exec := a.newExecutor()
	opts := []pipeline.Option{pipeline.WithLogger(a.log)}
	if pf.generateURL != "" {
		gens, err := pipeline.NewGenerators(&pipeline.HTTPGenerator{Exec: exec, URL: pf.generateURL, Intent: pipeline.Unclassified})
		if err != nil {
			return err
		}
		known := []pipeline.Intent{pipeline.Conversation, pipeline.QA, pipeline.Sensitive}
		for i := pipeline.DraftFirst; i <= pipeline.DraftLast; i++ {
			known = append(known, i)
		}
		for _, intent := range known {
			gens.Register(intent, &pipeline.HTTPGenerator{Exec: exec, URL: pf.generateURL, Intent: intent})
		}
		opts = append(opts, pipeline.WithGenerators(gens))
	}

	p, err := pipeline.New(pipeline.Config{
		ExpandURL:   pf.expandURL,
		IntentURL:   pf.intentURL,
		Pause:       pf.pause,
		ResultsPath: pf.results,
		FailedPath:  pf.failed,
	}, exec, opts...)
	if err != nil {
		return err
	}

	sum, err := p.Run(ctx, queries)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %d/%d succeeded", greenStyle.Render("●"), sum.Succeeded, sum.Total)
	if sum.Failed > 0 {
		fmt.Fprintf(a.out, ", %s", redStyle.Render(fmt.Sprintf("%d failed (see %s)", sum.Failed, pf.failed)))
	}
	fmt.Fprintln(a.out)
	return nil
}
