package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinytelemetry/probe/internal/report"
)

func newReportCmd(a *app) *cobra.Command {
	def := report.DefaultOptions()
	var (
		input  string
		output string
		opts   = def
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Convert a success JSONL file into an Excel report",
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := report.Convert(input, output, opts)
			if err != nil {
				return err
			}
			a.log.Info("report written",
				zap.String("output", output),
				zap.Int("detail_rows", sum.DetailRows),
				zap.Int("match_rows", sum.MatchRows),
			)
			fmt.Fprintf(a.out, "wrote %s (%d detail rows, %d questions)\n", output, sum.DetailRows, sum.MatchRows)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&input, "input", "i", "", "success JSONL file")
	f.StringVarP(&output, "output", "o", "report.xlsx", "Excel file to write")
	f.IntVar(&opts.TopK, "topk", def.TopK, "documents per query block in the details sheet (0 = all)")
	f.IntVar(&opts.TruncateText, "truncate-text", def.TruncateText, "truncate text columns to N characters (0 = off)")
	f.StringVar(&opts.FileColumn, "file-column", def.FileColumn, "record field holding the expected file name")
	f.StringVar(&opts.QuestionColumn, "question-column", def.QuestionColumn, "record field holding the question")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
