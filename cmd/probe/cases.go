package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinytelemetry/probe/internal/model"
)

func newCasesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List and validate the configured cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listCases()
		},
	}
	cmd.Flags().String("cases-file", defaultCasesFile, "YAML file defining the cases")
	cmd.Flags().String("query-column", model.DefaultQueryColumn, "default query column for cases that do not set one")
	cmd.Flags().String("query-field", model.DefaultQueryField, "default body field that receives the query")
	return cmd
}

// listCases prints every case in file order. Cases whose file lists do not
// pair up, or whose template is invalid, are reported and make the command
// fail after the listing.
func (a *app) listCases() error {
	set, err := model.LoadCaseFile(a.cfg.CasesFile, a.cfg.caseDefaults())
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range set.Names() {
		c, _ := set.Get(name)
		status := greenStyle.Render("ok")
		if _, err := c.PairIO(); err != nil {
			status = redStyle.Render(err.Error())
			errs = append(errs, err)
		} else if _, err := c.Template(); err != nil {
			status = redStyle.Render(err.Error())
			errs = append(errs, err)
		}
		fmt.Fprintf(a.out, "%s  files=%d  query=%s  url=%s  %s\n",
			boldStyle.Render(name), len(c.InputFiles), c.QueryColumn, c.URL, status)
	}
	return errors.Join(errs...)
}
