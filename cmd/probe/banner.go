package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/probe/internal/model"
	"github.com/tinytelemetry/probe/internal/runner"
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cyanStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func printStartupBanner(w io.Writer, cfg appConfig, cases []model.CaseConfig) {
	check := greenStyle.Render("●")
	dot := dimStyle.Render("●")

	logo := cyanStyle.Bold(true).Render(`
    ╔═╗╦═╗╔═╗╔╗ ╔═╗
    ╠═╝╠╦╝║ ║╠╩╗║╣
    ╩  ╩╚═╚═╝╚═╝╚═╝`)

	separator := dimStyle.Render("    ─────────────────────────────────")

	lines := []string{"", logo, "    " + dimStyle.Render("v"+version), "", separator, ""}

	lines = append(lines, boldStyle.Render("    Cases"), "")
	for _, c := range cases {
		lines = append(lines, fmt.Sprintf("    %s  %-14s %s  %s",
			check, c.Name, dimStyle.Render(fmt.Sprintf("%d file(s)", len(c.InputFiles))), cyanStyle.Render(c.URL)))
	}
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Runtime"), "")
	lines = append(lines, fmt.Sprintf("    %s  Concurrency    %s", check, dimStyle.Render(fmt.Sprint(cfg.Concurrency))))
	lines = append(lines, fmt.Sprintf("    %s  Retries        %s", check,
		dimStyle.Render(fmt.Sprintf("%d (timeout %s, backoff %s)", cfg.Retries, cfg.Timeout, cfg.BackoffBase))))
	lines = append(lines, fmt.Sprintf("    %s  Order          %s", check, dimStyle.Render(cfg.Order)))
	if cfg.MaxRows > 0 {
		lines = append(lines, fmt.Sprintf("    %s  Max rows       %s", check, dimStyle.Render(fmt.Sprint(cfg.MaxRows))))
	}
	lines = append(lines, "")

	lines = append(lines, boldStyle.Render("    Outputs"), "")
	lines = append(lines, statusLine(check, dot, "Run index", cfg.DBPath != "", shortenPath(cfg.DBPath)))
	lines = append(lines, statusLine(check, dot, "Status API", cfg.APIEnabled, cfg.APIAddr))
	lines = append(lines, statusLine(check, dot, "Archive", cfg.ArchiveBucketURL != "", cfg.ArchiveBucketURL))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dimStyle.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dimStyle.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dimStyle.Render("Press ")+yellowStyle.Render("Ctrl+C")+dimStyle.Render(" to stop"), "")

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

func statusLine(check, dot, label string, enabled bool, value string) string {
	if enabled {
		return fmt.Sprintf("    %s  %-14s %s", check, label, cyanStyle.Render(value))
	}
	return fmt.Sprintf("    %s  %-14s %s", dot, label, dimStyle.Render("disabled"))
}

// printSummary prints one line per processed file.
func printSummary(w io.Writer, reports []runner.FileReport) {
	if len(reports) == 0 {
		return
	}
	fmt.Fprintln(w, boldStyle.Render("Summary"))
	for _, rep := range reports {
		ok := greenStyle.Render(fmt.Sprintf("ok %d", rep.Counts.Succeeded))
		bad := dimStyle.Render("err 0")
		if rep.Counts.Failed > 0 {
			bad = redStyle.Render(fmt.Sprintf("err %d", rep.Counts.Failed))
		}
		fmt.Fprintf(w, "  %s/%s  %s  %s  skipped %d  %s\n",
			rep.Case, filepath.Base(rep.IO.InputPath), ok, bad, rep.Stats.Skipped, rep.Duration.Round(time.Millisecond))
	}
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
