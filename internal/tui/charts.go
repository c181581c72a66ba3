package tui

import (
	"fmt"
	"path/filepath"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/probe/internal/runner"
)

const chartHeight = 8

// renderOutcomeChart draws succeeded and failed rows per file as stacked bars.
func renderOutcomeChart(files []runner.FileProgress, selected, width int) string {
	style := activeSectionStyle.Width(width - 2)
	chartWidth := max(width-6, 20)

	okStyle := lipgloss.NewStyle().Foreground(ColorGreen).Background(ColorGreen)
	errStyle := lipgloss.NewStyle().Foreground(ColorRed).Background(ColorRed)

	barWidth := 3
	maxBars := chartWidth / (barWidth + 1)
	start := 0
	if len(files) > maxBars {
		start = min(max(selected-maxBars+1, 0), len(files)-maxBars)
	}

	bc := barchart.New(chartWidth, chartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(barWidth),
		barchart.WithNoAxis(),
	)
	for i := start; i < len(files) && i < start+maxBars; i++ {
		f := files[i]
		bc.Push(barchart.BarData{
			Label: fmt.Sprintf("%d", i+1),
			Values: []barchart.BarValue{
				{Name: "ok", Value: float64(f.Succeeded), Style: okStyle},
				{Name: "err", Value: float64(f.Failed), Style: errStyle},
			},
		})
	}
	bc.Draw()

	legend := fmt.Sprintf("%s ok  %s err", okStyle.Render("  "), errStyle.Render("  "))
	title := chartTitleStyle.Render("Outcomes per file")
	if selected >= 0 && selected < len(files) {
		title += helpStyle.Render(fmt.Sprintf("  [%d] %s", selected+1, filepath.Base(files[selected].File)))
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, bc.View(), legend))
}
