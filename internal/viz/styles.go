package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/stochsim/internal/analysis"
	"github.com/san-kum/stochsim/internal/experiment"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))

	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	MetricValue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	MetricLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	Warning = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#ffaa00"))

	SparkHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
	SparkMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	SparkLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444"))
)

// StatsLine is the one-line outcome of a report.
func StatsLine(rep *experiment.Report) string {
	return fmt.Sprintf("%d realizations · %.0f events avg · %s",
		len(rep.Results), rep.AvgEvents(), rep.Elapsed.Round(time.Millisecond))
}

// Summary renders a report: header, per-variable sparklines of the ensemble
// mean, the metrics table and any numerical warning.
func Summary(rep *experiment.Report, width int) string {
	if width < 30 {
		width = 30
	}
	var b strings.Builder
	b.WriteString(Title.Render(rep.Model))
	b.WriteString(dim.Render(fmt.Sprintf("  %s  t_max=%g", rep.Kind, rep.TMax)))
	if rep.Dt > 0 {
		b.WriteString(dim.Render(fmt.Sprintf("  dt=%g", rep.Dt)))
	}
	b.WriteString(dim.Render(fmt.Sprintf("  seed=%d", rep.Seed)))
	b.WriteString("\n")
	b.WriteString(white.Render(StatsLine(rep)))
	b.WriteString("\n\n")

	if len(rep.Results) > 0 {
		grid := analysis.Grid(rep.TMax, rep.TMax/float64(width))
		nameWidth := 0
		for _, name := range rep.VarNames {
			nameWidth = max(nameWidth, len(name))
		}
		for i, name := range rep.VarNames {
			band := analysis.Bands(rep.Results, i, grid)
			fmt.Fprintf(&b, "%s %s\n", cyan.Render(fmt.Sprintf("%-*s", nameWidth, name)),
				SparklineChart(band.Mean, width-nameWidth-1))
		}
		b.WriteString("\n")
	}

	b.WriteString(MetricsTable(rep.Metrics))
	if rep.Warning != "" {
		b.WriteString("\n")
		b.WriteString(Warning.Render("warning: " + rep.Warning))
	}
	return Panel.Render(b.String())
}

// MetricsTable lists metrics sorted by name.
func MetricsTable(ms map[string]float64) string {
	names := make([]string, 0, len(ms))
	width := 0
	for name := range ms {
		names = append(names, name)
		width = max(width, len(name))
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(MetricLabel.Render(fmt.Sprintf("%-*s", width, name)))
		b.WriteString("  ")
		b.WriteString(MetricValue.Render(fmt.Sprintf("%.4g", ms[name])))
		b.WriteString("\n")
	}
	return b.String()
}

// ProgressBar renders a bar for a fraction in [0, 1].
func ProgressBar(percent float64, width int) string {
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	if percent > 0.8 {
		return SparkHigh.Render(bar)
	} else if percent > 0.4 {
		return SparkMid.Render(bar)
	}
	return SparkLow.Render(bar)
}

// SparklineChart renders values as block characters, sampled to width.
func SparklineChart(values []float64, width int) string {
	if len(values) == 0 || width < 1 {
		return strings.Repeat("─", max(width, 0))
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	step := len(values) / width
	if step < 1 {
		step = 1
	}

	var result strings.Builder
	for i := 0; i < width && i*step < len(values); i++ {
		norm := (values[i*step] - lo) / span
		idx := int(norm * float64(len(chars)-1))
		idx = min(max(idx, 0), len(chars)-1)

		c := string(chars[idx])
		switch {
		case norm > 0.7:
			result.WriteString(SparkHigh.Render(c))
		case norm > 0.3:
			result.WriteString(SparkMid.Render(c))
		default:
			result.WriteString(SparkLow.Render(c))
		}
	}
	return result.String()
}

// AnimatedSpinner returns one frame of a braille spinner.
func AnimatedSpinner(frame int) string {
	spinners := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	return spinners[frame%len(spinners)]
}
