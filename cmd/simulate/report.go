package main

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"homedash/internal/models"
	"homedash/internal/services/metrics"
)

// histogramWidth is the longest bar drawn for a bucket, in cells
const histogramWidth = 40

// Partial cells for sub-character bar resolution (1/8 to 7/8)
var partialBlocks = [7]rune{'▏', '▎', '▍', '▌', '▋', '▊', '▉'}

var (
	colorGain     = lipgloss.Color("#00FFB2")
	colorModerate = lipgloss.Color("#FFD300")
	colorLoss     = lipgloss.Color("#E94090")
	colorMuted    = lipgloss.Color("#858392")
	colorHeading  = lipgloss.Color("#00CED1")
)

var zoneColors = map[models.Zone]lipgloss.Color{
	models.ZoneLoss:     colorLoss,
	models.ZoneModerate: colorModerate,
	models.ZoneGain:     colorGain,
}

// formatMoney renders a dollar amount rounded to cents, e.g. "$1,234.50"
func formatMoney(v float64) string {
	return money.New(int64(math.Round(v*100)), money.USD).Display()
}

func formatChange(pct float64) string {
	return fmt.Sprintf("%+.1f%%", pct)
}

// reportStyles are bound to one output so color is only emitted to terminals
type reportStyles struct {
	re      *lipgloss.Renderer
	heading lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	re := lipgloss.NewRenderer(w)
	return reportStyles{
		re:      re,
		heading: re.NewStyle().Bold(true).Foreground(colorHeading),
		label:   re.NewStyle().Width(26),
		muted:   re.NewStyle().Foreground(colorMuted),
	}
}

// signed colors s green at or above the baseline and red below it
func (s reportStyles) signed(text string, value, baseline float64) string {
	color := colorGain
	if value < baseline {
		color = colorLoss
	}
	return s.re.NewStyle().Foreground(color).Render(text)
}

// writeReport prints the run statistics relative to invested capital
func writeReport(w io.Writer, result *models.SimulationResult, summary *models.PortfolioSummary, showHistogram bool) error {
	s := newReportStyles(w)
	invested := result.TotalInvested

	sections := []string{
		s.heading.Render(fmt.Sprintf("Horizon: %g years, %d paths, %d positions",
			result.Config.HorizonYears, result.Config.PathCount, summary.PositionCount)),
		renderStatsTable(s, result, summary),
		strings.Join([]string{
			s.label.Render("Probability of loss:") + fmt.Sprintf("%.1f%%", result.ProbabilityOfLoss),
			s.label.Render("Probability of doubling:") + fmt.Sprintf("%.1f%%", result.ProbabilityOfDoubling),
		}, "\n"),
	}

	if n := len(result.FanSeries); n > 0 {
		first, last := result.FanSeries[0], result.FanSeries[n-1]
		sections = append(sections, strings.Join([]string{
			fanLine(s, first, invested),
			fanLine(s, last, invested),
		}, "\n"))
	}

	if len(summary.Accounts) > 1 {
		sections = append(sections, renderAccounts(s, summary.Accounts))
	}

	if showHistogram {
		if h := renderHistogram(s, result.Buckets); h != "" {
			sections = append(sections, h)
		}
	}

	_, err := io.WriteString(w, strings.Join(sections, "\n\n")+"\n")
	return err
}

func renderStatsTable(s reportStyles, result *models.SimulationResult, summary *models.PortfolioSummary) string {
	ms := metrics.New()
	invested := result.TotalInvested

	type statRow struct {
		name  string
		value float64
	}
	stats := []statRow{
		{"Expected (drift only)", summary.ExpectedTerminal},
		{"Mean", result.Mean},
		{"P10", result.P10},
		{"P50", result.P50},
		{"P90", result.P90},
	}

	rows := [][]string{{"Invested", formatMoney(invested), ""}}
	values := []float64{invested}
	for _, st := range stats {
		rows = append(rows, []string{st.name, formatMoney(st.value), formatChange(ms.PercentChange(st.value, invested))})
		values = append(values, st.value)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.muted).
		Headers("", "Value", "Change").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := s.re.NewStyle().Padding(0, 1)
			if col > 0 {
				style = style.Align(lipgloss.Right)
			}
			switch {
			case row == table.HeaderRow:
				return style.Bold(true)
			case col == 2 && row < len(values):
				color := colorGain
				if values[row] < invested {
					color = colorLoss
				}
				return style.Foreground(color)
			}
			return style
		})
	return t.String()
}

func fanLine(s reportStyles, p models.FanPoint, invested float64) string {
	return fmt.Sprintf("Fan month %d: P10 %s  P50 %s  P90 %s", p.MonthIndex,
		s.signed(formatMoney(p.P10), p.P10, invested),
		s.signed(formatMoney(p.P50), p.P50, invested),
		s.signed(formatMoney(p.P90), p.P90, invested))
}

func renderAccounts(s reportStyles, accounts []models.AccountAllocation) string {
	rows := make([][]string, len(accounts))
	for i, a := range accounts {
		rows[i] = []string{a.Account, formatMoney(a.Value), fmt.Sprintf("%.1f%%", a.Percent)}
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("Account", "Value", "Share").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := s.re.NewStyle().PaddingRight(2)
			if col > 0 {
				style = style.Align(lipgloss.Right)
			}
			if row == table.HeaderRow {
				style = style.Bold(true)
			}
			return style
		})
	return t.String()
}

// renderHistogram draws one bar per bucket scaled to the tallest bucket and
// colored by zone. Any non-empty bucket gets at least an eighth of a cell.
func renderHistogram(s reportStyles, buckets []models.BucketDatum) string {
	maxCount := 0
	labelWidth := 0
	for _, b := range buckets {
		if b.Count > maxCount {
			maxCount = b.Count
		}
		if w := lipgloss.Width(b.Label); w > labelWidth {
			labelWidth = w
		}
	}
	if maxCount == 0 {
		return ""
	}

	label := s.re.NewStyle().Width(labelWidth).Align(lipgloss.Right)
	lines := make([]string, 0, len(buckets)+1)
	for _, b := range buckets {
		bar := s.re.NewStyle().Foreground(zoneColors[b.Zone]).Render(histogramBar(b.Count, maxCount, histogramWidth))
		lines = append(lines, fmt.Sprintf("%s │%s %d", label.Render(b.Label), bar, b.Count))
	}

	legend := make([]string, 0, 3)
	for _, z := range []models.Zone{models.ZoneLoss, models.ZoneModerate, models.ZoneGain} {
		legend = append(legend, s.re.NewStyle().Foreground(zoneColors[z]).Render("█")+" "+string(z))
	}
	lines = append(lines, s.muted.Render(strings.Repeat(" ", labelWidth)+" └")+" "+strings.Join(legend, "  "))
	return strings.Join(lines, "\n")
}

func histogramBar(count, maxCount, width int) string {
	if count <= 0 || maxCount <= 0 {
		return ""
	}
	cells := float64(count) / float64(maxCount) * float64(width)
	full := int(cells)
	eighths := int(math.Round((cells - float64(full)) * 8))
	if eighths == 8 {
		full++
		eighths = 0
	}
	if full == 0 && eighths == 0 {
		eighths = 1
	}

	bar := strings.Repeat("█", full)
	if eighths > 0 {
		bar += string(partialBlocks[eighths-1])
	}
	return bar
}
