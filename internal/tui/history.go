package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tracker"
)

const historyPageSize = 8

type historyModel struct {
	tracker *tracker.Tracker
	width   int
	height  int

	records    []store.ArchiveRecord
	categories []store.Category
	offset     int // periods back from the most recent page

	chart barchart.Model
}

func newHistoryModel(t *tracker.Tracker) historyModel {
	return historyModel{
		tracker: t,
		chart:   barchart.New(60, 12),
	}
}

func (h *historyModel) setSize(w, hgt int) {
	h.width = w
	h.height = hgt
}

func (h historyModel) refresh() tea.Cmd {
	return func() tea.Msg {
		records, err := h.tracker.History(bg())
		if err != nil {
			return errStatus("History error: %v", err)
		}
		return historyDataMsg{records: records, categories: h.tracker.Categories(bg())}
	}
}

func (h historyModel) update(msg tea.Msg) (historyModel, tea.Cmd) {
	switch msg := msg.(type) {
	case historyDataMsg:
		h.records = msg.records
		h.categories = msg.categories
		if h.offset >= len(h.records) {
			h.offset = 0
		}
		h.buildChart()
		return h, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.PrevDay):
			if h.offset+historyPageSize < len(h.records) {
				h.offset += historyPageSize
				h.buildChart()
			}
		case key.Matches(msg, keys.NextDay):
			if h.offset > 0 {
				h.offset = max(h.offset-historyPageSize, 0)
				h.buildChart()
			}
		}
	}
	return h, nil
}

// page returns the visible records, oldest first.
func (h historyModel) page() []store.ArchiveRecord {
	if h.offset >= len(h.records) {
		return nil
	}
	end := min(h.offset+historyPageSize, len(h.records))
	out := slices.Clone(h.records[h.offset:end])
	slices.Reverse(out)
	return out
}

func (h *historyModel) buildChart() {
	chartWidth := max(h.width-10, 20)
	chartHeight := 12
	if h.height > 30 {
		chartHeight = 16
	}
	h.chart = newHistoryChart(h.page(), h.categories, chartWidth, chartHeight)
}

// newHistoryChart stacks each period's totals by category, in category
// order, with categories absent from the configuration appended.
func newHistoryChart(records []store.ArchiveRecord, cats []store.Category, w, hgt int) barchart.Model {
	chart := barchart.New(w, hgt)
	order := chartCategories(records, cats)

	var bars []barchart.BarData
	for _, r := range records {
		var values []barchart.BarValue
		for i, id := range order {
			if v := r.Totals[id]; v > 0 {
				values = append(values, barchart.BarValue{
					Name:  id,
					Value: float64(v),
					Style: lipgloss.NewStyle().Foreground(categoryColor(i)),
				})
			}
		}
		if len(values) == 0 {
			values = []barchart.BarValue{{Name: "", Value: 0, Style: lipgloss.NewStyle().Foreground(colorSubtle)}}
		}
		label := r.PeriodStartDate
		if t, err := period.ParseKey(r.PeriodStartDate); err == nil {
			label = t.Format("Jan 02")
		}
		bars = append(bars, barchart.BarData{Label: label, Values: values})
	}

	chart.PushAll(bars)
	chart.Draw()
	return chart
}

func chartCategories(records []store.ArchiveRecord, cats []store.Category) []string {
	var order []string
	seen := map[string]bool{}
	for _, c := range cats {
		order = append(order, c.ID)
		seen[c.ID] = true
	}
	var extra []string
	for _, r := range records {
		for id := range r.Totals {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
	}
	slices.Sort(extra)
	return append(order, extra...)
}

// RenderHistoryChart draws records (most recent first, as listed by the
// store) as a stacked bar chart with a legend.
func RenderHistoryChart(records []store.ArchiveRecord, cats []store.Category, width, height int) string {
	chrono := slices.Clone(records)
	slices.Reverse(chrono)
	chart := newHistoryChart(chrono, cats, width, height)
	return lipgloss.JoinVertical(lipgloss.Left, chart.View(), "", renderLegend(chrono, cats))
}

func (h historyModel) view() string {
	w := h.width - 4

	header := titleStyle.Render("History")
	if len(h.records) > 0 {
		shown := h.page()
		header = lipgloss.JoinHorizontal(lipgloss.Bottom, header, "  ",
			mutedStyle.Render(fmt.Sprintf("%s to %s (%d of %d periods)",
				shown[0].PeriodStartDate, shown[len(shown)-1].PeriodStartDate, len(shown), len(h.records))))
	}

	if len(h.records) == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			header, "", mutedStyle.Render("  No archived periods yet"),
		))
	}

	nav := mutedStyle.Render("  ←/→: older/newer")
	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", h.chart.View(), "", renderLegend(h.page(), h.categories), "", h.renderTable(w), "", nav,
		),
	)
}

func (h historyModel) renderTable(w int) string {
	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-12s %-10s %8s %8s", "Period", "Source", "Total", "Target")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", min(w-6, 42))))
	for _, r := range slices.Backward(h.page()) {
		total, target := r.Totals.Total(), r.Targets.Total()
		row := fmt.Sprintf("  %-12s %-10s %8d %8d", r.PeriodStartDate, r.Metadata.Provenance, total, target)
		if target > 0 && total >= target {
			row = successStyle.Render(row)
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func renderLegend(records []store.ArchiveRecord, cats []store.Category) string {
	names := map[string]string{}
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	var items []string
	for i, id := range chartCategories(records, cats) {
		name := names[id]
		if name == "" {
			name = id
		}
		dot := lipgloss.NewStyle().Foreground(categoryColor(i)).Render("●")
		items = append(items, fmt.Sprintf("%s %s", dot, name))
	}
	if len(items) == 0 {
		return ""
	}
	return "  " + strings.Join(items, "  ")
}
