package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tracker"
)

type dashboardModel struct {
	tracker *tracker.Tracker
	width   int
	height  int

	state      store.CurrentState
	categories []store.Category
	cursor     int
	loaded     bool
}

func newDashboardModel(t *tracker.Tracker) dashboardModel {
	return dashboardModel{tracker: t}
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
}

func (d dashboardModel) loadData() tea.Cmd {
	return func() tea.Msg {
		st, err := d.tracker.State(bg())
		if err != nil {
			return errStatus("Load error: %v", err)
		}
		return dashboardDataMsg{state: st, categories: d.tracker.Categories(bg())}
	}
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.state = msg.state
		d.categories = msg.categories
		d.loaded = true
		if d.cursor >= len(d.categories) {
			d.cursor = max(len(d.categories)-1, 0)
		}
		return d, nil

	case tickMsg:
		return d, d.loadData()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if d.cursor > 0 {
				d.cursor--
			}
		case key.Matches(msg, keys.Down):
			if d.cursor < len(d.categories)-1 {
				d.cursor++
			}
		case key.Matches(msg, keys.Inc):
			return d, d.change(1)
		case key.Matches(msg, keys.Dec):
			return d, d.change(-1)
		case key.Matches(msg, keys.PrevDay):
			return d, d.shift(-1)
		case key.Matches(msg, keys.NextDay):
			return d, d.shift(1)
		case key.Matches(msg, keys.Today):
			return d, d.selectDay(d.state.CurrentDayDate)
		}
	}
	return d, nil
}

func (d dashboardModel) selected() (store.Category, bool) {
	if d.cursor < 0 || d.cursor >= len(d.categories) {
		return store.Category{}, false
	}
	return d.categories[d.cursor], true
}

func (d dashboardModel) change(delta int) tea.Cmd {
	cat, ok := d.selected()
	if !ok {
		return nil
	}
	day := d.state.SelectedViewDate
	return func() tea.Msg {
		st, err := d.tracker.Increment(bg(), day, cat.ID, delta)
		if err != nil {
			return errStatus("Error: %v", err)
		}
		return dashboardDataMsg{state: st, categories: d.tracker.Categories(bg())}
	}
}

func (d dashboardModel) shift(n int) tea.Cmd {
	return func() tea.Msg {
		st, err := d.tracker.ShiftDay(bg(), n)
		if err != nil {
			return errStatus("Error: %v", err)
		}
		return dashboardDataMsg{state: st, categories: d.tracker.Categories(bg())}
	}
}

func (d dashboardModel) selectDay(day string) tea.Cmd {
	return func() tea.Msg {
		st, err := d.tracker.SelectDay(bg(), day)
		if err != nil {
			return errStatus("Error: %v", err)
		}
		return dashboardDataMsg{state: st, categories: d.tracker.Categories(bg())}
	}
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}
	if !d.loaded {
		return mutedStyle.Render("Loading...")
	}

	contentWidth := d.width - 4
	return lipgloss.JoinVertical(lipgloss.Left,
		d.renderPeriodPanel(contentWidth),
		d.renderCountsPanel(contentWidth),
	)
}

func (d dashboardModel) renderPeriodPanel(w int) string {
	title := titleStyle.Render("This week")
	rng := highlightStyle.Render(formatPeriod(d.state.CurrentPeriodStartDate))

	day := formatDay(d.state.SelectedViewDate)
	if d.state.SelectedViewDate == d.state.CurrentDayDate {
		day += " (today)"
	}
	dayLine := fmt.Sprintf("Viewing %s", selectedItemStyle.Render(day))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("%s  %s", title, rng),
		dayLine,
	))
}

func (d dashboardModel) renderCountsPanel(w int) string {
	if len(d.categories) == 0 {
		return panelStyle.Width(w).Render(mutedStyle.Render("No categories configured"))
	}

	barWidth := max(min(w-50, 30), 5)
	day := d.state.DailyCounts[d.state.SelectedViewDate]

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-16s %5s %9s", "Category", "Day", "Week")))
	for i, c := range d.categories {
		cursor := "  "
		style := normalItemStyle
		if i == d.cursor {
			cursor = "> "
			style = selectedItemStyle
		}
		weekly := d.state.WeeklyCounts[c.ID]
		dot := lipgloss.NewStyle().Foreground(categoryColor(i)).Render("●")
		bar := lipgloss.NewStyle().Foreground(categoryColor(i)).Render(progressBar(weekly, c.Target, barWidth))

		pct := mutedStyle.Render(fmt.Sprintf("%3d%%", percent(weekly, c.Target)))
		if c.Target > 0 && weekly >= c.Target {
			pct = successStyle.Render(fmt.Sprintf("%3d%%", percent(weekly, c.Target)))
		}

		rows = append(rows, fmt.Sprintf("%s%s %s %5d %4d/%-4d %s %s",
			cursor, dot, style.Render(fmt.Sprintf("%-14s", c.Name)),
			day[c.ID], weekly, c.Target, bar, pct))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("  +/-: change count  ←/→: day  t: today"))

	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
