package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewHistory
	viewSettings
)

var viewNames = []string{"Week", "History", "Settings"}

// --- Messages ---

type dashboardDataMsg struct {
	state      store.CurrentState
	categories []store.Category
}

type historyDataMsg struct {
	records    []store.ArchiveRecord
	categories []store.Category
}

type settingsDataMsg struct {
	weekStart  period.Weekday
	categories []store.Category
}

type settingsSavedMsg struct{}

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

func errStatus(format string, err error) statusMsg {
	return statusMsg{text: fmt.Sprintf(format, err), isError: true}
}

// --- Helpers ---

func bg() context.Context { return context.Background() }

// formatPeriod renders a period start as "Mar 09 - Mar 15".
func formatPeriod(start string) string {
	from, err := period.ParseKey(start)
	if err != nil {
		return start
	}
	to := from.AddDate(0, 0, period.Length-1)
	return fmt.Sprintf("%s - %s", from.Format("Jan 02"), to.Format("Jan 02, 2006"))
}

// formatDay renders a day key as "Mon 10".
func formatDay(day string) string {
	t, err := period.ParseKey(day)
	if err != nil {
		return day
	}
	return t.Format("Mon 02")
}

// progressBar draws a fixed-width bar for count out of target.
func progressBar(count, target, width int) string {
	if width < 1 {
		return ""
	}
	if target <= 0 {
		return strings.Repeat("·", width)
	}
	filled := min(count*width/target, width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func percent(count, target int) int {
	if target <= 0 {
		return 0
	}
	return count * 100 / target
}

// FormatPeriod and ProgressBar render the same way for the CLI.
func FormatPeriod(start string) string { return formatPeriod(start) }

func ProgressBar(count, target, width int) string { return progressBar(count, target, width) }
