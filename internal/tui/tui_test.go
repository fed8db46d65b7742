package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/tally/internal/clock"
	"github.com/sadopc/tally/internal/normalize"
	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tracker"
)

func newTestTracker(t *testing.T) (*tracker.Tracker, *clock.Fixed) {
	t.Helper()
	c, err := clock.NewFixedDate("2025-03-10")
	if err != nil {
		t.Fatal(err)
	}
	s := store.NewMemory(c)
	t.Cleanup(func() { s.Close() })
	return tracker.New(s, c, normalize.New(c), "dev-tui"), c
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run executes cmd and returns its message, failing on a status error.
func run(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if st, ok := msg.(statusMsg); ok && st.isError {
		t.Fatalf("command failed: %s", st.text)
	}
	return msg
}

func loadedDashboard(t *testing.T, tr *tracker.Tracker) dashboardModel {
	t.Helper()
	d := newDashboardModel(tr)
	d.setSize(120, 40)
	d, _ = d.update(run(t, d.Init()))
	return d
}

// ============================================================
// Helper functions
// ============================================================

func TestFormatPeriod(t *testing.T) {
	if got := formatPeriod("2025-03-09"); got != "Mar 09 - Mar 15, 2025" {
		t.Fatalf("got %q", got)
	}
	if got := formatPeriod("garbage"); got != "garbage" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatDay(t *testing.T) {
	if got := formatDay("2025-03-10"); got != "Mon 10" {
		t.Fatalf("got %q", got)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		count, target, width int
		want                 string
	}{
		{5, 10, 10, "█████░░░░░"},
		{0, 10, 4, "░░░░"},
		{20, 10, 4, "████"},
		{3, 0, 3, "···"},
		{1, 1, 0, ""},
	}
	for _, tt := range tests {
		if got := progressBar(tt.count, tt.target, tt.width); got != tt.want {
			t.Errorf("progressBar(%d, %d, %d) = %q, want %q", tt.count, tt.target, tt.width, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if percent(7, 14) != 50 {
		t.Fatal("expected 50")
	}
	if percent(7, 0) != 0 {
		t.Fatal("zero target should be 0%")
	}
}

// ============================================================
// View state
// ============================================================

func TestViewNames(t *testing.T) {
	if len(viewNames) != 3 {
		t.Fatalf("expected 3 view names, got %d", len(viewNames))
	}
	if viewNames[viewSettings] != "Settings" {
		t.Fatal("settings tab misnamed")
	}
}

// ============================================================
// Dashboard model
// ============================================================

func TestDashboardInit(t *testing.T) {
	tr, _ := newTestTracker(t)
	d := loadedDashboard(t, tr)

	if !d.loaded {
		t.Fatal("dashboard should be loaded")
	}
	if d.state.CurrentPeriodStartDate != "2025-03-09" {
		t.Fatalf("unexpected period %q", d.state.CurrentPeriodStartDate)
	}
	if len(d.categories) != len(tracker.DefaultCategories) {
		t.Fatal("default categories not loaded")
	}
	if !strings.Contains(d.view(), "Fruit") {
		t.Fatal("view should list categories")
	}
}

func TestDashboardIncrementDecrement(t *testing.T) {
	tr, _ := newTestTracker(t)
	d := loadedDashboard(t, tr)

	d, cmd := d.update(runes("+"))
	d, _ = d.update(run(t, cmd))
	d, cmd = d.update(runes("+"))
	d, _ = d.update(run(t, cmd))
	if got := d.state.DailyCounts["2025-03-10"]["fruit"]; got != 2 {
		t.Fatalf("expected 2 fruit, got %d", got)
	}

	for range 3 {
		d, cmd = d.update(runes("-"))
		d, _ = d.update(run(t, cmd))
	}
	if got := d.state.DailyCounts["2025-03-10"]["fruit"]; got != 0 {
		t.Fatalf("count should clamp at 0, got %d", got)
	}
}

func TestDashboardCursorSelectsCategory(t *testing.T) {
	tr, _ := newTestTracker(t)
	d := loadedDashboard(t, tr)

	d, _ = d.update(tea.KeyMsg{Type: tea.KeyDown})
	if d.cursor != 1 {
		t.Fatalf("cursor should move down, got %d", d.cursor)
	}
	d, _ = d.update(tea.KeyMsg{Type: tea.KeyUp})
	d, _ = d.update(tea.KeyMsg{Type: tea.KeyUp})
	if d.cursor != 0 {
		t.Fatal("cursor should stop at 0")
	}

	d, _ = d.update(tea.KeyMsg{Type: tea.KeyDown})
	d, cmd := d.update(runes("+"))
	d, _ = d.update(run(t, cmd))
	if d.state.WeeklyCounts["veg"] != 1 {
		t.Fatalf("expected veg to be counted, got %v", d.state.WeeklyCounts)
	}
}

func TestDashboardDayNavigation(t *testing.T) {
	tr, _ := newTestTracker(t)
	d := loadedDashboard(t, tr)

	d, cmd := d.update(tea.KeyMsg{Type: tea.KeyLeft})
	d, _ = d.update(run(t, cmd))
	if d.state.SelectedViewDate != "2025-03-09" {
		t.Fatalf("expected 2025-03-09, got %s", d.state.SelectedViewDate)
	}

	d, cmd = d.update(runes("+"))
	d, _ = d.update(run(t, cmd))
	if d.state.DailyCounts["2025-03-09"]["fruit"] != 1 {
		t.Fatal("increment should apply to the viewed day")
	}

	d, cmd = d.update(runes("t"))
	d, _ = d.update(run(t, cmd))
	if d.state.SelectedViewDate != "2025-03-10" {
		t.Fatal("t should jump back to today")
	}
}

func TestDashboardTooSmall(t *testing.T) {
	tr, _ := newTestTracker(t)
	d := newDashboardModel(tr)
	d.setSize(10, 10)
	if d.view() != "Terminal too small" {
		t.Fatal("expected size warning")
	}
}

// ============================================================
// History model
// ============================================================

func putArchive(t *testing.T, tr *tracker.Tracker, c clock.Clock, start string, totals store.Counts) {
	t.Helper()
	rec, err := normalize.New(c).Archive(store.ArchiveRecord{PeriodStartDate: start, Totals: totals}, normalize.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Store().PutArchive(bg(), rec); err != nil {
		t.Fatal(err)
	}
}

func TestHistoryAfterRollover(t *testing.T) {
	tr, c := newTestTracker(t)
	if _, err := tr.Increment(bg(), "", "fruit", 4); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFixedDate("2025-03-17"); err != nil {
		t.Fatal(err)
	}

	h := newHistoryModel(tr)
	h.setSize(120, 40)
	h, _ = h.update(run(t, h.refresh()))

	if len(h.records) != 1 {
		t.Fatalf("expected 1 archived period, got %d", len(h.records))
	}
	out := h.view()
	if !strings.Contains(out, "2025-03-09") {
		t.Fatal("history table should list the period")
	}
}

func TestHistoryEmpty(t *testing.T) {
	tr, _ := newTestTracker(t)
	h := newHistoryModel(tr)
	h.setSize(120, 40)
	h, _ = h.update(run(t, h.refresh()))
	if !strings.Contains(h.view(), "No archived periods yet") {
		t.Fatal("expected empty message")
	}
}

func TestHistoryPaging(t *testing.T) {
	tr, c := newTestTracker(t)
	start := "2024-12-01"
	for range 10 {
		putArchive(t, tr, c, start, store.Counts{"fruit": 1})
		start, _ = period.AddDays(start, 7)
	}

	h := newHistoryModel(tr)
	h.setSize(120, 40)
	h, _ = h.update(run(t, h.refresh()))

	page := h.page()
	if len(page) != historyPageSize {
		t.Fatalf("expected full page, got %d", len(page))
	}
	if page[0].PeriodStartDate > page[len(page)-1].PeriodStartDate {
		t.Fatal("page should be oldest first")
	}
	if page[len(page)-1].PeriodStartDate != "2025-02-02" {
		t.Fatalf("newest shown should be most recent, got %s", page[len(page)-1].PeriodStartDate)
	}

	h, _ = h.update(tea.KeyMsg{Type: tea.KeyLeft})
	if h.offset != historyPageSize || len(h.page()) != 2 {
		t.Fatalf("expected older page of 2, offset %d", h.offset)
	}
	h, _ = h.update(tea.KeyMsg{Type: tea.KeyLeft})
	if h.offset != historyPageSize {
		t.Fatal("should not page past the oldest record")
	}
	h, _ = h.update(tea.KeyMsg{Type: tea.KeyRight})
	if h.offset != 0 {
		t.Fatal("should page back to newest")
	}
}

func TestChartCategories(t *testing.T) {
	records := []store.ArchiveRecord{
		{Totals: store.Counts{"zinc": 1, "fruit": 2}},
		{Totals: store.Counts{"apples": 1}},
	}
	cats := []store.Category{{ID: "veg"}, {ID: "fruit"}}

	got := chartCategories(records, cats)
	want := []string{"veg", "fruit", "apples", "zinc"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRenderHistoryChart(t *testing.T) {
	records := []store.ArchiveRecord{
		{PeriodStartDate: "2025-03-02", Totals: store.Counts{"fruit": 9}},
		{PeriodStartDate: "2025-02-23", Totals: store.Counts{"fruit": 4, "veg": 2}},
	}
	out := RenderHistoryChart(records, tracker.DefaultCategories, 60, 10)
	if out == "" {
		t.Fatal("chart rendered empty")
	}
	if !strings.Contains(out, "Vegetables") {
		t.Fatal("legend should use category names")
	}
}

// ============================================================
// Settings model
// ============================================================

func TestSettingsRefreshAndApply(t *testing.T) {
	tr, _ := newTestTracker(t)
	s := newSettingsModel(tr)
	s.setSize(120, 40)
	s, _ = s.update(run(t, s.refresh()))

	if s.weekStart != period.Sunday {
		t.Fatalf("expected default Sunday, got %s", s.weekStart)
	}

	*s.targetVals = []string{"7", " 30 ", "oops"}
	cats := s.formCategories()
	if cats[0].Target != 7 || cats[1].Target != 30 {
		t.Fatalf("targets not applied: %+v", cats)
	}
	if cats[2].Target != tracker.DefaultCategories[2].Target {
		t.Fatal("unparseable target should keep the old value")
	}
	if s.categories[0].Target != tracker.DefaultCategories[0].Target {
		t.Fatal("formCategories must not mutate the model")
	}

	if err := s.apply("Monday", cats); err != nil {
		t.Fatal(err)
	}
	if tr.WeekStart(bg()) != period.Monday {
		t.Fatal("week start not saved")
	}
	if tr.Categories(bg())[0].Target != 7 {
		t.Fatal("targets not saved")
	}

	if err := s.apply("Friday", cats); err == nil {
		t.Fatal("expected invalid weekday error")
	}
}

func TestSettingsShowForm(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)
	app.activeView = viewSettings
	app.settings, _ = app.settings.update(run(t, app.settings.refresh()))

	app.settings, _ = app.settings.showForm()
	if !app.settings.formActive || app.settings.form == nil {
		t.Fatal("form should be active")
	}
	if !app.isFormActive() {
		t.Fatal("app should route keys to the form")
	}
	if *app.settings.weekStartVal != "Sunday" {
		t.Fatalf("form should start from current value, got %q", *app.settings.weekStartVal)
	}

	app.settings, _ = app.settings.update(tea.KeyMsg{Type: tea.KeyEsc})
	if app.settings.formActive {
		t.Fatal("esc should close the form")
	}
}

func TestValidateTarget(t *testing.T) {
	for _, ok := range []string{"0", "14", " 3 "} {
		if err := validateTarget(ok); err != nil {
			t.Errorf("%q should be valid: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "-1", "many", "1.5"} {
		if err := validateTarget(bad); err == nil {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

// ============================================================
// App model
// ============================================================

func TestNewApp(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)

	if app.activeView != viewDashboard {
		t.Fatal("default view should be dashboard")
	}
	if app.showHelp {
		t.Fatal("help should be hidden by default")
	}
	if app.exportPicking {
		t.Fatal("export picker should be hidden by default")
	}
	if app.isFormActive() {
		t.Fatal("no forms should be active initially")
	}
}

func TestAppViewStates(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)
	model, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	app = model.(App)

	for v := range viewState(len(viewNames)) {
		app.activeView = v
		if app.View() == "" {
			t.Fatalf("view %d rendered empty", v)
		}
	}
}

func TestAppTabSwitching(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)

	model, cmd := app.Update(runes("2"))
	app = model.(App)
	if app.activeView != viewHistory || cmd == nil {
		t.Fatal("2 should switch to history and refresh it")
	}

	model, _ = app.Update(tea.KeyMsg{Type: tea.KeyTab})
	app = model.(App)
	if app.activeView != viewSettings {
		t.Fatal("tab should advance to settings")
	}
	model, _ = app.Update(tea.KeyMsg{Type: tea.KeyTab})
	app = model.(App)
	if app.activeView != viewDashboard {
		t.Fatal("tab should wrap to the dashboard")
	}
}

func TestAppRenderHeaderContainsAllTabs(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)
	app.width = 120
	app.height = 40

	header := app.renderHeader()
	for _, name := range viewNames {
		if !strings.Contains(header, name) {
			t.Fatalf("header missing tab %q", name)
		}
	}
}

func TestAppLoadingState(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)
	if output := app.View(); output != "Loading..." {
		t.Fatalf("expected 'Loading...', got %q", output)
	}
}

func TestAppStatusMessage(t *testing.T) {
	tr, _ := newTestTracker(t)
	app := NewApp(tr)
	app.width = 120
	app.height = 40

	model, _ := app.Update(statusMsg{text: "test status"})
	app = model.(App)
	if !strings.Contains(app.renderFooter(), "test status") {
		t.Fatal("footer should contain status message")
	}
}

func TestAppExport(t *testing.T) {
	tests := []struct {
		name   string
		cursor int
		file   string
	}{
		{"json", 0, "tally-export-2025-03-10.json"},
		{"csv", 1, "tally-export-2025-03-10.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(t)
			app := NewApp(tr)
			app.exportDir = t.TempDir()

			model, _ := app.Update(runes("e"))
			app = model.(App)
			if !app.exportPicking {
				t.Fatal("e should open the export picker")
			}
			for range tt.cursor {
				model, _ = app.Update(tea.KeyMsg{Type: tea.KeyDown})
				app = model.(App)
			}

			model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
			app = model.(App)
			done, ok := run(t, cmd).(exportDoneMsg)
			if !ok {
				t.Fatal("expected exportDoneMsg")
			}
			want := filepath.Join(app.exportDir, tt.file)
			if done.path != want {
				t.Fatalf("got %s, want %s", done.path, want)
			}
			if _, err := os.Stat(want); err != nil {
				t.Fatal(err)
			}
		})
	}
}

// ============================================================
// Key bindings
// ============================================================

func TestKeyMapShortHelp(t *testing.T) {
	if len(keys.ShortHelp()) == 0 {
		t.Fatal("short help should have bindings")
	}
}

func TestKeyMapFullHelp(t *testing.T) {
	groups := keys.FullHelp()
	if len(groups) == 0 {
		t.Fatal("full help should have groups")
	}
	for i, g := range groups {
		if len(g) == 0 {
			t.Fatalf("full help group %d is empty", i)
		}
	}
}

// ============================================================
// Styles (smoke test)
// ============================================================

func TestStylesRender(t *testing.T) {
	styles := map[string]func() string{
		"activeTab":    func() string { return activeTabStyle.Render("test") },
		"inactiveTab":  func() string { return inactiveTabStyle.Render("test") },
		"panel":        func() string { return panelStyle.Render("test") },
		"activePanel":  func() string { return activePanelStyle.Render("test") },
		"title":        func() string { return titleStyle.Render("test") },
		"success":      func() string { return successStyle.Render("test") },
		"warning":      func() string { return warningStyle.Render("test") },
		"error":        func() string { return errorStyle.Render("test") },
		"muted":        func() string { return mutedStyle.Render("test") },
		"highlight":    func() string { return highlightStyle.Render("test") },
		"header":       func() string { return headerStyle.Render("test") },
		"footer":       func() string { return footerStyle.Render("test") },
		"selectedItem": func() string { return selectedItemStyle.Render("test") },
		"normalItem":   func() string { return normalItemStyle.Render("test") },
	}
	for name, fn := range styles {
		if fn() == "" {
			t.Fatalf("style %q rendered empty", name)
		}
	}
	if categoryColor(len(categoryPalette)) != categoryColor(0) {
		t.Fatal("palette should wrap")
	}
}
