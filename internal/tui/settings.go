package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/tally/internal/period"
	"github.com/sadopc/tally/internal/store"
	"github.com/sadopc/tally/internal/tracker"
)

type settingsModel struct {
	tracker *tracker.Tracker
	width   int
	height  int

	weekStart  period.Weekday
	categories []store.Category
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	weekStartVal *string
	targetVals   *[]string
}

func newSettingsModel(t *tracker.Tracker) settingsModel {
	ws := ""
	targets := []string{}
	return settingsModel{
		tracker:      t,
		weekStartVal: &ws,
		targetVals:   &targets,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		return settingsDataMsg{
			weekStart:  s.tracker.WeekStart(bg()),
			categories: s.tracker.Categories(bg()),
		}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.weekStart = msg.weekStart
		s.categories = msg.categories
		return s, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Enter) {
			return s.showForm()
		}
	}
	return s, nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.weekStartVal = string(s.weekStart)
	*s.targetVals = make([]string, len(s.categories))

	targetInputs := make([]huh.Field, 0, len(s.categories))
	for i, c := range s.categories {
		(*s.targetVals)[i] = strconv.Itoa(c.Target)
		targetInputs = append(targetInputs,
			huh.NewInput().
				Title(c.Name+" weekly target").
				Value(&(*s.targetVals)[i]).
				Validate(validateTarget))
	}

	groups := []*huh.Group{
		huh.NewGroup(
			huh.NewSelect[string]().Title("Week starts on").
				Options(
					huh.NewOption("Sunday", string(period.Sunday)),
					huh.NewOption("Monday", string(period.Monday)),
				).Value(s.weekStartVal),
		).Title("Period"),
	}
	if len(targetInputs) > 0 {
		groups = append(groups, huh.NewGroup(targetInputs...).Title("Targets"))
	}

	s.form = huh.NewForm(groups...).WithShowHelp(true).WithShowErrors(true)
	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		return s, s.save()
	}

	return s, cmd
}

func (s settingsModel) save() tea.Cmd {
	w, cats := *s.weekStartVal, s.formCategories()
	return func() tea.Msg {
		if err := s.apply(w, cats); err != nil {
			return errStatus("Settings error: %v", err)
		}
		return settingsSavedMsg{}
	}
}

// formCategories merges edited targets into the category list.
func (s settingsModel) formCategories() []store.Category {
	cats := make([]store.Category, len(s.categories))
	copy(cats, s.categories)
	for i := range cats {
		if i < len(*s.targetVals) {
			if n, err := strconv.Atoi(strings.TrimSpace((*s.targetVals)[i])); err == nil {
				cats[i].Target = n
			}
		}
	}
	return cats
}

func (s settingsModel) apply(weekStart string, cats []store.Category) error {
	w, err := period.ParseWeekday(weekStart)
	if err != nil {
		return err
	}
	if err := s.tracker.SetCategories(bg(), cats); err != nil {
		return err
	}
	if w != s.weekStart {
		return s.tracker.SetWeekStart(bg(), w)
	}
	return nil
}

func validateTarget(v string) error {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return errors.New("must be a whole number")
	}
	if n < 0 {
		return errors.New("must not be negative")
	}
	return nil
}

func (s settingsModel) view() string {
	w := s.width - 4
	title := titleStyle.Render("Settings")

	if s.formActive && s.form != nil {
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	label := lipgloss.NewStyle().Width(24)
	rows := []string{title, ""}
	rows = append(rows, fmt.Sprintf("  %s %s", label.Render("Week starts on"), highlightStyle.Render(string(s.weekStart))))
	rows = append(rows, fmt.Sprintf("  %s %s", label.Render("Device"), mutedStyle.Render(s.tracker.DeviceID())))
	rows = append(rows, "")
	for i, c := range s.categories {
		dot := lipgloss.NewStyle().Foreground(categoryColor(i)).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %s %s", dot, label.Render(c.Name), highlightStyle.Render(fmt.Sprintf("%d / week", c.Target))))
	}
	rows = append(rows, "")
	rows = append(rows, mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
