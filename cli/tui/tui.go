// Package tui provides read-only Bubble Tea views of a session report.
//
// Views are opt-in (--tui) and show the same payload as the json, yaml
// and table renderings.
package tui

import (
	"fmt"
	"slices"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/growler/runtime"
)

// Supported view types.
const (
	ViewStatsReport   = "stats_report"
	ViewInspectReport = "inspect_report"
)

var views = map[string]func(*runtime.SessionReport) string{
	ViewStatsReport:   renderStats,
	ViewInspectReport: renderInspect,
}

var quitKey = key.NewBinding(
	key.WithKeys("q", "esc", "ctrl+c"),
	key.WithHelp("q", "quit"),
)

// Run starts the interactive view for viewType over data, which must be
// a *runtime.SessionReport.
func Run(viewType string, data any) error {
	m, err := newModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

// Render returns the view for viewType as a string, without starting a
// program.
func Render(viewType string, data any) (string, error) {
	m, err := newModel(viewType, data)
	if err != nil {
		return "", err
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.View()), nil
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns the view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStatsReport, ViewInspectReport}
}

// model is a static, quit-only Bubble Tea model around one report.
type model struct {
	body     string
	quitting bool
}

func newModel(viewType string, data any) (model, error) {
	view, ok := views[viewType]
	if !ok {
		return model{}, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	report, ok := data.(*runtime.SessionReport)
	if !ok || report == nil {
		return model{}, fmt.Errorf("%s expects a session report, got %T", viewType, data)
	}
	return model{body: view(report)}, nil
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, quitKey) {
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	help := quitKey.Help()
	return m.body + "\n" + helpStyle.Render(fmt.Sprintf("%s: %s", help.Key, help.Desc))
}
