// Package tui provides the interactive analysis form for priora.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/models"
)

// Analyzer runs one analysis, locally or against the daemon.
type Analyzer interface {
	Analyze(ctx context.Context, in engine.AnalyzeInput) (*models.Analysis, error)
}

const (
	modeForm    = "form"
	modeLoading = "loading"
	modeResult  = "result"
)

// AnalyzeTimeout bounds one analysis request.
const AnalyzeTimeout = 30 * time.Second

// App is the main TUI application model.
type App struct {
	analyzer Analyzer
	form     *FormModel
	spinner  spinner.Model
	mode     string
	result   *models.Analysis
	width    int
	height   int
}

// New creates a new TUI application.
func New(analyzer Analyzer, d Defaults) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return &App{
		analyzer: analyzer,
		form:     NewFormModel(d),
		spinner:  sp,
		mode:     modeForm,
	}
}

// Run starts the TUI application and returns the last analysis, if any.
func (a *App) Run() (*models.Analysis, error) {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return a.result, err
}

// Result returns the last successful analysis.
func (a *App) Result() *models.Analysis {
	return a.result
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return a.form.Init()
}

type analysisDoneMsg struct {
	analysis *models.Analysis
}

type errMsg struct{ err error }

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "esc":
			if a.mode == modeResult {
				a.mode = modeForm
				return a, nil
			}
			if a.mode == modeForm {
				return a, tea.Quit
			}
		case "q":
			if a.mode == modeResult {
				return a, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case submitMsg:
		a.mode = modeLoading
		return a, tea.Batch(a.spinner.Tick, a.analyze(msg.input))

	case analysisDoneMsg:
		a.result = msg.analysis
		a.mode = modeResult
		return a, nil

	case errMsg:
		a.mode = modeForm
		a.form.SetError(msg.err)
		return a, nil

	case spinner.TickMsg:
		if a.mode != modeLoading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	if a.mode != modeForm {
		return a, nil
	}
	var cmd tea.Cmd
	a.form, cmd = a.form.Update(msg)
	return a, cmd
}

func (a *App) analyze(in engine.AnalyzeInput) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), AnalyzeTimeout)
		defer cancel()
		res, err := a.analyzer.Analyze(ctx, in)
		if err != nil {
			return errMsg{err}
		}
		return analysisDoneMsg{res}
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("priora  task priority analysis") + "\n")
	width := a.width
	if width <= 0 {
		width = 60
	}
	b.WriteString(strings.Repeat("─", width) + "\n\n")

	var status string
	switch a.mode {
	case modeForm:
		b.WriteString(a.form.View())
		status = " Tab/↑↓:move | Enter:next | Ctrl+S:analyze | Esc:quit"
	case modeLoading:
		b.WriteString("  " + a.spinner.View() + " Analyzing...\n")
		status = " Ctrl+C:quit"
	case modeResult:
		b.WriteString(RenderAnalysis(a.result))
		status = " Esc:edit | q:quit"
	}

	b.WriteString("\n" + helpStyle.Render("Difficulty is resolved by the classifier when it is confident.") + "\n")
	b.WriteString(statusBarStyle.Width(width).Render(status))
	return b.String()
}
