package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/mcdm"
)

// Form field indexes.
const (
	fieldName = iota
	fieldDescription
	fieldDeadline
	fieldCredits
	fieldWeight
	fieldDifficulty
	fieldSubtasks
	fieldUser
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Task name",
	"Description",
	"Deadline (YYYY-MM-DD)",
	"Credits (1-4)",
	"Weight % (0-100)",
	"Difficulty (1-5)",
	"Subtasks (; separated)",
	"User ID",
}

var fieldPlaceholders = [fieldCount]string{
	"Database coursework",
	"What the assignment asks for",
	"2025-12-01",
	"3",
	"30",
	"3",
	"Draw ER diagram; Normalize; Write queries",
	"optional, needed for estimates",
}

// Defaults pre-fill the form.
type Defaults struct {
	UserID     string
	Difficulty int
}

// FormModel collects the inputs of one analysis.
type FormModel struct {
	inputs []textinput.Model
	focus  int
	err    error
}

// NewFormModel creates an analysis form.
func NewFormModel(d Defaults) *FormModel {
	inputs := make([]textinput.Model, fieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.Placeholder = fieldPlaceholders[i]
		ti.CharLimit = 256
		ti.Width = 60
		inputs[i] = ti
	}
	inputs[fieldCredits].CharLimit = 1
	inputs[fieldWeight].CharLimit = 4
	inputs[fieldDifficulty].CharLimit = 1
	inputs[fieldDescription].CharLimit = 2000
	inputs[fieldSubtasks].CharLimit = 2000

	if d.UserID != "" {
		inputs[fieldUser].SetValue(d.UserID)
	}
	if d.Difficulty > 0 {
		inputs[fieldDifficulty].SetValue(strconv.Itoa(d.Difficulty))
	}
	inputs[fieldName].Focus()

	return &FormModel{inputs: inputs}
}

// Init starts the cursor blink.
func (m *FormModel) Init() tea.Cmd {
	return textinput.Blink
}

// Focused returns the index of the focused field.
func (m *FormModel) Focused() int {
	return m.focus
}

// SetValue sets the text of field i.
func (m *FormModel) SetValue(i int, v string) {
	m.inputs[i].SetValue(v)
}

// SetError shows err under the form.
func (m *FormModel) SetError(err error) {
	m.err = err
}

func (m *FormModel) move(delta int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	return m.inputs[m.focus].Focus()
}

// Update moves between fields and forwards typing to the focused input.
func (m *FormModel) Update(msg tea.Msg) (*FormModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			return m, m.move(1)
		case "shift+tab", "up":
			return m, m.move(-1)
		case "enter":
			if m.focus < fieldCount-1 {
				return m, m.move(1)
			}
			return m, m.submit()
		case "ctrl+s":
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

type submitMsg struct {
	input engine.AnalyzeInput
}

func (m *FormModel) submit() tea.Cmd {
	in, err := m.Input()
	if err != nil {
		m.err = err
		return nil
	}
	m.err = nil
	return func() tea.Msg { return submitMsg{input: in} }
}

// Input parses and validates the form into an analysis request.
func (m *FormModel) Input() (engine.AnalyzeInput, error) {
	val := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }

	in := engine.AnalyzeInput{
		TaskName:    val(fieldName),
		Description: val(fieldDescription),
		Deadline:    val(fieldDeadline),
		UserID:      val(fieldUser),
	}
	if in.TaskName == "" {
		return in, fmt.Errorf("task name is required")
	}

	if _, err := mcdm.ParseDeadline(in.Deadline); err != nil {
		return in, fmt.Errorf("invalid date format, use YYYY-MM-DD (e.g. 2025-10-25)")
	}

	credits, err := strconv.Atoi(strings.TrimSuffix(val(fieldCredits), "%"))
	if err != nil {
		return in, fmt.Errorf("credits must be a whole number (e.g. 3 or 4)")
	}
	if credits < 1 || credits > 4 {
		return in, fmt.Errorf("credits must be between 1 and 4")
	}
	in.Credits = credits

	weight, err := strconv.Atoi(strings.TrimSuffix(val(fieldWeight), "%"))
	if err != nil {
		return in, fmt.Errorf("weight must be a whole number")
	}
	if weight < 0 || weight > 100 {
		return in, fmt.Errorf("weight must be between 0 and 100")
	}
	in.Weight = weight

	difficulty, err := strconv.Atoi(val(fieldDifficulty))
	if err != nil || difficulty < 1 || difficulty > 5 {
		return in, fmt.Errorf("difficulty must be between 1 and 5")
	}
	in.SuggestedDifficulty = difficulty

	for _, s := range strings.Split(val(fieldSubtasks), ";") {
		if s = strings.TrimSpace(s); s != "" {
			in.Subtasks = append(in.Subtasks, s)
		}
	}
	return in, nil
}

// View renders the form.
func (m *FormModel) View() string {
	var b strings.Builder
	for i, in := range m.inputs {
		label := labelStyle.Render(fieldLabels[i])
		if i == m.focus {
			label = focusedLabelStyle.Render(fieldLabels[i])
		}
		b.WriteString(label + " " + in.View() + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}
	return b.String()
}
