package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/priora/internal/estimator"
	"github.com/fentz26/priora/internal/models"
)

// RenderAnalysis renders an analysis as the result screen.
func RenderAnalysis(a *models.Analysis) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("  %s\n", lipgloss.NewStyle().Bold(true).Render(a.TaskName)))
	b.WriteString(fmt.Sprintf("  Days left: %d   Credits: %d   Weight: %d%%\n\n", a.DaysLeft, a.Credits, a.Weight))

	d := a.Difficulty
	diff := fmt.Sprintf("Difficulty: %d/5 (%s, %.1f%% confidence)", d.Difficulty, d.Method, d.Confidence)
	if d.Label != "" {
		diff = fmt.Sprintf("Difficulty: %d/5 %s (%s, %.1f%% confidence)", d.Difficulty, d.Label, d.Method, d.Confidence)
	}
	b.WriteString("  " + diff + "\n\n")

	s := a.Score
	score := strings.Join([]string{
		fmt.Sprintf("Urgency     %3d", s.Urgency),
		fmt.Sprintf("Impact      %3d", s.Impact),
		fmt.Sprintf("Difficulty  %3d", s.DifficultyScore),
		fmt.Sprintf("Final       %6.2f", s.Final),
	}, "\n")
	b.WriteString(panelStyle.Render(score) + "\n")
	b.WriteString("  Priority: " + priorityStyle(a.Priority).Render(a.Priority) + "\n")

	if a.Estimates != nil && len(a.Estimates.Predictions) > 0 {
		b.WriteString("\n  Estimated time per subtask\n")
		for _, p := range a.Estimates.Predictions {
			method := lipgloss.NewStyle().Foreground(mutedColor).Render(string(p.Method))
			if p.Method == models.MethodWarmStart {
				method = lipgloss.NewStyle().Foreground(cyanColor).Render(string(p.Method))
			}
			b.WriteString(fmt.Sprintf("    %d. %-40s %s  %s\n",
				p.SubtaskNumber, truncate(p.SubtaskText, 40), estimator.FormatMinutes(p.PredictedTime), method))
		}
		b.WriteString(fmt.Sprintf("\n  Total: %s across %d subtasks\n",
			estimator.FormatMinutes(a.Estimates.TotalTime), a.Estimates.TaskCount))
	}

	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
