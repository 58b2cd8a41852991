package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nvandessel/relaysim/internal/circuit"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FFFF"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Width(10)
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00"))
	faultStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	boxStyle   = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)
)

// renderReport formats the resolved circuit for a terminal.
func renderReport(name string, c *circuit.Circuit) string {
	state := c.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Circuit: "+name) + "\n")

	status := okStyle.Render(state.Status())
	if len(state.Faulted) > 0 {
		status = faultStyle.Render(state.Status())
	}
	b.WriteString(labelStyle.Render("Status") + status + "\n")

	solver := fmt.Sprintf("converged in %d round(s)", state.Rounds)
	if !state.Converged {
		solver = warnStyle.Render(fmt.Sprintf("stopped at iteration cap after %d rounds (oscillating)", state.Rounds))
	}
	b.WriteString(labelStyle.Render("Solver") + solver + "\n")

	var rows []string
	for _, p := range c.Placements() {
		rows = append(rows, fmt.Sprintf("%-8s %-10s %s", p.Prefix, p.Kind, deviceCondition(c, state, p)))
	}
	if len(rows) > 0 {
		b.WriteString(boxStyle.Render(strings.Join(rows, "\n")) + "\n")
	}
	return b.String()
}

func deviceCondition(c *circuit.Circuit, state circuit.State, p circuit.Placement) string {
	switch p.Kind {
	case circuit.KindPower:
		if c.IsPowered(p.Prefix) {
			return okStyle.Render("on")
		}
		return "off"
	case circuit.KindMotor:
		return state.Motors[p.Prefix].String()
	default:
		if state.Energized[p.Prefix] {
			return okStyle.Render("energized")
		}
		return "de-energized"
	}
}
