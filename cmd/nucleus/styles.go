package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"nucleus/internal/scenario"
)

var (
	Success = lipgloss.Color("#8BC34A")
	Failure = lipgloss.Color("#E85149")
	Accent  = lipgloss.Color("#58A6FF")
	Muted   = lipgloss.Color("#8B949E")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(Success)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(Failure)
	mutedStyle  = lipgloss.NewStyle().Foreground(Muted)
)

// renderResults renders the per-scenario outcome lines and a summary.
func renderResults(suite string, rs []scenario.Result) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("suite " + suite))
	sb.WriteString("\n")

	passed := 0
	for _, r := range rs {
		status := failStyle.Render("FAIL")
		if r.Passed {
			status = passStyle.Render("PASS")
			passed++
		}
		sb.WriteString(fmt.Sprintf("  %s  %-36s %s\n", status, r.Name,
			mutedStyle.Render(fmt.Sprintf("%dms", r.DurationMs))))
		if r.Err != "" {
			sb.WriteString(mutedStyle.Render("        " + r.Err))
			sb.WriteString("\n")
		}
	}

	summary := fmt.Sprintf("%d/%d passed", passed, len(rs))
	if passed == len(rs) {
		sb.WriteString(passStyle.Render(summary))
	} else {
		sb.WriteString(failStyle.Render(summary))
	}
	sb.WriteString("\n")
	return sb.String()
}

// renderTable renders rows under a styled header row, columns padded to
// the widest cell.
func renderTable(header []string, rows [][]string) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var sb strings.Builder
	for i, h := range header {
		sb.WriteString(headerStyle.Render(pad(h, widths[i])))
		sb.WriteString("  ")
	}
	sb.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			sb.WriteString(pad(cell, widths[i]))
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
