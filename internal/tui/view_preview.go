package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"outreach/internal/model"
	"outreach/internal/sendrun"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingBottom(1)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const maxColumnWidth = 28

// contactTable turns preview rows into table columns and rows, keeping the
// sheet's column order. Columns are sized to their content, capped so the
// table fits width when it is known.
func contactTable(rows []model.Row, width int) ([]table.Column, []table.Row) {
	header := model.Header(rows)
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	data := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		cells := make([]string, len(header))
		for i, col := range header {
			cells[i] = r.Text(col)
			widths[i] = max(widths[i], lipgloss.Width(cells[i]))
		}
		data = append(data, cells)
	}

	limit := maxColumnWidth
	if width > 0 && len(header) > 0 {
		limit = min(limit, max(width/len(header)-2, 6))
	}
	cols := make([]table.Column, len(header))
	for i, h := range header {
		cols[i] = table.Column{Title: h, Width: min(widths[i], limit)}
	}
	return cols, data
}

func countersLine(u sendrun.Update) string {
	line := fmt.Sprintf("%s %d   %s %d   %s %d   %s %d",
		mutedStyle.Render("Total"), u.Total,
		mutedStyle.Render("Processed"), u.Processed,
		okStyle.Render("Sent"), u.Sent,
		errorStyle.Render("Failed"), u.Failed)
	if u.Total > 0 {
		line += fmt.Sprintf("   %s %d", mutedStyle.Render("Remaining"), u.Remaining)
	}
	return line
}

func previewFooter(cc bool) string {
	ccNote := "cc off"
	if cc {
		ccNote = "cc on"
	}
	return footerStyle.Render("p: preview emails  s: send  q: quit  (" + ccNote + ")")
}

func confirmFooter() string {
	return footerStyle.Render("enter: confirm  esc: back")
}

func streamFooter() string {
	return footerStyle.Render("↑/↓: scroll  q: cancel")
}

func doneFooter() string {
	return footerStyle.Render("↑/↓: scroll  q: quit")
}
