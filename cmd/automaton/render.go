package main

import (
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/automaton/internal/ledger"
)

// theme keeps all CLI colors in one place.
type theme struct {
	StatusOK      lipgloss.Style
	StatusRunning lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusAborted lipgloss.Style

	Border lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
}

func newTheme() theme {
	return theme{
		StatusOK:      lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		StatusAborted: lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),

		Border: lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD")),
		Header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
}

func (t theme) status(s ledger.Status) lipgloss.Style {
	switch s {
	case ledger.StatusSucceeded:
		return t.StatusOK
	case ledger.StatusRunning:
		return t.StatusRunning
	case ledger.StatusFailed:
		return t.StatusFailed
	default:
		return t.StatusAborted
	}
}

// renderTable lays out rows under headers. styleCell may override the cell
// style for a data cell; it receives the row and column index.
func (t theme) renderTable(headers []string, rows [][]string, styleCell func(row, col int) *lipgloss.Style) string {
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(t.Border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return t.Header
			}
			if styleCell != nil {
				if s := styleCell(row, col); s != nil {
					return s.Padding(0, 1)
				}
			}
			return t.Cell
		})
	return tbl.Render()
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func formatAge(ts time.Time, now time.Time) string {
	d := now.Sub(ts).Round(time.Second)
	switch {
	case d < time.Minute:
		return d.String()
	case d < time.Hour:
		return d.Round(time.Minute).String()
	default:
		return d.Round(time.Hour).String()
	}
}
