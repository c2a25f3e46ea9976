package dispatch

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3498db"))
	sentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ecc71"))
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#95a5a6"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e74c3c"))
)

// Table renders the report with one row per participant.
func (r Report) Table() string {
	var rows [][]string
	var styles []lipgloss.Style
	add := func(state string, style lipgloss.Style, outcomes []Outcome) {
		for _, o := range outcomes {
			status := ""
			if o.StatusCode != 0 {
				status = strconv.Itoa(o.StatusCode)
			}
			rows = append(rows, []string{o.Email, o.TaskID, state, status, o.Err})
			styles = append(styles, style)
		}
	}
	add("sent", sentStyle, r.Sent)
	add("skipped", skippedStyle, r.Skipped)
	add("failed", failedStyle, r.Failed)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("EMAIL", "TASK", "STATE", "STATUS", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(styles) {
				return styles[row]
			}
			return lipgloss.NewStyle()
		})
	return fmt.Sprintf("Round %d: %d sent, %d skipped, %d failed\n%s",
		r.Round, len(r.Sent), len(r.Skipped), len(r.Failed), t.String())
}
