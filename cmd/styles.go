package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/taskdeck/internal/tasks"
)

var (
	colorRed    = lipgloss.Color("#E06C75")
	colorGreen  = lipgloss.Color("#98C379")
	colorYellow = lipgloss.Color("#E5C07B")
	colorBlue   = lipgloss.Color("#61AFEF")
	colorMuted  = lipgloss.Color("#636B78")
	colorBorder = lipgloss.Color("#3F4451")
)

var (
	headingStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	headerCell   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell         = lipgloss.NewStyle().Padding(0, 1)
)

var statusColors = map[tasks.Status]lipgloss.Color{
	tasks.StatusPending:    colorMuted,
	tasks.StatusInProgress: colorBlue,
	tasks.StatusBlocked:    colorRed,
	tasks.StatusCompleted:  colorGreen,
}

var priorityColors = map[tasks.Priority]lipgloss.Color{
	tasks.PriorityHigh:     colorYellow,
	tasks.PriorityCritical: colorRed,
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...)
}

// taskTable renders tasks one per row.
func taskTable(list []tasks.Task) string {
	t := newTable("ID", "TITLE", "STATUS", "PRIORITY", "ASSIGNEE", "DEADLINE", "TAGS")
	for _, task := range list {
		t.Row(
			strconv.FormatInt(task.ID, 10),
			task.Title,
			string(task.Status),
			string(task.Priority),
			task.AssignedTo.String(),
			formatDeadline(task.Deadline),
			strings.Join(task.TagNames(), ", "),
		)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerCell
		}
		if row < 0 || row >= len(list) {
			return cell
		}
		task := list[row]
		switch col {
		case 2:
			return cell.Foreground(statusColors[task.Status])
		case 3:
			if c, ok := priorityColors[task.Priority]; ok {
				return cell.Foreground(c)
			}
		}
		return cell
	})
	return t.String()
}

func formatDeadline(d *time.Time) string {
	if d == nil {
		return "-"
	}
	s := d.Local().Format("2006-01-02 15:04")
	if d.Before(time.Now()) {
		return warnStyle.Render(s)
	}
	return s
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s\n", labelStyle.Render(label), value)
}
