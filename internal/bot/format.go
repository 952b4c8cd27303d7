package bot

import (
	"fmt"
	"strings"
	"time"

	"cleanops/internal/model"
)

func formatTask(task model.Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> <code>%s-%s</code> %s",
		statusIcon(task.Status), task.ID, task.StartTime, task.EndTime, escape(shortTitle(task.PropertyRef))))
	if task.ServiceType != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(task.ServiceType)))
	}
	if task.WorkerID != nil {
		sb.WriteString(fmt.Sprintf(" 👤 %d", *task.WorkerID))
	} else {
		sb.WriteString(" 👤 —")
	}
	if task.CostCents > 0 {
		sb.WriteString(" 💶 " + formatCost(task.CostCents))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func formatRule(rule model.RecurrenceRule) string {
	var sb strings.Builder
	state := "▶️"
	if !rule.IsActive {
		state = "⏸"
	}
	sb.WriteString(fmt.Sprintf("%s <b>#%d</b> %s <code>%s-%s</code>\n",
		state, rule.ID, escape(shortTitle(rule.PropertyRef)), rule.StartTime, rule.EndTime))
	sb.WriteString("   " + describeCadence(rule))
	if rule.IsActive {
		sb.WriteString(", next " + rule.NextExecution.Format(model.DateLayout))
	}
	if rule.EndDate != nil {
		sb.WriteString(", until " + rule.EndDate.Format(model.DateLayout))
	}
	if rule.WorkerID != nil {
		sb.WriteString(fmt.Sprintf(", worker %d", *rule.WorkerID))
	}
	sb.WriteString("\n")
	return sb.String()
}

func describeCadence(rule model.RecurrenceRule) string {
	every := rule.Interval
	if every < 1 {
		every = 1
	}
	var unit string
	switch rule.Frequency {
	case "daily":
		unit = "day"
	case "weekly":
		unit = "week"
	case "monthly":
		unit = "month"
	default:
		return escape(rule.Frequency)
	}
	text := "every " + unit
	if every > 1 {
		text = fmt.Sprintf("every %d %ss", every, unit)
	}
	switch rule.Frequency {
	case "weekly":
		if days, err := rule.Weekdays(); err == nil && len(days) > 0 {
			names := make([]string, len(days))
			for i, d := range days {
				names[i] = time.Weekday(d).String()[:3]
			}
			text += " (" + strings.Join(names, ", ") + ")"
		}
	case "monthly":
		text += fmt.Sprintf(" on day %d", rule.DayOfMonth)
	}
	return text
}

func formatWeek(workerID uint, records []model.WorkerAvailability) string {
	byDay := make(map[int]model.WorkerAvailability, len(records))
	for _, r := range records {
		byDay[r.Weekday] = r
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🗓 <b>Availability of worker %d</b>\n", workerID))
	// Monday first.
	for i := 1; i <= 7; i++ {
		day := time.Weekday(i % 7)
		record, ok := byDay[int(day)]
		var value string
		switch {
		case !ok || !record.IsAvailable:
			value = "off"
		case record.Bounded():
			value = fmt.Sprintf("<code>%s-%s</code>", record.StartTime, record.EndTime)
		default:
			value = "all day"
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", day.String()[:3], value))
	}
	return strings.TrimSpace(sb.String())
}

func statusIcon(status model.TaskStatus) string {
	switch status {
	case model.TaskStatusInProgress:
		return "🔄"
	case model.TaskStatusCompleted:
		return "✅"
	default:
		return "🟢"
	}
}

// nextStatus is the status a task moves to from the list buttons.
func nextStatus(status model.TaskStatus) (model.TaskStatus, bool) {
	switch status {
	case model.TaskStatusPending, "":
		return model.TaskStatusInProgress, true
	case model.TaskStatusInProgress:
		return model.TaskStatusCompleted, true
	default:
		return "", false
	}
}

func workerName(w model.Worker) string {
	if name := w.DisplayName(); name != "" {
		return name
	}
	return fmt.Sprintf("worker %d", w.ID)
}

func shortTitle(title string) string {
	title = strings.TrimSpace(title)
	runes := []rune(title)
	if len(runes) <= 40 {
		return title
	}
	return string(runes[:37]) + "..."
}
