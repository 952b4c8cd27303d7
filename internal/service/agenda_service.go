package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"cleanops/internal/model"
	"cleanops/internal/repository"
	"cleanops/internal/schedule"
)

// AgendaService builds human-readable day plans for notifications.
type AgendaService struct {
	taskRepo   *repository.TaskRepository
	sedeRepo   *repository.SedeRepository
	workerRepo *repository.WorkerRepository
}

func NewAgendaService(taskRepo *repository.TaskRepository, sedeRepo *repository.SedeRepository, workerRepo *repository.WorkerRepository) *AgendaService {
	return &AgendaService{taskRepo: taskRepo, sedeRepo: sedeRepo, workerRepo: workerRepo}
}

// WorkerAgenda lists the worker's tasks on date across every sede.
func (s *AgendaService) WorkerAgenda(ctx context.Context, worker model.Worker, date time.Time) (string, error) {
	day := model.DateOf(date)
	tasks, err := s.taskRepo.ListForWorker(ctx, worker.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return "", err
	}

	sedes, err := s.sedeRepo.ListAll(ctx)
	if err != nil {
		return "", err
	}
	sedeNames := make(map[uint]string, len(sedes))
	for _, sede := range sedes {
		sedeNames[sede.ID] = sede.Name
	}

	sortByStart(tasks)
	overlapping := overlappingIDs(tasks)

	var builder strings.Builder
	builder.WriteString("🧹 <b>Your day</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", day.Format("Mon 02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("— nothing scheduled\n")
		return strings.TrimSpace(builder.String()), nil
	}
	for _, task := range tasks {
		builder.WriteString(formatAgendaTask(task, overlapping[task.ID]))
		if name := strings.TrimSpace(sedeNames[task.SedeID]); name != "" {
			builder.WriteString(fmt.Sprintf("   📍 %s\n", html.EscapeString(name)))
		}
	}
	return strings.TrimSpace(builder.String()), nil
}

// SedeAgenda lists the sede's tasks on date grouped by worker, unassigned last.
func (s *AgendaService) SedeAgenda(ctx context.Context, sedeID uint, date time.Time) (string, error) {
	day := model.DateOf(date)
	tasks, err := s.taskRepo.ListByDate(ctx, sedeID, day)
	if err != nil {
		return "", err
	}
	sede, err := s.sedeRepo.GetByID(ctx, sedeID)
	if err != nil {
		return "", err
	}
	workers, err := s.workerRepo.ListActive(ctx)
	if err != nil {
		return "", err
	}
	workerNames := make(map[uint]string, len(workers))
	for _, w := range workers {
		workerNames[w.ID] = w.DisplayName()
	}

	groups := make(map[uint][]model.Task)
	var unassigned []model.Task
	var order []uint
	for _, task := range tasks {
		if task.WorkerID == nil {
			unassigned = append(unassigned, task)
			continue
		}
		id := *task.WorkerID
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], task)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", html.EscapeString(sede.Name)))
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", day.Format("Mon 02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("— no tasks for this day\n")
		return strings.TrimSpace(builder.String()), nil
	}

	for _, workerID := range order {
		section := groups[workerID]
		sortByStart(section)
		overlapping := overlappingIDs(section)

		name := workerNames[workerID]
		if name == "" {
			name = fmt.Sprintf("worker #%d", workerID)
		}
		builder.WriteString(fmt.Sprintf("👤 <b>%s</b>\n", html.EscapeString(name)))
		for _, task := range section {
			builder.WriteString(formatAgendaTask(task, overlapping[task.ID]))
		}
		builder.WriteByte('\n')
	}

	if len(unassigned) > 0 {
		sortByStart(unassigned)
		builder.WriteString("❔ <b>Unassigned</b>\n")
		for _, task := range unassigned {
			builder.WriteString(formatAgendaTask(task, false))
		}
	}
	return strings.TrimSpace(builder.String()), nil
}

func formatAgendaTask(task model.Task, overlaps bool) string {
	var sb strings.Builder

	icon := "🟢"
	switch task.Status {
	case model.TaskStatusInProgress:
		icon = "🔄"
	case model.TaskStatusCompleted:
		icon = "✅"
	}
	if overlaps {
		icon = "⚠️"
	}

	sb.WriteString(fmt.Sprintf("%s <code>%s-%s</code> #%d %s", icon, task.StartTime, task.EndTime, task.ID,
		html.EscapeString(strings.TrimSpace(task.PropertyRef))))
	if service := strings.TrimSpace(task.ServiceType); service != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(service)))
	}
	if task.RuleID != nil {
		sb.WriteString(" ♻️")
	}
	if checklist := strings.TrimSpace(task.Checklist); checklist != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(checklist)))
	}
	sb.WriteByte('\n')
	return sb.String()
}

// overlappingIDs marks tasks of a single worker-day that collide with a sibling.
func overlappingIDs(tasks []model.Task) map[uint]bool {
	marked := make(map[uint]bool)
	for i, task := range tasks {
		if task.WorkerID == nil {
			continue
		}
		slot, err := schedule.TaskRange(task)
		if err != nil {
			continue
		}
		for _, other := range schedule.DetectOverlaps(*task.WorkerID, task.Date, slot, tasks[i+1:], task.ID) {
			marked[task.ID] = true
			marked[other.ID] = true
		}
	}
	return marked
}

func sortByStart(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].Date.Equal(tasks[j].Date) {
			return tasks[i].Date.Before(tasks[j].Date)
		}
		if tasks[i].StartTime != tasks[j].StartTime {
			return tasks[i].StartTime < tasks[j].StartTime
		}
		return tasks[i].ID < tasks[j].ID
	})
}
