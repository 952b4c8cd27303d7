package schedule

import (
	"time"

	"cleanops/internal/model"
)

// Overlaps reports whether two half-open ranges intersect. Touching ranges do not.
func Overlaps(a, b Range) bool {
	return a.Start < b.End && b.Start < a.End
}

// TaskRange parses a task's start/end times. An end at or before the start
// is an error.
func TaskRange(task model.Task) (Range, error) {
	return ParseRange(task.StartTime + "-" + task.EndTime)
}

// DetectOverlaps returns the tasks of workerID on date whose time range
// intersects candidate. excludeTaskID is skipped so a moved task never
// collides with itself. Tasks with unparseable or inverted times are ignored.
func DetectOverlaps(workerID uint, date time.Time, candidate Range, sameDayTasks []model.Task, excludeTaskID uint) []model.Task {
	day := model.DateOf(date)
	var conflicts []model.Task
	for _, task := range sameDayTasks {
		if task.ID == excludeTaskID || !task.AssignedTo(workerID) {
			continue
		}
		if !model.DateOf(task.Date).Equal(day) {
			continue
		}
		r, err := TaskRange(task)
		if err != nil {
			continue
		}
		if Overlaps(candidate, r) {
			conflicts = append(conflicts, task)
		}
	}
	return conflicts
}
