package schedule

import (
	"fmt"
	"time"

	"cleanops/internal/model"
)

const reasonNotScheduled = "not scheduled to work this day"

// Availability is the verdict of CheckAvailability. Reason is set only on rejection.
type Availability struct {
	Available bool
	Reason    string
}

// CheckAvailability decides whether workerID can take candidate on date,
// based on the weekday record in records.
func CheckAvailability(workerID uint, date time.Time, candidate Range, records []model.WorkerAvailability) Availability {
	weekday := int(date.Weekday())

	var record *model.WorkerAvailability
	for i := range records {
		if records[i].WorkerID == workerID && records[i].Weekday == weekday {
			record = &records[i]
			break
		}
	}
	if record == nil || !record.IsAvailable {
		return Availability{Reason: reasonNotScheduled}
	}
	if !record.Bounded() {
		return Availability{Available: true}
	}

	hours, err := ParseRange(record.StartTime + "-" + record.EndTime)
	if err != nil {
		return Availability{Reason: fmt.Sprintf("working hours %s-%s are malformed", record.StartTime, record.EndTime)}
	}
	if !hours.Contains(candidate) {
		return Availability{Reason: fmt.Sprintf("requested %s is outside working hours %s", candidate, hours)}
	}
	return Availability{Available: true}
}
