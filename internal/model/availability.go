package model

// WorkerAvailability is one weekday of a worker's standing schedule.
// Empty StartTime/EndTime means the whole day.
type WorkerAvailability struct {
	ID          uint `gorm:"primaryKey"`
	WorkerID    uint `gorm:"uniqueIndex:idx_worker_weekday"`
	Weekday     int  `gorm:"uniqueIndex:idx_worker_weekday"` // 0=Sunday
	IsAvailable bool
	StartTime   string
	EndTime     string
}

// Bounded reports whether the record restricts working hours. A record with
// only one bound set is bounded and fails to parse as a range, so it never
// grants the whole day.
func (a WorkerAvailability) Bounded() bool {
	return a.StartTime != "" || a.EndTime != ""
}
