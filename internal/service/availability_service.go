package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cleanops/internal/model"
	"cleanops/internal/repository"
	"cleanops/internal/schedule"
)

// AvailabilityService manages workers' standing weekly schedules.
type AvailabilityService struct {
	availabilityRepo *repository.AvailabilityRepository
}

func NewAvailabilityService(availabilityRepo *repository.AvailabilityRepository) *AvailabilityService {
	return &AvailabilityService{availabilityRepo: availabilityRepo}
}

// SetDay stores one weekday. value is "off", "all" or "HH:MM-HH:MM".
func (s *AvailabilityService) SetDay(ctx context.Context, workerID uint, weekday time.Weekday, value string) (*model.WorkerAvailability, error) {
	record, err := ParseAvailability(workerID, weekday, value)
	if err != nil {
		return nil, err
	}
	if err := s.availabilityRepo.Set(ctx, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *AvailabilityService) Week(ctx context.Context, workerID uint) ([]model.WorkerAvailability, error) {
	return s.availabilityRepo.AvailabilityForWorker(ctx, workerID)
}

// Check runs the availability rules against the stored week.
func (s *AvailabilityService) Check(ctx context.Context, workerID uint, date time.Time, slot schedule.Range) (schedule.Availability, error) {
	records, err := s.availabilityRepo.AvailabilityForWorker(ctx, workerID)
	if err != nil {
		return schedule.Availability{}, err
	}
	return schedule.CheckAvailability(workerID, date, slot, records), nil
}

// ParseAvailability builds a record from the "off" | "all" | "HH:MM-HH:MM" form.
func ParseAvailability(workerID uint, weekday time.Weekday, value string) (model.WorkerAvailability, error) {
	if weekday < time.Sunday || weekday > time.Saturday {
		return model.WorkerAvailability{}, fmt.Errorf("weekday %d out of range 0-6", weekday)
	}
	record := model.WorkerAvailability{WorkerID: workerID, Weekday: int(weekday)}
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "off":
		return record, nil
	case "all", "":
		record.IsAvailable = true
		return record, nil
	default:
		hours, err := schedule.ParseRange(v)
		if err != nil {
			return model.WorkerAvailability{}, err
		}
		record.IsAvailable = true
		record.StartTime = hours.Start.String()
		record.EndTime = hours.End.String()
		return record, nil
	}
}
