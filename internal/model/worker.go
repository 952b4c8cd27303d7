package model

import (
	"strings"
	"time"
)

// Worker is a cleaner that tasks are assigned to. TelegramID links the bot account.
type Worker struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"index"`
	FirstName  string
	LastName   string
	Username   string
	Active     bool `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (w Worker) DisplayName() string {
	name := strings.TrimSpace(w.FirstName + " " + w.LastName)
	if name == "" && w.Username != "" {
		return "@" + w.Username
	}
	return name
}
