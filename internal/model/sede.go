package model

import "time"

// Sede is a site/branch; every task and rule belongs to exactly one.
type Sede struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
