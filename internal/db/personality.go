package db

import "time"

type Personality struct {
	ID             int64     `gorm:"primaryKey"`
	Title          string    `gorm:"size:100;uniqueIndex;not null"`
	Description    string    `gorm:"size:500;not null"`
	TemplatePrompt string    `gorm:"size:2000;not null"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}
