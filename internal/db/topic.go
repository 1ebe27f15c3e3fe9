package db

import "time"

type Topic struct {
	ID        int64     `gorm:"primaryKey"`
	Title     string    `gorm:"size:100;not null"`
	Prompt    string    `gorm:"size:1000;not null"`
	IsPublic  bool      `gorm:"not null;default:false;index"`
	OwnerID   int64     `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}
