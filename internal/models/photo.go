package models

import "time"

type Photo struct {
	ID          string
	UserID      string
	Filename    string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
	Width       int
	Height      int
	Description string
	TakenAt     *time.Time
	CreatedAt   time.Time
}
