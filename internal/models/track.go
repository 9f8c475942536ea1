package models

import "time"

// GeneratedTrack is a persisted generated music file plus its metadata.
// Immutable once created; removed by explicit user delete or library eviction.
type GeneratedTrack struct {
	ID              string    `json:"id"`
	UserID          int64     `json:"user_id"`
	Prompt          string    `json:"prompt"`
	StoragePath     string    `json:"storage_path"`
	MimeType        string    `json:"mime_type"`
	DurationSeconds int       `json:"duration_seconds"`
	FreeTier        bool      `json:"free_tier"`
	CostCents       int       `json:"cost_cents"`
	CreatedAt       time.Time `json:"created_at"`
}
