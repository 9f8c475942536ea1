package models

import "time"

// User is a registered account. Anonymous visitors have no User and are
// gated toward sign-in before paid features.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
