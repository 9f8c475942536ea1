package models

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a personality's conversation log. Messages are
// immutable after creation except for the bookmark flag.
type Message struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	PersonalityID string    `json:"personality_id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
	IsBookmarked  bool      `json:"is_bookmarked"`
	CreatedAt     time.Time `json:"created_at"`
}
