package domain

import (
	"time"
)

// Message is a chat message. Immutable once created; appended to exactly
// one room's history and only ever removed in bulk by the retention cap.
// Author and SentAt serialize as username/timestamp for wire compatibility.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Formatted string    `json:"formatted"`
	Author    string    `json:"username"`
	SentAt    time.Time `json:"timestamp"`
}
