package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"relay-chat/internal/domain"
)

// Counter for generating unique IDs
var idCounter atomic.Int64

// NextID generates a unique ID for test fixtures
func NextID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}

// MessageOptions allows customizing message fixture creation
type MessageOptions struct {
	ID        string
	Text      string
	Formatted string
	Author    string
	SentAt    time.Time
}

// NewTestMessage creates a test message with sensible defaults.
// Pass options to override specific fields.
func NewTestMessage(opts ...func(*MessageOptions)) *domain.Message {
	o := &MessageOptions{
		ID:     NextID("msg"),
		Text:   "hello world",
		Author: "testuser",
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.Formatted == "" {
		o.Formatted = o.Text
	}
	if o.SentAt.IsZero() {
		o.SentAt = time.Now()
	}

	return &domain.Message{
		ID:        o.ID,
		Text:      o.Text,
		Formatted: o.Formatted,
		Author:    o.Author,
		SentAt:    o.SentAt,
	}
}

// WithText sets the message text (formatted follows unless overridden)
func WithText(text string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Text = text
	}
}

// WithAuthor sets the message author
func WithAuthor(author string) func(*MessageOptions) {
	return func(o *MessageOptions) {
		o.Author = author
	}
}
