package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Entry is a user-authored journal or note record.
// MoodRating is 1-5, or 0 when the user did not rate the entry.
type Entry struct {
	ID         string
	UserID     string
	Title      string
	Content    string
	MoodRating int
	Tags       []string // stored as a JSON array
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Message is one turn in an entry's chat thread. Immutable once created.
type Message struct {
	ID        string
	EntryID   string
	UserID    string
	Role      string // "user" or "assistant"
	Content   string
	CreatedAt time.Time
}

// Insight is an AI-generated reflection persisted alongside the chat thread.
type Insight struct {
	ID               string
	EntryID          string
	InsightText      string
	FollowUpQuestion string
	Confidence       float64
	PremiumGenerated bool
	CreatedAt        time.Time
}

// Preference holds a user's companion settings.
type Preference struct {
	UserID       string
	AIStyle      string // "coach" or "reflector"
	Subscription string // "free" or "premium"
	UpdatedAt    time.Time
}

// Job is a queued background task, used for async insight generation.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
