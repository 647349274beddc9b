package storage

import (
	"time"

	"github.com/kalambet/ragdesk/internal/errs"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errs.ErrNotFound

// Message roles as stored.
const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Message is one entry of a chat session's ordered log.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type VectorstoreMetadata struct {
	UserID          string
	VectorstorePath string
	UpdatedAt       time.Time
}

// Job states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is a queued unit of background work. Result holds the output of a
// completed job; LastError the message of the latest failed attempt.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	Result      string
}
