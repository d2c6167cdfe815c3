package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one handled inbound message and what became of it.
type Run struct {
	ID        string
	CreatedAt time.Time
	UserID    string
	ChatID    string
	Message   string
	Reply     string
	Outcome   string // "answered", "exhausted", "failed"
	Rounds    int
	Error     string
}
