package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": dependency-free JSON Lines backend
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one operator action against the bot: a job
// created, a post edited, an admin granted. Keep it compact and
// schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actorId"`
	ActorUsername string    `json:"actorUsername,omitempty"`
	ChatID        int64     `json:"chatId"`
	Action        string    `json:"action"`           // e.g. "job.add", "post.edit", "admin.remove"
	Target        string    `json:"target,omitempty"` // e.g. "job:3", "message:-100123/42"
	Error         string    `json:"error,omitempty"`  // empty means the action succeeded
	MetaJSON      string    `json:"meta,omitempty"`
}
