package schedule

import (
	"time"

	"postbot/internal/transport"
)

// RepeatMode says how often a job is meant to fire. One-shot jobs
// (RepeatNone) remove themselves after the first successful delivery.
type RepeatMode string

const (
	RepeatNone    RepeatMode = "none"
	RepeatDaily   RepeatMode = "daily"
	RepeatWeekly  RepeatMode = "weekly"
	RepeatMonthly RepeatMode = "monthly"
)

// JobKind records how the job was created: through the wizard/schedule
// commands ("post") or from a raw cron expression ("cron").
type JobKind string

const (
	JobPost JobKind = "post"
	JobCron JobKind = "cron"
)

// JobData is the persisted definition of a scheduled job. It carries no
// live trigger handle; the registry pairs it with one at runtime.
type JobData struct {
	ID           int64                 `json:"id"`
	OwnerChatID  int64                 `json:"ownerChatId"`
	TargetChatID int64                 `json:"targetChatId"`
	CronExpr     string                `json:"cronExpr"`
	ContentType  transport.ContentKind `json:"contentType"`
	Text         string                `json:"text,omitempty"`
	FileID       string                `json:"fileId,omitempty"`
	Entities     []transport.Entity    `json:"entities,omitempty"`
	// ScheduledAt is the wall-clock instant of a one-shot job, RFC3339.
	ScheduledAt string     `json:"scheduledAt,omitempty"`
	Repeat      RepeatMode `json:"repeat,omitempty"`
	Kind        JobKind    `json:"type,omitempty"`
	// LastError holds the most recent delivery failure so operators can
	// see stuck one-shot jobs in listings. Cleared on the next success.
	LastError string `json:"lastError,omitempty"`
}

// ExpiredOneShot reports whether a one-shot job's stored fire time is
// already in the past. Recurring jobs, jobs without a timestamp, and
// jobs whose timestamp does not parse are never expired.
func (d JobData) ExpiredOneShot(now time.Time) bool {
	if d.Repeat != RepeatNone || d.ScheduledAt == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339, d.ScheduledAt)
	if err != nil {
		return false
	}
	return !at.After(now)
}

// ContentPatch is a partial update of a job's content. A nil field is
// left untouched; a non-nil pointer to a zero value clears the field.
// Clearing a caption is a valid intent, so absent and empty must stay
// distinguishable.
type ContentPatch struct {
	ContentType *transport.ContentKind
	Text        *string
	FileID      *string
	Entities    *[]transport.Entity
}

// RescheduleMeta optionally rewrites the repeat metadata alongside a
// cron-expression change.
type RescheduleMeta struct {
	Repeat      RepeatMode
	ScheduledAt string
	Kind        JobKind
}

type job struct {
	data JobData
	trig *Trigger
}
