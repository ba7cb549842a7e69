// Package schedule owns the scheduled-post subsystem: the job registry,
// the cron trigger engine and the JSON snapshot used for restart
// recovery.
//
// The registry is the single source of truth for what fires and when.
// Mutations persist a full snapshot asynchronously; the in-memory state
// is authoritative and the file is only a best-effort mirror. Trigger
// callbacks capture a job id, never the job itself, and re-fetch the
// record on every tick so concurrent edits and deletions are observed.
package schedule
