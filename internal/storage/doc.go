package storage

// Package storage persists the operator audit trail: who created,
// edited or removed which job, post or admin, and whether the action
// succeeded. The file driver needs no extra dependencies; the sqlite
// driver is opt-in via the "sqlite" build tag.
