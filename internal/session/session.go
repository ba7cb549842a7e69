// Package session tracks in-progress "replace the content of X"
// operations. Each (chat, user) pair holds at most one pending edit;
// the next plain-text message from that pair consumes it. There is no
// timeout: a session lives until consumed or cancelled, which is fine
// for a single admin-operated bot.
package session

import (
	"sync"
	"time"

	"postbot/internal/transport"
)

// Target is what a pending edit applies to: a previously sent message
// or a scheduled job. The sealed method keeps the variant set closed so
// switches over Target stay exhaustive.
type Target interface {
	sealedTarget()
}

// MessageTarget points at a sent message in the edit session's chat.
type MessageTarget struct {
	MessageID int
}

// JobTarget points at a scheduled job by id.
type JobTarget struct {
	JobID int64
}

func (MessageTarget) sealedTarget() {}
func (JobTarget) sealedTarget()     {}

// Key identifies a session owner.
type Key struct {
	ChatID int64
	UserID int64
}

// Edit is one pending edit session.
type Edit struct {
	Target    Target
	StartedAt time.Time
}

// EditStore is the two-state machine behind /edit_post and job-edit
// buttons: idle (no entry) or awaiting-replacement (entry present).
type EditStore struct {
	mu  sync.Mutex
	set map[Key]Edit
	now func() time.Time
}

func NewEditStore() *EditStore {
	return &EditStore{set: map[Key]Edit{}, now: time.Now}
}

// StartMessage arms a session targeting a sent message. An existing
// session for the key is silently replaced; last writer wins.
func (s *EditStore) StartMessage(chatID, userID int64, messageID int) {
	s.start(Key{chatID, userID}, MessageTarget{MessageID: messageID})
}

// StartJob arms a session targeting a scheduled job.
func (s *EditStore) StartJob(chatID, userID, jobID int64) {
	s.start(Key{chatID, userID}, JobTarget{JobID: jobID})
}

func (s *EditStore) start(k Key, t Target) {
	s.mu.Lock()
	s.set[k] = Edit{Target: t, StartedAt: s.now()}
	s.mu.Unlock()
}

// Get peeks at the pending session without consuming it.
func (s *EditStore) Get(chatID, userID int64) (Edit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.set[Key{chatID, userID}]
	return e, ok
}

// Take consumes the pending session: the entry is removed whether or
// not the caller's downstream update succeeds.
func (s *EditStore) Take(chatID, userID int64) (Edit, bool) {
	k := Key{chatID, userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.set[k]
	if ok {
		delete(s.set, k)
	}
	return e, ok
}

// Clear cancels a pending session, if any.
func (s *EditStore) Clear(chatID, userID int64) {
	s.mu.Lock()
	delete(s.set, Key{chatID, userID})
	s.mu.Unlock()
}

// PostEdit is a pending post-replacement session. Unlike Edit it is
// content-type aware: consumption must supply content matching Expect
// or the update is rejected (and the session still cleared).
type PostEdit struct {
	MessageID int
	Expect    transport.ContentKind
	StartedAt time.Time
}

// PostEditStore mirrors EditStore for post-replacement sessions. Kept
// as a separate store so a post edit and a message/job edit never
// shadow each other.
type PostEditStore struct {
	mu  sync.Mutex
	set map[Key]PostEdit
	now func() time.Time
}

func NewPostEditStore() *PostEditStore {
	return &PostEditStore{set: map[Key]PostEdit{}, now: time.Now}
}

func (s *PostEditStore) Start(chatID, userID int64, messageID int, expect transport.ContentKind) {
	s.mu.Lock()
	s.set[Key{chatID, userID}] = PostEdit{MessageID: messageID, Expect: expect, StartedAt: s.now()}
	s.mu.Unlock()
}

func (s *PostEditStore) Get(chatID, userID int64) (PostEdit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.set[Key{chatID, userID}]
	return e, ok
}

func (s *PostEditStore) Take(chatID, userID int64) (PostEdit, bool) {
	k := Key{chatID, userID}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.set[k]
	if ok {
		delete(s.set, k)
	}
	return e, ok
}

func (s *PostEditStore) Clear(chatID, userID int64) {
	s.mu.Lock()
	delete(s.set, Key{chatID, userID})
	s.mu.Unlock()
}
