// Package messagelog is an append-mostly ledger of bot-sent messages.
// Records are never physically removed within the process lifetime;
// deletion is a tombstone so repeated delete or edit attempts fail
// predictably instead of racing.
package messagelog

import (
	"sort"
	"sync"
	"time"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// OriginKind is the provenance of a tracked message. It replaces ad-hoc
// source strings: classification happens once, at creation, not by
// substring matching at query time.
type OriginKind string

const (
	// OriginScheduled is content delivered by a fired job.
	OriginScheduled OriginKind = "scheduled"
	// OriginTestPost is a manual test delivery.
	OriginTestPost OriginKind = "test_post"
	// OriginChannelPost is a direct channel post made on request.
	OriginChannelPost OriginKind = "channel_post"
	// OriginServiceReply is command chatter (confirmations, help, errors).
	OriginServiceReply OriginKind = "service_reply"
)

// Origin tags a stored message with its provenance. Listable is decided
// here, when the message is recorded, and controls whether the message
// shows up in user-facing listings. JobID links scheduled deliveries
// back to the job that produced them.
type Origin struct {
	Kind  OriginKind `json:"kind"`
	JobID int64      `json:"jobId,omitempty"`
}

func (o Origin) listable() bool {
	switch o.Kind {
	case OriginScheduled, OriginTestPost, OriginChannelPost:
		return true
	default:
		return false
	}
}

// StoredMessage is one ledger entry, keyed by (ChatID, MessageID).
type StoredMessage struct {
	ChatID      int64                 `json:"chatId"`
	MessageID   int                   `json:"messageId"`
	Text        string                `json:"text"`
	ContentType transport.ContentKind `json:"contentType"`
	FileID      string                `json:"fileId,omitempty"`
	Origin      Origin                `json:"origin"`
	Listable    bool                  `json:"listable"`
	SentAt      time.Time             `json:"sentAt"`
	Deleted     bool                  `json:"deleted"`
}

// ContentPatch is a partial update with the same absent-vs-clear
// discipline as job content patches: nil leaves a field alone, a
// pointer to a zero value clears it.
type ContentPatch struct {
	ContentType *transport.ContentKind
	Text        *string
	FileID      *string
}

type key struct {
	chat int64
	msg  int
}

// Registry remembers every message the bot has sent so later edit and
// delete commands can validate and mutate them.
type Registry struct {
	mu     sync.Mutex
	byKey  map[key]*StoredMessage
	byChat map[int64][]*StoredMessage // append order = send order
	log    logx.Logger
	now    func() time.Time
}

func NewRegistry(log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		byKey:  map[key]*StoredMessage{},
		byChat: map[int64][]*StoredMessage{},
		log:    log,
		now:    time.Now,
	}
}

// Add records an outbound message. The content classification mirrors
// what was actually sent; it is what later replacement attempts are
// validated against.
func (r *Registry) Add(chatID int64, messageID int, text string, kind transport.ContentKind, fileID string, origin Origin) StoredMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &StoredMessage{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ContentType: kind,
		FileID:      fileID,
		Origin:      origin,
		Listable:    origin.listable(),
		SentAt:      r.now(),
	}
	k := key{chatID, messageID}
	if _, exists := r.byKey[k]; !exists {
		r.byChat[chatID] = append(r.byChat[chatID], m)
	}
	r.byKey[k] = m
	return *m
}

func (r *Registry) Get(chatID int64, messageID int) (StoredMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.byKey[key{chatID, messageID}]; m != nil {
		return *m, true
	}
	return StoredMessage{}, false
}

// UpdateText rewrites the stored text. Fails on unknown keys and on
// tombstoned messages.
func (r *Registry) UpdateText(chatID int64, messageID int, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byKey[key{chatID, messageID}]
	if m == nil || m.Deleted {
		return false
	}
	m.Text = text
	return true
}

// UpdateContent applies a partial patch. Same failure rules as
// UpdateText.
func (r *Registry) UpdateContent(chatID int64, messageID int, patch ContentPatch) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byKey[key{chatID, messageID}]
	if m == nil || m.Deleted {
		return false
	}
	if patch.ContentType != nil {
		m.ContentType = *patch.ContentType
	}
	if patch.Text != nil {
		m.Text = *patch.Text
	}
	if patch.FileID != nil {
		m.FileID = *patch.FileID
	}
	return true
}

// MarkDeleted tombstones a message. Returns false for unknown keys and
// for messages already tombstoned, so a double delete surfaces as "not
// found" to the user instead of silently succeeding twice.
func (r *Registry) MarkDeleted(chatID int64, messageID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byKey[key{chatID, messageID}]
	if m == nil || m.Deleted {
		return false
	}
	m.Deleted = true
	return true
}

// AllMessagesForChat lists every listable, non-deleted message for a
// chat, newest first.
func (r *Registry) AllMessagesForChat(chatID int64) []StoredMessage {
	return r.MessagesForChat(chatID, 0)
}

// MessagesForChat is AllMessagesForChat truncated to limit entries
// (limit <= 0 means no truncation).
func (r *Registry) MessagesForChat(chatID int64, limit int) []StoredMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StoredMessage
	for _, m := range r.byChat[chatID] {
		if m.Deleted || !m.Listable {
			continue
		}
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].SentAt.After(out[k].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Classify derives the content kind and file id of an outbound payload.
// Priority: text, photo, video, animation, document, otherwise "other".
func Classify(text string, media *transport.Media) (transport.ContentKind, string) {
	if media == nil {
		if text != "" {
			return transport.ContentText, ""
		}
		return transport.ContentOther, ""
	}
	switch media.Kind {
	case transport.ContentPhoto, transport.ContentVideo, transport.ContentAnimation, transport.ContentDocument:
		return media.Kind, media.FileID
	default:
		return transport.ContentOther, media.FileID
	}
}
