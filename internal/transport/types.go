package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

// ContentKind classifies message payloads. Classification priority on ingest:
// text, photo (largest variant), video, animation, document, other.
type ContentKind string

const (
	ContentText      ContentKind = "text"
	ContentPhoto     ContentKind = "photo"
	ContentVideo     ContentKind = "video"
	ContentAnimation ContentKind = "animation"
	ContentDocument  ContentKind = "document"
	ContentOther     ContentKind = "other"
)

// Entity is a formatting span over a message text or caption.
// Field names follow the Telegram Bot API so persisted jobs stay readable.
type Entity struct {
	Type     string `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
}

// Media is an attached file reference (photo/video/animation/document).
type Media struct {
	Kind   ContentKind
	FileID string
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string // text for text messages, caption for media
	Entities     []Entity
	Media        *Media // nil for plain text
	IsGroup      bool

	// ReplyTo is the message this one replies to, if any.
	ReplyTo *Message
	// ReplyToFromID is the sender of the replied-to message (0 if none).
	ReplyToFromID int64
	// SenderChatID is set when the message was sent on behalf of a channel.
	SenderChatID int64
	// ForwardFromChatID is set for messages forwarded from a channel.
	ForwardFromChatID int64
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	Entities           []Entity // formatting spans for text or caption
	ReplyMarkupAdapter any      // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, media Media, caption string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	EditMedia(ctx context.Context, ref MessageRef, media Media, caption string, opt *SendOptions) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
