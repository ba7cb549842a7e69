package bot

import (
	"context"
	"strings"
	"sync/atomic"

	"postbot/internal/messagelog"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// Command is a single slash command. Args in the handler are whitespace-split
// tokens after the command name; ArgText preserves the raw remainder.
type Command struct {
	Name        string
	Description string
	AdminOnly   bool
	Hidden      bool // kept out of the platform command menu
	Handle      HandlerFunc
}

// CallbackRoute handles inline-button callbacks whose data starts with
// "<action>:".
type CallbackRoute struct {
	Action    string
	AdminOnly bool
	Handle    HandlerFunc
}

// Request is the per-update context handed to handlers. Exactly one of Msg
// and Callback is set.
type Request struct {
	Msg      *transport.Message
	Callback *transport.Callback

	Chat         transport.ChatTarget
	FromID       int64
	FromUsername string

	Command string
	Args    []string
	ArgText string
	Payload string // callback payload after "action:"

	ReqID string
	Log   logx.Logger
}

var reqSeq atomic.Uint64

func nextReqID() string {
	n := reqSeq.Add(1)
	const hex = "0123456789abcdef"
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = hex[n&0xf]
		n >>= 4
	}
	return string(buf)
}

func (b *Bot) routeLoop(ctx context.Context, in <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-in:
			if !ok {
				return
			}
			switch upd.Kind {
			case transport.UpdateMessage:
				if upd.Message != nil {
					b.routeMessage(ctx, upd.Message)
				}
			case transport.UpdateCallback:
				if upd.Callback != nil {
					b.routeCallback(ctx, upd.Callback)
				}
			}
		}
	}
}

func (b *Bot) routeMessage(ctx context.Context, msg *transport.Message) {
	if name, rest, ok := splitCommand(msg.Text); ok {
		cmd := b.commands[name]
		if cmd == nil {
			// Unknown commands are only worth a hint in private chats.
			if !msg.IsGroup {
				b.enqueue(ctx, b.requestFor(msg, name, rest), func(ctx context.Context, req *Request) error {
					return b.replyText(ctx, req, "Unknown command. Try /help.")
				})
			}
			return
		}
		req := b.requestFor(msg, name, rest)
		if cmd.AdminOnly && !b.admins.IsAdmin(msg.FromID) {
			b.enqueue(ctx, req, func(ctx context.Context, req *Request) error {
				return b.replyText(ctx, req, "⛔ Not authorized.")
			})
			return
		}
		b.enqueue(ctx, req, cmd.Handle)
		return
	}

	// Free text only matters while the author has an active session.
	if !b.hasSession(msg.ChatID, msg.FromID) {
		return
	}
	b.enqueue(ctx, b.requestFor(msg, "", msg.Text), b.handleFreeText)
}

func (b *Bot) routeCallback(ctx context.Context, cb *transport.Callback) {
	action, payload := cb.Data, ""
	if i := strings.IndexByte(cb.Data, ':'); i >= 0 {
		action, payload = cb.Data[:i], cb.Data[i+1:]
	}
	route := b.callbacks[action]
	if route == nil {
		b.log.Debug("unknown callback", logx.String("action", action))
		_ = b.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	req := &Request{
		Callback: cb,
		Chat:     transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:   cb.FromID,
		Command:  "cb:" + action,
		Payload:  payload,
		ReqID:    nextReqID(),
	}
	req.Log = b.log.With(logx.String("rid", req.ReqID), logx.String("cb", action))

	if route.AdminOnly && !b.admins.IsAdmin(cb.FromID) {
		_ = b.adapter.AnswerCallback(ctx, cb.ID, "⛔ Not authorized.")
		return
	}

	handler := route.Handle
	b.enqueue(ctx, req, func(ctx context.Context, req *Request) error {
		err := handler(ctx, req)
		// Clear the button spinner if the handler did not answer itself.
		_ = b.adapter.AnswerCallback(ctx, req.Callback.ID, "")
		return err
	})
}

func (b *Bot) requestFor(msg *transport.Message, name, rest string) *Request {
	req := &Request{
		Msg:          msg,
		Chat:         transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      name,
		Args:         strings.Fields(rest),
		ArgText:      strings.TrimSpace(rest),
		ReqID:        nextReqID(),
	}
	req.Log = b.log.With(logx.String("rid", req.ReqID), logx.String("cmd", name))
	return req
}

func (b *Bot) enqueue(ctx context.Context, req *Request, h HandlerFunc) {
	wrapped := Chain(h,
		MWPanicRecover(b.log),
		MWRequestLog(b.log),
		MWTimeout(handlerTimeout),
	)
	job := func() {
		if err := wrapped(ctx, req); err != nil {
			req.Log.Warn("handler error", logx.Err(err))
		}
	}
	select {
	case b.queue <- job:
	default:
		b.log.Warn("command queue full, dropping update",
			logx.Int64("chat_id", req.Chat.ChatID),
			logx.String("cmd", req.Command),
		)
		go func() {
			_ = b.replyText(ctx, req, "Busy right now, try again in a moment.")
		}()
	}
}

// splitCommand parses "/name@bot args..." into (name, rest). The @mention
// suffix is stripped; commands are matched case-insensitively.
func splitCommand(text string) (name, rest string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head := text[1:]
	if i := strings.IndexAny(head, " \t\n"); i >= 0 {
		head, rest = head[:i], head[i+1:]
	}
	if head == "" {
		return "", "", false
	}
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), rest, true
}

func (b *Bot) hasSession(chatID, userID int64) bool {
	if _, ok := b.wizards.Get(chatID, userID); ok {
		return true
	}
	if _, ok := b.postEdits.Get(chatID, userID); ok {
		return true
	}
	_, ok := b.edits.Get(chatID, userID)
	return ok
}

// replyText sends a plain service reply into the request's chat. Service
// replies are tracked but never listed by /list_posts.
func (b *Bot) replyText(ctx context.Context, req *Request, text string) error {
	_, err := b.send.SendText(ctx, req.Chat, text, nil,
		messagelog.Origin{Kind: messagelog.OriginServiceReply})
	return err
}

func (b *Bot) replyMarkup(ctx context.Context, req *Request, text string, markup any) error {
	_, err := b.send.SendText(ctx, req.Chat, text,
		&transport.SendOptions{ReplyMarkupAdapter: markup},
		messagelog.Origin{Kind: messagelog.OriginServiceReply})
	return err
}
