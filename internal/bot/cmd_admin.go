package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/messagelog"
	"postbot/internal/transport"
)

func (b *Bot) cmdListAdmins(ctx context.Context, req *Request) error {
	admins := b.admins.Admins()
	if len(admins) == 0 {
		return b.replyText(ctx, req, "No admins configured.")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Admins (%d):\n", len(admins))
	var rows [][]tele.InlineButton
	for _, id := range admins {
		if b.admins.IsSeeded(id) {
			fmt.Fprintf(&sb, "• %d (from config)\n", id)
			continue
		}
		fmt.Fprintf(&sb, "• %d\n", id)
		rows = append(rows, row(btn(fmt.Sprintf("➖ Remove %d", id), "rmadmin", strconv.FormatInt(id, 10))))
	}
	if len(rows) == 0 {
		return b.replyText(ctx, req, sb.String())
	}
	return b.replyMarkup(ctx, req, sb.String(), keyboard(rows...))
}

// adminArg resolves the target of /add_admin and /remove_admin: a numeric
// user id argument, or the author of the replied-to message.
func adminArg(req *Request) (int64, bool) {
	if len(req.Args) == 1 {
		if id, err := strconv.ParseInt(req.Args[0], 10, 64); err == nil && id != 0 {
			return id, true
		}
	}
	if req.Msg.ReplyTo != nil && req.Msg.ReplyToFromID != 0 {
		return req.Msg.ReplyToFromID, true
	}
	return 0, false
}

func (b *Bot) cmdAddAdmin(ctx context.Context, req *Request) error {
	id, ok := adminArg(req)
	if !ok {
		return b.replyText(ctx, req, "Usage: /add_admin <user id>, or reply to the user's message with /add_admin.")
	}
	if !b.admins.Add(id) {
		return b.replyText(ctx, req, fmt.Sprintf("%d is already an admin.", id))
	}
	b.recordAudit(ctx, req, "admin.add", adminTarget(id), nil, nil)
	return b.replyText(ctx, req, fmt.Sprintf("✅ %d is now an admin.", id))
}

func (b *Bot) cmdRemoveAdmin(ctx context.Context, req *Request) error {
	id, ok := adminArg(req)
	if !ok {
		return b.replyText(ctx, req, "Usage: /remove_admin <user id>, or reply to the user's message with /remove_admin.")
	}
	if b.admins.IsSeeded(id) {
		return b.replyText(ctx, req, "Admins from the config file can only be removed there.")
	}
	if !b.admins.Remove(id) {
		return b.replyText(ctx, req, fmt.Sprintf("%d is not an admin.", id))
	}
	b.recordAudit(ctx, req, "admin.remove", adminTarget(id), nil, nil)
	return b.replyText(ctx, req, fmt.Sprintf("🗑 %d is no longer an admin.", id))
}

func (b *Bot) cmdCurrentChannel(ctx context.Context, req *Request) error {
	ch := b.admins.Channel()
	if ch == 0 {
		return b.replyText(ctx, req, "No channel configured. Use /set_channel.")
	}
	return b.replyText(ctx, req, fmt.Sprintf("Current channel: %d", ch))
}

const setChannelUsage = `Three ways to set the channel:
• send /set_channel inside the channel itself (with the bot added as admin),
• forward a post from the channel here and reply to it with /set_channel,
• /set_channel <channel id> (usually starts with -100).`

func (b *Bot) cmdSetChannel(ctx context.Context, req *Request) error {
	// Sent on behalf of a channel: the surest signal, apply directly.
	if req.Msg.SenderChatID != 0 {
		b.admins.SetChannel(req.Msg.SenderChatID)
		b.recordAudit(ctx, req, "channel.set", strconv.FormatInt(req.Msg.SenderChatID, 10), nil, nil)
		return b.replyText(ctx, req, fmt.Sprintf("✅ Channel set to %d.", req.Msg.SenderChatID))
	}

	var candidate int64
	if req.Msg.ReplyTo != nil && req.Msg.ReplyTo.ForwardFromChatID != 0 {
		candidate = req.Msg.ReplyTo.ForwardFromChatID
	} else if len(req.Args) == 1 {
		if id, err := strconv.ParseInt(req.Args[0], 10, 64); err == nil && id != 0 {
			candidate = id
		}
	}
	if candidate == 0 {
		return b.replyText(ctx, req, setChannelUsage)
	}

	return b.replyMarkup(ctx, req,
		fmt.Sprintf("Set %d as the publish channel?", candidate),
		keyboard(row(btn("✅ Confirm", "setchan", strconv.FormatInt(candidate, 10)))))
}

func (b *Bot) cmdChannelTest(ctx context.Context, req *Request) error {
	ch := b.admins.Channel()
	if ch == 0 {
		return b.replyText(ctx, req, "No channel configured. Use /set_channel first.")
	}
	text := req.ArgText
	if text == "" {
		text = "✅ Channel connection works."
	}
	_, err := b.send.SendText(ctx, transport.ChatTarget{ChatID: ch}, text, nil,
		messagelog.Origin{Kind: messagelog.OriginChannelPost})
	if err != nil {
		return b.replyText(ctx, req, "Channel send failed: "+err.Error())
	}
	return b.replyText(ctx, req, fmt.Sprintf("Sent to channel %d.", ch))
}

func (b *Bot) cmdDebugConfig(ctx context.Context, req *Request) error {
	if b.cfgm == nil {
		return b.replyText(ctx, req, "Config manager not attached.")
	}
	cfg := b.cfgm.Get()
	if cfg == nil {
		return b.replyText(ctx, req, "No config loaded.")
	}
	redacted := *cfg
	if redacted.Telegram.Token != "" {
		redacted.Telegram.Token = "***"
	}
	raw, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return err
	}
	return b.replyText(ctx, req, string(raw))
}
