package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"postbot/internal/messagelog"
	"postbot/internal/session"
	"postbot/internal/transport"
)

// handleFreeText runs for plain messages from users with an active session.
// Wizard input wins over a pending post edit, which wins over a plain edit
// session; at most one applies per message.
func (b *Bot) handleFreeText(ctx context.Context, req *Request) error {
	chat, user := req.Chat.ChatID, req.FromID

	if w, ok := b.wizards.Get(chat, user); ok {
		return b.wizardTimeInput(ctx, req, w)
	}
	if pe, ok := b.postEdits.Get(chat, user); ok {
		return b.applyPostEdit(ctx, req, pe)
	}
	if e, ok := b.edits.Get(chat, user); ok {
		return b.applyEdit(ctx, req, e)
	}
	return nil
}

func (b *Bot) wizardTimeInput(ctx context.Context, req *Request, w wizard) error {
	if w.Step != stepWhen {
		return b.replyText(ctx, req, "Use the buttons above, or send /wizard again to restart.")
	}
	when, err := parseWhen(w.Mode, req.Msg.Text, b.engine.Location(), time.Now())
	if err != nil {
		return b.replyText(ctx, req, "⚠️ "+err.Error())
	}
	w.When = when
	w.Step = stepWhere
	b.wizards.Put(req.Chat.ChatID, req.FromID, w)

	return b.replyMarkup(ctx, req, "Where should it go?", keyboard(
		row(
			btn("💬 This chat", "wizard", "location:chat"),
			btn("📢 Channel", "wizard", "location:channel"),
		),
		row(btn("✖️ Cancel", "wizard", "cancel")),
	))
}

func (b *Bot) applyPostEdit(ctx context.Context, req *Request, pe session.PostEdit) error {
	chat, user := req.Chat.ChatID, req.FromID

	post, ok := b.msgs.Get(chat, pe.MessageID)
	if !ok || post.Deleted {
		b.postEdits.Clear(chat, user)
		return b.replyText(ctx, req, "That post is no longer available.")
	}

	kind, fileID := messagelog.Classify(req.Msg.Text, req.Msg.Media)
	// Content kind must match the original post. A mismatch rejects the
	// update, leaves the post untouched, and ends the session.
	if pe.Expect == transport.ContentText {
		if kind != transport.ContentText {
			b.postEdits.Clear(chat, user)
			return b.replyText(ctx, req, "That post is a text post; the replacement must be plain text. Nothing was changed.")
		}
		err := b.editStoredPost(ctx, post, req.Msg.Text)
		b.recordAudit(ctx, req, "post.edit", postTarget(pe.MessageID), err, nil)
		if err != nil {
			b.postEdits.Clear(chat, user)
			return b.replyText(ctx, req, "Edit failed: "+err.Error())
		}
		b.postEdits.Take(chat, user)
		return b.replyText(ctx, req, fmt.Sprintf("✏️ Post %d updated.", pe.MessageID))
	}

	if kind != pe.Expect {
		b.postEdits.Clear(chat, user)
		return b.replyText(ctx, req,
			fmt.Sprintf("That post is a %s post; the replacement must be a %s. Nothing was changed.",
				contentNoun(pe.Expect), contentNoun(pe.Expect)))
	}
	ref := transport.MessageRef{ChatID: post.ChatID, MessageID: post.MessageID}
	media := transport.Media{Kind: kind, FileID: fileID}
	err := b.send.EditMedia(ctx, ref, media, req.Msg.Text, &transport.SendOptions{Entities: req.Msg.Entities})
	b.recordAudit(ctx, req, "post.edit", postTarget(pe.MessageID), err, nil)
	if err != nil {
		b.postEdits.Clear(chat, user)
		return b.replyText(ctx, req, "Edit failed: "+err.Error())
	}
	b.postEdits.Take(chat, user)
	return b.replyText(ctx, req, fmt.Sprintf("✏️ Post %d updated.", pe.MessageID))
}

func (b *Bot) applyEdit(ctx context.Context, req *Request, e session.Edit) error {
	chat, user := req.Chat.ChatID, req.FromID

	if req.Msg.Media != nil {
		return b.replyText(ctx, req, "Send the new text as a plain text message.")
	}
	text := strings.TrimSpace(req.Msg.Text)
	if text == "" {
		b.edits.Clear(chat, user)
		return b.replyText(ctx, req, "Edit cancelled, nothing was changed.")
	}

	b.edits.Take(chat, user)
	switch target := e.Target.(type) {
	case session.MessageTarget:
		post, ok := b.msgs.Get(chat, target.MessageID)
		if !ok || post.Deleted {
			return b.replyText(ctx, req, "That message is no longer available.")
		}
		err := b.editStoredPost(ctx, post, text)
		b.recordAudit(ctx, req, "post.edit", postTarget(target.MessageID), err, nil)
		if err != nil {
			return b.replyText(ctx, req, "Edit failed: "+err.Error())
		}
		return b.replyText(ctx, req, fmt.Sprintf("✏️ Message %d updated.", target.MessageID))

	case session.JobTarget:
		d, ok := b.jobs.UpdateText(chat, target.JobID, text)
		b.recordAudit(ctx, req, "job.edit", jobTarget(target.JobID), nil, nil)
		if !ok {
			return b.replyText(ctx, req, fmt.Sprintf("Job #%d is already gone.", target.JobID))
		}
		return b.replyText(ctx, req, fmt.Sprintf("✏️ Job #%d text updated.", d.ID))

	default:
		return fmt.Errorf("unknown edit target %T", e.Target)
	}
}
