package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"postbot/internal/schedule"
	"postbot/internal/transport"
)

func (b *Bot) registerCallbacks() {
	add := func(r *CallbackRoute) { b.callbacks[r.Action] = r }

	add(&CallbackRoute{Action: "jobstop", AdminOnly: true, Handle: b.cbJobStop})
	add(&CallbackRoute{Action: "jobedit", AdminOnly: true, Handle: b.cbJobEdit})
	add(&CallbackRoute{Action: "postedit", AdminOnly: true, Handle: b.cbPostEdit})
	add(&CallbackRoute{Action: "delete", AdminOnly: true, Handle: b.cbDeletePost})
	add(&CallbackRoute{Action: "edit", AdminOnly: true, Handle: b.cbEditMessage})
	add(&CallbackRoute{Action: "rmadmin", AdminOnly: true, Handle: b.cbRemoveAdmin})
	add(&CallbackRoute{Action: "setchan", AdminOnly: true, Handle: b.cbSetChannel})
	add(&CallbackRoute{Action: "wizard", Handle: b.cbWizard})
}

func (b *Bot) cbJobStop(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		return fmt.Errorf("bad jobstop payload %q", req.Payload)
	}
	d, ok := b.jobs.Remove(req.Chat.ChatID, id)
	b.recordAudit(ctx, req, "job.remove", jobTarget(id), nil, nil)
	if !ok {
		return b.replyText(ctx, req, fmt.Sprintf("Job #%d is already gone.", id))
	}
	return b.replyText(ctx, req, fmt.Sprintf("🗑 Job #%d cancelled (%s).", d.ID, d.CronExpr))
}

func (b *Bot) cbJobEdit(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		return fmt.Errorf("bad jobedit payload %q", req.Payload)
	}
	if _, ok := b.jobs.Job(req.Chat.ChatID, id); !ok {
		return b.replyText(ctx, req, fmt.Sprintf("Job #%d is already gone.", id))
	}
	b.edits.StartJob(req.Chat.ChatID, req.FromID, id)
	return b.replyText(ctx, req,
		fmt.Sprintf("✏️ Send the new text for job #%d as a normal message.", id))
}

func (b *Bot) cbPostEdit(ctx context.Context, req *Request) error {
	msgID, err := strconv.Atoi(req.Payload)
	if err != nil {
		return fmt.Errorf("bad postedit payload %q", req.Payload)
	}
	post, ok := b.msgs.Get(req.Chat.ChatID, msgID)
	if !ok || post.Deleted {
		return b.replyText(ctx, req, "That post is no longer available.")
	}
	b.postEdits.Start(req.Chat.ChatID, req.FromID, msgID, post.ContentType)

	prompt := "✏️ Send the replacement text as a normal message."
	if post.ContentType != transport.ContentText {
		prompt = fmt.Sprintf("✏️ Send a replacement %s (a caption is optional).", contentNoun(post.ContentType))
	}
	return b.replyText(ctx, req, prompt)
}

func contentNoun(k transport.ContentKind) string {
	switch k {
	case transport.ContentPhoto:
		return "photo"
	case transport.ContentVideo:
		return "video"
	case transport.ContentAnimation:
		return "animation"
	case transport.ContentDocument:
		return "document"
	default:
		return string(k)
	}
}

func (b *Bot) cbDeletePost(ctx context.Context, req *Request) error {
	msgID, err := strconv.Atoi(req.Payload)
	if err != nil {
		return fmt.Errorf("bad delete payload %q", req.Payload)
	}
	post, ok := b.msgs.Get(req.Chat.ChatID, msgID)
	if !ok || post.Deleted {
		return b.replyText(ctx, req, "That post is no longer available.")
	}
	ref := transport.MessageRef{ChatID: post.ChatID, MessageID: post.MessageID}
	delErr := b.send.Delete(ctx, ref)
	b.recordAudit(ctx, req, "post.delete", postTarget(msgID), delErr, nil)
	if delErr != nil {
		return b.replyText(ctx, req, "Delete failed: "+delErr.Error())
	}
	return b.replyText(ctx, req, fmt.Sprintf("🗑 Post %d deleted.", msgID))
}

func (b *Bot) cbEditMessage(ctx context.Context, req *Request) error {
	msgID, err := strconv.Atoi(req.Payload)
	if err != nil {
		return fmt.Errorf("bad edit payload %q", req.Payload)
	}
	if post, ok := b.msgs.Get(req.Chat.ChatID, msgID); !ok || post.Deleted {
		return b.replyText(ctx, req, "That message is no longer available.")
	}
	b.edits.StartMessage(req.Chat.ChatID, req.FromID, msgID)
	return b.replyText(ctx, req, "✏️ Send the new text as a normal message.")
}

func (b *Bot) cbRemoveAdmin(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		return fmt.Errorf("bad rmadmin payload %q", req.Payload)
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

func (b *Bot) cbSetChannel(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("bad setchan payload %q", req.Payload)
	}
	b.admins.SetChannel(id)
	b.recordAudit(ctx, req, "channel.set", strconv.FormatInt(id, 10), nil, nil)
	return b.replyText(ctx, req, fmt.Sprintf("✅ Channel set to %d.", id))
}

func (b *Bot) cbWizard(ctx context.Context, req *Request) error {
	w, ok := b.wizards.Get(req.Chat.ChatID, req.FromID)
	if !ok {
		return b.replyText(ctx, req, "No wizard in progress. Reply to a message with /wizard to start one.")
	}

	action, arg := req.Payload, ""
	if i := strings.IndexByte(req.Payload, ':'); i >= 0 {
		action, arg = req.Payload[:i], req.Payload[i+1:]
	}

	switch action {
	case "cancel":
		b.wizards.Clear(req.Chat.ChatID, req.FromID)
		return b.replyText(ctx, req, "Wizard cancelled.")

	case "mode":
		if w.Step != stepMode {
			return nil
		}
		mode := wizardMode(arg)
		if mode != modeOnce && mode != modeDaily && mode != modeWeekly {
			return fmt.Errorf("bad wizard mode %q", arg)
		}
		w.Mode = mode
		w.Step = stepWhen
		b.wizards.Put(req.Chat.ChatID, req.FromID, w)
		return b.replyText(ctx, req, whenPrompt(mode))

	case "location":
		if w.Step != stepWhere {
			return nil
		}
		target := req.Chat.ChatID
		if arg == "channel" {
			target = b.admins.Channel()
			if target == 0 {
				return b.replyText(ctx, req, "No channel configured. Use /set_channel first, or pick this chat.")
			}
		}

		expr, repeat, at := cronFor(w.Mode, w.When)
		d, err := b.createJob(ctx, req, target, expr, repeat, at, schedule.JobPost, w.Content)
		if err != nil {
			b.wizards.Clear(req.Chat.ChatID, req.FromID)
			return b.replyText(ctx, req, "Failed to schedule: "+err.Error())
		}
		b.wizards.Clear(req.Chat.ChatID, req.FromID)

		next, _ := b.engine.Next(d.CronExpr, time.Now())
		return b.replyText(ctx, req, fmt.Sprintf(
			"✅ Job #%d scheduled (%s) → %s.\nNext run: %s",
			d.ID, modeLabel(w.Mode), b.destinationLabel(req.Chat.ChatID, target),
			fmtLocal(next, b.engine.Location())))

	default:
		return fmt.Errorf("bad wizard payload %q", req.Payload)
	}
}

func whenPrompt(mode wizardMode) string {
	switch mode {
	case modeOnce:
		return "🕐 When? Send the date and time as DD.MM.YYYY HH:MM (e.g. 24.12.2026 18:00)."
	case modeWeekly:
		return "🗓 When? Send the weekday and time as DAY HH:MM (e.g. mon 09:30)."
	default:
		return "📅 When? Send the time as HH:MM (e.g. 09:30)."
	}
}
