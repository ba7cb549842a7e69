package bot

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"postbot/internal/schedule"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

// commandOrder fixes the order of the platform command menu.
var commandOrder = []string{
	"ping",
	"help",
	"wizard",
	"wizard_channel",
	"schedule",
	"schedule_channel",
	"test_post",
	"list_posts",
	"list_jobs",
	"stats",
	"cancel_job",
	"edit_post",
	"delete_post",
	"set_channel",
	"current_channel",
	"channel_test",
	"list_admins",
	"add_admin",
	"remove_admin",
	"help_wizard",
	"cron_help",
	"debug_config",
}

func (b *Bot) registerCommands() {
	add := func(c *Command) { b.commands[c.Name] = c }

	add(&Command{Name: "ping", Description: "Liveness check", Handle: b.cmdPing})
	add(&Command{Name: "help", Description: "List available commands", Handle: b.cmdHelp})
	add(&Command{Name: "help_wizard", Description: "How the scheduling wizard works", Handle: b.cmdHelpWizard})
	add(&Command{Name: "cron_help", Description: "Cron expression syntax", Handle: b.cmdCronHelp})

	add(&Command{Name: "wizard", Description: "Schedule a replied-to message step by step", AdminOnly: true, Handle: b.cmdWizard})
	add(&Command{Name: "wizard_channel", Description: "Schedule a replied-to message to the channel", AdminOnly: true, Handle: b.cmdWizardChannel})
	add(&Command{Name: "schedule", Description: "Schedule with a raw cron expression", AdminOnly: true, Handle: b.cmdSchedule})
	add(&Command{Name: "schedule_channel", Description: "Schedule to the channel with a cron expression", AdminOnly: true, Handle: b.cmdScheduleChannel})
	add(&Command{Name: "test_post", Description: "Post the replied-to message here, now", AdminOnly: true, Handle: b.cmdTestPost})

	add(&Command{Name: "list_posts", Description: "Recent posts sent by the bot", AdminOnly: true, Handle: b.cmdListPosts})
	add(&Command{Name: "list_jobs", Description: "Scheduled jobs for this chat", AdminOnly: true, Handle: b.cmdListJobs})
	add(&Command{Name: "stats", Description: "Scheduling statistics", AdminOnly: true, Handle: b.cmdStats})
	add(&Command{Name: "cancel_job", Description: "Cancel a scheduled job by id", AdminOnly: true, Handle: b.cmdCancelJob})
	add(&Command{Name: "edit_post", Description: "Edit a post sent by the bot", AdminOnly: true, Handle: b.cmdEditPost})
	add(&Command{Name: "delete_post", Description: "Delete a post sent by the bot", AdminOnly: true, Handle: b.cmdDeletePost})

	add(&Command{Name: "list_admins", Description: "List bot admins", AdminOnly: true, Handle: b.cmdListAdmins})
	add(&Command{Name: "add_admin", Description: "Grant admin rights", AdminOnly: true, Handle: b.cmdAddAdmin})
	add(&Command{Name: "remove_admin", Description: "Revoke admin rights", AdminOnly: true, Handle: b.cmdRemoveAdmin})

	add(&Command{Name: "current_channel", Description: "Show the configured channel", AdminOnly: true, Handle: b.cmdCurrentChannel})
	add(&Command{Name: "set_channel", Description: "Set the publish channel", AdminOnly: true, Handle: b.cmdSetChannel})
	add(&Command{Name: "channel_test", Description: "Send a test message to the channel", AdminOnly: true, Handle: b.cmdChannelTest})

	add(&Command{Name: "debug_config", Description: "Dump the active configuration", AdminOnly: true, Hidden: true, Handle: b.cmdDebugConfig})
}

func (b *Bot) cmdPing(ctx context.Context, req *Request) error {
	return b.replyText(ctx, req, "pong 🏓")
}

const helpText = `Post scheduling bot.

Scheduling:
/wizard — reply to a message, then pick when (step by step)
/wizard_channel <once|daily|weekly> <when> — reply to a message, schedule to the channel
/schedule "<cron>" [text] — raw cron schedule into this chat
/schedule_channel "<cron>" [text] — raw cron schedule into the channel
/test_post — reply to a message to post it here immediately

Managing:
/list_jobs — scheduled jobs for this chat
/cancel_job <id> — cancel a job
/list_posts [n] — recent posts with edit/delete buttons
/edit_post <id> <text> — edit a sent post (or reply to it)
/delete_post <id> — delete a sent post (or reply to it)
/stats — totals and schedule distribution

Channel:
/set_channel, /current_channel, /channel_test

Admins:
/list_admins, /add_admin, /remove_admin

More: /help_wizard, /cron_help`

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	return b.replyText(ctx, req, helpText)
}

const helpWizardText = `Wizard flow:

1. Reply to the message you want to schedule with /wizard.
2. Pick the repeat mode: once, daily or weekly.
3. Send the time as plain text:
   • once — DD.MM.YYYY HH:MM (must be in the future)
   • daily — HH:MM
   • weekly — DAY HH:MM (e.g. "mon 09:30")
4. Pick the destination: this chat or the channel.

/wizard_channel skips the buttons: reply to a message with e.g.
/wizard_channel once 2026-12-24 18:00
/wizard_channel daily 09:30
/wizard_channel weekly fri 17:00`

func (b *Bot) cmdHelpWizard(ctx context.Context, req *Request) error {
	return b.replyText(ctx, req, helpWizardText)
}

const cronHelpText = `Cron expressions use 6 fields (with seconds):

  ┌─ second (0-59)
  │ ┌─ minute (0-59)
  │ │ ┌─ hour (0-23)
  │ │ │ ┌─ day of month (1-31)
  │ │ │ │ ┌─ month (1-12)
  │ │ │ │ │ ┌─ day of week (0-6, 0=Sunday)
  0 30 9 * * *

Examples:
  0 0 12 * * *    every day at 12:00
  0 30 9 * * 1    every Monday at 09:30
  0 0 18 1 * *    the 1st of every month at 18:00
  0 */15 * * * *  every 15 minutes

Times are evaluated in the bot's configured time zone.`

func (b *Bot) cmdCronHelp(ctx context.Context, req *Request) error {
	return b.replyText(ctx, req, cronHelpText)
}

// audit appends an entry to the audit store, when one is configured.
// Failures are logged, never surfaced to the user.
func (b *Bot) recordAudit(ctx context.Context, req *Request, action, target string, opErr error, meta any) {
	if b.audit == nil {
		return
	}
	var metaJSON string
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			metaJSON = string(raw)
		}
	}
	var errStr string
	if opErr != nil {
		errStr = opErr.Error()
	}
	entry := storage.AuditEntry{
		At:            time.Now().UTC(),
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        req.Chat.ChatID,
		Action:        action,
		Target:        target,
		Error:         errStr,
		MetaJSON:      metaJSON,
	}
	if err := b.audit.AppendAudit(ctx, entry); err != nil {
		b.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}

// createJob validates the expression, registers the job and arms its trigger.
// Registration happens before arming so the trigger closure can capture the
// assigned job id.
func (b *Bot) createJob(ctx context.Context, req *Request, target int64, expr string, repeat schedule.RepeatMode, scheduledAt string, kind schedule.JobKind, content jobContent) (schedule.JobData, error) {
	if err := b.engine.Validate(expr); err != nil {
		return schedule.JobData{}, err
	}
	d := b.jobs.Add(schedule.JobData{
		OwnerChatID:  req.Chat.ChatID,
		TargetChatID: target,
		CronExpr:     expr,
		ContentType:  content.ContentType,
		Text:         content.Text,
		FileID:       content.FileID,
		Entities:     content.Entities,
		ScheduledAt:  scheduledAt,
		Repeat:       repeat,
		Kind:         kind,
	}, nil)

	id := d.ID
	trig, err := b.engine.Schedule(expr, func() {
		// Triggers outlive the handler's request context.
		b.jobs.Fire(context.Background(), id, b.send)
	})
	if err != nil {
		b.jobs.Remove(d.OwnerChatID, id)
		return schedule.JobData{}, err
	}
	b.jobs.AttachTrigger(id, trig)

	b.recordAudit(ctx, req, "job.add", jobTarget(id), nil, map[string]any{
		"cron":   expr,
		"target": target,
		"repeat": string(repeat),
	})
	return d, nil
}

func jobTarget(id int64) string   { return "job:" + strconv.FormatInt(id, 10) }
func postTarget(id int) string    { return "post:" + strconv.Itoa(id) }
func adminTarget(id int64) string { return "admin:" + strconv.FormatInt(id, 10) }

func fmtLocal(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02.01.2006 15:04")
}
