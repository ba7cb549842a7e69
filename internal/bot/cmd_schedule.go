package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"postbot/internal/messagelog"
	"postbot/internal/schedule"
	"postbot/internal/transport"
)

// quoted cron expression followed by optional post text
var scheduleArgRe = regexp.MustCompile(`(?s)^"([^"]+)"(?:\s+(.+))?$`)

const scheduleUsage = `Usage: /schedule "<cron>" <text>
or reply to a message with /schedule "<cron>".

Example: /schedule "0 30 9 * * 1" Weekly reminder
See /cron_help for the expression syntax.`

func (b *Bot) cmdSchedule(ctx context.Context, req *Request) error {
	return b.scheduleWithCron(ctx, req, req.Chat.ChatID)
}

func (b *Bot) cmdScheduleChannel(ctx context.Context, req *Request) error {
	ch := b.admins.Channel()
	if ch == 0 {
		return b.replyText(ctx, req, "No channel configured. Use /set_channel first.")
	}
	return b.scheduleWithCron(ctx, req, ch)
}

func (b *Bot) scheduleWithCron(ctx context.Context, req *Request, target int64) error {
	m := scheduleArgRe.FindStringSubmatch(req.ArgText)
	if m == nil {
		return b.replyText(ctx, req, scheduleUsage)
	}
	expr, text := m[1], strings.TrimSpace(m[2])

	var content jobContent
	switch {
	case text != "":
		content = jobContent{ContentType: transport.ContentText, Text: text}
	case req.Msg.ReplyTo != nil:
		var ok bool
		content, ok = extractContent(req.Msg.ReplyTo)
		if !ok {
			return b.replyText(ctx, req, "The replied-to message has no schedulable content.")
		}
	default:
		return b.replyText(ctx, req, scheduleUsage)
	}

	d, err := b.createJob(ctx, req, target, expr, "", "", schedule.JobCron, content)
	if err != nil {
		return b.replyText(ctx, req, "Invalid cron expression: "+err.Error())
	}

	next, _ := b.engine.Next(d.CronExpr, time.Now())
	dest := b.destinationLabel(req.Chat.ChatID, target)
	return b.replyText(ctx, req, fmt.Sprintf(
		"✅ Job #%d scheduled (%s) → %s.\nNext run: %s",
		d.ID, d.CronExpr, dest, fmtLocal(next, b.engine.Location())))
}

func (b *Bot) cmdWizard(ctx context.Context, req *Request) error {
	content, ok := extractContent(req.Msg.ReplyTo)
	if !ok {
		return b.replyText(ctx, req, "Reply to the message you want to schedule with /wizard.")
	}
	b.wizards.Start(req.Chat.ChatID, req.FromID, content)
	return b.replyMarkup(ctx, req, "How often should this post go out?", keyboard(
		row(
			btn("🕐 Once", "wizard", "mode:once"),
			btn("📅 Daily", "wizard", "mode:daily"),
			btn("🗓 Weekly", "wizard", "mode:weekly"),
		),
		row(btn("✖️ Cancel", "wizard", "cancel")),
	))
}

const wizardChannelUsage = `Usage (as a reply to the message to schedule):
/wizard_channel once YYYY-MM-DD HH:MM
/wizard_channel daily HH:MM
/wizard_channel weekly DAY HH:MM`

func (b *Bot) cmdWizardChannel(ctx context.Context, req *Request) error {
	ch := b.admins.Channel()
	if ch == 0 {
		return b.replyText(ctx, req, "No channel configured. Use /set_channel first.")
	}
	content, ok := extractContent(req.Msg.ReplyTo)
	if !ok {
		return b.replyText(ctx, req, wizardChannelUsage)
	}
	if len(req.Args) < 2 {
		return b.replyText(ctx, req, wizardChannelUsage)
	}
	mode := wizardMode(strings.ToLower(req.Args[0]))
	if mode != modeOnce && mode != modeDaily && mode != modeWeekly {
		return b.replyText(ctx, req, wizardChannelUsage)
	}
	when, err := parseWhen(mode, strings.Join(req.Args[1:], " "), b.engine.Location(), time.Now())
	if err != nil {
		return b.replyText(ctx, req, "⚠️ "+err.Error())
	}

	expr, repeat, at := cronFor(mode, when)
	d, err := b.createJob(ctx, req, ch, expr, repeat, at, schedule.JobPost, content)
	if err != nil {
		return b.replyText(ctx, req, "Failed to schedule: "+err.Error())
	}
	return b.replyText(ctx, req, fmt.Sprintf("✅ Job #%d scheduled (%s) → channel.", d.ID, modeLabel(mode)))
}

func (b *Bot) cmdTestPost(ctx context.Context, req *Request) error {
	var content jobContent
	if c, ok := extractContent(req.Msg.ReplyTo); ok {
		content = c
	} else if req.ArgText != "" {
		content = jobContent{ContentType: transport.ContentText, Text: req.ArgText}
	} else {
		return b.replyText(ctx, req, "Reply to a message with /test_post, or pass text: /test_post hello.")
	}

	origin := messagelog.Origin{Kind: messagelog.OriginTestPost}
	opt := &transport.SendOptions{Entities: content.Entities}
	var err error
	if content.ContentType == transport.ContentText {
		_, err = b.send.SendText(ctx, req.Chat, content.Text, opt, origin)
	} else {
		media := transport.Media{Kind: content.ContentType, FileID: content.FileID}
		_, err = b.send.SendMedia(ctx, req.Chat, media, content.Text, opt, origin)
	}
	if err != nil {
		return b.replyText(ctx, req, "Failed to post: "+err.Error())
	}
	return nil
}

func (b *Bot) cmdListJobs(ctx context.Context, req *Request) error {
	jobs := b.jobs.JobsForChat(req.Chat.ChatID)
	if len(jobs) == 0 {
		return b.replyText(ctx, req, "No scheduled jobs in this chat.")
	}
	if err := b.replyText(ctx, req, fmt.Sprintf("Scheduled jobs (%d):", len(jobs))); err != nil {
		return err
	}
	for _, j := range jobs {
		id := strconv.FormatInt(j.ID, 10)
		err := b.replyMarkup(ctx, req, b.describeJob(j, req.Chat.ChatID), keyboard(
			row(
				btn("✏️ Edit text", "jobedit", id),
				btn("⏹ Cancel", "jobstop", id),
			),
		))
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) describeJob(j schedule.JobData, viewerChat int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d • %s → %s\n", j.ID, b.describeRepeat(j), b.destinationLabel(viewerChat, j.TargetChatID))
	fmt.Fprintf(&sb, "cron: %s", j.CronExpr)
	if next, err := b.engine.Next(j.CronExpr, time.Now()); err == nil {
		fmt.Fprintf(&sb, " (next: %s)", fmtLocal(next, b.engine.Location()))
	}
	sb.WriteString("\n")
	if preview := previewText(j.Text, j.ContentType); preview != "" {
		sb.WriteString(preview)
	}
	if j.LastError != "" {
		fmt.Fprintf(&sb, "\n⚠️ last delivery failed: %s", j.LastError)
	}
	return sb.String()
}

func (b *Bot) describeRepeat(j schedule.JobData) string {
	switch j.Repeat {
	case schedule.RepeatNone:
		if t, err := time.Parse(time.RFC3339, j.ScheduledAt); err == nil {
			return "once at " + fmtLocal(t, b.engine.Location())
		}
		return "once"
	case schedule.RepeatDaily:
		return "daily"
	case schedule.RepeatWeekly:
		return "weekly"
	case schedule.RepeatMonthly:
		return "monthly"
	default:
		return "recurring"
	}
}

func (b *Bot) destinationLabel(viewerChat, target int64) string {
	switch target {
	case viewerChat:
		return "this chat"
	case b.admins.Channel():
		return "channel"
	default:
		return strconv.FormatInt(target, 10)
	}
}

func previewText(text string, kind transport.ContentKind) string {
	icon := ""
	switch kind {
	case transport.ContentPhoto:
		icon = "🖼 "
	case transport.ContentVideo:
		icon = "🎬 "
	case transport.ContentAnimation:
		icon = "🎞 "
	case transport.ContentDocument:
		icon = "📎 "
	}
	t := truncate(strings.TrimSpace(text), 60)
	if t == "" && icon == "" {
		return ""
	}
	return icon + t
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (b *Bot) cmdCancelJob(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return b.replyText(ctx, req, "Usage: /cancel_job <id>. See /list_jobs.")
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	if err != nil {
		return b.replyText(ctx, req, "Job id must be a number.")
	}
	d, ok := b.jobs.Remove(req.Chat.ChatID, id)
	b.recordAudit(ctx, req, "job.remove", jobTarget(id), nil, nil)
	if !ok {
		return b.replyText(ctx, req, fmt.Sprintf("Job #%d not found in this chat.", id))
	}
	return b.replyText(ctx, req, fmt.Sprintf("🗑 Job #%d cancelled (%s).", d.ID, d.CronExpr))
}

func (b *Bot) cmdStats(ctx context.Context, req *Request) error {
	jobs := b.jobs.JobsForChat(req.Chat.ChatID)
	if len(jobs) == 0 {
		return b.replyText(ctx, req, "No scheduled jobs in this chat.")
	}

	var toChat, toChannel, toOther int
	byRepeat := map[string]int{}
	hours := map[int]int{}
	dows := map[int]int{}
	var soonest time.Time

	ch := b.admins.Channel()
	now := time.Now()
	for _, j := range jobs {
		switch j.TargetChatID {
		case req.Chat.ChatID:
			toChat++
		case ch:
			toChannel++
		default:
			toOther++
		}
		byRepeat[b.describeRepeatShort(j)]++

		if f := strings.Fields(j.CronExpr); len(f) == 6 {
			if h, err := strconv.Atoi(f[2]); err == nil {
				hours[h]++
			}
			if d, err := strconv.Atoi(f[5]); err == nil {
				dows[d]++
			}
		}
		if next, err := b.engine.Next(j.CronExpr, now); err == nil {
			if soonest.IsZero() || next.Before(soonest) {
				soonest = next
			}
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 %d scheduled job(s)\n", len(jobs))
	fmt.Fprintf(&sb, "Destinations: %d this chat, %d channel, %d other\n", toChat, toChannel, toOther)

	sb.WriteString("By mode: ")
	sb.WriteString(joinCounts(byRepeat))
	sb.WriteString("\n")

	if len(hours) > 0 {
		sb.WriteString("By hour: ")
		sb.WriteString(joinIntCounts(hours, func(h int) string { return fmt.Sprintf("%02d:xx", h) }))
		sb.WriteString("\n")
	}
	if len(dows) > 0 {
		names := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
		sb.WriteString("By weekday: ")
		sb.WriteString(joinIntCounts(dows, func(d int) string {
			if d >= 0 && d < len(names) {
				return names[d]
			}
			return strconv.Itoa(d)
		}))
		sb.WriteString("\n")
	}
	if !soonest.IsZero() {
		fmt.Fprintf(&sb, "Next run: %s", fmtLocal(soonest, b.engine.Location()))
	}
	return b.replyText(ctx, req, sb.String())
}

func (b *Bot) describeRepeatShort(j schedule.JobData) string {
	if j.Repeat == "" {
		return "cron"
	}
	return string(j.Repeat)
}

func joinCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func joinIntCounts(m map[int]int, label func(int) string) string {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", label(k), m[k]))
	}
	return strings.Join(parts, ", ")
}
