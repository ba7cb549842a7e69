package bot

import (
	"context"
	"fmt"
	"time"

	"postbot/internal/adminstore"
	"postbot/internal/config"
	"postbot/internal/messagelog"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/schedule"
	"postbot/internal/session"
	"postbot/internal/storage"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	handlerTimeout   = 30 * time.Second
)

// Deps carries everything the command layer needs. All fields except Audit
// and ConfigManager are required.
type Deps struct {
	Log      logx.Logger
	Adapter  transport.Adapter
	Jobs     *schedule.Registry
	Engine   *schedule.Engine
	Messages *messagelog.Registry
	Admins   *adminstore.Store
	Audit    storage.Store
	Config   *config.ConfigManager

	RatePerSec int
	Workers    int
	QueueSize  int
}

// Bot routes incoming updates to command, callback and free-text handlers.
// Handlers run on a fixed worker pool so a slow Telegram call cannot stall
// update intake.
type Bot struct {
	log     logx.Logger
	adapter transport.Adapter
	send    *Sender

	jobs      *schedule.Registry
	engine    *schedule.Engine
	msgs      *messagelog.Registry
	edits     *session.EditStore
	postEdits *session.PostEditStore
	wizards   *wizardStore
	admins    *adminstore.Store
	audit     storage.Store
	cfgm      *config.ConfigManager

	commands  map[string]*Command
	callbacks map[string]*CallbackRoute

	workers int
	queue   chan func()
	sup     *rtsup.Supervisor
}

func New(d Deps) *Bot {
	workers := d.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	qsize := d.QueueSize
	if qsize <= 0 {
		qsize = defaultQueueSize
	}
	b := &Bot{
		log:       d.Log,
		adapter:   d.Adapter,
		send:      NewSender(d.Adapter, d.Messages, d.RatePerSec, d.Log.With(logx.String("comp", "sender"))),
		jobs:      d.Jobs,
		engine:    d.Engine,
		msgs:      d.Messages,
		edits:     session.NewEditStore(),
		postEdits: session.NewPostEditStore(),
		wizards:   newWizardStore(),
		admins:    d.Admins,
		audit:     d.Audit,
		cfgm:      d.Config,
		commands:  map[string]*Command{},
		callbacks: map[string]*CallbackRoute{},
		workers:   workers,
		queue:     make(chan func(), qsize),
	}
	b.registerCommands()
	b.registerCallbacks()
	return b
}

// Sender exposes the tracked sender so the composition root can use it as
// the job delivery hook.
func (b *Bot) Sender() *Sender { return b.send }

func (b *Bot) Start(ctx context.Context) error {
	b.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(b.log))

	out := make(chan transport.Update, 128)
	if err := b.adapter.Start(b.sup.Context(), out); err != nil {
		b.sup.Cancel()
		return fmt.Errorf("start adapter: %w", err)
	}

	for i := 0; i < b.workers; i++ {
		b.sup.Go0(fmt.Sprintf("bot.worker.%d", i), b.workerLoop)
	}
	b.sup.Go0("bot.route", func(ctx context.Context) { b.routeLoop(ctx, out) })
	b.sup.Go0("bot.menu", b.publishMenu)
	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.sup == nil {
		return nil
	}
	b.sup.Cancel()
	if err := b.adapter.Stop(ctx); err != nil {
		b.log.Warn("adapter stop", logx.Err(err))
	}
	return b.sup.Wait(ctx)
}

func (b *Bot) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.queue:
			job()
		}
	}
}

// publishMenu pushes the visible command list to the platform menu, when the
// adapter supports it. Best effort.
func (b *Bot) publishMenu(ctx context.Context) {
	menu, ok := b.adapter.(transport.CommandMenuUpdater)
	if !ok {
		return
	}
	var cmds []transport.BotCommand
	for _, name := range commandOrder {
		c := b.commands[name]
		if c == nil || c.Hidden {
			continue
		}
		cmds = append(cmds, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := menu.UpdateMenuCommands(cctx, cmds); err != nil {
		b.log.Warn("menu update failed", logx.Err(err))
	}
}
