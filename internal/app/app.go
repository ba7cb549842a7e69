package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"postbot/internal/adminstore"
	"postbot/internal/bot"
	"postbot/internal/config"
	"postbot/internal/messagelog"
	"postbot/internal/panel"
	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/schedule"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	telegram "postbot/internal/transport/telegram/adapter"
	logx "postbot/pkg/logx"
)

const defaultDataDir = "./data"

// App wires the whole bot together: config, logging, the Telegram adapter,
// the job registry with its trigger engine and snapshot, the admin store,
// the command layer and the optional audit store and status panel.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	engine  *schedule.Engine
	snap    *schedule.FileSnapshot
	jobs    *schedule.Registry
	msgs    *messagelog.Registry
	admins  *adminstore.Store
	store   storage.Store

	bot   *bot.Bot
	panel *panel.Service
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	dataDir := strings.TrimSpace(cfg.Data.Dir)
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	eng, err := schedule.NewEngine(cfg.Scheduler.Timezone, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return nil, err
	}
	snap := schedule.NewFileSnapshot(filepath.Join(dataDir, "jobs.json"), log.With(logx.String("comp", "snapshot")))
	jobs := schedule.NewRegistry(snap, log.With(logx.String("comp", "jobs")))
	msgs := messagelog.NewRegistry(log.With(logx.String("comp", "messages")))

	admins := adminstore.Open(filepath.Join(dataDir, "config.json"),
		cfg.Telegram.AdminIDs, cfg.Telegram.ChannelID,
		log.With(logx.String("comp", "admins")))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("audit storage enabled", logx.String("driver", sc.Driver))
	}

	ratePerSec := 0
	if cfg.Sender != nil {
		ratePerSec = cfg.Sender.RatePerSec
	}
	bt := bot.New(bot.Deps{
		Log:        log.With(logx.String("comp", "bot")),
		Adapter:    ad,
		Jobs:       jobs,
		Engine:     eng,
		Messages:   msgs,
		Admins:     admins,
		Audit:      store,
		Config:     cfgm,
		RatePerSec: ratePerSec,
	})

	var pnl *panel.Service
	if cfg.Panel != nil && cfg.Panel.Enabled {
		pnl = panel.New(panel.Config{Addr: cfg.Panel.Addr},
			jobs, eng, store, log.With(logx.String("comp", "panel")))
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		engine:  eng,
		snap:    snap,
		jobs:    jobs,
		msgs:    msgs,
		admins:  admins,
		store:   store,
		bot:     bt,
		panel:   pnl,
	}, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.restoreJobs(); err != nil {
		return err
	}

	if err := a.bot.Start(a.sup.Context()); err != nil {
		return err
	}

	if a.panel != nil {
		a.panel.Start(a.sup.Context())
	}

	// hot reload: logging applies live, everything else needs a restart
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// restoreJobs loads the snapshot and re-arms a trigger for every stored job.
// A job whose stored expression no longer parses, or a one-shot whose fire
// time already passed, stays visible in listings but is left unarmed.
func (a *App) restoreJobs() error {
	data, err := a.snap.Load()
	if err != nil {
		return fmt.Errorf("load job snapshot: %w", err)
	}
	a.jobs.Restore(data)

	send := a.bot.Sender()
	armed := 0
	now := time.Now()
	for _, j := range a.jobs.AllJobs() {
		id := j.ID
		if j.ExpiredOneShot(now) {
			a.log.Warn("one-shot job missed its fire time while offline, leaving it unarmed",
				logx.Int64("job_id", id),
				logx.String("scheduled_at", j.ScheduledAt),
			)
			continue
		}
		trig, err := a.engine.Schedule(j.CronExpr, func() {
			a.jobs.Fire(context.Background(), id, send)
		})
		if err != nil {
			a.log.Warn("stored job has unparseable cron, leaving it unarmed",
				logx.Int64("job_id", id),
				logx.String("cron", j.CronExpr),
				logx.Err(err),
			)
			continue
		}
		a.jobs.AttachTrigger(id, trig)
		armed++
	}
	if len(data) > 0 {
		a.log.Info("jobs restored", logx.Int("total", len(data)), logx.Int("armed", armed))
	}
	return nil
}

func (a *App) applyConfig(old, cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if old != nil {
		if old.Telegram.Token != cfg.Telegram.Token {
			a.log.Warn("telegram.token changed; restart required")
		}
		if old.Scheduler.Timezone != cfg.Scheduler.Timezone {
			a.log.Warn("scheduler.timezone changed; restart required")
		}
		if fmt.Sprint(old.Storage) != fmt.Sprint(cfg.Storage) {
			a.log.Warn("storage config changed; restart required")
		}
	}
	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Bounded shutdown steps so one component cannot stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("bot", 3*time.Second, func(c context.Context) error { return a.bot.Stop(c) })
	if a.panel != nil {
		step("panel", 2*time.Second, func(c context.Context) error { return a.panel.Stop(c) })
	}
	step("triggers", 2*time.Second, func(c context.Context) error {
		a.jobs.StopAll()
		a.engine.Close()
		return nil
	})
	step("snapshot", 2*time.Second, func(c context.Context) error {
		a.snap.Wait()
		a.admins.Wait()
		return nil
	})
	if a.store != nil {
		step("storage", 1*time.Second, func(c context.Context) error { return a.store.Close() })
	}
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, true, nil
}
