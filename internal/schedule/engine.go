package schedule

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "postbot/pkg/logx"
)

// DefaultTimezone is used when the config leaves the scheduler timezone empty.
const DefaultTimezone = "Europe/Warsaw"

// Engine turns 6-field cron expressions (with seconds) into periodic
// callback invocations, evaluated in one fixed named time zone so
// wall-clock schedules stay stable across DST transitions.
type Engine struct {
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	log    logx.Logger
}

func NewEngine(timezone string, log logx.Logger) (*Engine, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	tz := strings.TrimSpace(timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	e := &Engine{
		loc:    loc,
		parser: parser,
		log:    log,
	}
	e.c = cron.New(
		cron.WithLocation(loc),
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{log})),
	)
	e.c.Start()
	return e, nil
}

func (e *Engine) Location() *time.Location { return e.loc }

// Validate checks an expression without scheduling anything.
func (e *Engine) Validate(expr string) error {
	_, err := e.parser.Parse(strings.TrimSpace(expr))
	return err
}

// Next returns the first instant after from at which expr matches.
func (e *Engine) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := e.parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from.In(e.loc)), nil
}

// Schedule registers fn to run at every instant matching expr.
// A malformed expression fails here, synchronously, before anything is
// armed; callers report that error verbatim to the user.
func (e *Engine) Schedule(expr string, fn func()) (*Trigger, error) {
	sched, err := e.parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, err
	}
	id := e.c.Schedule(sched, cron.FuncJob(fn))
	return &Trigger{eng: e, id: id}, nil
}

// Close stops the underlying cron runner and waits for in-flight
// callbacks to return.
func (e *Engine) Close() {
	ctx := e.c.Stop()
	<-ctx.Done()
}

// Trigger is a live handle for one scheduled expression. Stop is
// idempotent; a stopped trigger never fires again.
type Trigger struct {
	eng *Engine

	mu      sync.Mutex
	id      cron.EntryID
	stopped bool
}

func (t *Trigger) Stop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.eng.c.Remove(t.id)
}

// cronLogger adapts logx to the cron.Logger interface used by the
// panic-recovery chain.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, logx.Any("detail", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, logx.Err(err), logx.Any("detail", kv))
}
