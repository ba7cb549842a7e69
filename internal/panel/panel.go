// Package panel serves a small read-only HTTP status page: scheduled jobs
// with their next run times, plus the recent audit trail when auditing is
// enabled.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	rtsup "postbot/internal/runtime/supervisor"
	"postbot/internal/schedule"
	"postbot/internal/storage"
	logx "postbot/pkg/logx"
)

const defaultAddr = ":3000"

type Config struct {
	Addr string
}

type Service struct {
	cfg    Config
	jobs   *schedule.Registry
	engine *schedule.Engine
	store  storage.Store // nil when auditing is off
	log    logx.Logger

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
	sup *rtsup.Supervisor

	started time.Time
}

func New(cfg Config, jobs *schedule.Registry, engine *schedule.Engine, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, jobs: jobs, engine: engine, store: store, log: log}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.started = time.Now()
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// the panel is optional; never take the app down with it
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart0("panel.serve", func(c context.Context) {
		if err := s.serveOnce(c); err != nil && c.Err() == nil {
			s.log.Warn("panel server exited", logx.Err(err))
		}
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, ln, sup := s.srv, s.ln, s.sup
	s.srv, s.ln, s.sup = nil, nil, nil
	s.mu.Unlock()

	if srv != nil {
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	if sup != nil {
		sup.Cancel()
		return sup.Wait(ctx)
	}
	return nil
}

func (s *Service) serveOnce(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer func() { _ = ln.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/audit", s.handleAudit)
	mux.HandleFunc("/", s.handleIndex)

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("panel started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

type jobView struct {
	ID        int64  `json:"id"`
	Owner     int64  `json:"ownerChatId"`
	Target    int64  `json:"targetChatId"`
	Cron      string `json:"cron"`
	Kind      string `json:"kind"`
	Repeat    string `json:"repeat,omitempty"`
	Content   string `json:"contentType"`
	Preview   string `json:"preview,omitempty"`
	NextRun   string `json:"nextRun,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

func (s *Service) jobViews() []jobView {
	jobs := s.jobs.AllJobs()
	now := time.Now()
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{
			ID:        j.ID,
			Owner:     j.OwnerChatID,
			Target:    j.TargetChatID,
			Cron:      j.CronExpr,
			Kind:      string(j.Kind),
			Repeat:    string(j.Repeat),
			Content:   string(j.ContentType),
			Preview:   clip(j.Text, 80),
			LastError: j.LastError,
		}
		if next, err := s.engine.Next(j.CronExpr, now); err == nil {
			v.NextRun = next.Format(time.RFC3339)
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, k int) bool { return views[i].ID < views[k].ID })
	return views
}

func (s *Service) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"jobs":   s.jobViews(),
	})
}

func (s *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "auditing disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be 1..500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.store.RecentAudit(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"audit": entries})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>postbot</title>
<style>
body{font-family:sans-serif;margin:2em;color:#222}
table{border-collapse:collapse;width:100%}
td,th{border:1px solid #ccc;padding:4px 8px;text-align:left;font-size:14px}
th{background:#f4f4f4}
.err{color:#b00}
</style></head><body>
<h1>postbot</h1>
<p>uptime {{.Uptime}} &middot; {{len .Jobs}} job(s)</p>
<table>
<tr><th>id</th><th>cron</th><th>next run</th><th>target</th><th>type</th><th>preview</th><th>last error</th></tr>
{{range .Jobs}}
<tr><td>{{.ID}}</td><td>{{.Cron}}</td><td>{{.NextRun}}</td><td>{{.Target}}</td><td>{{.Content}}</td><td>{{.Preview}}</td><td class="err">{{.LastError}}</td></tr>
{{end}}
</table>
</body></html>`))

func (s *Service) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTmpl.Execute(w, struct {
		Uptime string
		Jobs   []jobView
	}{
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Jobs:   s.jobViews(),
	})
	if err != nil {
		s.log.Warn("panel render failed", logx.Err(err))
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s…", string(r[:n-1]))
}
