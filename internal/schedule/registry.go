package schedule

import (
	"context"
	"sort"
	"sync"

	logx "postbot/pkg/logx"
)

// Snapshot mirrors the registry to durable storage. The in-memory
// registry is authoritative; Save is best effort and asynchronous, and
// a failed write is logged by the implementation, never surfaced to the
// mutating caller. Load is consulted exactly once, at startup.
type Snapshot interface {
	Save(jobs []JobData)
	Load() ([]JobData, error)
}

// Sender delivers a job's content to its target chat. Implemented by
// the bot layer on top of the transport adapter.
type Sender interface {
	Deliver(ctx context.Context, job JobData) error
}

// Registry is the authoritative store of scheduled jobs. It owns both
// the job records and their live trigger handles; all mutation goes
// through its methods.
type Registry struct {
	mu      sync.Mutex
	byOwner map[int64]map[int64]*job
	nextID  int64
	store   Snapshot
	log     logx.Logger
}

func NewRegistry(store Snapshot, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		byOwner: map[int64]map[int64]*job{},
		nextID:  1,
		store:   store,
		log:     log,
	}
}

// Add registers a new job, assigns the next id and wires the given live
// trigger. The expression is assumed valid; callers validate it when
// constructing trig. Returns the stored definition.
func (r *Registry) Add(d JobData, trig *Trigger) JobData {
	r.mu.Lock()
	d.ID = r.nextID
	r.nextID++
	bucket := r.byOwner[d.OwnerChatID]
	if bucket == nil {
		bucket = map[int64]*job{}
		r.byOwner[d.OwnerChatID] = bucket
	}
	bucket[d.ID] = &job{data: d, trig: trig}
	out := d
	r.persistLocked()
	r.mu.Unlock()

	r.log.Info("job added",
		logx.Int64("job_id", out.ID),
		logx.Int64("owner", out.OwnerChatID),
		logx.Int64("target", out.TargetChatID),
		logx.String("cron", out.CronExpr),
		logx.String("repeat", string(out.Repeat)),
	)
	return out
}

// JobsForChat lists the jobs owned by a chat, ascending by id.
func (r *Registry) JobsForChat(owner int64) []JobData {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket := r.byOwner[owner]
	out := make([]JobData, 0, len(bucket))
	for _, j := range bucket {
		out = append(out, j.data)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Job looks a job up within one owner bucket.
func (r *Registry) Job(owner, id int64) (JobData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j := r.byOwner[owner][id]; j != nil {
		return j.data, true
	}
	return JobData{}, false
}

// JobByID scans all owners. Fine at this scale; listings stay small.
func (r *Registry) JobByID(id int64) (JobData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j := r.findLocked(id); j != nil {
		return j.data, true
	}
	return JobData{}, false
}

// AllJobs lists every registered job, ascending by id.
func (r *Registry) AllJobs() []JobData {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []JobData
	for _, bucket := range r.byOwner {
		for _, j := range bucket {
			out = append(out, j.data)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// UpdateText replaces the job's text and clears its formatting spans.
// Plain-text edits cannot carry the original formatting, so dropping it
// is the documented behavior, not an accident.
func (r *Registry) UpdateText(owner, id int64, text string) (JobData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.byOwner[owner][id]
	if j == nil {
		return JobData{}, false
	}
	j.data.Text = text
	j.data.Entities = nil
	r.persistLocked()
	return j.data, true
}

// UpdateContent applies a partial content patch. Nil patch fields are
// left untouched; non-nil zero values clear the stored field.
func (r *Registry) UpdateContent(id int64, patch ContentPatch) (JobData, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.findLocked(id)
	if j == nil {
		return JobData{}, false
	}
	if patch.ContentType != nil {
		j.data.ContentType = *patch.ContentType
	}
	if patch.Text != nil {
		j.data.Text = *patch.Text
	}
	if patch.FileID != nil {
		j.data.FileID = *patch.FileID
	}
	if patch.Entities != nil {
		j.data.Entities = *patch.Entities
	}
	r.persistLocked()
	return j.data, true
}

// Remove stops the job's trigger, drops it from the registry and
// persists. Removing an absent job returns false and does nothing.
func (r *Registry) Remove(owner, id int64) (JobData, bool) {
	r.mu.Lock()
	bucket := r.byOwner[owner]
	j := bucket[id]
	if j == nil {
		r.mu.Unlock()
		return JobData{}, false
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(r.byOwner, owner)
	}
	out := j.data
	trig := j.trig
	r.persistLocked()
	r.mu.Unlock()

	// Stop outside the lock: Remove may be called from inside a fire
	// callback and cron entry removal must not deadlock against it.
	trig.Stop()
	r.log.Info("job removed", logx.Int64("job_id", id), logx.Int64("owner", owner))
	return out, true
}

// UpdateCron swaps the job's trigger for newTrig and rewrites the
// stored expression, optionally together with its repeat metadata.
// The caller constructs newTrig first so a malformed expression fails
// before anything here changes.
func (r *Registry) UpdateCron(id int64, expr string, meta *RescheduleMeta, newTrig *Trigger) (JobData, bool) {
	r.mu.Lock()
	j := r.findLocked(id)
	if j == nil {
		r.mu.Unlock()
		newTrig.Stop()
		return JobData{}, false
	}
	old := j.trig
	j.trig = newTrig
	j.data.CronExpr = expr
	if meta != nil {
		j.data.Repeat = meta.Repeat
		j.data.ScheduledAt = meta.ScheduledAt
		if meta.Kind != "" {
			j.data.Kind = meta.Kind
		}
	}
	out := j.data
	r.persistLocked()
	r.mu.Unlock()

	old.Stop()
	r.log.Info("job rescheduled", logx.Int64("job_id", id), logx.String("cron", expr))
	return out, true
}

// AttachTrigger hands a restored job its fresh trigger. Used by the
// startup re-arm walk; a previous trigger, if any, is stopped.
func (r *Registry) AttachTrigger(id int64, trig *Trigger) bool {
	r.mu.Lock()
	j := r.findLocked(id)
	if j == nil {
		r.mu.Unlock()
		trig.Stop()
		return false
	}
	old := j.trig
	j.trig = trig
	r.mu.Unlock()
	old.Stop()
	return true
}

// RecordFailure stores the latest delivery error on the job (empty
// message clears it) so listings can show stuck jobs. Persists.
func (r *Registry) RecordFailure(id int64, msg string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.findLocked(id)
	if j == nil {
		return false
	}
	if j.data.LastError == msg {
		return true
	}
	j.data.LastError = msg
	r.persistLocked()
	return true
}

// Restore rebuilds the registry from persisted definitions and advances
// the id counter past the highest restored id. No triggers are armed
// here; the composition root walks the restored jobs and attaches fresh
// handles before the engine can fire anything.
func (r *Registry) Restore(jobs []JobData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range jobs {
		bucket := r.byOwner[d.OwnerChatID]
		if bucket == nil {
			bucket = map[int64]*job{}
			r.byOwner[d.OwnerChatID] = bucket
		}
		bucket[d.ID] = &job{data: d}
		if d.ID >= r.nextID {
			r.nextID = d.ID + 1
		}
	}
	r.log.Info("jobs restored", logx.Int("count", len(jobs)), logx.Int64("next_id", r.nextID))
}

// Fire is the trigger callback body for the job with the given id. It
// re-fetches the live record on every tick, so a job edited or removed
// after scheduling is observed: absence is a silent no-op. A one-shot
// job is removed after a successful delivery only; a failed one-shot
// stays registered with its error recorded.
func (r *Registry) Fire(ctx context.Context, id int64, send Sender) {
	d, ok := r.JobByID(id)
	if !ok {
		r.log.Debug("fire skipped, job gone", logx.Int64("job_id", id))
		return
	}
	if err := send.Deliver(ctx, d); err != nil {
		r.log.Warn("job delivery failed",
			logx.Int64("job_id", id),
			logx.Int64("target", d.TargetChatID),
			logx.Err(err),
		)
		r.RecordFailure(id, err.Error())
		return
	}
	r.log.Info("job delivered", logx.Int64("job_id", id), logx.Int64("target", d.TargetChatID))
	if d.Repeat == RepeatNone {
		r.Remove(d.OwnerChatID, id)
		return
	}
	if d.LastError != "" {
		r.RecordFailure(id, "")
	}
}

// StopAll stops every live trigger. Called on shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	var trigs []*Trigger
	for _, bucket := range r.byOwner {
		for _, j := range bucket {
			if j.trig != nil {
				trigs = append(trigs, j.trig)
				j.trig = nil
			}
		}
	}
	r.mu.Unlock()
	for _, t := range trigs {
		t.Stop()
	}
}

func (r *Registry) findLocked(id int64) *job {
	for _, bucket := range r.byOwner {
		if j := bucket[id]; j != nil {
			return j
		}
	}
	return nil
}

func (r *Registry) persistLocked() {
	if r.store == nil {
		return
	}
	var out []JobData
	for _, bucket := range r.byOwner {
		for _, j := range bucket {
			out = append(out, j.data)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	r.store.Save(out)
}
