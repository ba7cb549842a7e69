package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type fakeSender struct {
	mu        sync.Mutex
	delivered []JobData
	err       error
}

func (f *fakeSender) Deliver(_ context.Context, job JobData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, job)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func textJob(owner, target int64, text string) JobData {
	return JobData{
		OwnerChatID:  owner,
		TargetChatID: target,
		CronExpr:     "0 30 9 * * *",
		ContentType:  transport.ContentText,
		Text:         text,
		Repeat:       RepeatDaily,
		Kind:         JobPost,
	}
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())

	a := r.Add(textJob(1, 1, "a"), nil)
	b := r.Add(textJob(2, 2, "b"), nil)
	if b.ID <= a.ID {
		t.Fatalf("ids not monotonic: %d after %d", b.ID, a.ID)
	}
}

func TestRestoreAdvancesIDCounter(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	r.Restore([]JobData{
		{ID: 2, OwnerChatID: 1, CronExpr: "0 0 12 * * *", ContentType: transport.ContentText},
		{ID: 5, OwnerChatID: 9, CronExpr: "0 0 12 * * *", ContentType: transport.ContentText},
	})

	got := r.Add(textJob(1, 1, "new"), nil)
	if got.ID <= 5 {
		t.Fatalf("id %d not greater than restored max 5", got.ID)
	}
}

func TestOwnerGlobalConsistency(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	a := r.Add(textJob(10, 10, "a"), nil)
	b := r.Add(textJob(20, 20, "b"), nil)
	r.Add(textJob(10, 10, "c"), nil)

	for _, want := range []JobData{a, b} {
		byID, ok := r.JobByID(want.ID)
		if !ok {
			t.Fatalf("JobByID(%d) absent", want.ID)
		}
		found := 0
		for _, owner := range []int64{10, 20} {
			for _, j := range r.JobsForChat(owner) {
				if j.ID == want.ID {
					found++
					if owner != byID.OwnerChatID {
						t.Fatalf("job %d listed under owner %d, record says %d", want.ID, owner, byID.OwnerChatID)
					}
				}
			}
		}
		if found != 1 {
			t.Fatalf("job %d appears in %d owner buckets", want.ID, found)
		}
	}

	if _, ok := r.Remove(b.OwnerChatID, b.ID); !ok {
		t.Fatalf("remove failed")
	}
	if _, ok := r.JobByID(b.ID); ok {
		t.Fatalf("removed job still reachable by id")
	}
	if got := r.JobsForChat(20); len(got) != 0 {
		t.Fatalf("removed job still listed: %+v", got)
	}
}

func TestListingsSortedByID(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	for i := 0; i < 5; i++ {
		r.Add(textJob(7, 7, "x"), nil)
	}
	jobs := r.JobsForChat(7)
	for i := 1; i < len(jobs); i++ {
		if jobs[i].ID <= jobs[i-1].ID {
			t.Fatalf("listing not ascending: %v", jobs)
		}
	}
	all := r.AllJobs()
	if len(all) != 5 {
		t.Fatalf("AllJobs len = %d, want 5", len(all))
	}
}

func TestRemoveIdempotent(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	j := r.Add(textJob(1, 1, "a"), nil)

	if _, ok := r.Remove(1, j.ID); !ok {
		t.Fatalf("first remove failed")
	}
	if _, ok := r.Remove(1, j.ID); ok {
		t.Fatalf("second remove reported success")
	}
}

func TestUpdateTextClearsEntities(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	d := textJob(1, 1, "hello")
	d.Entities = []transport.Entity{{Type: "bold", Offset: 0, Length: 5}}
	j := r.Add(d, nil)

	got, ok := r.UpdateText(1, j.ID, "plain")
	if !ok {
		t.Fatalf("update failed")
	}
	if got.Text != "plain" {
		t.Fatalf("text = %q", got.Text)
	}
	if got.Entities != nil {
		t.Fatalf("entities survived a plain-text edit: %v", got.Entities)
	}

	if _, ok := r.UpdateText(1, 9999, "x"); ok {
		t.Fatalf("update of unknown job reported success")
	}
}

func TestUpdateContentPartialPatch(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	d := textJob(1, 1, "caption")
	d.ContentType = transport.ContentPhoto
	d.FileID = "file-1"
	j := r.Add(d, nil)

	// empty patch leaves everything alone
	got, ok := r.UpdateContent(j.ID, ContentPatch{})
	if !ok || got.Text != "caption" || got.FileID != "file-1" || got.ContentType != transport.ContentPhoto {
		t.Fatalf("empty patch mutated job: %+v", got)
	}

	// explicit empty text clears the caption, other fields untouched
	empty := ""
	got, ok = r.UpdateContent(j.ID, ContentPatch{Text: &empty})
	if !ok {
		t.Fatalf("patch failed")
	}
	if got.Text != "" {
		t.Fatalf("text not cleared: %q", got.Text)
	}
	if got.FileID != "file-1" || got.ContentType != transport.ContentPhoto {
		t.Fatalf("unrelated fields changed: %+v", got)
	}

	// full replacement
	kind := transport.ContentVideo
	file := "file-2"
	text := "new caption"
	got, _ = r.UpdateContent(j.ID, ContentPatch{ContentType: &kind, FileID: &file, Text: &text})
	if got.ContentType != transport.ContentVideo || got.FileID != "file-2" || got.Text != "new caption" {
		t.Fatalf("patch not applied: %+v", got)
	}

	if _, ok := r.UpdateContent(424242, ContentPatch{Text: &text}); ok {
		t.Fatalf("patch of unknown job reported success")
	}
}

func TestExpiredOneShot(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name        string
		repeat      RepeatMode
		scheduledAt string
		want        bool
	}{
		{"one-shot in the past", RepeatNone, "2026-06-01T09:00:00Z", true},
		{"one-shot exactly now", RepeatNone, "2026-06-01T12:00:00Z", true},
		{"one-shot in the future", RepeatNone, "2026-06-01T15:00:00Z", false},
		{"daily job ignores the timestamp", RepeatDaily, "2020-01-01T00:00:00Z", false},
		{"raw cron job without repeat", "", "", false},
		{"one-shot without a timestamp", RepeatNone, "", false},
		{"one-shot with a broken timestamp", RepeatNone, "yesterday", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			d := JobData{Repeat: tc.repeat, ScheduledAt: tc.scheduledAt}
			if got := d.ExpiredOneShot(now); got != tc.want {
				t.Fatalf("ExpiredOneShot = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUpdateCron(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	j := r.Add(textJob(1, 1, "a"), nil)

	// nil meta swaps only the expression
	got, ok := r.UpdateCron(j.ID, "0 0 8 * * *", nil, nil)
	if !ok {
		t.Fatalf("reschedule failed")
	}
	if got.CronExpr != "0 0 8 * * *" {
		t.Fatalf("cron = %q", got.CronExpr)
	}
	if got.Repeat != RepeatDaily || got.Kind != JobPost {
		t.Fatalf("nil meta touched repeat/kind: %+v", got)
	}

	// meta rewrites repeat, scheduledAt and kind
	got, ok = r.UpdateCron(j.ID, "0 15 7 1 6 *", &RescheduleMeta{
		Repeat:      RepeatNone,
		ScheduledAt: "2026-06-01T07:15:00Z",
		Kind:        JobPost,
	}, nil)
	if !ok {
		t.Fatalf("reschedule failed")
	}
	if got.Repeat != RepeatNone || got.ScheduledAt != "2026-06-01T07:15:00Z" {
		t.Fatalf("meta not applied: %+v", got)
	}

	if _, ok := r.UpdateCron(9999, "0 0 8 * * *", nil, nil); ok {
		t.Fatalf("reschedule of unknown job reported success")
	}
}

func TestFireOneShotSelfDeletes(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	s := &fakeSender{}

	once := textJob(1, 1, "once")
	once.Repeat = RepeatNone
	oj := r.Add(once, nil)
	dj := r.Add(textJob(1, 1, "daily"), nil)

	r.Fire(context.Background(), oj.ID, s)
	r.Fire(context.Background(), dj.ID, s)

	if s.count() != 2 {
		t.Fatalf("deliveries = %d, want 2", s.count())
	}
	if _, ok := r.JobByID(oj.ID); ok {
		t.Fatalf("one-shot job survived a successful delivery")
	}
	if _, ok := r.JobByID(dj.ID); !ok {
		t.Fatalf("daily job removed after delivery")
	}
}

func TestFireFailureRetainsOneShot(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	s := &fakeSender{err: errors.New("telegram: 429")}

	once := textJob(1, 1, "once")
	once.Repeat = RepeatNone
	j := r.Add(once, nil)

	r.Fire(context.Background(), j.ID, s)

	got, ok := r.JobByID(j.ID)
	if !ok {
		t.Fatalf("failed one-shot was removed")
	}
	if got.LastError == "" {
		t.Fatalf("delivery failure not recorded")
	}

	// next success clears the recorded error
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
	got.Repeat = RepeatDaily
	r.UpdateContent(j.ID, ContentPatch{}) // no-op, job still present
	r.Fire(context.Background(), j.ID, s)
	if _, ok := r.JobByID(j.ID); ok {
		// one-shot again, so it self-deleted on success; nothing else to check
		t.Fatalf("one-shot job survived a successful delivery")
	}
}

func TestFireMissingJobIsSilentNoop(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	s := &fakeSender{}

	j := r.Add(textJob(1, 1, "gone soon"), nil)
	r.Remove(1, j.ID)

	r.Fire(context.Background(), j.ID, s)
	if s.count() != 0 {
		t.Fatalf("delivery attempted for a removed job")
	}
}

func TestRecordFailure(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	j := r.Add(textJob(1, 1, "a"), nil)

	if !r.RecordFailure(j.ID, "boom") {
		t.Fatalf("RecordFailure failed for live job")
	}
	got, _ := r.JobByID(j.ID)
	if got.LastError != "boom" {
		t.Fatalf("LastError = %q", got.LastError)
	}
	r.RecordFailure(j.ID, "")
	got, _ = r.JobByID(j.ID)
	if got.LastError != "" {
		t.Fatalf("LastError not cleared")
	}
	if r.RecordFailure(9999, "x") {
		t.Fatalf("RecordFailure reported success for unknown job")
	}
}
