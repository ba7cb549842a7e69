package schedule

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")

	snap := NewFileSnapshot(path, logx.Nop())
	r := NewRegistry(snap, logx.Nop())
	r.Add(JobData{
		OwnerChatID:  100,
		TargetChatID: 100,
		CronExpr:     "0 30 9 * * *",
		ContentType:  transport.ContentText,
		Text:         "hi",
		Repeat:       RepeatDaily,
		Kind:         JobPost,
	}, nil)
	snap.Wait()

	fresh := NewFileSnapshot(path, logx.Nop())
	jobs, err := fresh.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r2 := NewRegistry(fresh, logx.Nop())
	r2.Restore(jobs)

	got := r2.JobsForChat(100)
	if len(got) != 1 {
		t.Fatalf("restored %d jobs, want 1", len(got))
	}
	if got[0].CronExpr != "0 30 9 * * *" || got[0].Text != "hi" {
		t.Fatalf("restored job differs: %+v", got[0])
	}

	next := r2.Add(JobData{OwnerChatID: 100, TargetChatID: 100, CronExpr: "0 0 12 * * *", ContentType: transport.ContentText}, nil)
	if next.ID <= got[0].ID {
		t.Fatalf("next id %d not greater than restored %d", next.ID, got[0].ID)
	}
}

func TestSnapshotMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	snap := NewFileSnapshot(filepath.Join(t.TempDir(), "nope.json"), logx.Nop())
	jobs, err := snap.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("jobs = %v, want empty", jobs)
	}
}

func TestSnapshotShapeMismatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte(`{"jobs": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := NewFileSnapshot(path, logx.Nop())
	if _, err := snap.Load(); err == nil || !strings.Contains(err.Error(), "array") {
		t.Fatalf("err = %v, want shape-mismatch error", err)
	}
}

func TestSnapshotMalformedFallsBackToEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	if err := os.WriteFile(path, []byte(`[{"id": 1,`), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := NewFileSnapshot(path, logx.Nop())
	jobs, err := snap.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("jobs = %v, want empty", jobs)
	}
}

func TestSnapshotWriteIsAtomic(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "jobs.json")
	snap := NewFileSnapshot(path, logx.Nop())
	snap.Save([]JobData{{ID: 1, OwnerChatID: 1, CronExpr: "0 * * * * *", ContentType: transport.ContentText}})
	snap.Wait()

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	jobs, err := snap.Load()
	if err != nil || len(jobs) != 1 {
		t.Fatalf("jobs = %v, err = %v", jobs, err)
	}
}
