package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "postbot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "NONE"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v, want nil,nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestFileAuditAppendAndRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := st.AppendAudit(ctx, AuditEntry{
			At:      base.Add(time.Duration(i) * time.Minute),
			ActorID: 100,
			ChatID:  -100500,
			Action:  "job.add",
			Target:  "job:1",
		})
		if err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}

	got, err := st.RecentAudit(ctx, 2)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if !got[0].At.After(got[1].At) {
		t.Fatalf("entries not newest-first: %v, %v", got[0].At, got[1].At)
	}
}

func TestFileAuditSkipsBrokenLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	good := `{"at":"2026-04-01T10:00:00Z","actorId":1,"chatId":2,"action":"job.add"}`
	if err := os.WriteFile(path, []byte(good+"\nnot json\n"+good+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	got, err := st.RecentAudit(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
}

func TestFileDriverRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("missing path accepted")
	}
}
