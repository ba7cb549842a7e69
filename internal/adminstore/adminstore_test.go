package adminstore

import (
	"path/filepath"
	"testing"

	logx "postbot/pkg/logx"
)

func TestSeedAndMutate(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "admins.json")
	s := Open(path, []int64{100}, 0, logx.Nop())
	defer s.Wait()

	if !s.IsAdmin(100) {
		t.Fatalf("seeded admin not recognized")
	}
	if s.IsAdmin(200) {
		t.Fatalf("unknown user is admin")
	}

	if !s.Add(200) {
		t.Fatalf("add failed")
	}
	if s.Add(200) {
		t.Fatalf("duplicate add succeeded")
	}
	if !s.Remove(200) {
		t.Fatalf("remove failed")
	}
	if s.Remove(200) {
		t.Fatalf("double remove succeeded")
	}
}

func TestSeededAdminCannotBeRemoved(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "admins.json")
	s := Open(path, []int64{100}, 0, logx.Nop())

	if s.Remove(100) {
		t.Fatalf("config-seeded admin was removed")
	}
	if !s.IsAdmin(100) {
		t.Fatalf("seeded admin lost rights")
	}
	if !s.IsSeeded(100) || s.IsSeeded(999) {
		t.Fatalf("IsSeeded wrong")
	}
}

func TestPersistRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "admins.json")

	s := Open(path, []int64{100}, 0, logx.Nop())
	s.Add(200)
	s.SetChannel(-1001234)
	s.Wait()

	s2 := Open(path, []int64{100}, 0, logx.Nop())
	if !s2.IsAdmin(200) {
		t.Fatalf("runtime admin lost across restart")
	}
	if got := s2.Channel(); got != -1001234 {
		t.Fatalf("channel = %d, want -1001234", got)
	}
	if got := s2.Admins(); len(got) != 2 || got[0] != 100 || got[1] != 200 {
		t.Fatalf("admins = %v", got)
	}
}

func TestChannelSeedUsedWhenFileHasNone(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "admins.json")
	s := Open(path, nil, -42, logx.Nop())
	if got := s.Channel(); got != -42 {
		t.Fatalf("channel = %d, want -42", got)
	}

	// persisted channel wins over the seed on the next start
	s.SetChannel(-77)
	s.Wait()
	s2 := Open(path, nil, -42, logx.Nop())
	if got := s2.Channel(); got != -77 {
		t.Fatalf("channel = %d, want -77", got)
	}
}

func TestMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()
	s := Open(filepath.Join(t.TempDir(), "nope.json"), nil, 0, logx.Nop())
	if got := s.Admins(); len(got) != 0 {
		t.Fatalf("admins = %v, want empty", got)
	}
}

func TestEmptyListAllowsBootstrap(t *testing.T) {
	t.Parallel()
	s := Open(filepath.Join(t.TempDir(), "admins.json"), nil, 0, logx.Nop())
	defer s.Wait()

	if !s.IsAdmin(123) {
		t.Fatalf("empty allowlist should let anyone through")
	}
	s.Add(100)
	if s.IsAdmin(123) {
		t.Fatalf("non-admin passes after the first admin was added")
	}
	if !s.IsAdmin(100) {
		t.Fatalf("bootstrapped admin not recognized")
	}
}
