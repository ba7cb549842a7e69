package session

import (
	"testing"

	"postbot/internal/transport"
)

func TestEditStoreConsumeOnce(t *testing.T) {
	t.Parallel()
	s := NewEditStore()
	s.StartMessage(10, 20, 42)

	e, ok := s.Take(10, 20)
	if !ok {
		t.Fatalf("session absent")
	}
	mt, isMsg := e.Target.(MessageTarget)
	if !isMsg || mt.MessageID != 42 {
		t.Fatalf("target = %#v, want MessageTarget{42}", e.Target)
	}

	if _, ok := s.Take(10, 20); ok {
		t.Fatalf("session consumed twice")
	}
}

func TestEditStoreLastWriterWins(t *testing.T) {
	t.Parallel()
	s := NewEditStore()
	s.StartMessage(1, 2, 7)
	s.StartJob(1, 2, 99)

	e, ok := s.Take(1, 2)
	if !ok {
		t.Fatalf("session absent")
	}
	jt, isJob := e.Target.(JobTarget)
	if !isJob || jt.JobID != 99 {
		t.Fatalf("target = %#v, want JobTarget{99}", e.Target)
	}
}

func TestEditStoreKeyedByChatAndUser(t *testing.T) {
	t.Parallel()
	s := NewEditStore()
	s.StartMessage(1, 2, 7)

	if _, ok := s.Get(1, 3); ok {
		t.Fatalf("session visible to another user")
	}
	if _, ok := s.Get(9, 2); ok {
		t.Fatalf("session visible in another chat")
	}
	if _, ok := s.Get(1, 2); !ok {
		t.Fatalf("session missing for its own key")
	}
}

func TestEditStoreClear(t *testing.T) {
	t.Parallel()
	s := NewEditStore()
	s.StartJob(1, 2, 5)
	s.Clear(1, 2)
	if _, ok := s.Take(1, 2); ok {
		t.Fatalf("cleared session still present")
	}
	s.Clear(1, 2) // clearing an idle key is fine
}

func TestPostEditStoreIndependentOfEditStore(t *testing.T) {
	t.Parallel()
	es := NewEditStore()
	ps := NewPostEditStore()
	es.StartMessage(1, 2, 7)
	ps.Start(1, 2, 8, transport.ContentPhoto)

	pe, ok := ps.Take(1, 2)
	if !ok || pe.MessageID != 8 || pe.Expect != transport.ContentPhoto {
		t.Fatalf("post session wrong: %+v, %v", pe, ok)
	}
	if _, ok := es.Get(1, 2); !ok {
		t.Fatalf("edit session disturbed by post session")
	}
}

func TestPostEditStoreConsumeOnce(t *testing.T) {
	t.Parallel()
	s := NewPostEditStore()
	s.Start(3, 4, 11, transport.ContentText)

	if _, ok := s.Take(3, 4); !ok {
		t.Fatalf("session absent")
	}
	if _, ok := s.Take(3, 4); ok {
		t.Fatalf("session consumed twice")
	}
}
