package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"postbot/internal/messagelog"
	"postbot/internal/schedule"
	"postbot/internal/transport"
	logx "postbot/pkg/logx"
)

// fakeAdapter records outbound calls; sends get synthetic message ids.
type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	edits   int
	deletes int
	nextID  int
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.nextID++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1000 + f.nextID}, nil
}

func (f *fakeAdapter) SendMedia(_ context.Context, to transport.ChatTarget, _ transport.Media, caption string, _ *transport.SendOptions) (transport.MessageRef, error) {
	return f.SendText(context.Background(), to, caption, nil)
}

func (f *fakeAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	return nil
}

func (f *fakeAdapter) EditMedia(context.Context, transport.MessageRef, transport.Media, string, *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits++
	return nil
}

func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAdapter) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.edits
}

func newTestBot(t *testing.T, fa *fakeAdapter) *Bot {
	t.Helper()
	eng, err := schedule.NewEngine("UTC", logx.Nop())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return New(Deps{
		Log:      logx.Nop(),
		Adapter:  fa,
		Jobs:     schedule.NewRegistry(nil, logx.Nop()),
		Engine:   eng,
		Messages: messagelog.NewRegistry(logx.Nop()),
	})
}

func textRequest(chat, from int64, text string, media *transport.Media) *Request {
	return &Request{
		Msg:    &transport.Message{ChatID: chat, FromID: from, Text: text, Media: media},
		Chat:   transport.ChatTarget{ChatID: chat},
		FromID: from,
		Log:    logx.Nop(),
	}
}

func TestPostEditRejectsTextForPhotoPost(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	b := newTestBot(t, fa)

	b.msgs.Add(10, 1, "caption", transport.ContentPhoto, "photo-1", messagelog.Origin{Kind: messagelog.OriginTestPost})
	b.postEdits.Start(10, 7, 1, transport.ContentPhoto)

	if err := b.handleFreeText(context.Background(), textRequest(10, 7, "plain text instead", nil)); err != nil {
		t.Fatalf("handleFreeText: %v", err)
	}

	if fa.editCount() != 0 {
		t.Fatalf("edit reached the platform despite a kind mismatch")
	}
	post, _ := b.msgs.Get(10, 1)
	if post.ContentType != transport.ContentPhoto || post.FileID != "photo-1" || post.Text != "caption" {
		t.Fatalf("stored post mutated: %+v", post)
	}
	if _, ok := b.postEdits.Get(10, 7); ok {
		t.Fatalf("session survived the rejection")
	}
	if !strings.Contains(fa.lastSent(), "Nothing was changed") {
		t.Fatalf("reply = %q", fa.lastSent())
	}
}

func TestPostEditRejectsMediaForTextPost(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	b := newTestBot(t, fa)

	b.msgs.Add(10, 2, "hello", transport.ContentText, "", messagelog.Origin{Kind: messagelog.OriginTestPost})
	b.postEdits.Start(10, 7, 2, transport.ContentText)

	media := &transport.Media{Kind: transport.ContentPhoto, FileID: "photo-2"}
	if err := b.handleFreeText(context.Background(), textRequest(10, 7, "new caption", media)); err != nil {
		t.Fatalf("handleFreeText: %v", err)
	}

	if fa.editCount() != 0 {
		t.Fatalf("edit reached the platform despite a kind mismatch")
	}
	post, _ := b.msgs.Get(10, 2)
	if post.ContentType != transport.ContentText || post.Text != "hello" {
		t.Fatalf("stored post mutated: %+v", post)
	}
	if _, ok := b.postEdits.Get(10, 7); ok {
		t.Fatalf("session survived the rejection")
	}
}

func TestPostEditMatchingKindApplies(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	b := newTestBot(t, fa)

	b.msgs.Add(10, 3, "old", transport.ContentText, "", messagelog.Origin{Kind: messagelog.OriginTestPost})
	b.postEdits.Start(10, 7, 3, transport.ContentText)

	if err := b.handleFreeText(context.Background(), textRequest(10, 7, "new text", nil)); err != nil {
		t.Fatalf("handleFreeText: %v", err)
	}

	if fa.editCount() != 1 {
		t.Fatalf("edit count = %d, want 1", fa.editCount())
	}
	post, _ := b.msgs.Get(10, 3)
	if post.Text != "new text" {
		t.Fatalf("stored text = %q", post.Text)
	}
	if _, ok := b.postEdits.Get(10, 7); ok {
		t.Fatalf("session not consumed after a successful edit")
	}
}

func TestEditEmptyTextCancelsSession(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	b := newTestBot(t, fa)

	b.msgs.Add(10, 4, "keep me", transport.ContentText, "", messagelog.Origin{Kind: messagelog.OriginTestPost})
	b.edits.StartMessage(10, 7, 4)

	if err := b.handleFreeText(context.Background(), textRequest(10, 7, "   \n\t ", nil)); err != nil {
		t.Fatalf("handleFreeText: %v", err)
	}

	if fa.editCount() != 0 {
		t.Fatalf("whitespace replacement reached the platform")
	}
	post, _ := b.msgs.Get(10, 4)
	if post.Text != "keep me" {
		t.Fatalf("stored text = %q", post.Text)
	}
	if _, ok := b.edits.Get(10, 7); ok {
		t.Fatalf("cancelled session still pending")
	}
	if !strings.Contains(fa.lastSent(), "cancelled") {
		t.Fatalf("reply = %q", fa.lastSent())
	}
}

func TestEditMediaInputKeepsSessionPending(t *testing.T) {
	t.Parallel()
	fa := &fakeAdapter{}
	b := newTestBot(t, fa)

	b.msgs.Add(10, 5, "text post", transport.ContentText, "", messagelog.Origin{Kind: messagelog.OriginTestPost})
	b.edits.StartMessage(10, 7, 5)

	media := &transport.Media{Kind: transport.ContentPhoto, FileID: "photo-5"}
	if err := b.handleFreeText(context.Background(), textRequest(10, 7, "", media)); err != nil {
		t.Fatalf("handleFreeText: %v", err)
	}

	if _, ok := b.edits.Get(10, 7); !ok {
		t.Fatalf("session dropped; the user should still be able to send text")
	}
	if fa.editCount() != 0 {
		t.Fatalf("media input triggered an edit")
	}
}
