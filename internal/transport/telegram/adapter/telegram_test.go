package adapter

import (
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 100, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("line one\n", 30)
	got := splitTelegramText(text, 100, "")
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, chunk := range got {
		if len([]rune(chunk)) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(chunk)))
		}
		if strings.HasPrefix(chunk, "\n") || strings.HasSuffix(chunk, "\n") {
			t.Fatalf("chunk %d has dangling newline: %q", i, chunk)
		}
	}
}

func TestSplitTelegramTextAvoidsOpenHTMLTag(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 95) + "<b>bold text</b>"
	got := splitTelegramText(text, 100, "HTML")
	for i, chunk := range got {
		opens := strings.Count(chunk, "<")
		closes := strings.Count(chunk, ">")
		if opens > closes {
			t.Fatalf("chunk %d split inside a tag: %q", i, chunk)
		}
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatalf("empty token accepted")
	}
}

func TestBuildMessageKeepsReplyEntities(t *testing.T) {
	t.Parallel()
	msg := &tele.Message{
		ID:     2,
		Chat:   &tele.Chat{ID: 10, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 5, Username: "op"},
		Text:   "/schedule \"0 0 9 * * *\"",
		ReplyTo: &tele.Message{
			ID:       1,
			Chat:     &tele.Chat{ID: 10},
			Sender:   &tele.User{ID: 5},
			Text:     "bold draft",
			Entities: tele.Entities{{Type: tele.EntityBold, Offset: 0, Length: 4}},
		},
	}

	got := buildMessage(msg)
	if got.ReplyTo == nil {
		t.Fatalf("reply not converted")
	}
	want := []kit.Entity{{Type: "bold", Offset: 0, Length: 4}}
	if len(got.ReplyTo.Entities) != 1 || got.ReplyTo.Entities[0] != want[0] {
		t.Fatalf("reply entities = %v, want %v", got.ReplyTo.Entities, want)
	}
}

func TestBuildReplyMediaCaptionEntities(t *testing.T) {
	t.Parallel()
	got := buildReply(&tele.Message{
		ID:              1,
		Chat:            &tele.Chat{ID: 10},
		Photo:           &tele.Photo{File: tele.File{FileID: "photo-1"}},
		Caption:         "tagged caption",
		CaptionEntities: tele.Entities{{Type: tele.EntityItalic, Offset: 0, Length: 6}},
	})

	if got.Media == nil || got.Media.Kind != kit.ContentPhoto || got.Media.FileID != "photo-1" {
		t.Fatalf("media = %+v", got.Media)
	}
	if got.Text != "tagged caption" {
		t.Fatalf("caption = %q", got.Text)
	}
	if len(got.Entities) != 1 || got.Entities[0].Type != "italic" {
		t.Fatalf("caption entities = %v", got.Entities)
	}
}

func TestBuildReplyForwardOrigin(t *testing.T) {
	t.Parallel()
	got := buildReply(&tele.Message{
		ID:           1,
		Chat:         &tele.Chat{ID: 10},
		Text:         "forwarded channel post",
		OriginalChat: &tele.Chat{ID: -100555},
	})
	if got.ForwardFromChatID != -100555 {
		t.Fatalf("forward origin = %d, want -100555", got.ForwardFromChatID)
	}
}
