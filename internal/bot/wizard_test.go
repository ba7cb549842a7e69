package bot

import (
	"strings"
	"testing"
	"time"

	"postbot/internal/schedule"
	"postbot/internal/transport"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:30", 9, 30, false},
		{"0:05", 0, 5, false},
		{"23:59", 23, 59, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"12", 0, 0, true},
	}
	for _, tc := range cases {
		h, m, err := parseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseClock(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClock(%q): %v", tc.in, err)
			continue
		}
		if h != tc.hour || m != tc.minute {
			t.Errorf("parseClock(%q) = %d:%d, want %d:%d", tc.in, h, m, tc.hour, tc.minute)
		}
	}
}

func TestParseOnceAtFormats(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, loc)

	got, err := parseOnceAt("24.12.2026 18:00", loc, now)
	if err != nil {
		t.Fatalf("dotted format: %v", err)
	}
	want := time.Date(2026, 12, 24, 18, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("dotted format = %v, want %v", got, want)
	}

	got, err = parseOnceAt("2026-12-24 18:00", loc, now)
	if err != nil {
		t.Fatalf("dashed format: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("dashed format = %v, want %v", got, want)
	}
}

func TestParseOnceAtRejectsPast(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := parseOnceAt("01.01.2020 10:00", time.UTC, now); err == nil {
		t.Fatal("expected error for a past timestamp")
	}
	if _, err := parseOnceAt("01.06.2026 12:00", time.UTC, now); err == nil {
		t.Fatal("expected error for the exact current instant")
	}
}

func TestParseWeekdayAliases(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"sun": 0, "Monday": 1, "wt": 2, "WED": 3,
		"czw": 4, "fri": 5, "sobota": 6,
	}
	for in, want := range cases {
		got, err := parseWeekday(in)
		if err != nil {
			t.Errorf("parseWeekday(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("parseWeekday(%q) = %d, want %d", in, got, want)
		}
	}
	if _, err := parseWeekday("someday"); err == nil {
		t.Error("expected error for unknown weekday")
	}
}

func TestParseWhenWeekly(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	w, err := parseWhen(modeWeekly, "mon 09:30", time.UTC, now)
	if err != nil {
		t.Fatalf("parseWhen: %v", err)
	}
	if w.Weekday != 1 || w.Hour != 9 || w.Minute != 30 {
		t.Fatalf("parseWhen = %+v", w)
	}

	if _, err := parseWhen(modeWeekly, "09:30", time.UTC, now); err == nil {
		t.Fatal("expected error for missing weekday")
	}
}

func TestCronFor(t *testing.T) {
	t.Parallel()

	once := time.Date(2026, 12, 24, 18, 05, 0, 0, time.UTC)
	expr, repeat, at := cronFor(modeOnce, whenSpec{Once: once, Weekday: -1})
	if expr != "0 5 18 24 12 *" {
		t.Errorf("once expr = %q", expr)
	}
	if repeat != schedule.RepeatNone {
		t.Errorf("once repeat = %q", repeat)
	}
	if at == "" {
		t.Error("once job should keep its scheduled instant")
	}

	expr, repeat, at = cronFor(modeDaily, whenSpec{Hour: 9, Minute: 30, Weekday: -1})
	if expr != "0 30 9 * * *" || repeat != schedule.RepeatDaily || at != "" {
		t.Errorf("daily = %q %q %q", expr, repeat, at)
	}

	expr, repeat, _ = cronFor(modeWeekly, whenSpec{Hour: 17, Minute: 0, Weekday: 5})
	if expr != "0 0 17 * * 5" || repeat != schedule.RepeatWeekly {
		t.Errorf("weekly = %q %q", expr, repeat)
	}
}

func TestCronForMatchesEngineParser(t *testing.T) {
	t.Parallel()

	eng, err := schedule.NewEngine("UTC", testLogger())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	defer eng.Close()

	once := time.Date(2026, 12, 24, 18, 0, 0, 0, time.UTC)
	for _, w := range []struct {
		mode wizardMode
		spec whenSpec
	}{
		{modeOnce, whenSpec{Once: once, Weekday: -1}},
		{modeDaily, whenSpec{Hour: 9, Minute: 30, Weekday: -1}},
		{modeWeekly, whenSpec{Hour: 17, Minute: 0, Weekday: 5}},
	} {
		expr, _, _ := cronFor(w.mode, w.spec)
		if err := eng.Validate(expr); err != nil {
			t.Errorf("cronFor(%s) produced unparseable %q: %v", w.mode, expr, err)
		}
	}
}

func TestExtractContent(t *testing.T) {
	t.Parallel()

	if _, ok := extractContent(nil); ok {
		t.Error("nil message should yield no content")
	}
	if _, ok := extractContent(&transport.Message{Text: "   "}); ok {
		t.Error("whitespace-only text should yield no content")
	}

	c, ok := extractContent(&transport.Message{Text: "hello"})
	if !ok || c.ContentType != transport.ContentText || c.Text != "hello" {
		t.Fatalf("text content = %+v, ok=%v", c, ok)
	}

	c, ok = extractContent(&transport.Message{
		Text:  "caption",
		Media: &transport.Media{Kind: transport.ContentPhoto, FileID: "f1"},
	})
	if !ok || c.ContentType != transport.ContentPhoto || c.FileID != "f1" || c.Text != "caption" {
		t.Fatalf("photo content = %+v, ok=%v", c, ok)
	}
}

func TestWizardStoreLifecycle(t *testing.T) {
	t.Parallel()

	s := newWizardStore()
	s.Start(1, 2, jobContent{ContentType: transport.ContentText, Text: "hi"})

	w, ok := s.Get(1, 2)
	if !ok || w.Step != stepMode {
		t.Fatalf("after Start: %+v, ok=%v", w, ok)
	}
	if _, ok := s.Get(1, 3); ok {
		t.Fatal("session leaked across users")
	}

	w.Step = stepWhen
	w.Mode = modeDaily
	s.Put(1, 2, w)
	if w2, _ := s.Get(1, 2); w2.Step != stepWhen || w2.Mode != modeDaily {
		t.Fatalf("after Put: %+v", w2)
	}

	s.Clear(1, 2)
	if _, ok := s.Get(1, 2); ok {
		t.Fatal("session survived Clear")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 60); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	long := strings.Repeat("ż", 80)
	got := truncate(long, 60)
	if r := []rune(got); len(r) != 60 || r[59] != '…' {
		t.Errorf("truncate kept %d runes, last %q", len(r), string(r[len(r)-1]))
	}
}
