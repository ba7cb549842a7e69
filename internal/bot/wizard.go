package bot

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"postbot/internal/messagelog"
	"postbot/internal/schedule"
	"postbot/internal/transport"
)

type wizardStep int

const (
	stepMode wizardStep = iota
	stepWhen
	stepWhere
)

type wizardMode string

const (
	modeOnce   wizardMode = "once"
	modeDaily  wizardMode = "daily"
	modeWeekly wizardMode = "weekly"
)

// jobContent is the payload captured from the replied-to message when a
// wizard starts.
type jobContent struct {
	ContentType transport.ContentKind
	Text        string
	FileID      string
	Entities    []transport.Entity
}

// whenSpec is a parsed schedule time. Once holds the full timestamp for
// one-shot posts; Hour/Minute (and Weekday for weekly) drive recurring ones.
type whenSpec struct {
	Once    time.Time
	Hour    int
	Minute  int
	Weekday int // 0=Sunday..6=Saturday, -1 when unused
}

type wizard struct {
	Step      wizardStep
	Mode      wizardMode
	Content   jobContent
	When      whenSpec
	StartedAt time.Time
}

type wizardKey struct {
	ChatID int64
	UserID int64
}

type wizardStore struct {
	mu  sync.Mutex
	set map[wizardKey]wizard
}

func newWizardStore() *wizardStore {
	return &wizardStore{set: map[wizardKey]wizard{}}
}

func (s *wizardStore) Start(chatID, userID int64, content jobContent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[wizardKey{chatID, userID}] = wizard{
		Step:      stepMode,
		Content:   content,
		When:      whenSpec{Weekday: -1},
		StartedAt: time.Now(),
	}
}

func (s *wizardStore) Get(chatID, userID int64) (wizard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.set[wizardKey{chatID, userID}]
	return w, ok
}

func (s *wizardStore) Put(chatID, userID int64, w wizard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[wizardKey{chatID, userID}] = w
}

func (s *wizardStore) Clear(chatID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, wizardKey{chatID, userID})
}

// extractContent pulls schedulable content out of a message. Returns false
// for messages with neither text nor supported media.
func extractContent(msg *transport.Message) (jobContent, bool) {
	if msg == nil {
		return jobContent{}, false
	}
	kind, fileID := messagelog.Classify(msg.Text, msg.Media)
	if kind == transport.ContentOther {
		return jobContent{}, false
	}
	if kind == transport.ContentText && strings.TrimSpace(msg.Text) == "" {
		return jobContent{}, false
	}
	return jobContent{
		ContentType: kind,
		Text:        msg.Text,
		FileID:      fileID,
		Entities:    msg.Entities,
	}, true
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// parseOnceAt accepts "DD.MM.YYYY HH:MM" or "YYYY-MM-DD HH:MM" and requires
// the result to lie in the future.
func parseOnceAt(s string, loc *time.Location, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	var t time.Time
	var err error
	if strings.Contains(s, ".") {
		t, err = time.ParseInLocation("02.01.2006 15:04", s, loc)
	} else {
		t, err = time.ParseInLocation("2006-01-02 15:04", s, loc)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("expected DD.MM.YYYY HH:MM or YYYY-MM-DD HH:MM, got %q", s)
	}
	if !t.After(now) {
		return time.Time{}, fmt.Errorf("%s is in the past", t.Format("02.01.2006 15:04"))
	}
	return t, nil
}

var weekdayNames = map[string]int{
	"sun": 0, "sunday": 0, "nd": 0, "niedziela": 0,
	"mon": 1, "monday": 1, "pn": 1, "pon": 1, "poniedzialek": 1,
	"tue": 2, "tuesday": 2, "wt": 2, "wtorek": 2,
	"wed": 3, "wednesday": 3, "sr": 3, "sroda": 3,
	"thu": 4, "thursday": 4, "czw": 4, "czwartek": 4,
	"fri": 5, "friday": 5, "pt": 5, "piatek": 5,
	"sat": 6, "saturday": 6, "sob": 6, "sobota": 6,
}

func parseWeekday(s string) (int, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// parseWhen parses the free-text answer to the wizard's time prompt.
func parseWhen(mode wizardMode, input string, loc *time.Location, now time.Time) (whenSpec, error) {
	input = strings.TrimSpace(input)
	switch mode {
	case modeOnce:
		t, err := parseOnceAt(input, loc, now)
		if err != nil {
			return whenSpec{}, err
		}
		return whenSpec{Once: t, Hour: t.Hour(), Minute: t.Minute(), Weekday: -1}, nil
	case modeDaily:
		h, m, err := parseClock(input)
		if err != nil {
			return whenSpec{}, err
		}
		return whenSpec{Hour: h, Minute: m, Weekday: -1}, nil
	case modeWeekly:
		fields := strings.Fields(input)
		if len(fields) != 2 {
			return whenSpec{}, fmt.Errorf("expected DAY HH:MM, got %q", input)
		}
		d, err := parseWeekday(fields[0])
		if err != nil {
			return whenSpec{}, err
		}
		h, m, err := parseClock(fields[1])
		if err != nil {
			return whenSpec{}, err
		}
		return whenSpec{Hour: h, Minute: m, Weekday: d}, nil
	default:
		return whenSpec{}, fmt.Errorf("unknown mode %q", mode)
	}
}

// cronFor renders a whenSpec as a 6-field cron expression plus its repeat
// metadata. One-shot jobs keep scheduledAt so a restart after the fire time
// does not replay them forever.
func cronFor(mode wizardMode, w whenSpec) (expr string, repeat schedule.RepeatMode, scheduledAt string) {
	switch mode {
	case modeOnce:
		t := w.Once
		expr = fmt.Sprintf("0 %d %d %d %d *", t.Minute(), t.Hour(), t.Day(), int(t.Month()))
		return expr, schedule.RepeatNone, t.Format(time.RFC3339)
	case modeWeekly:
		return fmt.Sprintf("0 %d %d * * %d", w.Minute, w.Hour, w.Weekday), schedule.RepeatWeekly, ""
	default:
		return fmt.Sprintf("0 %d %d * * *", w.Minute, w.Hour), schedule.RepeatDaily, ""
	}
}

func modeLabel(m wizardMode) string {
	switch m {
	case modeOnce:
		return "one time"
	case modeDaily:
		return "daily"
	case modeWeekly:
		return "weekly"
	}
	return string(m)
}
