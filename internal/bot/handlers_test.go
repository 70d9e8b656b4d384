package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"plazenbot/internal/backend"
	"plazenbot/internal/router"
	"plazenbot/internal/schedule"
	kit "plazenbot/internal/transport"
	"plazenbot/pkg/logx"
)

type fakeStore struct {
	link    backend.AccountLink
	linkErr error

	tasks    []backend.TaskRecord
	tasksErr error

	mu        sync.Mutex
	taskCalls int
	lastStart time.Time
	lastEnd   time.Time
}

func (f *fakeStore) AccountLinkByChatID(ctx context.Context, chatID string) (backend.AccountLink, error) {
	return f.link, f.linkErr
}

func (f *fakeStore) TasksInRange(ctx context.Context, accountID string, start, end time.Time) ([]backend.TaskRecord, error) {
	f.mu.Lock()
	f.taskCalls++
	f.lastStart, f.lastEnd = start, end
	f.mu.Unlock()
	return f.tasks, f.tasksErr
}

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) lastSent(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1]
}

func newRequest(ad kit.Adapter, chatID int64) *router.Request {
	return &router.Request{
		Update:  kit.Update{Message: &kit.Message{ChatID: chatID, FromID: chatID, FirstName: "Ada"}},
		Chat:    kit.ChatTarget{ChatID: chatID},
		FromID:  chatID,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

var refDay = time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC)

func TestStartContainsExactChatID(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	h := New(&fakeStore{}, fixedClock(refDay), logx.Nop())

	if err := h.Start(context.Background(), newRequest(ad, 123456789)); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := ad.lastSent(t); !strings.Contains(got, "<code>123456789</code>") {
		t.Fatalf("start reply missing chat id:\n%s", got)
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	h := New(&fakeStore{}, fixedClock(refDay), logx.Nop())

	if err := h.Help(context.Background(), newRequest(ad, 1)); err != nil {
		t.Fatalf("Help: %v", err)
	}
	got := ad.lastSent(t)
	for _, cmd := range []string{"/start", "/schedule", "/help"} {
		if !strings.Contains(got, cmd) {
			t.Fatalf("help reply missing %s:\n%s", cmd, got)
		}
	}
}

func TestScheduleNotLinkedSkipsTaskQuery(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	st := &fakeStore{linkErr: backend.ErrNoLinkedAccount}
	h := New(st, fixedClock(refDay), logx.Nop())

	if err := h.Schedule(context.Background(), newRequest(ad, 42)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := ad.lastSent(t); got != notLinkedText {
		t.Fatalf("reply = %q", got)
	}
	if st.taskCalls != 0 {
		t.Fatalf("task store queried %d times for unlinked chat", st.taskCalls)
	}
}

func TestScheduleAmbiguousLink(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	st := &fakeStore{linkErr: backend.ErrAmbiguousLink}
	h := New(st, fixedClock(refDay), logx.Nop())

	err := h.Schedule(context.Background(), newRequest(ad, 42))
	if !errors.Is(err, backend.ErrAmbiguousLink) {
		t.Fatalf("err = %v", err)
	}
	if got := ad.lastSent(t); got != ambiguousText {
		t.Fatalf("reply = %q", got)
	}
}

func TestScheduleBackendDown(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	st := &fakeStore{linkErr: backend.ErrBackendUnavailable}
	h := New(st, fixedClock(refDay), logx.Nop())

	err := h.Schedule(context.Background(), newRequest(ad, 42))
	if !errors.Is(err, backend.ErrBackendUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if got := ad.lastSent(t); got != backendDownText {
		t.Fatalf("reply = %q", got)
	}
}

func TestScheduleEmptyDay(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	st := &fakeStore{link: backend.AccountLink{AccountID: "u-1"}}
	h := New(st, fixedClock(refDay), logx.Nop())

	if err := h.Schedule(context.Background(), newRequest(ad, 42)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := ad.lastSent(t); got != schedule.NoTasksToday {
		t.Fatalf("reply = %q", got)
	}

	// The fetch window is the UTC day of the reference instant.
	if !st.lastStart.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range start = %v", st.lastStart)
	}
	if !st.lastEnd.Equal(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("range end = %v", st.lastEnd)
	}
}

func TestScheduleRendersAgenda(t *testing.T) {
	t.Parallel()
	dur := 15
	ad := &fakeAdapter{}
	st := &fakeStore{
		link: backend.AccountLink{AccountID: "u-1"},
		tasks: []backend.TaskRecord{
			{Title: "Standup", ScheduledAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC), Completed: true, DurationMinutes: &dur},
			{Title: "Review", ScheduledAt: time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)},
		},
	}
	h := New(st, fixedClock(refDay), logx.Nop())

	if err := h.Schedule(context.Background(), newRequest(ad, 42)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	got := ad.lastSent(t)
	for _, want := range []string{"schedule for today", "✅", "09:30", "Standup", "(15 min)", "🔲", "16:00", "Review"} {
		if !strings.Contains(got, want) {
			t.Fatalf("agenda missing %q:\n%s", want, got)
		}
	}

	// Header, blank separator, then one line per task.
	if lines := strings.Split(got, "\n"); len(lines) != 2+len(st.tasks) {
		t.Fatalf("unexpected line count %d:\n%s", len(lines), got)
	}
}

func TestScheduleIsIdempotent(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	st := &fakeStore{
		link: backend.AccountLink{AccountID: "u-1"},
		tasks: []backend.TaskRecord{
			{Title: "Standup", ScheduledAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)},
		},
	}
	h := New(st, fixedClock(refDay), logx.Nop())

	req := newRequest(ad, 42)
	if err := h.Schedule(context.Background(), req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := h.Schedule(context.Background(), req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent) != 2 || ad.sent[0] != ad.sent[1] {
		t.Fatalf("replies differ:\n%q\n%q", ad.sent[0], ad.sent[1])
	}
}
