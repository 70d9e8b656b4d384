package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "plazenbot/internal/transport"
	"plazenbot/pkg/logx"
)

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
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func textUpdate(text string) kit.Update {
	return kit.Update{Message: &kit.Message{ID: 1, ChatID: 42, FromID: 7, Text: text}}
}

func runDispatch(t *testing.T, m *Manager, ups ...kit.Update) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, len(ups))
	for _, up := range ups {
		updates <- up
	}

	done := make(chan struct{})
	go func() {
		m.DispatchLoop(ctx, updates)
		close(done)
	}()

	// Let the loop drain the channel, then stop it.
	deadline := time.After(2 * time.Second)
	for {
		if len(updates) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("dispatch loop did not drain updates")
		case <-time.After(5 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch loop did not stop")
	}
}

func TestDispatchRoutesToHandler(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewManager(logx.Nop(), ad)

	var mu sync.Mutex
	var got *Request
	m.Register(Command{Name: "schedule", Handle: func(ctx context.Context, req *Request) error {
		mu.Lock()
		got = req
		mu.Unlock()
		return nil
	}})

	runDispatch(t, m, textUpdate("/schedule"))

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatal("handler not invoked")
	}
	if got.Command != "schedule" || got.Chat.ChatID != 42 || got.FromID != 7 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if got.ReqID == "" {
		t.Fatal("request id not assigned")
	}
}

func TestDispatchStripsBotMention(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewManager(logx.Nop(), ad)

	var called sync.WaitGroup
	called.Add(1)
	m.Register(Command{Name: "start", Handle: func(ctx context.Context, req *Request) error {
		called.Done()
		return nil
	}})

	runDispatch(t, m, textUpdate("/start@plazen_bot"))
	called.Wait()
}

func TestDispatchUnknownFallsBackToHelp(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewManager(logx.Nop(), ad)
	m.Register(Command{Name: "help", Handle: func(ctx context.Context, req *Request) error { return nil }})

	var mu sync.Mutex
	fallbackFor := ""
	m.SetFallback(func(ctx context.Context, req *Request) error {
		mu.Lock()
		fallbackFor = req.Command
		mu.Unlock()
		return nil
	})

	runDispatch(t, m, textUpdate("/bogus arg"))

	mu.Lock()
	defer mu.Unlock()
	if fallbackFor != "bogus" {
		t.Fatalf("fallback command = %q", fallbackFor)
	}
}

func TestDispatchIgnoresPlainText(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewManager(logx.Nop(), ad)

	m.Register(Command{Name: "start", Handle: func(ctx context.Context, req *Request) error {
		t.Error("handler invoked for non-command text")
		return nil
	}})
	m.SetFallback(func(ctx context.Context, req *Request) error {
		t.Error("fallback invoked for non-command text")
		return nil
	})

	runDispatch(t, m, textUpdate("hello there"))

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.sent) != 0 {
		t.Fatalf("unexpected replies: %v", ad.sent)
	}
}

func TestHandlerErrorDoesNotStopLoop(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	m := NewManager(logx.Nop(), ad)

	var mu sync.Mutex
	calls := 0
	m.Register(Command{Name: "boom", Handle: func(ctx context.Context, req *Request) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("backend down")
	}})

	runDispatch(t, m, textUpdate("/boom"), textUpdate("/boom"))

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestMWPanicRecover(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		panic("kaboom")
	}, MWPanicRecover(logx.Nop()))

	err := h(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestMWTimeout(t *testing.T) {
	t.Parallel()
	h := Chain(func(ctx context.Context, req *Request) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}, MWTimeout(20*time.Millisecond))

	err := h(context.Background(), &Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
