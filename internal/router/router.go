// Package router dispatches incoming chat commands to their handlers.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	kit "plazenbot/internal/transport"
	"plazenbot/pkg/logx"
)

type Command struct {
	Name        string
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Manager routes messages that look like commands to exactly one handler.
// Unrecognized commands fall through to the Fallback handler (help).
type Manager struct {
	mu       sync.RWMutex
	commands map[string]Command
	fallback HandlerFunc

	log     logx.Logger
	adapter kit.Adapter

	jobs chan func()
}

func NewManager(log logx.Logger, adapter kit.Adapter) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		commands: map[string]Command{},
		log:      log,
		adapter:  adapter,
		jobs:     make(chan func(), 256),
	}
}

// Register installs the command set. Later calls replace the whole registry.
func (m *Manager) Register(cmds ...Command) {
	reg := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		name := strings.TrimSpace(strings.ToLower(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		reg[name] = c
	}
	m.mu.Lock()
	m.commands = reg
	m.mu.Unlock()
}

// SetFallback installs the handler used for unrecognized commands.
func (m *Manager) SetFallback(h HandlerFunc) {
	m.mu.Lock()
	m.fallback = h
	m.mu.Unlock()
}

// Commands returns the registered commands (for building the bot menu).
func (m *Manager) Commands() []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.commands))
	for _, c := range m.commands {
		out = append(out, c)
	}
	return out
}

// DispatchLoop consumes updates until ctx is cancelled or the channel
// closes. Handlers run on a small bounded worker pool so a slow backend
// read cannot stall polling.
func (m *Manager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 4 {
		workers = 4
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job",
									logx.Int("worker", idx),
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())),
								)
							}
						}()
						job()
					}()
				}
			}
		}()
	}

	m.log.Info("command dispatcher started", logx.Int("workers", workers))
	defer func() {
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			m.routeMessage(ctx, up)
		}
	}
}

func (m *Manager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		// Plain chatter is ignored; the bot only speaks when spoken to.
		return
	}

	parts := strings.Fields(text)
	word := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	// Strip the @botname suffix used in group chats.
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	m.mu.RLock()
	cmd, ok := m.commands[word]
	fallback := m.fallback
	m.mu.RUnlock()

	if !ok {
		if fallback == nil {
			return
		}
		cmd = Command{Name: word, Handle: fallback}
	}

	rid := newReqID()
	reqLog := m.log.With(
		logx.String("rid", rid),
		logx.Int64("chat_id", msg.ChatID),
		logx.Int64("from_id", msg.FromID),
		logx.String("cmd", word),
	)

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Command: word,
		Args:    args,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger:  reqLog,
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)

	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "I'm a bit busy right now, please try again. 🙏", nil)
	}
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being
// closed during shutdown).
func (m *Manager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

var ridSeq uint64
var ridMu sync.Mutex

func newReqID() string {
	ridMu.Lock()
	ridSeq++
	n := ridSeq
	ridMu.Unlock()
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(n, 36)
}
