// Package bot implements the user-facing command handlers.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"plazenbot/internal/backend"
	"plazenbot/internal/router"
	"plazenbot/internal/schedule"
	kit "plazenbot/internal/transport"
	"plazenbot/pkg/logx"
	"plazenbot/pkg/tgui"
)

// Store is the slice of the backend the handlers need. Satisfied by
// *backend.Client; tests substitute a fake.
type Store interface {
	AccountLinkByChatID(ctx context.Context, chatID string) (backend.AccountLink, error)
	TasksInRange(ctx context.Context, accountID string, start, end time.Time) ([]backend.TaskRecord, error)
}

type Handlers struct {
	store Store
	now   func() time.Time
	log   logx.Logger
}

// New builds the handler set. now supplies the reference instant for the
// "today" agenda; pass time.Now in production.
func New(store Store, now func() time.Time, log logx.Logger) *Handlers {
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{store: store, now: now, log: log}
}

// Commands returns the command set for registration with the router.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Get your Chat ID to link your Plazen account", Timeout: 10 * time.Second, Handle: h.Start},
		{Name: "schedule", Description: "Get your schedule for today", Timeout: 30 * time.Second, Handle: h.Schedule},
		{Name: "help", Description: "Show available commands", Timeout: 10 * time.Second, Handle: h.Help},
	}
}

func (h *Handlers) Start(ctx context.Context, req *router.Request) error {
	chatID := strconv.FormatInt(req.Chat.ChatID, 10)

	name := req.Update.Message.FirstName
	if strings.TrimSpace(name) == "" {
		name = "there"
	}

	text := "Hi " + tgui.Esc(name).String() + "! Welcome to the Plazen bot. 🤖\n\n" +
		tgui.Esc("To link this bot to your Plazen account, copy your Chat ID below and paste it into the \"Telegram Chat ID\" field in your Plazen app's settings.").String() + "\n\n" +
		"Your Telegram Chat ID is:\n" +
		tgui.Code(chatID).String() + "\n\n" +
		"Once linked, use /schedule to see your tasks for today."

	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

const helpText = "Available commands:\n" +
	"/start - Get your Telegram Chat ID to link your Plazen account.\n" +
	"/schedule - Get your schedule for today (UTC).\n" +
	"/help - Show this message."

func (h *Handlers) Help(ctx context.Context, req *router.Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, helpText, nil)
	return err
}

const (
	notLinkedText = "I don't recognize you. 😢\n" +
		"Please send /start to get your Chat ID, then add it to your Plazen app settings."
	backendDownText = "I couldn't reach your schedule right now. Please try again in a moment."
	ambiguousText   = "Your account link looks inconsistent (more than one account matches this chat). " +
		"Please re-link your Chat ID in the Plazen app settings."
)

func (h *Handlers) Schedule(ctx context.Context, req *router.Request) error {
	chatID := strconv.FormatInt(req.Chat.ChatID, 10)

	link, err := h.store.AccountLinkByChatID(ctx, chatID)
	if err != nil {
		switch {
		case errors.Is(err, backend.ErrNoLinkedAccount):
			_, serr := req.Adapter.SendText(ctx, req.Chat, notLinkedText, nil)
			return serr
		case errors.Is(err, backend.ErrAmbiguousLink):
			_, _ = req.Adapter.SendText(ctx, req.Chat, ambiguousText, nil)
			return err
		default:
			_, _ = req.Adapter.SendText(ctx, req.Chat, backendDownText, nil)
			return err
		}
	}

	start, end := schedule.DayBounds(h.now())
	tasks, err := h.store.TasksInRange(ctx, link.AccountID, start, end)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, backendDownText, nil)
		return err
	}

	if len(tasks) == 0 {
		_, serr := req.Adapter.SendText(ctx, req.Chat, schedule.NoTasksToday, nil)
		return serr
	}

	text := tgui.B("Here is your schedule for today (UTC):").String() + "\n\n" + schedule.FormatAgenda(tasks)
	_, err = req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}
