// Package reminder sends heads-up messages shortly before a task starts.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"plazenbot/internal/backend"
	kit "plazenbot/internal/transport"
	"plazenbot/pkg/logx"
	"plazenbot/pkg/tgui"
)

// Store is the slice of the backend the reminder sweep needs.
type Store interface {
	ReminderRecipients(ctx context.Context) ([]backend.AccountLink, error)
	PendingTasksInRange(ctx context.Context, accountID string, start, end time.Time) ([]backend.TaskRecord, error)
}

type Config struct {
	Enabled bool
	// Lead is how far ahead of the scheduled time a reminder fires.
	Lead time.Duration
	// RatePerSec caps outgoing reminder messages across all recipients.
	RatePerSec int
}

// Service runs a minutely sweep: for every account that opted into
// notifications, find incomplete tasks starting exactly Lead from now (a
// one-minute window, so each task is reminded at most once) and message the
// linked chat. Sweeps are read-only against the store and independent of
// command handling.
type Service struct {
	cfg     Config
	store   Store
	adapter kit.Adapter
	log     logx.Logger
	now     func() time.Time

	limiter *rate.Limiter

	mu      sync.Mutex
	c       *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	sweepWG sync.WaitGroup
}

func New(cfg Config, store Store, adapter kit.Adapter, log logx.Logger, now func() time.Time) *Service {
	if cfg.Lead <= 0 {
		cfg.Lead = 30 * time.Minute
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		adapter: adapter,
		log:     log,
		now:     now,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("reminders disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	runCtx := s.runCtx

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc("* * * * *", func() {
		s.sweepWG.Add(1)
		defer s.sweepWG.Done()
		s.Sweep(runCtx)
	}); err != nil {
		s.cancel()
		s.runCtx, s.cancel = nil, nil
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("reminder sweep started", logx.Duration("lead", s.cfg.Lead))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c, s.runCtx, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}

	stopped := c.Stop() // waits for running jobs via its context
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.sweepWG.Wait()
	s.log.Info("reminder sweep stopped")
}

// SweepWindow returns the half-open one-minute window [now+lead, now+lead+1m)
// with now truncated to the minute, mirroring the minutely sweep cadence.
func SweepWindow(now time.Time, lead time.Duration) (start, end time.Time) {
	base := now.UTC().Truncate(time.Minute)
	start = base.Add(lead)
	return start, start.Add(time.Minute)
}

// Sweep runs one reminder pass. Failures for one account never abort the
// others; everything is best-effort and logged.
func (s *Service) Sweep(ctx context.Context) {
	recipients, err := s.store.ReminderRecipients(ctx)
	if err != nil {
		s.log.Warn("reminder sweep: listing recipients failed", logx.Err(err))
		return
	}
	if len(recipients) == 0 {
		return
	}

	start, end := SweepWindow(s.now(), s.cfg.Lead)

	for _, rec := range recipients {
		if ctx.Err() != nil {
			return
		}

		chatID, err := strconv.ParseInt(rec.ChatID, 10, 64)
		if err != nil {
			s.log.Warn("reminder sweep: bad chat id on link",
				logx.String("account_id", rec.AccountID),
				logx.String("chat_id", rec.ChatID),
			)
			continue
		}

		tasks, err := s.store.PendingTasksInRange(ctx, rec.AccountID, start, end)
		if err != nil {
			s.log.Warn("reminder sweep: task query failed",
				logx.String("account_id", rec.AccountID),
				logx.Err(err),
			)
			continue
		}

		for _, t := range tasks {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			msg := FormatReminder(t, s.cfg.Lead)
			if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, msg, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
				s.log.Warn("reminder send failed",
					logx.Int64("chat_id", chatID),
					logx.Err(err),
				)
				continue
			}
			s.log.Info("reminder sent",
				logx.Int64("chat_id", chatID),
				logx.Time("scheduled_at", t.ScheduledAt),
			)
		}
	}
}

// FormatReminder renders one reminder message in Telegram HTML mode.
func FormatReminder(t backend.TaskRecord, lead time.Duration) string {
	mins := int(lead.Minutes())
	return "🔔 " + tgui.B("Reminder!").String() + "\n\n" +
		fmt.Sprintf("Your task is starting in %d minutes (at %s):\n", mins, t.ScheduledAt.UTC().Format("15:04")) +
		tgui.B(t.Title).String()
}
