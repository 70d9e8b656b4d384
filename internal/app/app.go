// Package app wires configuration, logging, the Telegram adapter, the
// command router and the reminder sweep into one runnable unit.
package app

import (
	"context"
	"sync"
	"time"

	"plazenbot/internal/backend"
	"plazenbot/internal/bot"
	"plazenbot/internal/config"
	"plazenbot/internal/reminder"
	"plazenbot/internal/router"
	kit "plazenbot/internal/transport"
	"plazenbot/internal/transport/telegram"
	"plazenbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	handlers *bot.Handlers
	rtr      *router.Manager
	rem      *reminder.Service

	updates   chan kit.Update
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	bootLog := logx.NewConsole("info")

	cfgm := config.NewManager(cfgPath, bootLog.With(logx.String("comp", "config")))
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logConfigFrom(cfg))
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	reqTimeout, err := config.ParseDurationOrDefault("supabase.request_timeout", cfg.Supabase.RequestTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := backend.NewClient(backend.Config{
		URL:            cfg.Supabase.URL,
		ServiceKey:     cfg.Supabase.ServiceKey,
		RequestTimeout: reqTimeout,
	}, logSvc.Logger().With(logx.String("comp", "backend")))
	if err != nil {
		return nil, err
	}

	handlers := bot.New(store, time.Now, logSvc.Logger().With(logx.String("comp", "handlers")))

	rtr := router.NewManager(logSvc.Logger().With(logx.String("comp", "commands")), ad)
	rtr.Register(handlers.Commands()...)
	rtr.SetFallback(handlers.Help)

	rem := reminder.New(reminder.Config{
		Enabled:    cfg.Reminders.EnabledOrDefault(),
		Lead:       time.Duration(cfg.Reminders.LeadMinutes) * time.Minute,
		RatePerSec: cfg.Reminders.RatePerSec,
	}, store, ad, logSvc.Logger().With(logx.String("comp", "reminders")), time.Now)

	a := &App{
		cfgm:     cfgm,
		logSvc:   logSvc,
		log:      log,
		adapter:  ad,
		handlers: handlers,
		rtr:      rtr,
		rem:      rem,
		updates:  make(chan kit.Update, 256),
	}

	// Hot reload applies logging changes only. Token and backend credentials
	// are bound at construction and need a restart.
	cfgm.OnChange(func(newCfg *config.Config) {
		a.logSvc.Apply(logConfigFrom(newCfg))
		a.log.Debug("logging settings applied")
	})

	return a, nil
}

func logConfigFrom(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleOrDefault(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func (a *App) Start(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	if err := a.adapter.Start(rctx, a.updates); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.rtr.DispatchLoop(rctx, a.updates)
	}()

	if err := a.rem.Start(rctx); err != nil {
		a.log.Warn("reminder service failed to start", logx.Err(err))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(rctx); err != nil && rctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.installCommandMenu(rctx)

	a.log.Info("app started")
	return nil
}

// installCommandMenu publishes the command list to the chat platform so
// clients can autocomplete. Failure is logged, not fatal.
func (a *App) installCommandMenu(ctx context.Context) {
	mu, ok := kit.Adapter(a.adapter).(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cmds := a.handlers.Commands()
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	if err := mu.UpdateMenuCommands(ctx, menu); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}

	a.rem.Stop(ctx)
	err := a.adapter.Stop(ctx)

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown timed out waiting for background loops", logx.Err(ctx.Err()))
	}

	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return err
}
