package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/config"
	"stock-price-alerts/internal/enrichment"
	"stock-price-alerts/internal/monitor"
	"stock-price-alerts/internal/pricefeed"
	"stock-price-alerts/internal/scheduler"
	"stock-price-alerts/internal/storage"
	"stock-price-alerts/internal/watchlist"
)

// App wires configuration into the runtime components shared by the daemon
// and the one-shot CLI commands.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	store     *storage.Store
	fileStore *storage.FileStore

	watch    watchlist.Store
	cooldown alerting.CooldownStore
	sink     storage.AlertSink
	// locker is nil in file-store mode; the scheduler's in-process guard is
	// then the only run serialisation.
	locker storage.AdvisoryLocker
}

// New initialises storage and returns a ready App. With a database DSN the
// PostgreSQL store backs everything; otherwise state lives in JSON files
// under storage.data_dir.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if cfg.Database.DSN != "" {
		pool, err := storage.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := storage.NewStore(pool)
		if cfg.Database.MigrationsPath != "" {
			if err := store.ApplyMigrations(ctx, cfg.Database.MigrationsPath); err != nil {
				store.Close()
				return nil, err
			}
		}
		a.store = store
		a.watch = store
		a.cooldown = store
		a.sink = store
		a.locker = store
		logger.Info().Msg("使用 PostgreSQL 存储")
		return a, nil
	}

	fileStore, err := storage.NewFileStore(cfg.Storage.DataDir, logger)
	if err != nil {
		return nil, err
	}
	a.fileStore = fileStore
	a.watch = fileStore
	a.cooldown = fileStore
	a.sink = fileStore
	logger.Info().Str("data_dir", cfg.Storage.DataDir).Msg("使用 JSON 文件存储")
	return a, nil
}

// Close releases storage resources.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
}

// Run starts the evaluation daemon. SIGINT/SIGTERM stop it; SIGHUP requests
// an immediate out-of-band evaluation.
func (a *App) Run(ctx context.Context) error {
	mon := a.newMonitor(a.newFeed())

	sched := scheduler.New(scheduler.Options{
		Interval:     a.cfg.Scheduler.Interval,
		StartupDelay: a.cfg.Scheduler.StartupDelay,
	}, a.logger)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case <-hup:
				sched.TriggerNow()
			}
		}
	}()

	a.logger.Info().
		Dur("interval", a.cfg.Scheduler.Interval).
		Msg("价格监控服务启动")

	err := sched.Run(runCtx, mon.RunOnce)
	if errors.Is(err, context.Canceled) {
		a.logger.Info().Msg("价格监控服务停止")
		return nil
	}
	return err
}

// newMonitor assembles the evaluation pipeline around the given feed.
func (a *App) newMonitor(feed pricefeed.Feed) *monitor.Monitor {
	dedup := alerting.NewDeduplicator(
		a.cooldown,
		a.cfg.Alerting.Cooldown,
		decimalPct(a.cfg.Alerting.SignificantMovePct),
		a.logger,
	)

	opts := monitor.Options{
		Watchlist:    a.watch,
		Feed:         feed,
		Dedup:        dedup,
		Sink:         a.sink,
		Locker:       a.locker,
		LockKey:      a.cfg.Scheduler.AdvisoryLockKey,
		FetchTimeout: a.cfg.PriceFeed.RequestTimeout,
		FetchDelay:   a.cfg.PriceFeed.FetchDelay,
		Workers:      a.cfg.PriceFeed.Workers,
	}
	if a.cfg.Enrichment.Enabled {
		opts.Enricher = a.newChain()
	}
	if a.cfg.Alerting.Enabled {
		if fanout := a.newNotifier(); fanout != nil {
			opts.Notifier = fanout
		}
	}

	return monitor.New(opts, a.logger)
}

func (a *App) newFeed() pricefeed.Feed {
	return pricefeed.NewTushare(pricefeed.TushareOptions{
		BaseURL:   a.cfg.PriceFeed.BaseURL,
		Token:     a.cfg.PriceFeed.Token,
		Timeout:   a.cfg.PriceFeed.RequestTimeout,
		AllowMock: a.cfg.PriceFeed.AllowMock,
	}, a.logger)
}

// newChain registers every provider holding a credential; the preferred
// provider is still the only one consulted per alert.
func (a *App) newChain() *enrichment.Chain {
	ecfg := a.cfg.Enrichment
	timeout := ecfg.RequestTimeout

	var providers []enrichment.Provider
	if ecfg.OpenAI.APIKey != "" {
		providers = append(providers, enrichment.NewOpenAI(ecfg.OpenAI.APIKey, ecfg.OpenAI.BaseURL, timeout, a.logger))
	}
	if ecfg.Gemini.APIKey != "" {
		providers = append(providers, enrichment.NewGemini(ecfg.Gemini.APIKey, ecfg.Gemini.BaseURL, timeout, a.logger))
	}
	if ecfg.DeepSeek.APIKey != "" {
		providers = append(providers, enrichment.NewDeepSeek(ecfg.DeepSeek.APIKey, ecfg.DeepSeek.BaseURL, timeout, a.logger))
	}

	preferred := config.NormalizeProvider(ecfg.Provider)
	model := ""
	switch preferred {
	case "openai":
		model = ecfg.OpenAI.Model
	case "gemini":
		model = ecfg.Gemini.Model
	case "deepseek":
		model = ecfg.DeepSeek.Model
	}

	return enrichment.NewChain(enrichment.ChainOptions{
		Preferred: preferred,
		Model:     model,
		Timeout:   timeout,
	}, providers, a.logger)
}

func decimalPct(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func (a *App) newNotifier() *alerting.Fanout {
	var targets []alerting.Notifier
	for _, channel := range a.cfg.Alerting.Channels {
		switch channel {
		case "email":
			if !a.cfg.Alerting.Email.Enabled {
				continue
			}
			targets = append(targets, alerting.NewEmailNotifier(alerting.EmailOptions{
				Host:     a.cfg.Alerting.Email.Host,
				Port:     a.cfg.Alerting.Email.Port,
				Username: a.cfg.Alerting.Email.Username,
				Password: a.cfg.Alerting.Email.Password,
				Sender:   a.cfg.Alerting.Email.Sender,
			}, a.logger))
		case "telegram":
			if !a.cfg.Alerting.Telegram.Enabled {
				continue
			}
			targets = append(targets, alerting.NewTelegramNotifier(
				a.cfg.Alerting.Telegram.BotToken,
				a.cfg.Alerting.Telegram.ChatID,
				a.cfg.Alerting.Telegram.APIBase,
				0,
				a.logger,
			))
		default:
			a.logger.Warn().Str("channel", channel).Msg("未知的告警通道，忽略")
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return alerting.NewFanout(targets, a.logger)
}
