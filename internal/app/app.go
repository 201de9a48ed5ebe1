// Package app wires the configuration, storage, notification, and
// scheduling services into one process.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lexflow/internal/activity"
	"lexflow/internal/config"
	"lexflow/internal/eventbus"
	"lexflow/internal/finance"
	"lexflow/internal/notify"
	"lexflow/internal/scheduler"
	"lexflow/internal/store"
	"lexflow/internal/tools"
	"lexflow/internal/workflow"
	"lexflow/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	st    store.Store
	bus   eventbus.Bus
	notif *notify.Service
	rec   *activity.Recorder
	sched *scheduler.Service

	schedulerOn bool
	notifierOn  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("svc", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("svc", "config")))
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return validate(c)
	})
	if err := validate(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	}

	poll, _ := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, time.Minute)
	jobTimeout, _ := config.ParseDurationOrDefault("scheduler.job_timeout", cfg.Scheduler.JobTimeout, 5*time.Minute)

	storeCfg := store.Config{Driver: "memory"}
	if cfg.Storage != nil {
		busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		storeCfg = store.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}
	}
	st, err := store.Open(storeCfg, logs.Logger().With(logx.String("svc", "store")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	var mailer notify.Mailer = notify.LogMailer{Log: logs.Logger().With(logx.String("svc", "mail"))}
	if cfg.SMTP != nil {
		smtp, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			_ = st.Close()
			_ = logs.Close()
			return nil, err
		}
		mailer = smtp
	}

	notifCfg, notifierOn := notifyConfig(cfg.Notifier)
	notif := notify.New(notifCfg, mailer, logs.Logger().With(logx.String("svc", "notify")))

	bus := eventbus.New()
	rec := activity.NewRecorder(st, bus, logs.Logger())

	runner := tools.NewRecorded(tools.Stub{}, st, logs.Logger().With(logx.String("svc", "tools")))
	engine := workflow.NewEngine(st, runner, logs.Logger().With(logx.String("svc", "workflow")))

	sender := finance.NewMailReminderSender(st, mailer, logs.Logger())
	handlers := &scheduler.Handlers{
		Tools:          runner,
		Workflows:      engine,
		Reconciliation: finance.NopReconciliations{},
		Reminders:      finance.NewReminderSweep(st, sender, logs.Logger()),
		VendorPayments: finance.NewVendorPaymentSweep(st, logs.Logger()),
	}
	sched := scheduler.New(
		scheduler.Config{PollInterval: poll, JobTimeout: jobTimeout},
		st, handlers, bus, notif,
		logs.Logger(),
	)

	return &App{
		cfgm:        cfgm,
		logs:        logs,
		log:         log,
		st:          st,
		bus:         bus,
		notif:       notif,
		rec:         rec,
		sched:       sched,
		schedulerOn: cfg.Scheduler.Enabled,
		notifierOn:  notifierOn,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.notifierOn {
		a.notif.Start(ctx)
	}
	a.rec.Start(ctx)
	if a.schedulerOn {
		a.sched.Start(ctx)
	} else {
		a.log.Warn("scheduler disabled by config")
	}

	// Follow the config file. Logging changes apply live; anything else
	// takes effect on restart.
	updates := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.logs.Apply(logConfig(cfg))
				a.log.Info("logging config applied; other sections take effect on restart")
			}
		}
	}()

	a.log.Info("started")
	return nil
}

func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.sched.Stop()
	a.rec.Stop()
	a.notif.Stop()
	a.wg.Wait()
	if err := a.st.Close(); err != nil {
		a.log.Warn("close store", logx.Err(err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
}

func validate(cfg *config.Config) error {
	if _, err := config.ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("scheduler.job_timeout", cfg.Scheduler.JobTimeout); err != nil {
		return err
	}
	if cfg.Storage != nil {
		switch cfg.Storage.Driver {
		case "memory", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if n := cfg.Notifier; n != nil {
		if _, err := config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
			return err
		}
	}
	return nil
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// notifyConfig maps the optional config section onto pipeline settings.
// An omitted section means enabled with defaults.
func notifyConfig(n *config.NotifierConfig) (notify.Config, bool) {
	if n == nil {
		return notify.Config{}, true
	}
	base, _ := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	maxDelay, _ := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	return notify.Config{
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, n.Enabled
}
