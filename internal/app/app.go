package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"teacherbot/internal/access"
	"teacherbot/internal/broadcast"
	"teacherbot/internal/config"
	"teacherbot/internal/dedup"
	"teacherbot/internal/eventbus"
	"teacherbot/internal/export"
	"teacherbot/internal/notifier"
	"teacherbot/internal/observability/ops"
	"teacherbot/internal/registration"
	rtsup "teacherbot/internal/runtime/supervisor"
	"teacherbot/internal/scheduler"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/internal/transport"
	telegram "teacherbot/internal/transport/telegram/adapter"
	"teacherbot/internal/transport/telegram/router"
	"teacherbot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	root logx.Logger
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	adapter *telegram.Adapter
	notif   *notifier.Service

	sessions *session.Sessions
	drafts   *session.Drafts
	guard    *dedup.Guard
	resolver *access.Resolver

	reg    *registration.Flow
	bcast  *broadcast.Engine
	export *export.Exporter
	router *router.Router

	sched   *scheduler.Service
	metrics *ops.Metrics
	ops     *ops.Service

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("dotenv: %w", err)
	}
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.Poll(),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg), ad)
	log := root.With(logx.String("comp", "app"))

	notifCfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}

	octx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := storage.Open(octx, mapStorageConfig(cfg), root.With(logx.String("comp", "storage")))
	cancel()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	notif := notifier.New(notifCfg, ad, root.With(logx.String("comp", "notifier")), bus)

	sessions := session.NewSessions()
	drafts := session.NewDrafts()
	guard := dedup.New()
	resolver := access.NewResolver(cfg.Access.UrSuperAdmins, store.SuperAdmins, store.Admins, store.Teachers,
		root.With(logx.String("comp", "access")))

	reg := registration.New(cfg.Registration, store.Teachers, sessions, notif, resolver.AllowList, bus,
		root.With(logx.String("comp", "registration")))
	bcast := broadcast.New(cfg.Telegram.ChannelID, cfg.Broadcast, ad, store.Messages, store.Confirmations, store.Teachers,
		drafts, bus, root.With(logx.String("comp", "broadcast")))
	exp := export.New(store, bcast.LastStatus)

	rt := router.New(router.Deps{
		Adapter:      ad,
		Resolver:     resolver,
		Sessions:     sessions,
		Registration: reg,
		Broadcast:    bcast,
		Store:        store,
		Export:       exp,
		Guard:        guard,
		Bus:          bus,
		Log:          root,
		Config:       cfg.Router,
	})

	sched := scheduler.New(root)
	a := &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		root:     root,
		log:      log,
		logs:     logs,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notif,
		sessions: sessions,
		drafts:   drafts,
		guard:    guard,
		resolver: resolver,
		reg:      reg,
		bcast:    bcast,
		export:   exp,
		router:   rt,
		sched:    sched,
		updates:  make(chan transport.Update, 256),
	}
	if err := scheduler.RegisterMaintenance(sched, *cfg, a.maintenance()); err != nil {
		_ = store.Close()
		return nil, err
	}

	a.metrics = ops.NewMetrics(ops.Gauges{Sessions: sessions.Len, Drafts: drafts.Len, DedupKeys: guard.Len})
	a.ops = ops.New(cfg.Ops, a.metrics, []ops.Check{
		{Name: "storage", Fn: store.Ping},
		{Name: "router", Fn: a.routerAlive},
	}, root)
	return a, nil
}

func (a *App) maintenance() scheduler.Maintenance {
	return scheduler.Maintenance{
		Guard:    a.guard,
		Sessions: a.sessions,
		Drafts:   a.drafts,
		Bus:      a.bus,
		Log:      a.root.With(logx.String("comp", "maintenance")),
	}
}

func (a *App) routerAlive(context.Context) error {
	if a.router.Supervisor() == nil {
		return errors.New("dispatcher not running")
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// reject bad hot-reloads before they are committed
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		if cfg.Session.Sweep() > cfg.Session.Idle() {
			return fmt.Errorf("session.sweep_every (%s) must not exceed session.idle_timeout (%s)", cfg.Session.Sweep(), cfg.Session.Idle())
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.sched.Start(a.sup.Context())
	a.ops.Start(a.sup.Context())

	a.sup.Go0("metrics.consume", func(c context.Context) { a.metrics.Consume(c, a.bus) })

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		sdNotify(a.log, daemon.SdNotifyReady)
		a.sup.Go0("systemd.watchdog", func(c context.Context) { watchdog(c, a.log) })
	}

	a.log.Info("app started",
		logx.String("config", a.cfgPath),
		logx.String("bot", a.adapter.BotUsername()),
		logx.String("storage", a.store.Driver()),
	)
	return nil
}

// applyConfig fans a committed config out to every live component.
func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(cfg))
	a.resolver.SetAllowList(cfg.Access.UrSuperAdmins)
	a.reg.Apply(cfg.Registration)
	a.bcast.Apply(cfg.Telegram.ChannelID, cfg.Broadcast)
	if nc, err := mapNotifierConfig(cfg); err == nil {
		a.notif.Apply(nc)
		if nc.Enabled {
			a.notif.Start(a.sup.Context())
		}
	}
	if err := scheduler.RegisterMaintenance(a.sched, *cfg, a.maintenance()); err != nil {
		a.log.Warn("maintenance schedule not updated", logx.Err(err))
	}
	a.ops.Reconfigure(ctx, cfg.Ops)

	if restart := config.RequiresRestart(sections); len(restart) > 0 {
		a.log.Warn("config sections need a restart to take full effect", logx.Strs("sections", restart))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if cfg := a.cfgm.Get(); cfg != nil && cfg.Systemd.Notify {
		sdNotify(a.log, daemon.SdNotifyStopping)
	}

	a.sup.Cancel()

	// step bounds one shutdown stage; the caller's deadline is never extended.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < max {
				max = rem
			}
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	// waits for the dispatcher so no handler touches a closed store
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
