package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"adhanbot/internal/alerts"
	"adhanbot/internal/api"
	"adhanbot/internal/config"
	"adhanbot/internal/dispatch"
	"adhanbot/internal/engine"
	"adhanbot/internal/eventbus"
	"adhanbot/internal/notifier"
	"adhanbot/internal/prayer"
	rtsup "adhanbot/internal/runtime/supervisor"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/solver"
	"adhanbot/internal/storage"
	"adhanbot/internal/transport"
	"adhanbot/internal/transport/telegram"
	logx "adhanbot/pkg/logx"
)

// Scheduler job names.
const (
	jobRefresh       = "engine.refresh"
	jobSolverRefresh = "solver.refresh"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
	StopAppStop    StopReason = "app_stop"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	prefs *prefs

	solvers *solver.Switch
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	disp    *dispatch.Service

	// guarded by mu; swapped on reload
	mu      sync.Mutex
	rt      *config.Runtime
	src     *source
	adapter *telegram.Adapter
	api     *api.Server
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	rt, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, log := logx.New(rt.Logging, nil)
	appLog := log.With(logx.String("comp", "app"))

	var ad *telegram.Adapter
	if rt.Telegram.Token != "" {
		ad, err = telegram.New(rt.Telegram, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		logSvc.SetSink(ad)
		appLog.Info("telegram ready", logx.String("bot", ad.Username()))
	} else {
		appLog.Warn("telegram token not set; alerts are logged only")
	}

	store, err := storage.Open(rt.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store == nil {
		store = storage.NewMemory()
	}

	bus := eventbus.New()
	ctx := context.Background()

	src, err := buildSource(ctx, rt.Solver, log.With(logx.String("comp", "solver")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	switcher := solver.NewSwitch(src.solver())

	sched := scheduler.New(rt.Scheduler, log.With(logx.String("comp", "scheduler")))
	notif := notifier.New(rt.Notifier, senderOf(ad), log.With(logx.String("comp", "notifier")), bus)
	disp := dispatch.New(dispatch.Config{Target: rt.Target, Grace: rt.RestoreGrace}, store, sched, notif, bus,
		log.With(logx.String("comp", "dispatch")))

	computer := prayer.NewComputer(switcher, log.With(logx.String("comp", "prayer")))
	projector := alerts.NewProjector(computer, disp, alerts.DefaultOptions(), log.With(logx.String("comp", "alerts")))

	p := &prefs{store: store, log: log.With(logx.String("comp", "prefs"))}
	eng := engine.New(engine.Config{}, p.overlay(ctx, rt.Setup), computer, projector, store, bus,
		log.With(logx.String("comp", "engine")))

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		prefs:   p,
		solvers: switcher,
		engine:  eng,
		sched:   sched,
		notif:   notif,
		disp:    disp,
		rt:      rt,
		src:     src,
		adapter: ad,
	}
	a.api = a.newAPI(rt.API)
	return a, nil
}

// senderOf keeps a nil adapter a nil interface.
func senderOf(ad *telegram.Adapter) transport.Sender {
	if ad == nil {
		return nil
	}
	return ad
}

func (a *App) newAPI(cfg api.Config) *api.Server {
	return api.New(cfg, api.Deps{
		Engine: toggler{Service: a.engine, prefs: a.prefs},
		Alerts: a.disp,
		Bus:    a.bus,
		Health: a.health,
	}, a.log.With(logx.String("comp", "api")))
}

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return config.Validate(cfg) })

	a.notif.Start(runCtx)
	a.sched.Start(runCtx)

	if _, _, err := a.disp.Restore(runCtx, time.Now()); err != nil {
		a.log.Warn("alert restore failed", logx.Err(err))
	}

	a.mu.Lock()
	rt, src, srv := a.rt, a.src, a.api
	a.mu.Unlock()
	if err := a.registerJobs(rt, src); err != nil {
		return err
	}

	a.engine.Start(runCtx)
	if err := srv.Start(runCtx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	a.sup.Go("eventbus.log", func(c context.Context) error {
		a.logEvents(c)
		return nil
	})
	a.sup.Go("config.reload", func(c context.Context) error {
		a.reloadLoop(c)
		return nil
	})
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return watchdog(c, a.log, func() bool { return a.engine.Snapshot().State != engine.StatePending })
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started", logx.String("state", a.engine.Snapshot().State))
	return nil
}

func (a *App) registerJobs(rt *config.Runtime, src *source) error {
	if err := a.sched.AddSchedule(jobRefresh, rt.Refresh, 2*time.Minute, func(c context.Context) error {
		run, err := a.engine.Reschedule(c, engine.CauseCron)
		if err == nil {
			a.log.Info("daily reschedule", logx.String("run_id", run.RunID), logx.Int("planned", run.Planned), logx.Int("failed", run.Failed))
		}
		return err
	}); err != nil {
		return fmt.Errorf("scheduler.refresh: %w", err)
	}
	if src.calendar == nil {
		a.sched.Remove(jobSolverRefresh)
		return nil
	}
	return a.sched.AddSchedule(jobSolverRefresh, "interval:"+rt.Solver.Refresh.String(), time.Minute, func(c context.Context) error {
		if err := src.reload(c); err != nil {
			return err
		}
		return a.engine.Refresh(c)
	})
}

func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) health() map[string]any {
	out := map[string]any{
		"supervisor": a.sup.Stats(),
		"pending":    len(a.sched.Pending()),
		"schedules":  a.sched.Schedules(),
	}
	if h := a.notif.History(); len(h) > 0 {
		out["last_notification"] = h[len(h)-1]
	}
	return out
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)
	a.sup.Cancel()

	a.mu.Lock()
	srv := a.api
	a.mu.Unlock()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("api", 2*time.Second, srv.Stop)
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("engine", 2*time.Second, a.engine.Stop)
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// reloadLoop applies committed config changes. Bursts are coalesced to the
// newest config.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			sections, attrs := config.SummarizeConfigChange(last, next)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			if err := a.applyConfig(ctx, sections, next); err != nil {
				a.log.Warn("config reload incomplete", logx.Err(err))
			}
			last = next
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, sections []string, cfg *config.Config) error {
	rt, err := config.Resolve(cfg)
	if err != nil {
		return err
	}
	a.mu.Lock()
	prev := a.rt
	a.rt = rt
	a.mu.Unlock()

	var errs []error
	has := func(s string) bool { return config.Changed(sections, s) }

	if has(config.SectionLogging) {
		a.logs.Apply(rt.Logging)
	}
	if has(config.SectionTelegram) {
		if err := a.applyTelegram(prev, rt); err != nil {
			errs = append(errs, err)
		}
	}
	if has(config.SectionNotifier) {
		a.notif.Apply(rt.Notifier)
		if !rt.Notifier.Enabled {
			a.notif.Stop(ctx)
		} else {
			a.notif.Start(a.sup.Context())
		}
	}
	if has(config.SectionStorage) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if has(config.SectionScheduler) {
		a.sched.Apply(rt.Scheduler)
		a.disp.SetGrace(rt.RestoreGrace)
	}

	solverChanged := has(config.SectionSolver)
	if solverChanged {
		src, err := buildSource(ctx, rt.Solver, a.log.With(logx.String("comp", "solver")))
		if err != nil {
			errs = append(errs, err)
			solverChanged = false
		} else {
			a.mu.Lock()
			a.src = src
			a.mu.Unlock()
			a.solvers.Set(src.solver())
		}
	}
	if has(config.SectionScheduler) || solverChanged {
		a.mu.Lock()
		src := a.src
		a.mu.Unlock()
		if err := a.registerJobs(rt, src); err != nil {
			errs = append(errs, err)
		}
	}

	switch {
	case has(config.SectionLocation) || has(config.SectionCalculation):
		a.prefs.reconcile(ctx, prev.Setup, rt.Setup)
		if err := a.engine.SetSetup(ctx, a.prefs.overlay(ctx, rt.Setup)); err != nil {
			errs = append(errs, err)
		}
	case solverChanged:
		if err := a.engine.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if has(config.SectionAPI) {
		if err := a.restartAPI(ctx, rt.API); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// applyTelegram retargets alerts and rebuilds the adapter only when the
// connection settings changed.
func (a *App) applyTelegram(prev, rt *config.Runtime) error {
	a.disp.SetTarget(rt.Target)
	if prev.Telegram == rt.Telegram {
		return nil
	}

	var ad *telegram.Adapter
	if rt.Telegram.Token != "" {
		var err error
		ad, err = telegram.New(rt.Telegram, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}
	a.mu.Lock()
	a.adapter = ad
	a.mu.Unlock()
	a.notif.SetSender(senderOf(ad))
	if ad == nil {
		a.logs.SetSink(nil)
	} else {
		a.logs.SetSink(ad)
	}
	return nil
}

func (a *App) restartAPI(ctx context.Context, cfg api.Config) error {
	a.mu.Lock()
	old := a.api
	a.mu.Unlock()
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_ = old.Stop(stopCtx)
	cancel()

	srv := a.newAPI(cfg)
	a.mu.Lock()
	a.api = srv
	a.mu.Unlock()
	return srv.Start(a.sup.Context())
}
