// Package app wires the update bus, its durable store, transports, the
// HTTP surface, and the janitor into one lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"plantmart/internal/bus"
	"plantmart/internal/cascade"
	"plantmart/internal/config"
	"plantmart/internal/flagstore"
	"plantmart/internal/transport"
	"plantmart/internal/transport/push"
	"plantmart/internal/transport/wsbridge"
	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logh *logx.Handle
	log  logx.Logger

	backend flagstore.Backend
	flags   *flagstore.Flags
	bus     *bus.Bus
	hub     *wsbridge.Hub
	ingest  *push.Ingestor
	limiter *rate.Limiter

	httpSrv *http.Server
	janitor *janitor

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the full object graph from the config file. Nothing runs yet;
// call Start.
func New(cfgPath string) (*App, error) {
	boot := logx.NewConsole("info")
	cfgm := config.NewManager(cfgPath, boot)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logh, log, err := logx.Open(cfg.LogxConfig())
	if err != nil {
		return nil, fmt.Errorf("open logging: %w", err)
	}

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	backend, err := flagstore.Open(storeCfg, log.With(logx.String("comp", "flagstore")))
	if err != nil {
		_ = logh.Close()
		return nil, fmt.Errorf("open flag store: %w", err)
	}

	policy, err := cfg.RetryPolicy()
	if err != nil {
		_ = backend.Close()
		_ = logh.Close()
		return nil, err
	}
	flags := flagstore.NewFlags(backend, policy, log.With(logx.String("comp", "flagstore")))

	resolver, err := cascade.NewResolver(update.DefaultCascades())
	if err != nil {
		_ = backend.Close()
		_ = logh.Close()
		return nil, fmt.Errorf("cascade table: %w", err)
	}

	recent, err := cfg.RecentWindow()
	if err != nil {
		_ = backend.Close()
		_ = logh.Close()
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		logh:    logh,
		log:     log,
		backend: backend,
		flags:   flags,
	}

	var transports []transport.Publisher
	if cfg.BridgeEnabled() {
		a.hub = wsbridge.NewHub(func(ctx context.Context, rec update.Record) bool {
			return a.bus.Apply(ctx, rec)
		}, cfg.Bridge.SendRatePerSec, log.With(logx.String("comp", "wsbridge")))
		transports = append(transports, a.hub)
	}

	a.bus = bus.New(bus.Config{
		Flags:        flags,
		Resolver:     resolver,
		Transports:   transports,
		RecentWindow: recent,
		Log:          log.With(logx.String("comp", "bus")),
	})

	a.ingest = push.NewIngestor(func(ctx context.Context, kind update.Kind, payload map[string]any, source update.Source) bool {
		return a.bus.Trigger(ctx, kind, payload, bus.Options{Source: source})
	}, log.With(logx.String("comp", "push")))

	rps := cfg.Server.IngestRatePerSec
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Server.IngestBurst
	if burst <= 0 {
		burst = 2 * rps
	}
	a.limiter = rate.NewLimiter(rate.Limit(rps), burst)

	a.janitor = newJanitor(a.flags, log.With(logx.String("comp", "janitor")))
	a.httpSrv = &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a, nil
}

// Bus exposes the facade for in-process consumers (tests, embedding).
func (a *App) Bus() *bus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	cfg := a.cfgm.Get()
	if cfg.Janitor.Enabled {
		retention, err := cfg.Retention()
		if err != nil {
			return err
		}
		if err := a.janitor.start(cfg.JanitorSchedule(), retention); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case next := <-sub:
				if next != nil {
					a.applyReload(next)
				}
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("http listening", logx.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server stopped", logx.Err(err))
		}
	}()

	return nil
}

// applyReload applies the hot-reloadable subset of a committed config:
// log sinks/level, ingest rate, and janitor schedule. Store driver and
// listen address changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	if err := a.logh.Apply(cfg.LogxConfig()); err != nil {
		a.log.Warn("log reconfigure failed", logx.Err(err))
	}

	rps := cfg.Server.IngestRatePerSec
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Server.IngestBurst
	if burst <= 0 {
		burst = 2 * rps
	}
	a.limiter.SetLimit(rate.Limit(rps))
	a.limiter.SetBurst(burst)

	a.janitor.stop()
	if cfg.Janitor.Enabled {
		retention, err := cfg.Retention()
		if err != nil {
			a.log.Warn("janitor reconfigure failed", logx.Err(err))
			return
		}
		if err := a.janitor.start(cfg.JanitorSchedule(), retention); err != nil {
			a.log.Warn("janitor reconfigure failed", logx.Err(err))
		}
	}
	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := a.httpSrv.Shutdown(sctx)

	a.janitor.stop()
	if a.hub != nil {
		_ = a.hub.Close()
	}
	a.bus.Close()
	a.wg.Wait()

	if cerr := a.flags.Close(); cerr != nil && err == nil {
		err = cerr
	}
	_ = a.logh.Close()
	return err
}
