// Package api serves the read/trigger HTTP surface: state snapshot, pending
// alerts, an iCalendar export of the current plan, refresh and notify
// toggles, and a websocket stream of engine events.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"adhanbot/internal/engine"
	"adhanbot/internal/eventbus"
	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
	// Token guards the mutating endpoints and /debug. Binding to a
	// non-loopback address requires it unless AllowInsecure is set.
	Token         string
	AllowInsecure bool
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool
}

// ErrInsecureBind is returned by Start for a public address without a token.
var ErrInsecureBind = errors.New("api: non-loopback addr requires token or allow_insecure")

// Engine is the subset of the engine the API drives. Toggle is expected to
// persist the preference as well.
type Engine interface {
	Snapshot() *engine.Snapshot
	Refresh(ctx context.Context) error
	Toggle(ctx context.Context, k prayer.Kind, on bool) error
}

type AlertLister interface {
	Pending(ctx context.Context) ([]string, error)
}

type Deps struct {
	Engine Engine
	Alerts AlertLister
	Bus    eventbus.Bus
	// Health adds component details to /health; nil means none.
	Health func() map[string]any
}

type Server struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	hub  *Hub

	mu   sync.Mutex
	srv  *http.Server
	done chan struct{}
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8095"
	}
	return &Server{cfg: cfg, deps: deps, log: log, hub: NewHub(deps.Engine, log.With(logx.String("comp", "api.ws")))}
}

// Handler returns the router; tests serve it with httptest.
func (s *Server) Handler() http.Handler { return s.router() }

// Start listens on the configured address and serves until Stop. The hub
// follows the bus until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	if s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		if !s.cfg.AllowInsecure {
			return ErrInsecureBind
		}
		s.log.Warn("api running without token on non-loopback addr (insecure)", logx.String("addr", s.cfg.Addr))
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.srv = srv
	s.done = make(chan struct{})

	go s.hub.Run(ctx, s.deps.Bus)
	go func(done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server failed", logx.Err(err))
		}
	}(s.done)
	s.log.Info("http server listening", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.done = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.hub.CloseAll()
	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
