package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"adhanbot/internal/alerts"
	"adhanbot/internal/engine"
	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logging)
	r.Use(s.recovery)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.Upgrade).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.state).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.pendingAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts.ics", s.alertsICS).Methods(http.MethodGet)

	guarded := api.NewRoute().Subrouter()
	guarded.Use(requireToken(s.cfg.Token))
	guarded.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)
	guarded.HandleFunc("/notify/{kind}", s.toggle).Methods(http.MethodPost)

	if s.cfg.Pprof {
		debug := r.PathPrefix("/debug").Subrouter()
		debug.Use(requireToken(s.cfg.Token))
		mountPprof(debug)
	}
	return r
}

// Error codes.
const (
	errBadRequest  = "bad_request"
	errConflict    = "conflict"
	errInternal    = "internal_error"
	errUnavailable = "unavailable"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

type healthResponse struct {
	Status  string         `json:"status"`
	State   string         `json:"state"`
	Clients int            `json:"ws_clients"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Engine.Snapshot()
	resp := healthResponse{Status: "ok", State: snap.State, Clients: s.hub.ClientCount()}
	if s.deps.Health != nil {
		resp.Details = s.deps.Health()
	}
	status := http.StatusOK
	if snap.State == engine.StatePending {
		resp.Status = "starting"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

type alertsResponse struct {
	Pending []string       `json:"pending"`
	Plan    []alerts.Entry `json:"plan"`
}

func (s *Server) pendingAlerts(w http.ResponseWriter, r *http.Request) {
	resp := alertsResponse{Plan: s.deps.Engine.Snapshot().Plan}
	if s.deps.Alerts != nil {
		ids, err := s.deps.Alerts.Pending(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, errInternal, err.Error())
			return
		}
		resp.Pending = ids
	}
	if resp.Pending == nil {
		resp.Pending = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) alertsICS(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := alerts.WriteICS(&buf, s.deps.Engine.Snapshot().Plan, time.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="adhanbot.ics"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Engine.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, errUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	k, err := prayer.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		writeError(w, http.StatusBadRequest, errBadRequest, err.Error())
		return
	}
	on := true
	if v := r.URL.Query().Get("enabled"); v != "" {
		on, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, errBadRequest, "enabled must be true or false")
			return
		}
	}
	switch err := s.deps.Engine.Toggle(r.Context(), k, on); {
	case err == nil:
	case errors.Is(err, engine.ErrInformational), errors.Is(err, engine.ErrUnconfigured):
		writeError(w, http.StatusConflict, errConflict, err.Error())
		return
	default:
		writeError(w, http.StatusServiceUnavailable, errUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the hijacker for websocket upgrades.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("took", time.Since(start)),
		)
	})
}

func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("http handler panic", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
				writeError(w, http.StatusInternalServerError, errInternal, "unexpected error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
