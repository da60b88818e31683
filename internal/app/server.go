package app

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"plantmart/internal/bus"
	"plantmart/internal/update"
	"plantmart/pkg/logx"
)

const maxIngestBody = 64 << 10

// routes builds the daemon's HTTP surface: push ingest, the bridge
// endpoint, and diagnostics.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if a.cfgm.Get().Server.DebugPprof {
		r.Mount("/debug", middleware.Profiler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ingest", a.handleIngest)
		r.Post("/trigger", a.handleTrigger)
		r.Get("/status", a.handleStatus)
		r.Get("/updates/{kind}", a.handleCheck)
		r.Delete("/updates/{kind}", a.handleClear)
		if a.hub != nil {
			r.Get("/bridge", a.hub.ServeHTTP)
		}
	})

	return r
}

// handleIngest accepts an external push payload. 202 whether or not the
// type mapped: unknown types are dropped by design, and the push provider
// retrying a payload we will never understand helps nobody. Only
// transport-level problems (bad body, rate limit) get error statuses.
func (a *App) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.Allow() {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil || len(raw) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	source := update.SourcePush
	if s, err := update.ParseSource(r.URL.Query().Get("channel")); err == nil && s == update.SourceSignalR {
		source = update.SourceSignalR
	}

	_ = a.ingest.Ingest(r.Context(), raw, source)
	w.WriteHeader(http.StatusAccepted)
}

type triggerRequest struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
	Silent  bool           `json:"silent,omitempty"`
}

type triggerResponse struct {
	Durable bool `json:"durable"`
}

// handleTrigger lets a local producer (another process on the device) fire
// a trigger over HTTP instead of in-process.
func (a *App) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxIngestBody)).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}
	kind, err := update.ParseKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok := a.bus.Trigger(r.Context(), kind, req.Payload, bus.Options{Silent: req.Silent})
	writeJSON(w, a.log, triggerResponse{Durable: ok})
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.log, a.bus.AllStatus(r.Context()))
}

func (a *App) handleCheck(w http.ResponseWriter, r *http.Request) {
	kind, err := update.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, a.log, a.bus.CheckForUpdate(r.Context(), kind))
}

func (a *App) handleClear(w http.ResponseWriter, r *http.Request) {
	kind, err := update.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !a.bus.ClearUpdate(r.Context(), kind) {
		http.Error(w, "clear failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, log logx.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("response encode failed", logx.Err(err))
	}
}
