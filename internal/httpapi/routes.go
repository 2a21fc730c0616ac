package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tob-party-sync/internal/engine"
	"github.com/DoyleJ11/tob-party-sync/internal/hub"
	"github.com/DoyleJ11/tob-party-sync/internal/session"
	"github.com/DoyleJ11/tob-party-sync/internal/ws"
)

type Options struct {
	Policy engine.Policy
	// Journal may be nil, which disables recording and history.
	Journal Journal
	Log     *zap.Logger
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	var rec session.Recorder
	if opts.Journal != nil {
		rec = opts.Journal
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, ws.Options{Policy: opts.Policy, Recorder: rec, Log: log}))
	r.Get("/sessions/{id}", GetSession(h))
	r.Get("/sessions/{id}/history", History(opts.Journal, log))
	return r
}
