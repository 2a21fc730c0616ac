package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tob-party-sync/internal/hub"
	"github.com/DoyleJ11/tob-party-sync/internal/session"
	"github.com/DoyleJ11/tob-party-sync/internal/store"
	pkgtypes "github.com/DoyleJ11/tob-party-sync/pkg/types"
)

const stateTimeout = 2 * time.Second

// Journal is the group change log behind /sessions/{id}/history.
type Journal interface {
	session.Recorder
	History(ctx context.Context, clientID string, limit int) ([]store.GroupChange, error)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s := h.Get(id)
		if s == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), stateTimeout)
		defer cancel()

		reply := make(chan session.View, 1)
		select {
		case s.Inbox() <- session.GetState{Reply: reply}:
		case <-s.Done():
			http.Error(w, "session not found", http.StatusNotFound)
			return
		case <-ctx.Done():
			http.Error(w, "session busy", http.StatusServiceUnavailable)
			return
		}

		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, toView(v))
		case <-s.Done():
			http.Error(w, "session not found", http.StatusNotFound)
		case <-ctx.Done():
			http.Error(w, "session busy", http.StatusServiceUnavailable)
		}
	}
}

func History(j Journal, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if j == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}

		limit := store.DefaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		changes, err := j.History(r.Context(), chi.URLParam(r, "id"), limit)
		if err != nil {
			log.Error("failed to read history", zap.Error(err))
			http.Error(w, "failed to read history", http.StatusInternalServerError)
			return
		}

		out := make([]pkgtypes.GroupChange, 0, len(changes))
		for _, c := range changes {
			out = append(out, pkgtypes.GroupChange{
				Action:    c.Action,
				Group:     c.Group,
				Canonical: c.Canonical,
				Error:     c.Error,
				CreatedAt: c.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func toView(v session.View) pkgtypes.SessionView {
	out := pkgtypes.SessionView{
		ClientID:     v.ID,
		Phase:        string(v.State.Phase),
		InTeam:       v.Status.InTeam,
		RaidState:    v.Status.RaidState,
		PartyState:   v.Status.PartyState,
		CurrentGroup: v.State.CurrentGroupName(),
		PendingJoin:  v.State.PendingJoin,
		Leader:       v.Cache.Leader,
		LastChecked:  v.Cache.LastCheckedAt,
		Policy: pkgtypes.Policy{
			AutoLeaveOnExit:     v.Policy.AutoLeaveOnExit,
			EnableNotifications: v.Policy.EnableNotifications,
			ForceJoinMode:       v.Policy.ForceJoinMode,
			RecheckTicks:        v.Policy.RecheckTicks,
		},
	}
	if v.State.CurrentGroup != nil {
		out.Canonical = v.State.CurrentGroup.Canonical
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
