package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tob-party-sync/internal/engine"
	"github.com/DoyleJ11/tob-party-sync/internal/hub"
	"github.com/DoyleJ11/tob-party-sync/internal/session"
	"github.com/DoyleJ11/tob-party-sync/internal/signals"
	"github.com/DoyleJ11/tob-party-sync/internal/types"
	pkgtypes "github.com/DoyleJ11/tob-party-sync/pkg/types"
)

const (
	// Clients tick every game tick, so a silent connection is a dead one.
	readTimeout  = 30 * time.Second
	writeTimeout = 3 * time.Second
)

type Options struct {
	// Policy is the server default that hello overrides apply to.
	Policy engine.Policy
	// Recorder may be nil.
	Recorder session.Recorder
	Log      *zap.Logger
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client")
		if clientID == "" {
			http.Error(w, "missing client", http.StatusBadRequest)
			return
		}

		clog := log.With(zap.String("client_id", clientID))
		b := newBridge()

		sess, err := h.Create(clientID, b.host(opts.Recorder))
		switch {
		case errors.Is(err, hub.ErrStopped):
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, "client already connected", http.StatusConflict)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			b.close()
			h.Remove(clientID)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// Mark the bridge closed before the session tears down, so a
		// teardown leave fails fast instead of queueing for a dead writer.
		defer func() {
			b.close()
			h.Remove(clientID)
		}()

		// Writer goroutine. When the session ends first (server shutdown),
		// its teardown leave is flushed before the connection is closed.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case msg := <-b.out:
					write(writeCtx, conn, msg, clog)
				case <-sess.Done():
					b.flush(writeCtx, conn, clog)
					conn.Close(websocket.StatusGoingAway, "session ended")
					return
				}
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					clog.Info("connection dropped", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = b.send(r.Context(), types.ServerMessage{Type: pkgtypes.MsgError, Error: "bad json"})
				continue
			}

			msgs, ok := b.apply(cm, opts.Policy)
			if !ok {
				_ = b.send(r.Context(), types.ServerMessage{Type: pkgtypes.MsgError, Error: "unknown type"})
				continue
			}
			for _, m := range msgs {
				select {
				case sess.Inbox() <- m:
				case <-sess.Done():
					return
				case <-r.Context().Done():
					return
				}
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage, log *zap.Logger) {
	payload, _ := json.Marshal(msg)
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		log.Debug("write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

// flush writes whatever is still queued.
func (b *bridge) flush(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	for {
		select {
		case msg := <-b.out:
			write(ctx, conn, msg, log)
		default:
			return
		}
	}
}

// apply updates the mirror from a client message and returns what the
// session must be told about it.
func (b *bridge) apply(m types.ClientMessage, base engine.Policy) ([]session.Msg, bool) {
	switch m.Type {
	case pkgtypes.MsgHello:
		b.SetWorld(m.World, m.LocalName)
		msgs := []session.Msg{session.SetPolicy{Policy: withOverrides(base, m)}}
		if m.CurrentGroup != "" {
			msgs = append(msgs, session.GroupReported{Group: m.CurrentGroup})
		}
		return msgs, true

	case pkgtypes.MsgFields:
		b.SetFields(m.RaidState, m.PartyState)
		field := signals.Field(m.Field)
		if field != signals.FieldParty {
			field = signals.FieldRaid
		}
		return []session.Msg{session.FieldChanged{Field: field}}, true

	case pkgtypes.MsgRoster:
		b.SetRoster(m.Text, m.Visible)
		return nil, true

	case pkgtypes.MsgWorld:
		b.SetWorld(m.World, m.LocalName)
		return nil, true

	case pkgtypes.MsgTick:
		return []session.Msg{session.Tick{}}, true

	case pkgtypes.MsgReset:
		b.SetFields(0, 0)
		b.SetRoster("", false)
		return []session.Msg{session.Reset{}}, true

	default:
		return nil, false
	}
}

func withOverrides(p engine.Policy, m types.ClientMessage) engine.Policy {
	if m.AutoLeaveOnExit != nil {
		p.AutoLeaveOnExit = *m.AutoLeaveOnExit
	}
	if m.EnableNotifications != nil {
		p.EnableNotifications = *m.EnableNotifications
	}
	if m.ForceJoinMode != nil {
		p.ForceJoinMode = *m.ForceJoinMode
	}
	return p
}
