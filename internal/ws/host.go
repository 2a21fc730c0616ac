package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DoyleJ11/tob-party-sync/internal/resolver"
	"github.com/DoyleJ11/tob-party-sync/internal/session"
	"github.com/DoyleJ11/tob-party-sync/internal/signals"
	"github.com/DoyleJ11/tob-party-sync/internal/types"
	pkgtypes "github.com/DoyleJ11/tob-party-sync/pkg/types"
)

var ErrClosed = errors.New("connection closed")

// Mirror is the last state the client reported. The connection's reader
// writes it and the session reads it, so every access holds mu.
type Mirror struct {
	mu            sync.Mutex
	raid, party   int
	rosterText    string
	rosterVisible bool
	world         int
	localName     string
}

func (m *Mirror) SetFields(raid, party int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raid, m.party = raid, party
}

func (m *Mirror) SetRoster(text string, visible bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosterText, m.rosterVisible = text, visible
}

func (m *Mirror) SetWorld(world int, localName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.world, m.localName = world, localName
}

func (m *Mirror) PollField(f signals.Field) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch f {
	case signals.FieldRaid:
		return m.raid, nil
	case signals.FieldParty:
		return m.party, nil
	default:
		return 0, fmt.Errorf("%w: unknown %s", signals.ErrFieldRead, f)
	}
}

func (m *Mirror) ReadDisplayText(w resolver.Widget) (string, bool, error) {
	if w != resolver.WidgetTeamNames {
		return "", false, fmt.Errorf("unknown widget %q", w)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rosterText, m.rosterVisible, nil
}

func (m *Mirror) CurrentWorldID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.world
}

func (m *Mirror) LocalActorName() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localName, m.localName != ""
}

// bridge is the host side of one connection. Group changes and notices are
// queued for the writer goroutine.
type bridge struct {
	*Mirror
	out    chan types.ServerMessage
	closed chan struct{}
	once   sync.Once
}

func newBridge() *bridge {
	return &bridge{
		Mirror: &Mirror{},
		out:    make(chan types.ServerMessage, 16),
		closed: make(chan struct{}),
	}
}

func (b *bridge) close() {
	b.once.Do(func() { close(b.closed) })
}

func (b *bridge) send(ctx context.Context, msg types.ServerMessage) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	select {
	case b.out <- msg:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *bridge) Join(ctx context.Context, group string) error {
	return b.send(ctx, types.ServerMessage{Type: pkgtypes.MsgChangeGroup, Group: group})
}

func (b *bridge) Leave(ctx context.Context) error {
	return b.send(ctx, types.ServerMessage{Type: pkgtypes.MsgChangeGroup})
}

// Notify drops the notice if the client is not keeping up.
func (b *bridge) Notify(text string) {
	select {
	case <-b.closed:
		return
	default:
	}
	select {
	case b.out <- types.ServerMessage{Type: pkgtypes.MsgMessage, Text: text}:
	case <-b.closed:
	default:
	}
}

func (b *bridge) host(rec session.Recorder) session.Host {
	return session.Host{
		Fields:    b,
		Display:   b,
		World:     b,
		Transport: b,
		Notifier:  b,
		Recorder:  rec,
	}
}
