package session

import (
	"context"

	"github.com/DoyleJ11/tob-party-sync/internal/resolver"
	"github.com/DoyleJ11/tob-party-sync/internal/signals"
)

// World is the host's view of where the local player is.
type World interface {
	resolver.WorldSource
	LocalActorName() (string, bool)
}

// Transport changes the party hub group the host is connected to.
type Transport interface {
	Join(ctx context.Context, group string) error
	Leave(ctx context.Context) error
}

// Notifier shows a line of text to the player.
type Notifier interface {
	Notify(text string)
}

// Recorder journals group changes. It is optional.
type Recorder interface {
	RecordChange(ctx context.Context, clientID, action, group string, canonical bool, cause error) error
}

// Host bundles everything a session reads from and writes to the game
// client.
type Host struct {
	Fields    signals.FieldReader
	Display   resolver.DisplayReader
	World     World
	Transport Transport
	Notifier  Notifier
	Recorder  Recorder
}
