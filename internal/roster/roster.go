// Package roster reads the raid team roster out of the HUD names text.
//
// The host renders the team as one string with a fixed delimiter between
// slots and a dash in every empty slot, e.g. "ALICE<br>BOB<br>-<br>-<br>-".
// The first slot is always taken as the leader.
package roster

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

const (
	Delimiter = "<br>"
	EmptySlot = "-"
	SlotCount = 5

	MinNameLen = 3
	MaxNameLen = 12
)

var (
	ErrNoRoster      = errors.New("no roster")
	ErrEmptySlot     = errors.New("leader slot empty")
	ErrInvalidLeader = errors.New("invalid leader name")
)

// Snapshot is one read of the roster, in slot order.
type Snapshot []string

// Parse splits text into slots. Blank text and a roster of nothing but
// empty-slot markers both count as no roster.
func Parse(text string) (Snapshot, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrNoRoster
	}

	slots := strings.Split(text, Delimiter)
	occupied := false
	for i, s := range slots {
		slots[i] = strings.TrimSpace(s)
		if slots[i] != EmptySlot && slots[i] != "" {
			occupied = true
		}
	}
	if !occupied {
		return nil, ErrNoRoster
	}
	return Snapshot(slots), nil
}

// Leader returns the first slot. It is authoritative even when later
// slots are occupied and it is not.
func (s Snapshot) Leader() (string, error) {
	if len(s) == 0 {
		return "", ErrNoRoster
	}
	name := s[0]
	if name == EmptySlot {
		return "", ErrEmptySlot
	}
	if !ValidName(name) {
		return "", ErrInvalidLeader
	}
	return name, nil
}

// Members returns the occupied slots.
func (s Snapshot) Members() []string {
	out := make([]string, 0, len(s))
	for _, name := range s {
		if name != "" && name != EmptySlot {
			out = append(out, name)
		}
	}
	return out
}

func ValidName(name string) bool {
	name = strings.TrimSpace(name)
	if name == EmptySlot {
		return false
	}
	n := len([]rune(name))
	return n >= MinNameLen && n <= MaxNameLen
}

// Leader parses text and returns its leader.
func Leader(text string) (string, error) {
	snap, err := Parse(text)
	if err != nil {
		return "", err
	}
	return snap.Leader()
}

type Extractor struct {
	log *zap.Logger
}

func NewExtractor(log *zap.Logger) *Extractor {
	return &Extractor{log: log}
}

// ExtractLeader is Leader with the failures logged. An invalid candidate is
// treated as a transient HUD state, so it only warrants a warning.
func (e *Extractor) ExtractLeader(text string) (string, error) {
	name, err := Leader(text)
	switch {
	case err == nil:
		e.log.Debug("party leader from roster", zap.String("leader", name))
	case errors.Is(err, ErrInvalidLeader):
		e.log.Warn("invalid leader name", zap.String("roster", text))
	default:
		e.log.Debug("no party leader in roster", zap.Error(err))
	}
	return name, err
}
