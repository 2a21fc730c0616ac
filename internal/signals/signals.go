package signals

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrFieldRead = errors.New("field read failed")

type Field int

const (
	FieldRaid  Field = 6440
	FieldParty Field = 6441
)

func (f Field) String() string {
	switch f {
	case FieldRaid:
		return "raid"
	case FieldParty:
		return "party"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// FieldReader is the host's view of the two raid state fields.
type FieldReader interface {
	PollField(f Field) (int, error)
}

// TeamStatus is a debounced read of both fields. InTeam is always derived
// from the raw values, never set on its own.
type TeamStatus struct {
	InTeam     bool
	RaidState  int
	PartyState int
}

func NewTeamStatus(raid, party int) TeamStatus {
	return TeamStatus{
		InTeam:     raid > 0 || party > 0,
		RaidState:  raid,
		PartyState: party,
	}
}

type Reader struct {
	fields FieldReader
	log    *zap.Logger
}

func NewReader(fields FieldReader, log *zap.Logger) *Reader {
	return &Reader{fields: fields, log: log}
}

// Poll reads both fields. A failed read yields the zero TeamStatus
// (not in a team) and is only logged.
func (r *Reader) Poll() TeamStatus {
	raid, err := r.read(FieldRaid)
	if err != nil {
		r.log.Warn("error checking team status", zap.Error(err))
		return TeamStatus{}
	}
	party, err := r.read(FieldParty)
	if err != nil {
		r.log.Warn("error checking team status", zap.Error(err))
		return TeamStatus{}
	}

	st := NewTeamStatus(raid, party)
	r.log.Debug("team status check",
		zap.Int("raid_state", raid),
		zap.Int("party_state", party),
		zap.Bool("in_team", st.InTeam))
	return st
}

func (r *Reader) read(f Field) (int, error) {
	v, err := r.fields.PollField(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrFieldRead, f, err)
	}
	return v, nil
}

// HasTransitioned reports whether either raw field differs.
func HasTransitioned(previous, current TeamStatus) bool {
	return previous.RaidState != current.RaidState || previous.PartyState != current.PartyState
}
