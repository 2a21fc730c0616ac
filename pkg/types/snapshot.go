package types

import "time"

// SessionView is what GET /sessions/{id} returns.
type SessionView struct {
	ClientID     string    `json:"client_id"`
	Phase        string    `json:"phase"`
	InTeam       bool      `json:"in_team"`
	RaidState    int       `json:"raid_state"`
	PartyState   int       `json:"party_state"`
	CurrentGroup string    `json:"current_group,omitempty"`
	Canonical    bool      `json:"canonical"`
	PendingJoin  string    `json:"pending_join,omitempty"`
	Leader       string    `json:"leader,omitempty"`
	LastChecked  time.Time `json:"last_checked,omitempty"`
	Policy       Policy    `json:"policy"`
}

type Policy struct {
	AutoLeaveOnExit     bool `json:"auto_leave_on_exit"`
	EnableNotifications bool `json:"enable_notifications"`
	ForceJoinMode       bool `json:"force_join_mode"`
	RecheckTicks        int  `json:"recheck_ticks"`
}

// GroupChange is one entry of GET /sessions/{id}/history.
type GroupChange struct {
	Action    string    `json:"action"` // "join" | "leave"
	Group     string    `json:"group"`
	Canonical bool      `json:"canonical"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
