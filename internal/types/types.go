package types

// ClientMessage is anything the game client sends over /ws. Which fields are
// set depends on Type.
type ClientMessage struct {
	Type string `json:"type"` // "hello" | "fields" | "roster" | "world" | "tick" | "reset"

	// hello, world
	World        int    `json:"world,omitempty"`
	LocalName    string `json:"local_name,omitempty"`
	CurrentGroup string `json:"current_group,omitempty"`

	// hello; nil keeps the server default
	AutoLeaveOnExit     *bool `json:"auto_leave_on_exit,omitempty"`
	EnableNotifications *bool `json:"enable_notifications,omitempty"`
	ForceJoinMode       *bool `json:"force_join_mode,omitempty"`

	// fields
	RaidState  int `json:"raid_state,omitempty"`
	PartyState int `json:"party_state,omitempty"`
	Field      int `json:"field,omitempty"`

	// roster
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible,omitempty"`
}

type ServerMessage struct {
	Type  string `json:"type"` // "change_group" | "message" | "error"
	Group string `json:"group,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}
