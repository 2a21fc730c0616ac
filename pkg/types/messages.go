package types

// Client -> Server
// hello:
//   world: number
//   local_name: string
//   current_group: string            // party hub the client is in, if any
//   auto_leave_on_exit: boolean      // optional
//   enable_notifications: boolean    // optional
//   force_join_mode: boolean         // optional
//
// fields:
//   raid_state: number               // varbit 6440
//   party_state: number              // varbit 6441
//   field: 6440 | 6441               // which one changed
//
// roster:
//   text: string                     // "<br>" separated names, "-" for empty
//   visible: boolean
//
// world:
//   world: number
//   local_name: string
//
// tick: {}
// reset: {}                          // logout or world hop
const (
	MsgHello  = "hello"
	MsgFields = "fields"
	MsgRoster = "roster"
	MsgWorld  = "world"
	MsgTick   = "tick"
	MsgReset  = "reset"
)

// Server -> Client
// change_group:
//   group: string                    // empty means leave the current group
//
// message:
//   text: string
//
// error:
//   error: string
const (
	MsgChangeGroup = "change_group"
	MsgMessage     = "message"
	MsgError       = "error"
)
