package engine

// Teardown is run when the session stops for good. Only groups this
// service created are left behind; a party hub the player picked by hand is
// theirs to keep.
func Teardown(s State) ([]Event, State) {
	var events []Event
	if s.PendingJoin != "" {
		events = append(events, Event{Type: EvtJoinCancelled, Group: s.PendingJoin})
		s.PendingJoin = ""
		s.PendingNotify = false
	}
	if s.CurrentGroup != nil && s.CurrentGroup.Canonical {
		events = append(events, Event{Type: EvtLeaveRequested, Group: s.CurrentGroup.Name})
		s.CurrentGroup = nil
	}
	return events, s
}
