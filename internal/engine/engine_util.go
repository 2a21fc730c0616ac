package engine

const DefaultRecheckTicks = 30

func NewState() State {
	return State{Phase: PhaseIdle}
}

func DefaultPolicy() Policy {
	return Policy{
		AutoLeaveOnExit:     true,
		EnableNotifications: true,
		ForceJoinMode:       true,
		RecheckTicks:        DefaultRecheckTicks,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// FindEvent returns the first event of the given type.
func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}

func (s State) InTeamContext() bool {
	return s.Phase != PhaseIdle
}

func (s State) CurrentGroupName() string {
	if s.CurrentGroup == nil {
		return ""
	}
	return s.CurrentGroup.Name
}

func recheckTicks(p Policy) int {
	if p.RecheckTicks <= 0 {
		return DefaultRecheckTicks
	}
	return p.RecheckTicks
}

func appendNotice(events []Event, p Policy, text string) []Event {
	if !p.EnableNotifications {
		return events
	}
	return append(events, Event{Type: EvtNotice, Text: text})
}
