package engine

import (
	"fmt"

	"github.com/DoyleJ11/tob-party-sync/internal/partyhub"
	"github.com/DoyleJ11/tob-party-sync/internal/resolver"
	"github.com/DoyleJ11/tob-party-sync/internal/signals"
)

type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseMonitoring           Phase = "monitoring"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
)

// State is everything one session remembers between commands.
type State struct {
	Phase        Phase
	CurrentGroup *partyhub.Target
	// PendingJoin is the target of a join waiting out its grace delay.
	// PendingNotify says whether that join is announced when it lands.
	PendingJoin   string
	PendingNotify bool
	// SuppressNotifications marks a resolve cycle that was a team refresh.
	SuppressNotifications bool
	TickCounter           int
	LastNotice            string
}

type Policy struct {
	AutoLeaveOnExit     bool
	EnableNotifications bool
	ForceJoinMode       bool
	RecheckTicks        int
}

type Trigger string

const (
	TriggerEvent    Trigger = "event"
	TriggerPeriodic Trigger = "periodic"
)

type CommandType string

const (
	CmdStatusPolled CommandType = "StatusPolled"
	CmdTick         CommandType = "Tick"
	CmdResolved     CommandType = "Resolved"
	CmdJoinResult   CommandType = "JoinResult"
	CmdLeaveResult  CommandType = "LeaveResult"
	CmdReset        CommandType = "Reset"

	// CmdGroupReported carries the party the host says the player is in.
	CmdGroupReported CommandType = "GroupReported"
)

/*
	CmdStatusPolled -> EvtMarkAwaiting -> EvtResolveRequested     (entered raid, or fields moved)
	                -> EvtLeaveRequested? -> EvtClearCache        (left raid)
	CmdTick         -> EvtResolveRequested every RecheckTicks
	CmdResolved     -> EvtNotice? -> EvtLeaveRequested? -> EvtJoinScheduled
	CmdJoinResult   -> EvtNotice?
	CmdReset        -> EvtJoinCancelled? -> EvtClearCache
*/

type Command struct {
	Type CommandType

	// CmdStatusPolled
	Previous signals.TeamStatus
	Current  signals.TeamStatus
	Field    signals.Field

	// CmdResolved
	Identity  resolver.Identity
	Trigger   Trigger
	Forced    bool
	World     int
	LocalName string

	// CmdJoinResult, CmdLeaveResult, CmdGroupReported
	Group  string
	Notify bool
	Err    error
}

type EventType string

const (
	EvtMarkAwaiting      EventType = "MarkAwaiting"
	EvtClearCache        EventType = "ClearCache"
	EvtResolveRequested  EventType = "ResolveRequested"
	EvtLeaveRequested    EventType = "LeaveRequested"
	EvtJoinScheduled     EventType = "JoinScheduled"
	EvtJoinCancelled     EventType = "JoinCancelled"
	EvtJoined            EventType = "Joined"
	EvtJoinFailed        EventType = "JoinFailed"
	EvtLeaveFailed       EventType = "LeaveFailed"
	EvtBlocked           EventType = "Blocked"
	EvtAlreadyInGroup    EventType = "AlreadyInGroup"
	EvtNotice            EventType = "Notice"
	EvtNoTarget          EventType = "NoTarget"
	EvtStayedInGroup     EventType = "StayedInGroup"
	EvtCheckedNoAction   EventType = "CheckedNoAction"
	EvtTeamContextExited EventType = "TeamContextExited"
)

type Event struct {
	Type    EventType
	Group   string
	Force   bool
	Trigger Trigger
	Notify  bool
	Text    string
	Err     error
}

// Apply advances the state machine by one command. It never performs I/O:
// the caller runs the returned events and reports their outcome back as
// further commands.
func Apply(s State, p Policy, cmd Command) ([]Event, State) {
	switch cmd.Type {
	case CmdStatusPolled:
		return applyStatus(s, p, cmd)
	case CmdTick:
		return applyTick(s, p)
	case CmdResolved:
		return applyResolved(s, p, cmd)
	case CmdJoinResult:
		return applyJoinResult(s, p, cmd)
	case CmdLeaveResult:
		return applyLeaveResult(s, p, cmd)
	case CmdReset:
		return applyReset(s)
	case CmdGroupReported:
		return applyGroupReported(s, cmd)
	default:
		return nil, s
	}
}

func applyStatus(s State, p Policy, cmd Command) ([]Event, State) {
	wasIn := s.Phase != PhaseIdle
	isIn := cmd.Current.InTeam

	switch {
	case isIn && (!wasIn || signals.HasTransitioned(cmd.Previous, cmd.Current)):
		return awaitConfirmation(s)

	case isIn && cmd.Field == signals.FieldParty:
		// The party field fired without moving the raw values. Nothing
		// says the HUD is mid-update, so the cached leader may answer.
		return []Event{{Type: EvtResolveRequested, Trigger: TriggerEvent}}, s

	case !isIn && wasIn:
		return exitTeamContext(s, p)
	}
	return nil, s
}

func awaitConfirmation(s State) ([]Event, State) {
	s.Phase = PhaseAwaitingConfirmation
	return []Event{
		{Type: EvtMarkAwaiting},
		{Type: EvtResolveRequested, Force: true, Trigger: TriggerEvent},
	}, s
}

func exitTeamContext(s State, p Policy) ([]Event, State) {
	events := []Event{{Type: EvtTeamContextExited}}

	if s.PendingJoin != "" {
		events = append(events, Event{Type: EvtJoinCancelled, Group: s.PendingJoin})
		s.PendingJoin = ""
		s.PendingNotify = false
	}

	if p.AutoLeaveOnExit && s.CurrentGroup != nil {
		if s.CurrentGroup.Canonical || p.ForceJoinMode {
			events = append(events, Event{Type: EvtLeaveRequested, Group: s.CurrentGroup.Name, Notify: true})
			s.CurrentGroup = nil
		} else {
			events = append(events, Event{Type: EvtStayedInGroup, Group: s.CurrentGroup.Name})
		}
	}

	s.Phase = PhaseIdle
	s.TickCounter = 0
	s.SuppressNotifications = false
	s.LastNotice = ""
	events = append(events, Event{Type: EvtClearCache})
	return events, s
}

func applyTick(s State, p Policy) ([]Event, State) {
	if s.Phase == PhaseIdle {
		s.TickCounter = 0
		return nil, s
	}

	s.TickCounter++
	if s.TickCounter < recheckTicks(p) {
		return nil, s
	}
	s.TickCounter = 0
	return []Event{{Type: EvtResolveRequested, Force: true, Trigger: TriggerPeriodic}}, s
}

func applyResolved(s State, p Policy, cmd Command) ([]Event, State) {
	if s.Phase == PhaseIdle {
		// Raid left while the resolve was queued.
		return nil, s
	}
	if cmd.Forced && s.Phase == PhaseAwaitingConfirmation {
		s.Phase = PhaseMonitoring
	}

	id := cmd.Identity
	var events []Event
	// Suppression never carries over from an earlier cycle.
	s.SuppressNotifications = id.Kind == resolver.LeaderChanged

	if cmd.Trigger == TriggerPeriodic && id.Kind == resolver.None {
		return []Event{{Type: EvtCheckedNoAction}}, s
	}

	if id.Kind == resolver.LeaderChanged {
		events = appendNotice(events, p, fmt.Sprintf("Team refreshed - new leader: %s", id.Leader))
	} else if !p.ForceJoinMode {
		if foreign, ok := foreignGroup(s, id); ok {
			suggested := suggestedName(cmd)
			text := fmt.Sprintf("You are in non-sync party hub '%s'. To join raid team party hub \"%s\", "+
				"enable force join in settings or manually join the group", foreign, suggested)
			events = append(events, Event{Type: EvtBlocked, Group: foreign})
			if text != s.LastNotice {
				events = appendNotice(events, p, text)
				s.LastNotice = text
			}
			return events, s
		}
	}

	var more []Event
	more, s = converge(s, cmd)
	return append(events, more...), s
}

// foreignGroup returns the non-canonical party the player appears to be in.
func foreignGroup(s State, id resolver.Identity) (string, bool) {
	if s.CurrentGroup != nil && !s.CurrentGroup.Canonical {
		return s.CurrentGroup.Name, true
	}
	if id.Kind == resolver.Foreign {
		if id.Group != "" {
			return id.Group, true
		}
		return id.Leader, true
	}
	return "", false
}

func suggestedName(cmd Command) string {
	leader := cmd.Identity.Leader
	if leader == "" {
		leader = cmd.LocalName
	}
	return partyhub.CanonicalName(cmd.World, leader)
}

// converge moves the session toward the group named after the leader, or
// after the local player when no leader is visible.
func converge(s State, cmd Command) ([]Event, State) {
	leader := cmd.Identity.Leader
	if leader == "" {
		leader = cmd.LocalName
	}
	if leader == "" || !partyhub.ValidWorld(cmd.World) {
		return []Event{{Type: EvtNoTarget}}, s
	}

	target := partyhub.CanonicalName(cmd.World, leader)
	notify := !s.SuppressNotifications

	if s.CurrentGroup != nil && partyhub.Same(s.CurrentGroup.Name, target) {
		var events []Event
		if s.PendingJoin != "" {
			events = append(events, Event{Type: EvtJoinCancelled, Group: s.PendingJoin})
			s.PendingJoin = ""
			s.PendingNotify = false
		}
		return append(events, Event{Type: EvtAlreadyInGroup, Group: s.CurrentGroup.Name}), s
	}
	if s.PendingJoin != "" && partyhub.Same(s.PendingJoin, target) {
		return []Event{{Type: EvtAlreadyInGroup, Group: s.PendingJoin}}, s
	}

	var events []Event
	if s.CurrentGroup != nil {
		events = append(events, Event{Type: EvtLeaveRequested, Group: s.CurrentGroup.Name, Notify: notify})
		s.CurrentGroup = nil
	}
	s.PendingJoin = target
	s.PendingNotify = notify
	s.LastNotice = ""
	events = append(events, Event{Type: EvtJoinScheduled, Group: target, Notify: notify})
	return events, s
}

func applyJoinResult(s State, p Policy, cmd Command) ([]Event, State) {
	if s.PendingJoin == "" || !partyhub.Same(s.PendingJoin, cmd.Group) {
		// Superseded by a newer target.
		return nil, s
	}
	notify := s.PendingNotify
	s.PendingJoin = ""
	s.PendingNotify = false
	s.SuppressNotifications = false

	if cmd.Err != nil {
		// CurrentGroup keeps the last group that was actually joined.
		return []Event{{Type: EvtJoinFailed, Group: cmd.Group, Err: cmd.Err}}, s
	}

	t := partyhub.NewTarget(cmd.Group)
	s.CurrentGroup = &t
	events := []Event{{Type: EvtJoined, Group: t.Name}}
	if notify {
		events = appendNotice(events, p, "You have joined party hub "+t.Name)
	}
	return events, s
}

func applyLeaveResult(s State, p Policy, cmd Command) ([]Event, State) {
	// CurrentGroup was already cleared when the leave was requested, so a
	// failed leave cannot leave the session stuck on the old group.
	if cmd.Err != nil {
		return []Event{{Type: EvtLeaveFailed, Group: cmd.Group, Err: cmd.Err}}, s
	}
	if cmd.Notify {
		return appendNotice(nil, p, "You have left the party"), s
	}
	return nil, s
}

func applyReset(s State) ([]Event, State) {
	var events []Event
	if s.PendingJoin != "" {
		events = append(events, Event{Type: EvtJoinCancelled, Group: s.PendingJoin})
	}
	return append(events, Event{Type: EvtClearCache}), NewState()
}

func applyGroupReported(s State, cmd Command) ([]Event, State) {
	if cmd.Group == "" {
		s.CurrentGroup = nil
		return nil, s
	}
	if s.PendingJoin != "" && partyhub.Same(s.PendingJoin, cmd.Group) {
		s.PendingJoin = ""
		s.PendingNotify = false
	}
	t := partyhub.NewTarget(cmd.Group)
	s.CurrentGroup = &t
	return nil, s
}
