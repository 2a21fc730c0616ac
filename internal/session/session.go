package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tob-party-sync/internal/engine"
	"github.com/DoyleJ11/tob-party-sync/internal/partyhub"
	"github.com/DoyleJ11/tob-party-sync/internal/resolver"
	"github.com/DoyleJ11/tob-party-sync/internal/signals"
)

var ErrTransport = errors.New("group transport failed")

const (
	DefaultJoinGrace = 100 * time.Millisecond
	teardownTimeout  = 3 * time.Second
)

type Msg interface{ isSessionMsg() }

// FieldChanged is sent when the host reports a change to one of the raid
// state fields. The session re-polls both fields itself.
type FieldChanged struct{ Field signals.Field }

func (FieldChanged) isSessionMsg() {}

type Tick struct{}

func (Tick) isSessionMsg() {}

// Reset is sent on logout and world hop.
type Reset struct{}

func (Reset) isSessionMsg() {}

// GroupReported tells the session which party the host is in right now,
// e.g. after reconnecting. Empty means none.
type GroupReported struct{ Group string }

func (GroupReported) isSessionMsg() {}

type SetPolicy struct{ Policy engine.Policy }

func (SetPolicy) isSessionMsg() {}

// Shutdown stops the session after the teardown leave. Done, if set,
// receives the teardown error.
type Shutdown struct{ Done chan error }

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type joinDue struct {
	gen   uint64
	group string
}

func (joinDue) isSessionMsg() {}

type resolveRequest struct {
	force   bool
	trigger engine.Trigger
}

type View struct {
	ID     string
	State  engine.State
	Policy engine.Policy
	Status signals.TeamStatus
	Cache  resolver.LeaderCache
}

type Options struct {
	Policy          engine.Policy
	StalenessWindow time.Duration
	JoinGrace       time.Duration
}

func DefaultOptions() Options {
	return Options{
		Policy:          engine.DefaultPolicy(),
		StalenessWindow: resolver.DefaultStalenessWindow,
		JoinGrace:       DefaultJoinGrace,
	}
}

// Session is the single control thread for one game client. Every input,
// host events and ticks and its own timers, arrives through the inbox and is
// handled one at a time, so the engine state is never touched concurrently.
type Session struct {
	id     string
	inbox  chan Msg
	host   Host
	log    *zap.Logger
	grace  time.Duration
	policy engine.Policy

	state    engine.State
	status   signals.TeamStatus
	reader   *signals.Reader
	resolver *resolver.Resolver

	// deferred holds resolves requested while handling the current message.
	deferred []resolveRequest

	joinGen   uint64
	joinTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, id string, host Host, opts Options, log *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	log = log.With(zap.String("client_id", id))

	s := &Session{
		id:       id,
		inbox:    make(chan Msg, 64),
		host:     host,
		log:      log,
		grace:    opts.JoinGrace,
		policy:   opts.Policy,
		state:    engine.NewState(),
		reader:   signals.NewReader(host.Fields, log),
		resolver: resolver.New(host.Display, host.World, opts.StalenessWindow, log),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Inbox is where the host bridge sends messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session has torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case FieldChanged:
				prev := s.status
				s.status = s.reader.Poll()
				s.apply(engine.Command{
					Type:     engine.CmdStatusPolled,
					Previous: prev,
					Current:  s.status,
					Field:    msg.Field,
				})

			case Tick:
				s.apply(engine.Command{Type: engine.CmdTick})

			case Reset:
				s.log.Info("resetting session on logout or world change")
				s.status = signals.TeamStatus{}
				s.apply(engine.Command{Type: engine.CmdReset})

			case GroupReported:
				s.apply(engine.Command{Type: engine.CmdGroupReported, Group: msg.Group})

			case SetPolicy:
				s.policy = msg.Policy

			case joinDue:
				if msg.gen != s.joinGen {
					// A newer target replaced this one.
					break
				}
				s.joinTimer = nil
				s.join(msg.group)

			case GetState:
				msg.Reply <- View{
					ID:     s.id,
					State:  s.state,
					Policy: s.policy,
					Status: s.status,
					Cache:  s.resolver.Cache(),
				}

			case Shutdown:
				err := s.shutdown()
				if msg.Done != nil {
					msg.Done <- err
				}
				return
			}
			s.drain()
		}
	}
}

// drain runs resolves queued while handling the last message. Running them
// after the message, not inside it, mirrors the host's invoke-later.
func (s *Session) drain() {
	for len(s.deferred) > 0 {
		req := s.deferred[0]
		s.deferred = s.deferred[1:]
		s.resolve(req)
	}
}

func (s *Session) resolve(req resolveRequest) {
	id := s.resolver.Resolve(req.force)
	world := s.host.World.CurrentWorldID()
	name, _ := s.host.World.LocalActorName()

	s.log.Info("party state",
		zap.String("trigger", string(req.trigger)),
		zap.Stringer("identity", id.Kind),
		zap.String("leader", id.Leader),
		zap.String("tracked_group", s.state.CurrentGroupName()),
		zap.Bool("force_join", s.policy.ForceJoinMode))

	s.apply(engine.Command{
		Type:      engine.CmdResolved,
		Identity:  id,
		Trigger:   req.trigger,
		Forced:    req.force,
		World:     world,
		LocalName: name,
	})
}

func (s *Session) apply(cmd engine.Command) {
	events, next := engine.Apply(s.state, s.policy, cmd)
	s.state = next
	s.run(events)
}

func (s *Session) run(events []engine.Event) {
	for _, e := range events {
		switch e.Type {
		case engine.EvtMarkAwaiting:
			s.resolver.MarkAwaitingRefresh()

		case engine.EvtClearCache:
			s.resolver.Reset()

		case engine.EvtResolveRequested:
			s.deferred = append(s.deferred, resolveRequest{force: e.Force, trigger: e.Trigger})

		case engine.EvtLeaveRequested:
			_ = s.leave(e.Group, e.Notify)

		case engine.EvtJoinScheduled:
			s.scheduleJoin(e.Group)

		case engine.EvtJoinCancelled:
			s.cancelJoin()

		case engine.EvtNotice:
			s.host.Notifier.Notify(e.Text)

		case engine.EvtJoined:
			s.log.Info("joined party group", zap.String("group", e.Group))

		case engine.EvtJoinFailed:
			s.log.Error("failed to join party group", zap.String("group", e.Group), zap.Error(e.Err))

		case engine.EvtLeaveFailed:
			s.log.Error("failed to leave party group", zap.String("group", e.Group), zap.Error(e.Err))

		case engine.EvtBlocked:
			s.log.Info("blocked, in non-sync party", zap.String("group", e.Group))

		case engine.EvtAlreadyInGroup:
			s.log.Debug("already in correct party group", zap.String("group", e.Group))

		case engine.EvtStayedInGroup:
			s.log.Info("staying in non-sync party after exiting raid", zap.String("group", e.Group))

		case engine.EvtNoTarget:
			s.log.Warn("cannot pick a party group, no leader, local player or world")

		case engine.EvtCheckedNoAction:
			s.log.Info("no party leader detected in periodic check")

		case engine.EvtTeamContextExited:
			s.log.Debug("left raid")
		}
	}
}

// scheduleJoin arms the grace delay before a join. The timer re-enters
// the loop through the inbox; an older timer's message is dropped by
// generation.
func (s *Session) scheduleJoin(group string) {
	s.cancelJoin()
	gen := s.joinGen
	s.log.Info("creating new party group", zap.String("group", group))
	s.joinTimer = time.AfterFunc(s.grace, func() {
		select {
		case s.inbox <- joinDue{gen: gen, group: group}:
		case <-s.ctx.Done():
		}
	})
}

func (s *Session) cancelJoin() {
	s.joinGen++
	if s.joinTimer != nil {
		s.joinTimer.Stop()
		s.joinTimer = nil
	}
}

func (s *Session) join(group string) {
	err := s.host.Transport.Join(s.ctx, group)
	if err != nil {
		err = fmt.Errorf("%w: join %s: %v", ErrTransport, group, err)
	}
	s.record(s.ctx, "join", group, err)
	s.apply(engine.Command{Type: engine.CmdJoinResult, Group: group, Err: err})
}

func (s *Session) leave(group string, notify bool) error {
	return s.leaveWith(s.ctx, group, notify)
}

func (s *Session) leaveWith(ctx context.Context, group string, notify bool) error {
	s.log.Info("leaving party group", zap.String("group", group))
	err := s.host.Transport.Leave(ctx)
	if err != nil {
		err = fmt.Errorf("%w: leave %s: %v", ErrTransport, group, err)
	}
	s.record(ctx, "leave", group, err)
	s.apply(engine.Command{Type: engine.CmdLeaveResult, Group: group, Notify: notify, Err: err})
	return err
}

func (s *Session) record(ctx context.Context, action, group string, cause error) {
	if s.host.Recorder == nil {
		return
	}
	if err := s.host.Recorder.RecordChange(ctx, s.id, action, group, partyhub.IsCanonical(group), cause); err != nil {
		s.log.Warn("failed to record group change", zap.String("action", action), zap.Error(err))
	}
}

// shutdown is the lifecycle guard: a canonical group is left before the
// session goes away.
func (s *Session) shutdown() error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), teardownTimeout)
	defer cancel()

	events, next := engine.Teardown(s.state)
	s.state = next

	var err error
	for _, e := range events {
		switch e.Type {
		case engine.EvtJoinCancelled:
			s.cancelJoin()
		case engine.EvtLeaveRequested:
			err = s.leaveWith(ctx, e.Group, false)
		}
	}
	s.cancelJoin()
	s.deferred = nil
	s.cancel()
	s.log.Info("session stopped")
	return err
}
