package hub

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tob-party-sync/internal/session"
)

var (
	ErrStopped   = errors.New("hub stopped")
	ErrDuplicate = errors.New("client already has a session")
)

type HubMsg interface{ isHubMsg() }

// CreateSession starts a session for a client. Reply gets nil when the
// client already has one.
type CreateSession struct {
	ID    string
	Host  session.Host
	Reply chan *session.Session
}

type GetSession struct {
	ID    string
	Reply chan *session.Session
}

// RemoveSession stops a client's session, running its teardown.
type RemoveSession struct {
	ID string
}

type ListSessions struct {
	Reply chan []string
}

type ShutdownHub struct {
	Done chan error
}

type Hub struct {
	inbox    chan HubMsg
	sessions map[string]*session.Session
	opts     session.Options
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (RemoveSession) isHubMsg() {}
func (ListSessions) isHubMsg()  {}
func (ShutdownHub) isHubMsg()   {}

func NewHub(parent context.Context, opts session.Options, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		sessions: make(map[string]*session.Session),
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Create is CreateSession for callers that must not block on a stopped hub.
// It returns ErrStopped once the hub has shut down and ErrDuplicate when the
// client already has a session.
func (h *Hub) Create(id string, host session.Host) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- CreateSession{ID: id, Host: host, Reply: reply}:
	case <-h.Done():
		return nil, ErrStopped
	}
	select {
	case s := <-reply:
		if s == nil {
			return nil, ErrDuplicate
		}
		return s, nil
	case <-h.Done():
		return nil, ErrStopped
	}
}

// Get returns the client's session, or nil.
func (h *Hub) Get(id string) *session.Session {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- GetSession{ID: id, Reply: reply}:
	case <-h.Done():
		return nil
	}
	select {
	case s := <-reply:
		return s
	case <-h.Done():
		return nil
	}
}

func (h *Hub) Remove(id string) {
	select {
	case h.inbox <- RemoveSession{ID: id}:
	case <-h.Done():
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if h.sessions[msg.ID] != nil {
					msg.Reply <- nil
					break
				}
				s := session.New(h.ctx, msg.ID, msg.Host, h.opts, h.log)
				h.sessions[msg.ID] = s
				h.log.Info("session started", zap.String("client_id", msg.ID))
				msg.Reply <- s

			case GetSession:
				msg.Reply <- h.sessions[msg.ID] // May be nil

			case RemoveSession:
				if s := h.sessions[msg.ID]; s != nil {
					delete(h.sessions, msg.ID)
					s.Inbox() <- session.Shutdown{}
				}

			case ListSessions:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				sort.Strings(ids)
				msg.Reply <- ids

			case ShutdownHub:
				err := h.shutdown()
				if msg.Done != nil {
					msg.Done <- err
				}
				h.cancel()
				return
			}
		}
	}
}

// shutdown tears every session down and waits for each teardown leave.
func (h *Hub) shutdown() error {
	var err error
	for id, s := range h.sessions {
		done := make(chan error, 1)
		s.Inbox() <- session.Shutdown{Done: done}
		select {
		case e := <-done:
			err = multierr.Append(err, e)
		case <-s.Done():
			// Stopped on its own, or replied and stopped in one go.
			select {
			case e := <-done:
				err = multierr.Append(err, e)
			default:
			}
		}
		delete(h.sessions, id)
	}
	return err
}
