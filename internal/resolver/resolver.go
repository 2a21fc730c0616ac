// Package resolver decides which party the raid team belongs to, from the
// roster shown on the host's HUD.
package resolver

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tob-party-sync/internal/partyhub"
	"github.com/DoyleJ11/tob-party-sync/internal/roster"
)

const DefaultStalenessWindow = 10 * time.Second

type Widget string

const WidgetTeamNames Widget = "tob_hud.names"

// DisplayReader returns the text of a host widget. ok is false when the
// widget is missing or hidden.
type DisplayReader interface {
	ReadDisplayText(w Widget) (text string, ok bool, err error)
}

type WorldSource interface {
	CurrentWorldID() int
}

type Kind int

const (
	None Kind = iota
	Unchanged
	LeaderChanged
	Foreign
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Unchanged:
		return "unchanged"
	case LeaderChanged:
		return "leader_changed"
	case Foreign:
		return "foreign"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Identity is the outcome of one resolution. Group is empty when the world
// id was unusable at resolution time.
type Identity struct {
	Kind   Kind
	Leader string
	Group  string
}

// LeaderCache is the resolver's memory between reads. Leader is empty when
// no leader is known.
type LeaderCache struct {
	Leader          string
	LastCheckedAt   time.Time
	AwaitingRefresh bool
	Previous        string

	last Identity
}

type Resolver struct {
	display DisplayReader
	world   WorldSource
	log     *zap.Logger
	window  time.Duration
	now     func() time.Time
	extract *roster.Extractor

	cache LeaderCache
}

func New(display DisplayReader, world WorldSource, window time.Duration, log *zap.Logger) *Resolver {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &Resolver{
		display: display,
		world:   world,
		log:     log,
		window:  window,
		now:     time.Now,
		extract: roster.NewExtractor(log),
	}
}

// Cache returns a copy of the current cache.
func (r *Resolver) Cache() LeaderCache { return r.cache }

// MarkAwaitingRefresh records that the team signal moved and the HUD may be
// half updated. Unforced reads return the cached identity until the next
// forced read.
func (r *Resolver) MarkAwaitingRefresh() {
	r.cache.AwaitingRefresh = true
	r.cache.LastCheckedAt = r.now()
}

func (r *Resolver) Reset() {
	r.cache = LeaderCache{}
}

func (r *Resolver) Resolve(force bool) Identity {
	if !force && r.cache.AwaitingRefresh {
		r.log.Debug("waiting for roster update, using cached identity")
		return r.cache.last
	}

	now := r.now()
	if !force && !r.cache.LastCheckedAt.IsZero() && now.Sub(r.cache.LastCheckedAt) < r.window {
		r.log.Debug("using cached party leader", zap.String("leader", r.cache.Leader))
		return r.cache.last
	}

	text, ok, err := r.display.ReadDisplayText(WidgetTeamNames)
	if err != nil {
		r.log.Error("error reading roster", zap.Error(err))
		return Identity{}
	}
	if !ok {
		text = ""
	}

	leader, err := r.extract.ExtractLeader(text)
	switch {
	case errors.Is(err, roster.ErrNoRoster):
		if r.cache.Leader != "" {
			// Roster may still be loading; keep what we know.
			r.log.Info("roster empty or still loading", zap.String("cached_leader", r.cache.Leader))
			return Identity{}
		}
		r.log.Info("no party detected")
		r.store("", now, Identity{})
		return Identity{}
	case errors.Is(err, roster.ErrEmptySlot):
		r.log.Info("no party leader (empty slot)")
		r.store("", now, Identity{})
		return Identity{}
	case err != nil:
		// Invalid candidate, already logged; the HUD is mid-update.
		return Identity{}
	}

	if r.cache.Leader != "" && leader != r.cache.Leader {
		id := Identity{Kind: LeaderChanged, Leader: leader, Group: r.groupFor(leader)}
		r.log.Info("team leader changed",
			zap.String("from", r.cache.Leader),
			zap.String("to", leader))
		// The change is reported once; cached reads replay the new
		// leader's own identity.
		r.store(leader, now, r.classify(leader))
		return id
	}

	id := r.classify(leader)
	r.log.Info("party leader detected",
		zap.String("leader", leader),
		zap.Stringer("kind", id.Kind),
		zap.String("group", id.Group))
	r.store(leader, now, id)
	return id
}

func (r *Resolver) store(leader string, now time.Time, id Identity) {
	if leader != r.cache.Leader {
		r.cache.Previous = r.cache.Leader
		r.cache.Leader = leader
	}
	r.cache.LastCheckedAt = now
	r.cache.AwaitingRefresh = false
	r.cache.last = id
}

func (r *Resolver) classify(leader string) Identity {
	group := r.groupFor(leader)
	canonical := partyhub.CanonicalLeader(leader)
	if group != "" {
		canonical = partyhub.IsCanonical(group)
	}
	if canonical {
		return Identity{Kind: Unchanged, Leader: leader, Group: group}
	}
	return Identity{Kind: Foreign, Leader: leader, Group: group}
}

func (r *Resolver) groupFor(leader string) string {
	world := r.world.CurrentWorldID()
	if !partyhub.ValidWorld(world) {
		return ""
	}
	return partyhub.CanonicalName(world, leader)
}
