package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/tob-party-sync/internal/engine"
	"github.com/DoyleJ11/tob-party-sync/internal/resolver"
	"github.com/DoyleJ11/tob-party-sync/internal/signals"
)

// --- fakes ---

type call struct {
	op    string // "join" | "leave"
	group string
}

type fakeHost struct {
	mu       sync.Mutex
	fields   map[signals.Field]int
	roster   string
	world    int
	name     string
	joinErr  error
	calls    []call
	notices  []string
	recorded []string
}

func newFakeHost(world int) *fakeHost {
	return &fakeHost{fields: map[signals.Field]int{}, world: world, name: "Me"}
}

func (h *fakeHost) PollField(f signals.Field) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fields[f], nil
}

func (h *fakeHost) ReadDisplayText(resolver.Widget) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roster, h.roster != "", nil
}

func (h *fakeHost) CurrentWorldID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world
}

func (h *fakeHost) LocalActorName() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name, h.name != ""
}

func (h *fakeHost) Join(_ context.Context, group string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call{op: "join", group: group})
	return h.joinErr
}

func (h *fakeHost) Leave(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call{op: "leave"})
	return nil
}

func (h *fakeHost) Notify(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, text)
}

func (h *fakeHost) RecordChange(_ context.Context, _, action, group string, _ bool, _ error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, action+":"+group)
	return nil
}

func (h *fakeHost) set(raid, party int, roster string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fields[signals.FieldRaid] = raid
	h.fields[signals.FieldParty] = party
	h.roster = roster
}

func (h *fakeHost) snapshot() ([]call, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call(nil), h.calls...), append([]string(nil), h.notices...)
}

// --- helpers ---

func newSession(t *testing.T, h *fakeHost, mutate func(*Options)) *Session {
	t.Helper()
	opts := DefaultOptions()
	opts.JoinGrace = 5 * time.Millisecond
	if mutate != nil {
		mutate(&opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	host := Host{Fields: h, Display: h, World: h, Transport: h, Notifier: h, Recorder: h}
	s := New(ctx, "client-1", host, opts, zaptest.NewLogger(t))

	// Wait for teardown so nothing logs after the test returns.
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return s
}

func recvView(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func waitCalls(t *testing.T, h *fakeHost, n int) []call {
	t.Helper()
	require.Eventually(t, func() bool {
		calls, _ := h.snapshot()
		return len(calls) >= n
	}, time.Second, 5*time.Millisecond)
	calls, _ := h.snapshot()
	return calls
}

const johnCena = "JOHNCENA<br>-<br>-<br>-<br>-"

// --- tests ---

func TestSession_EnterRaidJoinsLeaderGroup(t *testing.T) {
	h := newFakeHost(416)
	h.set(1, 0, johnCena)
	s := newSession(t, h, nil)

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}

	calls := waitCalls(t, h, 1)
	assert.Equal(t, []call{{op: "join", group: "416JOHNCENA"}}, calls)

	v := recvView(t, s)
	require.NotNil(t, v.State.CurrentGroup)
	assert.Equal(t, "416JOHNCENA", v.State.CurrentGroup.Name)
	assert.True(t, v.State.CurrentGroup.Canonical)
	assert.Equal(t, engine.PhaseMonitoring, v.State.Phase)
	assert.Equal(t, "JOHNCENA", v.Cache.Leader)

	_, notices := h.snapshot()
	assert.Contains(t, notices, "You have joined party hub 416JOHNCENA")
}

func TestSession_SameLeaderDoesNotRejoin(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 1, "ALICE<br>BOB<br>-<br>-<br>-")
	s := newSession(t, h, nil)

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)

	h.set(1, 2, "ALICE<br>BOB<br>CAROL<br>-<br>-")
	s.Inbox() <- FieldChanged{Field: signals.FieldParty}
	time.Sleep(50 * time.Millisecond)
	recvView(t, s)

	calls, _ := h.snapshot()
	assert.Len(t, calls, 1)
}

func TestSession_LeaderChangeSwitchesQuietly(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 1, "ALICE<br>BOB<br>-<br>-<br>-")
	s := newSession(t, h, nil)

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)

	h.set(1, 2, "BOB<br>-<br>-<br>-<br>-")
	s.Inbox() <- FieldChanged{Field: signals.FieldParty}

	calls := waitCalls(t, h, 3)
	assert.Equal(t, []call{
		{op: "join", group: "330ALICE"},
		{op: "leave"},
		{op: "join", group: "330BOB"},
	}, calls)

	v := recvView(t, s)
	assert.Equal(t, "330BOB", v.State.CurrentGroupName())
	assert.Equal(t, "ALICE", v.Cache.Previous)

	_, notices := h.snapshot()
	assert.Contains(t, notices, "Team refreshed - new leader: BOB")
	assert.NotContains(t, notices, "You have joined party hub 330BOB")
	assert.NotContains(t, notices, "You have left the party")
}

func TestSession_PartyEventWithinWindowUsesCachedLeader(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 1, "ALICE<br>-<br>-<br>-<br>-")
	s := newSession(t, h, func(o *Options) { o.StalenessWindow = 200 * time.Millisecond })

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)

	// Same raw values, new roster: the cached leader answers.
	h.set(1, 1, "BOB<br>-<br>-<br>-<br>-")
	s.Inbox() <- FieldChanged{Field: signals.FieldParty}
	v := recvView(t, s)
	assert.Equal(t, "ALICE", v.Cache.Leader)
	calls, _ := h.snapshot()
	assert.Len(t, calls, 1)

	time.Sleep(250 * time.Millisecond)
	s.Inbox() <- FieldChanged{Field: signals.FieldParty}

	calls = waitCalls(t, h, 3)
	assert.Equal(t, []call{
		{op: "join", group: "330ALICE"},
		{op: "leave"},
		{op: "join", group: "330BOB"},
	}, calls)
}

func TestSession_NewerTargetSupersedesPendingJoin(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 1, "ALICE<br>-<br>-<br>-<br>-")
	s := newSession(t, h, func(o *Options) { o.JoinGrace = 150 * time.Millisecond })

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	v := recvView(t, s)
	require.Equal(t, "330ALICE", v.State.PendingJoin)

	h.set(1, 2, "BOB<br>-<br>-<br>-<br>-")
	s.Inbox() <- FieldChanged{Field: signals.FieldParty}

	waitCalls(t, h, 1)
	time.Sleep(200 * time.Millisecond)
	calls, _ := h.snapshot()
	assert.Equal(t, []call{{op: "join", group: "330BOB"}}, calls)
}

func TestSession_FailedJoinRollsBack(t *testing.T) {
	h := newFakeHost(330)
	h.joinErr = errors.New("party service offline")
	h.set(1, 0, "ALICE<br>-<br>-<br>-<br>-")
	s := newSession(t, h, nil)

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)

	v := recvView(t, s)
	assert.Nil(t, v.State.CurrentGroup)
	assert.Empty(t, v.State.PendingJoin)
}

func TestSession_PeriodicCheckCatchesMissedEvent(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 1, "ALICE<br>-<br>-<br>-<br>-")
	s := newSession(t, h, func(o *Options) { o.Policy.RecheckTicks = 3 })

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)

	// Roster moves but the host never reports a field change.
	h.set(1, 1, "BOB<br>-<br>-<br>-<br>-")
	for i := 0; i < 3; i++ {
		s.Inbox() <- Tick{}
	}

	calls := waitCalls(t, h, 3)
	assert.Equal(t, call{op: "join", group: "330BOB"}, calls[2])
}

func TestSession_ExitPolicy(t *testing.T) {
	cases := []struct {
		name      string
		forceJoin bool
		wantLeave int
	}{
		{name: "non-sync group kept without force join", forceJoin: false, wantLeave: 0},
		{name: "non-sync group left with force join", forceJoin: true, wantLeave: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newFakeHost(330)
			h.set(1, 0, "")
			s := newSession(t, h, func(o *Options) {
				o.Policy.AutoLeaveOnExit = true
				o.Policy.ForceJoinMode = tc.forceJoin
			})

			s.Inbox() <- GroupReported{Group: "MyFriends"}
			h.mu.Lock()
			h.name = ""
			h.mu.Unlock()
			s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
			recvView(t, s)

			h.set(0, 0, "")
			s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
			v := recvView(t, s)
			assert.Equal(t, engine.PhaseIdle, v.State.Phase)

			calls, _ := h.snapshot()
			leaves := 0
			for _, c := range calls {
				if c.op == "leave" {
					leaves++
				}
			}
			assert.Equal(t, tc.wantLeave, leaves)
		})
	}
}

func TestSession_ResetClearsState(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 0, "ALICE<br>-<br>-<br>-<br>-")
	s := newSession(t, h, nil)

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)

	s.Inbox() <- Reset{}
	v := recvView(t, s)
	assert.Equal(t, engine.NewState(), v.State)
	assert.Equal(t, resolver.LeaderCache{}, v.Cache)
	assert.Equal(t, signals.TeamStatus{}, v.Status)

	calls, _ := h.snapshot()
	assert.Len(t, calls, 1, "reset never leaves")
}

func TestSession_ShutdownLeavesCanonicalGroup(t *testing.T) {
	h := newFakeHost(330)
	h.set(1, 0, "ALICE<br>-<br>-<br>-<br>-")
	s := newSession(t, h, nil)

	s.Inbox() <- FieldChanged{Field: signals.FieldRaid}
	waitCalls(t, h, 1)
	recvView(t, s)

	done := make(chan error, 1)
	s.Inbox() <- Shutdown{Done: done}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for shutdown")
	}
	<-s.Done()

	calls, _ := h.snapshot()
	assert.Equal(t, []call{{op: "join", group: "330ALICE"}, {op: "leave"}}, calls)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"join:330ALICE", "leave:330ALICE"}, h.recorded)
}

func TestSession_ShutdownKeepsForeignGroup(t *testing.T) {
	h := newFakeHost(330)
	s := newSession(t, h, nil)
	s.Inbox() <- GroupReported{Group: "MyFriends"}

	done := make(chan error, 1)
	s.Inbox() <- Shutdown{Done: done}
	require.NoError(t, <-done)

	calls, _ := h.snapshot()
	assert.Empty(t, calls)
}
