package core

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(f, &env))
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) events(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, env := range c.envelopes(t) {
		out = append(out, env.Event)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

// last decodes the newest frame of the given event into v.
func (c *fakeConn) last(t *testing.T, event string, v any) bool {
	t.Helper()
	envs := c.envelopes(t)
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Event == event {
			require.NoError(t, json.Unmarshal(envs[i].Data, v))
			return true
		}
	}
	return false
}

func (c *fakeConn) count(t *testing.T, event string) int {
	t.Helper()
	n := 0
	for _, e := range c.events(t) {
		if e == event {
			n++
		}
	}
	return n
}

func newSession(t *testing.T, sid, name string) (MemberSession, *fakeConn) {
	t.Helper()
	u, err := domain.NewUser("user-"+sid, name)
	require.NoError(t, err)
	m, err := domain.NewMember(u, name, "", "", time.Unix(0, 0))
	require.NoError(t, err)
	conn := &fakeConn{}
	return NewMemberSession(SessionID(sid), m, conn), conn
}

func TestJoinFirstMemberBecomesHost(t *testing.T) {
	m := NewRoomManager(0)
	a, connA := newSession(t, "a", "Alice")

	res, err := m.Join("r1", a)
	require.NoError(t, err)
	assert.True(t, res.IsHost)
	assert.Len(t, res.Participants, 1)
	assert.Equal(t, []string{protocol.EventRoomJoined, protocol.EventParticipantsList}, connA.events(t))

	b, connB := newSession(t, "b", "Bob")
	res, err = m.Join("r1", b)
	require.NoError(t, err)
	assert.False(t, res.IsHost)

	var joined protocol.UserJoined
	require.True(t, connA.last(t, protocol.EventUserJoined, &joined))
	assert.Equal(t, "Bob", joined.DisplayName)
	assert.Equal(t, 0, connB.count(t, protocol.EventUserJoined))

	for _, c := range []*fakeConn{connA, connB} {
		var list protocol.ParticipantsList
		require.True(t, c.last(t, protocol.EventParticipantsList, &list))
		require.Len(t, list.Participants, 2)
		assert.Equal(t, "a", list.Participants[0].ConnectionKey)
		assert.True(t, list.Participants[0].IsHost)
		assert.Equal(t, domain.DefaultAvatar, list.Participants[1].Avatar)
	}
	assert.Equal(t, []domain.RoomID{"r1"}, m.RoomsOf("a"))
}

func TestJoinRespectsCapacity(t *testing.T) {
	m := NewRoomManager(2)
	for i := 0; i < 2; i++ {
		s, _ := newSession(t, fmt.Sprint(i), "p")
		_, err := m.Join("r", s)
		require.NoError(t, err)
	}
	extra, conn := newSession(t, "x", "late")
	_, err := m.Join("r", extra)
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.Empty(t, conn.events(t))
	assert.Empty(t, m.RoomsOf("x"))

	room, ok := m.GetRoom("r")
	require.True(t, ok)
	assert.Equal(t, 2, room.MemberCount())
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	const capacity, joiners = 50, 200
	m := NewRoomManager(capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for i := 0; i < joiners; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := newSession(t, fmt.Sprint(i), "p")
			_, err := m.Join("busy", s)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, domain.ErrRoomFull)
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, capacity, ok)
	assert.Equal(t, joiners-capacity, full)
	room, _ := m.GetRoom("busy")
	assert.Equal(t, capacity, room.MemberCount())
}

func TestRejoinDoesNotDuplicate(t *testing.T) {
	m := NewRoomManager(1)
	a, connA := newSession(t, "a", "Alice")
	_, err := m.Join("r", a)
	require.NoError(t, err)
	connA.reset()

	res, err := m.Join("r", a)
	require.NoError(t, err, "rejoin must not hit the capacity check")
	assert.True(t, res.Rejoined)
	assert.Len(t, res.Participants, 1)
	assert.Equal(t, []string{protocol.EventRoomJoined}, connA.events(t))
}

func TestLeaveIsIdempotentAndRemovesEmptyRoom(t *testing.T) {
	m := NewRoomManager(0)
	a, _ := newSession(t, "a", "Alice")
	b, connB := newSession(t, "b", "Bob")
	_, err := m.Join("r1", a)
	require.NoError(t, err)
	_, err = m.Join("r1", b)
	require.NoError(t, err)
	connB.reset()

	res, ok := m.Leave("r1", "a", protocol.EventUserLeft)
	require.True(t, ok)
	assert.Equal(t, "Alice", res.Member.DisplayName)
	assert.Equal(t, SessionID("b"), res.NewHost)
	assert.Equal(t, []string{protocol.EventUserLeft, protocol.EventHostChanged, protocol.EventParticipantsList}, connB.events(t))

	connB.reset()
	_, ok = m.Leave("r1", "a", protocol.EventUserLeft)
	assert.False(t, ok)
	assert.Empty(t, connB.events(t), "second leave must not broadcast")

	_, ok = m.Leave("nowhere", "a", protocol.EventUserLeft)
	assert.False(t, ok)

	res, ok = m.Leave("r1", "b", protocol.EventUserLeft)
	require.True(t, ok)
	assert.True(t, res.Empty)
	assert.False(t, m.Exists("r1"))
	assert.Equal(t, 0, m.Count())
	assert.Empty(t, m.RoomsOf("b"))
}

func TestHostHandoffPicksEarliestRemaining(t *testing.T) {
	m := NewRoomManager(0)
	for _, sid := range []string{"a", "b", "c"} {
		s, _ := newSession(t, sid, sid)
		_, err := m.Join("r", s)
		require.NoError(t, err)
	}
	_, _ = m.Leave("r", "a", protocol.EventUserLeft)
	room, _ := m.GetRoom("r")
	host, ok := room.Host()
	require.True(t, ok)
	assert.Equal(t, SessionID("b"), host)

	// Non-host leaving keeps the host.
	res, _ := m.Leave("r", "c", protocol.EventUserLeft)
	assert.Empty(t, res.NewHost)
}

func TestUpdateStatusIsPartial(t *testing.T) {
	m := NewRoomManager(0)
	a, connA := newSession(t, "a", "Alice")
	b, connB := newSession(t, "b", "Bob")
	_, _ = m.Join("r1", a)
	_, _ = m.Join("r1", b)
	room, _ := m.GetRoom("r1")

	yes := true
	_, err := room.UpdateStatus("a", domain.StatusUpdate{VideoOff: &yes})
	require.NoError(t, err)
	_, err = room.UpdateStatus("a", domain.StatusUpdate{Muted: &yes})
	require.NoError(t, err)

	for _, c := range []*fakeConn{connA, connB} {
		var list protocol.ParticipantsList
		require.True(t, c.last(t, protocol.EventParticipantsList, &list))
		assert.True(t, list.Participants[0].Muted)
		assert.True(t, list.Participants[0].VideoOff, "earlier field must survive a later partial update")
		assert.False(t, list.Participants[1].Muted)
		assert.False(t, list.Participants[1].VideoOff)
	}

	_, err = room.UpdateStatus("ghost", domain.StatusUpdate{Muted: &yes})
	assert.ErrorIs(t, err, domain.ErrUnknownParticipant)
}

func TestScreenSharingNotifiesOthers(t *testing.T) {
	m := NewRoomManager(0)
	a, connA := newSession(t, "a", "Alice")
	b, connB := newSession(t, "b", "Bob")
	_, _ = m.Join("r", a)
	_, _ = m.Join("r", b)
	connA.reset()
	connB.reset()
	room, _ := m.GetRoom("r")

	_, err := room.SetScreenSharing("a", true)
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.EventParticipantsList}, connA.events(t))
	assert.Equal(t, []string{protocol.EventParticipantsList, protocol.EventScreenShareStarted}, connB.events(t))

	var list protocol.ParticipantsList
	require.True(t, connB.last(t, protocol.EventParticipantsList, &list))
	assert.True(t, list.Participants[0].ScreenSharing)

	_, err = room.SetScreenSharing("a", false)
	require.NoError(t, err)
	assert.Equal(t, 1, connB.count(t, protocol.EventScreenShareStopped))
}

func TestSignalTargetedVersusBroadcast(t *testing.T) {
	m := NewRoomManager(0)
	a, connA := newSession(t, "a", "Alice")
	b, connB := newSession(t, "b", "Bob")
	c, connC := newSession(t, "c", "Carol")
	for _, s := range []MemberSession{a, b, c} {
		_, err := m.Join("r", s)
		require.NoError(t, err)
	}
	for _, conn := range []*fakeConn{connA, connB, connC} {
		conn.reset()
	}
	room, _ := m.GetRoom("r")

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	res, err := room.Signal("a", protocol.Signal{RoomID: "r", Type: protocol.SignalOffer, Payload: payload, To: "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, connA.events(t))
	assert.Empty(t, connB.events(t))

	var got protocol.RelayedSignal
	require.True(t, connC.last(t, protocol.EventSignal, &got))
	assert.Equal(t, "a", got.From)
	assert.Equal(t, "Alice", got.FromName)
	assert.JSONEq(t, string(payload), string(got.Payload))

	connC.reset()
	res, err = room.Signal("a", protocol.Signal{RoomID: "r", Type: protocol.SignalHangUp})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SendTo)
	assert.Empty(t, connA.events(t), "sender never receives its own broadcast signal")
	assert.Equal(t, 1, connB.count(t, protocol.EventSignal))
	assert.Equal(t, 1, connC.count(t, protocol.EventSignal))

	_, err = room.Signal("a", protocol.Signal{RoomID: "r", Type: protocol.SignalHangUp, To: "zz"})
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)
	_, err = room.Signal("zz", protocol.Signal{RoomID: "r", Type: protocol.SignalHangUp})
	assert.ErrorIs(t, err, domain.ErrUnknownParticipant)
}

func TestChatIncludesSender(t *testing.T) {
	m := NewRoomManager(0)
	a, connA := newSession(t, "a", "Alice")
	b, connB := newSession(t, "b", "Bob")
	_, _ = m.Join("r", a)
	_, _ = m.Join("r", b)
	room, _ := m.GetRoom("r")

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err := room.Chat("b", "hi", at)
	require.NoError(t, err)
	for _, c := range []*fakeConn{connA, connB} {
		var msg protocol.ChatOut
		require.True(t, c.last(t, protocol.EventChatMessage, &msg))
		assert.Equal(t, "Bob", msg.FromName)
		assert.Equal(t, "hi", msg.Message)
		assert.True(t, at.Equal(msg.Timestamp))
	}
}

func TestBackpressureIsReported(t *testing.T) {
	m := NewRoomManager(0)
	a, _ := newSession(t, "a", "Alice")
	b, connB := newSession(t, "b", "Bob")
	_, _ = m.Join("r", a)
	_, _ = m.Join("r", b)
	connB.full = true
	room, _ := m.GetRoom("r")

	res, err := room.Chat("a", "hello", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)
	assert.Equal(t, []SessionID{"b"}, res.Dropped)
}

func TestJoinLeaveChurnLeavesNoRooms(t *testing.T) {
	m := NewRoomManager(4)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := newSession(t, fmt.Sprint(i), "p")
			for j := 0; j < 50; j++ {
				if _, err := m.Join("churn", s); err == nil {
					m.Leave("churn", s.SID(), protocol.EventUserLeft)
				}
			}
		}()
	}
	wg.Wait()
	assert.False(t, m.Exists("churn"))
	for i := 0; i < 32; i++ {
		assert.Empty(t, m.RoomsOf(SessionID(fmt.Sprint(i))))
	}
}

func TestEnsureRoomIsIdempotent(t *testing.T) {
	m := NewRoomManager(0)
	r1 := m.EnsureRoom("r")
	r2 := m.EnsureRoom("r")
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, []RoomInfo{{ID: "r", MemberCount: 0, CreatedAt: r1.Room().CreatedAt}}, m.List())
}
