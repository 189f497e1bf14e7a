package orch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/auth/mocks"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/protocol"
)

type recConn struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	var env protocol.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *recConn) Close() {}

func (c *recConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

func (c *recConn) last(t *testing.T, event string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(c.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %s frame", event)
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type fixture struct {
	o        *Orchestrator
	provider *mocks.MockIdentityProvider
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	p := mocks.NewMockIdentityProvider(ctrl)
	m := metrics.New(prometheus.NewRegistry())
	return &fixture{
		o: &Orchestrator{
			Registry: app.NewRegistry(),
			Rooms:    core.NewRoomManager(capacity),
			Policy:   app.SimplePolicy{},
			Access:   auth.NewGate(p, 50*time.Millisecond),
			Metrics:  m,
			Now:      func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
		},
		provider: p,
		metrics:  m,
	}
}

func (f *fixture) connect(sid, name string) (*recConn, *bool) {
	conn := &recConn{}
	canceled := new(bool)
	f.o.OnConnect(core.SessionID(sid), &domain.User{ID: domain.UserID("u-" + sid), Username: name}, conn, func() { *canceled = true })
	return conn, canceled
}

func (f *fixture) allowAll() {
	f.provider.EXPECT().CanAccessRoom(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
}

func TestJoinSignalDisconnectScenario(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	ctx := context.Background()
	connA, _ := f.connect("A", "Alice")
	connB, _ := f.connect("B", "Bob")

	res, err := f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "r1", DisplayName: "Alice"})
	require.NoError(t, err)
	assert.True(t, res.IsHost)
	require.Len(t, res.Participants, 1)

	_, err = f.o.Join(ctx, "B", protocol.JoinRoom{RoomID: "r1", DisplayName: "Bob"})
	require.NoError(t, err)

	var joined protocol.UserJoined
	connA.last(t, protocol.EventUserJoined, &joined)
	assert.Equal(t, "B", joined.ConnectionKey)
	for _, c := range []*recConn{connA, connB} {
		var list protocol.ParticipantsList
		c.last(t, protocol.EventParticipantsList, &list)
		assert.Len(t, list.Participants, 2)
	}

	connA.reset()
	err = f.o.Signal("B", protocol.Signal{
		RoomID:  "r1",
		Type:    protocol.SignalOffer,
		Payload: json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`),
		To:      "A",
	})
	require.NoError(t, err)
	var sig protocol.RelayedSignal
	connA.last(t, protocol.EventSignal, &sig)
	assert.Equal(t, "B", sig.From)
	assert.Equal(t, "Bob", sig.FromName)
	assert.Equal(t, protocol.SignalOffer, sig.Type)

	connB.reset()
	f.o.OnDisconnected("A")
	assert.Equal(t, []string{protocol.EventUserLeft, protocol.EventHostChanged, protocol.EventParticipantsList}, connB.events())
	var list protocol.ParticipantsList
	connB.last(t, protocol.EventParticipantsList, &list)
	require.Len(t, list.Participants, 1)
	assert.True(t, list.Participants[0].IsHost)

	left, err := f.o.Leave("B", protocol.RoomRef{RoomID: "r1"})
	require.NoError(t, err)
	assert.True(t, left)
	assert.False(t, f.o.Rooms.Exists("r1"))
	assert.Equal(t, Stats{Connections: 1, Rooms: 0}, f.o.Stats())
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Signals.WithLabelValues("offer", "targeted")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.Participants), 0)
}

func TestJoinAccessDeniedTakesNoSlot(t *testing.T) {
	f := newFixture(t, 0)
	f.provider.EXPECT().CanAccessRoom(gomock.Any(), gomock.Any(), domain.RoomID("vip")).Return(false, nil)
	conn, _ := f.connect("A", "Alice")

	_, err := f.o.Join(context.Background(), "A", protocol.JoinRoom{RoomID: "vip"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.False(t, f.o.Rooms.Exists("vip"))
	assert.Empty(t, conn.events())
}

func TestJoinAccessTimeoutDenies(t *testing.T) {
	f := newFixture(t, 0)
	f.provider.EXPECT().CanAccessRoom(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ *domain.User, _ domain.RoomID) (bool, error) {
			<-ctx.Done()
			return true, ctx.Err()
		})
	f.connect("A", "Alice")

	_, err := f.o.Join(context.Background(), "A", protocol.JoinRoom{RoomID: "slow"})
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
}

func TestJoinValidation(t *testing.T) {
	f := newFixture(t, 1)
	f.allowAll()
	ctx := context.Background()
	f.connect("A", "Alice")
	f.connect("B", "Bob")

	_, err := f.o.Join(ctx, "ghost", protocol.JoinRoom{RoomID: "r"})
	assert.ErrorIs(t, err, domain.ErrUnknownParticipant)

	_, err = f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "  "})
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	_, err = f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "r", DisplayName: strings.Repeat("x", 65)})
	assert.ErrorIs(t, err, domain.ErrBadPayload)

	res, err := f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "r"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", res.Participants[0].DisplayName, "display name falls back to username")

	_, err = f.o.Join(ctx, "B", protocol.JoinRoom{RoomID: "r"})
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Rejections.WithLabelValues("join", "room_full")), 0)
}

func TestGracefulThenAbruptDisconnectNotifiesOnce(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	ctx := context.Background()
	f.connect("A", "Alice")
	connB, _ := f.connect("B", "Bob")
	for _, room := range []string{"r1", "r2"} {
		_, err := f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: room})
		require.NoError(t, err)
		_, err = f.o.Join(ctx, "B", protocol.JoinRoom{RoomID: room})
		require.NoError(t, err)
	}
	connB.reset()

	f.o.OnDisconnecting("A")
	f.o.OnDisconnected("A")

	leaving, left := 0, 0
	for _, e := range connB.events() {
		switch e {
		case protocol.EventUserLeaving:
			leaving++
		case protocol.EventUserLeft:
			left++
		}
	}
	assert.Equal(t, 2, leaving, "one user-leaving per room")
	assert.Equal(t, 0, left)
	assert.Empty(t, f.o.Rooms.RoomsOf("A"))
	_, ok := f.o.Registry.User("A")
	assert.False(t, ok)
}

func TestStatusAndScreenShare(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	ctx := context.Background()
	f.connect("A", "Alice")
	connB, _ := f.connect("B", "Bob")
	_, _ = f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "r"})
	_, _ = f.o.Join(ctx, "B", protocol.JoinRoom{RoomID: "r"})

	on := true
	require.NoError(t, f.o.UpdateStatus("A", protocol.UpdateStatus{RoomID: "r", Status: domain.StatusUpdate{Muted: &on}}))
	require.NoError(t, f.o.ScreenShare("A", protocol.RoomRef{RoomID: "r"}, true))

	var list protocol.ParticipantsList
	connB.last(t, protocol.EventParticipantsList, &list)
	assert.True(t, list.Participants[0].Muted)
	assert.False(t, list.Participants[0].VideoOff)
	assert.True(t, list.Participants[0].ScreenSharing)
	assert.Contains(t, connB.events(), protocol.EventScreenShareStarted)

	assert.ErrorIs(t, f.o.UpdateStatus("A", protocol.UpdateStatus{RoomID: "other"}), domain.ErrUnknownParticipant)
	assert.ErrorIs(t, f.o.ScreenShare("ghost", protocol.RoomRef{RoomID: "r"}, true), domain.ErrUnknownParticipant)
}

func TestSignalErrors(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	ctx := context.Background()
	f.connect("A", "Alice")
	f.connect("C", "Carol")
	_, _ = f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "r"})

	err := f.o.Signal("A", protocol.Signal{RoomID: "r", Type: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)

	err = f.o.Signal("A", protocol.Signal{RoomID: "r", Type: protocol.SignalAnswer, Payload: json.RawMessage(`{"type":"answer"}`)})
	assert.ErrorIs(t, err, domain.ErrInvalidSignal)

	err = f.o.Signal("A", protocol.Signal{RoomID: "r", Type: protocol.SignalHangUp, To: "nobody"})
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)

	// Non-members are dropped even when the payload is bad.
	err = f.o.Signal("C", protocol.Signal{RoomID: "r", Type: "bogus"})
	assert.ErrorIs(t, err, domain.ErrUnknownParticipant)
}

func TestChat(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	f.o.ChatMaxLength = 5
	connA, _ := f.connect("A", "Alice")
	_, _ = f.o.Join(context.Background(), "A", protocol.JoinRoom{RoomID: "r"})

	require.NoError(t, f.o.Chat("A", protocol.ChatMessage{RoomID: "r", Message: "  héllo "}))
	var msg protocol.ChatOut
	connA.last(t, protocol.EventChatMessage, &msg)
	assert.Equal(t, "héllo", msg.Message)
	assert.Equal(t, "Alice", msg.FromName)
	assert.True(t, f.o.Now().Equal(msg.Timestamp))

	assert.ErrorIs(t, f.o.Chat("A", protocol.ChatMessage{RoomID: "r", Message: "   "}), domain.ErrBadPayload)
	assert.ErrorIs(t, f.o.Chat("A", protocol.ChatMessage{RoomID: "r", Message: "toolong"}), domain.ErrBadPayload)
	assert.ErrorIs(t, f.o.Chat("A", protocol.ChatMessage{RoomID: "gone", Message: "hi"}), domain.ErrUnknownParticipant)
}

func TestSlowConsumerIsKicked(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	ctx := context.Background()
	f.connect("A", "Alice")
	connB, canceledB := f.connect("B", "Bob")
	_, _ = f.o.Join(ctx, "A", protocol.JoinRoom{RoomID: "r"})
	_, _ = f.o.Join(ctx, "B", protocol.JoinRoom{RoomID: "r"})

	connB.full = true
	require.NoError(t, f.o.Chat("A", protocol.ChatMessage{RoomID: "r", Message: "hi"}))
	assert.True(t, *canceledB)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Dropped), 0)
}

func TestSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	f.allowAll()
	f.connect("A", "Alice")
	_, ok := f.o.Snapshot("r")
	assert.False(t, ok)

	_, _ = f.o.Join(context.Background(), "A", protocol.JoinRoom{RoomID: "r", Avatar: "/a.png"})
	list, ok := f.o.Snapshot("r")
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "/a.png", list[0].Avatar)
}
