package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observedEvent struct {
	kind, room, conn, name string
}

type recordingObserver struct {
	mu     sync.Mutex
	events []observedEvent
}

func (o *recordingObserver) RoomJoined(roomID, connID, displayName string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observedEvent{"joined", roomID, connID, displayName})
}

func (o *recordingObserver) ConnectionLeft(roomID, connID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, observedEvent{"left", roomID, connID, ""})
}

func (o *recordingObserver) snapshot() []observedEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observedEvent(nil), o.events...)
}

func TestCloseEmitsExactlyOneUserLeft(t *testing.T) {
	r, c := newTestRelay(t, "a", "b", "x")
	join(t, r, c["a"], "r1", "a")
	join(t, r, c["b"], "r1", "b")
	join(t, r, c["x"], "r2", "x")
	for _, conn := range c {
		drain(t, conn)
	}

	r.Close(c["a"])
	r.Close(c["a"])

	for _, id := range []string{"b", "x"} {
		got := drain(t, c[id])
		require.Equal(t, []string{"user-left"}, kinds(got), "user-left reaches every connection (%s)", id)
		assert.Equal(t, "a", got[0]["connectionId"])
	}

	_, inTable := r.conns.Get("a")
	assert.False(t, inTable)
	_, inRoom := r.rooms.RoomOf("a")
	assert.False(t, inRoom)
	assert.Equal(t, []string{"b"}, memberIDs(r.Members("r1")))
}

func TestClosedSlotCarriesNoStaleMembership(t *testing.T) {
	r, c := newTestRelay(t, "a", "b")
	join(t, r, c["a"], "r1", "a")
	join(t, r, c["b"], "r1", "b")
	r.Close(c["a"])

	fresh := testConn("a")
	r.conns.Add(fresh)
	_, inRoom := r.rooms.RoomOf("a")
	assert.False(t, inRoom)

	join(t, r, fresh, "r2", "again")
	assert.Equal(t, []string{"b"}, memberIDs(r.Members("r1")))
	assert.Equal(t, []string{"a"}, memberIDs(r.Members("r2")))
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	r, c := newTestRelay(t, "a")
	r.Close(c["a"])

	assert.False(t, c["a"].Send(newClearBroadcast("x")))
}

func TestSendQueueFullDrops(t *testing.T) {
	c := newConn("a", Identity{}, nil, 2, 0, zerolog.Nop())

	assert.True(t, c.Send(newClearBroadcast("x")))
	assert.True(t, c.Send(newClearBroadcast("x")))
	assert.False(t, c.Send(newClearBroadcast("x")), "a full queue never blocks")
	assert.Len(t, drain(t, c), 2)
}

// 시나리오: A, B 가 R1 에 입장, A 가 "hi" 전송 후 종료
func TestChatAndDisconnectScenario(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	ta, tb := newFakeTransport(), newFakeTransport()

	a, err := r.Accept(ta, Identity{UserID: "u-a", Name: "A"})
	require.NoError(t, err)
	b, err := r.Accept(tb, Identity{UserID: "u-b", Name: "B"})
	require.NoError(t, err)

	welcome := ta.next(t)
	assert.Equal(t, "welcome", welcome["type"])
	assert.Equal(t, a.ID(), welcome["connectionId"])
	assert.Equal(t, "u-a", welcome["userId"])
	assert.Equal(t, "welcome", tb.next(t)["type"])

	join(t, r, a, "R1", "A")
	assert.Equal(t, "room-members", ta.next(t)["type"])
	join(t, r, b, "R1", "B")
	assert.Equal(t, "room-members", tb.next(t)["type"])
	assert.Equal(t, "user-joined", ta.next(t)["type"])

	r.Handle(a, rawFrame(t, map[string]any{"type": "chatMessage", "roomId": "R1", "message": "hi", "sender": "A"}))
	got := tb.next(t)
	assert.Equal(t, "chatMessage", got["type"])
	assert.Equal(t, "A", got["sender"])
	assert.Equal(t, "hi", got["text"])

	r.Close(a)
	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
	select {
	case extra := <-ta.frames:
		t.Fatalf("sender received its own echo: %s", extra)
	default:
	}

	left := tb.next(t)
	assert.Equal(t, "user-left", left["type"])
	assert.Equal(t, a.ID(), left["connectionId"])
	assert.Equal(t, []string{b.ID()}, memberIDs(r.Members("R1")))
}

func TestAcceptAssignsUniqueIDs(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		c, err := r.Accept(newFakeTransport(), Identity{})
		require.NoError(t, err)
		assert.False(t, seen[c.ID()])
		seen[c.ID()] = true
	}
	assert.Equal(t, 50, r.ConnectionCount())
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestWriteFailureStopsWriter(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	ft := newFakeTransport()
	ft.failWrite = true

	c, err := r.Accept(ft, Identity{})
	require.NoError(t, err)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer kept running after write failure")
	}
	select {
	case <-ft.closed:
	default:
		t.Fatal("transport not closed")
	}

	r.Close(c)
	assert.Equal(t, 0, r.ConnectionCount())
}

func TestShutdownDrainsAndRejects(t *testing.T) {
	r := New(Options{Logger: zerolog.Nop()})
	ta, tb := newFakeTransport(), newFakeTransport()
	a, err := r.Accept(ta, Identity{})
	require.NoError(t, err)
	b, err := r.Accept(tb, Identity{})
	require.NoError(t, err)
	join(t, r, a, "r1", "a")
	join(t, r, b, "r1", "b")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	<-a.Done()
	<-b.Done()
	assert.Equal(t, 0, r.ConnectionCount())
	assert.Equal(t, 0, r.RoomCount())

	_, err = r.Accept(newFakeTransport(), Identity{})
	assert.True(t, errors.Is(err, ErrDraining))
}

func TestPresenceObserver(t *testing.T) {
	obs := &recordingObserver{}
	r := New(Options{Logger: zerolog.Nop(), Observer: obs})
	a := testConn("a")
	r.conns.Add(a)

	join(t, r, a, "r1", "Ann")
	join(t, r, a, "r2", "Ann")
	r.Close(a)

	assert.Equal(t, []observedEvent{
		{"joined", "r1", "a", "Ann"},
		{"left", "r1", "a", ""},
		{"joined", "r2", "a", "Ann"},
		{"left", "r2", "a", ""},
	}, obs.snapshot())
}

func TestRelayBroadcastForRESTChat(t *testing.T) {
	r, c := newTestRelay(t, "a", "b")
	join(t, r, c["a"], "p1", "a")
	drain(t, c["a"])

	ev := NewChatRecord(7, "p1", "u1", "Ann", "saved", time.Unix(0, 0).UTC())
	assert.Equal(t, 2, r.BroadcastAll(ev))

	got := drain(t, c["a"])
	require.Equal(t, []string{"receiveMessage"}, kinds(got))
	assert.Equal(t, "saved", got[0]["message"])
	assert.Len(t, drain(t, c["b"]), 1)
}

func TestJoinAfterCloseLeavesNoMembership(t *testing.T) {
	r, c := newTestRelay(t, "a", "b")
	join(t, r, c["b"], "r1", "b")
	r.Close(c["a"])

	r.Handle(c["a"], rawFrame(t, map[string]any{"type": "join-room", "roomId": "r1", "displayName": "late"}))

	assert.Equal(t, []string{"b"}, memberIDs(r.Members("r1")))
	assert.NotContains(t, kinds(drain(t, c["b"])), string(KindUserJoined))
}
