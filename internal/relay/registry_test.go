package relay

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memberIDs(members []Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.ConnectionID)
	}
	return out
}

func TestRegistryMembership(t *testing.T) {
	type step struct {
		op   string // join | leave
		conn string
		room string
	}

	tests := []struct {
		name  string
		steps []step
		want  map[string][]string
	}{
		{
			name:  "single join",
			steps: []step{{"join", "a", "r1"}},
			want:  map[string][]string{"r1": {"a"}},
		},
		{
			name:  "join then leave drops room",
			steps: []step{{"join", "a", "r1"}, {"leave", "a", ""}},
			want:  map[string][]string{},
		},
		{
			name: "two rooms",
			steps: []step{
				{"join", "a", "r1"}, {"join", "b", "r1"}, {"join", "c", "r2"},
			},
			want: map[string][]string{"r1": {"a", "b"}, "r2": {"c"}},
		},
		{
			name: "switch room leaves previous",
			steps: []step{
				{"join", "a", "r1"}, {"join", "b", "r1"}, {"join", "a", "r2"},
			},
			want: map[string][]string{"r1": {"b"}, "r2": {"a"}},
		},
		{
			name: "rejoin same room is idempotent",
			steps: []step{
				{"join", "a", "r1"}, {"join", "a", "r1"},
			},
			want: map[string][]string{"r1": {"a"}},
		},
		{
			name: "leave without room is a no-op",
			steps: []step{
				{"leave", "a", ""}, {"join", "b", "r1"},
			},
			want: map[string][]string{"r1": {"b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry()
			conns := map[string]*Conn{}
			for _, s := range tt.steps {
				c, ok := conns[s.conn]
				if !ok {
					c = testConn(s.conn)
					conns[s.conn] = c
				}
				switch s.op {
				case "join":
					reg.Join(c, s.room, s.conn)
				case "leave":
					reg.Leave(s.conn)
				}
			}

			assert.Equal(t, len(tt.want), reg.Len())
			for room, ids := range tt.want {
				assert.Equal(t, ids, memberIDs(reg.Members(room)), "room %s", room)
			}
		})
	}
}

func TestRegistryJoinReturnsMembersAndPrevious(t *testing.T) {
	reg := NewRegistry()
	a, b := testConn("a"), testConn("b")

	members, prev := reg.Join(a, "r1", "Ann")
	assert.Equal(t, []Member{{ConnectionID: "a", DisplayName: "Ann"}}, members)
	assert.Empty(t, prev)

	members, _ = reg.Join(b, "r1", "Bob")
	assert.Equal(t, []string{"a", "b"}, memberIDs(members))

	_, prev = reg.Join(a, "r1", "Annie")
	assert.Empty(t, prev, "rejoining the same room is not a move")
	assert.Equal(t, "Annie", reg.DisplayName("a"))

	_, prev = reg.Join(a, "r2", "Annie")
	assert.Equal(t, "r1", prev)

	room, ok := reg.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, "r2", room)
}

func TestRegistryNoEmptyRoomsRetained(t *testing.T) {
	reg := NewRegistry()
	c := testConn("a")

	for i := 0; i < 1000; i++ {
		reg.Join(c, fmt.Sprintf("room-%d", i), "a")
		reg.Leave("a")
	}

	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.Rooms())
	_, ok := reg.RoomOf("a")
	assert.False(t, ok)
}

func TestRegistryBroadcastExcludesSender(t *testing.T) {
	reg := NewRegistry()
	room := []*Conn{testConn("a"), testConn("b"), testConn("c"), testConn("d")}
	other := testConn("x")
	for _, c := range room {
		reg.Join(c, "r1", c.id)
	}
	reg.Join(other, "r2", "x")
	for _, c := range append(room, other) {
		drain(t, c)
	}

	n := reg.Broadcast("r1", newChatBroadcast("r1", "a", "hi", "a"), "a")
	assert.Equal(t, len(room)-1, n)

	assert.Empty(t, drain(t, room[0]))
	for _, c := range room[1:] {
		assert.Equal(t, []string{"chatMessage"}, kinds(drain(t, c)))
	}
	assert.Empty(t, drain(t, other))
}

func TestRegistryBroadcastUnknownRoom(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, 0, reg.Broadcast("missing", newClearBroadcast("a"), ""))

	n, ok := reg.BroadcastFrom("a", true, func(string) Outbound { return newClearBroadcast("a") })
	assert.False(t, ok)
	assert.Zero(t, n)
}

func TestRegistryConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry()
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := testConn(fmt.Sprintf("c%d", i))
			for j := 0; j < 50; j++ {
				reg.Join(c, fmt.Sprintf("r%d", j%4), c.id)
				reg.Broadcast(fmt.Sprintf("r%d", (j+1)%4), newClearBroadcast(c.id), c.id)
				discard(c)
			}
			reg.Leave(c.id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, reg.Len())
}

func TestRegistryJoinQueuesRosterUnderLock(t *testing.T) {
	reg := NewRegistry()
	a, b := testConn("a"), testConn("b")

	reg.Join(a, "r1", "Ann")
	reg.Join(b, "r1", "Bob")

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, "room-members", got[0]["type"])

	got = drain(t, b)
	require.Len(t, got, 1)
	assert.Len(t, got[0]["members"], 2)
}

func TestRegistryAnnounceSkipsDepartedMembers(t *testing.T) {
	reg := NewRegistry()
	a, b, c := testConn("a"), testConn("b"), testConn("c")
	for _, conn := range []*Conn{a, b, c} {
		reg.Join(conn, "r1", conn.id)
		drain(t, conn)
	}

	called := 0
	n, ok := reg.Announce("a", "r1", newUserJoined("a", "Ann"), func() { called++ })
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, called)
	assert.Empty(t, drain(t, a))

	reg.Leave("b")
	_, ok = reg.Announce("b", "r1", newUserJoined("b", "Bob"), func() { called++ })
	assert.False(t, ok)

	c.shutdown()
	_, ok = reg.Announce("c", "r1", newUserJoined("c", "Cy"), func() { called++ })
	assert.False(t, ok)
	assert.Equal(t, 1, called)
}
