package relay

import (
	"encoding/json"
	"sort"
	"sync"

	"teamsync-backend/internal/metrics"
)

// RoomInfo 방 스냅샷
type RoomInfo struct {
	ID      string `json:"roomId"`
	Members int    `json:"members"`
}

type member struct {
	conn        *Conn
	displayName string
}

// Registry 방 → 멤버 매핑.
// 단일 뮤텍스로 join, leave, broadcast 를 서로에 대해 원자적으로 만든다.
// 연결은 동시에 최대 하나의 방에 속하고 빈 방은 남기지 않는다.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]map[string]*member
	memberOf map[string]string
}

// NewRegistry Registry 생성
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[string]*member),
		memberOf: make(map[string]string),
	}
}

// Join 연결을 방에 추가하고 입장 후 멤버 목록을 반환한다.
// room-members 는 잠금 안에서 큐에 넣으므로 이후 입장한 멤버의 user-joined 보다 항상 먼저 도착한다.
// 다른 방에 있었다면 먼저 그 방에서 빠지며 previous 로 알려준다.
// 같은 방에 다시 들어오면 멤버십은 그대로이고 표시 이름만 갱신된다.
// 이미 닫힌 연결은 등록하지 않고 빈 목록을 반환한다.
func (r *Registry) Join(c *Conn, roomID, displayName string) (members []Member, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.isClosed() {
		return nil, ""
	}

	if prev, ok := r.memberOf[c.id]; ok && prev != roomID {
		r.removeLocked(c.id, prev)
		previous = prev
	}

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]*member)
		r.rooms[roomID] = room
		metrics.RelayRooms.Inc()
	}
	room[c.id] = &member{conn: c, displayName: displayName}
	r.memberOf[c.id] = roomID

	members = r.membersLocked(roomID)
	if data, err := json.Marshal(newRoomMembers(roomID, members)); err == nil {
		c.enqueue(data)
	}
	return members, previous
}

// Announce connID 가 아직 roomID 의 살아 있는 멤버일 때만 나머지 멤버에게 전송.
// 종료와 겹친 입장 알림이 user-left 뒤에 도착하지 않게 한다.
// onSent 는 nil 이 아니면 같은 잠금 안에서 호출되므로 블로킹하면 안 된다.
func (r *Registry) Announce(connID, roomID string, ev Outbound, onSent func()) (delivered int, ok bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memberOf[connID] != roomID {
		return 0, false
	}
	m, found := r.rooms[roomID][connID]
	if !found || m.conn.isClosed() {
		return 0, false
	}
	delivered = r.fanoutLocked(roomID, data, connID)
	if onSent != nil {
		onSent()
	}
	return delivered, true
}

// Leave 연결을 현재 방에서 제거. 방에 없었다면 ok=false.
func (r *Registry) Leave(connID string) (roomID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok = r.memberOf[connID]
	if !ok {
		return "", false
	}
	r.removeLocked(connID, roomID)
	return roomID, true
}

func (r *Registry) removeLocked(connID, roomID string) {
	delete(r.memberOf, connID)

	room, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		metrics.RelayRooms.Dec()
	}
}

// RoomOf 연결이 속한 방
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.memberOf[connID]
	return roomID, ok
}

// Broadcast 방의 멤버에게 전송 (exclude 제외). 없는 방이면 아무것도 하지 않는다.
func (r *Registry) Broadcast(roomID string, ev Outbound, exclude string) int {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fanoutLocked(roomID, data, exclude)
}

// BroadcastFrom 송신자의 현재 방으로 전송. 송신자가 방에 없으면 ok=false.
// build 는 확인된 방 ID 로 이벤트를 만든다.
func (r *Registry) BroadcastFrom(connID string, includeSender bool, build func(roomID string) Outbound) (delivered int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.memberOf[connID]
	if !ok {
		return 0, false
	}

	data, err := json.Marshal(build(roomID))
	if err != nil {
		return 0, true
	}

	exclude := connID
	if includeSender {
		exclude = ""
	}
	return r.fanoutLocked(roomID, data, exclude), true
}

func (r *Registry) fanoutLocked(roomID string, data []byte, exclude string) int {
	delivered := 0
	for id, m := range r.rooms[roomID] {
		if id == exclude {
			continue
		}
		if m.conn.enqueue(data) {
			delivered++
		}
	}
	return delivered
}

// Members 방 멤버 목록 (연결 ID 순)
func (r *Registry) Members(roomID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(roomID)
}

func (r *Registry) membersLocked(roomID string) []Member {
	room := r.rooms[roomID]
	out := make([]Member, 0, len(room))
	for id, m := range room {
		out = append(out, Member{ConnectionID: id, DisplayName: m.displayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

// DisplayName 방에 등록된 표시 이름
func (r *Registry) DisplayName(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.memberOf[connID]
	if !ok {
		return ""
	}
	if m, ok := r.rooms[roomID][connID]; ok {
		return m.displayName
	}
	return ""
}

// Rooms 활성 방 목록 (ID 순)
func (r *Registry) Rooms() []RoomInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, RoomInfo{ID: id, Members: len(room)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len 활성 방 수
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
