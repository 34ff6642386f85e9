package relay

import "github.com/rs/zerolog"

// PresenceObserver 방 입퇴장을 외부(예: Redis 미러)로 전달받는 쪽.
// RoomJoined 는 방 레지스트리 잠금 안에서 호출될 수 있으므로 블로킹하면 안 된다.
type PresenceObserver interface {
	RoomJoined(roomID, connID, displayName string)
	ConnectionLeft(roomID, connID string)
}

// Presence 입퇴장 알림.
// user-joined 는 입장한 방의 다른 멤버에게만, user-left 는 모든 연결에 보낸다.
type Presence struct {
	rooms    *Registry
	conns    *ConnTable
	observer PresenceObserver
	log      zerolog.Logger
}

// NewPresence Presence 생성. observer 는 nil 이어도 된다.
func NewPresence(rooms *Registry, conns *ConnTable, observer PresenceObserver, log zerolog.Logger) *Presence {
	return &Presence{rooms: rooms, conns: conns, observer: observer, log: log}
}

// Joined 입장 알림을 방의 나머지 멤버에게 보낸다. 그 사이 떠났거나 닫힌 연결이면 보내지 않는다.
func (p *Presence) Joined(connID, roomID, displayName string) int {
	var notify func()
	if p.observer != nil {
		// 잠금 안에서 알려야 ConnectionLeft 보다 먼저 도착한다
		notify = func() { p.observer.RoomJoined(roomID, connID, displayName) }
	}
	n, ok := p.rooms.Announce(connID, roomID, newUserJoined(connID, displayName), notify)
	if !ok {
		return 0
	}
	p.log.Debug().Str("conn_id", connID).Str("room_id", roomID).Int("notified", n).Msg("user joined")
	return n
}

// Moved 방 이동. 클라이언트에게 user-left 는 보내지 않고 미러만 갱신한다.
func (p *Presence) Moved(connID, fromRoom string) {
	if p.observer != nil {
		p.observer.ConnectionLeft(fromRoom, connID)
	}
}

// Left 연결 종료 알림을 남은 모든 연결에 보낸다. roomID 는 방에 없었으면 빈 문자열.
func (p *Presence) Left(connID, roomID string) int {
	n := p.conns.Broadcast(newUserLeft(connID))
	if p.observer != nil && roomID != "" {
		p.observer.ConnectionLeft(roomID, connID)
	}
	p.log.Debug().Str("conn_id", connID).Str("room_id", roomID).Int("notified", n).Msg("user left")
	return n
}
