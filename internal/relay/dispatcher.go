package relay

import (
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"teamsync-backend/internal/metrics"
)

// Dispatcher 인바운드 프레임을 디코딩해 종류별로 라우팅
type Dispatcher struct {
	rooms     *Registry
	presence  *Presence
	signaling *Signaling
	log       zerolog.Logger
}

// NewDispatcher Dispatcher 생성
func NewDispatcher(rooms *Registry, presence *Presence, signaling *Signaling, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{rooms: rooms, presence: presence, signaling: signaling, log: log}
}

// Dispatch 프레임 하나 처리. 알 수 없거나 깨진 프레임은 기록 후 버린다.
func (d *Dispatcher) Dispatch(c *Conn, raw []byte) {
	ev, err := Decode(raw)
	if err != nil {
		reason := metrics.DropMalformed
		if errors.Is(err, ErrUnknownKind) {
			reason = metrics.DropUnknownKind
		}
		metrics.RelayDropped.WithLabelValues(reason).Inc()
		d.log.Debug().Err(err).Str("conn_id", c.id).Msg("dropping inbound frame")
		return
	}
	metrics.RelayEvents.WithLabelValues(string(ev.Kind())).Inc()

	switch e := ev.(type) {
	case JoinRoom:
		d.join(c, e)
	case ChatMessage:
		d.chat(c, e)
	case DrawEvent:
		d.toRoom(c, func(string) Outbound { return newDrawBroadcast(e, c.id) })
	case ClearBoard:
		d.toRoom(c, func(string) Outbound { return newClearBroadcast(c.id) })
	case Signal:
		d.signaling.Relay(e.Type, e.Payload, c.id, e.To)
	}
}

func (d *Dispatcher) join(c *Conn, e JoinRoom) {
	name := e.DisplayName
	if name == "" {
		name = c.identity.Name
	}

	members, previous := d.rooms.Join(c, e.RoomID, name)
	if len(members) == 0 {
		// 종료 중인 연결
		return
	}
	if previous != "" {
		d.presence.Moved(c.id, previous)
	}

	d.presence.Joined(c.id, e.RoomID, name)
}

func (d *Dispatcher) chat(c *Conn, e ChatMessage) {
	if strings.TrimSpace(e.Message) == "" {
		metrics.RelayDropped.WithLabelValues(metrics.DropEmpty).Inc()
		return
	}

	sender := e.Sender
	if sender == "" {
		sender = d.rooms.DisplayName(c.id)
	}
	if sender == "" {
		sender = c.identity.Name
	}

	_, ok := d.rooms.BroadcastFrom(c.id, false, func(roomID string) Outbound {
		return newChatBroadcast(roomID, sender, e.Message, c.id)
	})
	if !ok {
		metrics.RelayDropped.WithLabelValues(metrics.DropNoRoom).Inc()
	}
}

// toRoom 화이트보드 이벤트는 송신자 포함 방 전체로 보낸다
func (d *Dispatcher) toRoom(c *Conn, build func(roomID string) Outbound) {
	if _, ok := d.rooms.BroadcastFrom(c.id, true, build); !ok {
		metrics.RelayDropped.WithLabelValues(metrics.DropNoRoom).Inc()
	}
}
