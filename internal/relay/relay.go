package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"teamsync-backend/internal/metrics"
)

// ErrDraining 종료 중에는 새 연결을 받지 않는다
var ErrDraining = errors.New("relay: draining, not accepting connections")

// Options Relay 설정
type Options struct {
	SendBuffer int
	PingPeriod time.Duration
	Observer   PresenceObserver
	Logger     zerolog.Logger
}

// Relay 연결 수명주기와 방, 시그널링, 입퇴장 알림을 묶는 서비스
type Relay struct {
	conns      *ConnTable
	rooms      *Registry
	presence   *Presence
	signaling  *Signaling
	dispatcher *Dispatcher
	opts       Options
	log        zerolog.Logger

	mu       sync.Mutex
	draining bool
	pumps    sync.WaitGroup
}

// New Relay 생성
func New(opts Options) *Relay {
	log := opts.Logger.With().Str("component", "relay").Logger()
	conns := NewConnTable()
	rooms := NewRegistry()
	presence := NewPresence(rooms, conns, opts.Observer, log)
	signaling := NewSignaling(conns, log)

	return &Relay{
		conns:      conns,
		rooms:      rooms,
		presence:   presence,
		signaling:  signaling,
		dispatcher: NewDispatcher(rooms, presence, signaling, log),
		opts:       opts,
		log:        log,
	}
}

// Accept 새 연결을 만들어 연결 테이블에 등록하고 writer 를 시작한다
func (r *Relay) Accept(t Transport, identity Identity) (*Conn, error) {
	c := newConn(uuid.NewString(), identity, t, r.opts.SendBuffer, r.opts.PingPeriod, r.log)

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return nil, ErrDraining
	}
	r.conns.Add(c)
	r.pumps.Add(1)
	metrics.RelayConnections.Inc()
	r.mu.Unlock()

	go func() {
		defer r.pumps.Done()
		c.writePump()
	}()

	c.Send(newWelcome(c.id, identity.UserID))
	r.log.Info().Str("conn_id", c.id).Str("user_id", identity.UserID).Msg("connection accepted")
	return c, nil
}

// Handle 연결에서 읽은 텍스트 프레임 하나 처리
func (r *Relay) Handle(c *Conn, raw []byte) {
	r.dispatcher.Dispatch(c, raw)
}

// Close 연결 종료. 방과 연결 테이블에서 제거한 뒤 user-left 를 한 번만 보낸다.
// 몇 번을 호출해도 안전하다.
func (r *Relay) Close(c *Conn) {
	c.closeOnce.Do(func() {
		// 큐를 먼저 닫아야 동시에 들어온 join 이 멤버십을 남기지 않는다
		c.shutdown()
		roomID, _ := r.rooms.Leave(c.id)
		r.conns.Remove(c.id)
		metrics.RelayConnections.Dec()

		r.presence.Left(c.id, roomID)
		r.log.Info().Str("conn_id", c.id).Str("room_id", roomID).Msg("connection closed")
	})
}

// BroadcastAll 모든 연결에 이벤트 전송 (REST 채팅 알림)
func (r *Relay) BroadcastAll(ev Outbound) int {
	return r.conns.Broadcast(ev)
}

// Rooms 활성 방 스냅샷
func (r *Relay) Rooms() []RoomInfo {
	return r.rooms.Rooms()
}

// Members 방 멤버 스냅샷
func (r *Relay) Members(roomID string) []Member {
	return r.rooms.Members(roomID)
}

// ConnectionCount 현재 연결 수
func (r *Relay) ConnectionCount() int {
	return r.conns.Len()
}

// RoomCount 현재 방 수
func (r *Relay) RoomCount() int {
	return r.rooms.Len()
}

// Shutdown 새 연결을 막고 남은 연결을 닫은 뒤 writer 들이 큐를 비울 때까지 기다린다
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	conns := r.conns.Snapshot()
	r.log.Info().Int("connections", len(conns)).Msg("draining relay")
	for _, c := range conns {
		r.Close(c)
	}

	done := make(chan struct{})
	go func() {
		r.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
