package relay

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"teamsync-backend/internal/metrics"
)

const (
	// DefaultSendBuffer 연결당 송신 큐 크기
	DefaultSendBuffer = 256

	// DefaultPingPeriod 기본 ping 주기 (pong 대기 60초의 9/10)
	DefaultPingPeriod = 54 * time.Second
)

// Transport 연결 하나의 쓰기 측. writer 고루틴만 호출한다.
type Transport interface {
	WriteText(data []byte) error
	Ping() error
	Close() error
}

// Identity 수락 시점에 확인된 사용자 정보. 익명 연결은 비어 있다.
type Identity struct {
	UserID string
	Name   string
}

// Conn 릴레이 연결 하나
type Conn struct {
	id         string
	identity   Identity
	transport  Transport
	pingPeriod time.Duration
	log        zerolog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id string, identity Identity, t Transport, buffer int, pingPeriod time.Duration, log zerolog.Logger) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if pingPeriod <= 0 {
		pingPeriod = DefaultPingPeriod
	}
	return &Conn{
		id:         id,
		identity:   identity,
		transport:  t,
		pingPeriod: pingPeriod,
		log:        log.With().Str("conn_id", id).Logger(),
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
	}
}

// ID 연결 식별자
func (c *Conn) ID() string { return c.id }

// Identity 인증된 사용자 정보
func (c *Conn) Identity() Identity { return c.identity }

// Done writer 고루틴이 종료되고 Transport 가 닫히면 닫힌다
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send 이벤트를 인코딩해 송신 큐에 넣는다. 닫혔거나 큐가 가득 차면 버리고 false.
func (c *Conn) Send(ev Outbound) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("kind", string(ev.EventKind())).Msg("encode outbound event")
		return false
	}
	return c.enqueue(data)
}

func (c *Conn) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		metrics.RelayDropped.WithLabelValues(metrics.DropClosed).Inc()
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		metrics.RelayDropped.WithLabelValues(metrics.DropQueueFull).Inc()
		c.log.Warn().Msg("send queue full, dropping frame")
		return false
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown 송신 큐를 닫는다. 이미 큐에 있는 프레임은 writer 가 마저 보낸다.
func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump 송신 큐를 Transport 로 흘려보내고 주기적으로 ping
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.transport.Close(); err != nil {
			c.log.Debug().Err(err).Msg("transport close")
		}
		close(c.done)
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.transport.WriteText(data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.transport.Ping(); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// ConnTable 연결 ID → 연결
type ConnTable struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewConnTable ConnTable 생성
func NewConnTable() *ConnTable {
	return &ConnTable{conns: make(map[string]*Conn)}
}

// Add 연결 등록
func (t *ConnTable) Add(c *Conn) {
	t.mu.Lock()
	t.conns[c.id] = c
	t.mu.Unlock()
}

// Remove 연결 제거. 없던 연결이면 false.
func (t *ConnTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.conns[id]; !ok {
		return false
	}
	delete(t.conns, id)
	return true
}

// Get 연결 조회
func (t *ConnTable) Get(id string) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

// Len 연결 수
func (t *ConnTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Snapshot ID 순으로 정렬된 연결 목록
func (t *ConnTable) Snapshot() []*Conn {
	t.mu.RLock()
	out := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Broadcast 모든 연결에 전송하고 큐에 들어간 수를 반환
func (t *ConnTable) Broadcast(ev Outbound) int {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	delivered := 0
	for _, c := range t.conns {
		if c.enqueue(data) {
			delivered++
		}
	}
	return delivered
}
