package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"teamsync-backend/internal/config"
	"teamsync-backend/internal/metrics"
)

// UpdatesChannel 입퇴장 이벤트가 발행되는 채널
const UpdatesChannel = "presence_updates"

const (
	queueSize = 1024
	opTimeout = 2 * time.Second
)

// EventType 미러 이벤트 종류
type EventType string

const (
	EventJoined EventType = "joined"
	EventLeft   EventType = "left"
)

// Update presence_updates 로 발행되는 메시지
type Update struct {
	Event        EventType `json:"event"`
	RoomID       string    `json:"roomId"`
	ConnectionID string    `json:"connectionId"`
	DisplayName  string    `json:"displayName,omitempty"`
	ServerID     string    `json:"serverId,omitempty"`
	At           int64     `json:"at"`
}

// Manager 릴레이의 방 멤버십을 Redis 에 비추는 미러.
// 릴레이 경로를 막지 않도록 호출은 큐에 넣고 워커 하나가 순서대로 반영한다.
type Manager struct {
	client   *redis.Client
	ttl      time.Duration
	serverID string
	log      zerolog.Logger

	updates   chan Update
	refresh   time.Duration
	live      map[string]map[string]struct{} // 워커 전용: 방 → 연결
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager Redis 에 연결하고 워커를 시작한다
func NewManager(cfg config.RedisConfig, serverID string, log zerolog.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	m := newManager(client, cfg.PresenceTTL, serverID, queueSize, log)
	go m.run()

	m.log.Info().Str("addr", cfg.Addr).Msg("presence mirror connected")
	return m, nil
}

func newManager(client *redis.Client, ttl time.Duration, serverID string, size int, log zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	refresh := ttl / 2
	if refresh <= 0 {
		refresh = ttl
	}
	return &Manager{
		client:   client,
		ttl:      ttl,
		serverID: serverID,
		log:      log.With().Str("component", "presence").Logger(),
		updates:  make(chan Update, size),
		refresh:  refresh,
		live:     make(map[string]map[string]struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// roomKey Key 생성 유틸
func roomKey(roomID string) string {
	return "presence:room:" + roomID
}

// RoomJoined relay.PresenceObserver 구현
func (m *Manager) RoomJoined(roomID, connID, displayName string) {
	m.enqueue(Update{Event: EventJoined, RoomID: roomID, ConnectionID: connID, DisplayName: displayName})
}

// ConnectionLeft relay.PresenceObserver 구현
func (m *Manager) ConnectionLeft(roomID, connID string) {
	m.enqueue(Update{Event: EventLeft, RoomID: roomID, ConnectionID: connID})
}

func (m *Manager) enqueue(u Update) bool {
	u.ServerID = m.serverID
	u.At = time.Now().Unix()

	select {
	case <-m.quit:
		return false
	default:
	}

	select {
	case m.updates <- u:
		return true
	default:
		metrics.RelayDropped.WithLabelValues(metrics.DropPresenceQueue).Inc()
		m.log.Warn().Str("room_id", u.RoomID).Str("event", string(u.Event)).Msg("presence queue full, dropping update")
		return false
	}
}

func (m *Manager) run() {
	defer close(m.done)

	// 입장 이후 변화가 없는 방도 TTL 전에 갱신한다
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		select {
		case u := <-m.updates:
			m.applyLogged(u)
		case <-ticker.C:
			m.heartbeatLogged()
		case <-m.quit:
			// 남은 업데이트를 반영하고 종료
			for {
				select {
				case u := <-m.updates:
					m.applyLogged(u)
				default:
					return
				}
			}
		}
	}
}

// track 워커가 아는 방 멤버십 갱신
func (m *Manager) track(u Update) {
	switch u.Event {
	case EventJoined:
		conns, ok := m.live[u.RoomID]
		if !ok {
			conns = make(map[string]struct{})
			m.live[u.RoomID] = conns
		}
		conns[u.ConnectionID] = struct{}{}
	case EventLeft:
		conns := m.live[u.RoomID]
		delete(conns, u.ConnectionID)
		if len(conns) == 0 {
			delete(m.live, u.RoomID)
		}
	}
}

// liveRooms 멤버가 남아 있는 방 (정렬)
func (m *Manager) liveRooms() []string {
	rooms := make([]string, 0, len(m.live))
	for id := range m.live {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return rooms
}

func (m *Manager) heartbeatLogged() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := m.heartbeat(ctx); err != nil {
		m.log.Warn().Err(err).Int("rooms", len(m.live)).Msg("presence heartbeat failed")
	}
}

// heartbeat 살아 있는 방 키의 TTL 연장
func (m *Manager) heartbeat(ctx context.Context) error {
	rooms := m.liveRooms()
	if len(rooms) == 0 {
		return nil
	}
	_, err := m.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range rooms {
			pipe.Expire(ctx, roomKey(id), m.ttl)
		}
		return nil
	})
	return err
}

func (m *Manager) applyLogged(u Update) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	m.track(u)
	if err := m.apply(ctx, u); err != nil {
		m.log.Warn().Err(err).Str("room_id", u.RoomID).Str("event", string(u.Event)).Msg("presence update failed")
	}
}

// apply 해시 갱신과 이벤트 발행을 한 트랜잭션으로 보낸다
func (m *Manager) apply(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}

	key := roomKey(u.RoomID)
	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch u.Event {
		case EventJoined:
			pipe.HSet(ctx, key, u.ConnectionID, u.DisplayName)
			pipe.Expire(ctx, key, m.ttl)
		case EventLeft:
			pipe.HDel(ctx, key, u.ConnectionID)
		}
		pipe.Publish(ctx, UpdatesChannel, payload)
		return nil
	})
	return err
}

// Health Redis 연결 확인
func (m *Manager) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close 워커가 큐를 비우길 기다린 뒤 연결을 닫는다
func (m *Manager) Close(ctx context.Context) error {
	var err error
	m.closeOnce.Do(func() {
		close(m.quit)
		select {
		case <-m.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if cerr := m.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
