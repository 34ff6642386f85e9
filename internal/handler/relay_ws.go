package handler

import (
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"teamsync-backend/internal/auth"
	"teamsync-backend/internal/config"
	"teamsync-backend/internal/metrics"
	"teamsync-backend/internal/relay"
)

const localIdentity = "identity"

// RelayWSHandler 협업 릴레이 WebSocket 핸들러
type RelayWSHandler struct {
	relay          *relay.Relay
	jwtManager     *auth.JWTManager
	cfg            config.WebSocketConfig
	allowAnonymous bool
	log            zerolog.Logger
}

// NewRelayWSHandler RelayWSHandler 생성
func NewRelayWSHandler(r *relay.Relay, jwtManager *auth.JWTManager, cfg config.WebSocketConfig, allowAnonymous bool, log zerolog.Logger) *RelayWSHandler {
	return &RelayWSHandler{
		relay:          r,
		jwtManager:     jwtManager,
		cfg:            cfg,
		allowAnonymous: allowAnonymous,
		log:            log.With().Str("component", "relay_ws").Logger(),
	}
}

// Upgrade 업그레이드 요청 확인과 신원 확인. 신원은 수락 시 한 번만 본다.
func (h *RelayWSHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	var identity relay.Identity
	if token := auth.TokenFromRequest(c); token != "" {
		claims, err := h.jwtManager.ValidateAccessToken(token)
		if err != nil {
			// WebSocket 은 JSON 응답 대신 연결 거부
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		identity = relay.Identity{UserID: claims.UserID, Name: claims.Name}
	} else if !h.allowAnonymous {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Locals(localIdentity, identity)
	return c.Next()
}

// Handler websocket.New 로 감싼 연결 핸들러
func (h *RelayWSHandler) Handler() fiber.Handler {
	return websocket.New(h.HandleWebSocket, websocket.Config{
		ReadBufferSize:  h.cfg.ReadBufferSize,
		WriteBufferSize: h.cfg.WriteBufferSize,
	})
}

// HandleWebSocket 연결 하나의 읽기 루프. 쓰기는 릴레이의 writer 고루틴이 맡는다.
func (h *RelayWSHandler) HandleWebSocket(c *websocket.Conn) {
	// hijack 이후라 fiber recover 가 닿지 않는다
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("relay connection handler panicked")
		}
	}()

	identity, _ := c.Locals(localIdentity).(relay.Identity)
	transport := &wsTransport{conn: c, writeTimeout: h.cfg.WriteTimeout}

	conn, err := h.relay.Accept(transport, identity)
	if err != nil {
		if errors.Is(err, relay.ErrDraining) {
			h.log.Debug().Msg("rejecting connection while draining")
		}
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteTimeout))
		_ = c.Close()
		return
	}

	// 핸들러가 반환되면 fiber 가 연결을 회수하므로 writer 종료까지 기다린다
	defer func() {
		h.relay.Close(conn)
		<-conn.Done()
	}()

	c.SetReadLimit(h.cfg.MaxMessageSize)
	_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		messageType, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.Warn().Err(err).Str("conn_id", conn.ID()).Msg("unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			metrics.RelayDropped.WithLabelValues(metrics.DropBinaryFrame).Inc()
			continue
		}
		h.relay.Handle(conn, data)
	}
}

// wsTransport relay.Transport 구현. writer 고루틴 하나만 호출한다.
type wsTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (t *wsTransport) WriteText(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping() error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.PingMessage, nil)
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.writeTimeout))
	return t.conn.Close()
}
