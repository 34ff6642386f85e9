package handler

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"teamsync-backend/internal/auth"
	"teamsync-backend/internal/metrics"
	"teamsync-backend/internal/model"
	"teamsync-backend/internal/relay"
	"teamsync-backend/internal/store"
)

// ChatNotifier 저장된 채팅을 실시간으로 알리는 쪽 (*relay.Relay)
type ChatNotifier interface {
	BroadcastAll(ev relay.Outbound) int
}

// ChatHandler 채팅 저장/조회 핸들러
type ChatHandler struct {
	chats    *store.ChatStore
	notifier ChatNotifier
	log      zerolog.Logger
}

// NewChatHandler ChatHandler 생성
func NewChatHandler(chats *store.ChatStore, notifier ChatNotifier, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, notifier: notifier, log: log.With().Str("component", "chat").Logger()}
}

// SendMessageRequest 메시지 저장 요청
type SendMessageRequest struct {
	Message string `json:"message"`
	Project string `json:"project"`
}

// ListMessages 저장된 채팅 조회 (오래된 순)
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", store.DefaultListLimit)
	if limit < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid limit")
	}

	rows, err := h.chats.List(c.UserContext(), c.Query("project"), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list chat messages")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to get chat messages")
	}

	return c.JSON(fiber.Map{
		"messages": rows,
		"total":    len(rows),
	})
}

// SendMessage 메시지 저장 후 모든 연결에 receiveMessage 알림
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message cannot be empty")
	}
	if utf8.RuneCountInString(text) > model.MaxChatMessageLength {
		text = string([]rune(text)[:model.MaxChatMessageLength])
	}

	msg := &model.ChatMessage{
		Project: strings.TrimSpace(req.Project),
		Message: text,
	}
	if claims := auth.ClaimsFrom(c); claims != nil {
		msg.SenderID = claims.UserID
		msg.SenderName = claims.Name
	}

	if err := h.chats.Create(c.UserContext(), msg); err != nil {
		h.log.Error().Err(err).Str("project", msg.Project).Msg("save chat message")
		return fiber.NewError(fiber.StatusInternalServerError, "failed to save message")
	}
	metrics.ChatMessagesPersisted.Inc()

	// 프로젝트 채팅 화면은 릴레이 방과 별개라 모든 연결에 알리고 클라이언트가 project 로 거른다
	ev := relay.NewChatRecord(msg.ID, msg.Project, msg.SenderID, msg.SenderName, msg.Message, msg.CreatedAt)
	h.notifier.BroadcastAll(ev)

	return c.Status(fiber.StatusCreated).JSON(msg)
}
