package handler

import (
	"github.com/gofiber/fiber/v2"

	"teamsync-backend/internal/relay"
)

// RoomHandler 릴레이 방 스냅샷 조회
type RoomHandler struct {
	relay *relay.Relay
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(r *relay.Relay) *RoomHandler {
	return &RoomHandler{relay: r}
}

// ListRooms 활성 방과 멤버 수
func (h *RoomHandler) ListRooms(c *fiber.Ctx) error {
	rooms := h.relay.Rooms()
	return c.JSON(fiber.Map{
		"rooms":       rooms,
		"total":       len(rooms),
		"connections": h.relay.ConnectionCount(),
	})
}

// GetMembers 방 하나의 현재 멤버. 없는 방은 빈 목록.
func (h *RoomHandler) GetMembers(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	members := h.relay.Members(roomID)
	return c.JSON(fiber.Map{
		"roomId":  roomID,
		"members": members,
	})
}
