package app

import (
	"errors"
	"net/url"

	"messenger_sync/internal/devserver/domain"
	msgdomain "messenger_sync/internal/messenger/domain"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"
	"messenger_sync/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler REST endpoints for rooms and messages
type Handler struct {
	roomUC    *RoomUseCase
	messageUC *MessageUseCase
}

// NewHandler create Handler
func NewHandler(roomUC *RoomUseCase, messageUC *MessageUseCase) *Handler {
	return &Handler{roomUC: roomUC, messageUC: messageUC}
}

// errorResponse map use case errors to status codes
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errprocess.ErrInvalidRequest):
		status = fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRoomNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, domain.ErrNotMember):
		status = fiber.StatusForbidden
	default:
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"detail": err.Error()})
}

func roomParam(c *fiber.Ctx) string {
	raw := c.Params("roomId")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

// ListRooms GET /rooms
func (h *Handler) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.roomUC.ListRooms(c.UserContext(), middlewares.UserID(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(domain.RoomList{Rooms: rooms})
}

// CreateRoom POST /rooms
func (h *Handler) CreateRoom(c *fiber.Ctx) error {
	var req msgdomain.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, errprocess.ErrInvalidRequest)
	}
	room, err := h.roomUC.CreateRoom(c.UserContext(), middlewares.UserID(c), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// JoinRoom POST /rooms/:roomId/join
func (h *Handler) JoinRoom(c *fiber.Ctx) error {
	roomID := roomParam(c)
	if err := h.roomUC.JoinRoom(c.UserContext(), middlewares.UserID(c), roomID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"status": "joined", "room_id": roomID})
}

// Send POST /messages/send
func (h *Handler) Send(c *fiber.Ctx) error {
	var req domain.SendRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, errprocess.ErrInvalidRequest)
	}
	msg, err := h.messageUC.Send(c.UserContext(), middlewares.UserID(c), req)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(msgdomain.NewWireMessage(msg))
}

// History GET /messages/history/:roomId?limit=&from_token=
func (h *Handler) History(c *fiber.Ctx) error {
	out, err := h.messageUC.History(c.UserContext(), middlewares.UserID(c), roomParam(c),
		c.QueryInt("limit", 50), c.Query("from_token"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(out)
}
