package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"messenger_sync/internal/devserver/domain"
	"messenger_sync/internal/devserver/repository"
	msgdomain "messenger_sync/internal/messenger/domain"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var validate = validator.New()

// RoomUseCase room listing, creation and membership
type RoomUseCase struct {
	rooms repository.RoomRepository
	msgs  repository.MessageRepository
	now   func() time.Time
}

// NewRoomUseCase create RoomUseCase and seed the general room
func NewRoomUseCase(rooms repository.RoomRepository, msgs repository.MessageRepository) *RoomUseCase {
	uc := &RoomUseCase{rooms: rooms, msgs: msgs, now: time.Now}
	_ = rooms.Create(context.Background(), &domain.Room{
		ID:        domain.GeneralRoomID,
		Name:      "General",
		Topic:     "Company-wide chat",
		RoomType:  msgdomain.RoomTypeGeneral,
		CreatedBy: "system",
		CreatedAt: uc.now().UTC(),
		Members:   map[string]msgdomain.Membership{},
	})
	return uc
}

// ListRooms rooms of userID, joining the general room on first contact
func (uc *RoomUseCase) ListRooms(ctx context.Context, userID string) ([]domain.RoomOut, error) {
	general, err := uc.rooms.FindByID(ctx, domain.GeneralRoomID)
	if err == nil {
		if _, ok := general.Members[userID]; !ok {
			if err := uc.rooms.SetMembership(ctx, domain.GeneralRoomID, userID, msgdomain.MembershipJoined); err != nil {
				return nil, err
			}
			logger.Log.Info("auto joined general room", zap.String("user_id", userID))
		}
	}

	rooms, err := uc.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(rooms, func(r *domain.Room, _ int) domain.RoomOut { return uc.toOut(ctx, r, userID) }), nil
}

// CreateRoom create a custom room owned by userID
func (uc *RoomUseCase) CreateRoom(ctx context.Context, userID string, req msgdomain.CreateRoomRequest) (domain.RoomOut, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return domain.RoomOut{}, fmt.Errorf("%w: %v", errprocess.ErrInvalidRequest, err)
	}

	room := &domain.Room{
		ID:        fmt.Sprintf("!%s:dev", uuid.New().String()),
		Name:      req.Name,
		Topic:     req.Topic,
		RoomType:  msgdomain.RoomTypeCustom,
		CreatedBy: userID,
		CreatedAt: uc.now().UTC(),
		Members:   map[string]msgdomain.Membership{userID: msgdomain.MembershipJoined},
	}
	for _, invitee := range lo.Uniq(req.InviteUsers) {
		if invitee != userID {
			room.Members[invitee] = msgdomain.MembershipInvited
		}
	}
	if err := uc.rooms.Create(ctx, room); err != nil {
		return domain.RoomOut{}, err
	}
	logger.Log.Info("room created", zap.String("room_id", room.ID), zap.String("user_id", userID))
	return uc.toOut(ctx, room, userID), nil
}

// JoinRoom join an existing room
func (uc *RoomUseCase) JoinRoom(ctx context.Context, userID, roomID string) error {
	if _, err := uc.rooms.FindByID(ctx, roomID); err != nil {
		return err
	}
	return uc.rooms.SetMembership(ctx, roomID, userID, msgdomain.MembershipJoined)
}

func (uc *RoomUseCase) toOut(ctx context.Context, r *domain.Room, userID string) domain.RoomOut {
	out := domain.RoomOut{
		MatrixRoomID: r.ID,
		DisplayName:  lo.EmptyableToPtr(r.Name),
		RoomType:     string(r.RoomType),
		Topic:        lo.EmptyableToPtr(r.Topic),
		UnreadCount:  uc.msgs.Unread(ctx, r.ID, userID),
		Membership:   string(r.Members[userID]),
	}
	if last, ok := uc.msgs.Last(ctx, r.ID); ok {
		out.LastMessage = lo.ToPtr(last.Body)
		out.LastMessageTS = lo.ToPtr(last.Timestamp)
	}
	return out
}
