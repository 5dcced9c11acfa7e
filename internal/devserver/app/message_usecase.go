package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"messenger_sync/internal/devserver/domain"
	"messenger_sync/internal/devserver/repository"
	msgdomain "messenger_sync/internal/messenger/domain"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// MessageUseCase send and history
type MessageUseCase struct {
	rooms    repository.RoomRepository
	msgs     repository.MessageRepository
	broker   repository.Broker
	maxLimit int
	now      func() time.Time
}

// NewMessageUseCase create MessageUseCase
func NewMessageUseCase(rooms repository.RoomRepository, msgs repository.MessageRepository, broker repository.Broker, maxLimit int) *MessageUseCase {
	if maxLimit <= 0 {
		maxLimit = 200
	}
	return &MessageUseCase{rooms: rooms, msgs: msgs, broker: broker, maxLimit: maxLimit, now: time.Now}
}

func (uc *MessageUseCase) joinedRoom(ctx context.Context, userID, roomID string) (*domain.Room, error) {
	room, err := uc.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Members[userID] != msgdomain.MembershipJoined {
		return nil, domain.ErrNotMember
	}
	return room, nil
}

// Send store the message and push a new_message frame to every joined member, sender included
func (uc *MessageUseCase) Send(ctx context.Context, userID string, req domain.SendRequest) (msgdomain.Message, error) {
	req.Body = strings.TrimSpace(req.Body)
	if err := validate.Struct(req); err != nil {
		return msgdomain.Message{}, fmt.Errorf("%w: %v", errprocess.ErrInvalidRequest, err)
	}
	room, err := uc.joinedRoom(ctx, userID, req.RoomID)
	if err != nil {
		return msgdomain.Message{}, err
	}

	msg := msgdomain.Message{
		EventID:           "$" + uuid.New().String(),
		RoomID:            room.ID,
		Sender:            userID,
		SenderDisplayName: userID,
		Body:              req.Body,
		MsgType:           lo.Ternary(req.MsgType == "", msgdomain.MsgTypeText, req.MsgType),
		Timestamp:         uc.now().UTC(),
	}
	if err := uc.msgs.Append(ctx, msg); err != nil {
		return msgdomain.Message{}, err
	}
	uc.msgs.MarkRead(ctx, room.ID, userID)

	// push frame 不帶 timestamp, client 以收到時間為準
	pushed := msg
	pushed.Timestamp = time.Time{}
	frame, err := msgdomain.MessageFrame(pushed)
	if err != nil {
		return msgdomain.Message{}, err
	}
	for _, member := range room.Joined() {
		if err := uc.broker.Publish(ctx, member, frame); err != nil {
			logger.Log.Error("publish failed", zap.String("user_id", member), zap.Error(err))
		}
	}
	logger.Log.Debug("message sent", zap.String("room_id", room.ID), zap.String("event_id", msg.EventID))
	return msg, nil
}

// History one page newest first, marks the room read for userID
func (uc *MessageUseCase) History(ctx context.Context, userID, roomID string, limit int, fromToken string) (domain.HistoryOut, error) {
	if limit < 1 || limit > uc.maxLimit {
		return domain.HistoryOut{}, fmt.Errorf("%w: limit must be within 1..%d", errprocess.ErrInvalidRequest, uc.maxLimit)
	}
	if _, err := uc.joinedRoom(ctx, userID, roomID); err != nil {
		return domain.HistoryOut{}, err
	}

	msgs, endToken, hasMore, err := uc.msgs.Page(ctx, roomID, limit, fromToken)
	if err != nil {
		if errors.Is(err, repository.ErrBadToken) {
			return domain.HistoryOut{}, fmt.Errorf("%w: %v", errprocess.ErrInvalidRequest, err)
		}
		return domain.HistoryOut{}, err
	}
	if fromToken == "" {
		uc.msgs.MarkRead(ctx, roomID, userID)
	}

	return domain.HistoryOut{
		Messages: lo.Map(msgs, func(m msgdomain.Message, _ int) msgdomain.WireMessage { return msgdomain.NewWireMessage(m) }),
		EndToken: lo.EmptyableToPtr(endToken),
		HasMore:  hasMore,
	}, nil
}
