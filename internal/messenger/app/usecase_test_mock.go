package app

import (
	"context"
	"encoding/json"

	"messenger_sync/internal/messenger/domain"

	"github.com/stretchr/testify/mock"
)

// MockMessengerRepository Mock MessengerRepository
type MockMessengerRepository struct {
	mock.Mock
}

// ListRooms mock list rooms
func (m *MockMessengerRepository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]domain.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

// FetchHistory mock fetch history page
func (m *MockMessengerRepository) FetchHistory(ctx context.Context, roomID string, limit int, fromToken string) (domain.HistoryPage, error) {
	args := m.Called(ctx, roomID, limit, fromToken)
	return args.Get(0).(domain.HistoryPage), args.Error(1)
}

// SendMessage mock send
func (m *MockMessengerRepository) SendMessage(ctx context.Context, roomID, body string) (domain.Message, error) {
	args := m.Called(ctx, roomID, body)
	return args.Get(0).(domain.Message), args.Error(1)
}

// CreateRoom mock create room
func (m *MockMessengerRepository) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.Room), args.Error(1)
}

// JoinRoom mock join
func (m *MockMessengerRepository) JoinRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

// PollEvents mock poll
func (m *MockMessengerRepository) PollEvents(ctx context.Context) ([]json.RawMessage, error) {
	args := m.Called(ctx)
	if args.Get(0) != nil {
		return args.Get(0).([]json.RawMessage), args.Error(1)
	}
	return nil, args.Error(1)
}
