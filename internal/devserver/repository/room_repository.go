package repository

import (
	"context"
	"sort"
	"sync"

	"messenger_sync/internal/devserver/domain"
	msgdomain "messenger_sync/internal/messenger/domain"
)

// RoomRepository room storage
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	FindByID(ctx context.Context, roomID string) (*domain.Room, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Room, error)
	SetMembership(ctx context.Context, roomID, userID string, m msgdomain.Membership) error
}

type memoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

// NewMemoryRoomRepository create RoomRepository kept in memory
func NewMemoryRoomRepository() RoomRepository {
	return &memoryRoomRepository{rooms: map[string]*domain.Room{}}
}

func (r *memoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return nil
	}
	r.rooms[room.ID] = cloneRoom(room)
	return nil
}

func (r *memoryRoomRepository) FindByID(ctx context.Context, roomID string) (*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (r *memoryRoomRepository) ListForUser(ctx context.Context, userID string) ([]*domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*domain.Room{}
	for _, room := range r.rooms {
		if _, ok := room.Members[userID]; ok {
			out = append(out, cloneRoom(room))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memoryRoomRepository) SetMembership(ctx context.Context, roomID, userID string, m msgdomain.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Members[userID] = m
	return nil
}

func cloneRoom(room *domain.Room) *domain.Room {
	c := *room
	c.Members = make(map[string]msgdomain.Membership, len(room.Members))
	for k, v := range room.Members {
		c.Members[k] = v
	}
	return &c
}
