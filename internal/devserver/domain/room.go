package domain

import (
	"errors"
	"time"

	msgdomain "messenger_sync/internal/messenger/domain"
)

var (
	// ErrRoomNotFound room does not exist
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotMember user is not a joined member of the room
	ErrNotMember = errors.New("not a room member")
)

// GeneralRoomID room every user joins on first contact
const GeneralRoomID = "!general:dev"

// Room server side room with its members
type Room struct {
	ID        string
	Name      string
	Topic     string
	RoomType  msgdomain.RoomType
	CreatedBy string
	CreatedAt time.Time
	Members   map[string]msgdomain.Membership
}

// Joined members with membership join
func (r *Room) Joined() []string {
	out := make([]string, 0, len(r.Members))
	for id, m := range r.Members {
		if m == msgdomain.MembershipJoined {
			out = append(out, id)
		}
	}
	return out
}

// RoomOut GET rooms item
type RoomOut struct {
	MatrixRoomID  string     `json:"matrix_room_id"`
	DisplayName   *string    `json:"display_name"`
	RoomType      string     `json:"room_type"`
	Topic         *string    `json:"topic"`
	UnreadCount   int        `json:"unread_count"`
	LastMessage   *string    `json:"last_message"`
	LastMessageTS *time.Time `json:"last_message_ts"`
	Membership    string     `json:"membership"`
}

// RoomList GET rooms body
type RoomList struct {
	Rooms []RoomOut `json:"rooms"`
}
