package domain

import "time"

// Membership the local user's membership in a room
type Membership string

const (
	// MembershipJoined joined, messages are delivered
	MembershipJoined Membership = "join"
	// MembershipInvited invited but not joined yet
	MembershipInvited Membership = "invite"
	// MembershipUnknown room observed through an event before the listing knew it
	MembershipUnknown Membership = "unknown"
)

// RoomType room type reported by the server
type RoomType string

const (
	// RoomTypeGeneral general room
	RoomTypeGeneral RoomType = "general"
	// RoomTypeDM direct message room
	RoomTypeDM RoomType = "dm"
	// RoomTypeCustom user created room
	RoomTypeCustom RoomType = "custom"
)

// Room client side room metadata
type Room struct {
	ID            string
	DisplayName   string
	RoomType      RoomType
	Topic         string
	LastMessage   string
	LastMessageTS time.Time
	UnreadCount   int
	Membership    Membership
}

// CreateRoomRequest POST rooms body
type CreateRoomRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Topic       string   `json:"topic,omitempty" validate:"max=1024"`
	InviteUsers []string `json:"invite_users,omitempty" validate:"dive,required"`
}
