package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind frame "type" value
type EventKind string

const (
	// KindKeepalive liveness frame, never forwarded
	KindKeepalive EventKind = "keepalive"
	// KindConnected stream acknowledgement, never forwarded
	KindConnected EventKind = "connected"
	// KindNewMessage message delivery
	KindNewMessage EventKind = "new_message"
	// KindNotification out-of-band notification routed by the server
	KindNotification EventKind = "notification"
)

// ErrMalformedEvent frame cannot be decoded
var ErrMalformedEvent = errors.New("malformed event")

// Event closed set of channel events, see the types below
type Event interface {
	Kind() EventKind
	isEvent()
}

// KeepaliveEvent transport heartbeat
type KeepaliveEvent struct{}

// ConnectedEvent stream acknowledgement
type ConnectedEvent struct{}

// MessageEvent a message delivered for some room
type MessageEvent struct {
	Message Message
}

// NotificationEvent server notification
type NotificationEvent struct {
	SourceApp string `json:"source_app"`
	EventType string `json:"event_type"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Priority  string `json:"priority"`
	RoomID    string `json:"room_id"`
}

// UnrecognizedEvent any other type, forwarded as is
type UnrecognizedEvent struct {
	Type string
	Raw  json.RawMessage
}

func (KeepaliveEvent) Kind() EventKind    { return KindKeepalive }
func (ConnectedEvent) Kind() EventKind    { return KindConnected }
func (MessageEvent) Kind() EventKind      { return KindNewMessage }
func (NotificationEvent) Kind() EventKind { return KindNotification }
func (e UnrecognizedEvent) Kind() EventKind {
	return EventKind(e.Type)
}

func (KeepaliveEvent) isEvent()    {}
func (ConnectedEvent) isEvent()    {}
func (MessageEvent) isEvent()      {}
func (NotificationEvent) isEvent() {}
func (UnrecognizedEvent) isEvent() {}

// IsControl keepalive and connected frames are consumed by the transport layer
func IsControl(e Event) bool {
	switch e.(type) {
	case KeepaliveEvent, ConnectedEvent:
		return true
	}
	return false
}

// ParseEvent decode one {"type": ...} frame
func ParseEvent(data []byte) (Event, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}

	switch EventKind(head.Type) {
	case KindKeepalive:
		return KeepaliveEvent{}, nil
	case KindConnected:
		return ConnectedEvent{}, nil
	case KindNewMessage:
		var w WireMessage
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if w.EventID == "" || w.RoomID == "" {
			return nil, fmt.Errorf("%w: new_message without event_id or room_id", ErrMalformedEvent)
		}
		return MessageEvent{Message: w.ToMessage()}, nil
	case KindNotification:
		var n NotificationEvent
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return n, nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return UnrecognizedEvent{Type: head.Type, Raw: raw}, nil
	}
}

// MessageFrame encode a new_message frame
func MessageFrame(m Message) ([]byte, error) {
	return json.Marshal(struct {
		Type EventKind `json:"type"`
		WireMessage
	}{Type: KindNewMessage, WireMessage: NewWireMessage(m)})
}
