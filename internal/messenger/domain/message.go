package domain

import "time"

// MsgTypeText plain text message
const MsgTypeText = "m.text"

// Attachment optional file reference carried by a message
type Attachment struct {
	URL      string
	Filename string
	Size     int64
}

// Message an immutable chat event, EventID is the dedup key
type Message struct {
	EventID           string
	RoomID            string
	Sender            string
	SenderDisplayName string
	Body              string
	MsgType           string
	Timestamp         time.Time
	Attachment        *Attachment
}

// WireMessage message JSON shared by history, send and new_message frames
type WireMessage struct {
	EventID           string     `json:"event_id"`
	RoomID            string     `json:"room_id"`
	Sender            string     `json:"sender"`
	SenderDisplayName *string    `json:"sender_display_name,omitempty"`
	Body              string     `json:"body"`
	MsgType           string     `json:"msg_type,omitempty"`
	Timestamp         *time.Time `json:"timestamp,omitempty"`
	FileURL           *string    `json:"file_url,omitempty"`
	Filename          *string    `json:"filename,omitempty"`
	FileSize          *int64     `json:"file_size,omitempty"`
}

// ToMessage convert, a missing timestamp stays zero
func (w WireMessage) ToMessage() Message {
	m := Message{
		EventID: w.EventID,
		RoomID:  w.RoomID,
		Sender:  w.Sender,
		Body:    w.Body,
		MsgType: w.MsgType,
	}
	if m.MsgType == "" {
		m.MsgType = MsgTypeText
	}
	if w.SenderDisplayName != nil {
		m.SenderDisplayName = *w.SenderDisplayName
	}
	if w.Timestamp != nil {
		m.Timestamp = w.Timestamp.UTC()
	}
	if w.FileURL != nil && *w.FileURL != "" {
		att := &Attachment{URL: *w.FileURL}
		if w.Filename != nil {
			att.Filename = *w.Filename
		}
		if w.FileSize != nil {
			att.Size = *w.FileSize
		}
		m.Attachment = att
	}
	return m
}

// NewWireMessage convert back, used by the dev server
func NewWireMessage(m Message) WireMessage {
	w := WireMessage{
		EventID: m.EventID,
		RoomID:  m.RoomID,
		Sender:  m.Sender,
		Body:    m.Body,
		MsgType: m.MsgType,
	}
	if m.SenderDisplayName != "" {
		name := m.SenderDisplayName
		w.SenderDisplayName = &name
	}
	if !m.Timestamp.IsZero() {
		ts := m.Timestamp
		w.Timestamp = &ts
	}
	if m.Attachment != nil {
		att := *m.Attachment
		w.FileURL, w.Filename, w.FileSize = &att.URL, &att.Filename, &att.Size
	}
	return w
}
