package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"messenger_sync/internal/messenger/domain"
	errprocess "messenger_sync/pkg/err"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const apiPrefix = "/api/v1"

// MessengerRepository the REST collaborator consumed by the client
type MessengerRepository interface {
	ListRooms(ctx context.Context) ([]domain.Room, error)
	// FetchHistory returns messages newest-first, as the server sends them
	FetchHistory(ctx context.Context, roomID string, limit int, fromToken string) (domain.HistoryPage, error)
	SendMessage(ctx context.Context, roomID, body string) (domain.Message, error)
	CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error)
	JoinRoom(ctx context.Context, roomID string) error
	// PollEvents drains queued event frames
	PollEvents(ctx context.Context) ([]json.RawMessage, error)
}

// APIError non-2xx answer
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap map well known statuses to sentinel errors
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return errprocess.ErrUnauthorized
	case http.StatusNotFound:
		return errprocess.ErrRoomNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errprocess.ErrInvalidRequest
	}
	return nil
}

type apiRepository struct {
	baseURL string
	client  *http.Client
	source  TokenSource
}

// NewAPIRepository create a MessengerRepository over HTTP.
// client should carry an AuthTransport.
func NewAPIRepository(baseURL string, client *http.Client, source TokenSource) MessengerRepository {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &apiRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		source:  source,
	}
}

// EventURL build events/<kind>?token=T, kind is stream, ws or poll.
// Push transports cannot set headers, so the credential goes in the query.
func EventURL(baseURL, kind string, source TokenSource) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + apiPrefix + "/events/" + kind)
	if err != nil {
		return "", err
	}
	if kind == "ws" {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}
	if source != nil && source.Token() != "" {
		q := u.Query()
		q.Set("token", source.Token())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type roomDTO struct {
	ID            string     `json:"matrix_room_id"`
	DisplayName   *string    `json:"display_name"`
	RoomType      string     `json:"room_type"`
	Topic         *string    `json:"topic"`
	UnreadCount   int        `json:"unread_count"`
	LastMessage   *string    `json:"last_message"`
	LastMessageTS *time.Time `json:"last_message_ts"`
	Membership    string     `json:"membership"`
}

func (d roomDTO) toRoom() domain.Room {
	r := domain.Room{
		ID:          d.ID,
		DisplayName: lo.FromPtrOr(d.DisplayName, d.ID),
		RoomType:    domain.RoomType(d.RoomType),
		Topic:       lo.FromPtr(d.Topic),
		UnreadCount: d.UnreadCount,
		LastMessage: lo.FromPtr(d.LastMessage),
		Membership:  domain.Membership(d.Membership),
	}
	if r.RoomType == "" {
		r.RoomType = domain.RoomTypeGeneral
	}
	if r.Membership == "" {
		r.Membership = domain.MembershipJoined
	}
	if d.LastMessageTS != nil {
		r.LastMessageTS = d.LastMessageTS.UTC()
	}
	return r
}

type historyDTO struct {
	Messages []domain.WireMessage `json:"messages"`
	EndToken *string              `json:"end_token"`
	HasMore  bool                 `json:"has_more"`
}

func (r *apiRepository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var out struct {
		Rooms []roomDTO `json:"rooms"`
	}
	if err := r.do(ctx, http.MethodGet, "/rooms", nil, nil, &out); err != nil {
		return nil, err
	}
	return lo.Map(out.Rooms, func(d roomDTO, _ int) domain.Room { return d.toRoom() }), nil
}

func (r *apiRepository) FetchHistory(ctx context.Context, roomID string, limit int, fromToken string) (domain.HistoryPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if fromToken != "" {
		q.Set("from_token", fromToken)
	}

	var out historyDTO
	if err := r.do(ctx, http.MethodGet, "/messages/history/"+url.PathEscape(roomID), q, nil, &out); err != nil {
		return domain.HistoryPage{}, err
	}

	return domain.HistoryPage{
		RoomID: roomID,
		Messages: lo.Map(out.Messages, func(w domain.WireMessage, _ int) domain.Message {
			m := w.ToMessage()
			if m.RoomID == "" {
				m.RoomID = roomID
			}
			return m
		}),
		EndToken: lo.FromPtr(out.EndToken),
		HasMore:  out.HasMore,
	}, nil
}

func (r *apiRepository) SendMessage(ctx context.Context, roomID, body string) (domain.Message, error) {
	req := map[string]string{
		"room_id":  roomID,
		"body":     body,
		"msg_type": domain.MsgTypeText,
		"txn_id":   uuid.New().String(),
	}
	var out domain.WireMessage
	if err := r.do(ctx, http.MethodPost, "/messages/send", nil, req, &out); err != nil {
		return domain.Message{}, err
	}
	m := out.ToMessage()
	if m.RoomID == "" {
		m.RoomID = roomID
	}
	return m, nil
}

func (r *apiRepository) CreateRoom(ctx context.Context, req domain.CreateRoomRequest) (domain.Room, error) {
	var out roomDTO
	if err := r.do(ctx, http.MethodPost, "/rooms", nil, req, &out); err != nil {
		return domain.Room{}, err
	}
	return out.toRoom(), nil
}

func (r *apiRepository) JoinRoom(ctx context.Context, roomID string) error {
	return r.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/join", nil, nil, nil)
}

func (r *apiRepository) PollEvents(ctx context.Context) ([]json.RawMessage, error) {
	q := url.Values{}
	if r.source != nil && r.source.Token() != "" {
		q.Set("token", r.source.Token())
	}
	var out []json.RawMessage
	if err := r.do(ctx, http.MethodGet, "/events/poll", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do send one JSON request, out may be nil
func (r *apiRepository) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	target := r.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		msg := lo.Ternary(errResp.Detail != "", errResp.Detail, errResp.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
