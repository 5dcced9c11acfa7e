package domain

import msgdomain "messenger_sync/internal/messenger/domain"

// SendRequest POST messages/send body
type SendRequest struct {
	RoomID  string `json:"room_id" validate:"required"`
	Body    string `json:"body" validate:"required,max=65536"`
	MsgType string `json:"msg_type" validate:"omitempty,oneof=m.text m.notice m.emote"`
	TxnID   string `json:"txn_id"`
}

// HistoryOut GET messages/history body, messages newest first
type HistoryOut struct {
	Messages []msgdomain.WireMessage `json:"messages"`
	EndToken *string                 `json:"end_token"`
	HasMore  bool                    `json:"has_more"`
}

// DevTokenRequest POST auth/dev-token body
type DevTokenRequest struct {
	UserID string `json:"user_id" validate:"required,max=255"`
}

// DevTokenResponse token for the requested user
type DevTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
}
