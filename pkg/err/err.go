package errprocess

import (
	"errors"
	"fmt"

	"messenger_sync/pkg/logger"

	"go.uber.org/zap"
)

var (
	// ErrNoActiveRoom no room selected
	ErrNoActiveRoom = errors.New("no active room")
	// ErrEmptyMessage message body is blank after trimming
	ErrEmptyMessage = errors.New("empty message body")
	// ErrHistoryExhausted no continuation token or no more history
	ErrHistoryExhausted = errors.New("history exhausted")
	// ErrHistoryBusy a page for the active room is already loading
	ErrHistoryBusy = errors.New("history page already loading")
	// ErrUnauthorized server answered 401
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransportClosed push transport closed by the remote side
	ErrTransportClosed = errors.New("transport closed")
	// ErrDisconnected channel manager already torn down
	ErrDisconnected = errors.New("channel disconnected")
	// ErrRoomNotFound room unknown to the server
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidRequest request failed validation
	ErrInvalidRequest = errors.New("invalid request")
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap log err and wrap it with msg, keeps errors.Is working
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(msg, zap.Error(err))
	return fmt.Errorf("%s: %w", msg, err)
}
