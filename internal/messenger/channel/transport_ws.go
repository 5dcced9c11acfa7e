package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	errprocess "messenger_sync/pkg/err"

	gws "github.com/gorilla/websocket"
)

// WebsocketTransport push transport over a websocket, one JSON frame per text message
type WebsocketTransport struct {
	URL    string
	Dialer *gws.Dialer
	Header http.Header
}

// NewWebsocketTransport create WebsocketTransport
func NewWebsocketTransport(url string, header http.Header) *WebsocketTransport {
	return &WebsocketTransport{
		URL:    url,
		Dialer: &gws.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		Header: header,
	}
}

// Open implement StreamTransport
func (t *WebsocketTransport) Open(ctx context.Context) (Stream, error) {
	conn, resp, err := t.Dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errprocess.ErrUnauthorized
		}
		if errors.Is(err, gws.ErrBadHandshake) && resp != nil {
			return nil, fmt.Errorf("websocket handshake: status %d", resp.StatusCode)
		}
		return nil, err
	}

	s := &wsStream{conn: conn, done: make(chan struct{})}
	// ctx 取消時關閉連線, 讓 Next 返回
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

type wsStream struct {
	conn *gws.Conn
	once sync.Once
	done chan struct{}
}

func (s *wsStream) Next() ([]byte, error) {
	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				return nil, errprocess.ErrTransportClosed
			}
			return nil, err
		}
		if mt == gws.TextMessage {
			return data, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
