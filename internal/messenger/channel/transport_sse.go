package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/sse"
)

// SSETransport GET text/event-stream push transport
type SSETransport struct {
	URL string
	// Client must not carry a Timeout, the response body lives for the whole stream
	Client *http.Client
}

// NewSSETransport create SSETransport
func NewSSETransport(url string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{URL: url, Client: client}
}

// Open implement StreamTransport
func (t *SSETransport) Open(ctx context.Context) (Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, errprocess.ErrUnauthorized
		}
		return nil, fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream: unexpected content type %q", ct)
	}

	return &sseStream{body: resp.Body, scanner: sse.NewScanner(resp.Body)}, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *sse.Scanner
	once    sync.Once
}

func (s *sseStream) Next() ([]byte, error) {
	for s.scanner.Next() {
		ev := s.scanner.Event()
		if ev.Data == "" {
			continue
		}
		return []byte(ev.Data), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errprocess.ErrTransportClosed
}

func (s *sseStream) Close() error {
	var err error
	s.once.Do(func() { err = s.body.Close() })
	return err
}
