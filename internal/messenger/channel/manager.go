package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"messenger_sync/internal/messenger/domain"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"

	"go.uber.org/zap"
)

// Stream one opened push connection.
// Next blocks until the next raw frame, Close may be called more than once.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// StreamTransport opens push connections, Open must honour ctx
type StreamTransport interface {
	Open(ctx context.Context) (Stream, error)
}

// Poller drains queued frames from the server
type Poller interface {
	Poll(ctx context.Context) ([]json.RawMessage, error)
}

// PollerFunc adapt a function to Poller
type PollerFunc func(ctx context.Context) ([]json.RawMessage, error)

// Poll implement Poller
func (f PollerFunc) Poll(ctx context.Context) ([]json.RawMessage, error) { return f(ctx) }

// State lifecycle of the Manager
type State int

const (
	// StateDisconnected no transport, or waiting to reconnect
	StateDisconnected State = iota
	// StateConnecting push transport opening
	StateConnecting
	// StateStreaming push transport open
	StateStreaming
	// StatePolling push unsupported, polling for the rest of the session
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StatePolling:
		return "polling"
	}
	return "disconnected"
}

// Options Manager settings
type Options struct {
	Stream StreamTransport
	Poller Poller

	// Handler receives every forwarded event in transport order.
	// It runs on a Manager goroutine and must not call Disconnect synchronously.
	Handler func(domain.Event)
	// OnConnected reports Connected() transitions
	OnConnected func(bool)

	OpenTimeout    time.Duration
	ReconnectDelay time.Duration
	PollInterval   time.Duration
}

// Manager owns the single push or poll transport of a session
type Manager struct {
	opts Options
	log  *logger.LogInfo

	mu         sync.Mutex
	state      State
	gen        uint64
	everOpened bool
	polling    bool
	destroyed  bool
	cancel     context.CancelFunc
	stream     Stream
	reconnect  *time.Timer

	// emitMu serialises Handler calls, Disconnect takes it as a barrier
	emitMu sync.Mutex
}

// NewManager create Manager
func NewManager(opts Options) *Manager {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.Handler == nil {
		opts.Handler = func(domain.Event) {}
	}
	return &Manager{opts: opts, log: logger.Log.Named("channel")}
}

// Connect start delivery. No-op while a transport is active or polling is engaged.
func (m *Manager) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroyed {
		return errprocess.ErrDisconnected
	}
	if m.polling || m.state == StateStreaming || m.state == StateConnecting {
		return nil
	}
	if m.opts.Stream == nil {
		m.engagePollingLocked()
		return nil
	}
	m.openLocked()
	return nil
}

// Disconnect terminal teardown, no transport or emission happens after it returns
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	wasConnected := m.connectedLocked()
	m.destroyed = true
	m.gen++
	m.state = StateDisconnected
	m.detachLocked()
	m.mu.Unlock()

	// 等待進行中的 Handler 結束
	m.emitMu.Lock()
	m.emitMu.Unlock()

	m.log.Info("channel disconnected")
	if wasConnected && m.opts.OnConnected != nil {
		m.opts.OnConnected(false)
	}
}

// Connected true while streaming or polling
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedLocked()
}

// State current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) connectedLocked() bool {
	return m.state == StateStreaming || m.state == StatePolling
}

// detachLocked invalidate and close whatever the previous generation owned
func (m *Manager) detachLocked() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.stream != nil {
		_ = m.stream.Close()
		m.stream = nil
	}
}

func (m *Manager) openLocked() {
	m.gen++
	m.detachLocked()
	m.state = StateConnecting

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.runStream(ctx, cancel, m.gen)
}

func (m *Manager) runStream(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	timer := time.AfterFunc(m.opts.OpenTimeout, cancel)
	stream, err := m.opts.Stream.Open(ctx)
	if !timer.Stop() && err == nil {
		// 開啟成功但已超時
		_ = stream.Close()
		err = context.DeadlineExceeded
	}

	m.mu.Lock()
	if m.destroyed || m.gen != gen {
		m.mu.Unlock()
		if err == nil {
			_ = stream.Close()
		}
		return
	}
	if err != nil {
		if !m.everOpened {
			m.log.Warn("push transport unavailable, falling back to polling", zap.Error(err))
			m.engagePollingLocked()
		} else {
			m.log.Warn("push transport reopen failed", zap.Error(err))
			m.state = StateDisconnected
			m.scheduleReconnectLocked(gen)
		}
		m.mu.Unlock()
		return
	}
	m.everOpened = true
	m.state = StateStreaming
	m.stream = stream
	m.mu.Unlock()

	m.log.Info("push transport open")
	m.notifyConnected(gen, true)

	for {
		data, err := stream.Next()
		if err != nil {
			m.log.Warn("push transport dropped", zap.Error(err))
			break
		}
		m.dispatch(gen, data)
	}
	_ = stream.Close()

	m.mu.Lock()
	if m.destroyed || m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.stream = nil
	m.state = StateDisconnected
	m.scheduleReconnectLocked(gen)
	m.mu.Unlock()

	m.notifyConnected(gen, false)
}

func (m *Manager) scheduleReconnectLocked(gen uint64) {
	if m.destroyed || m.polling {
		return
	}
	m.reconnect = time.AfterFunc(m.opts.ReconnectDelay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.destroyed || m.polling || m.gen != gen {
			return
		}
		m.log.Debug("reconnecting push transport")
		m.openLocked()
	})
}

func (m *Manager) engagePollingLocked() {
	m.gen++
	m.detachLocked()
	m.polling = true
	m.state = StatePolling

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	gen := m.gen
	go func() {
		m.notifyConnected(gen, true)
		m.runPoll(ctx, gen)
	}()
}

func (m *Manager) runPoll(ctx context.Context, gen uint64) {
	if m.opts.Poller == nil {
		m.log.Error("polling engaged without a poller")
		return
	}
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		frames, err := m.opts.Poller.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// 失敗視為空批次
			m.log.Debug("poll failed", zap.Error(err))
		}
		for _, f := range frames {
			m.dispatch(gen, f)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) dispatch(gen uint64, data []byte) {
	ev, err := domain.ParseEvent(data)
	if err != nil {
		m.log.Warn("dropping malformed frame", zap.Error(err), zap.ByteString("frame", data))
		return
	}
	if domain.IsControl(ev) {
		return
	}
	m.emit(gen, func() { m.opts.Handler(ev) })
}

func (m *Manager) notifyConnected(gen uint64, connected bool) {
	if m.opts.OnConnected == nil {
		return
	}
	m.emit(gen, func() { m.opts.OnConnected(connected) })
}

func (m *Manager) emit(gen uint64, fn func()) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	live := !m.destroyed && m.gen == gen
	m.mu.Unlock()
	if live {
		fn()
	}
}
