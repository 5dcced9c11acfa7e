package app

import (
	"context"
	"net/http"

	"messenger_sync/internal/messenger/channel"
	"messenger_sync/internal/messenger/repository"
	"messenger_sync/pkg/config"
	"messenger_sync/pkg/logger"

	"go.uber.org/zap"
)

// Session wires store, reconciler, history and channel for one signed-in user
type Session struct {
	Store      *Store
	Reconciler *Reconciler
	Channel    *channel.Manager

	repo repository.MessengerRepository
	cfg  config.Client
}

// NewSession build the HTTP collaborators from cfg.
// onUnauthorized is called on any 401, may be nil.
func NewSession(cfg config.Client, onUnauthorized func()) (*Session, error) {
	source := repository.StaticToken(cfg.Token)
	auth := &repository.AuthTransport{Source: source, OnUnauthorized: onUnauthorized}

	repo := repository.NewAPIRepository(cfg.ServerURL, &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: auth,
	}, source)

	var stream channel.StreamTransport
	switch cfg.Transport {
	case config.TransportWebsocket:
		u, err := repository.EventURL(cfg.ServerURL, "ws", source)
		if err != nil {
			return nil, err
		}
		stream = channel.NewWebsocketTransport(u, nil)
	default:
		u, err := repository.EventURL(cfg.ServerURL, "stream", source)
		if err != nil {
			return nil, err
		}
		// 不設 Timeout, stream 長連線
		stream = channel.NewSSETransport(u, &http.Client{Transport: auth})
	}

	return NewSessionWith(cfg, repo, stream), nil
}

// NewSessionWith wire a Session around given collaborators
func NewSessionWith(cfg config.Client, repo repository.MessengerRepository, stream channel.StreamTransport) *Session {
	store := NewStore()
	rec := NewReconciler(store, repo, NewHistoryFetcher(repo, cfg.HistoryLimit),
		WithRequestTimeout(cfg.RequestTimeout))

	mgr := channel.NewManager(channel.Options{
		Stream:         stream,
		Poller:         channel.PollerFunc(repo.PollEvents),
		Handler:        rec.ApplyIncoming,
		OnConnected:    rec.SetConnected,
		OpenTimeout:    cfg.OpenTimeout,
		ReconnectDelay: cfg.ReconnectDelay,
		PollInterval:   cfg.PollInterval,
	})

	return &Session{Store: store, Reconciler: rec, Channel: mgr, repo: repo, cfg: cfg}
}

// Start load the room listing and connect the channel
func (s *Session) Start(ctx context.Context) error {
	logger.Log.Info("session start", zap.String("server", s.cfg.ServerURL), zap.String("transport", s.cfg.Transport))
	s.Reconciler.RefreshRooms(ctx)
	return s.Channel.Connect()
}

// Close terminal, stops delivery and background work
func (s *Session) Close() {
	s.Channel.Disconnect()
	s.Reconciler.Close()
	logger.Log.Info("session closed")
}
