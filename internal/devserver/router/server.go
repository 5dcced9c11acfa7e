package router

import (
	"time"

	"messenger_sync/internal/devserver/app"
	"messenger_sync/internal/devserver/repository"
	"messenger_sync/pkg/config"
	t_token "messenger_sync/pkg/token"

	"github.com/gofiber/fiber/v2"
)

// Server assembled dev server
type Server struct {
	App    *fiber.App
	Issuer *t_token.Issuer
	events *app.EventHandler
	broker repository.Broker
}

// NewServer wire repositories, use cases and routes around broker.
// middlewares run ahead of every route, e.g. the access log.
func NewServer(cfg config.DevServer, broker repository.Broker, middlewares ...fiber.Handler) *Server {
	rooms := repository.NewMemoryRoomRepository()
	msgs := repository.NewMemoryMessageRepository()

	roomUC := app.NewRoomUseCase(rooms, msgs)
	messageUC := app.NewMessageUseCase(rooms, msgs, broker, cfg.HistoryMaxLimit)

	issuer := t_token.NewIssuer(cfg.JWTSecret, cfg.Issuer, 0)
	events := app.NewEventHandler(broker, cfg.KeepaliveInterval)

	r := fiber.New(fiber.Config{DisableStartupMessage: true})
	for _, m := range middlewares {
		r.Use(m)
	}
	RegisterRoutes(r, issuer, app.NewHandler(roomUC, messageUC), events, app.NewAuthHandler(issuer))

	return &Server{App: r, Issuer: issuer, events: events, broker: broker}
}

// Shutdown close open streams, then the listener and the broker
func (s *Server) Shutdown(timeout time.Duration) error {
	s.events.Close()
	err := s.App.ShutdownWithTimeout(timeout)
	if cerr := s.broker.Close(); err == nil {
		err = cerr
	}
	return err
}
