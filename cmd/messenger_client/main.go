package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"messenger_sync/internal/messenger/app"
	"messenger_sync/internal/messenger/domain"
	"messenger_sync/pkg/config"
	"messenger_sync/pkg/logger"

	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const usage = `commands:
  rooms                     list rooms
  select <room_id>          open a room and load its newest page
  send <text>               send to the open room
  older                     load the previous history page
  create <name> [topic]     create a room
  join <room_id>            join a room
  quit
`

func main() {
	flags := pflag.NewFlagSet("messenger_client", pflag.ContinueOnError)
	configPath := flags.String("config", config.EnvConfig.ClientYAMLPath, "directory holding messenger_client.yaml")
	server := flags.String("server", "", "server url, overrides the config")
	token := flags.String("token", "", "bearer token, overrides the config")
	transport := flags.String("transport", "", "push transport: sse or websocket")
	debug := flags.Bool("debug", false, "enable debug log")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("parse flags: %v", err)
	}

	logger.Log = logger.Initialize(config.EnvConfig.Client, config.EnvConfig.ClientLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.Client](config.EnvConfig.Client, *configPath, config.ClientDefaults)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	cfg.ServerURL = lo.Ternary(*server != "", *server, cfg.ServerURL)
	cfg.Token = lo.Ternary(*token != "", *token, cfg.Token)
	cfg.Transport = lo.Ternary(*transport != "", *transport, cfg.Transport)
	logger.Log.SetDebugMode(cfg.Debug || *debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := app.NewSession(cfg, func() {
		fmt.Println("! unauthorized, check the token")
	})
	if err != nil {
		logger.Log.Fatal("create session failed", zap.Error(err))
	}
	defer session.Close()

	unsubscribe := session.Reconciler.Subscribe(func(ev domain.Event) {
		switch e := ev.(type) {
		case domain.MessageEvent:
			if e.Message.RoomID == session.Store.ActiveRoomID() {
				printMessage(e.Message)
			}
		case domain.NotificationEvent:
			fmt.Printf("! %s: %s\n", e.Title, e.Body)
		}
	})
	defer unsubscribe()

	connected := session.Store.Connected()
	unwatch := session.Store.Watch(func(s app.Snapshot) {
		if s.Connected != connected {
			connected = s.Connected
			fmt.Println(lo.Ternary(connected, "* connected", "* disconnected"))
		}
	})
	defer unwatch()

	if err := session.Start(ctx); err != nil {
		logger.Log.Fatal("start session failed", zap.Error(err))
	}

	fmt.Print(usage)
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := run(ctx, session, line); quit {
				return
			}
		}
	}
}

func run(ctx context.Context, s *app.Session, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "":
	case "quit", "exit":
		return true
	case "rooms":
		s.Reconciler.RefreshRooms(ctx)
		for _, r := range s.Store.Rooms() {
			fmt.Printf("%-40s %-20s unread=%d  %s\n", r.ID, r.DisplayName, r.UnreadCount, r.LastMessage)
		}
	case "select":
		if err = s.Reconciler.SelectRoom(ctx, arg); err == nil {
			lo.ForEach(s.Store.Messages(), func(m domain.Message, _ int) { printMessage(m) })
		}
	case "send":
		_, err = s.Reconciler.SendMessage(ctx, arg)
	case "older":
		before := len(s.Store.Messages())
		if err = s.Reconciler.LoadOlder(ctx); err == nil {
			msgs := s.Store.Messages()
			lo.ForEach(msgs[:len(msgs)-before], func(m domain.Message, _ int) { printMessage(m) })
		}
	case "create":
		name, topic, _ := strings.Cut(arg, " ")
		var room domain.Room
		if room, err = s.Reconciler.CreateRoom(ctx, name, strings.TrimSpace(topic), nil); err == nil {
			fmt.Printf("created %s\n", room.ID)
		}
	case "join":
		err = s.Reconciler.JoinRoom(ctx, arg)
	default:
		fmt.Print(usage)
	}

	if err != nil {
		fmt.Printf("! %v\n", err)
	}
	return false
}

func printMessage(m domain.Message) {
	body := m.Body
	if m.Attachment != nil {
		body = strings.TrimSpace(body + " [" + m.Attachment.Filename + "]")
	}
	fmt.Printf("[%s] %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.Sender, body)
}
