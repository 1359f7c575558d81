package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlphaB135/scg-noti-sub001/internal/domain"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/logging"
	"github.com/AlphaB135/scg-noti-sub001/internal/platform/version"
	"github.com/AlphaB135/scg-noti-sub001/internal/protocol"
	"github.com/AlphaB135/scg-noti-sub001/internal/subscriber"
	"github.com/jonboulle/clockwork"
)

const defaultURL = "ws://localhost:8080/ws"

func main() {
	var (
		serverURL = flag.String("url", envOr("NOTIFY_URL", defaultURL), "WebSocket URL (or set NOTIFY_URL env)")
		userID    = flag.String("user", "", "User ID sent as the userId query parameter")
		topics    = flag.String("topics", "", "Comma separated topics to SUBSCRIBE to after connecting")
		ping      = flag.Duration("ping", 0, "Send an application PING at this interval (0 disables)")
		maxDelay  = flag.Duration("max-backoff", subscriber.DefaultMaxReconnectDelay, "Upper bound for the reconnect delay")
		format    = flag.String("format", "text", "Log format: text or json")
		verbose   = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, *format)

	target, err := buildURL(*serverURL, *userID)
	if err != nil {
		log.Fatalf("Invalid URL: %v", err)
	}

	var client *subscriber.Client
	client, err = subscriber.NewClient(subscriber.Options{
		URL:               target,
		MaxReconnectDelay: *maxDelay,
		Handlers: subscriber.Handlers{
			OnConnectionStatus: func(m protocol.ConnectionStatus) {
				slog.Info("Connection status", "status", m.Status)
				if *topics != "" {
					if err := client.Subscribe(splitTopics(*topics)...); err != nil {
						slog.Warn("Subscribe failed", "error", err)
					}
				}
			},
			OnNotificationUpdate: logUpdate,
			OnError: func(m protocol.Error) {
				slog.Warn("Server error", "message", m.Message)
			},
			OnPong: func() {
				slog.Debug("Pong")
			},
			OnDisconnect: func(err error) {
				slog.Info("Disconnected", "error", err)
			},
		},
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *ping > 0 {
		go pingLoop(ctx, client, clockwork.NewRealClock(), *ping)
	}

	slog.Info("Watching notifications", "url", target, "client", version.UserAgent("notifywatch"))
	if err := client.Run(ctx); err != nil {
		log.Fatalf("Watch failed: %v", err)
	}
	slog.Info("Stopped")
}

func logUpdate(e domain.NotificationUpdateEvent) {
	attrs := []any{"id", e.ID, "status", e.Status}
	if e.Message != "" {
		attrs = append(attrs, "message", e.Message)
	}
	if n := len(e.ReopenHistory); n > 0 {
		attrs = append(attrs, "reopened", n, "last_reopen_reason", e.ReopenHistory[n-1].Reason)
	}
	slog.Info("Notification updated", attrs...)
}

func pingLoop(ctx context.Context, client *subscriber.Client, clock clockwork.Clock, interval time.Duration) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := client.Ping(); err != nil {
				slog.Debug("Ping skipped", "error", err)
			}
		}
	}
}
