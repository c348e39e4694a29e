package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/db"
	"github.com/Cuttlas90/ads-project-sub000/internal/events"
	"go.uber.org/zap"
)

// Notify bridge — optional small service that subscribes to Redis events
// and forwards user notifications to the Python bot service.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	subscriber := events.NewRedisSubscriber(rdb, log)

	log.Info("notify-bridge started")

	forward := func(event events.Event) {
		log.Info("forwarding event to bot", zap.String("type", event.Type))
		forwardToBot(cfg.BotInternalURL, event, log)
	}

	_ = subscriber.Subscribe(ctx, events.StreamDeals, forward)
	_ = subscriber.Subscribe(ctx, events.StreamEscrows, forward)
	_ = subscriber.Subscribe(ctx, events.StreamNotifications, forward)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down notify-bridge")
	cancel()
}

func forwardToBot(baseURL string, event events.Event, log *zap.Logger) {
	// Only events carrying an addressee become notifications.
	telegramUserID, ok := event.Payload["telegram_user_id"]
	if !ok {
		return
	}

	text, _ := event.Payload["text"].(string)
	if text == "" {
		text = fmt.Sprintf("Event: %s", event.Type)
	}

	body, _ := json.Marshal(map[string]any{
		"telegram_user_id": telegramUserID,
		"text":             text,
	})

	url := fmt.Sprintf("%s/internal/notify", strings.TrimRight(baseURL, "/"))
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		log.Warn("failed to forward notification", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("bot notification returned non-200", zap.Int("status", resp.StatusCode))
	}
}
