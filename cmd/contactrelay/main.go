// Command contactrelay forwards queued contact form messages to the support
// webhook.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/tradesite/pkg/config"
	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/redisclient"
	"go.uber.org/zap"
)

func main() {
	// Load config & init logging
	cfg, err := config.Load()
	if err != nil {
		panic("config load: " + err.Error())
	}
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	if cfg.RedisURL == "" {
		logger.Log.Fatal("contact relay needs REDIS_URL")
	}
	rdb, err := redisclient.New(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("failed to configure Redis", zap.Error(err))
	}
	defer rdb.Close()

	// Resume after CONTACT_RELAY_FROM, or after the newest queued message.
	from := os.Getenv("CONTACT_RELAY_FROM")
	if from == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		from, err = rdb.LastContactID(ctx)
		cancel()
		if err != nil {
			logger.Log.Fatal("failed to read contact stream", zap.Error(err))
		}
	}

	r := newRelay(rdb, cfg.SupportWebhookURL, cfg.AuthTimeout)
	defer r.close()

	// Cancellation & graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Log.Info("shutdown signal received")
		cancel()
	}()

	r.run(ctx, from)
	logger.Log.Info("contact relay stopped")
}
