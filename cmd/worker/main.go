package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Cuttlas90/ads-project-sub000/internal/config"
	"github.com/Cuttlas90/ads-project-sub000/internal/content"
	"github.com/Cuttlas90/ads-project-sub000/internal/db"
	"github.com/Cuttlas90/ads-project-sub000/internal/events"
	"github.com/Cuttlas90/ads-project-sub000/internal/repositories"
	"github.com/Cuttlas90/ads-project-sub000/internal/services"
	"github.com/Cuttlas90/ads-project-sub000/internal/ton"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	tonClient, err := ton.Connect(ctx, ton.ConnectOptions{
		Network:        cfg.TONNetwork,
		LiteServerHost: cfg.LiteServerHost,
		LiteServerPort: cfg.LiteServerPort,
		LiteServerKey:  cfg.LiteServerKey,
		WalletSeed:     cfg.TONWalletSeed,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to TON", zap.Error(err))
	}

	// Repos
	dealRepo := repositories.NewDealRepo(pool)
	dealEventRepo := repositories.NewDealEventRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	escrowEventRepo := repositories.NewEscrowEventRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)
	challengeRepo := repositories.NewChallengeRepo(pool)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	bridge := services.NewPublisherClient(cfg.BotInternalURL, log)
	inspector := content.NewChecker(cfg.TMEFetchTimeoutMS, cfg.TMEFetchMaxRetries, log)

	reconciler := services.NewReconciler(pool, escrowRepo, escrowEventRepo, dealRepo, dealEventRepo, tonClient, publisher, cfg, log)
	settlement := services.NewSettlementService(pool, dealRepo, dealEventRepo, escrowRepo, escrowEventRepo, walletRepo, tonClient, publisher, cfg, log)
	scheduler := services.NewSchedulerService(pool, dealRepo, dealEventRepo, escrowRepo, bridge, inspector, settlement, publisher, cfg, log)

	log.Info("worker started")

	escrowTicker := time.NewTicker(cfg.EscrowScanInterval)
	postTicker := time.NewTicker(cfg.SchedulerTickInterval)
	verifyTicker := time.NewTicker(cfg.SchedulerTickInterval)
	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer escrowTicker.Stop()
	defer postTicker.Stop()
	defer verifyTicker.Stop()
	defer cleanupTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-escrowTicker.C:
			reconciler.ScanEscrows(ctx)
		case <-postTicker.C:
			scheduler.PostDueDeals(ctx)
		case <-verifyTicker.C:
			scheduler.VerifyPostedDeals(ctx)
		case <-cleanupTicker.C:
			if n, err := challengeRepo.DeleteExpired(ctx); err != nil {
				log.Error("failed to delete expired challenges", zap.Error(err))
			} else if n > 0 {
				log.Info("expired proof challenges deleted", zap.Int64("count", n))
			}
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
