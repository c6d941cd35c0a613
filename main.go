package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	bidding "night-auction/internal/biddingService"
	"night-auction/internal/config"
	model "night-auction/internal/models"
	"night-auction/internal/repository"
	"night-auction/internal/server"
	"night-auction/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}

	store, err := buildStore(cfg)
	if err != nil {
		utils.Fatal("failed to initialize session store", map[string]any{"error": err.Error()})
	}

	biddingSvc := bidding.NewBiddingService(store, settlementLogger(), bidding.Config{
		IncrementPercent:    cfg.IncrementPercent,
		CompensationPercent: cfg.CompensationPercent,
		DefaultMaxRounds:    cfg.MaxRoundsPerUser,
	})

	scheduler := bidding.NewExpiryScheduler(biddingSvc)
	if err := biddingSvc.RearmOpenSessions(context.Background()); err != nil {
		utils.Warn("failed to rearm open session timers", map[string]any{"error": err.Error()})
	}

	router := server.SetupRouter(biddingSvc, cfg.DefaultSessionTTL)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		fmt.Printf("Starting night-auction server on %s...\n", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)
	scheduler.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("server shutdown failed", map[string]any{"error": err.Error()})
	}
}

// buildStore selects the redis store when REDIS_ADDR is configured and the
// in-memory store otherwise.
func buildStore(cfg config.Config) (repository.SessionStore, error) {
	if cfg.RedisAddr == "" {
		utils.Info("using in-memory session store", nil)
		return repository.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	utils.Info("using redis session store", map[string]any{"addr": cfg.RedisAddr})
	return repository.NewRedisStore(client), nil
}

// settlementLogger stands in for the external payment system: the engine only
// hands the computed figures over, it never executes payments.
func settlementLogger() bidding.SettlementNotifier {
	return bidding.SettlementNotifierFunc(func(_ context.Context, event model.SettlementEvent) error {
		utils.Info("settlement emitted", map[string]any{
			"session_id":         event.SessionID,
			"winner_user_id":     event.WinnerUserID,
			"loser_user_id":      event.LoserUserID,
			"winning_bid":        event.WinningBid,
			"loser_compensation": event.LoserCompensation,
			"platform_revenue":   event.PlatformRevenue,
		})
		return nil
	})
}
