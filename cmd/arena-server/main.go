package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appcfg "github.com/park285/solmate-arena/internal/config"
	"github.com/park285/solmate-arena/internal/arena"
	"github.com/park285/solmate-arena/internal/auth"
	"github.com/park285/solmate-arena/internal/history"
	"github.com/park285/solmate-arena/internal/invite"
	"github.com/park285/solmate-arena/internal/obslog"
	"github.com/park285/solmate-arena/internal/rewards"
	"github.com/park285/solmate-arena/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis url error: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("redis connect error: %v", err)
	}
	cancel()

	repo, err := history.NewRepository(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("history repo init error: %v", err)
	}
	rewardSvc, err := rewards.NewService(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("rewards init error: %v", err)
	}

	svc, err := arena.NewService(
		invite.NewManager(rdb, cfg.InviteTTL),
		repo,
		rewardSvc,
		arena.Options{
			GracePeriod:       cfg.GracePeriod,
			MoveRateLimit:     cfg.MoveRateLimit,
			QuickChatCooldown: cfg.QuickChatCooldown,
			MatchRetention:    cfg.MatchRetention,
		},
	)
	if err != nil {
		log.Fatalf("arena init error: %v", err)
	}

	server := ws.NewServer(svc, auth.NewHMACVerifier(cfg.JWTSecret))
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	obslog.L().Info("server_shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	svc.Close()
	_ = repo.Close()
	_ = rewardSvc.Close()
	_ = rdb.Close()
}
