// Command server runs the collaborative editing sync server: the
// OT-based document authority, presence registry, session router, and
// their HTTP/WebSocket boundary.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabtext/syncserver/internal/auth"
	"github.com/collabtext/syncserver/internal/authority"
	"github.com/collabtext/syncserver/internal/config"
	"github.com/collabtext/syncserver/internal/httpapi"
	"github.com/collabtext/syncserver/internal/presence"
	"github.com/collabtext/syncserver/internal/session"
	"github.com/collabtext/syncserver/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// idleFlushInterval is how often the background sweep checks for
// documents that have gone quiet with unpersisted changes (spec §4.2
// step 7, invariant 8).
const idleFlushInterval = 500 * time.Millisecond

func run() error {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer docs.Close()

	slog.Info("connected to postgres")

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}
	defer redisClient.Close()

	slog.Info("connected to redis")

	authorities := authority.NewRegistry(docs, authority.Config{
		TailSize:        cfg.TailSize,
		PersistOps:      cfg.PersistOps,
		PersistInterval: cfg.PersistInterval,
	})
	presenceReg := presence.NewRedisRegistry(redisClient, cfg.PresenceTTL)
	tokens := auth.NewSigner(cfg.TokenSecret)
	router := session.NewRouter(authorities, presenceReg, tokens)

	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runIdleFlushSweep(ctx, authorities)
	}()

	api := httpapi.NewServer(router, authorities, docs, tokens)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: api.Handler()}

	wg.Add(1)
	go func() {
		defer wg.Done()

		slog.Info("listening", "addr", cfg.ListenAddr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
		}
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("signal caught", "sig", sig)

	cancel()
	_ = httpServer.Shutdown(context.Background())

	wg.Wait()

	return nil
}

func runIdleFlushSweep(ctx context.Context, authorities *authority.Registry) {
	ticker := time.NewTicker(idleFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			authorities.FlushIdle(ctx)
		case <-ctx.Done():
			return
		}
	}
}
