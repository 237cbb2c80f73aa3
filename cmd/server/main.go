// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/typebattle/typebattle/internal/config"
	"github.com/typebattle/typebattle/internal/handlers"
	"github.com/typebattle/typebattle/internal/history"
	"github.com/typebattle/typebattle/internal/middleware"
	"github.com/typebattle/typebattle/internal/room"
	"github.com/typebattle/typebattle/internal/texts"
	"github.com/typebattle/typebattle/internal/ws"
)

func main() {
	cfg := config.Load()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Match-history publishing is optional: without REDIS_ADDR the server
	// runs purely in memory.
	var sink room.MatchSink
	if cfg.RedisAddr != "" {
		pub, err := history.NewPublisher(cfg.RedisAddr, cfg.RedisDB, cfg.MatchQueue, logger)
		if err != nil {
			logger.Warnf("match history disabled: %v", err)
		} else {
			defer pub.Close()
			sink = pub
		}
	}

	registry := ws.NewRegistry(logger)
	svc := room.NewService(registry, logger, room.Options{
		CountdownFrom: cfg.CountdownFrom,
		CountdownTick: cfg.CountdownTick,
		InactiveMax:   cfg.RoomInactiveMax,
		Generate:      texts.Generate,
		Sink:          sink,
	})
	svc.StartReaper(context.Background(), cfg.SweepInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HealthzHandler())
	mux.Handle("/debug/rooms", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.DebugRoomsHandler(svc),
	)))
	mux.Handle("/battle/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.BattleWSHandler(logger, svc, registry),
	)))

	logger.Infof("Running on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
