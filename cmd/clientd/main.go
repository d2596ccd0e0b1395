package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lavizord/coinflip-client/internal/backend"
	"github.com/Lavizord/coinflip-client/internal/channels"
	"github.com/Lavizord/coinflip-client/internal/config"
	"github.com/Lavizord/coinflip-client/internal/engine"
	"github.com/Lavizord/coinflip-client/internal/reconciler"
	"github.com/Lavizord/coinflip-client/internal/statusapi"
	"github.com/Lavizord/coinflip-client/logger"
)

var transport channels.Transport

func init() {
	config.LoadConfig()

	var err error
	if config.Cfg.Transport.WSUrl != "" {
		transport, err = channels.NewWSTransport(config.Cfg.Transport.WSUrl, config.Cfg.Backend.APIKey)
		if err != nil {
			log.Fatalf("[clientd] Error initializing websocket transport: %v\n", err)
		}
	} else {
		transport, err = channels.NewRedisTransport(config.Cfg.Redis.Addr, config.Cfg.Redis.DB)
		if err != nil {
			log.Fatalf("[clientd] Error initializing Redis transport: %v\n", err)
		}
	}
}

func main() {
	store := reconciler.NewStore(reconciler.Config{
		RoundHistoryCap: config.Cfg.Sync.RoundHistoryCap,
		LedgerCap:       config.Cfg.Sync.LedgerCap,
	})
	client := backend.NewClient(config.Cfg.Backend.BaseURL, config.Cfg.Backend.APIKey)
	mgr := channels.NewManager(transport)

	eng := engine.New(engine.Config{
		RoomID:           config.Cfg.Room.ID,
		SettlementWindow: time.Duration(config.Cfg.Sync.SettlementTimeoutSeconds) * time.Second,
	}, client, mgr, store)

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		logger.Default.Fatalf("failed to start sync engine: %v", err)
	}

	// Seed the room scoped state; push events keep it fresh from here on.
	if state := eng.FetchCurrentRound(ctx); state.Err != nil {
		logger.Default.Warnf("initial round fetch failed: %v", state.Err)
	}
	if state := eng.FetchJackpot(ctx); state.Err != nil {
		logger.Default.Warnf("initial jackpot fetch failed: %v", state.Err)
	}

	server := statusapi.New(eng)
	addr := fmt.Sprintf(":%d", config.Cfg.StatusAPI.Port)
	go func() {
		logger.Default.Infof("status api listening on %s", addr)
		if err := http.ListenAndServe(addr, server.Router(config.Cfg.StatusAPI.AllowedOrigins)); err != nil {
			logger.Default.Fatalf("status api failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Default.Info("shutting down")
	eng.Stop()
	mgr.CloseAll()
	transport.Close()
}
