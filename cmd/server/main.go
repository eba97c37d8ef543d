// Package main runs the wallet watch service: it bootstraps absolute
// balances over RPC, follows the transaction stream, and serves the REST
// API and WebSocket push feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"solana-wallet-watch/internal/bootstrap"
	"solana-wallet-watch/internal/config"
	"solana-wallet-watch/internal/fanout"
	"solana-wallet-watch/internal/history"
	"solana-wallet-watch/internal/ingestion"
	"solana-wallet-watch/internal/ledger"
	"solana-wallet-watch/internal/reconcile"
	"solana-wallet-watch/internal/server"
	"solana-wallet-watch/internal/solana"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	configPath := flag.String("config", envOr("WALLET_WATCH_CONFIG", "config.yaml"), "Path to yaml config file")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint (overrides config)")
	streamEndpoint := flag.String("stream-endpoint", os.Getenv("SOLANA_STREAM_ENDPOINT"), "Solana WebSocket stream endpoint (overrides config)")
	listenAddr := flag.String("listen-addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	if *rpcEndpoint != "" {
		cfg.RPC.Endpoint = *rpcEndpoint
	}
	if *streamEndpoint != "" {
		cfg.Stream.Endpoint = *streamEndpoint
	}
	addr := cfg.ListenAddr()
	if *listenAddr != "" {
		addr = *listenAddr
	}

	logger.Printf("Tracking %d wallets", len(cfg.Wallets))

	// Build the ledger
	accounts := make([]*ledger.Account, 0, len(cfg.Wallets))
	for _, w := range cfg.Wallets {
		accounts = append(accounts, ledger.NewAccount(w.Address, w.Name, cfg.History.MaxPoints))
	}
	registry := ledger.NewRegistry(accounts)

	engine := reconcile.NewEngine(reconcile.Options{
		Registry: registry,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// RPC client and connectivity probe
	rpcClient := solana.NewHTTPClient(cfg.RPC.Endpoint)
	probeCtx, probeCancel := context.WithTimeout(ctx, 15*time.Second)
	slot, err := rpcClient.GetSlot(probeCtx)
	probeCancel()
	if err != nil {
		logger.Fatalf("RPC endpoint unreachable: %v", err)
	}
	logger.Printf("Connected to RPC, current slot %d", slot)

	// Transaction stream
	stream, err := solana.NewStreamClient(ctx, cfg.Stream.Endpoint, cfg.Addresses(), nil, logger)
	if err != nil {
		logger.Fatalf("Failed to connect stream: %v", err)
	}
	defer stream.Close()

	source := ingestion.NewWSTransactionSource(ingestion.SourceOptions{
		Stream:    stream,
		Addresses: cfg.Addresses(),
		Logger:    logger,
	})

	broadcaster := fanout.NewBroadcaster(fanout.Options{
		Registry: registry,
		Interval: cfg.Broadcast.Interval.Std(),
		Logger:   logger,
	})

	srv := server.New(server.Options{
		Registry:    registry,
		Query:       history.NewService(registry),
		Broadcaster: broadcaster,
		Logger:      logger,
	})
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 4)

	go func() {
		if err := source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("source: %w", err)
		}
	}()

	go func() {
		if err := engine.Run(ctx, source.Events()); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("engine: %w", err)
		}
	}()

	go func() {
		if err := broadcaster.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("broadcaster: %w", err)
		}
	}()

	// Bootstrap runs in the background so events flow immediately; absolute
	// reads overwrite any speculative state once they land.
	bootstrapper := bootstrap.NewRunner(bootstrap.Options{
		Client:     rpcClient,
		Reconciler: engine,
		Addresses:  cfg.Addresses(),
		Logger:     logger,
	})
	go func() {
		if err := bootstrapper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("Bootstrap: %v", err)
		}
	}()

	go func() {
		logger.Printf("Starting HTTP server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-errCh:
		logger.Printf("Fatal component error: %v", err)
	}
	cancel()

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP shutdown: %v", err)
	}
	stream.Close()

	logger.Println("Shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads KEY=VALUE pairs from .env without overriding existing
// env vars.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
