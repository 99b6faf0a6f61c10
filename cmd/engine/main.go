package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rawblock/snipe-engine/internal/api"
	"github.com/rawblock/snipe-engine/internal/db"
	"github.com/rawblock/snipe-engine/internal/engine"
	"github.com/rawblock/snipe-engine/internal/jito"
	"github.com/rawblock/snipe-engine/internal/solana"
	"github.com/rawblock/snipe-engine/internal/txbuild"
	"github.com/rawblock/snipe-engine/internal/venues"
	"github.com/rawblock/snipe-engine/pkg/models"
)

func main() {
	log.Println("Starting Snipe Engine (Microservice: sol-snipe-backend)...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	mainnetRPC := requireEnv("MAINNET_RPC_URL")
	mainnetWS := requireEnv("MAINNET_WS_URL")
	devnetRPC := getEnvOrDefault("DEVNET_RPC_URL", "https://api.devnet.solana.com")
	devnetWS := getEnvOrDefault("DEVNET_WS_URL", "wss://api.devnet.solana.com")

	blockEngineURL := getEnvOrDefault("BLOCK_ENGINE_URL", "https://mainnet.block-engine.jito.wtf/api/v1")
	jupiterURL := getEnvOrDefault("JUPITER_BASE_URL", "https://quote-api.jup.ag/v6")
	pumpPortalURL := getEnvOrDefault("PUMPPORTAL_BASE_URL", "https://pumpportal.fun/api")

	// Optional bundle audit sink. The engine is fully functional without it.
	var dbConn *db.PostgresStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		var err error
		dbConn, err = db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without bundle audit log. Error: %v", err)
			dbConn = nil
		} else {
			defer dbConn.Close()
			if err := dbConn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set, bundle audit log disabled")
	}

	// Setup WebSocket Hub for the viz stream
	wsHub := api.NewHub()
	go wsHub.Run()

	opts := engine.Options{
		RPC: map[engine.Cluster]engine.RPCClient{
			engine.ClusterMainnet: solana.NewClient(mainnetRPC),
			engine.ClusterDevnet:  solana.NewClient(devnetRPC),
		},
		WSURL: map[engine.Cluster]string{
			engine.ClusterMainnet: mainnetWS,
			engine.ClusterDevnet:  devnetWS,
		},
		BlockEngine: jito.NewClient(map[engine.Cluster]string{
			engine.ClusterMainnet: blockEngineURL,
		}),
		Swap:       txbuild.NewBuilder(),
		Aggregator: venues.NewJupiterClient(jupiterURL),
		TradeLocal: venues.NewPumpPortalClient(pumpPortalURL),
		Inspector:  txbuild.NewBuilder(),
		Viz: func(level, message string, cluster engine.Cluster, owner string) {
			wsHub.BroadcastEvent(models.VizEvent{
				Level:   level,
				Message: message,
				Cluster: string(cluster),
				Owner:   owner,
			})
		},
	}
	if dbConn != nil {
		opts.Audit = dbConn
	}

	eng := engine.NewEngine(opts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Init(ctx)

	// Setup the Gin Router
	r := api.SetupRouter(eng, wsHub, dbConn != nil)

	port := getEnvOrDefault("PORT", "5340")

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		eng.Shutdown(shutdownCtx)
		os.Exit(0)
	}()

	// Start the server
	log.Printf("Engine running on :%s (API Node: sol-snipe-backend)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
