package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"lookout/internal/app/bootstrap"
	"lookout/internal/app/server"
	"lookout/internal/config"
	"lookout/internal/database"
	"lookout/internal/gateway"
	"lookout/internal/geo"
	"lookout/internal/jobs/maintenance"
	"lookout/internal/jobs/runtime"
	"lookout/internal/support"
)

const defaultBackendPort = 8082

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	backendPortFlag := flag.Int("backend-port", defaultBackendPort, "Port for API server")
	productionFlag := flag.Bool("production", false, "Run in production mode")
	flag.Parse()

	config.SetProductionMode(*productionFlag)

	backendPort := resolvePort("BACKEND_PORT", *backendPortFlag)

	redisClient, err := support.GetRedisClient()
	if err != nil {
		return fmt.Errorf("failed to get redis client: %w", err)
	}

	defer func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}()

	heartbeatCancel := runtime.LaunchInstanceHeartbeat(context.Background(), redisClient)
	defer heartbeatCancel()

	bootstrap.Setup()
	defer geo.Close()

	config.EnableRedisSynchronization(context.Background(), redisClient)

	cfg := config.GetConfig()
	gw := gateway.New(database.NewVisitStore(), gateway.NewRealClock(), gateway.Settings{
		AutoBlockDelay: cfg.AutoBlockDelay(),
		DefaultSiteID:  cfg.Gateway.DefaultSiteID,
	})

	snapshotCancel := runtime.LaunchPresenceSnapshots(context.Background(), redisClient, gw, cfg.SnapshotInterval())
	defer snapshotCancel()

	go maintenance.StartVisitRetentionRoutine(context.Background())

	return server.OpenRoutes(backendPort, gw)
}

func resolvePort(envKey string, fallback int) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return fallback
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return fallback
	}
	return port
}
