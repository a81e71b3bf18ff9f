package bootstrap

import (
	"github.com/charmbracelet/log"

	"lookout/internal/config"
	"lookout/internal/database"
	"lookout/internal/geo"
	"lookout/internal/support"
)

// Setup reads the settings file, applies environment overrides, connects
// the database and loads the GeoIP city database when one is configured.
func Setup() {
	config.ReadSettings()
	applyEnvOverrides()

	if _, err := database.SetupDB(); err != nil {
		log.Fatalf("failed to set up database: %v", err)
	}

	cityDBPath := config.GetConfig().GeoIP.CityDBPath
	if cityDBPath != "" {
		if err := geo.Load(cityDBPath); err != nil {
			log.Warn("GeoIP database unavailable, visits will not be located", "path", cityDBPath, "error", err)
		}
	}
}

// Environment variables beat the settings file so container deployments can
// tune the gateway without shipping a settings volume.
func applyEnvOverrides() {
	cfg := config.GetConfig()
	changed := false

	if delay := support.GetEnvInt("AUTO_BLOCK_MS", -1); delay >= 0 {
		cfg.Gateway.AutoBlockDelayMs = delay
		changed = true
	}
	if siteID := support.GetEnv("DEFAULT_SITE_ID", ""); siteID != "" {
		cfg.Gateway.DefaultSiteID = siteID
		changed = true
	}
	if path := support.GetEnv("GEOIP_CITY_DB", ""); path != "" {
		cfg.GeoIP.CityDBPath = path
		changed = true
	}

	if changed {
		config.SetConfigLocal(cfg)
	}
}
