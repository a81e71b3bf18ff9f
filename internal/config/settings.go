package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

type Config struct {
	Gateway struct {
		// AutoBlockDelayMs is the delay before a connection is blocked
		// automatically. Zero or negative disables auto-blocking.
		AutoBlockDelayMs int `json:"auto_block_delay_ms"`

		DefaultSiteID string `json:"default_site_id"`

		// AllowedOrigins restricts websocket upgrades. Empty allows any origin.
		AllowedOrigins []string `json:"allowed_origins"`
	} `json:"gateway"`

	Visits struct {
		PageSizeLimit int `json:"page_size_limit"`
		ExportLimit   int `json:"export_limit"`

		// RetentionDays prunes unblocked visit records not seen for this
		// many days. Zero or negative keeps everything forever.
		RetentionDays int `json:"retention_days"`
	} `json:"visits"`

	Presence struct {
		SnapshotIntervalSeconds int `json:"snapshot_interval_seconds"`
	} `json:"presence"`

	GeoIP struct {
		CityDBPath string `json:"city_db_path"`
	} `json:"geoip"`
}

func (c Config) AutoBlockDelay() time.Duration {
	return time.Duration(c.Gateway.AutoBlockDelayMs) * time.Millisecond
}

func (c Config) VisitRetention() time.Duration {
	if c.Visits.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Visits.RetentionDays) * 24 * time.Hour
}

func (c Config) SnapshotInterval() time.Duration {
	if c.Presence.SnapshotIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Presence.SnapshotIntervalSeconds) * time.Second
}

const settingsFilePath = "data/settings.json"

var (
	//go:embed default_settings.json
	defaultConfig []byte

	configValue atomic.Value
	configMu    sync.Mutex

	InProductionMode bool
)

func init() {
	configValue.Store(Config{})
}

func ReadSettings() {
	data, err := os.ReadFile(settingsFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("Settings file not found, creating with default configuration")

			if err = os.MkdirAll("data", os.ModePerm); err != nil {
				log.Error("Error creating directory for settings file:", err)
				return
			}

			if err = os.WriteFile(settingsFilePath, defaultConfig, os.ModePerm); err != nil {
				log.Error("Error writing default settings file:", err)
				return
			}

			data = defaultConfig
		} else {
			log.Error("Error reading settings file:", err)
			return
		}
	}

	var newConfig Config
	if err = json.Unmarshal(data, &newConfig); err != nil {
		log.Error("Error unmarshalling settings file:", err)
		return
	}

	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "file"}); err != nil {
		log.Error("Error applying configuration from settings file:", err)
		return
	}

	log.Debug("Settings file loaded successfully")
}

func SetConfig(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{persistToFile: true, broadcast: true, source: "local"}); err != nil {
		log.Error("Error applying configuration update:", err)
		return
	}

	log.Debug("Configuration updated and written to file successfully")
}

// SetConfigLocal applies a configuration to this process only. Used for
// environment overrides that must not leak to the settings file or to
// other instances over Redis.
func SetConfigLocal(newConfig Config) {
	if err := applyConfigUpdate(newConfig, configUpdateOptions{source: "env"}); err != nil {
		log.Error("Error applying local configuration update:", err)
	}
}

type configUpdateOptions struct {
	persistToFile bool
	broadcast     bool
	source        string
}

func applyConfigUpdate(newConfig Config, opts configUpdateOptions) error {
	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)

	var errs []error

	if opts.persistToFile {
		data, err := json.MarshalIndent(newConfig, "", "  ")
		if err != nil {
			log.Error("Error marshalling new configuration:", err)
			errs = append(errs, err)
		} else if err := os.WriteFile(settingsFilePath, data, os.ModePerm); err != nil {
			log.Error("Error writing new configuration to file:", err)
			errs = append(errs, err)
		}
	}

	if opts.broadcast {
		payload, err := json.Marshal(newConfig)
		if err != nil {
			log.Error("Error serializing configuration for broadcast:", err)
			errs = append(errs, err)
		} else if err := broadcastConfigUpdate(payload); err != nil {
			log.Error("Error broadcasting configuration update:", err)
			errs = append(errs, err)
		}
	}

	if opts.source != "" {
		log.Debug("Configuration applied", "source", opts.source)
	}

	return errors.Join(errs...)
}

func GetConfig() Config {
	return configValue.Load().(Config)
}

func SetProductionMode(productionMode bool) {
	InProductionMode = productionMode
}
