package geo

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"
	"golang.org/x/sync/singleflight"
)

// Location is the subset of GeoLite data attached to visit records.
type Location struct {
	Country string
	City    string
}

var (
	cityDB *geoip2.Reader
	geoMu  sync.RWMutex

	lookupGroup singleflight.Group
	lookupCache sync.Map
	cacheTTL    = 12 * time.Hour
)

type cacheEntry struct {
	loc     Location
	expires time.Time
}

// Load opens the GeoLite2 City database at path. An empty path disables
// enrichment without error so deployments can opt out.
func Load(path string) error {
	if path == "" {
		log.Debug("GeoIP enrichment disabled: no database path configured")
		return nil
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		return fmt.Errorf("geo: open city database %q: %w", path, err)
	}

	geoMu.Lock()
	if cityDB != nil {
		_ = cityDB.Close()
	}
	cityDB = reader
	geoMu.Unlock()

	log.Info("GeoIP city database loaded", "path", path)
	return nil
}

func Enabled() bool {
	geoMu.RLock()
	defer geoMu.RUnlock()
	return cityDB != nil
}

// Resolve looks up the location for an IP. Concurrent lookups for the same
// IP are collapsed and results are cached.
func Resolve(ip string) (Location, bool) {
	if !Enabled() {
		return Location{}, false
	}

	if raw, ok := lookupCache.Load(ip); ok {
		entry := raw.(cacheEntry)
		if time.Now().Before(entry.expires) {
			return entry.loc, true
		}
		lookupCache.Delete(ip)
	}

	result, err, _ := lookupGroup.Do(ip, func() (any, error) {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return Location{}, fmt.Errorf("geo: unparseable ip %q", ip)
		}

		geoMu.RLock()
		reader := cityDB
		geoMu.RUnlock()
		if reader == nil {
			return Location{}, fmt.Errorf("geo: database not loaded")
		}

		record, err := reader.City(parsed)
		if err != nil {
			return Location{}, err
		}

		loc := Location{
			Country: record.Country.Names["en"],
			City:    record.City.Names["en"],
		}
		lookupCache.Store(ip, cacheEntry{loc: loc, expires: time.Now().Add(cacheTTL)})
		return loc, nil
	})
	if err != nil {
		log.Debug("GeoIP lookup failed", "ip", ip, "error", err)
		return Location{}, false
	}

	return result.(Location), true
}

// Close releases the open database. Safe to call when enrichment is disabled.
func Close() {
	geoMu.Lock()
	defer geoMu.Unlock()
	if cityDB != nil {
		_ = cityDB.Close()
		cityDB = nil
	}
}
