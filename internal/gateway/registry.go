package gateway

// Identity is the ephemeral (connection, ip, site) triple for one live
// session. It is never persisted.
type Identity struct {
	ConnectionID string
	IP           string
	SiteID       string
}

// Conn is a live connection handle the gateway can push messages to.
// Send reports false when the connection can no longer accept messages.
type Conn interface {
	ID() string
	Send(msg Message) bool
}

type registryEntry struct {
	identity Identity
	conn     Conn
}

// Registry is the in-memory socket-to-identity bookkeeping. It holds no
// locks of its own; the owning Gateway serializes access.
type Registry struct {
	entries map[string]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

func (r *Registry) Register(identity Identity, conn Conn) {
	r.entries[identity.ConnectionID] = registryEntry{identity: identity, conn: conn}
}

func (r *Registry) Unregister(connectionID string) {
	delete(r.entries, connectionID)
}

// Lookup returns the identity for a connection, ok=false when unregistered.
func (r *Registry) Lookup(connectionID string) (Identity, bool) {
	entry, ok := r.entries[connectionID]
	return entry.identity, ok
}

func (r *Registry) Conn(connectionID string) (Conn, bool) {
	entry, ok := r.entries[connectionID]
	return entry.conn, ok
}

func (r *Registry) ListByIP(ip string) []Identity {
	var matches []Identity
	for _, entry := range r.entries {
		if entry.identity.IP == ip {
			matches = append(matches, entry.identity)
		}
	}
	return matches
}

func (r *Registry) ListBySite(siteID string) []Identity {
	var matches []Identity
	for _, entry := range r.entries {
		if entry.identity.SiteID == siteID {
			matches = append(matches, entry.identity)
		}
	}
	return matches
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// CountLocal reports how many live connections share an IP on a site.
// Diagnostics only; broadcast correctness never depends on it.
func (r *Registry) CountLocal(siteID, ip string) int {
	count := 0
	for _, entry := range r.entries {
		if entry.identity.SiteID == siteID && entry.identity.IP == ip {
			count++
		}
	}
	return count
}

// SiteCounts returns live connection totals per site.
func (r *Registry) SiteCounts() map[string]int {
	counts := make(map[string]int)
	for _, entry := range r.entries {
		counts[entry.identity.SiteID]++
	}
	return counts
}
