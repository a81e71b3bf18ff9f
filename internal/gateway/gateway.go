package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// VisitStore is the durable collaborator. It is eventually read-after-write
// and offers no transaction across calls; the gateway re-reads verdicts
// before writing instead of assuming freshness.
type VisitStore interface {
	RecordVisit(ctx context.Context, ip, socketID, siteID string) error
	GetBlockVerdict(ctx context.Context, ip string) (bool, error)
	SetBlockBySocketID(ctx context.Context, socketID string, blocked bool) (int64, error)
	SetBlockByIP(ctx context.Context, ip string, blocked bool) (matched, modified int64, err error)
}

// Settings is the configuration surface the gateway consumes.
type Settings struct {
	// AutoBlockDelay is how long a fresh connection stays undecided before
	// it is blocked automatically. Zero or negative disables the timer path.
	AutoBlockDelay time.Duration
	DefaultSiteID  string
}

var ErrPersistFailed = errors.New("gateway: verdict persistence failed")

// Gateway owns all live-connection state: the registry, the room fan-out
// maps, the armed timers, and the per-connection manual-decision memory.
// One mutex serializes the in-process state; durable-store calls happen
// outside the critical section.
type Gateway struct {
	mu       sync.Mutex
	registry *Registry
	rooms    *RoomSet
	decided  map[string]struct{}

	timers *TimerManager
	store  VisitStore

	settings Settings
}

func New(store VisitStore, clock Clock, settings Settings) *Gateway {
	if settings.DefaultSiteID == "" {
		settings.DefaultSiteID = "default"
	}
	return &Gateway{
		registry: NewRegistry(),
		rooms:    NewRoomSet(),
		decided:  make(map[string]struct{}),
		timers:   NewTimerManager(clock),
		store:    store,
		settings: settings,
	}
}

/* ===================== lifecycle ===================== */

// HandleConnect runs the connect transition: register, join rooms, record
// the visit, then either announce an existing block verdict or arm the
// auto-block timer.
func (g *Gateway) HandleConnect(ctx context.Context, conn Conn, ip, siteID string) {
	if siteID == "" {
		siteID = g.settings.DefaultSiteID
	}

	identity := Identity{ConnectionID: conn.ID(), IP: ip, SiteID: siteID}

	g.mu.Lock()
	g.registry.Register(identity, conn)
	g.rooms.Join(SiteRoom(siteID), conn)
	g.rooms.Join(SiteIPRoom(siteID, ip), conn)
	g.mu.Unlock()

	log.Info("[Connected]", "socket", identity.ConnectionID, "ip", ip, "site", siteID)

	if err := g.store.RecordVisit(ctx, ip, identity.ConnectionID, siteID); err != nil {
		log.Error("Failed to record visit", "socket", identity.ConnectionID, "ip", ip, "error", err)
	}

	blocked, err := g.store.GetBlockVerdict(ctx, ip)
	if err != nil {
		log.Error("Verdict lookup failed on connect", "ip", ip, "error", err)
	}
	if blocked {
		// Already blocked: tell the client and never arm a timer. This is
		// not a manual decision, so the decided set stays untouched.
		g.sendToConnection(identity.ConnectionID, BlockMode(true))
		log.Info("[Blocked] immediate", "socket", identity.ConnectionID, "ip", ip, "site", siteID)
		return
	}

	if g.settings.AutoBlockDelay <= 0 {
		return
	}

	g.mu.Lock()
	_, alreadyDecided := g.decided[identity.ConnectionID]
	g.mu.Unlock()
	if alreadyDecided {
		return
	}

	g.timers.Arm(identity.ConnectionID, g.settings.AutoBlockDelay, func() {
		g.onAutoBlockFire(identity)
	})
}

// HandleDisconnect cancels the timer, clears manual-decision memory and
// unregisters the connection. No durable write happens here.
func (g *Gateway) HandleDisconnect(connectionID string) {
	g.timers.Cancel(connectionID)

	g.mu.Lock()
	identity, known := g.registry.Lookup(connectionID)
	if known {
		g.rooms.Leave(SiteRoom(identity.SiteID), connectionID)
		g.rooms.Leave(SiteIPRoom(identity.SiteID, identity.IP), connectionID)
	}
	g.registry.Unregister(connectionID)
	delete(g.decided, connectionID)
	g.mu.Unlock()

	if known {
		log.Info("[Disconnected]", "socket", connectionID, "ip", identity.IP, "site", identity.SiteID)
	} else {
		log.Info("[Disconnected]", "socket", connectionID)
	}
}

// onAutoBlockFire is the timer transition. The verdict is re-read at fire
// time so a block set through another path in the interim is not clobbered;
// manual decisions recorded since arming win unconditionally.
func (g *Gateway) onAutoBlockFire(identity Identity) {
	ctx := context.Background()

	g.mu.Lock()
	_, live := g.registry.Lookup(identity.ConnectionID)
	_, alreadyDecided := g.decided[identity.ConnectionID]
	g.mu.Unlock()

	if !live || alreadyDecided {
		return
	}

	fresh, err := g.store.GetBlockVerdict(ctx, identity.IP)
	if err != nil {
		// Store unavailable: skip this cycle, stay undecided, no retry.
		// The operator can still act manually.
		log.Error("Auto-block verdict re-check failed", "socket", identity.ConnectionID, "ip", identity.IP, "error", err)
		return
	}
	if fresh {
		return
	}

	if _, err := g.store.SetBlockBySocketID(ctx, identity.ConnectionID, true); err != nil {
		log.Error("Auto-block persistence failed", "socket", identity.ConnectionID, "ip", identity.IP, "error", err)
		return
	}

	g.sendToConnection(identity.ConnectionID, BlockMode(true))
	log.Info("[Auto-blocked]", "socket", identity.ConnectionID, "ip", identity.IP, "site", identity.SiteID)
}

/* ===================== admin dispatch ===================== */

// NotifyConnection pushes a message to one connection. A set-block message
// follows the manual-decision rules: persist first, then broadcast, then
// permanently silence the automatic path for this connection.
// Messaging an unregistered connection is a logged no-op.
func (g *Gateway) NotifyConnection(ctx context.Context, connectionID string, msg Message) error {
	if msg.Kind != KindSetBlock {
		if !g.sendToConnection(connectionID, msg) {
			return nil
		}
		log.Info("[Admin → Socket]", "socket", connectionID, "type", msg.Kind)
		return nil
	}

	return g.applyManualDecision(ctx, connectionID, msg.Blocked)
}

// NotifyIP broadcasts to every live connection sharing an IP on a site.
// Zero receivers is a successful no-op.
func (g *Gateway) NotifyIP(ctx context.Context, siteID, ip string, msg Message) (int, error) {
	if siteID == "" {
		siteID = g.settings.DefaultSiteID
	}
	room := SiteIPRoom(siteID, ip)

	if msg.Kind == KindSetBlock {
		// Same delivery order as the per-socket path: the set-block echo
		// first, then the resulting block-mode.
		targets, _, err := g.persistIPVerdict(ctx, ip, msg.Blocked)
		if err != nil {
			return 0, err
		}

		g.mu.Lock()
		delivered := g.rooms.Broadcast(room, msg)
		g.mu.Unlock()

		for _, identity := range targets {
			g.sendToConnection(identity.ConnectionID, BlockMode(msg.Blocked))
		}

		log.Info("[Admin → Room]", "room", room, "live_sockets", len(targets), "type", msg.Kind)
		return delivered, nil
	}

	g.mu.Lock()
	delivered := g.rooms.Broadcast(room, msg)
	localCount := g.registry.CountLocal(siteID, ip)
	g.mu.Unlock()

	log.Info("[Admin → Room]", "room", room, "local_sockets", localCount, "type", msg.Kind)
	return delivered, nil
}

// NotifyIPDefaultSite is the single-site convenience form of NotifyIP.
func (g *Gateway) NotifyIPDefaultSite(ctx context.Context, ip string, msg Message) (int, error) {
	return g.NotifyIP(ctx, g.settings.DefaultSiteID, ip, msg)
}

// BlockConnection records a manual block for one connection.
func (g *Gateway) BlockConnection(ctx context.Context, connectionID string) error {
	return g.applyManualDecision(ctx, connectionID, true)
}

// UnblockConnection records a manual unblock for one connection.
func (g *Gateway) UnblockConnection(ctx context.Context, connectionID string) error {
	return g.applyManualDecision(ctx, connectionID, false)
}

// BlockStateForIP persists a verdict for an IP and applies it to every live
// connection with that IP across all sites: each one gets the manual-decision
// treatment (timer cancelled, decided forever, block-mode pushed). The
// durable write happens whether or not anyone is currently connected.
// Blocking is a property of the IP, not of the transient socket.
func (g *Gateway) BlockStateForIP(ctx context.Context, ip string, blocked bool) (BlockUpdate, error) {
	targets, update, err := g.persistIPVerdict(ctx, ip, blocked)
	if err != nil {
		return BlockUpdate{}, err
	}

	for _, identity := range targets {
		g.sendToConnection(identity.ConnectionID, BlockMode(blocked))
	}

	return update, nil
}

// persistIPVerdict writes the verdict and pins every live connection with
// the IP as manually decided, cancelling their timers. Callers announce
// block-mode themselves so message ordering stays under their control.
func (g *Gateway) persistIPVerdict(ctx context.Context, ip string, blocked bool) ([]Identity, BlockUpdate, error) {
	matched, modified, err := g.store.SetBlockByIP(ctx, ip, blocked)
	if err != nil {
		return nil, BlockUpdate{}, errors.Join(ErrPersistFailed, err)
	}

	g.mu.Lock()
	targets := g.registry.ListByIP(ip)
	for _, identity := range targets {
		g.decided[identity.ConnectionID] = struct{}{}
	}
	g.mu.Unlock()

	for _, identity := range targets {
		g.timers.Cancel(identity.ConnectionID)
	}

	log.Info("[Manual verdict by IP]", "ip", ip, "blocked", blocked,
		"matched", matched, "modified", modified, "live_sockets", len(targets))

	return targets, BlockUpdate{Matched: matched, Modified: modified}, nil
}

// BlockIP blocks every visit record for the IP.
func (g *Gateway) BlockIP(ctx context.Context, ip string) (BlockUpdate, error) {
	return g.BlockStateForIP(ctx, ip, true)
}

// UnblockIP lifts the verdict for the IP.
func (g *Gateway) UnblockIP(ctx context.Context, ip string) (BlockUpdate, error) {
	return g.BlockStateForIP(ctx, ip, false)
}

// StopAutoBlock suppresses the pending timer for one connection and pins it
// as manually decided until disconnect.
func (g *Gateway) StopAutoBlock(connectionID string) {
	g.mu.Lock()
	g.decided[connectionID] = struct{}{}
	g.mu.Unlock()
	g.timers.Cancel(connectionID)
}

// StopAutoBlockIP suppresses pending timers for every live connection
// sharing the IP.
func (g *Gateway) StopAutoBlockIP(ip string) int {
	g.mu.Lock()
	targets := g.registry.ListByIP(ip)
	for _, identity := range targets {
		g.decided[identity.ConnectionID] = struct{}{}
	}
	g.mu.Unlock()

	for _, identity := range targets {
		g.timers.Cancel(identity.ConnectionID)
	}
	return len(targets)
}

/* ===================== introspection ===================== */

// BlockUpdate reports a bulk verdict write: how many durable records the
// target expression matched and how many actually changed state.
type BlockUpdate struct {
	Matched  int64
	Modified int64
}

func (g *Gateway) ConnectionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.Len()
}

func (g *Gateway) SiteCounts() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.SiteCounts()
}

func (g *Gateway) CountLocal(siteID, ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.registry.CountLocal(siteID, ip)
}

/* ===================== internals ===================== */

// applyManualDecision is transition rule four: persist the verdict, then
// echo set-block and the resulting block-mode to the visitor, remember the
// decision, and cancel the timer. Persistence failure aborts before any
// broadcast so "blocked" is never announced without being stored.
func (g *Gateway) applyManualDecision(ctx context.Context, connectionID string, blocked bool) error {
	if _, err := g.store.SetBlockBySocketID(ctx, connectionID, blocked); err != nil {
		log.Error("Manual verdict persistence failed", "socket", connectionID, "blocked", blocked, "error", err)
		return errors.Join(ErrPersistFailed, err)
	}

	g.mu.Lock()
	g.decided[connectionID] = struct{}{}
	g.mu.Unlock()
	g.timers.Cancel(connectionID)

	g.sendToConnection(connectionID, SetBlock(blocked))
	g.sendToConnection(connectionID, BlockMode(blocked))

	log.Info("[Manual verdict]", "socket", connectionID, "blocked", blocked)
	return nil
}

func (g *Gateway) sendToConnection(connectionID string, msg Message) bool {
	g.mu.Lock()
	conn, ok := g.registry.Conn(connectionID)
	g.mu.Unlock()

	if !ok {
		log.Warn("[Send skipped] socket not found", "socket", connectionID)
		return false
	}
	return conn.Send(msg)
}
