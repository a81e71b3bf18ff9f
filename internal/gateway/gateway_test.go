package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

/* ===================== test doubles ===================== */

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Duration
	fn       func()
	stopped  bool
	fired    bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) TimerHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.deadline <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
}

func (c *fakeClock) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			count++
		}
	}
	return count
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeConn struct {
	id   string
	mu   sync.Mutex
	msgs []Message
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

type fakeStore struct {
	mu         sync.Mutex
	verdicts   map[string]bool
	socketIP   map[string]string
	known      map[string]bool
	writes     int
	verdictErr error
	writeErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		verdicts: make(map[string]bool),
		socketIP: make(map[string]string),
		known:    make(map[string]bool),
	}
}

func (s *fakeStore) RecordVisit(_ context.Context, ip, socketID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[ip] = true
	s.socketIP[socketID] = ip
	return nil
}

func (s *fakeStore) GetBlockVerdict(_ context.Context, ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verdictErr != nil {
		return false, s.verdictErr
	}
	return s.verdicts[ip], nil
}

func (s *fakeStore) SetBlockBySocketID(_ context.Context, socketID string, blocked bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	ip, ok := s.socketIP[socketID]
	if !ok {
		return 0, nil
	}
	s.verdicts[ip] = blocked
	s.writes++
	return 1, nil
}

func (s *fakeStore) SetBlockByIP(_ context.Context, ip string, blocked bool) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, 0, s.writeErr
	}
	var matched, modified int64
	if s.known[ip] {
		matched = 1
		if s.verdicts[ip] != blocked {
			modified = 1
		}
	}
	s.verdicts[ip] = blocked
	s.writes++
	return matched, modified, nil
}

func (s *fakeStore) verdict(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdicts[ip]
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) setVerdict(ip string, blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[ip] = true
	s.verdicts[ip] = blocked
}

func newTestGateway(t *testing.T, delay time.Duration) (*Gateway, *fakeStore, *fakeClock) {
	t.Helper()
	store := newFakeStore()
	clock := newFakeClock()
	gw := New(store, clock, Settings{AutoBlockDelay: delay, DefaultSiteID: "default"})
	return gw, store, clock
}

/* ===================== connect / timer path ===================== */

func TestAutoBlockFiresExactlyOnce(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	if store.verdict("203.0.113.5") {
		t.Fatal("verdict should still be false before the delay elapses")
	}

	clock.Advance(5 * time.Second)

	if !store.verdict("203.0.113.5") {
		t.Fatal("verdict should be true after the delay")
	}

	msgs := conn.messages()
	if len(msgs) != 1 {
		t.Fatalf("connection received %d messages, want exactly 1", len(msgs))
	}
	if msgs[0].Kind != KindBlockMode || !msgs[0].Blocked {
		t.Fatalf("message = %+v, want block-mode on", msgs[0])
	}

	// A later tick must not re-fire.
	clock.Advance(10 * time.Second)
	if got := len(conn.messages()); got != 1 {
		t.Fatalf("connection received %d messages after extra time, want 1", got)
	}
	if store.writeCount() != 1 {
		t.Fatalf("store writes = %d, want 1", store.writeCount())
	}
}

func TestAlreadyBlockedConnectSkipsTimer(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	store.setVerdict("203.0.113.5", true)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	msgs := conn.messages()
	if len(msgs) != 1 || msgs[0].Kind != KindBlockMode || !msgs[0].Blocked {
		t.Fatalf("messages = %+v, want a single block-mode on", msgs)
	}
	if clock.pendingCount() != 0 {
		t.Fatal("no timer should be armed for an already-blocked visitor")
	}

	clock.Advance(time.Minute)
	if store.writeCount() != 0 {
		t.Fatal("no durable write should occur for an already-blocked visitor")
	}
}

func TestAutoBlockDisabledByNonPositiveDelay(t *testing.T) {
	gw, _, clock := newTestGateway(t, 0)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	if clock.pendingCount() != 0 {
		t.Fatal("auto-block delay of zero must not arm a timer")
	}
}

func TestDisconnectCancelsTimer(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")
	gw.HandleDisconnect("s1")

	clock.Advance(time.Minute)

	if store.verdict("203.0.113.5") {
		t.Fatal("verdict must stay false when the visitor left before the timer")
	}
	if store.writeCount() != 0 {
		t.Fatalf("store writes = %d, want 0", store.writeCount())
	}
}

func TestTimerRereadsVerdictBeforeWriting(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	// Another path blocks the IP while the timer is pending.
	store.setVerdict("203.0.113.5", true)
	clock.Advance(5 * time.Second)

	if store.writeCount() != 0 {
		t.Fatal("timer must not write when the verdict changed underneath it")
	}
	if got := len(conn.messages()); got != 0 {
		t.Fatalf("connection received %d messages, want 0 from the timer", got)
	}
}

func TestTimerStoreFailureLeavesConnectionUndecided(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	store.mu.Lock()
	store.verdictErr = errors.New("store down")
	store.mu.Unlock()

	clock.Advance(5 * time.Second)

	if store.writeCount() != 0 {
		t.Fatal("no write may happen when the re-check fails")
	}
	if got := len(conn.messages()); got != 0 {
		t.Fatalf("connection received %d messages, want 0", got)
	}

	// The operator can still act manually.
	store.mu.Lock()
	store.verdictErr = nil
	store.mu.Unlock()

	if err := gw.BlockConnection(context.Background(), "s1"); err != nil {
		t.Fatalf("manual block after store outage: %v", err)
	}
	if !store.verdict("203.0.113.5") {
		t.Fatal("manual block should persist the verdict")
	}
}

/* ===================== manual decision path ===================== */

func TestManualBlockBeforeTimerSuppressesIt(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	// Operator acts at t=1s.
	clock.Advance(time.Second)
	if err := gw.BlockConnection(context.Background(), "s1"); err != nil {
		t.Fatalf("BlockConnection: %v", err)
	}

	msgs := conn.messages()
	if len(msgs) != 2 {
		t.Fatalf("connection received %d messages, want set-block then block-mode", len(msgs))
	}
	if msgs[0].Kind != KindSetBlock || !msgs[0].Blocked {
		t.Fatalf("first message = %+v, want set-block true", msgs[0])
	}
	if msgs[1].Kind != KindBlockMode || !msgs[1].Blocked {
		t.Fatalf("second message = %+v, want block-mode on", msgs[1])
	}

	writesAfterManual := store.writeCount()
	clock.Advance(10 * time.Second)

	if got := len(conn.messages()); got != 2 {
		t.Fatalf("timer sent extra messages: got %d total, want 2", got)
	}
	if store.writeCount() != writesAfterManual {
		t.Fatal("timer must not duplicate the durable write after a manual decision")
	}
}

func TestManualUnblockIsNotUndoneByStaleTimer(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	if err := gw.UnblockConnection(context.Background(), "s1"); err != nil {
		t.Fatalf("UnblockConnection: %v", err)
	}

	clock.Advance(time.Minute)

	if store.verdict("203.0.113.5") {
		t.Fatal("stale timer undid a manual unblock")
	}
}

func TestManualDecisionPersistFailureSkipsBroadcast(t *testing.T) {
	gw, store, _ := newTestGateway(t, 0)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")

	store.mu.Lock()
	store.writeErr = errors.New("store down")
	store.mu.Unlock()

	err := gw.BlockConnection(context.Background(), "s1")
	if !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("error = %v, want ErrPersistFailed", err)
	}

	// The visitor must not be told "blocked" when nothing was stored.
	if got := len(conn.messages()); got != 0 {
		t.Fatalf("connection received %d messages despite persistence failure", got)
	}
}

func TestReconnectArmsFreshTimerAfterManualUnblock(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	first := newFakeConn("s1")

	gw.HandleConnect(context.Background(), first, "203.0.113.5", "shop")
	if err := gw.UnblockConnection(context.Background(), "s1"); err != nil {
		t.Fatalf("UnblockConnection: %v", err)
	}
	gw.HandleDisconnect("s1")

	// New connection, new id, no manual-decision memory.
	second := newFakeConn("s2")
	gw.HandleConnect(context.Background(), second, "203.0.113.5", "shop")

	if clock.pendingCount() != 1 {
		t.Fatalf("pending timers = %d, want 1 for the fresh connection", clock.pendingCount())
	}

	clock.Advance(5 * time.Second)
	if !store.verdict("203.0.113.5") {
		t.Fatal("fresh connection should be auto-blocked after the delay")
	}
}

/* ===================== admin dispatch ===================== */

func TestNotifyConnectionAbsentIsNoop(t *testing.T) {
	gw, _, _ := newTestGateway(t, 0)

	if err := gw.NotifyConnection(context.Background(), "ghost", Text("hello")); err != nil {
		t.Fatalf("notify on absent connection must not error, got %v", err)
	}
}

func TestNotifyIPReachesAllSocketsInRoom(t *testing.T) {
	gw, _, _ := newTestGateway(t, 0)
	a := newFakeConn("s1")
	b := newFakeConn("s2")
	other := newFakeConn("s3")

	gw.HandleConnect(context.Background(), a, "203.0.113.5", "shop")
	gw.HandleConnect(context.Background(), b, "203.0.113.5", "shop")
	gw.HandleConnect(context.Background(), other, "198.51.100.7", "shop")

	delivered, err := gw.NotifyIP(context.Background(), "shop", "203.0.113.5", Text("careful"))
	if err != nil {
		t.Fatalf("NotifyIP: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	if got := len(other.messages()); got != 0 {
		t.Fatalf("unrelated connection received %d messages", got)
	}
}

func TestNotifyIPSetBlockEchoesBeforeBlockMode(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")
	conn.mu.Lock()
	conn.msgs = nil
	conn.mu.Unlock()

	delivered, err := gw.NotifyIP(context.Background(), "shop", "203.0.113.5", SetBlock(true))
	if err != nil {
		t.Fatalf("NotifyIP: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	msgs := conn.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %+v, want set-block then block-mode", msgs)
	}
	if msgs[0].Kind != KindSetBlock || !msgs[0].Blocked {
		t.Fatalf("first message = %+v, want set-block true", msgs[0])
	}
	if msgs[1].Kind != KindBlockMode || !msgs[1].Blocked {
		t.Fatalf("second message = %+v, want block-mode on", msgs[1])
	}

	if !store.verdict("203.0.113.5") {
		t.Fatal("verdict not persisted")
	}
	if clock.pendingCount() != 0 {
		t.Fatalf("pending timers = %d, want 0", clock.pendingCount())
	}
}

func TestBlockIPWithoutLiveConnectionsStillPersists(t *testing.T) {
	gw, store, _ := newTestGateway(t, 0)
	store.mu.Lock()
	store.known["203.0.113.5"] = true
	store.mu.Unlock()

	update, err := gw.BlockIP(context.Background(), "203.0.113.5")
	if err != nil {
		t.Fatalf("BlockIP: %v", err)
	}
	if update.Matched != 1 || update.Modified != 1 {
		t.Fatalf("update = %+v, want matched=1 modified=1", update)
	}
	if !store.verdict("203.0.113.5") {
		t.Fatal("verdict must persist even with zero live sockets")
	}
}

func TestBlockIPDecidesAllLiveConnections(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	a := newFakeConn("s1")
	b := newFakeConn("s2")

	gw.HandleConnect(context.Background(), a, "203.0.113.5", "shop")
	gw.HandleConnect(context.Background(), b, "203.0.113.5", "blog")

	if _, err := gw.BlockIP(context.Background(), "203.0.113.5"); err != nil {
		t.Fatalf("BlockIP: %v", err)
	}

	if clock.pendingCount() != 0 {
		t.Fatalf("pending timers = %d, want 0 after manual IP block", clock.pendingCount())
	}

	for _, conn := range []*fakeConn{a, b} {
		msgs := conn.messages()
		if len(msgs) != 1 || msgs[0].Kind != KindBlockMode || !msgs[0].Blocked {
			t.Fatalf("connection %s messages = %+v, want single block-mode on", conn.id, msgs)
		}
	}

	writes := store.writeCount()
	clock.Advance(time.Minute)
	if store.writeCount() != writes {
		t.Fatal("timers fired after a manual IP block")
	}
}

func TestStopAutoBlockSuppressesPendingTimer(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	conn := newFakeConn("s1")

	gw.HandleConnect(context.Background(), conn, "203.0.113.5", "shop")
	gw.StopAutoBlock("s1")

	clock.Advance(time.Minute)

	if store.writeCount() != 0 {
		t.Fatal("stop-auto-block must prevent the durable write")
	}
}

func TestStopAutoBlockIPCoversEveryConnection(t *testing.T) {
	gw, store, clock := newTestGateway(t, 5*time.Second)
	a := newFakeConn("s1")
	b := newFakeConn("s2")

	gw.HandleConnect(context.Background(), a, "203.0.113.5", "shop")
	gw.HandleConnect(context.Background(), b, "203.0.113.5", "shop")

	if got := gw.StopAutoBlockIP("203.0.113.5"); got != 2 {
		t.Fatalf("StopAutoBlockIP = %d, want 2", got)
	}

	clock.Advance(time.Minute)
	if store.writeCount() != 0 {
		t.Fatal("suppressed timers still wrote to the store")
	}
}

func TestCountLocalTracksRegistry(t *testing.T) {
	gw, _, _ := newTestGateway(t, 0)
	a := newFakeConn("s1")
	b := newFakeConn("s2")

	gw.HandleConnect(context.Background(), a, "203.0.113.5", "shop")
	gw.HandleConnect(context.Background(), b, "203.0.113.5", "shop")

	if got := gw.CountLocal("shop", "203.0.113.5"); got != 2 {
		t.Fatalf("CountLocal = %d, want 2", got)
	}

	gw.HandleDisconnect("s1")
	if got := gw.CountLocal("shop", "203.0.113.5"); got != 1 {
		t.Fatalf("CountLocal after disconnect = %d, want 1", got)
	}
}
