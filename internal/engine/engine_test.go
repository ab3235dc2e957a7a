package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinepos/internal/clock"
	"cinepos/internal/infra"
	"cinepos/internal/model"
	"cinepos/internal/notify"
	"cinepos/internal/poller"
	"cinepos/internal/reconcile"
	"cinepos/internal/store"
)

var now = time.Date(2025, 3, 14, 12, 0, 0, 0, time.Local)

type fakeRefresher struct {
	mu        sync.Mutex
	results   chan poller.Result
	refreshes int
	windows   []model.DateWindow
	paused    bool
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{results: make(chan poller.Result, 8)}
}

func (f *fakeRefresher) Results() <-chan poller.Result { return f.results }

func (f *fakeRefresher) ForceRefresh() {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
}

func (f *fakeRefresher) SetWindow(w model.DateWindow) {
	f.mu.Lock()
	f.windows = append(f.windows, w)
	f.mu.Unlock()
}

func (f *fakeRefresher) Pause() {
	f.mu.Lock()
	f.paused = true
	f.mu.Unlock()
}

func (f *fakeRefresher) Resume() {
	f.mu.Lock()
	f.paused = false
	f.mu.Unlock()
}

func (f *fakeRefresher) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type fakeDispatcher struct {
	mu      sync.Mutex
	orders  []model.NormalizedOrder
	err     error
	delay   time.Duration
	active  int
	overlap bool
}

func (d *fakeDispatcher) Dispatch(_ context.Context, o model.NormalizedOrder) error {
	d.mu.Lock()
	d.active++
	if d.active > 1 {
		d.overlap = true
	}
	delay, err := d.delay, d.err
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	d.active--
	d.orders = append(d.orders, o)
	d.mu.Unlock()
	return err
}

func (d *fakeDispatcher) overlapped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlap
}

func (d *fakeDispatcher) dispatched() []model.NormalizedOrder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.NormalizedOrder(nil), d.orders...)
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) collect(ch <-chan notify.Event) {
	for e := range ch {
		l.mu.Lock()
		l.events = append(l.events, e)
		l.mu.Unlock()
	}
}

func (l *eventLog) find(typ string) (notify.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == typ {
			return e, true
		}
	}
	return notify.Event{}, false
}

func (l *eventLog) count(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	engine    *Engine
	refresher *fakeRefresher
	disp      *fakeDispatcher
	session   *store.SessionState
	cache     *store.OrderCache
	events    *eventLog
}

func newHarness(t *testing.T, window model.DateWindow) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	broker := notify.NewBroker()
	ch, unsub := broker.Subscribe()
	events := &eventLog{}
	go events.collect(ch)
	t.Cleanup(unsub)

	session := store.NewSessionState()
	cache := store.NewOrderCache(rdb)
	refresher := newFakeRefresher()
	disp := &fakeDispatcher{}
	notifier := notify.NewNotifier("", broker)
	flasher := notify.NewFlasher(clock.Real{}, broker)

	e := New("thr-1", session, cache, refresher, disp, notifier, flasher, broker, clock.NewFake(now), window)
	return &harness{engine: e, refresher: refresher, disp: disp, session: session, cache: cache, events: events}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go h.engine.Run(ctx)
	t.Cleanup(cancel)
}

func startedHarness(t *testing.T, window model.DateWindow) *harness {
	t.Helper()
	h := newHarness(t, window)
	h.start(t)
	return h
}

func paid(id, number string, createdAgo time.Duration) model.NormalizedOrder {
	return model.NormalizedOrder{
		Identity:      model.NewIdentity(id, number),
		Status:        "confirmed",
		PaymentStatus: "paid",
		CreatedAt:     now.Add(-createdAgo),
		UpdatedAt:     now.Add(-createdAgo),
	}
}

func (h *harness) push(snap reconcile.Snapshot) {
	h.refresher.results <- poller.Result{Snapshot: snap}
}

func (h *harness) waitSummaries(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.events.count(notify.EventSummary) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWarmStartAlertsOnlyForUnseenOrder(t *testing.T) {
	win := model.Day(now)
	a := paid("a1", "ORD-1", 2*time.Hour)
	b := paid("a2", "ORD-2", time.Hour)

	h := newHarness(t, win)
	require.NoError(t, h.cache.Save(context.Background(), "thr-1", win,
		store.Snapshot{Orders: []model.NormalizedOrder{a, b}, SavedAt: now}))
	h.start(t)

	// warm start publishes the cached view with no alerts
	h.waitSummaries(t, 1)
	assert.Zero(t, h.events.count(notify.EventBeep))
	assert.Len(t, h.engine.Snapshot().Orders, 2)

	// the first refresh is not a bootstrap: the unseen order alerts
	c := paid("a3", "ORD-3", 30*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{c, b, a}})
	h.waitSummaries(t, 2)

	require.Eventually(t, func() bool { return len(h.disp.dispatched()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.events.count(notify.EventBeep))
	assert.Equal(t, c.Identity, h.disp.dispatched()[0].Identity)
}

func TestNewOrderAfterSeedAlertsExactlyOnce(t *testing.T) {
	win := model.Day(now)
	h := startedHarness(t, win)

	a := paid("a1", "ORD-1", 2*time.Hour)
	b := paid("a2", "ORD-2", time.Hour)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{b, a}})
	h.waitSummaries(t, 1)
	assert.Zero(t, h.events.count(notify.EventBeep), "bootstrap must stay silent")

	c := paid("a3", "ORD-3", 30*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{c, b, a}})
	h.waitSummaries(t, 2)

	require.Eventually(t, func() bool { return len(h.disp.dispatched()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.events.count(notify.EventBeep))
	assert.Equal(t, 1, h.events.count(notify.EventFlash))
	assert.Equal(t, c.Identity, h.disp.dispatched()[0].Identity)

	// the same snapshot again earns nothing new
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{c, b, a}})
	h.waitSummaries(t, 3)
	assert.Equal(t, 1, h.events.count(notify.EventBeep))
	assert.Len(t, h.disp.dispatched(), 1)
}

func TestOverlappingDeliveriesOfSameOrderCoalesce(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	ev := model.PushEvent{OrderID: "a42", OrderNumber: "ORD-42", PaymentStatus: "paid"}
	h.engine.HandlePush(ev)
	h.engine.HandlePush(ev)
	require.Eventually(t, func() bool { return h.refresher.refreshCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	o := paid("a42", "ORD-42", 5*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.waitSummaries(t, 3)

	assert.Equal(t, 1, h.events.count(notify.EventBeep))
	require.Eventually(t, func() bool { return len(h.disp.dispatched()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHistoricalWindowStaysSilent(t *testing.T) {
	yesterday := model.Day(now.AddDate(0, 0, -1))
	h := startedHarness(t, yesterday)
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	o := paid("a1", "ORD-1", 10*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.waitSummaries(t, 2)

	assert.Zero(t, h.events.count(notify.EventBeep))
	assert.Empty(t, h.disp.dispatched())
	assert.True(t, h.session.HasBeeped(o.Identity), "alert debt is recorded for the return to today")
}

func TestPushWhileViewingHistoryMarksBeeped(t *testing.T) {
	yesterday := model.Day(now.AddDate(0, 0, -1))
	h := startedHarness(t, yesterday)
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	h.engine.HandlePush(model.PushEvent{OrderID: "a9", OrderNumber: "ORD-9", PaymentStatus: "paid"})
	require.Eventually(t, func() bool { return h.refresher.refreshCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return h.session.HasBeeped(model.NewIdentity("a9", "ORD-9"))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNegativePushRefreshesWithoutMarking(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	h.engine.HandlePush(model.PushEvent{OrderID: "a1", OrderNumber: "ORD-1", PaymentStatus: "refunded"})
	require.Eventually(t, func() bool { return h.refresher.refreshCount() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, h.session.HasBeeped(model.NewIdentity("a1", "ORD-1")))
}

func TestFailedPrintDoesNotReBeep(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.disp.err = errors.New("bridge unreachable")
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	o := paid("a1", "ORD-1", 10*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.waitSummaries(t, 2)
	require.Eventually(t, func() bool { return len(h.disp.dispatched()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.events.count(notify.EventBeep))

	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.waitSummaries(t, 3)
	assert.Equal(t, 1, h.events.count(notify.EventBeep))
	assert.Len(t, h.disp.dispatched(), 1)
}

func TestPrintsOfDifferentOrdersDoNotOverlap(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.disp.delay = 10 * time.Millisecond
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{
		paid("a1", "ORD-1", 30*time.Second),
		paid("a2", "ORD-2", 20*time.Second),
		paid("a3", "ORD-3", 10*time.Second),
	}})

	require.Eventually(t, func() bool { return len(h.disp.dispatched()) == 3 }, 2*time.Second, 5*time.Millisecond)
	// One worker drains the queue, so bill and ticket frames of different
	// orders never interleave on the printer.
	assert.False(t, h.disp.overlapped())
	got := h.disp.dispatched()
	assert.Equal(t, "ORD-1", got[0].Identity.Number)
	assert.Equal(t, "ORD-3", got[2].Identity.Number)
}

func TestFailedDispatchPublishesPrintError(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.disp.err = errors.New("bridge gone")
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{paid("a1", "ORD-1", 10*time.Second)}})
	require.Eventually(t, func() bool {
		return h.events.count(notify.EventPrintError) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ev, ok := h.events.find(notify.EventPrintError)
	require.True(t, ok)
	pe, ok := ev.Data.(notify.PrintError)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", pe.Order)
	assert.Equal(t, "bridge", pe.Kind)
	assert.Equal(t, "bridge gone", pe.Error)
}

func TestCommandsReturnAfterShutdown(t *testing.T) {
	h := newHarness(t, model.Day(now))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.engine.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	finished := make(chan struct{})
	go func() {
		h.engine.Pause()
		h.engine.Resume()
		h.engine.SetWindow(context.Background(), model.Day(now.AddDate(0, 0, -1)))
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("engine commands blocked after shutdown")
	}

	err := h.engine.Reprint(context.Background(), model.NewIdentity("x", "x"))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestFailedRefreshRetainsOrders(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	a := paid("a1", "ORD-1", 30*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{a}, Summary: model.Summary{TotalOrders: 1}})
	h.waitSummaries(t, 1)
	require.Len(t, h.engine.Snapshot().Orders, 1)

	// A failed fetch is consumed before the next snapshot on the same channel,
	// and must leave the previous state in place rather than blanking it.
	h.refresher.results <- poller.Result{Err: infra.ErrNetworkUnavailable}
	b := paid("b2", "ORD-2", 5*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{b, a}, Summary: model.Summary{TotalOrders: 2}})
	h.waitSummaries(t, 2)

	assert.Len(t, h.engine.Snapshot().Orders, 2)
	assert.Equal(t, 2, h.events.count(notify.EventBeep))
	require.Eventually(t, func() bool { return len(h.disp.dispatched()) == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestSetWindowClearsFlashesAndRebinds(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	o := paid("a1", "ORD-1", 10*time.Second)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.waitSummaries(t, 2)
	require.Eventually(t, func() bool { return h.events.count(notify.EventFlash) == 1 }, 2*time.Second, 5*time.Millisecond)

	yesterday := model.Day(now.AddDate(0, 0, -1))
	h.engine.SetWindow(context.Background(), yesterday)

	assert.Eventually(t, func() bool {
		return h.events.count(notify.EventFlashCleared) == 1
	}, 2*time.Second, 5*time.Millisecond)
	h.refresher.mu.Lock()
	windows := append([]model.DateWindow(nil), h.refresher.windows...)
	h.refresher.mu.Unlock()
	require.Len(t, windows, 1)
	assert.Equal(t, yesterday, windows[0])
	assert.Equal(t, yesterday, h.engine.Snapshot().Window)
}

func TestSetWindowWarmStartsFromCache(t *testing.T) {
	win := model.Day(now)
	yesterday := model.Day(now.AddDate(0, 0, -1))
	h := startedHarness(t, win)
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	old := paid("a7", "ORD-7", 26*time.Hour)
	require.NoError(t, h.cache.Save(context.Background(), "thr-1", yesterday,
		store.Snapshot{Orders: []model.NormalizedOrder{old}, SavedAt: now}))

	h.engine.SetWindow(context.Background(), yesterday)
	v := h.engine.Snapshot()
	require.Len(t, v.Orders, 1)
	assert.Equal(t, old.Identity, v.Orders[0].Identity)
}

func TestPauseAndResume(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.engine.Pause()
	assert.True(t, h.engine.Snapshot().Paused)
	h.refresher.mu.Lock()
	assert.True(t, h.refresher.paused)
	h.refresher.mu.Unlock()

	h.engine.Resume()
	assert.False(t, h.engine.Snapshot().Paused)
}

func TestReprint(t *testing.T) {
	h := startedHarness(t, model.Day(now))
	h.push(reconcile.Snapshot{})
	h.waitSummaries(t, 1)

	o := paid("a1", "ORD-1", time.Hour)
	// already beeped at bootstrap time: use a fresh snapshot where the
	// order is new but the session has it marked, so no print fires
	h.session.RecordBeep(o.Identity)
	h.push(reconcile.Snapshot{Orders: []model.NormalizedOrder{o}})
	h.waitSummaries(t, 2)
	require.Empty(t, h.disp.dispatched())

	require.NoError(t, h.engine.Reprint(context.Background(), model.NewIdentity("", "ORD-1")))
	require.Len(t, h.disp.dispatched(), 1)

	assert.ErrorIs(t, h.engine.Reprint(context.Background(), model.NewIdentity("zz", "")), ErrOrderNotFound)
}
