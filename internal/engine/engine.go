// Package engine runs the order stream loop: poll results and push events
// come in, alerts and print jobs go out. All state transitions happen on one
// goroutine so the dedupe guarantees hold without locking in the reducer.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"cinepos/internal/bridge"
	"cinepos/internal/clock"
	"cinepos/internal/dispatch"
	"cinepos/internal/model"
	"cinepos/internal/notify"
	"cinepos/internal/poller"
	"cinepos/internal/reconcile"
	"cinepos/internal/store"
)

// ErrOrderNotFound is returned by Reprint for an identity outside the
// current snapshot.
var ErrOrderNotFound = errors.New("engine: order not in current snapshot")

// Refresher is the poller surface the engine drives.
type Refresher interface {
	Results() <-chan poller.Result
	ForceRefresh()
	SetWindow(model.DateWindow)
	Pause()
	Resume()
}

// OrderDispatcher prints one order's bill and tickets.
type OrderDispatcher interface {
	Dispatch(ctx context.Context, o model.NormalizedOrder) error
}

// View is the engine's read model, safe for concurrent readers.
type View struct {
	Orders  []model.NormalizedOrder
	Summary model.Summary
	Window  model.DateWindow
	Paused  bool
}

type Engine struct {
	theaterID  string
	session    *store.SessionState
	cache      *store.OrderCache
	refresher  Refresher
	dispatcher OrderDispatcher
	notifier   *notify.Notifier
	flasher    *notify.Flasher
	broker     *notify.Broker
	clk        clock.Clock

	st      reconcile.State
	pushCh  chan model.PushEvent
	cmdCh   chan func()
	printCh chan printJob
	done    chan struct{}

	viewMu sync.RWMutex
	view   View
}

// printJob is one order queued for the print worker. errCh is set for
// operator-driven reprints that want the outcome back.
type printJob struct {
	order model.NormalizedOrder
	errCh chan error
}

func New(theaterID string, session *store.SessionState, cache *store.OrderCache, r Refresher, d OrderDispatcher, n *notify.Notifier, f *notify.Flasher, b *notify.Broker, clk clock.Clock, window model.DateWindow) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{
		theaterID:  theaterID,
		session:    session,
		cache:      cache,
		refresher:  r,
		dispatcher: d,
		notifier:   n,
		flasher:    f,
		broker:     b,
		clk:        clk,
		st:         reconcile.State{Window: window},
		pushCh:     make(chan model.PushEvent, 16),
		cmdCh:      make(chan func()),
		printCh:    make(chan printJob, 32),
		done:       make(chan struct{}),
		view:       View{Window: window},
	}
}

// Run seeds state from the durable cache when a fresh snapshot exists, then
// processes events until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	go e.printLoop(ctx)
	e.warmStart(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-e.refresher.Results():
			e.handleResult(ctx, r)
		case ev := <-e.pushCh:
			e.handlePush(ev)
		case cmd := <-e.cmdCh:
			cmd()
		}
	}
}

// warmStart restores LastSeenOrders from the cache so a restart inside the
// TTL does not replay alerts for orders the previous run already announced.
func (e *Engine) warmStart(ctx context.Context) {
	snap, err := e.cache.Load(ctx, e.theaterID, e.st.Window)
	if err != nil {
		log.Warn().Err(err).Msg("engine: cache load failed, starting cold")
		return
	}
	if snap == nil {
		return
	}
	e.st = reconcile.SeedFromCache(e.st, snap.Orders, snap.Summary)
	for _, o := range snap.Orders {
		e.session.RecordBeep(o.Identity)
	}
	e.publishView()
	log.Info().Int("orders", len(snap.Orders)).Msg("engine: warm start from cache")
}

// HandlePush enqueues a push event without blocking the consumer.
func (e *Engine) HandlePush(ev model.PushEvent) {
	select {
	case e.pushCh <- ev:
	default:
		log.Warn().Msg("engine: push queue full, relying on next poll")
	}
}

func (e *Engine) handlePush(ev model.PushEvent) {
	id := ev.Identity()
	if ev.Negative() {
		// Payment went backwards; refresh quietly so the list corrects.
		log.Info().Str("order", id.String()).Str("status", ev.PaymentStatus).
			Msg("engine: negative push, silent refresh")
		e.refresher.ForceRefresh()
		return
	}
	if !e.st.Window.IncludesToday(e.clk.Now()) {
		// Historical view: remember the alert was owed so returning to
		// today does not replay it.
		e.session.RecordBeep(id)
	}
	e.refresher.ForceRefresh()
}

func (e *Engine) handleResult(ctx context.Context, r poller.Result) {
	if r.Err != nil {
		// Keep showing the previous snapshot; the breaker paces retries.
		return
	}
	var effects []reconcile.Effect
	e.st, effects = reconcile.Reconcile(e.st, e.session, r.Snapshot, e.clk.Now())
	e.publishView()
	e.apply(ctx, effects)
}

func (e *Engine) apply(ctx context.Context, effects []reconcile.Effect) {
	for _, eff := range effects {
		switch eff.Kind {
		case reconcile.EffectAnnounce:
			e.notifier.Announce(eff.Order)
		case reconcile.EffectFlash:
			e.flasher.Mark(eff.Order.Identity)
		case reconcile.EffectPrint:
			e.enqueuePrint(printJob{order: eff.Order})
		case reconcile.EffectSaveCache:
			e.saveCache(ctx)
		case reconcile.EffectClearFlash:
			e.flasher.Clear()
		}
	}
}

// enqueuePrint hands the order to the print worker. Bill and ticket frames
// of different orders must not interleave on the thermal printer, so all
// dispatches funnel through one goroutine.
func (e *Engine) enqueuePrint(j printJob) {
	select {
	case e.printCh <- j:
	default:
		err := errors.New("engine: print queue full")
		log.Error().Str("order", j.order.Identity.String()).Msg(err.Error())
		if j.errCh != nil {
			j.errCh <- err
			return
		}
		e.publishPrintError(j.order, err)
	}
}

func (e *Engine) printLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.printCh:
			err := e.dispatcher.Dispatch(ctx, j.order)
			if j.errCh != nil {
				j.errCh <- err
				continue
			}
			if err != nil {
				log.Error().Err(err).Str("order", j.order.Identity.String()).
					Msg("engine: print dispatch failed")
				e.publishPrintError(j.order, err)
			}
		}
	}
}

// publishPrintError surfaces a failed automatic dispatch on the event
// stream; nothing on the engine side retries, the operator reprints.
func (e *Engine) publishPrintError(o model.NormalizedOrder, err error) {
	e.broker.Publish(notify.Event{Type: notify.EventPrintError, Data: notify.PrintError{
		Order: o.Identity.String(),
		Kind:  printErrorKind(err),
		Error: err.Error(),
	}})
}

func printErrorKind(err error) string {
	switch {
	case errors.Is(err, bridge.ErrVirtualPrinter):
		return "virtual-printer"
	case errors.Is(err, dispatch.ErrNoPrinter):
		return "no-printer"
	default:
		return "bridge"
	}
}

func (e *Engine) saveCache(ctx context.Context) {
	snap := store.Snapshot{Orders: e.st.LastSeen, Summary: e.st.Summary, SavedAt: e.clk.Now()}
	if err := e.cache.Save(ctx, e.theaterID, e.st.Window, snap); err != nil {
		log.Warn().Err(err).Msg("engine: cache save failed")
	}
}

func (e *Engine) publishView() {
	e.viewMu.Lock()
	e.view = View{
		Orders:  e.st.LastSeen,
		Summary: e.st.Summary,
		Window:  e.st.Window,
		Paused:  e.view.Paused,
	}
	e.viewMu.Unlock()
	e.broker.Publish(notify.Event{Type: notify.EventSummary, Data: e.st.Summary})
}

// Snapshot returns the current read model.
func (e *Engine) Snapshot() View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

// do runs fn on the engine goroutine and waits for it. After Run returns
// the call is a no-op rather than a hang.
func (e *Engine) do(fn func()) {
	ran := make(chan struct{})
	select {
	case e.cmdCh <- func() { fn(); close(ran) }:
		<-ran
	case <-e.done:
	}
}

// SetWindow switches the viewed date window: pending flashes drop, the
// state rebinds to the new cache key, and a refresh is forced. The cache is
// consulted first so flipping back to a recent window starts warm.
func (e *Engine) SetWindow(ctx context.Context, w model.DateWindow) {
	e.do(func() {
		if w == e.st.Window {
			return
		}
		e.flasher.Clear()
		e.st = reconcile.State{Window: w}
		if snap, err := e.cache.Load(ctx, e.theaterID, w); err == nil && snap != nil {
			e.st = reconcile.SeedFromCache(e.st, snap.Orders, snap.Summary)
		}
		e.publishView()
		e.refresher.SetWindow(w)
	})
}

// Pause suspends background refreshing (operator stepped away).
func (e *Engine) Pause() {
	e.do(func() {
		e.refresher.Pause()
		e.setPaused(true)
	})
}

// Resume re-enables refreshing; the immediate refresh catches up on
// anything missed while paused.
func (e *Engine) Resume() {
	e.do(func() {
		e.refresher.Resume()
		e.setPaused(false)
	})
}

func (e *Engine) setPaused(v bool) {
	e.viewMu.Lock()
	e.view.Paused = v
	e.viewMu.Unlock()
}

// Reprint dispatches the bill again for an order in the current snapshot.
func (e *Engine) Reprint(ctx context.Context, id model.Identity) error {
	var target *model.NormalizedOrder
	e.do(func() {
		for i := range e.st.LastSeen {
			if e.st.LastSeen[i].Identity.Matches(id) {
				o := e.st.LastSeen[i]
				target = &o
				return
			}
		}
	})
	if target == nil {
		return ErrOrderNotFound
	}
	// Reprints share the print worker, so they cannot interleave with an
	// automatic dispatch already on the wire.
	errCh := make(chan error, 1)
	e.enqueuePrint(printJob{order: *target, errCh: errCh})
	select {
	case err := <-errCh:
		return err
	case <-e.done:
		return errors.New("engine: stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseDispatches clears in-flight print reservations. Wired to the
// bridge's connection-dropped callback so orders interrupted mid-print can
// be reprinted after reconnecting.
func (e *Engine) ReleaseDispatches() {
	e.session.ReleaseAllDispatches()
}

// Flashing exposes the active flash forms for the initial UI paint.
func (e *Engine) Flashing() []string { return e.flasher.Active() }
