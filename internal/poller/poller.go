// Package poller keeps a fresh order snapshot flowing to the engine: a
// fixed-interval background refresh, plus on-demand kicks when a push event
// or window change needs the list sooner.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cinepos/internal/infra"
	"cinepos/internal/model"
	"cinepos/internal/reconcile"
)

// Fetcher is the order-API surface the poller consumes.
type Fetcher interface {
	FetchOrders(ctx context.Context, theaterID string, w model.DateWindow) (*infra.FetchResult, error)
}

// Result is one refresh outcome. On error the snapshot is zero and the
// consumer keeps whatever it was already showing.
type Result struct {
	Snapshot reconcile.Snapshot
	Err      error
}

type Poller struct {
	theaterID string
	fetcher   Fetcher
	cb        *infra.CircuitBreaker
	interval  time.Duration

	kick chan struct{}
	out  chan Result

	mu       sync.Mutex
	window   model.DateWindow
	paused   bool
	cancelIn context.CancelFunc
}

func New(theaterID string, f Fetcher, cb *infra.CircuitBreaker, interval time.Duration, window model.DateWindow) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		theaterID: theaterID,
		fetcher:   f,
		cb:        cb,
		interval:  interval,
		kick:      make(chan struct{}, 1),
		out:       make(chan Result, 4),
		window:    window,
	}
}

// Results delivers refresh outcomes in the order they complete.
func (p *Poller) Results() <-chan Result { return p.out }

// Run blocks until ctx is done, refreshing once immediately and then on
// every tick or kick. Refreshes are serialized; a kick during a refresh
// coalesces into at most one follow-up.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refresh(ctx)
		case <-p.kick:
			p.refresh(ctx)
		}
	}
}

// ForceRefresh cancels any in-flight fetch and schedules an immediate one.
func (p *Poller) ForceRefresh() {
	p.mu.Lock()
	if p.cancelIn != nil {
		p.cancelIn()
	}
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// SetWindow switches the viewed date window. The in-flight fetch for the old
// window is cancelled so its stale result never reaches the engine.
func (p *Poller) SetWindow(w model.DateWindow) {
	p.mu.Lock()
	p.window = w
	if p.cancelIn != nil {
		p.cancelIn()
	}
	p.mu.Unlock()
	p.ForceRefresh()
}

func (p *Poller) Window() model.DateWindow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// Pause stops the refresh work while ticks keep arriving. Mirrors the
// operator minimizing the terminal.
func (p *Poller) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
}

// Resume re-enables refreshing and kicks one off right away.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	p.ForceRefresh()
}

func (p *Poller) refresh(ctx context.Context) {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	window := p.window
	fctx, cancel := context.WithCancel(ctx)
	p.cancelIn = cancel
	p.mu.Unlock()
	defer cancel()

	var fr *infra.FetchResult
	err := p.cb.Execute(func() error {
		var ferr error
		fr, ferr = p.fetcher.FetchOrders(fctx, p.theaterID, window)
		return ferr
	})
	if err != nil {
		if fctx.Err() != nil {
			return // cancelled by a newer trigger, stay quiet
		}
		log.Warn().Err(err).Str("state", p.cb.State().String()).Msg("poller: refresh failed")
		p.emit(Result{Err: err})
		return
	}

	// Drop the result if the window moved while we were fetching.
	p.mu.Lock()
	stale := window != p.window
	p.mu.Unlock()
	if stale {
		return
	}
	p.emit(Result{Snapshot: BuildSnapshot(fr.Orders, fr.Summary)})
}

func (p *Poller) emit(r Result) {
	select {
	case p.out <- r:
	default:
		log.Warn().Msg("poller: result channel full, dropping refresh")
	}
}

// BuildSnapshot normalizes the raw fetch into the engine's view: paid orders
// only, one entry per identity keeping the freshest revision, newest first.
func BuildSnapshot(raw []model.Order, summary *model.Summary) reconcile.Snapshot {
	byForm := make(map[string]int)
	var orders []model.NormalizedOrder
	for _, r := range raw {
		o := model.Normalize(r)
		if !o.Paid() {
			continue
		}
		if idx, dup := dupIndex(byForm, o.Identity); dup {
			merged := orders[idx].Identity.Merge(o.Identity)
			if o.UpdatedAt.After(orders[idx].UpdatedAt) {
				orders[idx] = o
			}
			// Register every alias form of the merged record, so a later
			// record carrying only the other form still lands here.
			orders[idx].Identity = merged
			for _, f := range merged.Forms() {
				byForm[f] = idx
			}
			continue
		}
		for _, f := range o.Identity.Forms() {
			byForm[f] = len(orders)
		}
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	var s model.Summary
	if summary != nil {
		s = *summary
	} else {
		s = model.DeriveSummary(orders)
	}
	return reconcile.Snapshot{Orders: orders, Summary: s}
}

func dupIndex(byForm map[string]int, id model.Identity) (int, bool) {
	for _, f := range id.Forms() {
		if idx, ok := byForm[f]; ok {
			return idx, true
		}
	}
	return -1, false
}
