// Package reconcile decides which freshly fetched orders are genuinely new
// paid orders and what side effects they earn. The reducer owns no IO; the
// engine interprets the returned effects.
package reconcile

import (
	"sort"
	"time"

	"cinepos/internal/model"
)

// BeepSet is the already-notified ledger (both identity forms count).
type BeepSet interface {
	HasBeeped(model.Identity) bool
	RecordBeep(model.Identity)
}

// Snapshot is one successfully fetched, normalized, paid-only order list,
// sorted by creation time descending.
type Snapshot struct {
	Orders  []model.NormalizedOrder
	Summary model.Summary
}

// State is the reconciler's view of the world for one (theater, window).
type State struct {
	Bootstrapped bool
	LastSeen     []model.NormalizedOrder
	Summary      model.Summary
	Window       model.DateWindow
}

// EffectKind enumerates the side effects the engine can be asked to run.
type EffectKind int

const (
	EffectAnnounce EffectKind = iota // audible alert
	EffectFlash                      // 5s visual marker
	EffectPrint                      // overall bill (+ category tickets)
	EffectSaveCache                  // persist LastSeen to the durable cache
	EffectClearFlash                 // drop pending flashes (historical view)
)

// Effect is one requested side effect. Order is set for the per-order kinds.
type Effect struct {
	Kind  EffectKind
	Order model.NormalizedOrder
}

// recentGrace is the bootstrap window: paid+confirmed orders this fresh were
// probably placed while the operator was away, so they are swallowed rather
// than replayed as alerts.
const recentGrace = 5 * time.Minute

// SeedFromCache warm-starts the state from a durable cache snapshot. The
// next reconciliation is non-bootstrap, so orders the cache has not seen yet
// do fire effects.
func SeedFromCache(st State, orders []model.NormalizedOrder, summary model.Summary) State {
	st.LastSeen = orders
	st.Summary = summary
	st.Bootstrapped = true
	return st
}

// Reconcile folds a snapshot into the state and emits the effects earned by
// genuinely new paid orders. Beep marking happens before any effect is
// returned, so an overlapping push delivery of the same order is a no-op.
func Reconcile(st State, beeped BeepSet, snap Snapshot, now time.Time) (State, []Effect) {
	if !st.Bootstrapped {
		for _, o := range snap.Orders {
			if recentlyConfirmed(o, now) {
				beeped.RecordBeep(o.Identity)
			}
		}
		st.Bootstrapped = true
		st.LastSeen = snap.Orders
		st.Summary = snap.Summary
		return st, []Effect{{Kind: EffectSaveCache}}
	}

	var fresh []model.NormalizedOrder
	for _, o := range snap.Orders {
		if !o.Paid() {
			continue
		}
		if seen(st.LastSeen, o.Identity) {
			continue
		}
		if i := freshIndex(fresh, o.Identity); i >= 0 {
			// Same order already collected under another alias form; keep
			// one entry but remember both forms.
			fresh[i].Identity = fresh[i].Identity.Merge(o.Identity)
			beeped.RecordBeep(fresh[i].Identity)
			continue
		}
		if beeped.HasBeeped(o.Identity) {
			// Announced in an earlier pass under one alias form; register
			// the other form too so single-form deliveries stay quiet.
			beeped.RecordBeep(o.Identity)
			continue
		}
		// Mark before collecting, so an aliased entry later in this same
		// snapshot cannot earn a second beep.
		beeped.RecordBeep(o.Identity)
		fresh = append(fresh, o)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
	})

	st.LastSeen = snap.Orders
	st.Summary = snap.Summary

	var effects []Effect
	if st.Window.IncludesToday(now) {
		for _, o := range fresh {
			effects = append(effects,
				Effect{Kind: EffectAnnounce, Order: o},
				Effect{Kind: EffectFlash, Order: o},
				Effect{Kind: EffectPrint, Order: o},
			)
		}
	} else {
		// Historical view: state advances, side effects stay suppressed.
		effects = append(effects, Effect{Kind: EffectClearFlash})
	}
	effects = append(effects, Effect{Kind: EffectSaveCache})
	return st, effects
}

func freshIndex(orders []model.NormalizedOrder, id model.Identity) int {
	for i := range orders {
		if orders[i].Identity.Matches(id) {
			return i
		}
	}
	return -1
}

func seen(orders []model.NormalizedOrder, id model.Identity) bool {
	for _, o := range orders {
		if o.Identity.Matches(id) {
			return true
		}
	}
	return false
}

func recentlyConfirmed(o model.NormalizedOrder, now time.Time) bool {
	if !o.Paid() || o.Status != "confirmed" {
		return false
	}
	if now.Sub(o.CreatedAt) <= recentGrace {
		return true
	}
	return o.ConfirmedAt != nil && now.Sub(*o.ConfirmedAt) <= recentGrace
}
