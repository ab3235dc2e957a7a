package notify

import (
	"sync"
	"time"

	"cinepos/internal/clock"
	"cinepos/internal/model"
)

// flashTTL is how long a new order stays visually marked in the UI.
const flashTTL = 5 * time.Second

// Flasher tracks which order identities are currently flashing. Both alias
// forms are exposed so the UI can match whichever form its row carries.
type Flasher struct {
	mu     sync.Mutex
	gen    map[string]uint64 // form → generation, guards stale expiries
	seq    uint64
	clk    clock.Clock
	broker *Broker
}

func NewFlasher(clk clock.Clock, broker *Broker) *Flasher {
	return &Flasher{gen: make(map[string]uint64), clk: clk, broker: broker}
}

// Mark starts a 5s flash for the identity.
func (f *Flasher) Mark(id model.Identity) {
	forms := id.Forms()
	if len(forms) == 0 {
		return
	}

	f.mu.Lock()
	f.seq++
	gen := f.seq
	for _, form := range forms {
		f.gen[form] = gen
	}
	f.mu.Unlock()

	f.broker.Publish(Event{Type: EventFlash, Data: forms})

	go func() {
		<-f.clk.After(flashTTL)
		f.expire(forms, gen)
	}()
}

func (f *Flasher) expire(forms []string, gen uint64) {
	f.mu.Lock()
	expired := false
	for _, form := range forms {
		if f.gen[form] == gen {
			delete(f.gen, form)
			expired = true
		}
	}
	f.mu.Unlock()

	if expired {
		f.broker.Publish(Event{Type: EventFlashExpired, Data: forms})
	}
}

// Active returns every currently flashing identity form.
func (f *Flasher) Active() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	forms := make([]string, 0, len(f.gen))
	for form := range f.gen {
		forms = append(forms, form)
	}
	return forms
}

// IsFlashing reports whether any form of the identity is marked.
func (f *Flasher) IsFlashing(id model.Identity) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, form := range id.Forms() {
		if _, ok := f.gen[form]; ok {
			return true
		}
	}
	return false
}

// Clear drops every pending flash. Called when the operator changes the
// theater or date window.
func (f *Flasher) Clear() {
	f.mu.Lock()
	had := len(f.gen) > 0
	f.gen = make(map[string]uint64)
	f.mu.Unlock()

	if had {
		f.broker.Publish(Event{Type: EventFlashCleared})
	}
}
