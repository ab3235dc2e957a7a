// Package notify decides how each new paid order is announced and fans the
// resulting events out to attached operator UIs.
package notify

import "sync"

// Event is one message on the operator event stream.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Event types on the stream.
const (
	EventBeep         = "beep"
	EventFlash        = "flash"
	EventFlashExpired = "flash-expired"
	EventFlashCleared = "flash-cleared"
	EventBridgeState  = "bridge-state"
	EventSummary      = "summary"
	EventPrintError   = "print-error"
)

// PrintError reports a failed automatic print dispatch so the UI can show a
// non-blocking indicator with a reprint affordance. Kind is one of
// "virtual-printer", "no-printer" or "bridge".
type PrintError struct {
	Order string `json:"order"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// Broker fans events out to every subscribed UI. Slow subscribers drop
// events rather than block the engine.
type Broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

// Subscribe returns an event channel and its cancel function.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Broker) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
