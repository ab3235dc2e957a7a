package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"cinepos/internal/model"
	"cinepos/internal/receipt"

	"github.com/rs/zerolog/log"
)

// AlertKind selects the audio path the UI should take.
type AlertKind string

const (
	AlertAudio AlertKind = "audio" // play the configured notification clip
	AlertBeeps AlertKind = "beeps" // synthesize the beep pattern
	AlertTitle AlertKind = "title" // silent fallback: flash the tab title
)

// BeepPattern is the synthesized fallback: 8 beeps at 2500 Hz, 150ms on,
// 100ms off.
type BeepPattern struct {
	Count  int `json:"count"`
	FreqHz int `json:"freqHz"`
	OnMs   int `json:"onMs"`
	OffMs  int `json:"offMs"`
}

func defaultBeeps() BeepPattern {
	return BeepPattern{Count: 8, FreqHz: 2500, OnMs: 150, OffMs: 100}
}

// SystemNote carries the system-notification payload; the UI fires it only
// when the operator granted permission.
type SystemNote struct {
	OrderNumber string `json:"orderNumber"`
	Total       string `json:"total"`
}

// Plan tells the UI exactly how to announce one new paid order. The UI
// degrades Audio → Beeps → Title on its own if playback is blocked.
type Plan struct {
	Kind     AlertKind    `json:"kind"`
	AudioURL string       `json:"audioUrl,omitempty"`
	Beeps    *BeepPattern `json:"beeps,omitempty"`
	Title    string       `json:"title,omitempty"`
	TitleMs  int          `json:"titleMs,omitempty"`
	System   *SystemNote  `json:"system,omitempty"`
}

const (
	titleFlashText = "🔔 NEW ORDER!"
	titleFlashMs   = 3000
)

// probeTTL is how long a probe verdict is trusted before a background
// recheck. Announce runs on the engine goroutine and must not pay the
// probe's timeout on every order.
const probeTTL = 5 * time.Minute

// Notifier builds announcement plans for new paid orders.
type Notifier struct {
	audioURL string
	probe    func(url string) bool
	broker   *Broker

	mu       sync.Mutex
	probed   bool
	probing  bool
	audioOK  bool
	probedAt time.Time
}

// NewNotifier wires the notifier; audioURL may be empty.
func NewNotifier(audioURL string, broker *Broker) *Notifier {
	return &Notifier{audioURL: audioURL, probe: probeAudioURL, broker: broker}
}

// WithProbe replaces the audio reachability check (tests).
func (n *Notifier) WithProbe(probe func(string) bool) *Notifier {
	n.mu.Lock()
	n.probe = probe
	n.probed = false
	n.mu.Unlock()
	return n
}

// probeAudioURL checks that the configured clip actually resolves before the
// plan commits to it. Fail-soft: any problem just drops to the synth beeps.
func probeAudioURL(url string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// audioReachable returns the cached probe verdict. The very first call pays
// for one synchronous probe; after that a stale verdict is reused while a
// background goroutine refreshes it.
func (n *Notifier) audioReachable() bool {
	n.mu.Lock()
	if n.probed {
		ok := n.audioOK
		if time.Since(n.probedAt) >= probeTTL && !n.probing {
			n.probing = true
			go n.refreshProbe()
		}
		n.mu.Unlock()
		return ok
	}
	probe := n.probe
	n.mu.Unlock()

	ok := probe(n.audioURL)
	n.mu.Lock()
	n.probed, n.audioOK, n.probedAt = true, ok, time.Now()
	n.mu.Unlock()
	return ok
}

func (n *Notifier) refreshProbe() {
	n.mu.Lock()
	probe := n.probe
	n.mu.Unlock()
	ok := probe(n.audioURL)
	n.mu.Lock()
	n.audioOK, n.probedAt, n.probing = ok, time.Now(), false
	n.mu.Unlock()
}

// BuildPlan picks the best available alert path for the order.
func (n *Notifier) BuildPlan(o model.NormalizedOrder) Plan {
	plan := Plan{
		Title:   titleFlashText,
		TitleMs: titleFlashMs,
		System: &SystemNote{
			OrderNumber: o.Identity.String(),
			Total:       receipt.FormatAmount(o.Total),
		},
	}

	switch {
	case n.audioURL != "" && n.audioReachable():
		plan.Kind = AlertAudio
		plan.AudioURL = n.audioURL
		beeps := defaultBeeps()
		plan.Beeps = &beeps // UI falls back here if playback is denied
	case n.audioURL != "":
		log.Debug().Str("url", n.audioURL).Msg("notify: audio url unreachable, using synth beeps")
		fallthrough
	default:
		plan.Kind = AlertBeeps
		beeps := defaultBeeps()
		plan.Beeps = &beeps
	}
	return plan
}

// Announce publishes the beep event for a new paid order.
func (n *Notifier) Announce(o model.NormalizedOrder) {
	plan := n.BuildPlan(o)
	n.broker.Publish(Event{Type: EventBeep, Data: plan})
	log.Info().Str("order", o.Identity.String()).Str("alert", string(plan.Kind)).
		Msg("notify: new paid order announced")
}
