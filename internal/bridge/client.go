// Package bridge maintains the long-lived WebSocket connection to the local
// print bridge and exposes printer listing and print-job submission.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinepos/internal/clock"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "disconnected"
	}
}

// Conn is the slice of *websocket.Conn the client uses; tests inject fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
	Close() error
}

// Dialer opens a bridge connection. The default wraps gorilla/websocket.
type Dialer func(ctx context.Context, url string) (Conn, error)

func gorillaDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// AutoConnectStore persists the auto-connect preference across restarts.
type AutoConnectStore interface {
	SetAutoConnect(ctx context.Context) error
	ClearAutoConnect(ctx context.Context) error
}

// Config holds the bridge connection tunables.
type Config struct {
	URL            string
	ConnectTimeout time.Duration // default 5s
	ReconnectDelay time.Duration // default 3s
	MaxReconnects  int           // default 5
	ProbeDelay     time.Duration // post-send liveness probe, default 500ms
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.ProbeDelay <= 0 {
		c.ProbeDelay = 500 * time.Millisecond
	}
}

// Client is the print-bridge connection. One per process; the bridge itself
// is a machine-wide singleton, so multiple agents would race for printers.
type Client struct {
	cfg   Config
	dial  Dialer
	clk   clock.Clock
	prefs AutoConnectStore

	mu        sync.Mutex
	state     State
	conn      Conn
	manual    bool
	attempts  int
	printers  []string
	primary   string
	mobile    string
	listCh    chan []string
	onState   func(State)
	onDropped func()
}

// Option mutates the client at construction.
type Option func(*Client)

// WithDialer replaces the websocket dialer (tests).
func WithDialer(d Dialer) Option { return func(c *Client) { c.dial = d } }

// WithClock replaces the clock (tests).
func WithClock(clk clock.Clock) Option { return func(c *Client) { c.clk = clk } }

// OnStateChange registers a state listener (SSE surface).
func OnStateChange(fn func(State)) Option { return func(c *Client) { c.onState = fn } }

// OnConnectionDropped registers a listener fired on unexpected close, so the
// engine can release pending dispatch reservations.
func OnConnectionDropped(fn func()) Option { return func(c *Client) { c.onDropped = fn } }

func NewClient(cfg Config, prefs AutoConnectStore, opts ...Option) *Client {
	cfg.applyDefaults()
	c := &Client{
		cfg:   cfg,
		dial:  gorillaDialer,
		clk:   clock.Real{},
		prefs: prefs,
		state: Disconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Printers returns the last printer list received from the bridge.
func (c *Client) Printers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.printers...)
}

// Primary returns the classified Primary/POS printer.
func (c *Client) Primary() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary
}

// Mobile returns the classified Mobile/online printer.
func (c *Client) Mobile() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mobile
}

func (c *Client) setState(s State) {
	c.state = s
	if c.onState != nil {
		go c.onState(s)
	}
}

// Connect dials the bridge, fetches and classifies the printer list, and
// persists the auto-connect preference. Times out after ConnectTimeout.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Open || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	c.manual = false
	c.setState(Connecting)
	c.listCh = make(chan []string, 1)
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, c.cfg.URL)
	if err != nil {
		c.mu.Lock()
		c.setState(Disconnected)
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.setState(Open)
	c.mu.Unlock()

	go c.readLoop(conn)

	if err := c.RefreshPrinters(ctx); err != nil {
		log.Warn().Err(err).Msg("bridge: printer list fetch failed")
	}

	if c.prefs != nil {
		if err := c.prefs.SetAutoConnect(ctx); err != nil {
			log.Warn().Err(err).Msg("bridge: failed to persist auto-connect preference")
		}
	}
	log.Info().Str("url", c.cfg.URL).Msg("bridge: connected")
	return nil
}

// Disconnect closes the connection on operator request, suppresses
// reconnection, and clears the auto-connect preference.
func (c *Client) Disconnect(ctx context.Context) {
	c.mu.Lock()
	c.manual = true
	conn := c.conn
	if c.state == Open || c.state == Connecting {
		c.setState(Closing)
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if c.prefs != nil {
		if err := c.prefs.ClearAutoConnect(ctx); err != nil {
			log.Warn().Err(err).Msg("bridge: failed to clear auto-connect preference")
		}
	}

	c.mu.Lock()
	c.conn = nil
	c.setState(Disconnected)
	c.mu.Unlock()
	log.Info().Msg("bridge: disconnected by operator")
}

// RefreshPrinters requests the printer list and re-classifies roles.
func (c *Client) RefreshPrinters(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	listCh := c.listCh
	open := c.state == Open
	c.mu.Unlock()

	if !open || conn == nil {
		return ErrNotOpen
	}
	if err := conn.WriteJSON(Frame{Action: ActionAllPrinters, Payload: ""}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotOpen, err)
	}

	select {
	case names := <-listCh:
		primary, mobile := ClassifyPrinters(names)
		c.mu.Lock()
		c.printers = names
		c.primary = primary
		c.mobile = mobile
		c.mu.Unlock()
		log.Info().Strs("printers", names).Str("primary", primary).Str("mobile", mobile).
			Msg("bridge: printers classified")
		return nil
	case <-c.clk.After(c.cfg.ConnectTimeout):
		return fmt.Errorf("%w: printer list timed out", ErrUnreachable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop(conn Conn) {
	for {
		var r reply
		if err := conn.ReadJSON(&r); err != nil {
			c.handleClose(conn, err)
			return
		}
		if names, ok := r.printerList(); ok {
			c.mu.Lock()
			listCh := c.listCh
			c.mu.Unlock()
			select {
			case listCh <- names:
			default:
			}
		}
	}
}

func (c *Client) handleClose(conn Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A newer connection replaced this one; stale loop exits quietly.
		c.mu.Unlock()
		return
	}
	manual := c.manual || c.state == Closing
	c.conn = nil
	c.setState(Disconnected)
	c.mu.Unlock()

	if c.onDropped != nil {
		c.onDropped()
	}
	if manual {
		return
	}

	log.Warn().Err(err).Msg("bridge: connection lost")
	go c.reconnectLoop()
}

// reconnectLoop retries the connection after a fixed delay until it opens,
// the cap is hit, or the operator disconnects. A successful open resets the
// attempt counter, so the cap applies per outage.
func (c *Client) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.manual || c.state != Disconnected {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.cfg.MaxReconnects {
			attempts := c.attempts
			c.mu.Unlock()
			log.Error().Int("attempts", attempts).Msg("bridge: reconnect attempts exhausted")
			return
		}
		c.attempts++
		c.mu.Unlock()

		<-c.clk.After(c.cfg.ReconnectDelay)
		if err := c.Connect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("bridge: reconnect failed")
			continue
		}
		return
	}
}

// send writes a frame and probes the connection shortly afterwards. The
// bridge never acks print jobs, so the probe is the only delivery signal.
func (c *Client) send(f Frame) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == Open
	c.mu.Unlock()

	if !open || conn == nil {
		return ErrNotOpen
	}
	if err := conn.WriteJSON(f); err != nil {
		return fmt.Errorf("%w: %v", ErrNotOpen, err)
	}

	<-c.clk.After(c.cfg.ProbeDelay)
	if c.State() != Open {
		return ErrClosedMidSend
	}
	return nil
}

// PrintBase64 submits a base-64 PDF print job. The virtual-printer guard
// runs before any frame is written.
func (c *Client) PrintBase64(printer, payload string) error {
	if IsVirtualPrinter(printer) {
		return fmt.Errorf("%w: %s", ErrVirtualPrinter, printer)
	}
	return c.send(Frame{Action: ActionPrintBase64, Printer: printer, Payload: payload})
}

// PrintText submits a plain-text job (text-mode bridges).
func (c *Client) PrintText(printer, payload string) error {
	if IsVirtualPrinter(printer) {
		return fmt.Errorf("%w: %s", ErrVirtualPrinter, printer)
	}
	return c.send(Frame{Action: ActionPrintText, Printer: printer, Payload: payload})
}

// PrintHTML submits an HTML job.
func (c *Client) PrintHTML(printer, payload string) error {
	if IsVirtualPrinter(printer) {
		return fmt.Errorf("%w: %s", ErrVirtualPrinter, printer)
	}
	return c.send(Frame{Action: ActionPrintHTML, Printer: printer, Payload: payload})
}
