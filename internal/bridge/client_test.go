package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

// fakeConn simulates the bridge end of the socket. It answers all-printers
// with a canned list and can be dropped to simulate a bridge crash.
type fakeConn struct {
	mu       sync.Mutex
	frames   []Frame
	printers []string
	incoming chan json.RawMessage
	closed   bool
}

func newFakeConn(printers []string) *fakeConn {
	return &fakeConn{printers: printers, incoming: make(chan json.RawMessage, 8)}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("write on closed conn")
	}
	frame := v.(Frame)
	f.frames = append(f.frames, frame)
	f.mu.Unlock()

	if frame.Action == ActionAllPrinters {
		payload, _ := json.Marshal(f.printers)
		raw, _ := json.Marshal(map[string]json.RawMessage{"Payload": payload})
		f.incoming <- raw
	}
	return nil
}

func (f *fakeConn) ReadJSON(v interface{}) error {
	raw, ok := <-f.incoming
	if !ok {
		return errors.New("conn closed")
	}
	return json.Unmarshal(raw, v)
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

// drop simulates an unexpected close from the bridge side.
func (f *fakeConn) drop() { _ = f.Close() }

func (f *fakeConn) sentFrames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...)
}

type fakePrefs struct {
	mu   sync.Mutex
	auto bool
}

func (p *fakePrefs) SetAutoConnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auto = true
	return nil
}

func (p *fakePrefs) ClearAutoConnect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auto = false
	return nil
}

func (p *fakePrefs) autoConnect() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auto
}

func testConfig() Config {
	return Config{
		URL:            "ws://localhost:9632",
		ConnectTimeout: time.Second,
		ReconnectDelay: 5 * time.Millisecond,
		MaxReconnects:  3,
		ProbeDelay:     time.Millisecond,
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestConnectFetchesAndClassifiesPrinters(t *testing.T) {
	conn := newFakeConn([]string{"EPSON TM-T82 (POS)", "HP Mobile-58"})
	prefs := &fakePrefs{}
	c := NewClient(testConfig(), prefs, WithDialer(func(context.Context, string) (Conn, error) {
		return conn, nil
	}))

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Open, c.State())
	assert.Equal(t, []string{"EPSON TM-T82 (POS)", "HP Mobile-58"}, c.Printers())
	assert.Equal(t, "EPSON TM-T82 (POS)", c.Primary())
	assert.Equal(t, "HP Mobile-58", c.Mobile())

	// Successful connect persists the auto-connect preference.
	assert.True(t, prefs.autoConnect())
}

func TestConnectUnreachable(t *testing.T) {
	c := NewClient(testConfig(), &fakePrefs{}, WithDialer(func(context.Context, string) (Conn, error) {
		return nil, errors.New("connection refused")
	}))

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, Disconnected, c.State())
}

func TestManualDisconnectClearsPreferenceAndSuppressesReconnect(t *testing.T) {
	conn := newFakeConn([]string{"EPSON"})
	prefs := &fakePrefs{}
	dials := 0
	c := NewClient(testConfig(), prefs, WithDialer(func(context.Context, string) (Conn, error) {
		dials++
		return conn, nil
	}))

	require.NoError(t, c.Connect(context.Background()))
	c.Disconnect(context.Background())

	assert.Equal(t, Disconnected, c.State())
	assert.False(t, prefs.autoConnect())

	// Give any (incorrect) reconnect goroutine time to fire.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dials)
}

func TestUnexpectedCloseTriggersReconnect(t *testing.T) {
	first := newFakeConn([]string{"EPSON"})
	second := newFakeConn([]string{"EPSON"})
	conns := []*fakeConn{first, second}
	dials := 0
	dropped := 0

	c := NewClient(testConfig(), &fakePrefs{},
		WithDialer(func(context.Context, string) (Conn, error) {
			conn := conns[dials%len(conns)]
			dials++
			return conn, nil
		}),
		OnConnectionDropped(func() { dropped++ }),
	)

	require.NoError(t, c.Connect(context.Background()))
	first.drop()

	assert.Eventually(t, func() bool { return c.State() == Open && dials == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, dropped)
}

func TestReconnectAttemptsAreCapped(t *testing.T) {
	conn := newFakeConn([]string{"EPSON"})
	dials := 0
	c := NewClient(testConfig(), &fakePrefs{}, WithDialer(func(context.Context, string) (Conn, error) {
		dials++
		if dials == 1 {
			return conn, nil
		}
		return nil, errors.New("bridge is gone")
	}))

	require.NoError(t, c.Connect(context.Background()))
	conn.drop()

	// 1 initial dial + MaxReconnects reconnect dials, then it stops.
	assert.Eventually(t, func() bool { return dials == 1+c.cfg.MaxReconnects },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1+c.cfg.MaxReconnects, dials)
}

func TestPrintBase64SendsFrame(t *testing.T) {
	conn := newFakeConn([]string{"EPSON"})
	c := NewClient(testConfig(), &fakePrefs{}, WithDialer(func(context.Context, string) (Conn, error) {
		return conn, nil
	}))
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.PrintBase64("EPSON", "JVBERi0xLjQ="))

	frames := conn.sentFrames()
	require.Len(t, frames, 2) // all-printers + printBase64
	assert.Equal(t, ActionPrintBase64, frames[1].Action)
	assert.Equal(t, "EPSON", frames[1].Printer)
	assert.Equal(t, "JVBERi0xLjQ=", frames[1].Payload)
}

func TestPrintBase64VirtualPrinterBlockedBeforeSend(t *testing.T) {
	conn := newFakeConn([]string{"Microsoft Print to PDF"})
	c := NewClient(testConfig(), &fakePrefs{}, WithDialer(func(context.Context, string) (Conn, error) {
		return conn, nil
	}))
	require.NoError(t, c.Connect(context.Background()))

	err := c.PrintBase64("Microsoft Print to PDF", "JVBERi0xLjQ=")
	require.ErrorIs(t, err, ErrVirtualPrinter)

	// No print frame reached the socket.
	for _, f := range conn.sentFrames() {
		assert.NotEqual(t, ActionPrintBase64, f.Action)
	}
}

func TestPrintWhileDisconnected(t *testing.T) {
	c := NewClient(testConfig(), &fakePrefs{})
	err := c.PrintBase64("EPSON", "JVBERi0xLjQ=")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestSendDetectsCloseDuringProbe(t *testing.T) {
	conn := newFakeConn([]string{"EPSON"})
	cfg := testConfig()
	cfg.ProbeDelay = 30 * time.Millisecond
	cfg.ReconnectDelay = time.Hour // keep reconnection out of this test
	c := NewClient(cfg, &fakePrefs{}, WithDialer(func(context.Context, string) (Conn, error) {
		return conn, nil
	}))
	require.NoError(t, c.Connect(context.Background()))

	go func() {
		time.Sleep(10 * time.Millisecond)
		conn.drop()
	}()

	err := c.PrintBase64("EPSON", "JVBERi0xLjQ=")
	assert.ErrorIs(t, err, ErrClosedMidSend)
}
