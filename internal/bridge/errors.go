package bridge

import "errors"

var (
	// ErrUnreachable — connect timed out or the socket errored.
	ErrUnreachable = errors.New("print bridge unreachable")
	// ErrNotOpen — send attempted while the socket is not open.
	ErrNotOpen = errors.New("print bridge connection is not open")
	// ErrClosedMidSend — the socket left Open between the send and the
	// post-send probe; the job may or may not have reached the bridge.
	ErrClosedMidSend = errors.New("print bridge closed during send")
	// ErrVirtualPrinter — the selected printer is a virtual/PDF device.
	ErrVirtualPrinter = errors.New("selected printer is a virtual printer")
)
