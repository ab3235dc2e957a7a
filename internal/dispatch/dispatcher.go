// Package dispatch turns a paid order into print jobs on the bridge: the
// overall GST bill first, then one kitchen ticket per food category when the
// order qualifies.
package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"cinepos/internal/bridge"
	"cinepos/internal/clock"
	"cinepos/internal/model"
	"cinepos/internal/receipt"
)

// ErrNoPrinter means the bridge reported no usable printer for the order.
var ErrNoPrinter = errors.New("dispatch: no printer available")

// PrintBridge is the slice of the bridge client the dispatcher needs.
type PrintBridge interface {
	PrintBase64(printer, payload string) error
	Printers() []string
	Primary() string
	Mobile() string
}

// PrinterPrefs resolves the operator's saved printer selection.
type PrinterPrefs interface {
	POSPrinter(ctx context.Context, theaterID string) (string, error)
	OnlinePrinter(ctx context.Context, theaterID string) (string, error)
}

// Reservations coalesces concurrent dispatches of the same order.
type Reservations interface {
	ReserveDispatch(id model.Identity) bool
	ReleaseDispatch(id model.Identity)
}

// Config holds the print pacing knobs. The delays give slow thermal
// printers time to finish cutting before the next job lands.
type Config struct {
	RetryDelay  time.Duration // before the single bill retry
	TicketDelay time.Duration // between the bill and the first ticket
	TicketGap   time.Duration // between consecutive tickets
}

func DefaultConfig() Config {
	return Config{
		RetryDelay:  time.Second,
		TicketDelay: 2 * time.Second,
		TicketGap:   500 * time.Millisecond,
	}
}

type Dispatcher struct {
	theaterID string
	info      receipt.TheaterInfo
	bridge    PrintBridge
	prefs     PrinterPrefs
	res       Reservations
	clk       clock.Clock
	cfg       Config
}

func NewDispatcher(theaterID string, info receipt.TheaterInfo, br PrintBridge, prefs PrinterPrefs, res Reservations, clk clock.Clock, cfg Config) *Dispatcher {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Dispatcher{
		theaterID: theaterID,
		info:      info,
		bridge:    br,
		prefs:     prefs,
		res:       res,
		clk:       clk,
		cfg:       cfg,
	}
}

// Dispatch prints the bill and, when the order spans enough food categories,
// the per-category kitchen tickets. A second Dispatch for the same order
// while one is in flight returns nil without printing. The bill gets one
// retry; ticket failures are logged and skipped so one jammed ticket does
// not strand the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, o model.NormalizedOrder) error {
	if !d.res.ReserveDispatch(o.Identity) {
		log.Debug().Str("order", o.Identity.String()).Msg("dispatch: already in flight, skipping")
		return nil
	}
	defer d.res.ReleaseDispatch(o.Identity)

	printer, err := d.pickPrinter(ctx, o)
	if err != nil {
		return err
	}

	now := d.clk.Now()
	bill, err := receipt.RenderBill(d.info, o, now)
	if err != nil {
		return err
	}
	if err := d.printWithRetry(printer, bill); err != nil {
		return fmt.Errorf("dispatch: bill for %s: %w", o.Identity.String(), err)
	}
	log.Info().Str("order", o.Identity.String()).Str("printer", printer).Msg("dispatch: bill printed")

	if !receipt.WantsCategoryTickets(o) {
		return nil
	}

	d.clk.Sleep(d.cfg.TicketDelay)
	for i, group := range receipt.GroupByCategory(o.Items) {
		if i > 0 {
			d.clk.Sleep(d.cfg.TicketGap)
		}
		ticket, err := receipt.RenderCategoryTicket(d.info, o, group, now)
		if err == nil {
			err = d.print(printer, ticket)
		}
		if err != nil {
			log.Warn().Err(err).Str("order", o.Identity.String()).Str("category", group.Name).
				Msg("dispatch: category ticket failed")
			continue
		}
		log.Info().Str("order", o.Identity.String()).Str("category", group.Name).
			Msg("dispatch: category ticket printed")
	}
	return nil
}

func (d *Dispatcher) print(printer string, pdf []byte) error {
	return d.bridge.PrintBase64(printer, base64.StdEncoding.EncodeToString(pdf))
}

func (d *Dispatcher) printWithRetry(printer string, pdf []byte) error {
	err := d.print(printer, pdf)
	if err == nil {
		return nil
	}
	if errors.Is(err, bridge.ErrVirtualPrinter) {
		// A virtual device never becomes a thermal printer; hard fail.
		return err
	}
	log.Warn().Err(err).Str("printer", printer).Msg("dispatch: bill print failed, retrying once")
	d.clk.Sleep(d.cfg.RetryDelay)
	return d.print(printer, pdf)
}

// pickPrinter resolves the target printer: the operator's saved choice for
// the order's channel first, then the bridge's classified role, then the
// first listed printer.
func (d *Dispatcher) pickPrinter(ctx context.Context, o model.NormalizedOrder) (string, error) {
	var pref string
	var err error
	if o.Online {
		pref, err = d.prefs.OnlinePrinter(ctx, d.theaterID)
	} else {
		pref, err = d.prefs.POSPrinter(ctx, d.theaterID)
	}
	if err != nil {
		log.Warn().Err(err).Msg("dispatch: printer preference lookup failed")
	}
	if pref != "" {
		return pref, nil
	}

	if o.Online {
		if p := d.bridge.Mobile(); p != "" {
			return p, nil
		}
	} else if p := d.bridge.Primary(); p != "" {
		return p, nil
	}
	if names := d.bridge.Printers(); len(names) > 0 {
		return names[0], nil
	}
	return "", ErrNoPrinter
}
