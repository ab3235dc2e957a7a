package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Prefs persists the operator's printer choices and the bridge auto-connect
// flag. Keys mirror the browser-era local-storage names so an existing
// deployment keeps its settings.
type Prefs struct {
	rdb *redis.Client
}

func NewPrefs(rdb *redis.Client) *Prefs { return &Prefs{rdb: rdb} }

const autoConnectKey = "printer-ws-auto-connect"

func posPrinterKey(theaterID string) string    { return "printer-pos-" + theaterID }
func onlinePrinterKey(theaterID string) string { return "printer-online-" + theaterID }

func (p *Prefs) getString(ctx context.Context, key string) (string, error) {
	v, err := p.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return v, nil
}

// POSPrinter returns the preferred POS/Kiosk printer, empty when unset.
func (p *Prefs) POSPrinter(ctx context.Context, theaterID string) (string, error) {
	return p.getString(ctx, posPrinterKey(theaterID))
}

// OnlinePrinter returns the preferred online-order printer, empty when unset.
func (p *Prefs) OnlinePrinter(ctx context.Context, theaterID string) (string, error) {
	return p.getString(ctx, onlinePrinterKey(theaterID))
}

// SetPrinters stores the operator's printer selection. Empty strings clear.
func (p *Prefs) SetPrinters(ctx context.Context, theaterID, pos, online string) error {
	for key, val := range map[string]string{
		posPrinterKey(theaterID):    pos,
		onlinePrinterKey(theaterID): online,
	} {
		var err error
		if val == "" {
			err = p.rdb.Del(ctx, key).Err()
		} else {
			err = p.rdb.Set(ctx, key, val, 0).Err()
		}
		if err != nil {
			return fmt.Errorf("prefs: set %s: %w", key, err)
		}
	}
	return nil
}

// AutoConnect reports whether the agent should connect the bridge on start.
func (p *Prefs) AutoConnect(ctx context.Context) (bool, error) {
	v, err := p.getString(ctx, autoConnectKey)
	return v == "true", err
}

// SetAutoConnect records a successful connection so future starts reconnect
// without operator action.
func (p *Prefs) SetAutoConnect(ctx context.Context) error {
	return p.rdb.Set(ctx, autoConnectKey, "true", 0).Err()
}

// ClearAutoConnect is called on manual disconnect.
func (p *Prefs) ClearAutoConnect(ctx context.Context) error {
	return p.rdb.Del(ctx, autoConnectKey).Err()
}
