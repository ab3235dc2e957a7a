package handler

import (
	"context"
	"net/http"
	"time"

	"cinepos/internal/apierror"
	"cinepos/internal/bridge"
	"cinepos/internal/store"

	"github.com/gin-gonic/gin"
)

// BridgeHandler drives the print-bridge connection and printer selection.
type BridgeHandler struct {
	theaterID string
	client    *bridge.Client
	prefs     *store.Prefs
}

func NewBridgeHandler(theaterID string, client *bridge.Client, prefs *store.Prefs) *BridgeHandler {
	return &BridgeHandler{theaterID: theaterID, client: client, prefs: prefs}
}

// Connect opens the bridge connection. Success also persists the
// auto-connect flag so the next agent start reconnects unattended.
func (h *BridgeHandler) Connect(c *gin.Context) {
	if err := h.client.Connect(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, apierror.New("bridge unreachable: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.client.State().String()})
}

// Disconnect closes the connection and clears the auto-connect flag. No
// reconnect attempts follow an operator-initiated disconnect.
func (h *BridgeHandler) Disconnect(c *gin.Context) {
	h.client.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": h.client.State().String()})
}

// Printers lists the bridge's printers with the current classification and
// saved selection.
func (h *BridgeHandler) Printers(c *gin.Context) {
	names := h.client.Printers()
	pos, _ := h.prefs.POSPrinter(c.Request.Context(), h.theaterID)
	online, _ := h.prefs.OnlinePrinter(c.Request.Context(), h.theaterID)

	c.JSON(http.StatusOK, gin.H{
		"state":    h.client.State().String(),
		"printers": names,
		"classified": gin.H{
			"primary": h.client.Primary(),
			"mobile":  h.client.Mobile(),
		},
		"selected": gin.H{
			"pos":    pos,
			"online": online,
		},
	})
}

// selectionRequest saves the operator's printer choice. Empty values clear.
type selectionRequest struct {
	POS    string `json:"pos"`
	Online string `json:"online"`
}

// SetSelection persists the printer selection. Virtual printers (PDF, fax,
// remote-desktop redirects) are rejected outright — a bill routed into a
// file looks printed but never reaches the counter.
func (h *BridgeHandler) SetSelection(c *gin.Context) {
	var req selectionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	for _, name := range []string{req.POS, req.Online} {
		if name != "" && bridge.IsVirtualPrinter(name) {
			c.JSON(http.StatusUnprocessableEntity, apierror.New("virtual printer not allowed: "+name))
			return
		}
	}
	if err := h.prefs.SetPrinters(c.Request.Context(), h.theaterID, req.POS, req.Online); err != nil {
		c.JSON(http.StatusInternalServerError, apierror.New("failed to save printer selection"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"pos": req.POS, "online": req.Online})
}

// Refresh re-fetches the printer list from the bridge.
func (h *BridgeHandler) Refresh(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.client.RefreshPrinters(ctx); err != nil {
		c.JSON(http.StatusBadGateway, apierror.New("printer list fetch failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": h.client.Printers()})
}
