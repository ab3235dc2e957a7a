package handler

import (
	"errors"
	"net/http"
	"time"

	"cinepos/internal/apierror"
	"cinepos/internal/engine"
	"cinepos/internal/model"

	"github.com/gin-gonic/gin"
)

// OrdersHandler exposes the engine's order stream state to the counter UI.
type OrdersHandler struct {
	engine *engine.Engine
}

func NewOrdersHandler(e *engine.Engine) *OrdersHandler {
	return &OrdersHandler{engine: e}
}

// List returns the current snapshot: orders newest first, the summary, and
// which rows should be flashing.
func (h *OrdersHandler) List(c *gin.Context) {
	v := h.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"orders":   v.Orders,
		"summary":  v.Summary,
		"flashing": h.engine.Flashing(),
		"window":   v.Window.Key(),
	})
}

// Status reports the engine's operating state.
func (h *OrdersHandler) Status(c *gin.Context) {
	v := h.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"paused": v.Paused,
		"window": v.Window.Key(),
		"orders": len(v.Orders),
	})
}

// Reprint re-dispatches the bill for one order in the current snapshot. The
// path parameter accepts either identity form.
func (h *OrdersHandler) Reprint(c *gin.Context) {
	raw := c.Param("id")
	id := model.NewIdentity(raw, raw)
	if !id.Valid() {
		c.JSON(http.StatusBadRequest, apierror.New("order id required"))
		return
	}
	if err := h.engine.Reprint(c.Request.Context(), id); err != nil {
		if errors.Is(err, engine.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, apierror.New("order not in current view"))
			return
		}
		c.JSON(http.StatusBadGateway, apierror.New("print failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Pause suspends background refreshing.
func (h *OrdersHandler) Pause(c *gin.Context) {
	h.engine.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

// Resume restarts background refreshing with an immediate catch-up poll.
func (h *OrdersHandler) Resume(c *gin.Context) {
	h.engine.Resume()
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

// windowRequest selects the viewed date filter.
type windowRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=day month range"`
	Date  string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Start string `json:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `json:"end" validate:"omitempty,datetime=2006-01-02"`
}

// SetWindow switches the viewed date window.
func (h *OrdersHandler) SetWindow(c *gin.Context) {
	var req windowRequest
	if !bindAndValidate(c, &req) {
		return
	}

	w, err := parseWindow(req)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, apierror.New(err.Error()))
		return
	}
	h.engine.SetWindow(c.Request.Context(), w)
	c.JSON(http.StatusOK, gin.H{"window": w.Key()})
}

func parseWindow(req windowRequest) (model.DateWindow, error) {
	parse := func(s string) (time.Time, error) {
		return time.ParseInLocation("2006-01-02", s, time.Local)
	}
	switch req.Kind {
	case "day":
		if req.Date == "" {
			return model.Day(time.Now()), nil
		}
		d, err := parse(req.Date)
		if err != nil {
			return model.DateWindow{}, errors.New("date must be YYYY-MM-DD")
		}
		return model.Day(d), nil
	case "month":
		if req.Date == "" {
			return model.Month(time.Now()), nil
		}
		d, err := parse(req.Date)
		if err != nil {
			return model.DateWindow{}, errors.New("date must be YYYY-MM-DD")
		}
		return model.Month(d), nil
	default:
		if req.Start == "" || req.End == "" {
			return model.DateWindow{}, errors.New("range requires start and end")
		}
		start, err := parse(req.Start)
		if err != nil {
			return model.DateWindow{}, errors.New("start must be YYYY-MM-DD")
		}
		end, err := parse(req.End)
		if err != nil {
			return model.DateWindow{}, errors.New("end must be YYYY-MM-DD")
		}
		if end.Before(start) {
			return model.DateWindow{}, errors.New("end is before start")
		}
		return model.Range(start, end), nil
	}
}
