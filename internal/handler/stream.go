package handler

import (
	"encoding/json"
	"io"

	"cinepos/internal/engine"
	"cinepos/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// StreamHandler serves the live event feed (beeps, flashes, bridge state,
// summary updates) over Server-Sent Events.
type StreamHandler struct {
	broker *notify.Broker
	engine *engine.Engine
}

func NewStreamHandler(b *notify.Broker, e *engine.Engine) *StreamHandler {
	return &StreamHandler{broker: b, engine: e}
}

// Events streams until the client disconnects. A fresh subscriber first
// receives the current summary and active flashes so its initial paint
// matches the engine state.
func (h *StreamHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch, unsub := h.broker.Subscribe()
	defer unsub()

	v := h.engine.Snapshot()
	writeSSE(c, notify.Event{Type: notify.EventSummary, Data: v.Summary})
	if flashing := h.engine.Flashing(); len(flashing) > 0 {
		writeSSE(c, notify.Event{Type: notify.EventFlash, Data: flashing})
	}
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, ev)
			c.Writer.Flush()
		}
	}
}

func writeSSE(c *gin.Context, ev notify.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		log.Warn().Err(err).Str("type", ev.Type).Msg("stream: event marshal failed")
		return
	}
	io.WriteString(c.Writer, "event: "+ev.Type+"\n")
	io.WriteString(c.Writer, "data: "+string(data)+"\n\n")
}
