package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const (
	// eventBuffer is how far a slow client may lag before events are dropped for it
	eventBuffer       = 256
	writeTimeout      = 10 * time.Second
	heartbeatInterval = 30 * time.Second
)

// eventFilter keeps only one process's events when ?processId= is set
func eventFilter(c *gin.Context) func(claude.Event) bool {
	processID := c.Query("processId")
	if processID == "" {
		return func(claude.Event) bool { return true }
	}
	return func(ev claude.Event) bool { return ev.ProcessID == processID }
}

// EventsWebSocket handles GET /api/claude/events
// Every event goes out as one text frame holding {"event":"message","data":...}.
// The client never sends anything; session control uses the REST routes.
func (h *Handlers) EventsWebSocket(c *gin.Context) {
	keep := eventFilter(c)

	// Get the underlying http.ResponseWriter from Gin's wrapper
	var w http.ResponseWriter = c.Writer
	if unwrapper, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		w = unwrapper.Unwrap()
	}

	// Keep the request logger away from the hijacked connection
	log.MarkHijacked(c)

	conn, err := websocket.Accept(w, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // local desktop bridge, no origin to check
	})
	if err != nil {
		log.Error().Err(err).Msg("events websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Abort so later middleware does not write headers on the hijacked connection
	c.Abort()

	events, unsubscribe := h.server.Sessions().SubscribeChan(eventBuffer)
	defer unsubscribe()

	// CloseRead discards client frames and cancels ctx when the peer goes away
	ctx := conn.CloseRead(c.Request.Context())
	shutdown := h.server.ShutdownContext()

	log.Debug().Str("filter", c.Query("processId")).Msg("events websocket connected")

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event bus closed")
				return
			}
			if !keep(ev) {
				continue
			}
			data, err := json.Marshal(ev.Envelope())
			if err != nil {
				log.Error().Err(err).Str("processId", ev.ProcessID).Msg("failed to marshal event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Debug().Err(err).Msg("events websocket write failed")
				return
			}

		case <-ctx.Done():
			log.Debug().Msg("events websocket closed by client")
			return

		case <-shutdown.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
	}
}

// EventsStream handles GET /api/claude/events/stream (SSE)
// Events are sent as "event: message" with the event JSON as data.
func (h *Handlers) EventsStream(c *gin.Context) {
	keep := eventFilter(c)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Status(http.StatusOK)

	events, unsubscribe := h.server.Sessions().SubscribeChan(eventBuffer)
	defer unsubscribe()

	fmt.Fprint(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	shutdown := h.server.ShutdownContext()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !keep(ev) {
				continue
			}
			if err := writeSSEEvent(c.Writer, ev); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return
			}
			c.Writer.Flush()

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()

		case <-ctx.Done():
			log.Debug().Msg("client disconnected from event stream")
			return

		case <-shutdown.Done():
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev claude.Event) error {
	env := ev.Envelope()
	data, err := json.Marshal(env.Data)
	if err != nil {
		log.Error().Err(err).Str("processId", ev.ProcessID).Msg("failed to marshal event")
		return nil
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Event, data)
	return err
}
