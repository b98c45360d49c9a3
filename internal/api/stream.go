package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flarelane/logdeck/internal/bus"
	"github.com/flarelane/logdeck/internal/event"
	"github.com/flarelane/logdeck/internal/telemetry/otel"
)

const (
	writeWait      = 5 * time.Second
	pingInterval   = 30 * time.Second
	readBufferSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBufferSize,
	WriteBufferSize: readBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Bus is the subscribe side of the live bus a stream handler reads from.
// Satisfied by *bus.Bus.
type Bus interface {
	Subscribe() *bus.Receiver
}

// StreamHandler upgrades GET /api/ws connections and forwards every
// published event to the client, with a 30s liveness ping.
type StreamHandler struct {
	bus         Bus
	instruments *otel.Instruments
	log         *slog.Logger
}

// NewStreamHandler returns a handler publishing live events from b.
func NewStreamHandler(b Bus) *StreamHandler {
	return &StreamHandler{bus: b, log: slog.Default().With("log.target", "logdeck::api")}
}

// NewStreamHandlerWithInstruments is like NewStreamHandler but also
// records connection-count and lag metrics.
func NewStreamHandlerWithInstruments(b Bus, instruments *otel.Instruments) *StreamHandler {
	return &StreamHandler{bus: b, instruments: instruments, log: slog.Default().With("log.target", "logdeck::api")}
}

// ServeWS handles GET /api/ws: every accepted connection gets its own
// goroutine reading from the bus and one writer goroutine owning the
// socket, matching the "one writer goroutine per connection" rule.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := uuid.NewString()
	h.log.Debug("stream client connected", "client_id", clientID)
	defer h.log.Debug("stream client disconnected", "client_id", clientID)

	h.instruments.ConnectionOpened(r.Context())
	defer h.instruments.ConnectionClosed(context.Background())

	ctx, cancel := context.WithCancel(r.Context())
	go h.readLoop(conn, cancel)
	h.writeLoop(ctx, conn)
}

// readLoop drains and discards client frames (the stream is one-way) and
// cancels ctx as soon as the client closes or the socket errors, which is
// one of the documented exit conditions.
func (h *StreamHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop owns every write to conn: it multiplexes published events, the
// liveness ping, and the read loop's cancellation signal. It exits on send
// failure, client close, bus closed, or ctx cancellation — never holding
// any lock across a suspension point.
func (h *StreamHandler) writeLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	recv := h.bus.Subscribe()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	recvCtx, cancelRecv := context.WithCancel(ctx)
	defer cancelRecv()

	type recvResult struct {
		evt    *event.Event
		lagged int
		closed bool
	}
	results := make(chan recvResult, 1)
	requestNext := make(chan struct{}, 1)
	requestNext <- struct{}{}

	go func() {
		for range requestNext {
			evt, lagged, closed := recv.Recv(recvCtx)
			select {
			case results <- recvResult{evt: evt, lagged: lagged, closed: closed}:
			case <-recvCtx.Done():
				return
			}
			if closed {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-results:
			if res.closed {
				return
			}
			if res.lagged > 0 {
				h.log.Debug("stream subscriber lagged", "skipped", res.lagged)
				h.instruments.BusLag(ctx, res.lagged)
			}
			if res.evt != nil {
				if err := h.sendEvent(conn, res.evt); err != nil {
					return
				}
			}
			select {
			case requestNext <- struct{}{}:
			default:
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) sendEvent(conn *websocket.Conn, e *event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		h.log.Error("failed to encode event for stream", "error", err)
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}
