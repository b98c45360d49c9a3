// Package logdeck is an in-process log capture and streaming library: it
// intercepts log/slog records emitted anywhere in the host process, keeps
// a bounded history, and serves that history plus a live tail over
// HTTP/WebSocket under a caller-chosen base path.
package logdeck

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/flarelane/logdeck/internal/api"
	"github.com/flarelane/logdeck/internal/bus"
	"github.com/flarelane/logdeck/internal/capture"
	"github.com/flarelane/logdeck/internal/event"
	"github.com/flarelane/logdeck/internal/httpserver"
	"github.com/flarelane/logdeck/internal/ring"
	"github.com/flarelane/logdeck/internal/telemetry/otel"
	"github.com/flarelane/logdeck/internal/ui"
)

// DefaultCapacity is the ring store size used when Config.Capacity is 0.
const DefaultCapacity = 10000

// Config is the mount-time configuration a host supplies. BasePath is
// required; everything else has a usable default.
type Config struct {
	// BasePath is the path prefix this console's sub-router is mounted
	// at, e.g. "/logdeck". Must not have a trailing slash.
	BasePath string

	// Capacity bounds the ring store. 0 selects DefaultCapacity; a
	// negative value is treated as 0 (ring stays permanently empty).
	Capacity int

	// OtelMetrics and OtelTraces enable the library's own OTEL
	// instrumentation (§4.H). Both default to false.
	OtelMetrics bool
	OtelTraces  bool
}

// Console is the assembled log console: the ring store, the live bus, the
// installed capture hook, and the HTTP handler that serves all of it.
type Console struct {
	ring        *ring.Store
	bus         *bus.Bus
	instruments *otel.Instruments
	handler     http.Handler
}

// sink bridges the capture hook to the ring store and the live bus,
// recording instrumentation for both.
type sink struct {
	ring        *ring.Store
	bus         *bus.Bus
	instruments *otel.Instruments
}

func (s *sink) Capture(e *event.Event) {
	ctx := context.Background()
	if s.ring.Push(e) {
		s.instruments.RingEvict(ctx)
	}
	s.instruments.CaptureEvent(ctx)
	s.bus.Publish(e)
}

// New builds a Console per cfg: the ring store, the live bus, installs the
// capture hook as the process-wide slog default (idempotently — calling
// New more than once in a process is safe), and assembles the HTTP
// sub-router. It never returns an error: misconfiguration (empty
// BasePath) is corrected to a sane default rather than failing the host's
// startup.
func New(cfg Config) *Console {
	basePath := strings.TrimSuffix(cfg.BasePath, "/")
	if basePath == "" {
		basePath = "/logdeck"
	}
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}

	store := ring.New(capacity)
	eventBus := bus.New()

	var provider *otel.Provider
	if cfg.OtelMetrics || cfg.OtelTraces {
		p, err := otel.Setup(context.Background(), otel.Config{
			ServiceName:   "logdeck",
			EnableMetrics: cfg.OtelMetrics,
			EnableTraces:  cfg.OtelTraces,
		})
		if err != nil {
			slog.Default().Error("logdeck: otel setup failed, continuing without telemetry", "error", err)
		} else {
			provider = p
		}
	}
	instruments := provider.Instruments()

	var metrics capture.Metrics
	if instruments != nil {
		metrics = instruments
	}
	capture.InstallWithMetrics(&sink{ring: store, bus: eventBus, instruments: instruments}, metrics)

	c := &Console{ring: store, bus: eventBus, instruments: instruments}
	c.handler = c.buildRouter(basePath)
	return c
}

// Handler returns the assembled http.Handler, already wrapped with
// permissive CORS and OTEL instrumentation, ready to be mounted by the
// host under the configured base path (e.g. via http.Handle(basePath+"/",
// console.Handler())).
func (c *Console) Handler() http.Handler {
	return c.handler
}

// ListenAndServe runs the console as a standalone HTTP server on addr, for
// hosts that want the console on its own port rather than mounted into an
// existing mux. It blocks until the server returns an error, or until ctx
// is cancelled, which triggers a graceful shutdown and returns its result
// (nil when the shutdown completes cleanly).
func (c *Console) ListenAndServe(ctx context.Context, addr string) error {
	srv := httpserver.NewWebServer(addr, c.handler)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	}
}

func (c *Console) buildRouter(basePath string) http.Handler {
	mux := http.NewServeMux()

	queryHandler := api.NewQueryHandlerWithInstruments(c.ring, c.instruments)
	streamHandler := api.NewStreamHandlerWithInstruments(c.bus, c.instruments)

	assetsFS, _ := fs.Sub(ui.Dir, "dist")
	spa := ui.NewSPAHandler(assetsFS, basePath)

	mux.HandleFunc("/api/logs", queryHandler.ServeLogs)
	mux.HandleFunc("/api/targets", queryHandler.ServeTargets)
	mux.HandleFunc("/api/ws", streamHandler.ServeWS)
	mux.Handle("/", spa)

	withCORS := corsMiddleware(mux)
	instrumented := otelhttp.NewHandler(withCORS, "logdeck")

	return http.StripPrefix(basePath, instrumented)
}

// corsMiddleware applies the permissive CORS policy spec.md §4.G requires:
// any origin, any method, any header.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
