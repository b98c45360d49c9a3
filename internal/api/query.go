// Package api implements the HTTP/WebSocket surface: the POST /api/logs
// query endpoint, GET /api/targets, and the GET /api/ws live stream.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/flarelane/logdeck/internal/event"
	"github.com/flarelane/logdeck/internal/ring"
	"github.com/flarelane/logdeck/internal/telemetry/otel"
)

// gzipThreshold is the response-body size above which a gzip-capable
// client gets a compressed response.
const gzipThreshold = 8 * 1024

// logsRequest mirrors the POST /api/logs request body in spec.md §4.E.
type logsRequest struct {
	Limit        *int              `json:"limit"`
	Offset       int               `json:"offset"`
	GlobalLevel  string            `json:"global_level"`
	TargetLevels map[string]string `json:"target_levels"`
	Search       string            `json:"search"`
	Target       string            `json:"target"`
	SortOrder    string            `json:"sort_order"`
}

type logsResponse struct {
	Logs  []*event.Event `json:"logs"`
	Total int            `json:"total"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Store is the read side of the ring store the query endpoint serves
// from. Satisfied by *ring.Store.
type Store interface {
	SnapshotFiltered(filter ring.Filter, limit, offset int) ([]*event.Event, int)
	DistinctTargets() []string
}

// QueryHandler serves POST /api/logs and GET /api/targets.
type QueryHandler struct {
	store       Store
	instruments *otel.Instruments
}

// NewQueryHandler returns a handler serving queries against store.
func NewQueryHandler(store Store) *QueryHandler {
	return &QueryHandler{store: store}
}

// NewQueryHandlerWithInstruments is like NewQueryHandler but also records
// query latency.
func NewQueryHandlerWithInstruments(store Store, instruments *otel.Instruments) *QueryHandler {
	return &QueryHandler{store: store, instruments: instruments}
}

// ServeLogs handles POST /api/logs.
func (h *QueryHandler) ServeLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "POST required")
		return
	}

	var req logsRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed_json", err.Error())
		return
	}

	filter := ring.Filter{
		Search:    req.Search,
		Target:    req.Target,
		SortOrder: ring.ParseSortOrder(req.SortOrder),
	}
	if req.GlobalLevel != "" {
		filter.GlobalLevel = event.ParseLevel(req.GlobalLevel)
		filter.HasGlobal = true
	}
	if len(req.TargetLevels) > 0 {
		filter.TargetLevels = make(map[string]event.Level, len(req.TargetLevels))
		for k, v := range req.TargetLevels {
			filter.TargetLevels[k] = event.ParseLevel(v)
		}
	}

	limit := -1
	if req.Limit != nil {
		limit = *req.Limit
		if limit < 0 {
			limit = 0
		}
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	qh, _ := h.instruments.StartQuery(r.Context())
	logs, total := h.store.SnapshotFiltered(filter, limit, offset)
	h.instruments.FinishQuery(qh, total, nil)
	writeJSONCompressed(w, r, http.StatusOK, logsResponse{Logs: logs, Total: total})
}

// ServeTargets handles GET /api/targets.
func (h *QueryHandler) ServeTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "GET required")
		return
	}
	writeJSONCompressed(w, r, http.StatusOK, struct {
		Targets []string `json:"targets"`
	}{Targets: h.store.DistinctTargets()})
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeJSONCompressed encodes v as the response body, transparently
// gzip-compressing it when it exceeds gzipThreshold and r accepts gzip.
func writeJSONCompressed(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode_failed","code":"internal"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(body) > gzipThreshold && acceptsGzip(r) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(status)
		gw := gzip.NewWriter(w)
		_, _ = gw.Write(body)
		_ = gw.Close()
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeJSON encodes v as an uncompressed JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode_failed","code":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// acceptsGzip reports whether r's Accept-Encoding includes gzip.
func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}
