// Package ui serves the console's static frontend assets: the embedded
// single-page app when one was built in, or a placeholder page listing the
// available API endpoints otherwise. Adapted from the teacher's SPAHandler
// (internal/ui/handler.go), with title injection replaced by the <base
// href> rewrite the mount facade needs to serve assets under a caller-
// chosen base path, and brotli negotiation added for compressible assets.
package ui

import (
	"bytes"
	"compress/gzip"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
)

// SPAHandler serves an embedded single-page app under basePath, falling
// back to a placeholder page when no assets were embedded at build time.
type SPAHandler struct {
	root     fs.FS
	hasFiles bool
	basePath string
}

// NewSPAHandler returns an SPA handler serving root under basePath. root
// may be nil, in which case every request serves the placeholder page.
func NewSPAHandler(root fs.FS, basePath string) *SPAHandler {
	h := &SPAHandler{root: root, basePath: strings.TrimSuffix(basePath, "/")}
	if root != nil {
		if _, err := fs.Stat(root, "index.html"); err == nil {
			h.hasFiles = true
		}
	}
	return h
}

func (h *SPAHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.hasFiles {
		servePlaceholder(w, h.basePath)
		return
	}

	reqPath := path.Clean(r.URL.Path)
	if reqPath == "/" {
		reqPath = "/index.html"
	}
	rel := strings.TrimPrefix(reqPath, "/")

	if h.serveIfExists(w, r, rel) {
		return
	}
	if h.serveIfExists(w, r, "index.html") {
		return
	}
	http.NotFound(w, r)
}

func (h *SPAHandler) serveIfExists(w http.ResponseWriter, r *http.Request, rel string) bool {
	data, err := fs.ReadFile(h.root, rel)
	if err != nil {
		return false
	}

	setContentType(w, rel)
	if strings.HasPrefix("/"+rel, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	} else if strings.EqualFold(filepath.Ext(rel), ".html") {
		w.Header().Set("Cache-Control", "no-store")
	}

	if strings.EqualFold(rel, "index.html") {
		data = injectBaseHref(data, h.basePath)
	}

	writeNegotiated(w, r, data)
	return true
}

func setContentType(w http.ResponseWriter, rel string) {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".js":
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	case ".css":
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
	case ".html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	case ".json":
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	case ".svg":
		w.Header().Set("Content-Type", "image/svg+xml; charset=utf-8")
	case ".png":
		w.Header().Set("Content-Type", "image/png")
	case ".jpg", ".jpeg":
		w.Header().Set("Content-Type", "image/jpeg")
	case ".webp":
		w.Header().Set("Content-Type", "image/webp")
	case ".ico":
		w.Header().Set("Content-Type", "image/x-icon")
	}
}

// writeNegotiated writes data compressed per r's Accept-Encoding: brotli
// preferred, then gzip, else plain.
func writeNegotiated(w http.ResponseWriter, r *http.Request, data []byte) {
	accept := r.Header.Get("Accept-Encoding")
	switch {
	case strings.Contains(accept, "br"):
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
		if _, err := bw.Write(data); err != nil {
			slog.Default().Error("ui: brotli write failed", "error", err)
		}
		_ = bw.Close()
	case strings.Contains(accept, "gzip"):
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		if _, err := gw.Write(data); err != nil {
			slog.Default().Error("ui: gzip write failed", "error", err)
		}
		_ = gw.Close()
	default:
		if _, err := w.Write(data); err != nil {
			slog.Default().Error("ui: write failed", "error", err)
		}
	}
}

// injectBaseHref inserts <base href="{basePath}/"> immediately after
// <head>, so relative asset URLs resolve under the caller-chosen mount
// path. If <head> is absent, data is returned unmodified: base-href
// injection degrades gracefully rather than corrupting the response.
func injectBaseHref(data []byte, basePath string) []byte {
	needle := []byte("<head>")
	idx := bytes.Index(data, needle)
	if idx == -1 {
		return data
	}
	insertAt := idx + len(needle)
	tag := []byte("\n    <base href=\"" + basePath + "/\">")
	out := make([]byte, 0, len(data)+len(tag))
	out = append(out, data[:insertAt]...)
	out = append(out, tag...)
	out = append(out, data[insertAt:]...)
	return out
}

func servePlaceholder(w http.ResponseWriter, basePath string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, placeholderHTML(basePath))
}

func placeholderHTML(basePath string) string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>logdeck</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
        }
        .container {
            text-align: center;
            padding: 2rem;
            background: rgba(0, 0, 0, 0.2);
            border-radius: 1rem;
        }
        code {
            background: rgba(255, 255, 255, 0.1);
            padding: 0.25rem 0.5rem;
            border-radius: 0.25rem;
            font-family: monospace;
        }
        .api-list {
            margin-top: 2rem;
            text-align: left;
            background: rgba(0, 0, 0, 0.2);
            padding: 1rem;
            border-radius: 0.5rem;
        }
        .api-list ul { list-style: none; padding: 0; }
        .api-list li { margin: 0.5rem 0; font-family: monospace; }
    </style>
</head>
<body>
    <div class="container">
        <h1>logdeck</h1>
        <p>No frontend bundle is embedded in this build.</p>
        <div class="api-list">
            <h2>Available API endpoints</h2>
            <ul>
                <li>POST ` + basePath + `/api/logs</li>
                <li>GET ` + basePath + `/api/targets</li>
                <li>GET ` + basePath + `/api/ws</li>
            </ul>
        </div>
    </div>
</body>
</html>
`
}
