package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

const defaultBrotliMinLength = 1024

var brotliPool = sync.Pool{
	New: func() interface{} { return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression) },
}

// compressWriter holds output back until minLength bytes are known, so small
// JSON replies go out uncompressed.
type compressWriter struct {
	gin.ResponseWriter
	br        *brotli.Writer
	pending   []byte
	minLength int
	active    bool
}

func (w *compressWriter) Write(data []byte) (int, error) {
	if w.active {
		return w.br.Write(data)
	}
	w.pending = append(w.pending, data...)
	if len(w.pending) < w.minLength || !compressible(w.Status()) {
		return len(data), nil
	}

	w.active = true
	h := w.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	w.br.Reset(w.ResponseWriter)
	if _, err := w.br.Write(w.pending); err != nil {
		return 0, err
	}
	w.pending = nil
	return len(data), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush pushes whatever is held to the client.
func (w *compressWriter) Flush() {
	if w.active {
		_ = w.br.Flush()
	} else {
		w.drain()
	}
	w.ResponseWriter.Flush()
}

func (w *compressWriter) drain() error {
	if len(w.pending) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.pending)
	w.pending = nil
	return err
}

func (w *compressWriter) finish() error {
	if w.active {
		return w.br.Close()
	}
	return w.drain()
}

// Brotli compresses replies of at least minLength bytes for clients that
// accept br. Event streams and WebSocket upgrades pass through untouched.
func Brotli(minLength int) gin.HandlerFunc {
	if minLength <= 0 {
		minLength = defaultBrotliMinLength
	}

	return func(c *gin.Context) {
		if streaming(c.Request) || c.Request.Method == http.MethodHead || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		br := brotliPool.Get().(*brotli.Writer)
		w := &compressWriter{ResponseWriter: c.Writer, br: br, minLength: minLength}
		c.Header("Vary", "Accept-Encoding")
		c.Writer = w

		defer func() {
			if err := w.finish(); err != nil {
				_ = c.Error(err)
			}
			br.Reset(io.Discard)
			brotliPool.Put(br)
		}()
		c.Next()
	}
}

func streaming(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func compressible(status int) bool {
	return status != http.StatusNoContent && status != http.StatusNotModified
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
