package middleware

// This in-memory cache is used for simplicity. Projection responses change
// when the coordinator swaps in a new snapshot and when the calendar date
// rolls over, so keys carry the snapshot version and the current date;
// stale entries simply fall out of the LRU.

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"

	"github.com/mskaar/renovasjon/internal/models"
)

var cache *lru.Cache

// InitializeCache sets up the in-memory LRU response cache.
func InitializeCache(size int) error {
	var err error
	cache, err = lru.New(size)
	return err
}

type cachedResponse struct {
	status      int
	contentType string
	body        []byte
}

type bodyCaptureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CachingMiddleware serves successful GET responses from the LRU cache.
// version keys entries to the current snapshot so a refresh invalidates
// everything cached for the previous one; today keys them to the current
// calendar date so readings computed relative to "today" (next date, days
// until, collection today) never survive a midnight rollover.
func CachingMiddleware(version func() uint64, today func() models.Date) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := generateCacheKey(version(), today(), c.Request)
		if v, ok := cache.Get(key); ok {
			entry := v.(cachedResponse)
			c.Data(entry.status, entry.contentType, entry.body)
			c.Abort()
			return
		}

		writer := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		if writer.Status() == http.StatusOK {
			cache.Add(key, cachedResponse{
				status:      writer.Status(),
				contentType: writer.Header().Get("Content-Type"),
				body:        writer.buf.Bytes(),
			})
		}
	}
}

// generateCacheKey builds a key from the snapshot version, the calendar
// date, and the request path and query.
func generateCacheKey(version uint64, today models.Date, req *http.Request) string {
	return fmt.Sprintf("v%d:%s:%s?%s", version, today, req.URL.Path, req.URL.RawQuery)
}
