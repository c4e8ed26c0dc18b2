package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheHeader reports whether a response was served from the cache.
const CacheHeader = "X-Cache"

// perRequestHeaders belong to the request that produced a response and are
// never replayed to a later one.
var perRequestHeaders = []string{RequestIDHeader, CacheHeader}

type snapshot struct {
	status int
	header http.Header
	body   []byte
}

// recorder tees the response body so it can be stored after the handler ran.
type recorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

func (r *recorder) snapshot() snapshot {
	header := r.Header().Clone()
	for _, h := range perRequestHeaders {
		header.Del(h)
	}
	return snapshot{status: r.Status(), header: header, body: r.body.Bytes()}
}

// Cache serves repeated GETs of the same URI from store for ttl. Only 2xx
// responses are kept.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if v, found := store.Get(key); found {
			snap := v.(snapshot)
			header := c.Writer.Header()
			for k, vals := range snap.header {
				header[k] = vals
			}
			header.Set(CacheHeader, "HIT")
			c.Writer.WriteHeader(snap.status)
			_, _ = c.Writer.Write(snap.body)
			c.Abort()
			return
		}

		c.Header(CacheHeader, "MISS")
		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		if status := rec.Status(); status >= http.StatusOK && status < http.StatusMultipleChoices {
			store.Set(key, rec.snapshot(), ttl)
		}
	}
}
