package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotencyTTL       = 24 * time.Hour
)

// ResponseCache stores replayable responses. Get returns an error on a miss.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
}

type cachedResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency requires an Idempotency-Key on mutating requests and replays
// the first response for a repeated key. Server errors are not cached so the
// client can retry them.
func Idempotency(store ResponseCache, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Only apply to POST, PUT, DELETE
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
				next.ServeHTTP(w, r)
				return
			}

			idempotencyKey := r.Header.Get(IdempotencyKeyHeader)
			if idempotencyKey == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"success":false,"message":"Idempotency-Key header is required"}`))
				return
			}

			ctx := r.Context()
			cacheKey := "idempotency:" + r.URL.Path + ":" + idempotencyKey

			// Check if we have a cached response
			cached, err := store.Get(ctx, cacheKey)
			if err == nil && cached != "" {
				var resp cachedResponse
				if err := json.Unmarshal([]byte(cached), &resp); err == nil {
					for k, v := range resp.Headers {
						w.Header().Set(k, v)
					}
					w.Header().Set("X-Idempotency-Replayed", "true")
					w.WriteHeader(resp.StatusCode)
					_, _ = w.Write([]byte(resp.Body))
					return
				}
			}

			// Record the response
			recorder := newResponseRecorder(w)
			next.ServeHTTP(recorder, r)

			if recorder.statusCode >= http.StatusInternalServerError {
				return
			}

			resp := cachedResponse{
				StatusCode: recorder.statusCode,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       recorder.body.String(),
			}
			respJSON, err := json.Marshal(resp)
			if err != nil {
				return
			}
			if err := store.Set(ctx, cacheKey, string(respJSON), IdempotencyTTL); err != nil {
				logger.Warn("cache idempotent response", "key", idempotencyKey, "error", err)
			}
		})
	}
}
