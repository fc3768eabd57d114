package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/inkwell-ai/chunkrouter/internal/httputil"
	"github.com/inkwell-ai/chunkrouter/internal/telemetry"
)

const (
	defaultRPM = 120

	// CallerHeader identifies the pipeline worker submitting chunks. Workers
	// that omit it share a per-host bucket.
	CallerHeader = "X-Caller-ID"

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware enforcing a per-caller requests-per-minute
// limit. The rpm getter is read per request so config reloads take effect
// without a restart.
func Middleware(limiter *Limiter, rpm func() int, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			limit := rpm()
			if limit <= 0 {
				limit = defaultRPM
			}

			caller := callerID(r)
			result, _ := limiter.Check(r.Context(), "rpm:"+caller, int64(limit), time.Minute)

			// Always set rate limit headers
			w.Header().Set(headerRateLimitRequests, strconv.Itoa(limit))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("inbound rate limit exceeded",
					"request_id", reqID,
					"caller", caller,
					"limit", limit,
				)
				if metrics != nil {
					metrics.RecordRateLimited()
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", limit, result.ResetAt.Format(time.RFC3339)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerID(r *http.Request) string {
	if caller := r.Header.Get(CallerHeader); caller != "" {
		return caller
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
