// Package upstream holds the HTTP plumbing shared by the clients that talk to
// the market-data provider, the reference-data service and the auth backend.
package upstream

import (
	"time"

	"github.com/alim08/tradesite/pkg/metrics"
	"resty.dev/v3"
)

const userAgent = "tradesite/1.0"

// NewHTTPClient creates a resty client bound to baseURL. Upstream calls are
// never retried here; the caller's next poll or form submit is the retry.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout)
}

// Observe records one upstream call's latency and, on failure, its error type.
func Observe(name string, start time.Time, err error) {
	metrics.UpstreamRequestDuration.WithLabelValues(name, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(name, string(TypeOf(err))).Inc()
	}
}
