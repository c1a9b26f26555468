package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveWebSockets is the number of currently open websocket connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vibely_websocket_active_connections",
		Help: "Number of currently open WebSocket connections",
	})

	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibely_redis_errors_total",
		Help: "Total number of failed Redis commands",
	}, []string{"command"})

	// RateLimited counts requests rejected by the Redis rate limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibely_rate_limited_total",
		Help: "Total number of requests rejected by rate limiting",
	}, []string{"resource"})
)

var (
	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the process-wide Prometheus middleware. The collectors
// register once with the default registry, so repeated calls share one instance.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware records request metrics, skipping the scrape endpoint itself.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}
		return p.Middleware(c)
	}
}
