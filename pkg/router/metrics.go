package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupMetricsRoute exposes the Prometheus registry on the main listener.
// Relay and session counters register themselves against the default
// registry at init time.
func (r *Router) setupMetricsRoute() {
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
