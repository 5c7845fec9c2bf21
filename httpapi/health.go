package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goliatone/go-shopsync/adapters/gocommand"
	"github.com/goliatone/go-shopsync/core"
	shopquery "github.com/goliatone/go-shopsync/query"
)

func (s *Server) handleHealth(c *gin.Context) {
	s.writeHealth(c, false)
}

func (s *Server) handleHealthDetailed(c *gin.Context) {
	s.writeHealth(c, true)
}

// writeHealth answers 503 only when the database is down. A degraded
// breaker still reports 200.
func (s *Server) writeHealth(c *gin.Context, detailed bool) {
	report, err := gocommand.Query[shopquery.HealthMessage, core.HealthReport](c.Request.Context(), shopquery.HealthMessage{Detailed: detailed})
	if err != nil {
		s.writeError(c, err)
		return
	}
	status := http.StatusOK
	if report.Status == core.HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, newHealthView(report))
}

func (s *Server) handleReady(c *gin.Context) {
	report, err := gocommand.Query[shopquery.HealthMessage, core.HealthReport](c.Request.Context(), shopquery.HealthMessage{})
	now := time.Now().UTC().Format(time.RFC3339)
	if err != nil || report.Database != core.HealthStatusUp {
		message := report.DatabaseError
		if err != nil {
			message = core.MapError(err).Message
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": message, "timestamp": now})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": now})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}
