package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xReLogic/Furnace/internal/burn"
	"github.com/0xReLogic/Furnace/internal/circuitbreaker"
	"github.com/0xReLogic/Furnace/internal/logging"
)

// burnQuery is bound from the /cpu-intensive query string. A value that is
// not a 32-bit integer fails binding and the request is answered with 400.
// When the parameter repeats, the first value decides.
type burnQuery struct {
	Duration int32 `form:"duration"`
}

func (s *Server) routes() {
	s.engine.GET("/", s.home)
	s.engine.GET("/cpu-intensive", s.cpuIntensive)
	s.engine.GET("/slow", s.slow)
	s.engine.GET("/error", s.simulatedError)
	s.engine.GET("/memory", s.memory)
	s.engine.GET("/metrics", gin.WrapF(s.metrics.SummaryHandler()))
	s.engine.GET("/info", s.info)
	s.engine.GET("/dune-quotes", s.duneQuotes)
	s.engine.GET("/ws/stats", s.stats)
}

func (s *Server) home(c *gin.Context) {
	c.String(http.StatusOK, "This is the homepage!")
}

func (s *Server) cpuIntensive(c *gin.Context) {
	q := burnQuery{Duration: int32(s.cfg.Burn.DefaultDuration)}
	// An empty first value is treated like an absent one.
	if c.Query("duration") != "" {
		if err := c.BindQuery(&q); err != nil {
			return
		}
	}

	logger := logging.WithContext(c.Request.Context())
	logger.Debug().Int32("duration", q.Duration).Msg("cpu burn started")

	s.metrics.BurnStarted()
	elapsed := s.burner.Burn(burn.Seconds(int(q.Duration)))
	s.metrics.BurnFinished(elapsed)

	logger.Info().Int32("duration", q.Duration).Dur("elapsed", elapsed).Msg("cpu burn complete")
	c.String(http.StatusOK, "CPU burn complete after %d seconds!", q.Duration)
}

func (s *Server) slow(c *gin.Context) {
	lo, hi := s.cfg.Demo.SlowMin, s.cfg.Demo.SlowMax
	delay := lo + s.rand()*(hi-lo)

	timer := time.NewTimer(time.Duration(delay * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.Request.Context().Done():
		c.Abort()
		return
	}

	s.metrics.AddSlowDelay(delay)
	logging.WithContext(c.Request.Context()).Info().Float64("delay", delay).Msg("slow endpoint completed")
	c.JSON(http.StatusOK, gin.H{"delay": delay})
}

func (s *Server) simulatedError(c *gin.Context) {
	logger := logging.WithContext(c.Request.Context())
	if s.rand() < s.cfg.Demo.ErrorRate {
		s.metrics.RecordSimulatedError()
		logger.Error().Float64("error_rate", s.cfg.Demo.ErrorRate).Msg("simulated error")
		c.String(http.StatusInternalServerError, "Simulated error!")
		return
	}
	s.metrics.RecordErrorEndpointSuccess()
	logger.Info().Msg("error endpoint succeeded")
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) memory(c *gin.Context) {
	n := s.cfg.Demo.MemoryItems
	logger := logging.WithContext(c.Request.Context())
	logger.Warn().Int("items", n).Msg("starting memory intensive operation")

	data := make([]int, n)
	for i := range data {
		data[i] = i
	}

	logger.Info().Int("processed", len(data)).Msg("memory operation completed")
	c.JSON(http.StatusOK, gin.H{"processed": len(data)})
}

func (s *Server) info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"environment": s.cfg.App.Environment,
		"version":     s.cfg.App.Version,
	})
}

func (s *Server) duneQuotes(c *gin.Context) {
	list, err := s.quotes.List(c.Request.Context())
	if err != nil {
		logging.WithContext(c.Request.Context()).Error().Err(err).Msg("failed to list quotes")
		if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "quote store unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load quotes"})
		return
	}
	c.JSON(http.StatusOK, list)
}
