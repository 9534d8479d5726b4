package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/0xReLogic/Furnace/internal/logging"
)

const statsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Snapshot is one frame of the /ws/stats stream.
type Snapshot struct {
	InFlightBurns  int       `json:"in_flight_burns"`
	CompletedBurns uint64    `json:"completed_burns"`
	Goroutines     int       `json:"goroutines"`
	Uptime         string    `json:"uptime"`
	Time           time.Time `json:"time"`
}

func (s *Server) snapshot() Snapshot {
	tracker := s.burner.Tracker()
	return Snapshot{
		InFlightBurns:  tracker.InFlight(),
		CompletedBurns: tracker.Completed(),
		Goroutines:     runtime.NumGoroutine(),
		Uptime:         time.Since(s.started).Round(time.Second).String(),
		Time:           time.Now().UTC(),
	}
}

// stats pushes a Snapshot immediately and then every stats interval until
// the client goes away or the server shuts down.
func (s *Server) stats(c *gin.Context) {
	logger := logging.WithContext(c.Request.Context())
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("stats websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads only detect the client closing; incoming frames are dropped.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(statsWriteWait))
		return conn.WriteJSON(s.snapshot())
	}
	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(time.Duration(s.cfg.Demo.StatsIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-s.closing:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(statsWriteWait))
			return
		case <-ticker.C:
			if err := send(); err != nil {
				logger.Debug().Err(err).Msg("stats stream closed")
				return
			}
		}
	}
}
