package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/park285/chess-insights-board/internal/service/board"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleWS pushes a fresh snapshot after every board change until either side closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request, c *board.Coordinator) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.log.Debug("websocket accept failed", zap.String("session_id", c.ID()), zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	// inbound messages are not used; CloseRead handles control frames
	ctx := conn.CloseRead(r.Context())
	log := s.log.With(zap.String("session_id", c.ID()))
	log.Debug("websocket client connected")

	if err := s.pushSnapshot(ctx, conn, c); err != nil {
		return
	}
	// a connected client keeps the board alive between HTTP requests
	s.hub.Touch(c.ID())

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug("websocket client disconnected")
			return
		case _, ok := <-updates:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "session closed")
				return
			}
			if err := s.pushSnapshot(ctx, conn, c); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("websocket write failed", zap.Error(err))
				}
				return
			}
			s.hub.Touch(c.ID())
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				return
			}
			s.hub.Touch(c.ID())
		}
	}
}

func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn, c *board.Coordinator) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, c.Snapshot())
}
