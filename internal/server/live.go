package server

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const liveWriteTimeout = 5 * time.Second

// handleLive streams frames of a session over a websocket. The current frame
// is sent first; afterwards only the newest frame is delivered, so a slow
// client skips frames instead of queueing them.
func (s *Server) handleLive(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return err
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warnw("websocket accept failed", "session", sess.ID, "error", err)
		return nil
	}
	defer conn.CloseNow()

	s.metrics.liveClients.Inc()
	defer s.metrics.liveClients.Dec()
	s.log.Debugw("live client connected", "session", sess.ID)

	frames, cancel := sess.Engine.Subscribe()
	defer cancel()

	// the client never sends; CloseRead handles pings and cancels ctx on close
	ctx := conn.CloseRead(c.Request().Context())

	if err := writeFrame(ctx, conn, sess.Engine.Sync()); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debugw("live client disconnected", "session", sess.ID)
			return nil
		case <-sess.Done():
			_ = conn.Close(websocket.StatusGoingAway, "session closed")
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := writeFrame(ctx, conn, frame); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Debugw("live write failed", "session", sess.ID, "error", err)
				}
				return nil
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, liveWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
