package server

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"icgateway/internal/constants"
	"icgateway/internal/gateway"
)

// wsConn pumps frames between one WebSocket and its ClientSession. Only
// writePump writes to the socket.
type wsConn struct {
	ws   *websocket.Conn
	sess *gateway.ClientSession
	log  zerolog.Logger

	// onFrame observes the result of each inbound binary frame; returning
	// false ends the connection.
	onFrame func(before gateway.State, err error) bool
}

func (c *wsConn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(int64(constants.MaxWSMessageSize))
	c.ws.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(constants.WSPongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			before := c.sess.State()
			err := c.sess.HandleBinary(ctx, data)
			if c.onFrame != nil && !c.onFrame(before, err) {
				return
			}
			if c.sess.State() == gateway.Closed {
				return
			}
		case websocket.TextMessage:
			c.sess.RejectText()
		}
	}
}

func (c *wsConn) writePump(ctx context.Context) {
	ticker := time.NewTicker(constants.WSPingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		// unblocks a reader waiting on a full queue
		c.sess.Close()
	}()

	for {
		select {
		case frame := <-c.sess.Outbound():
			if err := c.write(frame); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(constants.WSWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.sess.Done():
			c.flush()
			c.closeWith(websocket.CloseNormalClosure, "")
			return
		case <-ctx.Done():
			c.closeWith(websocket.CloseGoingAway, constants.MsgShuttingDown)
			return
		}
	}
}

func (c *wsConn) write(frame gateway.Frame) error {
	msgType := websocket.BinaryMessage
	if frame.Type == gateway.FrameText {
		msgType = websocket.TextMessage
	}
	c.ws.SetWriteDeadline(time.Now().Add(constants.WSWriteWait))
	return c.ws.WriteMessage(msgType, frame.Data)
}

// flush writes whatever is still queued once the session has closed.
func (c *wsConn) flush() {
	for {
		select {
		case frame := <-c.sess.Outbound():
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) closeWith(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(constants.WSWriteWait))
}
