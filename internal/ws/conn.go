package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"parley/internal/logging"
)

// connection tracks one authenticated client socket. The topics set is
// mutated only by the connection's own read loop and read by publishers under
// the hub lock.
type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	send    chan Frame
	done    chan struct{}
	limiter *rate.Limiter
	logger  *slog.Logger
}

const sendBuffer = 32

// enqueue offers a frame to the connection without blocking the publisher.
// Delivery is best-effort: a slow consumer's frames are dropped.
func (c *connection) enqueue(frame Frame) {
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.logger.Warn("dropping frame for slow consumer",
			logging.String(logging.FieldEventType, "frame_dropped"),
			logging.String("frame_type", frame.Type),
		)
	}
}

func (c *connection) readLoop() {
	defer c.hub.drop(c)

	readWait := c.hub.pingInterval * 2
	c.socket.SetReadLimit(64 * 1024)
	_ = c.socket.SetReadDeadline(time.Now().Add(readWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			return
		}
		_ = c.socket.SetReadDeadline(time.Now().Add(readWait))

		if !c.limiter.Allow() {
			c.enqueue(errorFrame("rate limited"))
			continue
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(errorFrame("malformed frame"))
			continue
		}
		c.handleFrame(frame)
	}
}

func (c *connection) handleFrame(frame clientFrame) {
	switch frame.Type {
	case frameSubscribe:
		if !validTopic(frame.Topic) {
			c.enqueue(errorFrame("unknown topic"))
			return
		}
		c.hub.subscribe(c, frame.Topic)

	case frameUnsubscribe:
		c.hub.unsubscribe(c, frame.Topic)

	case frameUploadStatus:
		if !c.hub.subscribed(c, frame.Topic) {
			c.enqueue(errorFrame("not subscribed to topic"))
			c.logger.Warn("upload status rejected for unsubscribed topic",
				logging.String(logging.FieldTopic, frame.Topic),
				logging.Alert("unauthorized_publish"),
				logging.String(logging.FieldEventType, "topic_publish_rejected"),
			)
			return
		}
		c.hub.SendToTopic(frame.Topic, NewFrame(EventUploadStatus, frame.Payload))

	default:
		c.enqueue(errorFrame("unknown frame type"))
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.socket.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(c.hub.writeTimeout))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
