package client

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/tjcrane/roomwarden/globals"
)

const (
	sendChannelSize = 1000
	writeWait       = 10 * time.Second
	// sendThrottle paces outbound lines; the upstream server drops clients
	// that send faster.
	sendThrottle = 600 * time.Millisecond
)

// Conn is the websocket connection to the chat feed. Reading happens on the
// caller's goroutine via ReadLoop; writes go through a paced queue and are
// fire-and-forget.
type Conn struct {
	conn *websocket.Conn
	send chan string
	done chan struct{}
}

func Dial(wsUrl string) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		conn: conn,
		send: make(chan string, sendChannelSize),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c, nil
}

// Send queues one raw protocol line. There is no acknowledgment and no
// backpressure; when the queue is full the line is dropped.
func (c *Conn) Send(text string) {
	select {
	case c.send <- text:
	default:
		globals.AppLogger.Warn("send queue full, dropping line", "line", text)
	}
}

// ReadLoop pumps raw frames from the websocket into handle until the
// connection breaks. It returns the terminal read error.
func (c *Conn) ReadLoop(handle func(frame []byte)) error {
	defer close(c.done)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Error("feed closed unexpectedly", "error", err)
			}
			return err
		}
		handle(raw)
	}
}

func (c *Conn) writeLoop() {
	throttle := time.NewTicker(sendThrottle)
	defer throttle.Stop()
	for {
		select {
		case <-c.done:
			return
		case text := <-c.send:
			<-throttle.C
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				globals.AppLogger.Error("could not write to feed", "error", err)
				return
			}
		}
	}
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
