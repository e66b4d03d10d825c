package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer opens connections with gorilla/websocket
type WebSocketDialer struct {
	// Dialer defaults to websocket.DefaultDialer
	Dialer *websocket.Dialer

	// Header is sent with the upgrade request
	Header http.Header

	// WriteTimeout bounds every outbound write, defaults to 10s
	WriteTimeout time.Duration
}

// Dial opens a websocket and starts delivering inbound messages to handlers
func (d *WebSocketDialer) Dial(ctx context.Context, url string, handlers Handlers) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		connErr := &ConnectionError{URL: url, Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
			if resp.Body != nil {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				resp.Body.Close()
				if len(body) > 0 {
					connErr.Err = fmt.Errorf("%w: %s", err, body)
				}
			}
		}
		return nil, connErr
	}

	c := &wsConn{
		conn:         conn,
		handlers:     handlers,
		writeTimeout: writeTimeout,
	}
	go c.readLoop()

	return c, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// handlerMu is held while OnMessage runs
	handlerMu sync.Mutex
	handlers  Handlers
	detached  bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.deliverClose(err)
			return
		}

		c.handlerMu.Lock()
		if !c.detached && c.handlers.OnMessage != nil {
			c.handlers.OnMessage(data)
		}
		c.handlerMu.Unlock()
	}
}

// deliverClose detaches the handlers and reports the close outside the lock,
// so OnClose may call Detach or Close.
func (c *wsConn) deliverClose(err error) {
	code, reason := CloseAbnormal, err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	}

	c.handlerMu.Lock()
	onClose := c.handlers.OnClose
	wasDetached := c.detached
	c.detached = true
	c.handlers = Handlers{}
	c.handlerMu.Unlock()

	if !wasDetached && onClose != nil {
		onClose(code, reason)
	}
}

func (c *wsConn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsConn) Detach() {
	c.handlerMu.Lock()
	c.detached = true
	c.handlers = Handlers{}
	c.handlerMu.Unlock()
}

// Close detaches the handlers, sends a normal closure and closes the socket
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.Detach()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
