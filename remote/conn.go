package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pulsr-ai/lingua/logging"
)

// Connection tuning defaults. Pings flow every PingInterval; a pong (or any
// read) must arrive within PongWait or the connection is declared dead.
const (
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultWriteWait    = 10 * time.Second
	DefaultCallTimeout  = 30 * time.Second

	maxMessageBytes = 1 << 20
)

// Tuning holds the per-server connection timings. Zero fields fall back to
// the package defaults.
type Tuning struct {
	// PingInterval is how often a heartbeat ping is written.
	PingInterval time.Duration
	// PongWait bounds the silence tolerated before the connection is
	// considered dead. It must exceed PingInterval.
	PongWait time.Duration
	// WriteWait bounds every single websocket write.
	WriteWait time.Duration
	// CallTimeout bounds one JSON-RPC round trip, independent of the
	// connection-level heartbeat.
	CallTimeout time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.PingInterval <= 0 {
		t.PingInterval = DefaultPingInterval
	}
	if t.PongWait <= 0 {
		t.PongWait = DefaultPongWait
	}
	if t.WriteWait <= 0 {
		t.WriteWait = DefaultWriteWait
	}
	if t.CallTimeout <= 0 {
		t.CallTimeout = DefaultCallTimeout
	}
	return t
}

var errConnClosed = errors.New("connection closed")

// conn is one persistent websocket channel to a tool server. A read pump
// routes responses to pending calls by request ID and a ping loop keeps the
// connection alive; either failing tears the whole connection down and
// closes Done.
type conn struct {
	server ServerDescriptor
	tuning Tuning
	logger logging.Logger
	ws     *websocket.Conn

	// gorilla permits one concurrent writer; WriteControl is exempt.
	writeMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]chan *JSONRPCResponse
	closed   bool
	closeErr error

	done chan struct{}
}

func dialConn(ctx context.Context, server ServerDescriptor, tuning Tuning, logger logging.Logger) (*conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, server.URL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w (handshake status %d)", server.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", server.URL, err)
	}

	c := &conn{
		server:  server,
		tuning:  tuning,
		logger:  logging.OrNoOp(logger),
		ws:      ws,
		pending: make(map[string]chan *JSONRPCResponse),
		done:    make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageBytes)
	go c.readPump()
	go c.pingLoop()
	c.logger.Debug("remote.conn.up", "server", server.Name, "url", server.URL)
	return c, nil
}

// Done is closed once the connection has failed or been closed. Pending and
// future calls fail immediately after that.
func (c *conn) Done() <-chan struct{} { return c.done }

// Close tears the connection down, sending a best-effort close frame first.
func (c *conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.tuning.WriteWait))
	c.fail(errConnClosed)
	return nil
}

// ListTools discovers the server's advertised tools.
func (c *conn) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	params := map[string]any{}
	if c.server.APIKey != "" {
		params["api_key"] = c.server.APIKey
	}
	raw, err := c.call(ctx, methodListTools, params)
	if err != nil {
		return nil, err
	}
	var out ListToolsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse tools/list result: %w", err)
	}
	return out.Tools, nil
}

// CallTool invokes one tool and returns the raw JSON-RPC result.
func (c *conn) CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	params := CallToolParams{Name: name, Arguments: args}
	if c.server.APIKey != "" {
		params.APIKey = c.server.APIKey
	}
	return c.call(ctx, methodCallTool, params)
}

// call performs one JSON-RPC round trip. The per-call timeout applies on top
// of whatever deadline ctx already carries.
func (c *conn) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.tuning.CallTimeout)
	defer cancel()

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		return nil, err
	}
	id := uuid.NewString()
	ch := make(chan *JSONRPCResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := JSONRPCRequest{JSONRPC: jsonrpcVersion, ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			c.unregister(id)
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		req.Params = data
	}
	if err := c.write(req); err != nil {
		c.unregister(id)
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	case resp, ok := <-ch:
		if !ok {
			return nil, c.dropErr()
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.tuning.WriteWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.fail(fmt.Errorf("write: %w", err))
		return err
	}
	return nil
}

func (c *conn) readPump() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.tuning.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.tuning.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("read: %w", err))
			return
		}
		var resp JSONRPCResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("remote.conn.frame.invalid", "server", c.server.Name, "error", err)
			continue
		}
		c.dispatch(&resp)
	}
}

// dispatch hands a response to the call waiting on its ID. Responses with no
// pending caller (late replies after a call timeout) are dropped.
func (c *conn) dispatch(resp *JSONRPCResponse) {
	id, _ := resp.ID.(string)
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("remote.conn.frame.orphan", "server", c.server.Name, "id", id)
		return
	}
	ch <- resp
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.tuning.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.tuning.WriteWait)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.fail(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// fail closes the connection exactly once, rejecting every pending call.
func (c *conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	close(c.done)
	_ = c.ws.Close()
	for _, ch := range pending {
		close(ch)
	}
	if !errors.Is(err, errConnClosed) {
		c.logger.Warn("remote.conn.down", "server", c.server.Name, "error", err)
	}
}

func (c *conn) unregister(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *conn) dropErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr != nil {
		return c.closeErr
	}
	return errConnClosed
}
