// Package remote connects a tool registry to remote tool servers speaking
// JSON-RPC 2.0. The default transport is one persistent websocket per server
// with heartbeat pings, a pending-call table and automatic reconnect with
// exponential backoff; a stateless HTTP transport is available for servers
// without websocket support.
//
// Discovered tools register into a tool.Registry under {server}_{tool} names
// and execute like any local tool. Connection loss degrades only the affected
// server: its tools fail fast with a connection error while reconnecting, and
// once the retry ceiling is exhausted they are unregistered until a manual
// Reconnect or a scheduled sweep brings the server back.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"

	"github.com/pulsr-ai/lingua/core"
	"github.com/pulsr-ai/lingua/logging"
	"github.com/pulsr-ai/lingua/tool"
)

// transport is the operations a connected tool server supports, independent
// of the wire protocol underneath.
type transport interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
	// Done is closed when the transport has failed for good. Stateless
	// transports never close it.
	Done() <-chan struct{}
	Close() error
}

// ServerState is the lifecycle state of one managed server.
type ServerState string

const (
	// StateConnected means the server is healthy and its tools registered.
	StateConnected ServerState = "connected"
	// StateReconnecting means the connection dropped and the backoff retry
	// loop is running. Tools stay registered but fail fast when invoked.
	StateReconnecting ServerState = "reconnecting"
	// StateUnavailable means the retry ceiling was exhausted. Tools are
	// unregistered until a manual or scheduled reconnect succeeds.
	StateUnavailable ServerState = "unavailable"
	// StateDisconnected means the server was explicitly disconnected.
	StateDisconnected ServerState = "disconnected"
)

// BackoffConfig shapes the reconnect retry policy for dropped connections.
type BackoffConfig struct {
	// InitialInterval is the first retry delay.
	InitialInterval time.Duration
	// MaxInterval caps the delay between retries.
	MaxInterval time.Duration
	// MaxRetries is the retry ceiling. Once exhausted the server is marked
	// unavailable; zero means a single attempt with no retry.
	MaxRetries uint64
}

// DefaultBackoffConfig returns the reconnect policy used when none is set.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		MaxRetries:      5,
	}
}

// Options configures a Manager.
type Options struct {
	// Logger receives connection lifecycle and discovery events.
	Logger logging.Logger

	// PrefixTools registers discovered tools as {server}_{tool} so two
	// servers exposing the same tool name cannot collide. Disabling it
	// surfaces cross-server duplicates as registration errors.
	PrefixTools bool

	// Tuning sets the connection timings applied to every server.
	Tuning Tuning

	// Backoff shapes the reconnect retry policy.
	Backoff BackoffConfig

	// SweepSchedule is an optional cron expression. When set, servers in
	// the unavailable state are retried on that schedule.
	SweepSchedule string
}

func defaultOptions() Options {
	return Options{
		Logger:      logging.NoOpLogger{},
		PrefixTools: true,
		Backoff:     DefaultBackoffConfig(),
	}
}

var errManagerClosed = errors.New("remote manager closed")

// Manager owns the connections to all configured remote tool servers and
// mirrors their discovered tools into one registry.
type Manager struct {
	registry *tool.Registry
	logger   logging.Logger
	opts     Options

	mu      sync.Mutex
	servers map[string]*server
	cron    *cron.Cron
	closed  bool
}

// NewManager creates a Manager that registers remote tools into registry.
func NewManager(registry *tool.Registry, optFns ...func(o *Options)) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Tuning = opts.Tuning.withDefaults()

	m := &Manager{
		registry: registry,
		logger:   logging.OrNoOp(opts.Logger),
		opts:     opts,
		servers:  make(map[string]*server),
	}
	if opts.SweepSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(opts.SweepSchedule, func() { m.Sweep(context.Background()) }); err != nil {
			return nil, fmt.Errorf("sweep schedule: %w", err)
		}
		c.Start()
		m.cron = c
	}
	return m, nil
}

// Connect dials the server, discovers its tools and registers them. When a
// server with the same name is already connected it keeps serving until the
// newcomer is healthy; only then is the old connection replaced.
func (m *Manager) Connect(ctx context.Context, desc ServerDescriptor) error {
	desc = desc.withDefaults()
	if err := desc.Validate(); err != nil {
		return err
	}

	tr, found, err := m.dial(ctx, desc)
	if err != nil {
		return &core.RemoteConnectionError{Server: desc.Name, Cause: err}
	}

	h := &server{desc: desc, state: StateConnected, tr: tr}
	tools, err := m.buildTools(h, found)
	if err != nil {
		tr.Close()
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		tr.Close()
		return errManagerClosed
	}
	old := m.servers[desc.Name]
	if old != nil {
		// Adopt the prior registrations so unchanged names are replaced in
		// place and stale ones removed.
		h.names = old.names
	}
	if err := m.swapTools(h, tools); err != nil {
		m.mu.Unlock()
		tr.Close()
		return err
	}
	m.servers[desc.Name] = h
	m.mu.Unlock()

	if old != nil {
		old.stop()
	}
	m.watch(h)

	m.logger.Info("remote.server.connected",
		"server", desc.Name, "transport", string(desc.Transport), "tools", len(tools))
	return nil
}

// Disconnect closes the server's connection and unregisters its tools.
func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	h, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("remote server %q not connected", name)
	}
	delete(m.servers, name)
	for _, n := range h.names {
		m.registry.Unregister(n)
	}
	h.names = nil
	m.mu.Unlock()

	h.stop()
	m.logger.Info("remote.server.disconnected", "server", name)
	return nil
}

// Reconnect retries an unavailable server immediately, outside any schedule.
// Connected servers are left alone.
func (m *Manager) Reconnect(ctx context.Context, name string) error {
	m.mu.Lock()
	h, ok := m.servers[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("remote server %q not connected", name)
	}

	if h.currentState() == StateConnected {
		return nil
	}
	if !h.transition(StateUnavailable, StateReconnecting) {
		return fmt.Errorf("remote server %q: reconnect already in progress", name)
	}
	if err := m.refresh(ctx, h); err != nil {
		h.setState(StateUnavailable)
		return &core.RemoteConnectionError{Server: name, Cause: err}
	}
	m.watch(h)
	m.logger.Info("remote.server.reconnected", "server", name)
	return nil
}

// RefreshTools re-runs discovery on a live connection and reconciles the
// registry with the server's current tool set.
func (m *Manager) RefreshTools(ctx context.Context, name string) error {
	m.mu.Lock()
	h, ok := m.servers[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("remote server %q not connected", name)
	}
	tr, err := h.live()
	if err != nil {
		return &core.RemoteConnectionError{Server: name, Cause: err}
	}
	found, err := tr.ListTools(ctx)
	if err != nil {
		return &core.RemoteConnectionError{Server: name, Cause: err}
	}
	tools, err := m.buildTools(h, found)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.swapTools(h, tools)
}

// Sweep retries every unavailable server once. The cron schedule calls this;
// it is also safe to call directly.
func (m *Manager) Sweep(ctx context.Context) {
	m.mu.Lock()
	var stale []string
	for name, h := range m.servers {
		if h.currentState() == StateUnavailable {
			stale = append(stale, name)
		}
	}
	m.mu.Unlock()
	sort.Strings(stale)

	for _, name := range stale {
		if err := m.Reconnect(ctx, name); err != nil {
			m.logger.Warn("remote.sweep.retry_failed", "server", name, "error", err)
		}
	}
}

// ServerStatus is a point-in-time view of one managed server.
type ServerStatus struct {
	Name      string      `json:"name"`
	Transport Transport   `json:"transport"`
	State     ServerState `json:"state"`
	Tools     int         `json:"tools"`
}

// Status reports all managed servers, sorted by name.
func (m *Manager) Status() []ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ServerStatus, 0, len(m.servers))
	for _, h := range m.servers {
		out = append(out, ServerStatus{
			Name:      h.desc.Name,
			Transport: h.desc.Transport,
			State:     h.currentState(),
			Tools:     len(h.names),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close disconnects every server, unregisters their tools and stops the
// sweep schedule.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	handles := make([]*server, 0, len(m.servers))
	for _, h := range m.servers {
		handles = append(handles, h)
		for _, n := range h.names {
			m.registry.Unregister(n)
		}
		h.names = nil
	}
	m.servers = make(map[string]*server)
	c := m.cron
	m.cron = nil
	m.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, h := range handles {
		h.stop()
	}
	return nil
}

// dial opens a transport for the descriptor and runs initial discovery.
func (m *Manager) dial(ctx context.Context, desc ServerDescriptor) (transport, []ToolDescriptor, error) {
	var tr transport
	switch desc.Transport {
	case TransportHTTP:
		tr = newHTTPTransport(desc, m.opts.Tuning)
	default:
		c, err := dialConn(ctx, desc, m.opts.Tuning, m.logger)
		if err != nil {
			return nil, nil, err
		}
		tr = c
	}
	found, err := tr.ListTools(ctx)
	if err != nil {
		tr.Close()
		return nil, nil, fmt.Errorf("discover tools: %w", err)
	}
	return tr, found, nil
}

// buildTools converts discovered descriptors into registrable tools,
// applying the server prefix when enabled.
func (m *Manager) buildTools(h *server, found []ToolDescriptor) ([]*RemoteTool, error) {
	tools := make([]*RemoteTool, 0, len(found))
	for _, td := range found {
		spec, err := td.Spec()
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", h.desc.Name, err)
		}
		if m.opts.PrefixTools {
			spec.Name = h.desc.Name + "_" + spec.Name
		}
		tools = append(tools, &RemoteTool{server: h, remote: td.Name, spec: spec})
	}
	return tools, nil
}

// swapTools reconciles the registry with a fresh discovery result: new names
// are registered, surviving names replaced in position, vanished names
// unregistered. Callers hold m.mu. A registration conflict rolls back the
// names added so far and leaves the previous set intact.
func (m *Manager) swapTools(h *server, tools []*RemoteTool) error {
	oldSet := make(map[string]bool, len(h.names))
	for _, n := range h.names {
		oldSet[n] = true
	}

	var added []string
	for _, t := range tools {
		if oldSet[t.spec.Name] {
			continue
		}
		if err := m.registry.Register(t); err != nil {
			for _, n := range added {
				m.registry.Unregister(n)
			}
			return err
		}
		added = append(added, t.spec.Name)
	}

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if oldSet[t.spec.Name] {
			if err := m.registry.Replace(t); err != nil {
				return err
			}
			delete(oldSet, t.spec.Name)
		}
		names = append(names, t.spec.Name)
	}
	for n := range oldSet {
		m.registry.Unregister(n)
	}
	h.names = names
	return nil
}

// watch starts the monitor goroutine for a freshly connected server.
func (m *Manager) watch(h *server) {
	ctx, cancel := context.WithCancel(context.Background())
	h.setCancel(cancel)
	go m.monitor(ctx, h)
}

// monitor waits for the server's transport to drop, then drives the backoff
// retry loop. It exits when the server becomes unavailable or is stopped.
func (m *Manager) monitor(ctx context.Context, h *server) {
	for {
		tr := h.transport()
		if tr == nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tr.Done():
		}
		if ctx.Err() != nil {
			return
		}

		h.setState(StateReconnecting)
		m.logger.Warn("remote.conn.lost", "server", h.desc.Name)

		if err := m.redial(ctx, h); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.markUnavailable(h, err)
			return
		}
		m.logger.Info("remote.conn.restored", "server", h.desc.Name)
	}
}

func (m *Manager) redial(ctx context.Context, h *server) error {
	bo := backoff.NewExponentialBackOff()
	if m.opts.Backoff.InitialInterval > 0 {
		bo.InitialInterval = m.opts.Backoff.InitialInterval
	}
	if m.opts.Backoff.MaxInterval > 0 {
		bo.MaxInterval = m.opts.Backoff.MaxInterval
	}
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := m.refresh(ctx, h)
		if err != nil && ctx.Err() == nil {
			m.logger.Warn("remote.conn.retry",
				"server", h.desc.Name, "attempt", attempt, "error", err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, m.opts.Backoff.MaxRetries), ctx)
	return backoff.Retry(operation, policy)
}

// refresh dials a new transport, rediscovers tools and swaps both into the
// handle. Failures that retrying cannot heal are marked permanent so the
// backoff loop stops early.
func (m *Manager) refresh(ctx context.Context, h *server) error {
	tr, found, err := m.dial(ctx, h.desc)
	if err != nil {
		return err
	}
	tools, err := m.buildTools(h, found)
	if err != nil {
		tr.Close()
		return backoff.Permanent(err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		tr.Close()
		return backoff.Permanent(errManagerClosed)
	}
	if err := m.swapTools(h, tools); err != nil {
		m.mu.Unlock()
		tr.Close()
		return backoff.Permanent(err)
	}
	m.mu.Unlock()

	h.adopt(tr)
	return nil
}

func (m *Manager) markUnavailable(h *server, err error) {
	m.mu.Lock()
	for _, n := range h.names {
		m.registry.Unregister(n)
	}
	h.names = nil
	m.mu.Unlock()

	h.mu.Lock()
	h.state = StateUnavailable
	tr := h.tr
	h.tr = nil
	h.mu.Unlock()
	if tr != nil {
		tr.Close()
	}

	m.logger.Error("remote.server.unavailable", "server", h.desc.Name, "error", err)
}

// server is the handle for one managed remote server.
type server struct {
	desc ServerDescriptor

	mu     sync.Mutex
	state  ServerState
	tr     transport
	cancel context.CancelFunc

	// names holds the registered tool names in registration order,
	// guarded by Manager.mu.
	names []string
}

func (s *server) currentState() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *server) setState(state ServerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// transition moves from one state to another atomically, reporting whether
// the move happened.
func (s *server) transition(from, to ServerState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *server) transport() transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr
}

// live returns the transport only while the server is connected, so calls
// against a dropped server fail fast instead of blocking.
func (s *server) live() (transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.tr == nil {
		return nil, fmt.Errorf("server is %s", s.state)
	}
	return s.tr, nil
}

// adopt installs a fresh transport after a successful reconnect.
func (s *server) adopt(tr transport) {
	s.mu.Lock()
	old := s.tr
	s.tr = tr
	s.state = StateConnected
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (s *server) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	prev := s.cancel
	s.cancel = cancel
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// stop cancels the monitor and closes the transport.
func (s *server) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	tr := s.tr
	s.tr = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if tr != nil {
		tr.Close()
	}
}

// RemoteTool exposes one remote tool through the local Tool interface. The
// registered spec name may carry the server prefix; the wire name sent to
// the server never does.
type RemoteTool struct {
	server *server
	remote string
	spec   core.ToolSpec
}

// Spec returns the tool specification advertised to providers.
func (t *RemoteTool) Spec() core.ToolSpec { return t.spec }

// Call invokes the tool on its server. Transport failures surface as a
// RemoteConnectionError so the registry renders them as error results
// without aborting the run; server-side tool errors keep their JSON-RPC
// code and message.
func (t *RemoteTool) Call(ctx context.Context, args map[string]any) (any, error) {
	tr, err := t.server.live()
	if err != nil {
		return nil, &core.RemoteConnectionError{Server: t.server.desc.Name, Cause: err}
	}
	raw, err := tr.CallTool(ctx, t.remote, args)
	if err != nil {
		var rpcErr *JSONRPCError
		if errors.As(err, &rpcErr) {
			return nil, err
		}
		return nil, &core.RemoteConnectionError{Server: t.server.desc.Name, Cause: err}
	}
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, nil
	}
	return json.RawMessage(raw), nil
}
