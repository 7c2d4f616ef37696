package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvangennip/web-remote-for-OBS/internal/metrics"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	dispatchBuffer = 256

	// DefaultRequestTimeout bounds a single round trip when Options leaves it unset.
	DefaultRequestTimeout = 10 * time.Second
)

// Options configures a Session.
type Options struct {
	// PreferSecure makes endpoints without an explicit scheme or port 443
	// resolve to wss://.
	PreferSecure bool
	// RequestTimeout bounds each call; negative disables the bound.
	RequestTimeout time.Duration
	Dialer         *websocket.Dialer
	Log            zerolog.Logger
}

// Session owns one logical connection to OBS. At most one transport is
// active at a time; Connect tears down the previous one first.
type Session struct {
	opts   Options
	dialer *websocket.Dialer
	log    zerolog.Logger
	router *Router
	tracer trace.Tracer

	connectMu sync.Mutex // serialises Connect and Disconnect

	mu         sync.Mutex
	state      State
	lastError  error
	endpoint   Endpoint
	version    VersionInfo
	conn       *conn
	lifecycles []Lifecycle
	observers  []func(from, to State)
}

// pendingRequest is owned by the conn until it resolves exactly once.
type pendingRequest struct {
	command   string
	params    Params
	createdAt time.Time
	ch        chan Result
}

type dispatchItem struct {
	event      Event
	connected  bool
	disconnect *DisconnectInfo
}

// conn is one underlying websocket transport.
type conn struct {
	ws       *websocket.Conn
	endpoint Endpoint
	ctx      context.Context
	cancel   context.CancelFunc

	writeMu sync.Mutex // serialises all ws writes (requests, pings, close)

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	queueMu     sync.Mutex
	queue       chan dispatchItem
	queueClosed bool

	closing    atomic.Bool // operator asked to close
	finalState atomic.Int32
	done       chan struct{} // closed once the disconnected callback ran
}

// NewSession creates a disconnected session.
func NewSession(opts Options) *Session {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := opts.Log.With().Str("component", "session").Logger()
	return &Session{
		opts:   opts,
		dialer: dialer,
		log:    log,
		router: NewRouter(opts.Log),
		tracer: otel.Tracer("github.com/dvangennip/web-remote-for-OBS/internal/client"),
	}
}

// Router returns the push-event router fed by this session.
func (s *Session) Router() *Router {
	return s.router
}

// AddLifecycle registers a connected/disconnected observer.
func (s *Session) AddLifecycle(l Lifecycle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lifecycles = append(s.lifecycles, l)
}

// OnStateChange registers fn to be called after every state transition.
func (s *Session) OnStateChange(fn func(from, to State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent transport-level error, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Endpoint returns the endpoint of the current or last connection attempt.
func (s *Session) Endpoint() Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Version returns the versions reported by OBS after the last authentication.
func (s *Session) Version() VersionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	observers := append([]func(from, to State){}, s.observers...)
	s.mu.Unlock()

	metrics.RecordStateTransition(from.String(), to.String())
	s.log.Debug().Stringer("from", from).Stringer("to", to).Msg("state transition")
	for _, fn := range observers {
		fn(from, to)
	}
}

func (s *Session) lifecycleSnapshot() []Lifecycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Lifecycle(nil), s.lifecycles...)
}

// Connect resolves raw into an endpoint, opens the transport and runs the
// authentication handshake. Any previous transport is fully closed first.
// It returns ErrAuthFailed when OBS rejects the credential.
func (s *Session) Connect(ctx context.Context, raw, credential string) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.disconnectLocked()

	ep := ResolveEndpoint(raw, s.opts.PreferSecure)
	s.mu.Lock()
	s.endpoint = ep
	s.lastError = nil
	s.mu.Unlock()

	s.setState(StateConnecting)
	s.log.Info().Str("host", ep.Host).Bool("secure", ep.Secure).Msg("connecting")

	ws, _, err := s.dialer.DialContext(ctx, ep.URL(), nil)
	if err != nil {
		s.mu.Lock()
		s.lastError = err
		s.mu.Unlock()
		s.setState(StateErrored)
		s.log.Warn().Err(err).Str("url", ep.URL()).Msg("dial failed")
		info := DisconnectInfo{Reason: ReasonNetworkError, Endpoint: ep, PreferSecure: s.opts.PreferSecure, Err: err}
		for _, l := range s.lifecycleSnapshot() {
			l.Disconnected(info)
		}
		return fmt.Errorf("dial %s: %w", ep.URL(), err)
	}

	c := s.newConn(ws, ep)
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	s.setState(StateConnected)

	go s.readLoop(c)
	go s.dispatchLoop(c)
	go s.pingLoop(c)

	version, err := s.authenticate(ctx, c, credential)
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			c.finalState.Store(int32(StateAuthFailed))
			s.setState(StateAuthFailed)
			s.log.Warn().Err(err).Msg("authentication failed")
		} else {
			c.finalState.Store(int32(StateErrored))
			s.mu.Lock()
			s.lastError = err
			s.mu.Unlock()
			s.log.Warn().Err(err).Msg("handshake failed")
		}
		s.closeConn(c)
		return err
	}

	s.mu.Lock()
	alive := s.conn == c
	if alive {
		s.version = version
	}
	s.mu.Unlock()
	if !alive {
		return fmt.Errorf("handshake: %w", errClosed)
	}
	s.setState(StateAuthenticated)
	s.log.Info().
		Str("obs_websocket", version.WebsocketVersion).
		Str("obs_studio", version.StudioVersion).
		Str("transport", ep.TransportName()).
		Msg("connected")

	c.enqueue(dispatchItem{connected: true})
	return nil
}

// Disconnect closes the transport and returns once it is fully torn down
// and the disconnected callbacks have run. It is safe to call at any time.
// It must not be called from a listener or lifecycle callback.
func (s *Session) Disconnect() {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	s.disconnectLocked()
}

func (s *Session) disconnectLocked() {
	s.mu.Lock()
	c := s.conn
	state := s.state
	s.mu.Unlock()
	if c == nil {
		// A failed connect leaves AuthFailed or Errored behind with no
		// socket; an explicit disconnect still settles on Disconnected.
		if state == StateAuthFailed || state == StateErrored {
			s.setState(StateDisconnected)
		}
		return
	}
	c.closing.Store(true)
	s.closeConn(c)
}

// closeConn sends a close frame, closes the socket and waits for teardown.
func (s *Session) closeConn(c *conn) {
	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.ws.Close()
	<-c.done
}

func (s *Session) newConn(ws *websocket.Conn, ep Endpoint) *conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		ws:       ws,
		endpoint: ep,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]*pendingRequest),
		queue:    make(chan dispatchItem, dispatchBuffer),
		done:     make(chan struct{}),
	}
	c.finalState.Store(int32(StateDisconnected))
	return c
}

func (s *Session) authenticate(ctx context.Context, c *conn, password string) (VersionInfo, error) {
	var version VersionInfo

	res, err := s.roundTrip(ctx, c, "GetAuthRequired", nil)
	if err != nil {
		return version, fmt.Errorf("GetAuthRequired: %w", err)
	}
	var ar authRequiredResponse
	if err := res.Decode(&ar); err != nil {
		return version, fmt.Errorf("GetAuthRequired: %w", err)
	}

	if ar.AuthRequired {
		res, err = s.roundTrip(ctx, c, "Authenticate", Params{"auth": AuthResponse(password, ar.Salt, ar.Challenge)})
		if err != nil {
			return version, fmt.Errorf("Authenticate: %w", err)
		}
		if !res.OK() {
			return version, fmt.Errorf("%w: %s", ErrAuthFailed, res.Error)
		}
	}

	res, err = s.roundTrip(ctx, c, "GetVersion", nil)
	if err != nil {
		return version, fmt.Errorf("GetVersion: %w", err)
	}
	if err := res.Decode(&version); err != nil {
		return version, fmt.Errorf("GetVersion: %w", err)
	}
	return version, nil
}

// Call sends command and waits for its response. It never returns a Go
// error: every outcome is a Result. While the session is not authenticated
// it fails fast without touching the transport.
func (s *Session) Call(ctx context.Context, command string, params Params) Result {
	s.mu.Lock()
	c, state := s.conn, s.state
	s.mu.Unlock()

	if state != StateAuthenticated || c == nil {
		metrics.Requests.WithLabelValues(command, "not_connected").Inc()
		return errorResult(command, params, ErrNotConnected.Error())
	}

	res, err := s.roundTrip(ctx, c, command, params)
	if err != nil {
		s.log.Debug().Err(err).Str("command", command).Msg("request failed")
		return errorResult(command, params, err.Error())
	}
	if !res.OK() {
		s.log.Debug().Str("command", command).Str("error", res.Error).Msg("request rejected")
	}
	return res
}

// Send writes command without waiting for a response; any reply OBS sends
// is discarded as a response for an unknown request.
func (s *Session) Send(command string, params Params) error {
	s.mu.Lock()
	c, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateAuthenticated || c == nil {
		return ErrNotConnected
	}
	data, err := encodeRequest(uuid.NewString(), command, params)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if err := c.write(data); err != nil {
		return fmt.Errorf("send %s: %w", command, err)
	}
	metrics.Requests.WithLabelValues(command, "sent").Inc()
	return nil
}

// roundTrip performs one request on c. A non-nil error means the request
// never got a response (transport closed, timeout, cancellation); a
// rejection by OBS is an error-status Result with a nil error.
func (s *Session) roundTrip(ctx context.Context, c *conn, command string, params Params) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "obs."+command, trace.WithAttributes(attribute.String("obs.command", command)))
	defer span.End()

	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.do(ctx, command, params)
	metrics.RequestDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())

	status := string(res.Status)
	if err != nil {
		status = "failed"
		span.SetStatus(codes.Error, err.Error())
	} else if !res.OK() {
		span.SetStatus(codes.Error, res.Error)
	}
	metrics.Requests.WithLabelValues(command, status).Inc()
	return res, err
}

func (c *conn) do(ctx context.Context, command string, params Params) (Result, error) {
	id := uuid.NewString()
	data, err := encodeRequest(id, command, params)
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}

	req := &pendingRequest{command: command, params: params, createdAt: time.Now(), ch: make(chan Result, 1)}
	c.pendingMu.Lock()
	if c.pending == nil {
		c.pendingMu.Unlock()
		return Result{}, errClosed
	}
	c.pending[id] = req
	c.pendingMu.Unlock()
	metrics.PendingRequests.Inc()

	if err := c.write(data); err != nil {
		if c.take(id) != nil {
			return Result{}, fmt.Errorf("send: %w", err)
		}
		return c.settled(<-req.ch)
	}

	select {
	case res := <-req.ch:
		return c.settled(res)
	case <-ctx.Done():
		if c.take(id) != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Result{}, ErrTimeout
			}
			return Result{}, ctx.Err()
		}
		// Resolved concurrently; the result is already buffered.
		return c.settled(<-req.ch)
	}
}

// settled converts the transport-close sentinel result into an error.
func (c *conn) settled(res Result) (Result, error) {
	if res.Status == "" {
		return Result{}, errClosed
	}
	return res, nil
}

// take removes a pending request; whoever removes it owns its resolution.
func (c *conn) take(id string) *pendingRequest {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	req, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	metrics.PendingRequests.Dec()
	return req
}

func (c *conn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// enqueue hands an item to the dispatch goroutine. It reports false once
// the connection has been torn down.
func (c *conn) enqueue(item dispatchItem) bool {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.queueClosed {
		return false
	}
	c.queue <- item
	return true
}

func (s *Session) readLoop(c *conn) {
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	c.ws.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			s.teardown(c, err)
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongTimeout))

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed message")
			continue
		}

		if env.UpdateType == "" {
			req := c.take(env.MessageID)
			if req == nil {
				s.log.Debug().Str("message_id", env.MessageID).Msg("response for unknown request")
				continue
			}
			res := Result{Status: env.Status, Command: req.command, Params: req.params, Error: env.Error, Raw: data}
			if res.Status != StatusOK {
				res.Status = StatusError
				res.Raw = nil
			}
			req.ch <- res
			continue
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				s.log.Debug().Str("event", env.UpdateType).Msg("ignoring unhandled event")
			} else {
				s.log.Warn().Err(err).Msg("dropping malformed event")
			}
			continue
		}
		c.enqueue(dispatchItem{event: ev})
	}
}

// teardown settles every pending request, updates the session state and
// queues the disconnected notification. It runs once per conn.
func (s *Session) teardown(c *conn, err error) {
	c.ws.Close()
	c.cancel()

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()
	for _, req := range pending {
		metrics.PendingRequests.Dec()
		req.ch <- Result{} // settled as errClosed
	}

	final := State(c.finalState.Load())
	info := DisconnectInfo{Endpoint: c.endpoint, PreferSecure: s.opts.PreferSecure}
	switch {
	case final == StateAuthFailed:
		info.Reason = ReasonAuthFailure
	case c.closing.Load():
		info.Reason = ReasonRequested
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		info.Reason = ReasonRemoteClosed
	default:
		info.Reason = ReasonNetworkError
		info.Err = err
	}

	s.mu.Lock()
	if s.conn == c {
		s.conn = nil
	}
	if info.Reason == ReasonNetworkError && final != StateErrored {
		s.lastError = err
	}
	s.mu.Unlock()
	s.setState(final)

	s.log.Info().Str("reason", string(info.Reason)).Err(info.Err).Msg("disconnected")

	c.queueMu.Lock()
	c.queue <- dispatchItem{disconnect: &info}
	c.queueClosed = true
	close(c.queue)
	c.queueMu.Unlock()
}

// dispatchLoop delivers events and lifecycle notifications for one conn in
// arrival order, one at a time.
func (s *Session) dispatchLoop(c *conn) {
	defer close(c.done)
	for item := range c.queue {
		switch {
		case item.event != nil:
			s.router.Emit(item.event)
		case item.connected:
			for _, l := range s.lifecycleSnapshot() {
				l.Connected(c.ctx)
			}
		case item.disconnect != nil:
			for _, l := range s.lifecycleSnapshot() {
				l.Disconnected(*item.disconnect)
			}
		}
	}
}

// pingLoop sends periodic pings until the conn's context is cancelled.
func (s *Session) pingLoop(c *conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
