// Package feed owns one exchange WebSocket connection: subscription state,
// auto-reconnect with backoff and replay, typed message dispatch, and
// connection health metrics.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"tessera/internal/auth"
	"tessera/internal/ws"
)

// ErrStartTimeout is returned by Start when the first handshake does not
// complete inside the bounded wait. The worker keeps retrying regardless.
var ErrStartTimeout = errors.New("feed: no connection before start timeout")

// Handler receives every dispatched message for a channel. Handlers run on
// the feed worker in receipt order; a panicking handler is isolated and
// never takes down the worker or its sibling handlers.
type Handler func(*Message)

// Subscription is a channel name plus an optional single ticker or ticker
// list. Subscriptions survive reconnects and are replayed in registration
// order on every fresh connection.
type Subscription struct {
	Channel string
	Ticker  string
	Tickers []string
}

func (s Subscription) equal(other Subscription) bool {
	if s.Channel != other.Channel || s.Ticker != other.Ticker {
		return false
	}
	if len(s.Tickers) != len(other.Tickers) {
		return false
	}
	for i := range s.Tickers {
		if s.Tickers[i] != other.Tickers[i] {
			return false
		}
	}
	return true
}

// Config controls the feed's connection behavior.
type Config struct {
	URL string

	// StartTimeout bounds how long Start blocks for the first handshake.
	StartTimeout time.Duration
	// StopTimeout bounds how long Stop waits for the worker to exit.
	StopTimeout time.Duration
	// HandshakeTimeout bounds a single connection attempt.
	HandshakeTimeout time.Duration

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration

	PingInterval time.Duration
	PongWait     time.Duration
}

// DefaultConfig returns the standard connection settings.
func DefaultConfig(wsURL string) Config {
	return Config{
		URL:               wsURL,
		StartTimeout:      10 * time.Second,
		StopTimeout:       5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReconnectBaseWait: 500 * time.Millisecond,
		ReconnectMaxWait:  30 * time.Second,
		PingInterval:      10 * time.Second,
		PongWait:          20 * time.Second,
	}
}

// Feed is the market-data and account-event stream. One background worker
// owns the connect/reconnect loop; all control methods are safe to call
// from any goroutine.
type Feed struct {
	config Config
	signer *auth.Signer
	path   string
	logger zerolog.Logger
	state  *ws.State

	mu       sync.Mutex
	conn     *gws.Conn
	subs     []Subscription
	handlers map[string][]Handler
	cmdID    atomic.Int64

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	connectedAt  atomic.Int64 // unix nanos, 0 while disconnected
	lastMsgAt    atomic.Int64 // unix nanos
	lastLatency  atomic.Int64 // nanos, receive time minus server timestamp
	msgCount     atomic.Int64
	connectCount atomic.Int64
	ackErrors    atomic.Int64
}

// New creates a feed for the given endpoint. The signer may be nil for
// public channels; authenticated channels (fills, positions, order groups)
// require it for the handshake.
func New(config Config, signer *auth.Signer) *Feed {
	if config.StartTimeout == 0 {
		config.StartTimeout = 10 * time.Second
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = 5 * time.Second
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.ReconnectBaseWait == 0 {
		config.ReconnectBaseWait = 500 * time.Millisecond
	}
	if config.ReconnectMaxWait == 0 {
		config.ReconnectMaxWait = 30 * time.Second
	}
	if config.PingInterval == 0 {
		config.PingInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}

	path := ""
	if u, err := url.Parse(config.URL); err == nil {
		path = u.Path
	}

	f := &Feed{
		config:   config,
		signer:   signer,
		path:     path,
		logger:   zerolog.Nop(),
		state:    &ws.State{},
		handlers: make(map[string][]Handler),
	}
	f.state.Store(ws.StateDisconnected)
	return f
}

// SetLogger replaces the feed's logger.
func (f *Feed) SetLogger(logger zerolog.Logger) {
	f.logger = logger
}

// On registers a handler for a channel and returns it for chaining. Any
// number of handlers may be registered per channel.
func (f *Feed) On(channel string, handler Handler) Handler {
	f.mu.Lock()
	f.handlers[channel] = append(f.handlers[channel], handler)
	f.mu.Unlock()
	return handler
}

// Subscribe records the subscription and, if currently connected, sends the
// subscribe command immediately. The subscription is replayed on every
// fresh connection until explicitly removed.
func (f *Feed) Subscribe(sub Subscription) error {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	conn := f.conn
	connected := f.state.Load() == ws.StateConnected
	f.mu.Unlock()

	if connected && conn != nil {
		return f.sendCommand(conn, "subscribe", sub)
	}
	return nil
}

// Unsubscribe removes a structurally-equal subscription from the active set
// and, if connected, sends the unsubscribe command.
func (f *Feed) Unsubscribe(sub Subscription) error {
	f.mu.Lock()
	found := false
	for i, existing := range f.subs {
		if existing.equal(sub) {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			found = true
			break
		}
	}
	conn := f.conn
	connected := f.state.Load() == ws.StateConnected
	f.mu.Unlock()

	if !found {
		return fmt.Errorf("feed: subscription not found: %s", sub.Channel)
	}
	if connected && conn != nil {
		return f.sendCommand(conn, "unsubscribe", sub)
	}
	return nil
}

// Subscriptions returns a copy of the active subscription set in
// registration order.
func (f *Feed) Subscriptions() []Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Subscription, len(f.subs))
	copy(out, f.subs)
	return out
}

// Start launches the connection worker and blocks up to StartTimeout for
// the first successful handshake. On timeout it returns ErrStartTimeout
// while the worker keeps retrying in the background.
func (f *Feed) Start(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return errors.New("feed: already started")
	}

	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	firstConn := make(chan struct{})

	go f.run(firstConn)

	select {
	case <-firstConn:
		return nil
	case <-time.After(f.config.StartTimeout):
		return ErrStartTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the transport and waits, bounded by StopTimeout, for the
// worker to exit. It is the only clean terminal exit.
func (f *Feed) Stop() error {
	if !f.running.CompareAndSwap(true, false) {
		return nil
	}

	close(f.stopCh)

	f.mu.Lock()
	if f.conn != nil {
		_ = f.conn.WriteClose(1000, nil)
		_ = f.conn.NetConn().Close()
	}
	f.mu.Unlock()

	select {
	case <-f.doneCh:
	case <-time.After(f.config.StopTimeout):
		f.state.Store(ws.StateClosed)
		return errors.New("feed: worker did not exit before stop timeout")
	}

	f.state.Store(ws.StateClosed)
	return nil
}

// run is the worker: one connection attempt loop with exponential backoff,
// subscription replay on every fresh connection, terminated only by Stop.
func (f *Feed) run(firstConn chan<- struct{}) {
	defer close(f.doneCh)

	failures := 0
	notifiedFirst := false

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if f.connectCount.Load() == 0 {
			f.state.Store(ws.StateConnecting)
		} else {
			f.state.Store(ws.StateReconnecting)
		}

		closed, err := f.connect()
		if err != nil {
			failures++
			wait := f.backoff(failures - 1)
			f.logger.Warn().Err(err).
				Int("failures", failures).
				Dur("wait", wait).
				Msg("feed connect failed")
			select {
			case <-time.After(wait):
				continue
			case <-f.stopCh:
				return
			}
		}

		failures = 0
		n := f.connectCount.Add(1)
		if n == 1 {
			f.logger.Info().Str("url", f.config.URL).Msg("feed connected")
		} else {
			f.logger.Info().Int64("reconnects", n-1).Msg("feed reconnected")
		}
		if !notifiedFirst {
			close(firstConn)
			notifiedFirst = true
		}

		f.replaySubscriptions()

		select {
		case <-closed:
			// Reconnect unless stopping; post-reconnect snapshots become
			// the new source of truth for any derived state.
			f.connectedAt.Store(0)
			continue
		case <-f.stopCh:
			return
		}
	}
}

// connect performs one handshake attempt. On success it returns a channel
// closed when the connection drops.
func (f *Feed) connect() (<-chan struct{}, error) {
	header := http.Header{}
	if f.signer != nil {
		signed, err := f.signer.Headers(http.MethodGet, f.path)
		if err != nil {
			return nil, err
		}
		for k, v := range signed {
			header.Set(k, v)
		}
	}

	h := &connHandler{
		feed:   f,
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}

	socket, _, err := gws.NewClient(h, &gws.ClientOption{
		Addr:          f.config.URL,
		RequestHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("feed: dial: %w", err)
	}

	f.mu.Lock()
	f.conn = socket
	f.mu.Unlock()

	go socket.ReadLoop()

	select {
	case <-h.opened:
		return h.closed, nil
	case <-h.closed:
		return nil, errors.New("feed: connection closed during handshake")
	case <-time.After(f.config.HandshakeTimeout):
		_ = socket.NetConn().Close()
		return nil, errors.New("feed: handshake timeout")
	case <-f.stopCh:
		_ = socket.NetConn().Close()
		return nil, errors.New("feed: stopped")
	}
}

// replaySubscriptions resends the active set in registration order before
// any other traffic on a fresh connection.
func (f *Feed) replaySubscriptions() {
	f.mu.Lock()
	subs := make([]Subscription, len(f.subs))
	copy(subs, f.subs)
	conn := f.conn
	f.mu.Unlock()

	for _, sub := range subs {
		if err := f.sendCommand(conn, "subscribe", sub); err != nil {
			f.logger.Warn().Err(err).
				Str("channel", sub.Channel).
				Msg("subscription replay failed")
		}
	}
}

func (f *Feed) sendCommand(conn *gws.Conn, cmd string, sub Subscription) error {
	msg := command{
		ID:  f.cmdID.Add(1),
		Cmd: cmd,
		Params: commandParams{
			Channels:      []string{sub.Channel},
			MarketTicker:  sub.Ticker,
			MarketTickers: sub.Tickers,
		},
	}
	data, err := sonic.Marshal(msg)
	if err != nil {
		return fmt.Errorf("feed: marshal command: %w", err)
	}
	if conn == nil {
		return errors.New("feed: not connected")
	}
	f.logger.Debug().Str("cmd", cmd).Str("channel", sub.Channel).Msg("sending command")
	return conn.WriteMessage(gws.OpcodeText, data)
}

// dispatch routes one inbound frame: count it, decode the envelope, map
// the wire type to a channel, decode the typed payload (raw fallback on
// failure), and invoke every registered handler with panics isolated.
// Dispatch never raises out of the worker.
func (f *Feed) dispatch(data []byte) {
	now := time.Now()
	f.msgCount.Add(1)
	f.lastMsgAt.Store(now.UnixNano())

	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		f.logger.Warn().Err(err).Msg("undecodable frame")
		return
	}

	entry, known := wireTypes[env.Type]
	if !known {
		f.handleAck(env.Type, data)
		return
	}

	msg := &Message{
		Type:       env.Type,
		Channel:    entry.channel,
		SID:        env.SID,
		Seq:        env.Seq,
		Raw:        data,
		ReceivedAt: now,
	}

	payload, err := entry.decode(env.Msg)
	if err != nil {
		// Parse failures are swallowed per-message: deliver raw rather
		// than drop the frame.
		f.logger.Warn().Err(err).Str("type", env.Type).Msg("payload decode failed")
	} else {
		msg.Data = payload
		if timed, ok := payload.(serverTimed); ok {
			if ms := timed.ServerTimeMs(); ms > 0 {
				f.lastLatency.Store((now.UnixMilli() - ms) * int64(time.Millisecond))
			}
		}
	}

	f.mu.Lock()
	handlers := make([]Handler, len(f.handlers[entry.channel]))
	copy(handlers, f.handlers[entry.channel])
	f.mu.Unlock()

	for _, handler := range handlers {
		f.invoke(handler, msg)
	}
}

// invoke isolates one handler call; a panic is logged and the remaining
// handlers still run.
func (f *Feed) invoke(handler Handler, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error().
				Any("panic", r).
				Str("channel", msg.Channel).
				Msg("handler panicked")
		}
	}()
	handler(msg)
}

// handleAck processes subscribe/unsubscribe confirmations and server error
// frames; they are logged, not dispatched to user handlers.
func (f *Feed) handleAck(frameType string, data []byte) {
	var ack commandAck
	if err := sonic.Unmarshal(data, &ack); err != nil {
		f.logger.Debug().Str("type", frameType).Msg("unknown frame")
		return
	}

	switch frameType {
	case "subscribed", "unsubscribed", "ok":
		f.logger.Debug().
			Int64("id", ack.ID).
			Str("channel", ack.Msg.Channel).
			Str("type", frameType).
			Msg("command acknowledged")
	case "error":
		f.ackErrors.Add(1)
		f.logger.Warn().
			Int64("id", ack.ID).
			Str("code", ack.Msg.Code).
			Str("msg", ack.Msg.Message).
			Msg("command rejected")
	default:
		f.logger.Debug().Str("type", frameType).Msg("unknown frame")
	}
}

func (f *Feed) backoff(failures int) time.Duration {
	wait := f.config.ReconnectBaseWait << uint(failures)
	if wait > f.config.ReconnectMaxWait || wait <= 0 {
		wait = f.config.ReconnectMaxWait
	}
	return wait
}

// IsConnected reports whether a connection is currently established.
func (f *Feed) IsConnected() bool {
	return f.state.Load() == ws.StateConnected
}

// State returns the current connection state.
func (f *Feed) State() ws.ConnState {
	return f.state.Load()
}

// Uptime returns the age of the current connection, zero when disconnected.
// It resets on every reconnect; cumulative counters do not.
func (f *Feed) Uptime() time.Duration {
	at := f.connectedAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

// SinceLastMessage returns the time since the last inbound frame, zero if
// none was ever received.
func (f *Feed) SinceLastMessage() time.Duration {
	at := f.lastMsgAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

// MessagesReceived returns the cumulative inbound frame count across
// reconnects.
func (f *Feed) MessagesReceived() int64 {
	return f.msgCount.Load()
}

// Reconnects returns the number of successful connects after the first.
func (f *Feed) Reconnects() int64 {
	n := f.connectCount.Load()
	if n <= 1 {
		return 0
	}
	return n - 1
}

// LastLatency returns the most recent receive-time-minus-server-timestamp
// measurement, zero if no timed message has arrived.
func (f *Feed) LastLatency() time.Duration {
	return time.Duration(f.lastLatency.Load())
}

// connHandler adapts one gws connection to the feed. Each connection
// attempt gets its own handler so stale events cannot touch a newer
// connection's channels.
type connHandler struct {
	feed     *Feed
	opened   chan struct{}
	closed   chan struct{}
	openOnce sync.Once
	doneOnce sync.Once
}

func (h *connHandler) OnOpen(socket *gws.Conn) {
	h.feed.state.Store(ws.StateConnected)
	h.feed.connectedAt.Store(time.Now().UnixNano())
	h.openOnce.Do(func() { close(h.opened) })
	_ = socket.SetDeadline(time.Now().Add(h.feed.config.PingInterval + h.feed.config.PongWait))
}

func (h *connHandler) OnClose(socket *gws.Conn, err error) {
	h.feed.state.Store(ws.StateDisconnected)
	h.feed.connectedAt.Store(0)
	h.feed.logger.Warn().Err(err).Msg("feed disconnected")
	h.doneOnce.Do(func() { close(h.closed) })
}

func (h *connHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.feed.config.PingInterval + h.feed.config.PongWait))
	_ = socket.WritePong(nil)
}

func (h *connHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.feed.config.PingInterval + h.feed.config.PongWait))
}

func (h *connHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	data := message.Bytes()
	if len(data) == 0 {
		return
	}
	// Copy out: gws reuses the message buffer after Close.
	buf := make([]byte, len(data))
	copy(buf, data)
	h.feed.dispatch(buf)
}
