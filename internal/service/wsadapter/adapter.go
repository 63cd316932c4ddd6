// Package wsadapter implements a service adapter that exchanges JSON
// encoded actions over a WebSocket connection.
package wsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/service"
)

const (
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultDialTimeout bounds the opening handshake.
	DefaultDialTimeout = 5 * time.Second
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithAutoConnect makes the adapter connect as soon as the store starts.
func WithAutoConnect(auto bool) Option {
	return func(a *Adapter) {
		a.autoConnect = auto
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(a *Adapter) {
		a.dialer = d
	}
}

// WithSendLimit caps outgoing actions per second. Actions over the limit
// are not sent and reported through the bridge.
func WithSendLimit(perSecond float64, burst int) Option {
	return func(a *Adapter) {
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithWriteTimeout sets the deadline of each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.writeTimeout = d
	}
}

// WithDialTimeout bounds the opening handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		a.dialTimeout = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = l
	}
}

// Adapter is a service.Adapter backed by a gorilla/websocket client.
//
// Each incoming text frame must hold one JSON action. Outgoing actions
// are written as JSON text frames while the service is open.
//
// Thread-safety: the bridge callbacks run inside store passes; dialing and
// reading happen on a background goroutine per connection.
type Adapter struct {
	url          string
	dialer       *websocket.Dialer
	autoConnect  bool
	limiter      *rate.Limiter
	writeTimeout time.Duration
	dialTimeout  time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	bridge  service.Bridge
	conn    *websocket.Conn
	cancel  context.CancelFunc
	writeMu sync.Mutex
}

var _ service.Adapter = (*Adapter)(nil)

// New creates an adapter for the WebSocket endpoint url.
func New(url string, opts ...Option) *Adapter {
	a := &Adapter{
		url:          url,
		dialer:       websocket.DefaultDialer,
		writeTimeout: DefaultWriteTimeout,
		dialTimeout:  DefaultDialTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Install implements service.Adapter.
func (a *Adapter) Install(b service.Bridge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bridge = b
}

// OnInitial implements service.Adapter.
func (a *Adapter) OnInitial() {
	if a.autoConnect {
		a.next(service.Connecting)
	}
}

// OnControlMessage implements service.Adapter. Open is valid from the
// initial and closed states, close only while open.
func (a *Adapter) OnControlMessage(msg service.ControlMessage) {
	b := a.currentBridge()
	status := b.Status()
	switch {
	case msg == service.ControlOpen && (status == service.Initial || status == service.Closed):
		a.next(service.Connecting)
	case msg == service.ControlClose && status == service.Open:
		a.next(service.Closing)
	default:
		b.Throw(fmt.Errorf("adapter.onControlMessage(msg): Invalid control message '%s'", msg))
	}
}

// OnReadyState implements service.Adapter.
func (a *Adapter) OnReadyState(status service.ReadyState) {
	switch status {
	case service.Connecting:
		a.connect()
	case service.Closing:
		a.disconnect()
	case service.Closed:
		a.mu.Lock()
		a.conn = nil
		a.cancel = nil
		a.mu.Unlock()
	}
}

// OnAction implements service.Adapter.
func (a *Adapter) OnAction(act action.Action) {
	b := a.currentBridge()
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()

	if conn == nil || b.Status() != service.Open {
		b.Throw(fmt.Errorf("Action delivery failed: %s", act.Type))
		return
	}
	if a.limiter != nil && !a.limiter.Allow() {
		b.Throw(fmt.Errorf("Action delivery throttled: %s", act.Type))
		return
	}

	data, err := json.Marshal(act)
	if err != nil {
		b.Throw(fmt.Errorf("encode action %s: %w", act.Type, err))
		return
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(a.writeTimeout)); err != nil {
		b.Throw(fmt.Errorf("Action delivery failed: %s: %w", act.Type, err))
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.Throw(fmt.Errorf("Action delivery failed: %s: %w", act.Type, err))
	}
}

func (a *Adapter) connect() {
	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	b := a.bridge
	a.mu.Unlock()

	go func() {
		defer cancel()

		dialCtx, dialCancel := context.WithTimeout(ctx, a.dialTimeout)
		conn, _, err := a.dialer.DialContext(dialCtx, a.url, nil)
		dialCancel()
		if err != nil {
			b.Throw(fmt.Errorf("dial %s: %w", a.url, err))
			a.nextFrom(b, service.Closed)
			return
		}
		defer conn.Close()

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()

		a.logger.Info("websocket connected", "url", a.url)
		a.nextFrom(b, service.Open)
		a.read(ctx, conn, b)
		a.logger.Info("websocket disconnected", "url", a.url)
		a.nextFrom(b, service.Closed)
	}()
}

// read dispatches incoming frames until the connection fails or closes.
func (a *Adapter) read(ctx context.Context, conn *websocket.Conn, b service.Bridge) {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.Throw(err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var in action.Action
		if err := json.Unmarshal(message, &in); err != nil {
			b.Throw(fmt.Errorf("decode incoming action: %w", err))
			continue
		}
		if in.Type == "" {
			b.Throw(errors.New("decode incoming action: missing type"))
			continue
		}
		b.Dispatch(in)
	}
}

func (a *Adapter) disconnect() {
	a.mu.Lock()
	conn := a.conn
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return
	}

	a.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(a.writeTimeout)); err != nil {
		a.logger.Debug("websocket close frame failed", "url", a.url, "error", err)
	}
	a.writeMu.Unlock()
	conn.Close()
}

func (a *Adapter) currentBridge() service.Bridge {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bridge
}

func (a *Adapter) next(status service.ReadyState) {
	a.nextFrom(a.currentBridge(), status)
}

// nextFrom moves b to status unless it is already there.
func (a *Adapter) nextFrom(b service.Bridge, status service.ReadyState) {
	if b.Status() == status {
		return
	}
	if err := b.NextReadyState(status); err != nil {
		b.Throw(err)
	}
}
