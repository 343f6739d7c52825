// Package chat connects to a trip's group chat over WebSocket, reconnecting
// within a bounded retry policy and falling back to REST for sends.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/internal/retry"
)

// ErrClosed is returned when using a connection after Close.
var ErrClosed = errors.New("chat connection closed")

const (
	messageBuffer = 64
	errorBuffer   = 4
	writeTimeout  = 10 * time.Second
)

// State is the lifecycle state of a chat connection.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateFailed       State = "failed"
)

// IsTerminal reports whether the connection will never deliver again.
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// TokenSource provides the current access token for the handshake.
type TokenSource interface {
	AccessToken() string
}

// RESTService is the HTTP fallback for history and sending.
type RESTService interface {
	ChatHistory(ctx context.Context, tripID int64) ([]*models.ChatMessage, error)
	PostChatMessage(ctx context.Context, tripID int64, text string) (*models.ChatMessage, error)
}

// Conn is a live connection to one trip's chat room.
type Conn struct {
	tripID int64
	wsBase string
	tokens TokenSource
	rest   RESTService
	dialer *websocket.Dialer
	retry  *retry.Manager
	logger *slog.Logger

	mu         sync.Mutex
	ws         *websocket.Conn
	state      State
	closed     bool
	reconnects int

	writeMu sync.Mutex

	messages chan *models.ChatMessage
	errs     chan error
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Conn.
type Option func(*Conn)

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) {
		c.dialer = d
	}
}

// WithRetry sets the reconnect policy.
func WithRetry(m *retry.Manager) Option {
	return func(c *Conn) {
		c.retry = m
	}
}

// WithREST enables history and the REST send fallback.
func WithREST(rest RESTService) Option {
	return func(c *Conn) {
		c.rest = rest
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an unconnected chat connection for a trip.
func New(wsBase string, tripID int64, tokens TokenSource, opts ...Option) *Conn {
	c := &Conn{
		tripID:   tripID,
		wsBase:   strings.TrimSuffix(wsBase, "/"),
		tokens:   tokens,
		dialer:   websocket.DefaultDialer,
		logger:   slog.Default(),
		state:    StateIdle,
		messages: make(chan *models.ChatMessage, messageBuffer),
		errs:     make(chan error, errorBuffer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		c.retry = retry.NewManager()
	}
	c.logger = c.logger.With("component", "chat", "trip_id", tripID)
	return c
}

// URL returns the room URL for the given token.
func (c *Conn) URL(token string) string {
	q := url.Values{}
	q.Set("token", token)
	return c.wsBase + "/chat/" + strconv.FormatInt(c.tripID, 10) + "/?" + q.Encode()
}

// TripID returns the trip this connection belongs to.
func (c *Conn) TripID() int64 { return c.tripID }

// Messages delivers inbound messages. It is closed when the connection ends.
func (c *Conn) Messages() <-chan *models.ChatMessage { return c.messages }

// Errors delivers connection errors. A ReconnectExhausted error is terminal.
// It is closed when the connection ends.
func (c *Conn) Errors() <-chan error { return c.errs }

// Done is closed once the connection has fully stopped.
func (c *Conn) Done() <-chan struct{} { return c.done }

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reconnects counts successful reconnects since Connect.
func (c *Conn) Reconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnects
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		c.logger.Debug("chat state changed", "from", prev, "to", s)
	}
}

// Connect opens the socket and starts the read loop. The initial dial is
// not retried; reconnects after a drop are.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("chat already started (state %s)", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.state = StateIdle
		}
		c.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		_ = ws.Close()
		return ErrClosed
	}
	c.ws = ws
	c.cancel = cancel
	c.mu.Unlock()
	c.setState(StateOpen)
	c.logger.Info("chat connected")

	go c.run(runCtx, ws)
	return nil
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.URL(token), nil)
	if err != nil {
		if resp != nil {
			return nil, apperrors.Transport(fmt.Errorf("dialing chat: %w (status %d)", err, resp.StatusCode))
		}
		return nil, apperrors.Transport(fmt.Errorf("dialing chat: %w", err))
	}
	return ws, nil
}

func (c *Conn) run(ctx context.Context, ws *websocket.Conn) {
	defer func() {
		close(c.messages)
		close(c.errs)
		close(c.done)
	}()

	for {
		err := c.readLoop(ctx, ws)
		_ = ws.Close()

		if ctx.Err() != nil || c.isClosed() {
			c.setState(StateClosed)
			return
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			c.logger.Info("chat closed by server")
			c.setState(StateClosed)
			return
		}

		c.logger.Warn("chat connection lost, reconnecting", "error", err)
		c.setState(StateReconnecting)

		next, rerr := c.reconnect(ctx)
		if rerr != nil {
			if ctx.Err() != nil || c.isClosed() {
				c.setState(StateClosed)
				return
			}
			c.setState(StateFailed)
			c.logger.Error("chat reconnect attempts exhausted", "error", rerr)
			c.emitError(apperrors.ErrReconnectExhausted.WithCause(rerr))
			return
		}

		if !c.adopt(next) {
			c.setState(StateClosed)
			return
		}
		c.setState(StateOpen)
		c.logger.Info("chat reconnected")
		ws = next
	}
}

// adopt installs a freshly dialled socket. A Close that won the race has
// already torn down the old socket, so the new one is closed and dropped.
func (c *Conn) adopt(next *websocket.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = next.Close()
		return false
	}
	c.ws = next
	c.reconnects++
	c.mu.Unlock()
	return true
}

// reconnect waits one backoff and then dials under the retry policy.
func (c *Conn) reconnect(ctx context.Context) (*websocket.Conn, error) {
	key := "chat/" + strconv.FormatInt(c.tripID, 10)
	defer c.retry.ClearAttempts(key)

	if err := retry.Sleep(ctx, c.retry.GetBackoffDuration()); err != nil {
		return nil, err
	}

	var ws *websocket.Conn
	err := c.retry.Do(ctx, key, func(ctx context.Context, attempt int) error {
		c.logger.Debug("chat reconnect attempt", "attempt", attempt, "max_attempts", c.retry.GetMaxAttempts())
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		ws = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}

		var msg models.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("discarding malformed chat frame", "error", err)
			continue
		}
		if msg.TripID == 0 {
			msg.TripID = c.tripID
		}

		select {
		case c.messages <- &msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) emitError(err error) {
	select {
	case c.errs <- err:
	default:
		c.logger.Warn("chat error channel full, dropping error", "error", err)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send posts a message over the socket, or over REST when the socket is not open.
func (c *Conn) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "message is empty")
	}

	c.mu.Lock()
	ws, state, closed := c.ws, c.state, c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if state == StateOpen && ws != nil {
		c.writeMu.Lock()
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := ws.WriteJSON(models.OutgoingChatMessage{Message: text})
		c.writeMu.Unlock()
		if err == nil {
			return nil
		}
		c.logger.Warn("socket send failed, falling back to REST", "error", err)
	}

	if c.rest == nil {
		return apperrors.Transport(fmt.Errorf("chat socket is %s", state))
	}
	if _, err := c.rest.PostChatMessage(ctx, c.tripID, text); err != nil {
		return err
	}
	return nil
}

// History fetches stored messages over REST.
func (c *Conn) History(ctx context.Context) ([]*models.ChatMessage, error) {
	if c.rest == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "chat history unavailable without REST client")
	}
	return c.rest.ChatHistory(ctx, c.tripID)
}

// Close sends a normal closure and stops the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws, cancel, started := c.ws, c.cancel, c.cancel != nil
	c.mu.Unlock()

	if !started {
		c.setState(StateClosed)
		close(c.messages)
		close(c.errs)
		close(c.done)
		return nil
	}

	if ws != nil {
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = ws.Close()
	}
	cancel()
	<-c.done
	c.logger.Info("chat disconnected")
	return nil
}

// Shutdown implements the shutdown component contract.
func (c *Conn) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		_ = c.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name implements the shutdown component contract.
func (c *Conn) Name() string {
	return "chat-" + strconv.FormatInt(c.tripID, 10)
}
