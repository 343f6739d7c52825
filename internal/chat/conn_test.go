package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/internal/retry"
	"github.com/narvanalabs/travel-buddy/pkg/logger"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

type fakeREST struct {
	mu    sync.Mutex
	posts []string
}

func (f *fakeREST) ChatHistory(ctx context.Context, tripID int64) ([]*models.ChatMessage, error) {
	return []*models.ChatMessage{{MessageID: 1, TripID: tripID, Message: "hello"}}, nil
}

func (f *fakeREST) PostChatMessage(ctx context.Context, tripID int64, text string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	return &models.ChatMessage{TripID: tripID, Message: text}, nil
}

// chatServer runs handle for the n-th handshake (1-based).
type chatServer struct {
	*httptest.Server
	dials  atomic.Int32
	tokens chan string
}

func newChatServer(t *testing.T, handle func(n int, w http.ResponseWriter, r *http.Request)) *chatServer {
	t.Helper()
	cs := &chatServer{tokens: make(chan string, 16)}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(cs.dials.Add(1))
		select {
		case cs.tokens <- r.URL.Query().Get("token"):
		default:
		}
		handle(n, w, r)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *chatServer) wsBase() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http")
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func fastRetry() *retry.Manager {
	return retry.NewManager(retry.WithStrategy(&retry.Strategy{
		MaxAttempts:     5,
		BackoffDuration: time.Millisecond,
	}))
}

func newConn(base string, opts ...Option) *Conn {
	opts = append([]Option{WithRetry(fastRetry()), WithLogger(logger.Discard().Logger)}, opts...)
	return New(base, 7, staticToken("access-token"), opts...)
}

func receive(t *testing.T, c *Conn) *models.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		require.True(t, ok, "messages channel closed")
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func waitDone(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not stop")
	}
}

func TestURL(t *testing.T) {
	c := New("ws://localhost:8000/ws/", 42, staticToken(""))
	assert.Equal(t, "ws://localhost:8000/ws/chat/42/?token=abc", c.URL("abc"))
}

func TestConnect_ReceivesAndSends(t *testing.T) {
	srv := newChatServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/7/", r.URL.Path)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var out models.OutgoingChatMessage
		if err := ws.ReadJSON(&out); err != nil {
			return
		}
		_ = ws.WriteJSON(map[string]any{
			"message":         out.Message,
			"message_id":      99,
			"sender_id":       3,
			"sender_username": "sana",
			"timestamp":       "2026-03-01T10:00:00Z",
		})
		_, _, _ = ws.ReadMessage()
	})

	c := newConn(srv.wsBase())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, "access-token", <-srv.tokens)
	assert.Equal(t, StateOpen, c.State())

	require.NoError(t, c.Send(context.Background(), "  leaving at six  "))
	msg := receive(t, c)
	assert.Equal(t, "leaving at six", msg.Message)
	assert.Equal(t, int64(99), msg.MessageID)
	assert.Equal(t, int64(7), msg.TripID)
	assert.Equal(t, "sana", msg.SenderUsername)
}

func TestNormalClosure_DoesNotReconnect(t *testing.T) {
	srv := newChatServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	})

	c := newConn(srv.wsBase())
	require.NoError(t, c.Connect(context.Background()))

	waitDone(t, c)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, int32(1), srv.dials.Load())
	_, open := <-c.Messages()
	assert.False(t, open)
}

func TestAbnormalDrop_Reconnects(t *testing.T) {
	srv := newChatServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Drop without a close frame.
			ws.Close()
			return
		}
		defer ws.Close()
		_ = ws.WriteJSON(models.ChatMessage{MessageID: 5, Message: "back online"})
		_, _, _ = ws.ReadMessage()
	})

	c := newConn(srv.wsBase())
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	msg := receive(t, c)
	assert.Equal(t, "back online", msg.Message)
	assert.Equal(t, int32(2), srv.dials.Load())
	assert.Equal(t, StateOpen, c.State())
	assert.Equal(t, 1, c.Reconnects())
}

func TestReconnect_ExhaustsAndFails(t *testing.T) {
	srv := newChatServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		if n > 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	})

	c := newConn(srv.wsBase())
	require.NoError(t, c.Connect(context.Background()))

	select {
	case err := <-c.Errors():
		assert.ErrorIs(t, err, apperrors.ErrReconnectExhausted)
		assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	case <-time.After(5 * time.Second):
		t.Fatal("expected a terminal error")
	}

	waitDone(t, c)
	assert.Equal(t, StateFailed, c.State())
	assert.True(t, c.State().IsTerminal())
	assert.Equal(t, int32(1+5), srv.dials.Load())
}

func TestSend_FallsBackToREST(t *testing.T) {
	rest := &fakeREST{}
	c := newConn("ws://127.0.0.1:1", WithREST(rest))

	require.NoError(t, c.Send(context.Background(), "anyone up?"))
	assert.Equal(t, []string{"anyone up?"}, rest.posts)

	history, err := c.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(7), history[0].TripID)
}

func TestSend_Validation(t *testing.T) {
	c := newConn("ws://127.0.0.1:1")
	err := c.Send(context.Background(), "   ")
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	err = c.Send(context.Background(), "hi")
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
}

func TestConnect_RequiresToken(t *testing.T) {
	c := New("ws://127.0.0.1:1", 7, staticToken(""))
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	assert.Equal(t, StateIdle, c.State())
}

func TestClose(t *testing.T) {
	t.Run("before connect", func(t *testing.T) {
		c := newConn("ws://127.0.0.1:1")
		require.NoError(t, c.Close())
		require.NoError(t, c.Close())
		assert.Equal(t, StateClosed, c.State())
		assert.ErrorIs(t, c.Connect(context.Background()), ErrClosed)
		assert.ErrorIs(t, c.Send(context.Background(), "hi"), ErrClosed)
	})

	t.Run("while open", func(t *testing.T) {
		closeCode := make(chan int, 1)
		srv := newChatServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer ws.Close()
			_, _, err = ws.ReadMessage()
			if ce, ok := err.(*websocket.CloseError); ok {
				closeCode <- ce.Code
			}
		})

		c := newConn(srv.wsBase())
		require.NoError(t, c.Connect(context.Background()))
		require.NoError(t, c.Shutdown(context.Background()))

		assert.Equal(t, StateClosed, c.State())
		select {
		case code := <-closeCode:
			assert.Equal(t, websocket.CloseNormalClosure, code)
		case <-time.After(5 * time.Second):
			t.Fatal("server never saw a close frame")
		}
		assert.Equal(t, int32(1), srv.dials.Load())
	})
}

func TestAdopt_DropsSocketDialledAfterClose(t *testing.T) {
	serverErr := make(chan error, 2)
	srv := newChatServer(t, func(n int, w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_, _, err = ws.ReadMessage()
		serverErr <- err
	})

	t.Run("closed", func(t *testing.T) {
		c := newConn(srv.wsBase())
		require.NoError(t, c.Close())

		next, _, err := websocket.DefaultDialer.Dial(srv.wsBase()+"/chat/7/", nil)
		require.NoError(t, err)

		assert.False(t, c.adopt(next))
		assert.Equal(t, 0, c.Reconnects())
		select {
		case err := <-serverErr:
			assert.Error(t, err, "the late socket must be closed")
		case <-time.After(5 * time.Second):
			t.Fatal("late socket was left open")
		}
	})

	t.Run("open", func(t *testing.T) {
		c := newConn(srv.wsBase())
		next, _, err := websocket.DefaultDialer.Dial(srv.wsBase()+"/chat/7/", nil)
		require.NoError(t, err)
		defer next.Close()

		assert.True(t, c.adopt(next))
		assert.Equal(t, 1, c.Reconnects())
	})
}
