// Package notifications keeps the trip-event and chat-message notification
// streams and their unread counts consistent with the server.
package notifications

import (
	"context"
	"log/slog"
	"sync"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

// Service is the backend surface used by the streams.
type Service interface {
	ListNotifications(ctx context.Context, stream models.NotificationStream) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, stream models.NotificationStream) (int, error)
	MarkNotificationsRead(ctx context.Context, stream models.NotificationStream, ids []int64) error
	ClearNotifications(ctx context.Context, stream models.NotificationStream) error
}

// Stream is one notification collection with its unread count. The count
// always equals the number of unread items; both change under one lock.
type Stream struct {
	kind    models.NotificationStream
	service Service
	broker  *Broker
	logger  *slog.Logger

	mu     sync.RWMutex
	items  []*models.Notification
	unread int
	loaded bool
}

func newStream(kind models.NotificationStream, service Service, broker *Broker, logger *slog.Logger) *Stream {
	return &Stream{
		kind:    kind,
		service: service,
		broker:  broker,
		logger:  logger.With("stream", kind),
	}
}

// Kind returns which stream this is.
func (s *Stream) Kind() models.NotificationStream {
	return s.kind
}

// Fetch replaces the collection with the server's, preserving server order.
func (s *Stream) Fetch(ctx context.Context) ([]*models.Notification, error) {
	items, err := s.service.ListNotifications(ctx, s.kind)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items = cloneAll(items)
	s.loaded = true
	changed := s.recount()
	out := cloneAll(s.items)
	unread := s.unread
	s.mu.Unlock()

	if changed {
		s.publishCount(unread)
	}
	return out, nil
}

// Items returns a copy of the collection, newest first.
func (s *Stream) Items() []*models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.items)
}

// Loaded reports whether the stream has been fetched since the last reset.
func (s *Stream) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// UnreadCount returns the local unread count.
func (s *Stream) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// RefreshUnreadCount polls the server count. A mismatch with the local
// collection triggers a full re-fetch rather than a patch.
func (s *Stream) RefreshUnreadCount(ctx context.Context) (int, error) {
	remote, err := s.service.UnreadCount(ctx, s.kind)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	local := s.unread
	loaded := s.loaded
	s.mu.RUnlock()

	if loaded && remote == local {
		return local, nil
	}

	s.logger.Debug("unread count mismatch, re-fetching", "local", local, "remote", remote)
	if _, err := s.Fetch(ctx); err != nil {
		return 0, err
	}
	return s.UnreadCount(), nil
}

// MarkRead marks the given notifications read once the server acknowledges.
func (s *Stream) MarkRead(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.service.MarkNotificationsRead(ctx, s.kind, ids); err != nil {
		return err
	}

	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}

	s.mu.Lock()
	for _, n := range s.items {
		if _, ok := want[n.ID]; ok {
			n.Read = true
		}
	}
	changed := s.recount()
	unread := s.unread
	s.mu.Unlock()

	if changed {
		s.publishCount(unread)
	}
	return nil
}

// MarkAllRead marks every unread item read.
func (s *Stream) MarkAllRead(ctx context.Context) error {
	s.mu.RLock()
	var ids []int64
	for _, n := range s.items {
		if !n.Read {
			ids = append(ids, n.ID)
		}
	}
	s.mu.RUnlock()

	return s.MarkRead(ctx, ids...)
}

// ClearAll deletes every notification in the stream on the server and locally.
func (s *Stream) ClearAll(ctx context.Context) error {
	if err := s.service.ClearNotifications(ctx, s.kind); err != nil {
		return err
	}

	s.mu.Lock()
	s.items = nil
	changed := s.recount()
	s.mu.Unlock()

	s.logger.Info("notifications cleared")
	if changed {
		s.publishCount(0)
	}
	return nil
}

// Ingest prepends newly arrived notifications. Items are given newest first;
// ones already held are skipped.
func (s *Stream) Ingest(items ...*models.Notification) int {
	s.mu.Lock()
	held := make(map[int64]struct{}, len(s.items))
	for _, n := range s.items {
		held[n.ID] = struct{}{}
	}

	var fresh []*models.Notification
	for _, n := range items {
		if n == nil || n.Stream != s.kind {
			continue
		}
		if _, ok := held[n.ID]; ok {
			continue
		}
		held[n.ID] = struct{}{}
		fresh = append(fresh, n.Clone())
	}
	if len(fresh) == 0 {
		s.mu.Unlock()
		return 0
	}

	s.items = append(fresh, s.items...)
	changed := s.recount()
	unread := s.unread
	published := cloneAll(fresh)
	s.mu.Unlock()

	for _, n := range published {
		s.broker.Publish(Event{Kind: EventArrived, Stream: s.kind, Notification: n, Unread: unread})
	}
	if changed {
		s.publishCount(unread)
	}
	return len(fresh)
}

// reset drops all local state.
func (s *Stream) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.unread = 0
	s.loaded = false
}

// recount recomputes the unread count. Callers hold s.mu.
func (s *Stream) recount() bool {
	n := 0
	for _, item := range s.items {
		if !item.Read {
			n++
		}
	}
	changed := n != s.unread
	s.unread = n
	return changed
}

func (s *Stream) publishCount(unread int) {
	s.broker.Publish(Event{Kind: EventCount, Stream: s.kind, Unread: unread})
}

// Aggregator owns both notification streams.
type Aggregator struct {
	trip   *Stream
	chat   *Stream
	broker *Broker
	logger *slog.Logger
}

// NewAggregator creates an Aggregator over service.
func NewAggregator(service Service, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notifications")
	broker := NewBroker(logger)
	return &Aggregator{
		trip:   newStream(models.StreamTrip, service, broker, logger),
		chat:   newStream(models.StreamChat, service, broker, logger),
		broker: broker,
		logger: logger,
	}
}

// Trip returns the trip-event stream.
func (a *Aggregator) Trip() *Stream { return a.trip }

// Chat returns the chat-message stream.
func (a *Aggregator) Chat() *Stream { return a.chat }

// Stream returns the stream of the given kind, or nil.
func (a *Aggregator) Stream(kind models.NotificationStream) *Stream {
	switch kind {
	case models.StreamTrip:
		return a.trip
	case models.StreamChat:
		return a.chat
	default:
		return nil
	}
}

// Broker returns the event broker for badge subscribers.
func (a *Aggregator) Broker() *Broker { return a.broker }

// TotalUnread sums both streams' unread counts.
func (a *Aggregator) TotalUnread() int {
	return a.trip.UnreadCount() + a.chat.UnreadCount()
}

// FetchAll loads both streams.
func (a *Aggregator) FetchAll(ctx context.Context) error {
	if _, err := a.trip.Fetch(ctx); err != nil {
		return err
	}
	_, err := a.chat.Fetch(ctx)
	return err
}

// Reset drops both collections. Used when the session ends.
func (a *Aggregator) Reset() {
	a.trip.reset()
	a.chat.reset()
	a.broker.Publish(Event{Kind: EventCount, Stream: models.StreamTrip})
	a.broker.Publish(Event{Kind: EventCount, Stream: models.StreamChat})
	a.logger.Debug("notification streams reset")
}

// Close resets the streams and disconnects all subscribers.
func (a *Aggregator) Close() {
	a.Reset()
	a.broker.Close()
}

func cloneAll(items []*models.Notification) []*models.Notification {
	out := make([]*models.Notification, len(items))
	for i, n := range items {
		out[i] = n.Clone()
	}
	return out
}
