package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/narvanalabs/travel-buddy/internal/models"
)

const (
	peerBuffer   = 32
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// peer is one WebSocket connection in a trip room.
type peer struct {
	ID     string
	UserID int64
	TripID int64
	conn   *websocket.Conn
	send   chan []byte
}

// hub fans chat messages out to every connection in a trip room.
type hub struct {
	mu     sync.Mutex
	rooms  map[int64]map[string]*peer
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		rooms:  make(map[int64]map[string]*peer),
		logger: logger,
	}
}

func (h *hub) register(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[p.TripID]
	if !ok {
		room = make(map[string]*peer)
		h.rooms[p.TripID] = room
	}
	room[p.ID] = p
	h.logger.Debug("chat peer joined", "peer_id", p.ID, "trip_id", p.TripID, "user_id", p.UserID)
}

// unregister removes a peer and stops its writer. Safe to call twice.
func (h *hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[p.TripID]
	if !ok {
		return
	}
	if _, ok := room[p.ID]; !ok {
		return
	}
	delete(room, p.ID)
	close(p.send)
	if len(room) == 0 {
		delete(h.rooms, p.TripID)
	}
}

func (h *hub) broadcast(tripID int64, msg *models.ChatMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encoding chat message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.rooms[tripID] {
		select {
		case p.send <- data:
		default:
			h.logger.Warn("chat peer buffer full, dropping message", "peer_id", p.ID)
		}
	}
}

// peers counts the connections in a trip room.
func (h *hub) peers(tripID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[tripID])
}

// total counts every open connection.
func (h *hub) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

func (h *hub) snapshot() []*peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*peer
	for _, room := range h.rooms {
		for _, p := range room {
			out = append(out, p)
		}
	}
	return out
}

// dropAll cuts every connection without a close handshake.
func (h *hub) dropAll() {
	for _, p := range h.snapshot() {
		p.conn.Close()
	}
}

// closeAll ends every connection with a normal closure.
func (h *hub) closeAll() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down")
	for _, p := range h.snapshot() {
		p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		p.conn.Close()
	}
}

// serveChat upgrades /ws/chat/{tripID}/?token= and runs the peer until it disconnects.
func (s *Server) serveChat(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(r, "tripID")
	if !ok {
		writeError(w, http.StatusNotFound, "Trip not found")
		return
	}
	userID, err := s.validateAccess(r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if herr := s.store.CanChat(userID, tripID); herr != nil {
		writeRejection(w, herr)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.requestLog(r).WithUserID(userID).WithTripID(tripID).WithError(err).Warn("websocket upgrade failed")
		return
	}

	p := &peer{
		ID:     uuid.NewString(),
		UserID: userID,
		TripID: tripID,
		conn:   conn,
		send:   make(chan []byte, peerBuffer),
	}
	s.hub.register(p)
	defer conn.Close()
	defer s.hub.unregister(p)

	go s.writePeer(p)
	s.readPeer(p)
}

func (s *Server) readPeer(p *peer) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("chat peer read ended", "peer_id", p.ID, "error", err)
			}
			return
		}

		var in models.OutgoingChatMessage
		if err := json.Unmarshal(data, &in); err != nil {
			s.logger.Debug("ignoring malformed chat frame", "peer_id", p.ID)
			continue
		}
		msg, herr := s.store.PostMessage(p.UserID, p.TripID, in.Message)
		if herr != nil {
			s.logger.Debug("chat message rejected", "peer_id", p.ID, "error", herr)
			continue
		}
		s.hub.broadcast(p.TripID, msg)
	}
}

func (s *Server) writePeer(p *peer) {
	for data := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("chat peer write failed", "peer_id", p.ID, "error", err)
			p.conn.Close()
			return
		}
	}
}
