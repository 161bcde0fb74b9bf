package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/worship-room-service/internal/room"
	"github.com/worship-room-service/pkg/apperr"
	"github.com/worship-room-service/pkg/events"
	"github.com/worship-room-service/pkg/httputil"
	"github.com/worship-room-service/pkg/metrics"
	"github.com/worship-room-service/pkg/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Rooms is the part of the room service a socket can drive.
type Rooms interface {
	Snapshot(ctx context.Context, roomID uuid.UUID) (*room.Snapshot, error)
	CastVote(ctx context.Context, roomID, userID, entryID uuid.UUID, voteType models.VoteType) (*room.VoteResult, error)
	Chat(ctx context.Context, roomID, userID uuid.UUID, text string) error
	Heartbeat(ctx context.Context, roomID, userID uuid.UUID) error
}

// Consumer delivers events published by any instance of the service.
type Consumer interface {
	ConsumeEvents(ctx context.Context, handler func(events.Event) error) error
}

// ClientMessage is what a socket sends. Type picks the command; the other
// fields are read as that command needs them.
type ClientMessage struct {
	Type     string          `json:"type"`
	EntryID  string          `json:"entry_id,omitempty"`
	VoteType models.VoteType `json:"vote_type,omitempty"`
	Text     string          `json:"text,omitempty"`
}

type ServerMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// client owns one socket. Only writePump writes to conn; everybody else
// queues on send and never blocks.
type client struct {
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func newClient(userID uuid.UUID, conn *websocket.Conn) *client {
	return &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue queues data for writePump. It returns false when the client is
// closed or its buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) sendMessage(msg interface{}) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return false
	}
	return c.enqueue(data)
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump drains send and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Failed to send message to %s: %v", c.userID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Handler keeps the open sockets of every room on this instance and fans
// room events out to them.
type Handler struct {
	rooms    Rooms
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
}

func NewHandler(rooms Rooms, allowedOrigins []string) *Handler {
	h := &Handler{
		rooms:   rooms,
		clients: make(map[uuid.UUID]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker allows the listed origins, every origin for "*", and
// requests without an Origin header.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws/rooms/:id", h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	roomID, ok := httputil.ParamUUID(c, "id")
	if !ok {
		return
	}
	userID, ok := httputil.UserID(c)
	if !ok {
		return
	}
	snap, err := h.rooms.Snapshot(c.Request.Context(), roomID)
	if err != nil {
		httputil.ErrorResponse(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	cl := newClient(userID, conn)
	h.addClient(roomID, cl)
	defer h.removeClient(roomID, cl)
	go cl.writePump()

	cl.sendMessage(ServerMessage{Type: "sync", Payload: snap})
	h.readLoop(roomID, cl)
}

func (h *Handler) readLoop(roomID uuid.UUID, cl *client) {
	cl.conn.SetReadLimit(maxMessageSize)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(cl, nil, apperr.ErrInvalidInput.Withf("message is not valid JSON"))
			continue
		}
		payload, err := h.dispatch(roomID, cl.userID, msg)
		h.reply(cl, payload, err)
	}
}

// dispatch runs one client command and returns what to answer with.
func (h *Handler) dispatch(roomID, userID uuid.UUID, msg ClientMessage) (*ServerMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	switch msg.Type {
	case "vote":
		entryID, err := uuid.Parse(msg.EntryID)
		if err != nil {
			return nil, apperr.ErrInvalidInput.Withf("entry_id must be a uuid")
		}
		result, err := h.rooms.CastVote(ctx, roomID, userID, entryID, msg.VoteType)
		if err != nil {
			return nil, err
		}
		return &ServerMessage{Type: "vote_result", Payload: result}, nil
	case "chat":
		return nil, h.rooms.Chat(ctx, roomID, userID, msg.Text)
	case "heartbeat":
		return nil, h.rooms.Heartbeat(ctx, roomID, userID)
	case "sync":
		snap, err := h.rooms.Snapshot(ctx, roomID)
		if err != nil {
			return nil, err
		}
		return &ServerMessage{Type: "sync", Payload: snap}, nil
	default:
		return nil, apperr.ErrInvalidInput.Withf("unknown message type %q", msg.Type)
	}
}

func (h *Handler) reply(cl *client, msg *ServerMessage, err error) {
	if err != nil {
		appErr, ok := apperr.From(err)
		if !ok {
			log.Printf("websocket command from %s failed: %v", cl.userID, err)
			appErr = apperr.ErrInternal
		}
		msg = &ServerMessage{Type: "error", Error: appErr.Message, Code: appErr.Code}
	}
	if msg == nil {
		return
	}
	if !cl.sendMessage(msg) {
		log.Printf("Dropped reply to %s, send buffer full", cl.userID)
	}
}

func (h *Handler) addClient(roomID uuid.UUID, cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[roomID]; !exists {
		h.clients[roomID] = make(map[*client]struct{})
	}
	h.clients[roomID][cl] = struct{}{}
	metrics.ClientConnected()
}

func (h *Handler) removeClient(roomID uuid.UUID, cl *client) {
	h.mu.Lock()
	if conns, exists := h.clients[roomID]; exists {
		if _, exists := conns[cl]; exists {
			delete(conns, cl)
			metrics.ClientDisconnected()
		}
		if len(conns) == 0 {
			delete(h.clients, roomID)
		}
	}
	h.mu.Unlock()

	cl.close()
}

// Connections counts the sockets open for a room on this instance.
func (h *Handler) Connections(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[roomID])
}

// Broadcast queues event for every socket in its room without waiting on
// the network. A socket whose buffer is full is disconnected; the client
// resyncs when it reconnects.
func (h *Handler) Broadcast(event events.Event) {
	roomID, err := uuid.Parse(event.RoomID)
	if err != nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[roomID]))
	for cl := range h.clients[roomID] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if !cl.enqueue(data) {
			log.Printf("Disconnecting slow client %s from room %s", cl.userID, roomID)
			h.removeClient(roomID, cl)
		}
	}
}

// Publish broadcasts events straight to local sockets. It lets a single
// instance run without a broker.
func (h *Handler) Publish(ctx context.Context, evts ...events.Event) error {
	for _, event := range evts {
		h.Broadcast(event)
	}
	return nil
}

// Run relays events from the broker to local sockets until ctx is done.
func (h *Handler) Run(ctx context.Context, consumer Consumer) error {
	err := consumer.ConsumeEvents(ctx, func(event events.Event) error {
		h.Broadcast(event)
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
