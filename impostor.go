// Impostor
//
// Players gather in a room identified by a short code. When the creator
// starts the game, every connected player learns a secret topic except the
// impostors, who must bluff. The group then votes on who is faking it.
//
// Features:
// - One WebSocket per player at $path/ws; rooms are chosen by message, not URL
// - Create, join, start, vote, leave, reset, heartbeat and chat messages
// - Disconnected players keep their seat for a grace period and may reconnect
// - Rejections are sent only to the offending client
// - Rooms are reaped after a configurable idle timeout
// - Random 4-char room codes via crypto/rand, with server-side collision check
// - Per-connection message rate limiting
// - JSON room summary and a QR code for sharing, backed by go-qrcode

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/impostor/games/impostor"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	maxMessageSize = 4096
	sendBuffer     = 32
)

var (
	errAlreadyInRoom  = errors.New("already in a room")
	errUnknownMessage = errors.New("unknown message type")
	errBadMessage     = errors.New("malformed message")
	errRateLimited    = errors.New("too many messages, slow down")
)

// Messages coming from clients
type ClientMessage struct {
	Type          string `json:"type"`
	RoomName      string `json:"room_name,omitempty"`      // create_room
	RoomCode      string `json:"room_code,omitempty"`      // join_room / heartbeat
	PlayerName    string `json:"player_name,omitempty"`    // create_room / join_room / heartbeat
	ImpostorCount int    `json:"impostor_count,omitempty"` // create_room
	Reconnect     bool   `json:"reconnect,omitempty"`      // join_room
	Target        string `json:"target,omitempty"`         // submit_vote
	Message       string `json:"message,omitempty"`        // chat
}

// SimpleMessage is for notifications without a payload ("left_room").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	conn    *websocket.Conn
	send    chan any
	id      string
	limiter *rate.Limiter

	// room is only touched by the client's own read pump.
	room string
}

// Hub routes game results to websocket clients. Rooms address players by
// connection id, and the hub maps those ids back to clients.
type Hub struct {
	cfg   *Config
	games *impostor.Registry
	stats *gameMetrics

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
}

func newHub(cfg *Config, stats *gameMetrics) *Hub {
	h := &Hub{
		cfg:     cfg,
		stats:   stats,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}

	opts := cfg.gameOptions()
	opts.Observer = stats
	opts.Notify = func(code string, res impostor.Result) {
		h.deliver(code, res)
		h.closeIfEmpty(code)
	}
	h.games = impostor.NewRegistry(opts)

	return h
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.stats.connections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.detachLocked(c)
		close(c.send)
	}
	h.mu.Unlock()

	h.stats.connections.Dec()
}

func (h *Hub) attach(c *Client, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detachLocked(c)

	members, ok := h.rooms[code]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[code] = members
	}
	members[c.id] = c
	c.room = code
}

func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detachLocked(c)
}

func (h *Hub) detachLocked(c *Client) {
	if c.room == "" {
		return
	}
	if members, ok := h.rooms[c.room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, c.room)
		}
	}
	c.room = ""
}

// deliver fans broadcasts out to every client attached to the room, then
// sends direct messages to their connections.
func (h *Hub) deliver(code string, res impostor.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, msg := range res.Broadcast {
		for _, c := range h.rooms[code] {
			h.sendLocked(c, msg)
		}
	}
	for _, env := range res.Direct {
		if c, ok := h.clients[env.Conn]; ok {
			h.sendLocked(c, env.Message)
		}
	}
}

func (h *Hub) sendTo(c *Client, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c.id]; ok {
		h.sendLocked(c, msg)
	}
}

// sendLocked drops clients that cannot keep up; closing the socket ends
// their read pump, which marks them disconnected.
func (h *Hub) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		logf(h.cfg, "ERROR: Send buffer full for %s, closing connection", c.id)
		_ = c.conn.Close()
	}
}

func (h *Hub) closeIfEmpty(code string) {
	room, err := h.games.Get(code)
	if err != nil {
		return
	}

	if connected, disconnected := room.Counts(); connected+disconnected > 0 {
		return
	}

	if h.games.Remove(code) {
		logf(h.cfg, "GAMES: Closed empty room %s", code)
	}
}

// closeAll shuts the registry down and disconnects every client.
func (h *Hub) closeAll() {
	h.games.Close()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		_ = c.conn.Close()
	}
}

var rejectionReasons = []struct {
	err    error
	reason string
}{
	{impostor.ErrRoomNotFound, "room_not_found"},
	{impostor.ErrRoomFull, "room_full"},
	{impostor.ErrGameAlreadyStarted, "game_already_started"},
	{impostor.ErrNameTaken, "name_taken"},
	{impostor.ErrNotAuthorized, "not_authorized"},
	{impostor.ErrInsufficientPlayers, "insufficient_players"},
	{impostor.ErrInvalidVote, "invalid_vote"},
	{impostor.ErrPlayerNotInRoom, "not_in_room"},
	{impostor.ErrInvalidName, "invalid_name"},
	{impostor.ErrInvalidRoom, "invalid_room"},
	{impostor.ErrWrongPhase, "wrong_phase"},
	{errAlreadyInRoom, "already_in_room"},
	{errUnknownMessage, "unknown_message"},
	{errBadMessage, "bad_message"},
	{errRateLimited, "rate_limited"},
}

func rejectionReason(err error) string {
	for _, r := range rejectionReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "error"
}

// reject answers only the requesting client; kind is the message type,
// e.g. "join_rejected".
func (h *Hub) reject(c *Client, kind string, err error) {
	reason := rejectionReason(err)
	h.stats.rejected(reason)

	logf(h.cfg, "GAMES: Rejected %s from %s: %v", kind, c.id, err)

	h.sendTo(c, impostor.RejectedMessage{
		Type:    kind,
		Reason:  reason,
		Message: err.Error(),
	})
}

func (h *Hub) dispatch(c *Client, msg ClientMessage) {
	kind := msg.Type

	switch msg.Type {
	case "create_room":
		h.createRoom(c, msg)
	case "join_room":
		h.joinRoom(c, msg)
	case "leave_room":
		h.leaveRoom(c)
	case "start_game":
		h.inRoom(c, "start_rejected", (*impostor.Room).Start)
	case "open_voting":
		h.inRoom(c, "error", (*impostor.Room).OpenVoting)
	case "submit_vote":
		h.inRoom(c, "error", func(r *impostor.Room, conn string) (impostor.Result, error) {
			return r.Vote(conn, msg.Target)
		})
	case "reset_game":
		h.inRoom(c, "error", (*impostor.Room).Reset)
	case "chat":
		h.inRoom(c, "error", func(r *impostor.Room, conn string) (impostor.Result, error) {
			return r.Chat(conn, msg.Message)
		})
	case "heartbeat":
		switch {
		case c.room != "":
			h.inRoom(c, "error", (*impostor.Room).Heartbeat)
		case msg.RoomCode != "" && msg.PlayerName != "":
			h.linger(c, msg)
		default:
			h.sendTo(c, impostor.HeartbeatAckMessage{
				Type:      "heartbeat_ack",
				Timestamp: time.Now().Unix(),
			})
		}
	default:
		kind = "unknown"
		h.reject(c, "error", errUnknownMessage)
	}

	h.stats.message(kind)
}

// inRoom runs op against the client's current room and delivers the result.
func (h *Hub) inRoom(c *Client, kind string, op func(*impostor.Room, string) (impostor.Result, error)) {
	if c.room == "" {
		h.reject(c, kind, impostor.ErrPlayerNotInRoom)
		return
	}

	room, err := h.games.Get(c.room)
	if err != nil {
		h.detach(c)
		h.reject(c, kind, err)
		return
	}

	res, err := op(room, c.id)
	if err != nil {
		h.reject(c, kind, err)
		return
	}

	h.deliver(room.Code, res)
}

// linger forwards a heartbeat naming a seat from a client that has not
// joined. A revived seat attaches the client to the room.
func (h *Hub) linger(c *Client, msg ClientMessage) {
	room, err := h.games.Get(msg.RoomCode)
	if err != nil {
		h.reject(c, "error", err)
		return
	}

	h.attach(c, room.Code)

	res, bound, err := room.Linger(c.id, msg.PlayerName)
	if !bound {
		h.detach(c)
	}
	if err != nil {
		h.reject(c, "error", err)
		return
	}

	h.deliver(room.Code, res)
}

func (h *Hub) createRoom(c *Client, msg ClientMessage) {
	if c.room != "" {
		h.reject(c, "create_rejected", errAlreadyInRoom)
		return
	}

	count := msg.ImpostorCount
	if count == 0 {
		count = 1
	}

	room, res, err := h.games.Create(msg.RoomName, c.id, msg.PlayerName, count)
	if err != nil {
		h.reject(c, "create_rejected", err)
		return
	}

	h.attach(c, room.Code)
	h.deliver(room.Code, res)
}

func (h *Hub) joinRoom(c *Client, msg ClientMessage) {
	if c.room != "" {
		h.reject(c, "join_rejected", errAlreadyInRoom)
		return
	}

	room, err := h.games.Get(msg.RoomCode)
	if err != nil {
		h.reject(c, "join_rejected", err)
		return
	}

	// Attach first so no broadcast slips between the join and delivery.
	h.attach(c, room.Code)

	res, err := room.Join(c.id, msg.PlayerName, msg.Reconnect)
	if err != nil {
		h.detach(c)
		h.reject(c, "join_rejected", err)
		return
	}

	h.deliver(room.Code, res)
}

func (h *Hub) leaveRoom(c *Client) {
	if c.room == "" {
		h.reject(c, "error", impostor.ErrPlayerNotInRoom)
		return
	}

	code := c.room

	room, err := h.games.Get(code)
	if err != nil {
		h.detach(c)
		h.reject(c, "error", err)
		return
	}

	res, err := room.Leave(c.id)
	if err != nil {
		h.reject(c, "error", err)
		return
	}

	h.detach(c)
	h.deliver(code, res)
	h.sendTo(c, SimpleMessage{Type: "left_room"})
	h.closeIfEmpty(code)
}

// disconnect keeps the player's seat; the room evicts them after the grace
// period unless they reconnect.
func (h *Hub) disconnect(c *Client) {
	if code := c.room; code != "" {
		h.detach(c)

		if room, err := h.games.Get(code); err == nil {
			if res, err := room.MarkDisconnected(c.id); err == nil {
				h.deliver(code, res)
			}
		}
	}

	h.unregister(c)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "ERROR: Websocket upgrade for %s failed: %v", realIP(r), err)
			return
		}

		client := &Client{
			conn:    conn,
			send:    make(chan any, sendBuffer),
			id:      uuid.NewString(),
			limiter: rate.NewLimiter(rate.Limit(cfg.messageRate), cfg.messageBurst),
		}

		h.register(client)

		logf(cfg, "SERVE: Websocket %s opened by %s", client.id, realIP(r))

		go client.writePump()
		client.readPump(h)

		logf(cfg, "SERVE: Websocket %s closed", client.id)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.reject(c, "error", errBadMessage)
				continue
			}
			return
		}

		if !c.limiter.Allow() {
			h.reject(c, "error", errRateLimited)
			continue
		}

		h.dispatch(c, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func serveRoomSummary(cfg *Config, h *Hub, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		room, err := h.games.Get(ps.ByName("code"))
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		data, err := json.Marshal(room.Summary())
		if err != nil {
			errs <- err
			http.Error(w, "summary failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Room %s summary (%s) to %s in %s",
			room.Code,
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// serveRoomQR generates a PNG QR code for the room URL using go-qrcode.
func serveRoomQR(cfg *Config, h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if _, err := h.games.Get(ps.ByName("code")); err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		scheme := cfg.scheme()
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		// We are at /.../rooms/:code/qr; strip "/qr" to get the room URL.
		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)
		_, _ = w.Write(png)
	}
}

// registerImpostorGame sets up routes so that:
//   - $path/ws                 → WebSocket for all rooms
//   - $path/rooms/:code        → JSON summary of a room
//   - $path/rooms/:code/qr     → PNG QR code for the room URL
func registerImpostorGame(cfg *Config, path string, mux *httprouter.Router, h *Hub, errs chan<- error) {
	mux.GET(cfg.prefix+path+"/ws", serveWS(cfg, h))

	mux.GET(cfg.prefix+path+"/rooms/:code", serveRoomSummary(cfg, h, errs))

	mux.GET(cfg.prefix+path+"/rooms/:code/qr", serveRoomQR(cfg, h))
}
