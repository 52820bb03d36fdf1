/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Player is keyed by a stable id; Conn is whichever transport connection
// currently speaks for it.
type Player struct {
	ID             string
	Conn           string
	Name           string
	Impostor       bool
	Connected      bool
	Voted          bool
	JoinedAt       time.Time
	DisconnectedAt time.Time
	LastSeen       time.Time

	seq int
}

type eviction struct {
	stop Stopper
}

// Room is one game session. Every exported method takes mu for its whole
// read-modify-write sequence.
type Room struct {
	Code      string
	Name      string
	CreatedAt time.Time

	opts *Options

	mu            sync.Mutex
	creator       string
	maxPlayers    int
	impostorCount int
	phase         Phase
	topic         string
	impostors     map[string]string // player id -> name at assignment
	players       map[string]*Player
	conns         map[string]string // connection id -> player id
	ballots       map[string]Ballot // voter player id -> ballot
	evictions     map[string]*eviction
	round         int
	joins         int
	lastActive    time.Time
	closed        bool
}

func newRoom(opts *Options, code, name string, impostorCount int) *Room {
	now := opts.Now()
	return &Room{
		Code:          code,
		Name:          name,
		CreatedAt:     now,
		opts:          opts,
		maxPlayers:    opts.MaxPlayers,
		impostorCount: impostorCount,
		phase:         PhaseLobby,
		impostors:     make(map[string]string),
		players:       make(map[string]*Player),
		conns:         make(map[string]string),
		ballots:       make(map[string]Ballot),
		evictions:     make(map[string]*eviction),
		lastActive:    now,
	}
}

// Summary is a secret-free snapshot of a room.
type Summary struct {
	Code          string       `json:"room_code"`
	Name          string       `json:"room_name"`
	Phase         Phase        `json:"phase"`
	ImpostorCount int          `json:"impostor_count"`
	MaxPlayers    int          `json:"max_players"`
	Round         int          `json:"round"`
	Players       []PlayerView `json:"players"`
	Connected     int          `json:"connected"`
	CreatedAt     time.Time    `json:"created_at"`
	LastActive    time.Time    `json:"last_active"`
}

func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Summary{
		Code:          r.Code,
		Name:          r.Name,
		Phase:         r.phase,
		ImpostorCount: r.impostorCount,
		MaxPlayers:    r.maxPlayers,
		Round:         r.round,
		Players:       r.rosterLocked(),
		Connected:     r.connectedCountLocked(),
		CreatedAt:     r.CreatedAt,
		LastActive:    r.lastActive,
	}
}

func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Room) LastActive() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActive
}

// Counts returns connected and disconnected player totals.
func (r *Room) Counts() (connected, disconnected int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connected = r.connectedCountLocked()
	return connected, len(r.players) - connected
}

// Join adds a player under conn. With reconnect set, a disconnected player
// of the same name is resumed first, falling back to a fresh join.
func (r *Room) Join(conn, name string, reconnect bool) (Result, error) {
	name, err := cleanName(name)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn]; ok {
		return Result{}, fmt.Errorf("%w: connection already joined %s", ErrNameTaken, r.Code)
	}

	if reconnect {
		res, err := r.reconnectLocked(conn, name)
		if err == nil {
			return res, nil
		}
	}

	p, err := r.addLocked(conn, name)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.send(conn, r.joinedLocked(p, false))
	res.broadcast(RosterMessage{
		Type:      "roster",
		Players:   r.rosterLocked(),
		Count:     len(r.players),
		NewPlayer: p.Name,
	})

	r.opts.Logf("GAMES: Player %q joined %s", p.Name, r.Code)

	return res, nil
}

func (r *Room) addLocked(conn, name string) (*Player, error) {
	switch {
	case len(r.players) >= r.maxPlayers:
		return nil, fmt.Errorf("%w: at most %d players", ErrRoomFull, r.maxPlayers)
	case r.phase != PhaseLobby:
		return nil, ErrGameAlreadyStarted
	case r.connectedByNameLocked(name) != nil:
		return nil, fmt.Errorf("%w: %q", ErrNameTaken, name)
	}

	now := r.opts.Now()
	r.joins++
	p := &Player{
		ID:        uuid.NewString(),
		Conn:      conn,
		Name:      name,
		Connected: true,
		JoinedAt:  now,
		LastSeen:  now,
		seq:       r.joins,
	}
	r.players[p.ID] = p
	r.conns[conn] = p.ID
	r.lastActive = now

	if r.creator == "" {
		r.creator = p.ID
	}

	r.opts.Observer.PlayerJoined()
	r.opts.Observer.PlayerConnected(true)

	return p, nil
}

// Leave removes the player behind conn for good.
func (r *Room) Leave(conn string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}

	r.removeLocked(p, false)
	r.lastActive = r.opts.Now()

	var res Result
	res.broadcast(r.playerLeftLocked(p.Name, false))
	r.settleLocked(&res)

	r.opts.Logf("GAMES: Player %q left %s", p.Name, r.Code)

	return res, nil
}

// removeLocked deletes p and its ballot. Ballots naming p stay counted and
// p stays in the impostor set so the reveal is complete.
func (r *Room) removeLocked(p *Player, evicted bool) {
	r.cancelEvictionLocked(p.ID)

	delete(r.players, p.ID)
	delete(r.ballots, p.ID)
	if r.conns[p.Conn] == p.ID {
		delete(r.conns, p.Conn)
	}

	if p.Connected {
		r.opts.Observer.PlayerConnected(false)
	}
	r.opts.Observer.PlayerRemoved(evicted)

	if r.creator == p.ID {
		r.creator = r.successorLocked()
		if r.creator != "" {
			r.opts.Logf("GAMES: %q is now the creator of %s", r.players[r.creator].Name, r.Code)
		}
	}
}

// successorLocked picks the earliest-joined player, preferring connected ones.
func (r *Room) successorLocked() string {
	var best *Player
	for _, p := range r.players {
		switch {
		case best == nil:
			best = p
		case p.Connected != best.Connected:
			if p.Connected {
				best = p
			}
		case p.seq < best.seq:
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// Start assigns roles and opens the round. Only the creator may start.
func (r *Room) Start(conn string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}
	if p.ID != r.creator {
		return Result{}, ErrNotAuthorized
	}
	if r.phase != PhaseLobby {
		return Result{}, ErrGameAlreadyStarted
	}

	connected := r.connectedIDsLocked()
	if need := r.impostorCount + 2; len(connected) < need {
		return Result{}, fmt.Errorf("%w: need %d connected, have %d", ErrInsufficientPlayers, need, len(connected))
	}

	topic, picked, err := Assign(r.opts.IntN, connected, r.impostorCount, r.opts.Topics)
	if err != nil {
		return Result{}, err
	}

	r.topic = topic
	r.impostors = make(map[string]string, len(picked))
	for _, id := range picked {
		r.impostors[id] = r.players[id].Name
	}
	for id, pl := range r.players {
		_, pl.Impostor = r.impostors[id]
		pl.Voted = false
	}
	clear(r.ballots)
	r.round = 1
	r.phase = PhaseVoting
	if r.opts.Discussion {
		r.phase = PhaseDiscussion
	}
	r.lastActive = r.opts.Now()

	var res Result
	res.broadcast(r.startedLocked())
	for _, pl := range r.players {
		if pl.Connected {
			res.send(pl.Conn, r.roleLocked(pl))
		}
	}

	r.opts.Observer.GameStarted()
	r.opts.Logf("GAMES: Started %s with %d players and %d impostor(s)", r.Code, len(connected), r.impostorCount)

	return res, nil
}

// OpenVoting ends the discussion phase.
func (r *Room) OpenVoting(conn string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}
	if p.ID != r.creator {
		return Result{}, ErrNotAuthorized
	}
	if r.phase != PhaseDiscussion {
		return Result{}, fmt.Errorf("%w: %s", ErrWrongPhase, r.phase)
	}

	r.phase = PhaseVoting
	r.lastActive = r.opts.Now()

	var res Result
	res.broadcast(VotingOpenedMessage{Type: "voting_opened", Round: r.round})

	return res, nil
}

// Reset returns the room to the lobby, keeping the roster. Any member may reset.
func (r *Room) Reset(conn string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}

	r.phase = PhaseLobby
	r.topic = ""
	r.round = 0
	clear(r.impostors)
	clear(r.ballots)
	for _, pl := range r.players {
		pl.Impostor = false
		pl.Voted = false
	}
	r.lastActive = r.opts.Now()

	var res Result
	res.broadcast(GameResetMessage{
		Type:    "game_reset",
		By:      p.Name,
		Players: r.rosterLocked(),
	})

	r.opts.Logf("GAMES: %q reset %s", p.Name, r.Code)

	return res, nil
}

// Chat relays a message from a room member.
func (r *Room) Chat(conn, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, nil
	}
	if len([]rune(text)) > MaxChatLength {
		text = string([]rune(text)[:MaxChatLength])
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok || !p.Connected {
		return Result{}, ErrPlayerNotInRoom
	}

	now := r.opts.Now()
	r.lastActive = now

	var res Result
	res.broadcast(ChatMessage{
		Type:    "chat",
		Name:    p.Name,
		Message: text,
		Time:    now.Format("15:04"),
	})

	return res, nil
}

// Close stops every pending eviction; later evictions are no-ops.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for id := range r.evictions {
		r.cancelEvictionLocked(id)
	}
	for _, p := range r.players {
		if p.Connected {
			r.opts.Observer.PlayerConnected(false)
		}
		r.opts.Observer.PlayerRemoved(false)
	}
}

func (r *Room) playerByConnLocked(conn string) (*Player, bool) {
	id, ok := r.conns[conn]
	if !ok {
		return nil, false
	}
	p, ok := r.players[id]
	return p, ok
}

func (r *Room) connectedByNameLocked(name string) *Player {
	for _, p := range r.players {
		if p.Connected && strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

func (r *Room) connectedCountLocked() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// connectedIDsLocked is sorted so a seeded IntN gives repeatable draws.
func (r *Room) connectedIDsLocked() []string {
	ids := make([]string, 0, len(r.players))
	for id, p := range r.players {
		if p.Connected {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (r *Room) rosterLocked() []PlayerView {
	players := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].seq < players[j].seq
	})

	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, PlayerView{
			Name:      p.Name,
			Connected: p.Connected,
			Voted:     p.Voted,
			Creator:   p.ID == r.creator,
		})
	}
	return views
}

func (r *Room) joinedLocked(p *Player, reconnected bool) RoomJoinedMessage {
	return RoomJoinedMessage{
		Type:        "room_joined",
		Code:        r.Code,
		Name:        r.Name,
		PlayerName:  p.Name,
		IsCreator:   p.ID == r.creator,
		Reconnected: reconnected,
	}
}

func (r *Room) startedLocked() GameStartedMessage {
	return GameStartedMessage{
		Type:          "game_started",
		Phase:         r.phase,
		ImpostorCount: r.impostorCount,
		Round:         r.round,
	}
}

func (r *Room) roleLocked(p *Player) RoleMessage {
	if p.Impostor {
		return RoleMessage{Type: "role_assigned", Role: "impostor", ImpostorCount: r.impostorCount}
	}
	return RoleMessage{Type: "role_assigned", Role: "citizen", Topic: r.topic, ImpostorCount: r.impostorCount}
}

func (r *Room) playerLeftLocked(name string, evicted bool) PlayerLeftMessage {
	return PlayerLeftMessage{
		Type:    "player_left",
		Name:    name,
		Evicted: evicted,
		Players: r.rosterLocked(),
		Count:   len(r.players),
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len([]rune(name)) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	return name, nil
}
