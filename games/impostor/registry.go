/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"
)

const codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Registry holds the live rooms keyed by code, so each room is its own
// isolated session.
type Registry struct {
	opts Options

	mu    sync.RWMutex
	rooms map[string]*Room

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRegistry starts the idle reaper when opts.IdleTimeout is positive.
func NewRegistry(opts Options) *Registry {
	g := &Registry{
		opts:  opts.withDefaults(),
		rooms: make(map[string]*Room),
		stop:  make(chan struct{}),
	}
	if g.opts.IdleTimeout > 0 {
		go g.reaperLoop()
	}
	return g
}

// Create opens a room in the lobby with the creator as its first player.
func (g *Registry) Create(name, creatorConn, creatorName string, impostorCount int) (*Room, Result, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Room"
	}
	if len([]rune(name)) > MaxNameLength {
		return nil, Result{}, fmt.Errorf("%w: room name longer than %d characters", ErrInvalidRoom, MaxNameLength)
	}
	if impostorCount < 1 {
		return nil, Result{}, fmt.Errorf("%w: need at least one impostor", ErrInvalidRoom)
	}
	if impostorCount+2 > g.opts.MaxPlayers {
		return nil, Result{}, fmt.Errorf("%w: %d impostors cannot fit in %d players", ErrInvalidRoom, impostorCount, g.opts.MaxPlayers)
	}
	if _, err := cleanName(creatorName); err != nil {
		return nil, Result{}, err
	}

	g.mu.Lock()
	code := g.newCodeLocked()
	room := newRoom(&g.opts, code, name, impostorCount)
	g.rooms[code] = room
	g.mu.Unlock()

	g.opts.Observer.RoomOpened()
	g.opts.Logf("GAMES: Created room %s (%q, %d impostor(s))", code, name, impostorCount)

	joined, err := room.Join(creatorConn, creatorName, false)
	if err != nil {
		g.Remove(code)
		return nil, Result{}, err
	}

	var res Result
	res.send(creatorConn, RoomCreatedMessage{
		Type:          "room_created",
		Code:          code,
		Name:          name,
		PlayerName:    strings.TrimSpace(creatorName),
		ImpostorCount: impostorCount,
		MaxPlayers:    g.opts.MaxPlayers,
	})
	res.Broadcast = joined.Broadcast
	res.Direct = append(res.Direct, joined.Direct...)

	return room, res, nil
}

// Get looks a room up by code, ignoring case.
func (g *Registry) Get(code string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	room, ok := g.rooms[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRoomNotFound, code)
	}
	return room, nil
}

// Remove deletes and closes a room. Pending evictions become no-ops.
func (g *Registry) Remove(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))

	g.mu.Lock()
	room, ok := g.rooms[code]
	delete(g.rooms, code)
	g.mu.Unlock()

	if !ok {
		return false
	}

	room.Close()
	g.opts.Observer.RoomClosed()

	return true
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Codes lists the live room codes.
func (g *Registry) Codes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	codes := make([]string, 0, len(g.rooms))
	for code := range g.rooms {
		codes = append(codes, code)
	}
	return codes
}

// Reap removes rooms idle since before now-IdleTimeout and returns how many.
func (g *Registry) Reap(now time.Time) int {
	if g.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-g.opts.IdleTimeout)

	var stale []*Room

	g.mu.Lock()
	for code, room := range g.rooms {
		if room.LastActive().Before(cutoff) {
			delete(g.rooms, code)
			stale = append(stale, room)
		}
	}
	g.mu.Unlock()

	for _, room := range stale {
		room.Close()
		g.opts.Observer.RoomClosed()
		g.opts.Logf("GAMES: Reaped idle room %s", room.Code)
	}

	return len(stale)
}

// Close stops the reaper and closes every room.
func (g *Registry) Close() {
	g.stopOnce.Do(func() { close(g.stop) })

	g.mu.Lock()
	rooms := g.rooms
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, room := range rooms {
		room.Close()
		g.opts.Observer.RoomClosed()
	}
}

func (g *Registry) reaperLoop() {
	ticker := time.NewTicker(g.opts.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.Reap(g.opts.Now())
		}
	}
}

// newCodeLocked draws crypto-random codes until one is free.
func (g *Registry) newCodeLocked() string {
	for {
		buf := make([]byte, CodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, CodeLength)
		for i := range out {
			out[i] = codeLetters[int(buf[i])%len(codeLetters)]
		}
		code := string(out)

		if _, exists := g.rooms[code]; !exists {
			return code
		}
	}
}
