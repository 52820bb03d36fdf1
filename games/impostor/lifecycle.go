/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"fmt"
	"strings"
	"time"
)

// MarkDisconnected keeps the player's record and schedules its eviction
// after the grace period.
func (r *Room) MarkDisconnected(conn string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}
	if !p.Connected {
		return Result{}, nil
	}

	now := r.opts.Now()
	p.Connected = false
	p.DisconnectedAt = now
	r.lastActive = now
	r.scheduleEvictionLocked(p.ID)
	r.opts.Observer.PlayerConnected(false)

	var res Result
	res.broadcast(r.playerLeftLocked(p.Name, false))
	r.settleLocked(&res)

	r.opts.Logf("GAMES: Player %q disconnected from %s", p.Name, r.Code)

	return res, nil
}

// Reconnect rebinds a disconnected player named name to newConn. Role,
// vote flag and ballot carry over because they are keyed by player id.
func (r *Room) Reconnect(newConn, name string) (Result, error) {
	name, err := cleanName(name)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.conns[newConn]; ok && r.players[id] != nil && r.players[id].Connected {
		return Result{}, fmt.Errorf("%w: connection already joined %s", ErrNameTaken, r.Code)
	}

	return r.reconnectLocked(newConn, name)
}

// disconnectedByNameLocked returns the most recently disconnected player
// named name.
func (r *Room) disconnectedByNameLocked(name string) *Player {
	var p *Player
	for _, candidate := range r.players {
		if !candidate.Connected && strings.EqualFold(candidate.Name, name) {
			if p == nil || candidate.DisconnectedAt.After(p.DisconnectedAt) {
				p = candidate
			}
		}
	}
	return p
}

func (r *Room) reconnectLocked(newConn, name string) (Result, error) {
	p := r.disconnectedByNameLocked(name)
	if p == nil {
		return Result{}, fmt.Errorf("%w: no disconnected player named %q", ErrPlayerNotInRoom, name)
	}
	if r.connectedByNameLocked(p.Name) != nil {
		return Result{}, fmt.Errorf("%w: %q", ErrNameTaken, p.Name)
	}

	r.cancelEvictionLocked(p.ID)

	if r.conns[p.Conn] == p.ID {
		delete(r.conns, p.Conn)
	}
	r.conns[newConn] = p.ID

	now := r.opts.Now()
	p.Conn = newConn
	p.Connected = true
	p.DisconnectedAt = time.Time{}
	p.LastSeen = now
	r.lastActive = now
	r.opts.Observer.PlayerConnected(true)

	var res Result
	res.send(newConn, r.joinedLocked(p, true))
	if r.phase == PhaseDiscussion || r.phase == PhaseVoting {
		res.send(newConn, r.startedLocked())
		res.send(newConn, r.roleLocked(p))
	}
	res.broadcast(RosterMessage{
		Type:    "roster",
		Players: r.rosterLocked(),
		Count:   len(r.players),
	})

	r.opts.Logf("GAMES: Player %q reconnected to %s", p.Name, r.Code)

	return res, nil
}

// Heartbeat refreshes liveness. What it does for a disconnected player
// depends on the configured HeartbeatPolicy.
func (r *Room) Heartbeat(conn string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}

	now := r.opts.Now()
	p.LastSeen = now
	r.lastActive = now

	var res Result

	if !p.Connected {
		switch r.opts.Heartbeat {
		case HeartbeatExtend:
			r.scheduleEvictionLocked(p.ID)
		case HeartbeatRevive:
			if r.connectedByNameLocked(p.Name) == nil {
				r.cancelEvictionLocked(p.ID)
				p.Connected = true
				p.DisconnectedAt = time.Time{}
				r.opts.Observer.PlayerConnected(true)
				res.broadcast(RosterMessage{
					Type:    "roster",
					Players: r.rosterLocked(),
					Count:   len(r.players),
				})
			}
		}
	}

	res.send(conn, HeartbeatAckMessage{
		Type:      "heartbeat_ack",
		Timestamp: now.Unix(),
		Connected: p.Connected,
	})

	return res, nil
}

// Linger is a heartbeat from a connection that has not joined the room but
// names a disconnected player, typically a client whose socket dropped.
// HeartbeatExtend pushes the eviction back and HeartbeatRevive hands the
// seat to conn, in which case bound is true.
func (r *Room) Linger(conn, name string) (res Result, bound bool, err error) {
	name, err = cleanName(name)
	if err != nil {
		return Result{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.playerByConnLocked(conn); ok {
		return Result{}, false, fmt.Errorf("%w: connection already joined %s", ErrNameTaken, r.Code)
	}

	p := r.disconnectedByNameLocked(name)
	if p == nil {
		return Result{}, false, fmt.Errorf("%w: no disconnected player named %q", ErrPlayerNotInRoom, name)
	}

	now := r.opts.Now()
	p.LastSeen = now
	r.lastActive = now

	switch r.opts.Heartbeat {
	case HeartbeatExtend:
		r.scheduleEvictionLocked(p.ID)
	case HeartbeatRevive:
		if r.connectedByNameLocked(p.Name) == nil {
			res, err = r.reconnectLocked(conn, p.Name)
			if err != nil {
				return Result{}, false, err
			}
			bound = true
		}
	}

	res.send(conn, HeartbeatAckMessage{
		Type:      "heartbeat_ack",
		Timestamp: now.Unix(),
		Connected: bound,
	})

	return res, bound, nil
}

func (r *Room) scheduleEvictionLocked(id string) {
	r.cancelEvictionLocked(id)
	if r.closed {
		return
	}

	task := &eviction{}
	task.stop = r.opts.Scheduler.AfterFunc(r.opts.EvictionGrace, func() {
		r.evict(id, task)
	})
	r.evictions[id] = task
}

func (r *Room) cancelEvictionLocked(id string) {
	if task, ok := r.evictions[id]; ok {
		task.stop.Stop()
		delete(r.evictions, id)
	}
}

// evict runs on the timer goroutine. A task that was cancelled or replaced,
// a closed room, or a player who came back all make it a no-op.
func (r *Room) evict(id string, task *eviction) {
	r.mu.Lock()

	if r.closed || r.evictions[id] != task {
		r.mu.Unlock()
		return
	}
	delete(r.evictions, id)

	p, ok := r.players[id]
	if !ok || p.Connected {
		r.mu.Unlock()
		return
	}

	r.removeLocked(p, true)

	var res Result
	res.broadcast(r.playerLeftLocked(p.Name, true))

	notify := r.opts.Notify
	r.mu.Unlock()

	r.opts.Logf("GAMES: Evicted %q from %s after %s", p.Name, r.Code, r.opts.EvictionGrace)

	if notify != nil {
		notify(r.Code, res)
	}
}
