/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkDisconnected(t *testing.T) {
	f := newFixture(t, nil)
	r := f.room(t, 1, "Ada", "Bob", "Cy")

	res, err := r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)

	left, ok := findMessage[PlayerLeftMessage](res.Broadcast)
	require.True(t, ok)
	assert.Equal(t, "Bob", left.Name)
	assert.False(t, left.Evicted)
	assert.Equal(t, 3, left.Count, "the record stays")

	bob := playerNamed(r, "Bob")
	assert.False(t, bob.Connected)
	assert.Equal(t, f.clock.Now(), bob.DisconnectedAt)
	assert.Equal(t, 1, f.sched.pending())

	res, err = r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, 1, f.sched.pending(), "no second timer")

	_, err = r.MarkDisconnected(conn("nobody"))
	assert.ErrorIs(t, err, ErrPlayerNotInRoom)

	connected, disconnected := r.Counts()
	assert.Equal(t, 2, connected)
	assert.Equal(t, 1, disconnected)
}

func TestEvictionGraceIsConfigurable(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.EvictionGrace = 15 * time.Minute })
	r := f.room(t, 1, "Ada", "Bob")

	_, err := r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)

	f.sched.mu.Lock()
	defer f.sched.mu.Unlock()
	require.Len(t, f.sched.tasks, 1)
	assert.Equal(t, 15*time.Minute, f.sched.tasks[0].d)
}

func TestReconnectKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	r := f.started(t, 1, "Ada", "Bob", "Cy", "Dee", "Eve")

	_, err := r.Vote(conn("Bob"), "Cy")
	require.NoError(t, err)

	before := *playerNamed(r, "Bob")

	_, err = r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)
	require.Equal(t, 1, f.sched.pending())

	_, err = r.Reconnect("conn-new", "nobody")
	assert.ErrorIs(t, err, ErrPlayerNotInRoom)

	res, err := r.Reconnect("conn-new", "bob")
	require.NoError(t, err)

	after := playerNamed(r, "Bob")
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Impostor, after.Impostor)
	assert.True(t, after.Voted)
	assert.True(t, after.Connected)
	assert.True(t, after.DisconnectedAt.IsZero())
	assert.Equal(t, "conn-new", after.Conn)
	assert.Zero(t, f.sched.pending(), "eviction cancelled")

	joined, ok := findMessage[RoomJoinedMessage](directTo(res, "conn-new"))
	require.True(t, ok)
	assert.True(t, joined.Reconnected)

	role, ok := findMessage[RoleMessage](directTo(res, "conn-new"))
	require.True(t, ok)
	assert.Equal(t, before.Impostor, role.Role == "impostor")

	r.mu.Lock()
	assert.Len(t, r.ballots, 1, "the ballot is keyed by player and survives")
	r.mu.Unlock()

	_, err = r.Vote("conn-new", "Dee")
	assert.ErrorIs(t, err, ErrInvalidVote, "still voted this round")

	_, err = r.Vote(conn("Bob"), "Dee")
	assert.ErrorIs(t, err, ErrPlayerNotInRoom, "the old connection is gone")

	f.sched.fire(true)
	assert.True(t, playerNamed(r, "Bob").Connected, "a cancelled eviction that fires anyway is a no-op")
	assert.Zero(t, f.sent.count())
}

func TestReconnectRefusesTakenName(t *testing.T) {
	f := newFixture(t, nil)
	r := f.room(t, 1, "Ada", "Bob")

	_, err := r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)
	_, err = r.Join("conn-imposter", "BOB", false)
	require.NoError(t, err)

	_, err = r.Reconnect("conn-back", "Bob")
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestJoinWithReconnectFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	r := f.room(t, 1, "Ada", "Bob")

	res, err := r.Join("conn-fresh", "Cy", true)
	require.NoError(t, err)
	joined, ok := findMessage[RoomJoinedMessage](directTo(res, "conn-fresh"))
	require.True(t, ok)
	assert.False(t, joined.Reconnected)

	f2 := newFixture(t, nil)
	r2 := f2.started(t, 1, "Ada", "Bob", "Cy")
	_, err = r2.MarkDisconnected(conn("Cy"))
	require.NoError(t, err)

	res, err = r2.Join("conn-again", "Cy", true)
	require.NoError(t, err, "resuming works even after the game started")
	joined, ok = findMessage[RoomJoinedMessage](directTo(res, "conn-again"))
	require.True(t, ok)
	assert.True(t, joined.Reconnected)

	_, err = r2.Join("conn-late", "Dee", true)
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
}

func TestEviction(t *testing.T) {
	f := newFixture(t, nil)
	r := f.room(t, 1, "Ada", "Bob", "Cy")

	_, err := r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)

	assert.Equal(t, 1, f.sched.fire(false))
	assert.Nil(t, playerNamed(r, "Bob"))

	require.Equal(t, 1, f.sent.count())
	left, ok := findMessage[PlayerLeftMessage](f.sent.results[0].Broadcast)
	require.True(t, ok)
	assert.Equal(t, "Bob", left.Name)
	assert.True(t, left.Evicted)
	assert.Equal(t, 2, left.Count)

	assert.Zero(t, f.sched.fire(true), "removed exactly once")
	assert.Equal(t, 1, f.sent.count())

	connected, disconnected := r.Counts()
	assert.Equal(t, 2, connected)
	assert.Zero(t, disconnected)
}

func TestEvictionAfterRoomRemoved(t *testing.T) {
	f := newFixture(t, nil)
	r := f.room(t, 1, "Ada", "Bob")

	_, err := r.MarkDisconnected(conn("Bob"))
	require.NoError(t, err)

	require.True(t, f.reg.Remove(r.Code))

	f.sched.fire(true)
	assert.NotNil(t, playerNamed(r, "Bob"))
	assert.Zero(t, f.sent.count())
}

func TestEvictionWithRealTimers(t *testing.T) {
	sent := &notified{}
	reg := NewRegistry(Options{EvictionGrace: 20 * time.Millisecond, Notify: sent.notify})
	t.Cleanup(reg.Close)

	r, _, err := reg.Create("Real", "a", "Ada", 1)
	require.NoError(t, err)
	_, err = r.Join("b", "Bob", false)
	require.NoError(t, err)
	_, err = r.Join("c", "Cy", false)
	require.NoError(t, err)

	_, err = r.MarkDisconnected("b")
	require.NoError(t, err)
	_, err = r.MarkDisconnected("c")
	require.NoError(t, err)
	_, err = r.Reconnect("c2", "Cy")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sent.count() == 1 }, time.Second, 5*time.Millisecond)

	connected, disconnected := r.Counts()
	assert.Equal(t, 2, connected)
	assert.Zero(t, disconnected)
}

func TestHeartbeat(t *testing.T) {
	t.Run("touch", func(t *testing.T) {
		f := newFixture(t, nil)
		r := f.room(t, 1, "Ada", "Bob")

		f.clock.Advance(time.Minute)
		res, err := r.Heartbeat(conn("Bob"))
		require.NoError(t, err)

		ack, ok := findMessage[HeartbeatAckMessage](directTo(res, conn("Bob")))
		require.True(t, ok)
		assert.True(t, ack.Connected)
		assert.Equal(t, f.clock.Now(), playerNamed(r, "Bob").LastSeen)

		_, err = r.MarkDisconnected(conn("Bob"))
		require.NoError(t, err)
		_, err = r.Heartbeat(conn("Bob"))
		require.NoError(t, err)

		assert.False(t, playerNamed(r, "Bob").Connected)
		assert.Equal(t, 1, f.sched.pending())

		_, err = r.Heartbeat("nobody")
		assert.ErrorIs(t, err, ErrPlayerNotInRoom)
	})

	t.Run("extend", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Heartbeat = HeartbeatExtend })
		r := f.room(t, 1, "Ada", "Bob")

		_, err := r.MarkDisconnected(conn("Bob"))
		require.NoError(t, err)
		_, err = r.Heartbeat(conn("Bob"))
		require.NoError(t, err)

		f.sched.mu.Lock()
		assert.Len(t, f.sched.tasks, 2)
		assert.True(t, f.sched.tasks[0].stopped, "the first timer is replaced")
		f.sched.mu.Unlock()
		assert.Equal(t, 1, f.sched.pending())

		f.sched.fire(true)
		assert.Nil(t, playerNamed(r, "Bob"), "only the newest timer evicts")
		assert.Equal(t, 1, f.sent.count())
	})

	t.Run("revive", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Heartbeat = HeartbeatRevive })
		r := f.room(t, 1, "Ada", "Bob")

		_, err := r.MarkDisconnected(conn("Bob"))
		require.NoError(t, err)

		res, err := r.Heartbeat(conn("Bob"))
		require.NoError(t, err)

		_, ok := findMessage[RosterMessage](res.Broadcast)
		assert.True(t, ok)
		assert.True(t, playerNamed(r, "Bob").Connected)
		assert.Zero(t, f.sched.pending())
	})
}

func TestLinger(t *testing.T) {
	t.Run("touch", func(t *testing.T) {
		f := newFixture(t, nil)
		r := f.room(t, 1, "Ada", "Bob")

		_, err := r.MarkDisconnected(conn("Bob"))
		require.NoError(t, err)

		f.clock.Advance(time.Minute)
		res, bound, err := r.Linger("conn-fresh", " bob ")
		require.NoError(t, err)
		assert.False(t, bound)

		ack, ok := findMessage[HeartbeatAckMessage](directTo(res, "conn-fresh"))
		require.True(t, ok)
		assert.False(t, ack.Connected)
		assert.Empty(t, res.Broadcast)

		bob := playerNamed(r, "Bob")
		assert.False(t, bob.Connected)
		assert.Equal(t, f.clock.Now(), bob.LastSeen)
		assert.Equal(t, 1, f.sched.pending())

		_, _, err = r.Linger("conn-fresh", "Ada")
		assert.ErrorIs(t, err, ErrPlayerNotInRoom, "Ada is still connected")

		_, _, err = r.Linger("conn-fresh", "  ")
		assert.ErrorIs(t, err, ErrInvalidName)

		_, _, err = r.Linger(conn("Ada"), "Bob")
		assert.ErrorIs(t, err, ErrNameTaken)
	})

	t.Run("extend", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Heartbeat = HeartbeatExtend })
		r := f.room(t, 1, "Ada", "Bob")

		_, err := r.MarkDisconnected(conn("Bob"))
		require.NoError(t, err)

		_, bound, err := r.Linger("conn-fresh", "Bob")
		require.NoError(t, err)
		assert.False(t, bound)

		f.sched.mu.Lock()
		assert.Len(t, f.sched.tasks, 2)
		assert.True(t, f.sched.tasks[0].stopped)
		f.sched.mu.Unlock()
		assert.Equal(t, 1, f.sched.pending())
	})

	t.Run("revive", func(t *testing.T) {
		f := newFixture(t, func(o *Options) { o.Heartbeat = HeartbeatRevive })
		r := f.started(t, 1, "Ada", "Bob", "Cy")

		_, err := r.MarkDisconnected(conn("Bob"))
		require.NoError(t, err)

		res, bound, err := r.Linger("conn-fresh", "Bob")
		require.NoError(t, err)
		assert.True(t, bound)

		direct := directTo(res, "conn-fresh")
		joined, ok := findMessage[RoomJoinedMessage](direct)
		require.True(t, ok)
		assert.True(t, joined.Reconnected)
		_, ok = findMessage[RoleMessage](direct)
		assert.True(t, ok, "a revived player learns their role again")
		ack, ok := findMessage[HeartbeatAckMessage](direct)
		require.True(t, ok)
		assert.True(t, ack.Connected)

		bob := playerNamed(r, "Bob")
		assert.True(t, bob.Connected)
		assert.Equal(t, "conn-fresh", bob.Conn)
		assert.Zero(t, f.sched.pending())

		_, err = r.Vote("conn-fresh", "Cy")
		assert.NoError(t, err, "the new connection speaks for Bob")
	})
}

func TestConcurrentRoomMutations(t *testing.T) {
	obs := &countingObserver{}
	sent := &notified{}
	reg := NewRegistry(Options{
		EvictionGrace: time.Millisecond,
		Heartbeat:     HeartbeatRevive,
		Topics:        []string{"Japan"},
		Observer:      obs,
		Notify:        sent.notify,
	})
	t.Cleanup(reg.Close)

	names := []string{"Ada", "Bob", "Cy", "Dee", "Eve", "Fay", "Gus", "Hal"}
	r, _, err := reg.Create("Busy", "c-Ada-0", "Ada", 2)
	require.NoError(t, err)
	for _, name := range names[1:] {
		_, err := r.Join("c-"+name+"-0", name, false)
		require.NoError(t, err)
	}
	_, err = r.Start("c-Ada-0")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()

			c := "c-" + name + "-0"
			for j := range 200 {
				switch j % 4 {
				case 0:
					_, _ = r.Vote(c, names[(i+1+j)%len(names)])
				case 1:
					_, _ = r.MarkDisconnected(c)
				case 2:
					_, _ = r.Heartbeat(c)
				case 3:
					c = fmt.Sprintf("c-%s-%d", name, j)
					_, _ = r.Join(c, name, true)
				}
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return len(r.evictions) == 0
	}, 2*time.Second, 5*time.Millisecond)

	r.mu.Lock()
	var connected, disconnected int
	for _, p := range r.players {
		if p.Connected {
			connected++
			assert.Equal(t, p.ID, r.conns[p.Conn], "%s is reachable by its connection", p.Name)
		} else {
			disconnected++
		}
	}
	remaining := len(r.players)
	assert.Equal(t, remaining, connected+disconnected)
	r.mu.Unlock()

	evicted := map[string]int{}
	sent.mu.Lock()
	for _, res := range sent.results {
		if left, ok := findMessage[PlayerLeftMessage](res.Broadcast); ok && left.Evicted {
			evicted[left.Name]++
		}
	}
	sent.mu.Unlock()

	for name, n := range evicted {
		assert.Equal(t, 1, n, "%s evicted once", name)
	}
	assert.Equal(t, len(names)-remaining, len(evicted), "every missing player was evicted")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, remaining, obs.players)
	assert.Equal(t, connected, obs.online)
}

func TestParseHeartbeatPolicy(t *testing.T) {
	p, ok := ParseHeartbeatPolicy("extend")
	assert.True(t, ok)
	assert.Equal(t, HeartbeatExtend, p)

	_, ok = ParseHeartbeatPolicy("sometimes")
	assert.False(t, ok)
}

func directTo(res Result, conn string) []any {
	var msgs []any
	for _, env := range res.Direct {
		if env.Conn == conn {
			msgs = append(msgs, env.Message)
		}
	}
	return msgs
}
