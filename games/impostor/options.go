/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxPlayers    = 8
	DefaultEvictionGrace = 10 * time.Minute
	CodeLength           = 4
	MaxNameLength        = 24
	MaxChatLength        = 280
)

// Stopper cancels a scheduled task. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// Observer is told about lifecycle changes; the server feeds metrics from it.
type Observer interface {
	RoomOpened()
	RoomClosed()
	PlayerJoined()
	PlayerRemoved(evicted bool)
	PlayerConnected(connected bool)
	GameStarted()
	VoteTied()
	GameEnded(Outcome)
}

type nopObserver struct{}

func (nopObserver) RoomOpened()          {}
func (nopObserver) RoomClosed()          {}
func (nopObserver) PlayerJoined()        {}
func (nopObserver) PlayerRemoved(bool)   {}
func (nopObserver) PlayerConnected(bool) {}
func (nopObserver) GameStarted()         {}
func (nopObserver) VoteTied()            {}
func (nopObserver) GameEnded(Outcome)    {}

// Options are shared by every room of a registry.
type Options struct {
	MaxPlayers int
	// Discussion inserts a discussion phase that the creator ends with OpenVoting.
	Discussion    bool
	EvictionGrace time.Duration
	Heartbeat     HeartbeatPolicy
	// IdleTimeout removes rooms without activity; zero disables the reaper.
	IdleTimeout time.Duration
	Topics      []string

	Scheduler Scheduler
	Observer  Observer
	Now       func() time.Time
	IntN      func(n int) int
	Logf      func(format string, args ...any)

	// Notify delivers results that no request is waiting for, i.e. evictions.
	Notify func(code string, res Result)
}

func (o Options) withDefaults() Options {
	if o.MaxPlayers <= 0 {
		o.MaxPlayers = DefaultMaxPlayers
	}
	if o.EvictionGrace <= 0 {
		o.EvictionGrace = DefaultEvictionGrace
	}
	if o.Heartbeat == "" {
		o.Heartbeat = HeartbeatTouch
	}
	if len(o.Topics) == 0 {
		o.Topics = DefaultTopics
	}
	if o.Scheduler == nil {
		o.Scheduler = timerScheduler{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.IntN == nil {
		o.IntN = rand.IntN
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	return o
}
