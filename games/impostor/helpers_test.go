/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type manualTask struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

// manualScheduler only runs tasks when the test says so.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &manualTask{d: d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every live task, including ones the room cancelled if force is set.
func (s *manualScheduler) fire(force bool) int {
	s.mu.Lock()
	var due []*manualTask
	for _, t := range s.tasks {
		if t.fired || (t.stopped && !force) {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notified struct {
	mu      sync.Mutex
	results []Result
}

func (n *notified) notify(_ string, res Result) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
}

func (n *notified) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.results)
}

type fixture struct {
	reg   *Registry
	sched *manualScheduler
	clock *clock
	sent  *notified
}

func newFixture(t *testing.T, mod func(*Options)) *fixture {
	t.Helper()

	f := &fixture{
		sched: &manualScheduler{},
		clock: &clock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)},
		sent:  &notified{},
	}
	opts := Options{
		Topics:    []string{"Japan", "Peru", "Norway"},
		Scheduler: f.sched,
		Now:       f.clock.Now,
		Notify:    f.sent.notify,
	}
	if mod != nil {
		mod(&opts)
	}
	f.reg = NewRegistry(opts)
	t.Cleanup(f.reg.Close)

	return f
}

func conn(name string) string {
	return "conn-" + name
}

// room creates a room owned by the first name and joins the rest.
func (f *fixture) room(t *testing.T, impostors int, names ...string) *Room {
	t.Helper()

	r, _, err := f.reg.Create("Test", conn(names[0]), names[0], impostors)
	require.NoError(t, err)

	for _, name := range names[1:] {
		_, err := r.Join(conn(name), name, false)
		require.NoError(t, err)
	}
	return r
}

func (f *fixture) started(t *testing.T, impostors int, names ...string) *Room {
	t.Helper()

	r := f.room(t, impostors, names...)
	_, err := r.Start(conn(names[0]))
	require.NoError(t, err)
	return r
}

func playerNamed(r *Room, name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func impostorNames(r *Room) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, p := range r.players {
		if p.Impostor {
			names = append(names, p.Name)
		}
	}
	return names
}

func findMessage[T any](msgs []any) (T, bool) {
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
