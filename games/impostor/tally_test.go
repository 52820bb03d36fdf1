/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 8: 5}
	for connected, want := range cases {
		assert.Equal(t, want, Threshold(connected), "connected=%d", connected)
	}
}

func TestTally(t *testing.T) {
	ballots := map[string]Ballot{
		"a": {Target: "b", Name: "B"},
		"c": {Target: "b", Name: "B"},
		"b": {Target: "c", Name: "C"},
	}

	assert.Equal(t, map[string]int{"b": 2, "c": 1}, Tally(ballots))
	assert.Equal(t, map[string]int{"B": 2, "C": 1}, namedTally(ballots))
}

func TestInstantMajorityCounts(t *testing.T) {
	id, ok := InstantMajority(map[string]int{"b": 3, "c": 1}, 5)
	assert.True(t, ok)
	assert.Equal(t, "b", id)

	_, ok = InstantMajority(map[string]int{"b": 2, "c": 1}, 5)
	assert.False(t, ok)

	_, ok = InstantMajority(map[string]int{"b": 2, "c": 2}, 2)
	assert.False(t, ok, "two leaders never make a majority")

	_, ok = InstantMajority(map[string]int{"b": 1}, 0)
	assert.False(t, ok)
}

func TestPlurality(t *testing.T) {
	leaders, top := Plurality(map[string]int{"b": 2, "c": 2, "d": 1})
	assert.Equal(t, []string{"b", "c"}, leaders)
	assert.Equal(t, 2, top)

	leaders, top = Plurality(map[string]int{"d": 1})
	assert.Equal(t, []string{"d"}, leaders)
	assert.Equal(t, 1, top)

	leaders, top = Plurality(nil)
	assert.Empty(t, leaders)
	assert.Zero(t, top)
}
