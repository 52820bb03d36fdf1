/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"sort"
)

// Ballot is one recorded vote. The target is resolved to a player id when
// the vote is cast; Name is kept so a departed target can still be named.
type Ballot struct {
	Target string
	Name   string
}

// Tally counts ballots per target player id.
func Tally(ballots map[string]Ballot) map[string]int {
	counts := make(map[string]int, len(ballots))
	for _, b := range ballots {
		counts[b.Target]++
	}
	return counts
}

// Threshold is the number of votes needed for an instant majority among
// connected players.
func Threshold(connected int) int {
	return connected/2 + 1
}

// InstantMajority returns the candidate holding at least Threshold(connected)
// votes. Stale ballots can push two candidates over the line; only a sole
// leader counts.
func InstantMajority(counts map[string]int, connected int) (string, bool) {
	if connected <= 0 {
		return "", false
	}

	leaders, top := Plurality(counts)
	if len(leaders) != 1 || top < Threshold(connected) {
		return "", false
	}
	return leaders[0], true
}

// Plurality returns every candidate sharing the highest count, sorted, and
// that count. More than one leader means a tie.
func Plurality(counts map[string]int) ([]string, int) {
	top := 0
	var leaders []string
	for id, n := range counts {
		switch {
		case n > top:
			top = n
			leaders = []string{id}
		case n == top:
			leaders = append(leaders, id)
		}
	}
	sort.Strings(leaders)
	return leaders, top
}

// namedTally rekeys counts by display name for broadcasting.
func namedTally(ballots map[string]Ballot) map[string]int {
	out := make(map[string]int, len(ballots))
	for _, b := range ballots {
		out[b.Name]++
	}
	return out
}
