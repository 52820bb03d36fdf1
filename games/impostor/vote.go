/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"fmt"
	"sort"
	"strings"
)

// Vote records conn's vote against the connected player named target, then
// resolves the round if a majority or a full tally allows it.
func (r *Room) Vote(conn, target string) (Result, error) {
	target = strings.TrimSpace(target)

	r.mu.Lock()
	defer r.mu.Unlock()

	voter, ok := r.playerByConnLocked(conn)
	if !ok {
		return Result{}, ErrPlayerNotInRoom
	}

	switch {
	case r.phase != PhaseVoting:
		return Result{}, fmt.Errorf("%w: voting is not open", ErrInvalidVote)
	case !voter.Connected:
		return Result{}, fmt.Errorf("%w: %q is disconnected", ErrInvalidVote, voter.Name)
	case voter.Voted:
		return Result{}, fmt.Errorf("%w: %q already voted this round", ErrInvalidVote, voter.Name)
	case strings.EqualFold(target, voter.Name):
		return Result{}, fmt.Errorf("%w: cannot vote for yourself", ErrInvalidVote)
	}

	accused := r.connectedByNameLocked(target)
	if accused == nil {
		return Result{}, fmt.Errorf("%w: no connected player named %q", ErrInvalidVote, target)
	}

	r.ballots[voter.ID] = Ballot{Target: accused.ID, Name: accused.Name}
	voter.Voted = true
	r.lastActive = r.opts.Now()

	var res Result
	res.broadcast(VoteAcceptedMessage{
		Type:  "vote_accepted",
		Voter: voter.Name,
		Votes: len(r.ballots),
		Of:    r.connectedCountLocked(),
	})

	r.resolveLocked(&res)

	return res, nil
}

func (r *Room) resolveLocked(res *Result) {
	counts := Tally(r.ballots)
	connected := r.connectedCountLocked()

	if id, ok := InstantMajority(counts, connected); ok {
		r.endLocked(res, id, true)
		return
	}

	if connected == 0 || !r.allConnectedVotedLocked() {
		return
	}

	leaders, _ := Plurality(counts)
	switch len(leaders) {
	case 0:
		return
	case 1:
		r.endLocked(res, leaders[0], false)
	default:
		r.tieLocked(res, leaders)
	}
}

// settleLocked resolves a voting round whose last outstanding voter just
// dropped out, so the remaining voters are not left waiting.
func (r *Room) settleLocked(res *Result) {
	if r.phase != PhaseVoting || len(r.ballots) == 0 {
		return
	}
	if r.connectedCountLocked() == 0 || !r.allConnectedVotedLocked() {
		return
	}
	r.resolveLocked(res)
}

func (r *Room) allConnectedVotedLocked() bool {
	for _, p := range r.players {
		if p.Connected && !p.Voted {
			return false
		}
	}
	return true
}

// tieLocked restarts voting with the same roles and topic. Only connected
// players get their vote back.
func (r *Room) tieLocked(res *Result, leaders []string) {
	names := r.ballotNamesLocked()
	tied := make([]string, 0, len(leaders))
	for _, id := range leaders {
		tied = append(tied, names[id])
	}

	tally := namedTally(r.ballots)

	clear(r.ballots)
	for _, p := range r.players {
		if p.Connected {
			p.Voted = false
		}
	}
	r.round++

	res.broadcast(VoteTieMessage{
		Type:  "vote_tie",
		Tied:  tied,
		Tally: tally,
		Round: r.round,
	})

	r.opts.Observer.VoteTied()
	r.opts.Logf("GAMES: Tie in %s between %s, starting round %d", r.Code, strings.Join(tied, ", "), r.round)
}

func (r *Room) endLocked(res *Result, accusedID string, instant bool) {
	accused := r.ballotNamesLocked()[accusedID]

	outcome := ImpostorsWin
	if _, ok := r.impostors[accusedID]; ok {
		outcome = CitizensWin
	}

	impostors := make([]string, 0, len(r.impostors))
	for id, name := range r.impostors {
		if p, ok := r.players[id]; ok {
			name = p.Name
		}
		impostors = append(impostors, name)
	}
	sort.Strings(impostors)

	tally := namedTally(r.ballots)
	clear(r.ballots)
	r.phase = PhaseEnded

	res.broadcast(GameEndedMessage{
		Type:      "game_ended",
		Outcome:   outcome,
		Accused:   accused,
		Impostors: impostors,
		Topic:     r.topic,
		Tally:     tally,
		Instant:   instant,
	})

	r.opts.Observer.GameEnded(outcome)
	r.opts.Logf("GAMES: %s ended (%s), accused %q", r.Code, outcome, accused)
}

func (r *Room) ballotNamesLocked() map[string]string {
	names := make(map[string]string, len(r.ballots))
	for _, b := range r.ballots {
		names[b.Target] = b.Name
	}
	return names
}
