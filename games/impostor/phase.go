/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseEnded      Phase = "ended"
)

// Outcome of a finished round.
type Outcome string

const (
	CitizensWin  Outcome = "citizens_win"
	ImpostorsWin Outcome = "impostors_win"
)

// HeartbeatPolicy decides what a heartbeat does to a disconnected player.
type HeartbeatPolicy string

const (
	// HeartbeatTouch only refreshes LastSeen.
	HeartbeatTouch HeartbeatPolicy = "touch"
	// HeartbeatExtend restarts the eviction grace period from now.
	HeartbeatExtend HeartbeatPolicy = "extend"
	// HeartbeatRevive marks the player connected again and cancels eviction.
	HeartbeatRevive HeartbeatPolicy = "revive"
)

func ParseHeartbeatPolicy(s string) (HeartbeatPolicy, bool) {
	switch p := HeartbeatPolicy(s); p {
	case HeartbeatTouch, HeartbeatExtend, HeartbeatRevive:
		return p, true
	}
	return "", false
}
