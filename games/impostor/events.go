/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

// PlayerView is the public face of a player; it never carries a role.
type PlayerView struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Voted     bool   `json:"voted"`
	Creator   bool   `json:"creator"`
}

// Sent to the creator once a room exists.
type RoomCreatedMessage struct {
	Type          string `json:"type"` // "room_created"
	Code          string `json:"room_code"`
	Name          string `json:"room_name"`
	PlayerName    string `json:"player_name"`
	ImpostorCount int    `json:"impostor_count"`
	MaxPlayers    int    `json:"max_players"`
}

// Sent to a single client after a join or reconnect.
type RoomJoinedMessage struct {
	Type        string `json:"type"` // "room_joined"
	Code        string `json:"room_code"`
	Name        string `json:"room_name"`
	PlayerName  string `json:"player_name"`
	IsCreator   bool   `json:"is_creator"`
	Reconnected bool   `json:"reconnected"`
}

// RosterMessage is broadcast whenever the set of players changes.
type RosterMessage struct {
	Type      string       `json:"type"` // "roster"
	Players   []PlayerView `json:"players"`
	Count     int          `json:"player_count"`
	NewPlayer string       `json:"new_player,omitempty"`
}

// RejectedMessage goes only to the client whose request failed.
type RejectedMessage struct {
	Type    string `json:"type"` // "join_rejected", "start_rejected", "create_rejected", "error"
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type GameStartedMessage struct {
	Type          string `json:"type"` // "game_started"
	Phase         Phase  `json:"phase"`
	ImpostorCount int    `json:"impostor_count"`
	Round         int    `json:"round"`
}

// RoleMessage is private; citizens get the topic, impostors do not.
type RoleMessage struct {
	Type          string `json:"type"` // "role_assigned"
	Role          string `json:"role"` // "impostor" or "citizen"
	Topic         string `json:"topic,omitempty"`
	ImpostorCount int    `json:"impostor_count"`
}

type VotingOpenedMessage struct {
	Type  string `json:"type"` // "voting_opened"
	Round int    `json:"round"`
}

// VoteAcceptedMessage never reveals the target.
type VoteAcceptedMessage struct {
	Type  string `json:"type"` // "vote_accepted"
	Voter string `json:"voter"`
	Votes int    `json:"votes"`
	Of    int    `json:"of"`
}

type VoteTieMessage struct {
	Type  string         `json:"type"` // "vote_tie"
	Tied  []string       `json:"tied"`
	Tally map[string]int `json:"tally"`
	Round int            `json:"round"`
}

type GameEndedMessage struct {
	Type      string         `json:"type"` // "game_ended"
	Outcome   Outcome        `json:"outcome"`
	Accused   string         `json:"accused"`
	Impostors []string       `json:"impostors"`
	Topic     string         `json:"topic"`
	Tally     map[string]int `json:"tally"`
	Instant   bool           `json:"instant"`
}

type PlayerLeftMessage struct {
	Type    string       `json:"type"` // "player_left"
	Name    string       `json:"name"`
	Evicted bool         `json:"evicted"`
	Players []PlayerView `json:"players"`
	Count   int          `json:"player_count"`
}

type GameResetMessage struct {
	Type    string       `json:"type"` // "game_reset"
	By      string       `json:"by"`
	Players []PlayerView `json:"players"`
}

type ChatMessage struct {
	Type    string `json:"type"` // "chat"
	Name    string `json:"name"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

type HeartbeatAckMessage struct {
	Type      string `json:"type"` // "heartbeat_ack"
	Timestamp int64  `json:"timestamp"`
	Connected bool   `json:"connected"`
}

// Envelope addresses a message to one connection.
type Envelope struct {
	Conn    string
	Message any
}

// Result describes what an operation wants delivered. The room code is
// the broadcast audience; Direct messages go to single connections.
type Result struct {
	Broadcast []any
	Direct    []Envelope
}

func (r *Result) broadcast(msg any) {
	r.Broadcast = append(r.Broadcast, msg)
}

func (r *Result) send(conn string, msg any) {
	r.Direct = append(r.Direct, Envelope{Conn: conn, Message: msg})
}

// Empty reports whether there is nothing to deliver.
func (r Result) Empty() bool {
	return len(r.Broadcast) == 0 && len(r.Direct) == 0
}
