/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

import (
	"errors"
	"fmt"
)

// Assign draws one topic and impostorCount distinct ids, both uniformly.
// intn must return a value in [0, n).
func Assign(intn func(n int) int, connected []string, impostorCount int, topics []string) (string, []string, error) {
	if len(topics) == 0 {
		return "", nil, errors.New("no topics configured")
	}
	if impostorCount < 1 || impostorCount >= len(connected) {
		return "", nil, fmt.Errorf("%w: %d impostors among %d players", ErrInsufficientPlayers, impostorCount, len(connected))
	}

	topic := topics[intn(len(topics))]

	// Partial Fisher-Yates over a copy; the first impostorCount slots are the draw.
	ids := make([]string, len(connected))
	copy(ids, connected)
	for i := 0; i < impostorCount; i++ {
		j := i + intn(len(ids)-i)
		ids[i], ids[j] = ids[j], ids[i]
	}

	return topic, ids[:impostorCount], nil
}
