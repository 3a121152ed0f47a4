package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPlayerFirstBecomesHost(t *testing.T) {
	room := newRoom(newRoomID(), newRoomCode(), nil, time.Now())

	room.addPlayer(&Player{ID: "a", Name: "Alice"})
	room.addPlayer(&Player{ID: "b", Name: "Bob"})

	assert.True(t, room.player("a").IsHost)
	assert.False(t, room.player("b").IsHost)
}

func TestRemovePlayerPromotesEarliestJoiner(t *testing.T) {
	room := newRoom(newRoomID(), newRoomCode(), nil, time.Now())

	room.addPlayer(&Player{ID: "a", Name: "Alice"})
	room.addPlayer(&Player{ID: "b", Name: "Bob"})
	room.addPlayer(&Player{ID: "c", Name: "Carol"})

	require.True(t, room.removePlayer("a"))

	assert.True(t, room.player("b").IsHost)
	assert.False(t, room.player("c").IsHost)
}

func TestRemovePlayerNonHostKeepsHost(t *testing.T) {
	room := newRoom(newRoomID(), newRoomCode(), nil, time.Now())

	room.addPlayer(&Player{ID: "a", Name: "Alice"})
	room.addPlayer(&Player{ID: "b", Name: "Bob"})

	require.True(t, room.removePlayer("b"))

	assert.True(t, room.player("a").IsHost)
	assert.Len(t, room.players, 1)
}

func TestRemovePlayerUnknownIsNoop(t *testing.T) {
	room := newRoom(newRoomID(), newRoomCode(), nil, time.Now())

	room.addPlayer(&Player{ID: "a", Name: "Alice"})

	assert.False(t, room.removePlayer("nobody"))
	assert.Len(t, room.players, 1)

	require.True(t, room.removePlayer("a"))
	assert.False(t, room.removePlayer("a"))
}

func TestAllReady(t *testing.T) {
	room := newRoom(newRoomID(), newRoomCode(), nil, time.Now())

	assert.False(t, room.allReady(), "empty room is never ready")

	room.addPlayer(&Player{ID: "a", Name: "Alice"})
	room.addPlayer(&Player{ID: "b", Name: "Bob"})

	room.player("a").IsReady = true
	assert.False(t, room.allReady())

	room.player("b").IsReady = true
	assert.True(t, room.allReady())
}

func TestLeaderboardOrdering(t *testing.T) {
	room := newRoom(newRoomID(), newRoomCode(), nil, time.Now())

	room.addPlayer(&Player{ID: "a", Name: "Alice"})
	room.addPlayer(&Player{ID: "b", Name: "Bob", IsComplete: true, CompletionTime: 42000})
	room.addPlayer(&Player{ID: "c", Name: "Carol", IsComplete: true, CompletionTime: 31000})
	room.addPlayer(&Player{ID: "d", Name: "Dave"})

	ranked := room.leaderboard()

	require.Len(t, ranked, 4)
	assert.Equal(t, "c", ranked[0].ID)
	assert.Equal(t, "b", ranked[1].ID)

	// Unfinished players keep their join order.
	assert.Equal(t, "a", ranked[2].ID)
	assert.Equal(t, "d", ranked[3].ID)
}

func TestRoomCodeFormat(t *testing.T) {
	const letters = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	for i := 0; i < 64; i++ {
		code := newRoomCode()

		require.Len(t, code, 6)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(letters, r), "unexpected character %q in %q", r, code)
		}
	}
}

func TestRestartCopiesRosterAndResetsState(t *testing.T) {
	image := &NasaImage{URL: "https://example.com/old.jpg"}
	room := newRoom(newRoomID(), newRoomCode(), image, time.Now())

	room.addPlayer(&Player{ID: "a", Name: "Alice"})
	room.addPlayer(&Player{ID: "b", Name: "Bob"})

	room.status = StatusCompleted
	room.winnerID = "b"
	for _, p := range room.players {
		p.IsReady = true
		p.IsComplete = true
		p.CompletionTime = 10000
		p.MovesCount = 50
	}

	fresh := &NasaImage{URL: "https://example.com/new.jpg"}
	next := room.restart(newRoomID(), newRoomCode(), fresh, time.Now())

	assert.NotEqual(t, room.id, next.id)
	assert.Equal(t, StatusWaiting, next.status)
	assert.Empty(t, next.winnerID)
	assert.Equal(t, fresh, next.image)

	require.Len(t, next.players, 2)
	assert.True(t, next.player("a").IsHost)
	for _, p := range next.players {
		assert.False(t, p.IsReady)
		assert.False(t, p.IsComplete)
		assert.Zero(t, p.CompletionTime)
		assert.Zero(t, p.MovesCount)
	}
}
