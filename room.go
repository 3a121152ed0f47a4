package main

import (
	"crypto/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type RoomStatus string

const (
	StatusWaiting   RoomStatus = "waiting"
	StatusPlaying   RoomStatus = "playing"
	StatusCompleted RoomStatus = "completed"
)

// Player is the server-side record for one room membership. The id is
// the owning session's id, so membership always mirrors the set of
// connected sessions claiming this room.
type Player struct {
	ID             string
	Name           string
	IsHost         bool
	IsReady        bool
	IsComplete     bool
	CompletionTime int64 // milliseconds, trusted client input
	MovesCount     int
}

type Room struct {
	// Identity / metadata
	id     string
	code   string
	image  *NasaImage
	status RoomStatus

	// Players, in join order
	players  []*Player
	winnerID string

	// Countdown sub-machine, meaningful only while status is waiting.
	// counting guards against duplicate timers, and the generation is
	// checked before a queued tick may act, so a cancelled countdown
	// never fires into the room.
	counting       bool
	countdownGen   int
	countdownValue int

	createdAt  time.Time
	lastActive time.Time
}

func newRoom(id, code string, image *NasaImage, now time.Time) *Room {
	return &Room{
		id:         id,
		code:       code,
		image:      image,
		status:     StatusWaiting,
		createdAt:  now,
		lastActive: now,
	}
}

func newRoomID() string {
	return uuid.NewString()
}

// newRoomCode generates a short shareable code. Ambiguous characters
// are left out of the alphabet.
func newRoomCode() string {
	const letters = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	const max = byte(255 - (256 % len(letters)))
	const length = 6

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		for _, b := range buf {
			if b <= max {
				out = append(out, letters[int(b)%len(letters)])
				if len(out) == length {
					return string(out)
				}
			}
		}
	}

	return string(out)
}

func (r *Room) touch(clock clockwork.Clock) {
	r.lastActive = clock.Now()
}

func (r *Room) player(playerID string) *Player {
	for _, p := range r.players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// addPlayer appends to the roster in join order. The first player in
// becomes the host.
func (r *Room) addPlayer(p *Player) {
	if len(r.players) == 0 {
		p.IsHost = true
	}
	r.players = append(r.players, p)
}

// removePlayer drops a player by id and restores the host invariant:
// if the host left and anyone remains, the earliest remaining joiner
// is promoted. Removing an unknown id is a no-op.
func (r *Room) removePlayer(playerID string) bool {
	idx := -1
	for i, p := range r.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	wasHost := r.players[idx].IsHost
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	if wasHost && len(r.players) > 0 {
		r.players[0].IsHost = true
	}

	return true
}

func (r *Room) allReady() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// leaderboard ranks completed players by completion time ascending,
// then everyone else in join order.
func (r *Room) leaderboard() []*Player {
	ranked := make([]*Player, len(r.players))
	copy(ranked, r.players)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.IsComplete != b.IsComplete {
			return a.IsComplete
		}
		if a.IsComplete {
			return a.CompletionTime < b.CompletionTime
		}
		return false
	})

	return ranked
}

// restart builds the successor room for "play again": same roster and
// host, fresh image, everything else reset to a waiting room.
func (r *Room) restart(id, code string, image *NasaImage, now time.Time) *Room {
	next := newRoom(id, code, image, now)
	for _, p := range r.players {
		next.players = append(next.players, &Player{
			ID:     p.ID,
			Name:   p.Name,
			IsHost: p.IsHost,
		})
	}
	return next
}
