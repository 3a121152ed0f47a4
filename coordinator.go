package main

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Coordinator owns every room. A single goroutine (Run) consumes all
// commands in arrival order, so per-room state is mutated by exactly
// one writer and commands for the same room are never reordered. The
// only blocking work, the image fetch, happens in the calling session's
// goroutine before its command is enqueued.
type Coordinator struct {
	cfg      *Config
	clock    clockwork.Clock
	provider ImageProvider

	rooms  map[string]*Room
	byCode map[string]string            // room code -> room id
	conns  map[string]map[*session]bool // room id -> joined sessions

	commands    chan sessionCommand
	ticks       chan countdownTick
	disconnects chan *session
	statsReqs   chan chan Stats
}

type sessionCommand struct {
	sess *session
	cmd  ClientCommand

	// resolved before enqueue for create-room and play-again
	image *NasaImage
}

type countdownTick struct {
	roomID string
	gen    int
}

// Stats is a point-in-time census of the coordinator.
type Stats struct {
	Rooms    int `json:"rooms"`
	Players  int `json:"players"`
	Sessions int `json:"sessions"`
}

func NewCoordinator(cfg *Config, provider ImageProvider, clock clockwork.Clock) *Coordinator {
	return &Coordinator{
		cfg:         cfg,
		clock:       clock,
		provider:    provider,
		rooms:       make(map[string]*Room),
		byCode:      make(map[string]string),
		conns:       make(map[string]map[*session]bool),
		commands:    make(chan sessionCommand, 256),
		ticks:       make(chan countdownTick, 64),
		disconnects: make(chan *session, 64),
		statsReqs:   make(chan chan Stats, 8),
	}
}

// Enqueue hands a client command to the event loop.
func (c *Coordinator) Enqueue(sc sessionCommand) {
	c.commands <- sc
}

// Disconnect reports an abrupt transport close for a session.
func (c *Coordinator) Disconnect(sess *session) {
	c.disconnects <- sess
}

// StatsSnapshot asks the event loop for a census.
func (c *Coordinator) StatsSnapshot(ctx context.Context) Stats {
	respChan := make(chan Stats, 1)
	select {
	case c.statsReqs <- respChan:
		select {
		case stats := <-respChan:
			return stats
		case <-ctx.Done():
			return Stats{}
		}
	case <-ctx.Done():
		return Stats{}
	}
}

// Run is the event loop. Everything that touches room state happens
// here.
func (c *Coordinator) Run(ctx context.Context) {
	var reap <-chan time.Time
	if c.cfg.sessionTimeout > 0 {
		ticker := c.clock.NewTicker(c.cfg.sessionTimeout / 2)
		defer ticker.Stop()
		reap = ticker.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case sc := <-c.commands:
			c.dispatch(sc)

		case tick := <-c.ticks:
			c.handleCountdownTick(tick)

		case sess := <-c.disconnects:
			c.handleDisconnect(sess)

		case <-reap:
			c.reapIdleRooms()

		case respChan := <-c.statsReqs:
			respChan <- c.census()
		}
	}
}

func (c *Coordinator) dispatch(sc sessionCommand) {
	switch sc.cmd.Type {
	case CmdCreateRoom:
		c.handleCreateRoom(sc.sess, sc.cmd, sc.image)
	case CmdJoinRoom:
		c.handleJoinRoom(sc.sess, sc.cmd)
	case CmdPlayerReady:
		c.handlePlayerReady(sc.sess, sc.cmd)
	case CmdPlayerProgress:
		c.handlePlayerProgress(sc.sess, sc.cmd)
	case CmdPlayerComplete:
		c.handlePlayerComplete(sc.sess, sc.cmd)
	case CmdPlayAgain:
		c.handlePlayAgain(sc.sess, sc.cmd, sc.image)
	case CmdLeaveRoom:
		c.handleLeaveRoom(sc.sess, sc.cmd)
	}
}

func (c *Coordinator) handleCreateRoom(sess *session, cmd ClientCommand, image *NasaImage) {
	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" {
		c.sendTo(sess, errorEvent("Player name is required"))
		return
	}

	// A session holds at most one membership.
	c.leaveCurrentRoom(sess)

	room := newRoom(newRoomID(), c.uniqueRoomCode(), image, c.clock.Now())
	room.addPlayer(&Player{ID: sess.id, Name: name})

	c.rooms[room.id] = room
	c.byCode[room.code] = room.id
	c.conns[room.id] = map[*session]bool{sess: true}

	c.sendTo(sess, RoomCreatedMessage{
		Type:     EventRoomCreated,
		RoomID:   room.id,
		RoomCode: room.code,
		PlayerID: sess.id,
		Image:    room.image,
	})

	logf(c.cfg, "ROOMS: Created %s (%s) for player %q", room.id, room.code, name)
}

func (c *Coordinator) handleJoinRoom(sess *session, cmd ClientCommand) {
	name := strings.TrimSpace(cmd.PlayerName)
	if name == "" {
		c.sendTo(sess, errorEvent("Player name is required"))
		return
	}

	room := c.lookupRoom(cmd.RoomID, cmd.RoomCode)
	if room == nil {
		c.sendTo(sess, errorEvent("Room not found"))
		return
	}

	if room.player(sess.id) != nil {
		// Already a member; resend the snapshot rather than duplicating
		// the roster entry.
		c.sendTo(sess, c.roomJoinedMessage(room, sess.id))
		return
	}

	if c.cfg.maxPlayers > 0 && len(room.players) >= c.cfg.maxPlayers {
		c.sendTo(sess, errorEvent("Room is full"))
		return
	}

	c.leaveCurrentRoom(sess)

	player := &Player{ID: sess.id, Name: name}
	room.addPlayer(player)
	room.touch(c.clock)
	c.conns[room.id][sess] = true

	// Membership changed, so any running countdown is void.
	c.abortCountdown(room)

	c.sendTo(sess, c.roomJoinedMessage(room, sess.id))
	c.broadcastExcept(room, sess, PlayerJoinedMessage{
		Type: EventPlayerJoined,
		Player: PlayerState{
			ID:     player.ID,
			Name:   player.Name,
			IsHost: player.IsHost,
		},
	})

	logf(c.cfg, "ROOMS: Player %q joined %s (%d players)", name, room.id, len(room.players))
}

func (c *Coordinator) handlePlayerReady(sess *session, cmd ClientCommand) {
	room := c.rooms[cmd.RoomID]
	if room == nil {
		logf(c.cfg, "GAMES: Ready for unknown room %s ignored", cmd.RoomID)
		return
	}
	player := room.player(sess.id)
	if player == nil {
		logf(c.cfg, "GAMES: Ready from non-member ignored in %s", room.id)
		return
	}
	if room.status != StatusWaiting {
		return
	}

	player.IsReady = cmd.IsReady
	room.touch(c.clock)

	c.broadcast(room, PlayerStatusMessage{
		Type:    EventPlayerStatus,
		Players: playerStates(room.players),
	})

	if !room.allReady() {
		c.abortCountdown(room)
		return
	}
	c.maybeStartCountdown(room)
}

func (c *Coordinator) handlePlayerProgress(sess *session, cmd ClientCommand) {
	room := c.rooms[cmd.RoomID]
	if room == nil {
		return
	}
	player := room.player(sess.id)
	if player == nil || room.status != StatusPlaying {
		return
	}

	player.MovesCount = cmd.MovesCount
	room.touch(c.clock)

	c.broadcast(room, PlayerStatusMessage{
		Type:    EventPlayerStatus,
		Players: playerStates(room.players),
	})
}

func (c *Coordinator) handlePlayerComplete(sess *session, cmd ClientCommand) {
	room := c.rooms[cmd.RoomID]
	if room == nil {
		logf(c.cfg, "GAMES: Completion for unknown room %s ignored", cmd.RoomID)
		return
	}
	player := room.player(sess.id)
	if player == nil {
		logf(c.cfg, "GAMES: Completion from non-member ignored in %s", room.id)
		return
	}
	if room.status == StatusWaiting {
		logf(c.cfg, "GAMES: Completion before start ignored in %s", room.id)
		return
	}
	if player.IsComplete {
		// Duplicate submission; first completion time stands.
		return
	}

	player.IsComplete = true
	player.CompletionTime = cmd.CompletionTime
	if cmd.MovesCount > 0 {
		player.MovesCount = cmd.MovesCount
	}
	room.touch(c.clock)

	// Winner assignment and the status flip are a single step inside
	// the event loop, so there is no window with a winner recorded but
	// the room still playing, and no second winner.
	won := false
	if room.status == StatusPlaying && room.winnerID == "" {
		room.winnerID = player.ID
		room.status = StatusCompleted
		won = true
	}

	c.broadcast(room, PlayerStatusMessage{
		Type:    EventPlayerStatus,
		Players: playerStates(room.players),
	})

	if won {
		c.broadcast(room, GameOverMessage{
			Type:     EventGameOver,
			WinnerID: room.winnerID,
			Players:  playerStates(room.leaderboard()),
		})
		logf(c.cfg, "GAMES: Player %q won %s in %dms", player.Name, room.id, player.CompletionTime)
	}
}

func (c *Coordinator) handlePlayAgain(sess *session, cmd ClientCommand, image *NasaImage) {
	room := c.rooms[cmd.RoomID]
	if room == nil {
		c.sendTo(sess, errorEvent("Room not found"))
		return
	}
	player := room.player(sess.id)
	if player == nil {
		return
	}
	if !player.IsHost {
		c.sendTo(sess, errorEvent("Only the host can start a new game"))
		return
	}
	if room.status != StatusCompleted {
		c.sendTo(sess, errorEvent("Game is still in progress"))
		return
	}

	next := room.restart(newRoomID(), c.uniqueRoomCode(), image, c.clock.Now())

	c.rooms[next.id] = next
	c.byCode[next.code] = next.id
	c.conns[next.id] = c.conns[room.id]

	delete(c.rooms, room.id)
	delete(c.byCode, room.code)
	delete(c.conns, room.id)

	c.broadcast(next, RoomRestartedMessage{
		Type:     EventRoomRestarted,
		RoomID:   next.id,
		RoomCode: next.code,
		Image:    next.image,
	})

	logf(c.cfg, "ROOMS: Restarted %s as %s (%s)", room.id, next.id, next.code)
}

func (c *Coordinator) handleLeaveRoom(sess *session, cmd ClientCommand) {
	room := c.rooms[cmd.RoomID]
	if room == nil {
		return
	}
	c.removeMember(room, sess, sess.id)
}

// handleDisconnect covers abrupt transport closes, where no leave-room
// command named the room. The full scan is fine at the expected scale.
func (c *Coordinator) handleDisconnect(sess *session) {
	for _, room := range c.rooms {
		if room.player(sess.id) != nil {
			c.removeMember(room, sess, sess.id)
			break
		}
	}
	sess.close()
}

// leaveCurrentRoom drops any existing membership for a session before
// it creates or joins another room.
func (c *Coordinator) leaveCurrentRoom(sess *session) {
	for _, room := range c.rooms {
		if room.player(sess.id) != nil {
			c.removeMember(room, sess, sess.id)
			return
		}
	}
}

// removeMember performs leave semantics: roster removal with host
// reassignment, countdown cancellation, empty-room destruction, and
// the player-left broadcast. Idempotent.
func (c *Coordinator) removeMember(room *Room, sess *session, playerID string) {
	if sess != nil {
		delete(c.conns[room.id], sess)
	}

	removed := room.removePlayer(playerID)
	if !removed {
		return
	}
	room.touch(c.clock)

	if len(room.players) == 0 {
		c.deleteRoom(room, "empty")
		return
	}

	c.abortCountdown(room)

	c.broadcast(room, PlayerLeftMessage{
		Type:     EventPlayerLeft,
		PlayerID: playerID,
		Players:  playerStates(room.players),
	})

	logf(c.cfg, "ROOMS: Player %s left %s (%d players)", playerID, room.id, len(room.players))

	// Everyone remaining may already be ready.
	c.maybeStartCountdown(room)
}

func (c *Coordinator) deleteRoom(room *Room, reason string) {
	c.abortCountdown(room)

	for sess := range c.conns[room.id] {
		sess.close()
	}

	delete(c.rooms, room.id)
	delete(c.byCode, room.code)
	delete(c.conns, room.id)

	logf(c.cfg, "ROOMS: Deleted %s (%s)", room.id, reason)
}

// maybeStartCountdown begins a fresh countdown when the room is
// waiting, nobody is counting already, and every player is ready. At
// most one timer chain exists per room.
func (c *Coordinator) maybeStartCountdown(room *Room) {
	if room.status != StatusWaiting || room.counting || !room.allReady() {
		return
	}

	room.counting = true
	room.countdownGen++
	room.countdownValue = c.cfg.countdownFrom

	c.scheduleCountdownTick(room)
}

// abortCountdown invalidates any live or queued tick by bumping the
// generation. The next all-ready transition starts over from the top.
func (c *Coordinator) abortCountdown(room *Room) {
	if !room.counting {
		return
	}
	room.counting = false
	room.countdownGen++
}

func (c *Coordinator) scheduleCountdownTick(room *Room) {
	timer := c.clock.NewTimer(time.Second)
	tick := countdownTick{roomID: room.id, gen: room.countdownGen}

	go func() {
		<-timer.Chan()
		select {
		case c.ticks <- tick:
		default:
		}
	}()
}

func (c *Coordinator) handleCountdownTick(tick countdownTick) {
	room := c.rooms[tick.roomID]
	if room == nil || !room.counting || room.countdownGen != tick.gen {
		// Stale tick from a cancelled or superseded countdown.
		return
	}

	c.broadcast(room, CountdownMessage{
		Type:      EventCountdown,
		Countdown: room.countdownValue,
	})

	if room.countdownValue > 0 {
		room.countdownValue--
		c.scheduleCountdownTick(room)
		return
	}

	room.counting = false
	room.status = StatusPlaying
	room.touch(c.clock)

	c.broadcast(room, GameStartedMessage{Type: EventGameStarted})

	logf(c.cfg, "GAMES: Started %s with %d players", room.id, len(room.players))
}

// reapIdleRooms ends rooms whose members have gone quiet without clean
// disconnects.
func (c *Coordinator) reapIdleRooms() {
	cutoff := c.clock.Now().Add(-c.cfg.sessionTimeout)

	var idle []*Room
	for _, room := range c.rooms {
		if room.lastActive.Before(cutoff) {
			idle = append(idle, room)
		}
	}

	for _, room := range idle {
		c.deleteRoom(room, "idle")
	}
}

func (c *Coordinator) lookupRoom(roomID, roomCode string) *Room {
	if roomID != "" {
		return c.rooms[roomID]
	}
	if roomCode != "" {
		if id, ok := c.byCode[strings.ToUpper(roomCode)]; ok {
			return c.rooms[id]
		}
	}
	return nil
}

func (c *Coordinator) uniqueRoomCode() string {
	for {
		code := newRoomCode()
		if _, exists := c.byCode[code]; !exists {
			return code
		}
	}
}

func (c *Coordinator) roomJoinedMessage(room *Room, playerID string) RoomJoinedMessage {
	return RoomJoinedMessage{
		Type:     EventRoomJoined,
		RoomID:   room.id,
		RoomCode: room.code,
		PlayerID: playerID,
		Players:  playerStates(room.players),
		Image:    room.image,
		Status:   room.status,
	}
}

func (c *Coordinator) census() Stats {
	stats := Stats{Rooms: len(c.rooms)}
	for _, room := range c.rooms {
		stats.Players += len(room.players)
	}
	for _, sessions := range c.conns {
		stats.Sessions += len(sessions)
	}
	return stats
}

// broadcast fans a message out to every session joined to the room.
// Sessions with a full send buffer are treated as dead and removed
// with full leave semantics.
func (c *Coordinator) broadcast(room *Room, msg any) {
	var victims []*session
	for sess := range c.conns[room.id] {
		select {
		case sess.send <- msg:
		default:
			victims = append(victims, sess)
		}
	}

	for _, sess := range victims {
		sess.close()
		c.removeMember(room, sess, sess.id)
	}
}

func (c *Coordinator) broadcastExcept(room *Room, except *session, msg any) {
	var victims []*session
	for sess := range c.conns[room.id] {
		if sess == except {
			continue
		}
		select {
		case sess.send <- msg:
		default:
			victims = append(victims, sess)
		}
	}

	for _, sess := range victims {
		sess.close()
		c.removeMember(room, sess, sess.id)
	}
}

func (c *Coordinator) sendTo(sess *session, msg any) {
	select {
	case sess.send <- msg:
	default:
		sess.close()
	}
}
