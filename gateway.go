package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// session is one websocket connection. The id doubles as the player id
// for whichever room the session joins. Outbound events go through the
// buffered send channel; the coordinator closes it (once) when the
// session is dropped.
type session struct {
	id   string
	conn *websocket.Conn
	send chan any

	closeOnce sync.Once
}

func newSession(conn *websocket.Conn) *session {
	return &session{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, 32),
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

func (s *session) writePump() {
	defer s.conn.Close()

	for msg := range s.send {
		if err := s.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readPump parses inbound commands and hands them to the coordinator.
// Image fetches for create-room and play-again happen here, in this
// session's goroutine, so a slow upstream never stalls the event loop.
func (s *session) readPump(cfg *Config, coord *Coordinator) {
	defer func() {
		coord.Disconnect(s)
		s.conn.Close()
	}()

	for {
		var cmd ClientCommand
		if err := s.conn.ReadJSON(&cmd); err != nil {
			return
		}

		switch cmd.Type {
		case CmdCreateRoom, CmdPlayAgain:
			coord.Enqueue(sessionCommand{
				sess:  s,
				cmd:   cmd,
				image: fetchImage(cfg, coord.provider),
			})
		case CmdJoinRoom, CmdPlayerReady, CmdPlayerProgress, CmdPlayerComplete, CmdLeaveRoom:
			coord.Enqueue(sessionCommand{sess: s, cmd: cmd})
		default:
			// ignore unknown types
		}
	}
}

func serveWS(cfg *Config, coord *Coordinator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		sess := newSession(conn)

		logf(cfg, "SERVE: Session %s connected from %s", sess.id, realIP(r))

		go sess.writePump()
		sess.readPump(cfg, coord)
	}
}

// serveStats exposes the coordinator census as JSON.
func serveStats(cfg *Config, coord *Coordinator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()

		stats := coord.StatsSnapshot(ctx)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		securityHeaders(cfg, w)

		_ = json.NewEncoder(w).Encode(stats)
	}
}

// qrHandler generates a PNG QR code pointing at the join link for a
// room, so a phone can scan its way into the lobby.
func qrHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/?room=" + roomID

		const qrSize = 320 // mobile-friendly size
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// registerPuzzleGame sets up routes so that:
//   - /                      → HTML client
//   - /assets/puzzle/*       → shared client assets
//   - /ws                    → the session gateway websocket
//   - /room/:roomid/qr       → PNG QR code linking into the room
//   - /stats                 → coordinator census
func registerPuzzleGame(cfg *Config, mux *httprouter.Router, coord *Coordinator) {
	mux.GET(cfg.prefix+"/", getIndexHandler(cfg))

	mux.GET(cfg.prefix+"/assets/puzzle/app.css", getCssHandler(cfg))
	mux.GET(cfg.prefix+"/assets/puzzle/app.js", getJsHandler(cfg))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, coord))

	mux.GET(cfg.prefix+"/room/:roomid/qr", qrHandler(cfg))

	mux.GET(cfg.prefix+"/stats", serveStats(cfg, coord))
}
