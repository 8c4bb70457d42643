// Package ws pushes job-list snapshots to connected UI clients.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mvetrova/trailcam/internal/job"
)

// snapshotMessage is the frame pushed on every job state change.
type snapshotMessage struct {
	Type string    `json:"type"`
	Jobs []job.Job `json:"jobs"`
}

type Server struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	latest []job.Job
}

func NewServer() *Server {
	return &Server{conns: make(map[*websocket.Conn]struct{})}
}

// Broadcast implements the scheduler's snapshot sink. Each call is
// independent; clients do their own debouncing.
func (s *Server) Broadcast(jobs []job.Job) {
	s.mu.Lock()
	s.latest = jobs
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	msg := snapshotMessage{Type: "jobs", Jobs: jobs}
	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := wsjson.Write(ctx, conn, msg)
		cancel()
		if err != nil {
			slog.Debug("dropping websocket client", "error", err)
			s.drop(conn)
		}
	}
}

// Handle upgrades the connection, replays the latest snapshot and holds the
// socket open until the client goes away.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // local UI shell, any dev-server origin
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	latest := s.latest
	s.mu.Unlock()
	defer s.drop(conn)

	if latest != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := wsjson.Write(ctx, conn, snapshotMessage{Type: "jobs", Jobs: latest})
		cancel()
		if err != nil {
			return
		}
	}

	// Clients never send application frames; reading just detects close.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
