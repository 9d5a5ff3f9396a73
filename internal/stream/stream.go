// Package stream serves the AI debug telemetry side-channel over
// WebSocket. Attached viewers receive every debug packet as JSON.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendChSize = 256
	writeWait  = 10 * time.Second
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// debug tooling runs wherever the operator runs it
	CheckOrigin: func(*http.Request) bool { return true },
}

// viewer is one attached debug client with a single write goroutine.
// Slow viewers drop frames instead of backing up the broadcaster.
type viewer struct {
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
}

func (v *viewer) writeLoop() {
	defer v.conn.Close()
	for {
		select {
		case <-v.done:
			return
		case data := <-v.sendCh:
			v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Server accepts debug viewers and fans broadcast frames out to them.
type Server struct {
	logger *slog.Logger
	http   *http.Server

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// NewServer creates a debug stream server listening on addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	s := &Server{
		logger:  logger,
		viewers: make(map[*viewer]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug", s.handleViewer)
	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving viewers. Listen failures are logged, not fatal; the
// debug stream is best-effort.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("debug stream server failed", "error", err)
		}
	}()
}

// Stop disconnects all viewers and stops the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	for v := range s.viewers {
		close(v.done)
		delete(s.viewers, v)
	}
	s.mu.Unlock()
	_ = s.http.Close()
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("debug viewer upgrade failed", "error", err)
		return
	}

	v := &viewer{
		conn:   conn,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.viewers[v] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("debug viewer attached", "remote", conn.RemoteAddr().String())

	go v.writeLoop()

	// drain reads to notice disconnects
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.mu.Lock()
				if _, ok := s.viewers[v]; ok {
					close(v.done)
					delete(s.viewers, v)
				}
				s.mu.Unlock()
				return
			}
		}
	}()
}

// ViewerCount returns the number of attached viewers.
func (s *Server) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// Broadcast sends payload as JSON to every attached viewer, dropping frames for
// viewers whose send buffer is full.
func (s *Server) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("debug frame marshal failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.viewers {
		select {
		case v.sendCh <- data:
		default:
		}
	}
}
