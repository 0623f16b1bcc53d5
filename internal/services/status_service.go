package services

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/benmeehan/trailsafe/internal/session"
)

const streamWriteTimeout = 5 * time.Second

// StatusService serves live session snapshots over HTTP.
//
//	GET /health
//	GET /sessions
//	GET /sessions/{id}
//	GET /sessions/{id}/stream   (WebSocket, one JSON snapshot per message)
type StatusService struct {
	listenAddr string
	manager    *session.Manager
	logger     zerolog.Logger
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	running  bool
}

func NewStatusService(listenAddr string, manager *session.Manager, logger zerolog.Logger) *StatusService {
	return &StatusService{
		listenAddr: listenAddr,
		manager:    manager,
		logger:     logger.With().Str("service", "status").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP routes.
func (s *StatusService) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.manager.Count()})
	}).Methods("GET")
	r.HandleFunc("/sessions", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.manager.Snapshots())
	}).Methods("GET")
	r.HandleFunc("/sessions/{id}", s.getSession).Methods("GET")
	r.HandleFunc("/sessions/{id}/stream", s.streamSession).Methods("GET")
	return r
}

// Addr returns the bound address once started.
func (s *StatusService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *StatusService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn().Msg("StatusService is already running")
		return errors.New("status service is already running")
	}

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Status server stopped")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("StatusService started")
	return nil
}

func (s *StatusService) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn().Msg("StatusService is not running")
		return errors.New("status service is not running")
	}
	s.running = false
	server := s.server
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := server.Shutdown(ctx)
	// Hijacked stream connections are not tracked by Shutdown.
	_ = server.Close()
	s.wg.Wait()

	s.logger.Info().Msg("StatusService stopped")
	return err
}

func (s *StatusService) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *StatusService) streamSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, ok := s.manager.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	subID, updates := sess.Subscribe(0)
	defer sess.Unsubscribe(subID)

	// The reader only watches for the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeSnapshot(conn, sess.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-gone:
			return
		case snap, ok := <-updates:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := writeSnapshot(conn, snap); err != nil {
				s.logger.Debug().Err(err).Str("device_id", id).Msg("Stream write failed")
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
