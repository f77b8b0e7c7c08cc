// Package statusapi exposes the monitor's reporting status over HTTP and a
// websocket stream, and accepts uploader configuration documents.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/gridwatch/energy-monitor/internal/pvoutput"
)

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// StatusSource produces the uploader status snapshot.
type StatusSource interface {
	Status() pvoutput.Status
}

// ConfigSink accepts uploader configuration documents.
type ConfigSink interface {
	SetConfig(pvoutput.Config) error
}

// Server is the HTTP/websocket status port.
type Server struct {
	addr   string
	source StatusSource
	sink   ConfigSink

	pushInterval time.Duration
	upgrader     websocket.Upgrader
	httpServer   *http.Server
	wg           sync.WaitGroup
}

// New creates a server listening on addr.
func New(addr string, source StatusSource, sink ConfigSink) *Server {
	s := &Server{
		addr:         addr,
		source:       source,
		sink:         sink,
		pushInterval: 5 * time.Second,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/ws", s.handleWS)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler returns the route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("statusapi: server failed: %v", err)
		}
	}()
	log.Infof("statusapi: listening on %s", s.addr)
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Status()); err != nil {
		log.Errorf("statusapi: encode status: %v", err)
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cfg pvoutput.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("bad config document: %v", err), http.StatusBadRequest)
		return
	}
	if err := s.sink.SetConfig(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("statusapi: websocket upgrade failed: %v", err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()
		s.pushLoop(conn)
	}()
}

// pushLoop streams status snapshots until the client goes away.
func (s *Server) pushLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for {
		payload, err := json.Marshal(s.source.Status())
		if err != nil {
			log.Errorf("statusapi: marshal status: %v", err)
			return
		}
		msg := &Message{
			Type:      "status",
			ID:        uuid.New().String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Payload:   payload,
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
		<-ticker.C
	}
}
