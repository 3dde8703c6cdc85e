// Package server provides the importable reference peer server used by the
// interop harness. Tests start it on a random port; cmd/peer-server runs it
// on a fixed one.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds server configuration options.
type Config struct {
	Addr         string        // Listen address (e.g., ":8080" or ":0" for random port)
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout

	// PLIInterval is how often keyframes are requested on received video.
	// Zero disables keyframe requests.
	PLIInterval time.Duration

	// IncludeLoopback gathers ICE candidates on loopback interfaces, for
	// browsers running on the same host.
	IncludeLoopback bool

	Logger zerolog.Logger
}

// DefaultConfig returns a configuration suitable for testing.
// Uses ":0" to bind to a random available port.
func DefaultConfig() Config {
	return Config{
		Addr:            ":0",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		PLIInterval:     time.Second,
		IncludeLoopback: true,
		Logger:          zerolog.Nop(),
	}
}

// Server is the peer server: an HTTP signaling endpoint backed by pion
// peer connections, plus the test page.
type Server struct {
	httpServer *http.Server
	peers      *peerRegistry
	log        zerolog.Logger
	listener   net.Listener
	addr       string
	mu         sync.Mutex
	running    bool
}

// NewServer creates a new server with the given configuration.
// The server is not started until Start() is called.
func NewServer(cfg Config) (*Server, error) {
	if cfg.PLIInterval < 0 {
		return nil, fmt.Errorf("negative PLI interval %s", cfg.PLIInterval)
	}

	s := &Server{
		peers: newPeerRegistry(),
		log:   cfg.Logger,
	}
	h := &handler{
		peers:           s.peers,
		log:             cfg.Logger,
		pliInterval:     cfg.PLIInterval,
		includeLoopback: cfg.IncludeLoopback,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handlePage)
	mux.HandleFunc("/status", h.handleStatus)
	mux.HandleFunc("/reset", h.handleReset)
	mux.HandleFunc("/offer", h.handleOffer)
	mux.HandleFunc("/start", h.handleStart)
	mux.HandleFunc("/answer", h.handleAnswer)
	mux.HandleFunc("/stats", h.handleStats)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests.
// Returns the actual address the server is listening on (useful when port is 0).
// This method is non-blocking - the server runs in a goroutine.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = ln
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("serve failed")
		}
	}()

	return s.addr, nil
}

// Shutdown gracefully shuts down the server and closes every peer
// connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	s.peers.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the address the server is listening on.
// Returns empty string if server is not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Peers returns the number of live peer connections.
func (s *Server) Peers() int {
	return s.peers.count()
}
