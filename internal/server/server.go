// Package server exposes the REST API and WebSocket push endpoint.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"solana-wallet-watch/internal/fanout"
	"solana-wallet-watch/internal/history"
	"solana-wallet-watch/internal/ledger"
	"solana-wallet-watch/internal/observability"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the client.
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait.
	pingPeriod = 30 * time.Second
)

// Server wires the query and push services onto HTTP routes.
type Server struct {
	registry    *ledger.Registry
	query       *history.Service
	broadcaster *fanout.Broadcaster
	logger      *log.Logger
	upgrader    websocket.Upgrader
}

// Options configures a Server.
type Options struct {
	Registry    *ledger.Registry
	Query       *history.Service
	Broadcaster *fanout.Broadcaster
	Logger      *log.Logger
}

// New creates an HTTP server over the given services.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		registry:    opts.Registry,
		query:       opts.Query,
		broadcaster: opts.Broadcaster,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Dashboard clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/wallets", s.handleWallets).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{address}", s.handleWallet).Methods(http.MethodGet)
	api.HandleFunc("/chart", s.handleChart).Methods(http.MethodGet)

	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleWallets returns the current summary of every tracked wallet.
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Summaries())
}

// handleWallet returns one wallet's summary.
func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	acct, ok := s.registry.Get(address)
	if !ok {
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	}
	writeJSON(w, http.StatusOK, acct.Summary())
}

// handleChart returns a time series for one wallet. Query parameters:
// wallet (required), data_type (native|wrapped|total, default total),
// interval (5M..1W or ALL, default ALL).
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wallet := q.Get("wallet")
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "wallet parameter is required")
		return
	}

	points, err := s.query.Range(wallet, q.Get("data_type"), q.Get("interval"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	case errors.Is(err, history.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "unknown interval")
		return
	case err != nil:
		s.logger.Printf("chart query %s: %v", wallet, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// handleWebSocket upgrades the connection and streams balance snapshots
// until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	frames, cancel := s.broadcaster.Subscribe()
	defer cancel()

	s.logger.Printf("ws client connected: %s", r.RemoteAddr)

	// Reader exists only to service pongs and detect the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.logger.Printf("ws client disconnected: %s", r.RemoteAddr)
			return

		case frame, ok := <-frames:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Printf("ws write %s: %v", r.RemoteAddr, err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
