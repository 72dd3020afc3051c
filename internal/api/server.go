// Package api serves the window list and the live domain event stream to an
// external picker over HTTP and websockets.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/SharePicker/internal/catalog"
	"github.com/bryanchriswhite/SharePicker/internal/logger"
	"github.com/bryanchriswhite/SharePicker/internal/output"
)

// DropCounter reports how many events were dropped before reaching the feed.
// *event.Bridge implements it.
type DropCounter interface {
	Dropped() int
}

// Stats is the body of /api/stats
type Stats struct {
	Windows     int `json:"windows"`
	Thumbnails  int `json:"thumbnails"`
	Dropped     int `json:"dropped"`
	Subscribers int `json:"subscribers"`
}

// Server represents the HTTP API server
type Server struct {
	router    *mux.Router
	catalog   *catalog.Catalog
	feed      *Feed
	drops     DropCounter
	maxWidth  int
	maxHeight int
	upgrader  websocket.Upgrader
}

// NewServer creates a new API server. drops may be nil.
func NewServer(cat *catalog.Catalog, feed *Feed, drops DropCounter, maxWidth, maxHeight int) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		catalog:   cat,
		feed:      feed,
		drops:     drops,
		maxWidth:  maxWidth,
		maxHeight: maxHeight,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the picker may be served from anywhere on localhost
			},
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/{id:[0-9]+}/thumbnail.png", s.handleGetThumbnail).Methods("GET")
	api.HandleFunc("/sheet.png", s.handleGetSheet).Methods("GET")
	api.HandleFunc("/events", s.handleEvents)

	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in the CORS middleware
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logger.WithComponent("api").Info().
		Int("port", port).
		Msgf("Starting server on http://localhost:%d", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on port %d: %w", port, err)
	}
	return nil
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HTTP Handlers

type windowJSON struct {
	catalog.Entry
	HasThumbnail bool `json:"has_thumbnail"`
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog.Snapshot()
	out := make([]windowJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, windowJSON{Entry: e, HasThumbnail: e.HasThumbnail()})
	}

	writeJSON(w, out)
}

func (s *Server) handleGetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 32)
	if err != nil {
		http.Error(w, "invalid window id", http.StatusBadRequest)
		return
	}

	e, ok := s.catalog.Get(uint32(id))
	if !ok || !e.HasThumbnail() {
		http.Error(w, "No thumbnail for window", http.StatusNotFound)
		return
	}

	data, err := output.ThumbnailPNG(e, s.maxWidth, s.maxHeight)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	columns := 4
	if v := r.URL.Query().Get("columns"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid columns", http.StatusBadRequest)
			return
		}
		columns = n
	}

	data, err := output.EncodePNG(output.Sheet(s.catalog.Snapshot(), s.maxWidth, s.maxHeight, columns))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates, replay := s.feed.Join()
	defer s.feed.Unsubscribe(updates)

	for _, msg := range replay {
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case msg, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "feed ended"))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		}
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	entries := s.catalog.Snapshot()
	stats := Stats{
		Windows:     len(entries),
		Subscribers: s.feed.Subscribers(),
	}
	for _, e := range entries {
		if e.HasThumbnail() {
			stats.Thumbnails++
		}
	}
	if s.drops != nil {
		stats.Dropped = s.drops.Dropped()
	}

	writeJSON(w, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
