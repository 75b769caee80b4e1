// Package api provides the HTTP REST API server for SectorPulse.
//
// It exposes the sector outlook endpoint, health and status probes, and
// WebSocket streaming of orchestration round progress.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sectorpulse/internal/config"
	"sectorpulse/internal/orchestrator"
	"sectorpulse/internal/report"
)

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	cfg       *config.Config
	engine    *orchestrator.Engine
	assembler *report.Assembler
	wsHub     *WSHub
}

// NewServer creates a configured API server with all routes and middleware.
// The engine's round hook is wired to the WebSocket hub so connected
// clients see loop progress live.
func NewServer(cfg *config.Config, engine *orchestrator.Engine, assembler *report.Assembler) *Server {
	srv := &Server{
		cfg:       cfg,
		engine:    engine,
		assembler: assembler,
		wsHub:     NewWSHub(),
	}

	engine.OnRound = func(ev orchestrator.RoundEvent) {
		srv.wsHub.Broadcast(WSMessage{Type: "round", Data: ev})
	}

	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // an outlook request spans several upstream calls
		IdleTimeout:  60 * time.Second,
	}

	go s.wsHub.Run()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(300 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/outlook", s.handleOutlook)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

// OutlookResponse is the payload of GET /api/v1/outlook.
type OutlookResponse struct {
	Sector         string                     `json:"sector"`
	Report         string                     `json:"report"`
	IterationsUsed int                        `json:"iterations_used"`
	Slots          *orchestrator.RequestState `json:"state"`
	ElapsedMs      int64                      `json:"elapsed_ms"`
}

func (s *Server) handleOutlook(w http.ResponseWriter, r *http.Request) {
	sector := strings.TrimSpace(r.URL.Query().Get("sector"))
	if sector == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: sector")
		return
	}

	start := time.Now()
	state, err := s.engine.Run(r.Context(), sector)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("outlook failed: %v", err))
		return
	}

	text, err := s.assembler.Assemble(r.Context(), state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("report assembly failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, OutlookResponse{
		Sector:         sector,
		Report:         text,
		IterationsUsed: state.Iterations,
		Slots:          state,
		ElapsedMs:      time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"llm_primary": s.cfg.LLM.Primary,
		"keys":        config.CheckAPIKeys(s.cfg),
		"ws_clients":  s.wsHub.ClientCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
