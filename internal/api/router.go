package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/nodes", s.handleListTop)
		r.Get("/nodes/*", s.handleGetNode)

		r.Get("/tree", s.handleTree)
		r.Get("/tree/*", s.handleTree)

		r.Get("/history/{id}", s.handleNodeHistory)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server and bridge health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
		"nodes":   s.registry.GetStats(),
	}

	if s.bridge != nil {
		resp["controller"] = map[string]any{
			"id":        s.bridge.ID(),
			"connected": s.bridge.IsConnected(),
		}
		resp["statistics"] = s.bridge.Stats()
		if !s.bridge.IsConnected() {
			resp["status"] = "degraded"
		}
	}

	if s.hub != nil {
		resp["websocket_clients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, resp)
}
