package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-registry/internal/ingest"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/web/handlers"
	"github.com/kozaktomas/face-registry/internal/web/middleware"
)

func (s *Server) setupRoutes(reg *registry.Registry, orch *ingest.Orchestrator) {
	// Create handlers
	ingestHandler := handlers.NewIngestHandler(s.config, orch)
	personsHandler := handlers.NewPersonsHandler(reg)
	facesHandler := handlers.NewFacesHandler(reg)
	mergeHandler := handlers.NewMergeHandler(orch)
	groupsHandler := handlers.NewGroupsHandler(orch)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Ingestion
		r.Post("/groups/{groupID}/faces", ingestHandler.Ingest)

		// Persons
		r.Get("/groups/{groupID}/persons", personsHandler.List)
		r.Post("/groups/{groupID}/persons", personsHandler.Register)

		// Faces
		r.Get("/groups/{groupID}/persons/{personID}/faces", facesHandler.List)
		r.Get("/groups/{groupID}/persons/{personID}/faces/latest", facesHandler.Latest)

		// Merge
		r.Post("/groups/{groupID}/merge", mergeHandler.Merge)

		// Groups
		r.Delete("/groups/{groupID}", groupsHandler.Delete)
	})
}
