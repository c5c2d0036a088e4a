package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/faceid/internal/web/handlers"
	"github.com/kozaktomas/faceid/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	d := s.deps

	healthHandler := handlers.NewHealthHandler(d.Store)
	enrollHandler := handlers.NewEnrollHandler(d.Enroll, d.Logger)
	authHandler := handlers.NewAuthHandler(d.Store, d.Tickets, d.Logger)
	faceAuthHandler := handlers.NewFaceAuthHandler(handlers.FaceAuthDeps{
		Store:     d.Store,
		Matcher:   d.Matcher,
		Policy:    s.policy(),
		Extractor: d.Extractor,
		Tickets:   d.Tickets,
		Levels:    s.config.Levels,
		Logger:    d.Logger,
	})
	levelsHandler := handlers.NewLevelsHandler(s.config.Levels)
	identitiesHandler := handlers.NewIdentitiesHandler(d.Store, d.Logger)

	public := func(r chi.Router) {
		r.Get("/health", healthHandler.Check)
		r.Post("/enroll", enrollHandler.Enroll)

		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(middleware.RateLimit(d.Limiter))
			}
			r.Post("/login", authHandler.Login)
		})

		r.With(middleware.LoadTicket(d.Tickets)).Post("/logout", authHandler.Logout)
		// /auth verifies its own token so failures keep the /auth body shape.
		r.Post("/auth", faceAuthHandler.Auth)
	}

	// The desktop shell calls the root paths.
	public(s.router)

	s.router.Route("/api/v1", func(r chi.Router) {
		public(r)
		r.Get("/levels", levelsHandler.List)

		// Admin routes exist only when a token is configured.
		if s.config.Auth.AdminToken != "" {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdmin(s.config.Auth.AdminToken))
				r.Get("/identities", identitiesHandler.List)
				r.Delete("/identities/{name}", identitiesHandler.Delete)
			})
		}
	})
}
