package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/datanooblol/leonidas/internal/api/handlers"
	middleware "github.com/datanooblol/leonidas/internal/api/middlewares"
	"github.com/datanooblol/leonidas/internal/config"
)

// Services are the use cases the HTTP surface exposes.
type Services struct {
	Users    handlers.Accounts
	Projects handlers.Projects
	Sessions handlers.Sessions
	Files    handlers.Files
	Chat     handlers.Chat
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, log *logrus.Logger, svc Services) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, log, svc),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func NewRouter(cfg *config.Config, log *logrus.Logger, svc Services) http.Handler {
	authHandler := handlers.NewAuthHandler(svc.Users, cfg.JWTSecret, log)
	projectHandler := handlers.NewProjectHandler(svc.Projects, log)
	sessionHandler := handlers.NewSessionHandler(svc.Sessions, log)
	fileHandler := handlers.NewFileHandler(svc.Files, log)
	chatHandler := handlers.NewChatHandler(svc.Chat, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)
		api.Get("/chat/available-models", chatHandler.AvailableModels)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.JWTMiddleware([]byte(cfg.JWTSecret)))
			protected.Get("/me", authHandler.Me)

			protected.Route("/projects", func(p chi.Router) {
				p.Post("/", projectHandler.Create)
				p.Get("/", projectHandler.List)
				p.Route("/{project_id}", func(p chi.Router) {
					p.Get("/", projectHandler.Get)
					p.Patch("/", projectHandler.Update)
					p.Delete("/", projectHandler.Delete)

					p.Post("/sessions", sessionHandler.Create)
					p.Get("/sessions", sessionHandler.List)

					p.Post("/files/upload-url", fileHandler.CreateUploadURL)
					p.Post("/files", fileHandler.Upload)
					p.Get("/files", fileHandler.List)
					p.Get("/files/selected", fileHandler.Selected)
				})
			})

			protected.Route("/sessions/{session_id}", func(s chi.Router) {
				s.Get("/", sessionHandler.Get)
				s.Patch("/", sessionHandler.Rename)
				s.Delete("/", sessionHandler.Delete)
			})

			protected.Route("/files/{file_id}", func(f chi.Router) {
				f.Get("/", fileHandler.Get)
				f.Delete("/", fileHandler.Delete)
				f.Post("/confirm", fileHandler.Confirm)
				f.Patch("/metadata", fileHandler.UpdateMetadata)
				f.Patch("/selection", fileHandler.SetSelection)
				f.Get("/download-url", fileHandler.DownloadURL)
			})

			protected.Post("/chat/sessions/{session_id}/messages", chatHandler.SendMessage)
			protected.Get("/chat/sessions/{session_id}/history", chatHandler.History)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
