package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"nimbuschat/backend/internal/auth"
	"nimbuschat/backend/internal/billing"
	"nimbuschat/backend/internal/config"
	"nimbuschat/backend/internal/openrouter"
	"nimbuschat/backend/internal/store"
)

func NewRouter(ctx context.Context, cfg config.Config, db *sql.DB) (http.Handler, error) {
	webhooks, err := auth.NewWebhookVerifier(cfg.IdentityWebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("configure webhook verifier: %w", err)
	}

	files, err := newObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	openRouterClient := openrouter.NewClient(cfg, nil)
	h := NewHandler(
		cfg,
		db,
		store.New(db),
		auth.NewTokenParser(cfg.SessionJWTSecret),
		webhooks,
		billing.NewClient(cfg, nil),
		openRouterClient,
		openRouterClient,
		files,
	)
	return routes(cfg, h), nil
}

func routes(cfg config.Config, h Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Post("/webhooks/identity", h.IdentityWebhook)
	r.Get("/stream", h.StreamEvents)

	r.Route("/v1", func(v1 chi.Router) {
		v1.With(h.WithIdentity).Get("/auth/me", h.AuthMe)

		// Public chats stay readable without a session.
		v1.Group(func(public chi.Router) {
			public.Use(h.WithIdentity)
			public.Get("/chats/{chatID}", h.GetChat)
			public.Get("/chats/{chatID}/messages", h.ListMessages)
			public.Get("/messages/{messageID}/copy", h.CopyMessage)
			public.Get("/messages/{messageID}/files", h.ListMessageFiles)
		})

		v1.Group(func(p chi.Router) {
			p.Use(h.WithIdentity)
			p.Use(h.RequireUser)

			p.Get("/models", h.ListModels)
			p.Post("/models/sync", h.SyncModels)

			p.Patch("/users/me/preferences", h.UpdatePreferences)
			p.Patch("/users/me/appearance", h.UpdateAppearance)
			p.Put("/users/me/model", h.SelectModel)

			p.Post("/chats", h.CreateChat)
			p.Get("/chats", h.ListChats)
			p.Patch("/chats/{chatID}", h.UpdateChat)
			p.Delete("/chats/{chatID}", h.DeleteChat)
			p.Post("/chats/{chatID}/branch", h.BranchChat)
			p.Post("/chats/{chatID}/messages", h.SendMessage)

			p.Post("/messages/{messageID}/regenerate", h.RegenerateMessage)
			p.Get("/messages/search", h.SearchMessages)

			p.Post("/files", h.UploadFile)
			p.Get("/files", h.ListUserFiles)
			p.Delete("/files/{fileID}", h.DeleteFile)
		})
	})

	return r
}

func newObjectStore(ctx context.Context, cfg config.Config) (fileObjectStore, error) {
	if cfg.GCSBucket != "" {
		return newGCSAttachmentStore(ctx, cfg.GCSBucket, cfg.GCSUploadPrefix)
	}
	if cfg.LocalUploadDir != "" {
		return newLocalObjectStore(cfg.LocalUploadDir, cfg.GCSUploadPrefix)
	}
	return nil, nil
}
