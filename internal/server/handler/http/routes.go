package http

import (
	"net/http"

	"github.com/atinyakov/imagedash/internal/middleware"
	"github.com/atinyakov/imagedash/internal/web"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter constructs and returns the HTTP handler of the dashboard.
//
// Routes:
//
//	POST /api/auth/token  → authHandler.Token
//	GET  /api/me          → authHandler.Me          (bearer required)
//	GET  /api/images      → imageHandler.List       (bearer required)
//	GET  /api/search      → imageHandler.Search     (bearer required)
//	POST /api/upload      → imageHandler.Upload     (bearer required)
//	GET  /api/image/{hash}→ imageHandler.Get        (bearer or cookie, optional)
//	GET  /login, POST /login, GET /, POST /upload → pageHandler (route guard)
//	POST /logout          → pageHandler.Logout
//	GET  /healthz, GET /static/*
//
// Middleware chain (applied in order):
//  1. RequestID: tags each request for the logs
//  2. WithRequestLogging: logs each request and its outcome
//  3. Recoverer: turns handler panics into 500s
func NewRouter(
	authHandler *AuthHandler,
	imageHandler *ImageHandler,
	pageHandler *PageHandler,
	guard func(http.Handler) http.Handler,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Handle("/static/*", web.Static())

	r.Route("/api", func(r chi.Router) {
		r.Use(gzip)

		r.With(chiMiddleware.AllowContentType("application/json")).Post("/auth/token", authHandler.Token)
		r.With(middleware.OptionalBearer).Get("/image/{hash}", imageHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBearer)
			r.Get("/me", authHandler.Me)
			r.Get("/images", imageHandler.List)
			r.Get("/search", imageHandler.Search)
			r.Post("/upload", imageHandler.Upload)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Get("/", pageHandler.Gallery)
		r.Get("/login", pageHandler.LoginForm)
		r.Post("/login", pageHandler.Login)
		r.Post("/upload", pageHandler.Upload)
	})
	r.Post("/logout", pageHandler.Logout)

	return r
}

func gzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
