// Package main starts the image dashboard web server, setting up
// configuration, logging, the identity gateway, the backend proxy, the
// route guard, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/imagedash/internal/backend"
	"github.com/atinyakov/imagedash/internal/config"
	"github.com/atinyakov/imagedash/internal/identity"
	"github.com/atinyakov/imagedash/internal/logger"
	"github.com/atinyakov/imagedash/internal/middleware"
	"github.com/atinyakov/imagedash/internal/server/handler/http"
	"github.com/atinyakov/imagedash/internal/service"
	"github.com/atinyakov/imagedash/internal/web"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse config file, environment and flags.
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Outbound clients: identity provider and image backend.
	outbound := &nethttp.Client{Timeout: options.UploadTimeout.Std() + 5*time.Second}
	gateway := identity.NewGateway(identity.Config{
		BaseURL:      options.IdentityURL,
		Realm:        options.Realm,
		ClientID:     options.ClientID,
		ClientSecret: options.ClientSecret,
	}, outbound, zapLogger)
	api := backend.New(options.APIURL, backend.Options{
		HTTPClient:     outbound,
		RequestTimeout: options.RequestTimeout.Std(),
		UploadTimeout:  options.UploadTimeout.Std(),
	})

	// Initialize business-logic services.
	authService := service.NewAuthService(gateway, api)
	imageService := service.NewImageService(api)

	pages, err := web.New()
	if err != nil {
		zapLogger.Fatal("failed to parse page templates", zap.Error(err))
	}

	// Create HTTP handlers and the route guard.
	authHandler := &http.AuthHandler{AuthService: authService, Logger: zapLogger}
	imageHandler := &http.ImageHandler{ImageService: imageService, Logger: zapLogger}
	pageHandler := &http.PageHandler{
		AuthService:  authService,
		ImageService: imageService,
		Pages:        pages,
		Logger:       zapLogger,
		CookieSecure: options.CookieSecure,
	}
	guard := middleware.RouteGuard(authService, middleware.GuardOptions{
		Enforce:      options.EnforceGuard,
		SecureCookie: options.CookieSecure,
	}, zapLogger)

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, imageHandler, pageHandler, guard, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := options.TLSCert != ""
	if useTLS {
		// Load server TLS certificate and key.
		cert, err := tls.LoadX509KeyPair(options.TLSCert, options.TLSKey)
		if err != nil {
			zapLogger.Fatal("failed to load server TLS cert/key", zap.Error(err))
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLogger.Info("starting server",
			zap.String("addr", options.Addr),
			zap.Bool("tls", useTLS),
			zap.Bool("enforce_guard", options.EnforceGuard),
		)
		var err error
		if useTLS {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		zapLogger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}
