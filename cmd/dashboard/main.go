// Package main runs the terminal image dashboard against a running web
// server: sign in, browse, search, upload and download images.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/imagedash/internal/backend"
	"github.com/atinyakov/imagedash/internal/certgen"
	"github.com/atinyakov/imagedash/internal/client/gallery"
	"github.com/atinyakov/imagedash/internal/client/session"
	"github.com/atinyakov/imagedash/internal/client/storage"
	"github.com/atinyakov/imagedash/internal/client/tui"
	"github.com/atinyakov/imagedash/internal/config"
	"github.com/atinyakov/imagedash/internal/identity"
	"github.com/atinyakov/imagedash/internal/logger"
	"github.com/atinyakov/imagedash/internal/service"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const startupTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	options, err := config.ParseDashboard(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the dashboard needs an interactive terminal")
	}

	// The terminal belongs to the UI; logs go to a file.
	if err := os.MkdirAll(filepath.Dir(options.LogFile), 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	log := logger.New()
	if err := log.Init(options.LogLevel, options.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	tokens, closeStorage, err := openStorage(ctx, options)
	if err != nil {
		return err
	}
	defer closeStorage()

	client := &http.Client{Timeout: gallery.DefaultUploadTimeout + 5*time.Second}
	if options.CACert != "" {
		pool, err := certgen.LoadCertPool(options.CACert)
		if err != nil {
			return err
		}
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		}
	}
	api := backend.New(options.ServerURL+"/api", backend.Options{HTTPClient: client})
	auth := identity.NewRemote(options.ServerURL, client)

	store := session.New(auth, api, tokens, zapLogger)
	if err := store.Init(ctx); err != nil {
		zapLogger.Warn("stored session not restored", zap.Error(err))
	}

	proxy := service.NewImageService(api)
	images := gallery.New(proxy, store, zapLogger, gallery.Options{})
	defer images.Close()

	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	model := tui.New(store, images, proxy, tui.Options{DownloadDir: dir, Logger: zapLogger})
	defer model.Close()

	zapLogger.Info("dashboard started",
		zap.String("server", options.ServerURL),
		zap.String("storage", options.Storage),
	)
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// openStorage returns the configured token store and its release func.
func openStorage(ctx context.Context, options *config.DashboardOptions) (session.TokenStorage, func(), error) {
	if err := os.MkdirAll(filepath.Dir(options.StoragePath), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create storage directory: %w", err)
	}
	if options.Storage == config.StorageSQLite {
		db, err := storage.OpenSQLite(ctx, options.StoragePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open session database: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	}
	return storage.NewFileStorage(options.StoragePath), func() {}, nil
}
