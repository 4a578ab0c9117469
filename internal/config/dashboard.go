package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
)

// Storage kinds accepted by DashboardOptions.Storage.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
)

// DashboardOptions holds the configuration of the terminal client.
type DashboardOptions struct {
	// ServerURL is the base URL of the web server whose /api routes the
	// client talks to.
	ServerURL string `json:"server_url" yaml:"server_url"`
	// Storage selects where the session token is kept: "file" or "sqlite".
	Storage     string `json:"storage" yaml:"storage"`
	StoragePath string `json:"storage_path" yaml:"storage_path"`
	LogFile     string `json:"log_file" yaml:"log_file"`
	LogLevel    string `json:"log_level" yaml:"log_level"`
	// CACert is a PEM authority trusted in addition to the system roots,
	// for servers using a development certificate.
	CACert string `json:"ca_cert" yaml:"ca_cert"`
	Config string `json:"-" yaml:"-"`
}

// DashboardDefaults returns the default client options, keeping state
// under the user's config directory.
func DashboardDefaults() *DashboardOptions {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	dir = filepath.Join(dir, "imagedash")
	return &DashboardOptions{
		ServerURL:   "http://localhost:8080",
		Storage:     StorageFile,
		StoragePath: filepath.Join(dir, "session.json"),
		LogFile:     filepath.Join(dir, "dashboard.log"),
		LogLevel:    "info",
	}
}

func newDashboardFlagSet(o *DashboardOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("dashboard", pflag.ContinueOnError)
	fs.StringVarP(&o.ServerURL, "server", "s", o.ServerURL, "web server base URL")
	fs.StringVar(&o.Storage, "storage", o.Storage, "session storage: file or sqlite")
	fs.StringVar(&o.StoragePath, "storage-path", o.StoragePath, "session storage location")
	fs.StringVar(&o.LogFile, "log-file", o.LogFile, "log output file")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
	fs.StringVar(&o.CACert, "ca-cert", o.CACert, "extra trusted CA certificate (PEM)")
	fs.StringVarP(&o.Config, "config", "c", o.Config, "path to config file")
	return fs
}

// ParseDashboard builds the client options the same way Parse does for
// the server. SERVER_URL overrides the file.
func ParseDashboard(args []string) (*DashboardOptions, error) {
	probe := DashboardDefaults()
	if err := newDashboardFlagSet(probe).Parse(args); err != nil {
		return nil, err
	}
	path := probe.Config
	if env := os.Getenv("CONFIG"); env != "" {
		path = env
	}

	options := DashboardDefaults()
	if err := LoadFile(path, options); err != nil {
		return nil, err
	}
	options.Config = path
	if v := os.Getenv("SERVER_URL"); v != "" {
		options.ServerURL = v
	}
	if err := newDashboardFlagSet(options).Parse(args); err != nil {
		return nil, err
	}

	switch options.Storage {
	case StorageFile:
	case StorageSQLite:
		if options.StoragePath == DashboardDefaults().StoragePath {
			options.StoragePath = strings.TrimSuffix(options.StoragePath, ".json") + ".db"
		}
	default:
		return nil, errors.New("storage must be file or sqlite")
	}
	if options.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	return options, nil
}
