// Package config provides functionality for managing configuration options
// for the application using a config file, environment variables and
// command-line flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from config files as "60s" style text.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Options holds the configuration values of the web server.
type Options struct {
	// Addr defines the server's listening address (ip:port).
	Addr string `json:"addr" yaml:"addr"`

	// IdentityURL is the base URL of the identity provider.
	IdentityURL string `json:"identity_url" yaml:"identity_url"`
	Realm       string `json:"realm" yaml:"realm"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	// ClientSecret is optional; public clients leave it empty.
	ClientSecret string `json:"client_secret" yaml:"client_secret"`

	// APIURL is the base URL of the image backend.
	APIURL         string   `json:"api_url" yaml:"api_url"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	UploadTimeout  Duration `json:"upload_timeout" yaml:"upload_timeout"`

	// EnforceGuard makes the edge guard redirect page requests.
	EnforceGuard bool `json:"enforce_guard" yaml:"enforce_guard"`
	CookieSecure bool `json:"cookie_secure" yaml:"cookie_secure"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert" yaml:"tls_cert"`
	TLSKey  string `json:"tls_key" yaml:"tls_key"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	// Config is the path to the config file.
	Config string `json:"-" yaml:"-"`
}

// Defaults returns the options used when nothing else is configured.
func Defaults() *Options {
	return &Options{
		Addr:           "localhost:8080",
		Realm:          "image-ai",
		ClientID:       "image-ai-frontend",
		RequestTimeout: Duration(30 * time.Second),
		UploadTimeout:  Duration(60 * time.Second),
		EnforceGuard:   true,
		LogLevel:       "info",
		Config:         "config.json",
	}
}

func newFlagSet(name string, o *Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(&o.Addr, "address", "a", o.Addr, "run on ip:port server")
	fs.StringVar(&o.IdentityURL, "identity-url", o.IdentityURL, "identity provider base URL")
	fs.StringVar(&o.Realm, "realm", o.Realm, "identity provider realm")
	fs.StringVar(&o.ClientID, "client-id", o.ClientID, "OAuth2 client id")
	fs.StringVar(&o.ClientSecret, "client-secret", o.ClientSecret, "OAuth2 client secret")
	fs.StringVar(&o.APIURL, "api-url", o.APIURL, "image backend base URL")
	fs.DurationVar((*time.Duration)(&o.RequestTimeout), "request-timeout", o.RequestTimeout.Std(), "backend request deadline")
	fs.DurationVar((*time.Duration)(&o.UploadTimeout), "upload-timeout", o.UploadTimeout.Std(), "backend upload deadline")
	fs.BoolVar(&o.EnforceGuard, "enforce-guard", o.EnforceGuard, "redirect page requests at the edge")
	fs.BoolVar(&o.CookieSecure, "cookie-secure", o.CookieSecure, "mark the session cookie Secure")
	fs.StringVar(&o.TLSCert, "tls-cert", o.TLSCert, "TLS certificate file")
	fs.StringVar(&o.TLSKey, "tls-key", o.TLSKey, "TLS key file")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level")
	fs.StringVarP(&o.Config, "config", "c", o.Config, "path to config file")
	return fs
}

// Parse builds the options from defaults, then the config file, then the
// environment, then the command-line flags in args; each layer overrides
// the previous one.
func Parse(args []string) (*Options, error) {
	// First pass only locates the config file.
	probe := Defaults()
	if err := newFlagSet("server", probe).Parse(args); err != nil {
		return nil, err
	}
	path := probe.Config
	if env := os.Getenv("CONFIG"); env != "" {
		path = env
	}

	options := Defaults()
	if err := LoadFile(path, options); err != nil {
		return nil, err
	}
	options.Config = path
	if err := applyEnv(options); err != nil {
		return nil, err
	}
	if err := newFlagSet("server", options).Parse(args); err != nil {
		return nil, err
	}
	return options, options.Validate()
}

// LoadFile overlays the file at path onto dst. Files ending in .yaml or
// .yml are YAML; anything else is JSON that may contain comments. A
// missing file is not an error.
func LoadFile(path string, dst any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, dst)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), dst)
	}
	if err != nil {
		return fmt.Errorf("error while parsing config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(o *Options) error {
	for env, dst := range map[string]*string{
		"SERVER_ADDRESS": &o.Addr,
		"KEYCLOAK_URL":   &o.IdentityURL,
		"REALM":          &o.Realm,
		"CLIENT_ID":      &o.ClientID,
		"CLIENT_SECRET":  &o.ClientSecret,
		"API_URL":        &o.APIURL,
		"LOG_LEVEL":      &o.LogLevel,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("ENFORCE_GUARD"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENFORCE_GUARD: %w", err)
		}
		o.EnforceGuard = b
	}
	return nil
}

// Validate reports missing or inconsistent settings.
func (o *Options) Validate() error {
	var errs []error
	if o.IdentityURL == "" {
		errs = append(errs, errors.New("identity provider URL is required"))
	}
	if o.APIURL == "" {
		errs = append(errs, errors.New("backend API URL is required"))
	}
	if o.Realm == "" {
		errs = append(errs, errors.New("realm is required"))
	}
	if o.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		errs = append(errs, errors.New("tls cert and key must be set together"))
	}
	if o.UploadTimeout <= 0 || o.RequestTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	return errors.Join(errs...)
}
