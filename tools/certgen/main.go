// Package main writes a development certificate authority and a server
// certificate for the web server's --tls-cert and --tls-key flags. Pass
// the authority to the dashboard with --ca-cert.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/atinyakov/imagedash/internal/certgen"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("certgen", pflag.ContinueOnError)
	dir := fs.StringP("dir", "d", "certs", "output directory")
	hosts := fs.StringSlice("host", []string{"localhost", "127.0.0.1"}, "server host names or IP addresses")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bundle, err := certgen.Generate(*hosts, time.Now())
	if err != nil {
		return err
	}
	if err := bundle.Write(*dir); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s, %s and %s to %s\n",
		certgen.CACertFile, certgen.ServerCertFile, certgen.ServerKeyFile, filepath.Clean(*dir))
	return nil
}
