package certgen

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func parseCert(t *testing.T, data []byte) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("cert PEM invalid")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return cert
}

func TestNewCA(t *testing.T) {
	now := time.Now()
	ca, _, err := NewCA("Test CA", now)
	if err != nil {
		t.Fatalf("NewCA error: %v", err)
	}
	if !ca.IsCA || !ca.BasicConstraintsValid {
		t.Error("authority must be a CA with valid basic constraints")
	}
	if ca.KeyUsage&x509.KeyUsageCertSign == 0 {
		t.Errorf("KeyUsage = %v; want CertSign", ca.KeyUsage)
	}
	if d := ca.NotAfter.Sub(ca.NotBefore); d < 9*365*24*time.Hour {
		t.Errorf("CA validity too short: %v", d)
	}
}

func TestIssueServer_SANs(t *testing.T) {
	ca, caKey, err := NewCA("Test CA", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	certPEM, keyPEM, err := IssueServer([]string{"localhost", "127.0.0.1", "dash.local"}, ca, caKey, time.Now())
	if err != nil {
		t.Fatalf("IssueServer error: %v", err)
	}

	cert := parseCert(t, certPEM)
	if cert.Subject.CommonName != "localhost" {
		t.Errorf("CommonName = %q; want localhost", cert.Subject.CommonName)
	}
	if got := strings.Join(cert.DNSNames, ","); got != "localhost,dash.local" {
		t.Errorf("DNSNames = %v", cert.DNSNames)
	}
	if len(cert.IPAddresses) != 1 || cert.IPAddresses[0].String() != "127.0.0.1" {
		t.Errorf("IPAddresses = %v", cert.IPAddresses)
	}
	if err := cert.CheckSignatureFrom(ca); err != nil {
		t.Errorf("certificate not signed by CA: %v", err)
	}
	if block, _ := pem.Decode(keyPEM); block == nil || block.Type != "EC PRIVATE KEY" {
		t.Error("key PEM invalid")
	}
}

func TestIssueServer_NoHosts(t *testing.T) {
	ca, caKey, err := NewCA("Test CA", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := IssueServer(nil, ca, caKey, time.Now()); err == nil {
		t.Error("expected an error for an empty host list")
	}
}

func TestBundle_WriteAndServe(t *testing.T) {
	bundle, err := Generate([]string{"localhost", "127.0.0.1"}, time.Now())
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "certs")
	if err := bundle.Write(dir); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ServerKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key mode = %o; want 600", perm)
	}

	pair, err := tls.LoadX509KeyPair(filepath.Join(dir, ServerCertFile), filepath.Join(dir, ServerKeyFile))
	if err != nil {
		t.Fatalf("load key pair: %v", err)
	}
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{pair}}
	srv.StartTLS()
	defer srv.Close()

	pool, err := LoadCertPool(filepath.Join(dir, CACertFile))
	if err != nil {
		t.Fatalf("LoadCertPool error: %v", err)
	}
	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("TLS request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", resp.StatusCode)
	}
}

func TestLoadCertPool_Errors(t *testing.T) {
	if _, err := LoadCertPool("/no/such/ca.crt"); err == nil || !strings.Contains(err.Error(), "read ca cert") {
		t.Errorf("got %v; want error about reading ca cert", err)
	}

	path := filepath.Join(t.TempDir(), "bad.crt")
	if err := os.WriteFile(path, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCertPool(path); err == nil || !strings.Contains(err.Error(), "no certificates") {
		t.Errorf("got %v; want error about missing certificates", err)
	}
}
