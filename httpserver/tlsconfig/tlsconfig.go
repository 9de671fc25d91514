// Package tlsconfig builds the TLS configuration for the HTTP server.
// Certificates are read from PEM values or from a folder, and in the latter case they are reloaded when the files change.
package tlsconfig

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	fskit "github.com/moonshotcommons/timelock/fs"
	"github.com/moonshotcommons/timelock/fsnotify"
)

const (
	tlsCertFile   = "tls-cert.pem"
	tlsKeyFile    = "tls-key.pem"
	minTLSVersion = tls.VersionTLS12
)

// WatchFn starts watching the certificate folder for changes, until ctx is canceled.
type WatchFn func(ctx context.Context) error

// Load returns the TLS configuration.
// PEM-encoded values take precedence over files in path; TLS is disabled (nil config) when neither a full pair of PEM values nor both files exist.
// The returned WatchFn is non-nil only when certificates are loaded from path.
func Load(path string, certPEM string, keyPEM string) (*tls.Config, WatchFn, error) {
	if certPEM != "" && keyPEM != "" {
		cert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse TLS certificate or key: %w", err)
		}
		return &tls.Config{
			MinVersion:   minTLSVersion,
			Certificates: []tls.Certificate{cert},
		}, nil, nil
	}

	if path == "" {
		return nil, nil, nil
	}

	ok, err := pairExists(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check for TLS certificates in path: %w", err)
	}
	if !ok {
		return nil, nil, nil
	}

	p := &provider{path: path}
	err = p.reload()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load TLS certificates from path: %w", err)
	}

	cfg := &tls.Config{
		MinVersion:     minTLSVersion,
		GetCertificate: p.getCertificate,
	}
	return cfg, p.watch, nil
}

func pairExists(path string) (bool, error) {
	for _, name := range []string{tlsCertFile, tlsKeyFile} {
		exists, err := fskit.FileExists(filepath.Join(path, name))
		if err != nil || !exists {
			return false, err
		}
	}
	return true, nil
}

type provider struct {
	path string
	cert atomic.Pointer[tls.Certificate]
}

func (p *provider) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := p.cert.Load()
	if cert == nil {
		return nil, errors.New("no TLS certificate loaded")
	}
	return cert, nil
}

func (p *provider) reload() error {
	certPEM, err := os.ReadFile(filepath.Join(p.path, tlsCertFile))
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}
	keyPEM, err := os.ReadFile(filepath.Join(p.path, tlsKeyFile))
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse TLS certificate or key: %w", err)
	}

	p.cert.Store(&cert)
	return nil
}

func (p *provider) watch(ctx context.Context) error {
	changes, err := fsnotify.WatchFolder(ctx, p.path, fsnotify.WatchOpts{
		Files: []string{tlsCertFile, tlsKeyFile},
	})
	if err != nil {
		return fmt.Errorf("failed to watch TLS certificates folder: %w", err)
	}

	go func() {
		for range changes {
			// On failure, keep serving the previous certificate
			err := p.reload()
			if err != nil {
				slog.WarnContext(ctx, "Failed to reload TLS certificates", slog.String("path", p.path), slog.Any("error", err))
				continue
			}
			slog.InfoContext(ctx, "Reloaded TLS certificates", slog.String("path", p.path))
		}
	}()

	return nil
}
