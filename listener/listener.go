// Package listener opens the network listener for the API: a local TCP port, or a node on a Tailscale tailnet.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"tailscale.com/tsnet"
)

// Options contains the options for Open.
type Options struct {
	// Address and port for the TCP listener; unused when Tailscale is set
	Bind string
	Port int

	// If set, listen on the tailnet instead
	Tailscale *TailscaleOptions

	Logger *slog.Logger
}

// TailscaleOptions contains the options for the tailnet node.
type TailscaleOptions struct {
	Hostname string
	// Only used on first startup, or when the node key has expired
	// If empty, tsnet reads TS_AUTHKEY or falls back to interactive login
	AuthKey   string
	Ephemeral bool
	// Directory where tsnet stores its state
	StateDir string
	// Tags advertised by the node, for ACLs
	Tags []string
	// Port on the tailnet; connections are served over TLS with a certificate provisioned by Tailscale
	Port int
	// Enables tsnet's debug logging
	Debug bool
}

// Listener is an open listener.
type Listener struct {
	net.Listener

	// True if the listener already terminates TLS
	TLS bool
	// Address clients should connect to
	URL string

	node *tsnet.Server
}

// Open opens the listener.
func Open(ctx context.Context, opts Options) (*Listener, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Tailscale != nil {
		return openTailnet(ctx, *opts.Tailscale, opts.Logger)
	}

	if opts.Port < 1 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", opts.Port)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(opts.Bind, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on TCP port: %w", err)
	}

	return &Listener{
		Listener: ln,
		URL:      "http://" + ln.Addr().String(),
	}, nil
}

func openTailnet(ctx context.Context, opts TailscaleOptions, log *slog.Logger) (*Listener, error) {
	if opts.Hostname == "" {
		return nil, errors.New("tailscale hostname is required")
	}
	if opts.Port == 0 {
		opts.Port = 443
	}

	tsLog := log.With(slog.String("scope", "tsnet"))
	node := &tsnet.Server{
		Hostname:      opts.Hostname,
		AuthKey:       opts.AuthKey,
		Dir:           opts.StateDir,
		Ephemeral:     opts.Ephemeral,
		AdvertiseTags: opts.Tags,
		UserLogf: func(format string, args ...any) {
			tsLog.Info(fmt.Sprintf(format, args...))
		},
	}
	if opts.Debug {
		node.Logf = func(format string, args ...any) {
			tsLog.Debug(fmt.Sprintf(format, args...))
		}
	}

	// Bringing the node up blocks until it's authenticated and has an address
	state, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("failed to bring up Tailscale node: %w", err)
	}

	ln, err := node.ListenTLS("tcp", ":"+strconv.Itoa(opts.Port))
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("failed to create tsnet listener: %w", err)
	}

	host := strings.TrimSuffix(state.Self.DNSName, ".")
	attrs := []any{slog.String("hostname", host)}
	for _, addr := range state.TailscaleIPs {
		if addr.IsValid() {
			attrs = append(attrs, slog.String("ip", addr.String()))
		}
	}
	log.InfoContext(ctx, "Tailscale node is up", attrs...)

	url := "https://" + host
	if opts.Port != 443 {
		url += ":" + strconv.Itoa(opts.Port)
	}
	return &Listener{
		Listener: ln,
		TLS:      true,
		URL:      url,
		node:     node,
	}, nil
}

// Close closes the listener and, for tailnet listeners, shuts down the node.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if l.node != nil {
		err = errors.Join(err, l.node.Close())
	}
	return err
}
