// Package main provides the CLI entry point for socks5d, a demo SOCKS5
// server host built on the socks5 package.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	socks5 "github.com/sagansky/socks5"
	"github.com/sagansky/socks5/internal/certutil"
	"github.com/sagansky/socks5/internal/config"
	"github.com/sagansky/socks5/internal/logging"
	"github.com/sagansky/socks5/internal/metrics"
	"github.com/sagansky/socks5/internal/ratelimit"
	"github.com/sagansky/socks5/internal/recovery"
	"github.com/sagansky/socks5/transport"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "socks5d",
		Short:   "socks5d - a demo SOCKS5 server",
		Version: Version,
	}
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var quicAddr string
	var wsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SOCKS5 server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServer(cmd.Context(), cfg, altListeners{quicAddr: quicAddr, wsAddr: wsAddr})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	cmd.Flags().StringVar(&quicAddr, "quic", "", "also accept SOCKS5-over-QUIC on this address, using a self-signed cert")
	cmd.Flags().StringVar(&wsAddr, "ws", "", "also accept SOCKS5-over-WebSocket HTTP on this address")
	return cmd
}

// altListeners names the optional non-TCP listeners serve can stand up
// alongside the primary TCP accept loop, each carrying the same SOCKS5
// negotiation over a different Transport implementation.
type altListeners struct {
	quicAddr string
	wsAddr   string
}

func runServer(ctx context.Context, cfg *config.Config, alt altListeners) error {
	logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	var obs metrics.Observer = metrics.NopObserver{}
	if cfg.Metrics.Enabled {
		m := metrics.NewMetrics()
		obs = m
		go serveMetrics(cfg.Metrics.Address, logger)
	}

	auth, err := buildAuthenticator(cfg.Auth)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.Listen.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen.Address, err)
	}
	defer listener.Close()
	logger.Info("listening", logging.KeyLocalAddr, listener.Addr().String())

	h := &host{
		auth:     auth,
		logger:   logger,
		obs:      obs,
		accepter: ratelimit.NewAccepter(cfg.Limits.AcceptsPerSec, cfg.Limits.AcceptBurst),
		udp:      cfg.UDP,
		sem:      make(chan struct{}, maxConnSlots(cfg.Limits.MaxConnections)),
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	if alt.quicAddr != "" {
		quicListener, err := startQUICListener(ctx, alt.quicAddr, h)
		if err != nil {
			return fmt.Errorf("start quic listener: %w", err)
		}
		defer quicListener.Close()
	}
	if alt.wsAddr != "" {
		go serveWS(alt.wsAddr, h)
	}

	return h.acceptLoop(ctx, listener)
}

// startQUICListener generates an in-memory self-signed certificate (socks5d
// has no certificate-provisioning story of its own) and accepts SOCKS5
// negotiations over QUIC streams alongside the primary TCP listener.
func startQUICListener(ctx context.Context, addr string, h *host) (*transport.QUICListener, error) {
	cert, err := certutil.GenerateServerCert(certutil.DefaultServerCertOptions("socks5d"))
	if err != nil {
		return nil, fmt.Errorf("generate server cert: %w", err)
	}
	tlsCert, err := cert.TLSCertificate()
	if err != nil {
		return nil, fmt.Errorf("build tls certificate: %w", err)
	}

	ln, err := transport.ListenQUIC(addr, &tls.Config{Certificates: []tls.Certificate{tlsCert}})
	if err != nil {
		return nil, err
	}
	h.logger.Info("quic listening", logging.KeyLocalAddr, ln.Addr().String())

	go func() {
		for {
			t, err := ln.Accept(ctx)
			if err != nil {
				return
			}
			h.obs.ConnectionAccepted()
			go func() {
				defer h.obs.ConnectionClosed()
				h.handleTransport(ctx, t)
			}()
		}
	}()
	return ln, nil
}

func serveWS(addr string, h *host) {
	mux := http.NewServeMux()
	mux.HandleFunc("/socks5", func(w http.ResponseWriter, r *http.Request) {
		t, err := transport.AcceptWS(w, r)
		if err != nil {
			return
		}
		h.obs.ConnectionAccepted()
		defer h.obs.ConnectionClosed()
		h.handleTransport(r.Context(), t)
	})
	h.logger.Info("websocket listening", logging.KeyLocalAddr, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		h.logger.Error("websocket server stopped", logging.KeyError, err.Error())
	}
}

func maxConnSlots(n int) int {
	if n <= 0 {
		return 1 << 20 // effectively unbounded
	}
	return n
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	logger.Info("metrics listening", logging.KeyLocalAddr, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", logging.KeyError, err.Error())
	}
}

func buildAuthenticator(cfg config.AuthConfig) (socks5.Authenticator, error) {
	switch cfg.Mode {
	case "none", "":
		return socks5.NoAuth{}, nil
	case "password":
		store := socks5.StaticCredentials{}
		hashed := socks5.HashedCredentials{}
		useHashed := false
		for _, u := range cfg.Users {
			if u.PasswordHash != "" {
				hashed[u.Username] = u.PasswordHash
				useHashed = true
				continue
			}
			store[u.Username] = u.Password
		}
		if useHashed {
			for u, p := range store {
				hash, err := socks5.HashPassword(p)
				if err != nil {
					return nil, fmt.Errorf("hash password for %s: %w", u, err)
				}
				hashed[u] = hash
			}
			return socks5.PasswordAuth{Credentials: hashed}, nil
		}
		return socks5.PasswordAuth{Credentials: store}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

// host wires the socks5 package's typestate negotiation to a real TCP
// listener, a dialer, and the ambient logging/metrics/rate-limiting stack.
// It is the "external collaborator" the core spec deliberately excludes.
type host struct {
	auth     socks5.Authenticator
	logger   *slog.Logger
	obs      metrics.Observer
	accepter *ratelimit.Accepter
	udp      config.UDPConfig

	sem chan struct{}
}

func (h *host) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		if err := h.accepter.Wait(ctx); err != nil {
			return err
		}

		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		select {
		case h.sem <- struct{}{}:
		default:
			conn.Close()
			continue
		}

		h.obs.ConnectionAccepted()
		go func() {
			defer func() { <-h.sem }()
			defer h.obs.ConnectionClosed()
			defer recovery.RecoverWithLog(h.logger, "handleTransport")
			h.handleTransport(ctx, conn)
		}()
	}
}

// handleTransport drives one SOCKS5 negotiation to completion over any
// Transport - a plain TCP net.Conn, a QUIC stream, or a WebSocket - since
// the negotiation itself never depends on the underlying carrier.
func (h *host) handleTransport(ctx context.Context, t socks5.Transport) {
	defer t.Close()
	logger := h.logger
	if addr := t.RemoteAddr(); addr != nil {
		logger = logger.With(logging.KeyRemoteAddr, addr.String())
	}

	in := socks5.NewIncoming(t)
	authed, err := in.Authenticate(ctx, h.auth)
	if err != nil {
		var negErr *socks5.NegotiationError
		if errors.As(err, &negErr) {
			h.obs.AuthOutcome(h.auth.Method().String(), false)
			logger.Warn("negotiation failed", logging.KeyError, negErr.Err.Error())
		}
		return
	}

	// The sub-negotiation completed; the driver doesn't interpret Identity,
	// so whether to proceed is this host's call.
	if pw, ok := authed.Identity.(socks5.PasswordIdentity); ok && !pw.Authenticated {
		h.obs.AuthOutcome(h.auth.Method().String(), false)
		logger.Warn("credentials rejected", logging.KeyUser, pw.Username)
		return
	}
	h.obs.AuthOutcome(h.auth.Method().String(), true)

	result, err := authed.Wait(ctx)
	if err != nil {
		logger.Warn("request decode failed", logging.KeyError, err.Error())
		return
	}
	h.obs.CommandHandled(result.Command.String())

	switch result.Command {
	case socks5.CommandConnect:
		h.handleConnect(ctx, logger, result.Connect)
	case socks5.CommandAssociate:
		h.handleAssociate(ctx, logger, result.Associate)
	case socks5.CommandBind:
		// BIND requires a reverse listener the demo host doesn't set up;
		// reply CommandNotSupported rather than half-implementing it.
		result.Bind.Reply(socks5.ReplyCommandNotSupported, socks5.UnspecifiedIPv4())
	}
}

func (h *host) handleConnect(ctx context.Context, logger *slog.Logger, stage *socks5.ConnectNeedReply) {
	start := time.Now()
	dialer := socks5.NewNetDialer(&net.Dialer{Timeout: 10 * time.Second})
	upstream, dialErr := dialer.Dial("tcp", stage.Address.String())

	rep := socks5.ReplyForError(dialErr)
	bound := socks5.UnspecifiedIPv4()
	if dialErr == nil {
		bound = socks5.NewIPAddress(upstream.LocalAddr().(*net.TCPAddr).IP, uint16(upstream.LocalAddr().(*net.TCPAddr).Port))
	}

	ready, replyErr := stage.Reply(rep, bound)
	if dialErr != nil {
		logger.Warn("connect failed", logging.KeyError, dialErr.Error())
		return
	}
	if replyErr != nil {
		upstream.Close()
		logger.Warn("reply failed", logging.KeyError, replyErr.Error())
		return
	}
	defer upstream.Close()

	h.obs.ConnectLatency(time.Since(start).Seconds())
	h.relay(ready.Transport(), upstream)
}

func (h *host) relay(client socks5.Transport, upstream net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer recovery.RecoverWithLog(h.logger, "relay-up")
		n, _ := io.Copy(upstream, client)
		h.obs.BytesRelayed("up", int(n))
		if tc, ok := upstream.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		defer recovery.RecoverWithLog(h.logger, "relay-down")
		n, _ := io.Copy(client, upstream)
		h.obs.BytesRelayed("down", int(n))
	}()

	wg.Wait()
}

func (h *host) handleAssociate(ctx context.Context, logger *slog.Logger, stage *socks5.AssociateNeedReply) {
	if !h.udp.Enabled {
		stage.Reply(socks5.ReplyCommandNotSupported, socks5.UnspecifiedIPv4())
		return
	}

	packetConn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		stage.Reply(socks5.ReplyGeneralFailure, socks5.UnspecifiedIPv4())
		return
	}
	defer packetConn.Close()

	relay := socks5.NewRelay(packetConn)
	if h.udp.MaxDatagramSize > 0 {
		relay.SetMaxPacketSize(h.udp.MaxDatagramSize)
	}

	localAddr := packetConn.LocalAddr().(*net.UDPAddr)
	ready, err := stage.Reply(socks5.ReplySucceeded, socks5.NewIPAddress(localAddr.IP, uint16(localAddr.Port)))
	if err != nil {
		logger.Warn("associate reply failed", logging.KeyError, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.udp.IdleTimeout)
	defer cancel()
	go h.pumpUDP(relay)

	if err := ready.WaitUntilClosed(ctx); err != nil {
		logger.Debug("associate control connection closed", logging.KeyError, err.Error())
	}
}

// pumpUDP relays datagrams between the client and whatever destinations it
// asks for, until the relay's socket is closed by handleAssociate's defer.
func (h *host) pumpUDP(relay *socks5.Relay) {
	for {
		dg, from, raw, err := relay.Recv()
		if err != nil {
			if raw == nil {
				// The underlying socket itself failed (closed, etc.) -
				// nothing more will ever arrive on it.
				return
			}
			// A malformed datagram's header failed to parse; the socket is
			// still good, so keep relaying for the rest of the session.
			h.obs.RelayError("udp_header_parse")
			continue
		}

		dest := net.UDPAddr{IP: dg.Header.Address.IP, Port: int(dg.Header.Address.Port)}
		upstream, err := net.DialUDP("udp4", nil, &dest)
		if err != nil {
			h.obs.RelayError("udp_dial")
			continue
		}
		upstream.Write(dg.Payload)
		h.obs.BytesRelayed("up", len(dg.Payload))

		reply := make([]byte, 65535)
		upstream.SetReadDeadline(time.Now().Add(5 * time.Second))
		n, _, err := upstream.ReadFromUDP(reply)
		upstream.Close()
		if err != nil {
			continue
		}

		if sent, err := relay.Send(from, dg.Header.Address, reply[:n]); err == nil {
			h.obs.BytesRelayed("down", sent)
		}
	}
}
