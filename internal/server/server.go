// Package server runs the authentication listener: one goroutine accepts TCP
// connections and hands them to a fixed pool of workers, each of which serves
// exactly one framed request and response before closing the connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"g10.app/identity/internal/credential"
	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/protocol"
	"g10.app/identity/internal/stream"
)

// CredentialLookup resolves a credential digest to the user holding it.
type CredentialLookup interface {
	UserByCredential(digest credential.Digest) (directory.User, bool)
}

// Config controls the listener and its worker pool.
type Config struct {
	Addr       string
	Workers    int
	QueueDepth int
	MaxPayload uint64

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RatePerSecond of 0 disables per-client rate limiting.
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig mirrors the original deployment: port 6708, four workers, 4 KiB requests.
func DefaultConfig() Config {
	return Config{
		Addr:         ":6708",
		Workers:      4,
		QueueDepth:   64,
		MaxPayload:   protocol.MaxPayload,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		RateBurst:    10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.QueueDepth < 0 {
		c.QueueDepth = 0
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = def.MaxPayload
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.RateBurst <= 0 {
		c.RateBurst = def.RateBurst
	}
	return c
}

// Server shares one CredentialLookup across all workers.
type Server struct {
	cfg     Config
	lookup  CredentialLookup
	log     *slog.Logger
	limiter *limiter
	events  *stream.Stream

	mu   sync.Mutex
	addr net.Addr
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithEvents publishes every authentication decision to st.
func WithEvents(st *stream.Stream) Option {
	return func(s *Server) { s.events = st }
}

// New builds a Server. A nil logger uses slog.Default.
func New(cfg Config, lookup CredentialLookup, log *slog.Logger, opts ...Option) *Server {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	s := &Server{cfg: cfg, lookup: lookup, log: log}
	if cfg.RatePerSecond > 0 {
		s.limiter = newLimiter(cfg.RatePerSecond, cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the bound address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe binds cfg.Addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled, then stops accepting,
// waits for queued and in-flight connections to finish and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	// Unblock Accept when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	conns := make(chan net.Conn, s.cfg.QueueDepth)
	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for conn := range conns {
				s.handle(ctx, conn)
			}
		}()
	}

	s.log.Info("server.listen", "addr", ln.Addr().String(), "workers", s.cfg.Workers)

	err := s.acceptLoop(ctx, ln, conns)
	close(conns)
	workers.Wait()

	s.log.Info("server.stopped", "addr", ln.Addr().String())
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, conns chan<- net.Conn) error {
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			// Transient failures such as EMFILE: back off and keep serving.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.log.Error("server.accept.fail", "err", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		backoff = 0

		select {
		case conns <- conn:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}
