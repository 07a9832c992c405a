package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"g10.app/identity/internal/config"
	"g10.app/identity/internal/directory"
	"g10.app/identity/internal/httpapi"
	"g10.app/identity/internal/obs"
	"g10.app/identity/internal/seed"
	"g10.app/identity/internal/server"
	"g10.app/identity/internal/store/pg"
	"g10.app/identity/internal/stream"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "identityd: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (config.Config, error) {
	cfg := config.Load()

	fs := pflag.NewFlagSet("identityd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "authentication listener address")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "connection worker goroutines")
	fs.IntVar(&cfg.QueueDepth, "queue-depth", cfg.QueueDepth, "accepted connections buffered ahead of the workers")
	fs.Uint64Var(&cfg.MaxPayload, "max-payload", cfg.MaxPayload, "largest accepted request payload in bytes")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "per-connection read deadline")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-connection write deadline")
	fs.Float64Var(&cfg.RatePerSecond, "rate", cfg.RatePerSecond, "connections per second per client IP (0 disables)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "rate limiter burst per client IP")
	fs.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "admin HTTP address (empty disables)")
	fs.StringVarP(&cfg.SeedFile, "seed", "s", cfg.SeedFile, "seed document (.json, .jsonc, .yaml)")
	fs.StringVar(&cfg.PGDSN, "pg-dsn", cfg.PGDSN, "Postgres DSN to load the directory from")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	log := obs.NewLogger(stdout, cfg.LogLevel)
	slog.SetDefault(log)
	obs.Init()
	revision := obs.InitBuildInfo(version, commit)

	dir, err := populate(ctx, cfg, log)
	if err != nil {
		return err
	}
	for kind, n := range dir.Counts() {
		obs.SetDirectorySize(string(kind), n)
	}

	var (
		api     *httpapi.API
		srvOpts []server.Option
	)
	if cfg.AdminAddr != "" {
		events := stream.New(64)
		obs.ObserveEvents(events)
		api = httpapi.New(dir, log, version, httpapi.WithEvents(events))
		srvOpts = append(srvOpts, server.WithEvents(events))
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	srv := server.New(server.Config{
		Addr:          cfg.Addr,
		Workers:       cfg.Workers,
		QueueDepth:    cfg.QueueDepth,
		MaxPayload:    cfg.MaxPayload,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
		RatePerSecond: cfg.RatePerSecond,
		RateBurst:     cfg.RateBurst,
	}, dir, log, srvOpts...)

	log.Info("identityd.start", "version", version, "revision", revision, "addr", ln.Addr().String(), "admin_addr", cfg.AdminAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx, ln) })

	if api != nil {
		admin := &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           api.Handler(),
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			// Shutdown does not cancel running handlers; event subscribers end with gctx.
			BaseContext: func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin listen: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
		api.SetReady(true)
	}

	err = g.Wait()
	log.Info("identityd.stopped", "err", err)
	return err
}

// populate builds a directory from the seed file first, then Postgres. Either
// may be absent. On error no directory is returned, so a partial load is never served.
func populate(ctx context.Context, cfg config.Config, log *slog.Logger) (*directory.Directory, error) {
	dir := directory.New()
	if cfg.SeedFile == "" && cfg.PGDSN == "" {
		log.Warn("directory.empty", "hint", "set --seed or --pg-dsn")
		return dir, nil
	}
	if cfg.SeedFile != "" {
		doc, err := seed.LoadFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		st, err := seed.Apply(dir, doc)
		if err != nil {
			return nil, err
		}
		log.Info("seed.loaded", "file", cfg.SeedFile, "total", st.Total(), "organizations", st.Organizations,
			"roles", st.Roles, "groups", st.Groups, "users", st.Users)
	}
	if cfg.PGDSN != "" {
		db, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		defer db.Close()

		loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		st, err := pg.NewSource(db).Load(loadCtx, dir)
		if err != nil {
			return nil, err
		}
		log.Info("pg.loaded", "total", st.Total(), "organizations", st.Organizations, "roles", st.Roles,
			"groups", st.Groups, "users", st.Users)
	}
	return dir, nil
}
