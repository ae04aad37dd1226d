package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/daviddozie/flowvahub/internal/server"
	"github.com/daviddozie/flowvahub/internal/session"
	"github.com/daviddozie/flowvahub/internal/ws"
	"github.com/daviddozie/flowvahub/pkg/config"
	"github.com/daviddozie/flowvahub/pkg/identity"
	"github.com/daviddozie/flowvahub/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.LoadWebConfig()
	log := logger.New("flowva-hub", logger.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := identity.New(cfg.ProviderURL, cfg.ProviderPublicKey, identity.WithHTTPClient(&http.Client{Timeout: cfg.ProviderTimeout + 5*time.Second}))
	if err != nil {
		log.Error("failed to configure identity provider", "error", err)
		return 1
	}

	hub := ws.NewHub()
	defer hub.Close()

	deps := server.Deps{Identity: provider, Hub: hub, Logger: log}
	var relay *session.RedisPublisher
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		relay, err = session.NewRedisPublisher(addr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionEventsChannel, hub, log)
		if err != nil {
			log.Warn("redis session relay unavailable, using in-process events", "error", err)
			relay = nil
		} else {
			defer relay.Close()
			deps.Publisher = relay
		}
	}

	handler, err := server.New(cfg, deps)
	if err != nil {
		log.Error("failed to build web server", "error", err)
		return 1
	}

	srv, cancelStreams := newHTTPServer(cfg.Addr, handler)
	defer cancelStreams()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("web server starting", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		return 1
	}
	log.Info("web server stopped")
	return 0
}

// newHTTPServer builds the listener-facing server. Request contexts derive from
// a base context that is cancelled when Shutdown starts, so long-lived streams
// end instead of holding shutdown open.
func newHTTPServer(addr string, handler http.Handler) (*http.Server, context.CancelFunc) {
	baseCtx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)
	return srv, cancel
}
