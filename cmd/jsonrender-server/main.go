// Package main implements the jsonrender server: it loads a component
// catalog, hosts a streaming UI session and exposes the stream intake over
// WebSocket and optionally NATS, with prometheus metrics on the side.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/config"
	"github.com/c360/jsonrender/input/natsfeed"
	"github.com/c360/jsonrender/input/websocket"
	"github.com/c360/jsonrender/metric"
	"github.com/c360/jsonrender/producer/openai"
	"github.com/c360/jsonrender/session"
)

const (
	version = "0.1.0"
	appName = "jsonrender-server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (JSON or YAML)")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, version)
		return nil
	}

	cfg, err := config.NewLoader(*configPath, "").Load()
	if err != nil {
		return err
	}
	if *validateOnly {
		fmt.Println("configuration is valid")
		return nil
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)
	logger.Info("starting jsonrender server",
		"version", version,
		"catalog", cfg.Catalog.Path)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded",
		"components", len(cat.ComponentNames()),
		"actions", len(cat.ActionNames()))

	registry := metric.NewRegistry()

	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	sessionOpts := session.Options{
		Catalog: cat,
		Logger:  logger,
		Metrics: registry.Metrics,
	}
	if cfg.NATS.PublishEvents {
		sessionOpts.EventConn = nc
	}
	sess, err := session.New(sessionOpts)
	if err != nil {
		return err
	}
	logger.Info("session ready", "session", sess.ID())

	wsInput, err := websocket.NewInput(cfg.WebSocket, sess, registry.Metrics, logger)
	if err != nil {
		return err
	}

	var feed *natsfeed.Feed
	if cfg.NATS.Enabled {
		feed, err = natsfeed.NewFeed(cfg.NATS.Feed, sess, registry.Metrics, logger)
		if err != nil {
			return err
		}
	}

	var prod *openai.Producer
	if cfg.Producer.Enabled {
		apiKey := os.Getenv(cfg.Producer.OpenAI.APIKeyEnv)
		prod, err = openai.NewProducer(cfg.Producer.OpenAI, apiKey, cat, registry.Metrics, logger)
		if err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := wsInput.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return wsInput.Stop(cfg.Server.ShutdownTimeout)
	})

	if feed != nil {
		g.Go(func() error {
			if err := feed.Start(gctx); err != nil {
				return err
			}
			<-gctx.Done()
			return feed.Stop()
		})
	}

	// Prompts published on the prompt subject trigger generations: the tree
	// is reset and the producer streams the next generation into the session.
	if prod != nil {
		sub, err := nc.Subscribe(cfg.Producer.PromptSubject, func(msg *nats.Msg) {
			prompt := string(msg.Data)
			logger.Info("generation requested", "prompt_bytes", len(prompt))
			// Generations run long; never block the subscription dispatcher.
			go func() {
				sess.ResetTree()
				if err := prod.Generate(gctx, prompt, sess); err != nil {
					logger.Error("generation failed", "error", err)
				}
			}()
		})
		if err != nil {
			return fmt.Errorf("prompt subscribe: %w", err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	g.Go(func() error {
		logger.Info("metrics endpoint listening", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	logger.Info("server running",
		"ws_port", cfg.WebSocket.HTTPPort,
		"nats", cfg.NATS.Enabled)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
