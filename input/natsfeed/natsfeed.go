// Package natsfeed ingests stream chunks and stream control messages from
// NATS subjects, for deployments where the model-side producer publishes
// through a broker instead of holding a direct connection.
//
// Subject layout under the configured prefix:
//
//	<prefix>.chunk   raw stream bytes in the message payload
//	<prefix>.finish  end of the current generation's stream
//	<prefix>.abort   abandon the stream, keep the last tree
//	<prefix>.reset   discard the tree, keep the data store
package natsfeed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/jsonrender/assemble"
	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/metric"
	"github.com/c360/jsonrender/pkg/retry"
)

// Sink receives the stream the feed carries. session.Session satisfies it.
type Sink interface {
	FeedChunk(chunk []byte) error
	FinishStream() assemble.Report
	AbortStream()
	ResetTree()
}

// Config holds configuration for the NATS feed input.
type Config struct {
	// URL is the NATS server URL.
	URL string `json:"url" yaml:"url"`

	// SubjectPrefix roots the feed's subjects, typically carrying the
	// session identifier (ui.stream.<session>).
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`

	// ReconnectWait and MaxReconnects tune the client's reconnect behavior.
	ReconnectWait time.Duration `json:"reconnect_wait" yaml:"reconnect_wait"`
	MaxReconnects int           `json:"max_reconnects" yaml:"max_reconnects"`
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "ui.stream.default",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: 60,
	}
}

// Validate checks the configuration for usability.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("url must not be empty"),
			"natsfeed", "Validate", "url check")
	}
	if c.SubjectPrefix == "" || strings.ContainsAny(c.SubjectPrefix, " >*") {
		return errors.WrapInvalid(
			fmt.Errorf("subject_prefix %q must be a literal subject", c.SubjectPrefix),
			"natsfeed", "Validate", "subject check")
	}
	return nil
}

// Feed subscribes to the stream subjects and forwards to the sink.
type Feed struct {
	config  Config
	sink    Sink
	logger  *slog.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	nc      *nats.Conn
	sub     *nats.Subscription
	started bool
}

// NewFeed creates a NATS feed forwarding to sink.
func NewFeed(config Config, sink Sink, metrics *metric.Metrics, logger *slog.Logger) (*Feed, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("sink must not be nil"),
			"natsfeed", "NewFeed", "sink check")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		config:  config,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Start connects to NATS (retrying transient connection failures) and
// subscribes to the feed subjects.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.started {
		return errors.WrapFatal(
			fmt.Errorf("feed already started"),
			"natsfeed", "Start", "started state check")
	}

	var nc *nats.Conn
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var err error
		nc, err = nats.Connect(f.config.URL,
			nats.ReconnectWait(f.config.ReconnectWait),
			nats.MaxReconnects(f.config.MaxReconnects),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				f.logger.Warn("nats disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				f.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}),
		)
		return err
	})
	if err != nil {
		return errors.WrapTransient(err, "natsfeed", "Start", "nats connect")
	}

	sub, err := nc.Subscribe(f.config.SubjectPrefix+".>", f.handleMessage)
	if err != nil {
		nc.Close()
		return errors.WrapFatal(err, "natsfeed", "Start", "subject subscribe")
	}

	f.nc = nc
	f.sub = sub
	f.started = true
	f.logger.Info("nats feed started", "subject", f.config.SubjectPrefix+".>")
	return nil
}

// Stop unsubscribes and drains the connection.
func (f *Feed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.started {
		return nil
	}
	if f.sub != nil {
		_ = f.sub.Unsubscribe()
	}
	if f.nc != nil {
		if err := f.nc.Drain(); err != nil {
			f.nc.Close()
		}
	}
	f.started = false
	return nil
}

// handleMessage dispatches one feed message by its subject suffix.
func (f *Feed) handleMessage(msg *nats.Msg) {
	suffix := strings.TrimPrefix(msg.Subject, f.config.SubjectPrefix+".")

	switch suffix {
	case "chunk":
		if f.metrics != nil {
			f.metrics.ChunksReceived.WithLabelValues("nats").Inc()
			f.metrics.BytesReceived.WithLabelValues("nats").Add(float64(len(msg.Data)))
		}
		if err := f.sink.FeedChunk(msg.Data); err != nil {
			f.logger.Warn("chunk rejected", "error", err)
		}

	case "finish":
		report := f.sink.FinishStream()
		if !report.Clean() {
			f.logger.Info("stream finished with loose ends",
				"incomplete", len(report.IncompleteKeys),
				"placeholders", len(report.PlaceholderKeys))
		}

	case "abort":
		f.sink.AbortStream()

	case "reset":
		f.sink.ResetTree()

	default:
		f.logger.Debug("ignoring unknown feed subject", "subject", msg.Subject)
	}
}
