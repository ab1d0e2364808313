// Package websocket exposes a session's stream intake over a WebSocket
// endpoint. A connected producer (typically the model-side gateway) pushes
// raw chunks, stream control messages and user action invocations; the input
// feeds them to the session and acknowledges each message.
package websocket

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/jsonrender/action"
	"github.com/c360/jsonrender/assemble"
	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/metric"
	"github.com/c360/jsonrender/types"
)

// Sink receives everything the WebSocket carries. session.Session satisfies
// it.
type Sink interface {
	FeedChunk(chunk []byte) error
	FinishStream() assemble.Report
	AbortStream()
	ResetTree()
	Invoke(ctx context.Context, act types.Action) action.Outcome
}

// MessageEnvelope wraps all WebSocket messages with type discrimination.
// Supported types:
//   - "chunk":  payload is a JSON string of raw stream bytes
//   - "finish": end of the current generation's stream
//   - "abort":  abandon the current stream, keep the last tree
//   - "reset":  discard the tree, keep the data store
//   - "action": payload is an action invocation
type MessageEnvelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ackEnvelope is the per-message reply sent back to the producer.
type ackEnvelope struct {
	Type   string `json:"type"` // ack or nack
	ID     string `json:"id,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Input is the WebSocket stream input server.
type Input struct {
	config   Config
	sink     Sink
	logger   *slog.Logger
	metrics  *metric.Metrics
	upgrader websocket.Upgrader

	httpServer *http.Server

	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      atomic.Bool
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	lifecycleMu  sync.Mutex
}

// NewInput creates a WebSocket input feeding sink.
func NewInput(config Config, sink Sink, metrics *metric.Metrics, logger *slog.Logger) (*Input, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("sink must not be nil"),
			"websocket_input", "NewInput", "sink check")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Input{
		config:  config,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
		},
		shutdown: make(chan struct{}),
	}, nil
}

// Start begins serving the WebSocket endpoint.
func (i *Input) Start(ctx context.Context) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if i.started.Load() {
		return errors.WrapFatal(
			fmt.Errorf("input already started"),
			"websocket_input", "Start", "started state check")
	}

	serverCtx, cancel := context.WithCancel(ctx)
	i.cancel = cancel

	mux := http.NewServeMux()
	mux.HandleFunc(i.config.Path, func(w http.ResponseWriter, r *http.Request) {
		i.handleWebSocket(serverCtx, w, r)
	})
	i.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", i.config.HTTPPort),
		Handler: mux,
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		if err := i.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			i.logger.Error("websocket server stopped", "error", err)
		}
	}()

	i.started.Store(true)
	return nil
}

// Stop shuts the server down and waits for connection goroutines.
func (i *Input) Stop(timeout time.Duration) error {
	i.lifecycleMu.Lock()
	defer i.lifecycleMu.Unlock()

	if !i.started.Load() {
		return nil
	}

	i.shutdownOnce.Do(func() { close(i.shutdown) })
	i.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if i.httpServer != nil {
		_ = i.httpServer.Shutdown(ctx)
	}

	doneCh := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"websocket_input", "Stop", "goroutine wait")
	}

	i.started.Store(false)
	return nil
}

// Handler returns the endpoint handler for embedding in an existing mux
// (tests, shared servers). Start is not required when using it.
func (i *Input) Handler(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i.handleWebSocket(ctx, w, r)
	}
}

func (i *Input) handleWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	if !i.authenticateRequest(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := i.upgrader.Upgrade(w, r, nil)
	if err != nil {
		i.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	if i.config.MaxMessageBytes > 0 {
		conn.SetReadLimit(i.config.MaxMessageBytes)
	}

	i.wg.Add(1)
	go i.readLoop(ctx, conn)
}

// authenticateRequest validates the credentials in the HTTP request.
func (i *Input) authenticateRequest(r *http.Request) bool {
	if i.config.Auth == nil || i.config.Auth.Type == "none" || i.config.Auth.Type == "" {
		return true
	}

	expected := os.Getenv(i.config.Auth.BearerTokenEnv)
	if expected == "" {
		return false
	}
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}

// readLoop processes messages from one producer connection until it closes
// or the input shuts down.
func (i *Input) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer i.wg.Done()
	defer conn.Close()

	var limiter *rate.Limiter
	if i.config.ChunksPerSecond > 0 {
		burst := i.config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(i.config.ChunksPerSecond), burst)
	}

	readTimeout := i.config.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = time.Second
	}

	for {
		select {
		case <-i.shutdown:
			return
		case <-ctx.Done():
			return
		default:
		}

		// Deadline before each read so shutdown is noticed promptly.
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}

		var envelope MessageEnvelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			i.sendNack(conn, "", fmt.Sprintf("malformed envelope: %v", err))
			continue
		}
		i.handleMessage(ctx, conn, limiter, envelope)
	}
}

func (i *Input) handleMessage(ctx context.Context, conn *websocket.Conn,
	limiter *rate.Limiter, envelope MessageEnvelope) {
	switch envelope.Type {
	case "chunk":
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		var chunk string
		if err := json.Unmarshal(envelope.Payload, &chunk); err != nil {
			i.sendNack(conn, envelope.ID, "chunk payload must be a string")
			return
		}
		if i.metrics != nil {
			i.metrics.ChunksReceived.WithLabelValues("websocket").Inc()
			i.metrics.BytesReceived.WithLabelValues("websocket").Add(float64(len(chunk)))
		}
		if err := i.sink.FeedChunk([]byte(chunk)); err != nil {
			i.sendNack(conn, envelope.ID, err.Error())
			return
		}
		i.sendAck(conn, envelope.ID, "")

	case "finish":
		report := i.sink.FinishStream()
		status := "clean"
		if !report.Clean() {
			status = "loose_ends"
		}
		i.sendAck(conn, envelope.ID, status)

	case "abort":
		i.sink.AbortStream()
		i.sendAck(conn, envelope.ID, "")

	case "reset":
		i.sink.ResetTree()
		i.sendAck(conn, envelope.ID, "")

	case "action":
		var act types.Action
		if err := json.Unmarshal(envelope.Payload, &act); err != nil {
			i.sendNack(conn, envelope.ID, "action payload must be an action object")
			return
		}
		out := i.sink.Invoke(ctx, act)
		reply := ackEnvelope{Type: "ack", ID: envelope.ID, Status: out.Status.String()}
		if out.Err != nil {
			reply.Error = out.Err.Error()
		}
		i.sendReply(conn, reply)

	default:
		i.sendNack(conn, envelope.ID, fmt.Sprintf("unknown message type %q", envelope.Type))
	}
}

func (i *Input) sendAck(conn *websocket.Conn, id, status string) {
	i.sendReply(conn, ackEnvelope{Type: "ack", ID: id, Status: status})
}

func (i *Input) sendNack(conn *websocket.Conn, id, errorMsg string) {
	i.sendReply(conn, ackEnvelope{Type: "nack", ID: id, Error: errorMsg})
}

func (i *Input) sendReply(conn *websocket.Conn, reply ackEnvelope) {
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		i.logger.Debug("reply write failed", "error", err)
	}
}
