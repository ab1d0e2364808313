package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/jsonrender/action"
	"github.com/c360/jsonrender/assemble"
	"github.com/c360/jsonrender/types"
)

type fakeSink struct {
	mu       sync.Mutex
	chunks   [][]byte
	finished bool
	aborted  bool
	resets   int
	invoked  []types.Action
}

func (f *fakeSink) FeedChunk(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeSink) FinishStream() assemble.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = true
	return assemble.Report{}
}

func (f *fakeSink) AbortStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
}

func (f *fakeSink) ResetTree() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeSink) Invoke(_ context.Context, act types.Action) action.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, act)
	return action.Outcome{Action: act.Name, Status: action.StatusSuccess}
}

func dialTestInput(t *testing.T, cfg Config, sink Sink) (*gws.Conn, func()) {
	t.Helper()
	input, err := NewInput(cfg, sink, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(input.Handler(ctx))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.Path
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		cancel()
		srv.Close()
	}
}

func send(t *testing.T, conn *gws.Conn, envelope MessageEnvelope) ackEnvelope {
	t.Helper()
	data, err := json.Marshal(envelope)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, replyData, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply ackEnvelope
	require.NoError(t, json.Unmarshal(replyData, &reply))
	return reply
}

func TestChunkMessagesReachTheSink(t *testing.T) {
	sink := &fakeSink{}
	conn, cleanup := dialTestInput(t, DefaultConfig(), sink)
	defer cleanup()

	payload, _ := json.Marshal(`[{"key":"root","type":"Card"}]`)
	reply := send(t, conn, MessageEnvelope{Type: "chunk", ID: "m1", Payload: payload})

	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, "m1", reply.ID)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.chunks, 1)
	assert.Equal(t, `[{"key":"root","type":"Card"}]`, string(sink.chunks[0]))
}

func TestStreamControlMessages(t *testing.T) {
	sink := &fakeSink{}
	conn, cleanup := dialTestInput(t, DefaultConfig(), sink)
	defer cleanup()

	reply := send(t, conn, MessageEnvelope{Type: "finish", ID: "f1"})
	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, "clean", reply.Status)

	reply = send(t, conn, MessageEnvelope{Type: "abort", ID: "a1"})
	assert.Equal(t, "ack", reply.Type)

	reply = send(t, conn, MessageEnvelope{Type: "reset", ID: "r1"})
	assert.Equal(t, "ack", reply.Type)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.True(t, sink.finished)
	assert.True(t, sink.aborted)
	assert.Equal(t, 1, sink.resets)
}

func TestActionMessagesCarryTheOutcome(t *testing.T) {
	sink := &fakeSink{}
	conn, cleanup := dialTestInput(t, DefaultConfig(), sink)
	defer cleanup()

	payload, _ := json.Marshal(types.Action{Name: "submit", Params: map[string]any{"x": "1"}})
	reply := send(t, conn, MessageEnvelope{Type: "action", ID: "act1", Payload: payload})

	assert.Equal(t, "ack", reply.Type)
	assert.Equal(t, "success", reply.Status)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.invoked, 1)
	assert.Equal(t, "submit", sink.invoked[0].Name)
}

func TestUnknownMessageTypeIsNacked(t *testing.T) {
	sink := &fakeSink{}
	conn, cleanup := dialTestInput(t, DefaultConfig(), sink)
	defer cleanup()

	reply := send(t, conn, MessageEnvelope{Type: "bogus", ID: "b1"})
	assert.Equal(t, "nack", reply.Type)
}

func TestBearerAuthRejectsMissingToken(t *testing.T) {
	t.Setenv("WS_TEST_TOKEN", "secret")

	cfg := DefaultConfig()
	cfg.Auth = &AuthConfig{Type: "bearer", BearerTokenEnv: "WS_TEST_TOKEN"}

	input, err := NewInput(cfg, &fakeSink{}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(input.Handler(ctx))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + cfg.Path

	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer secret")
	conn, _, err := gws.DefaultDialer.Dial(url, headers)
	require.NoError(t, err)
	conn.Close()
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "port out of range", mutate: func(c *Config) { c.HTTPPort = 0 }, wantErr: true},
		{name: "empty path", mutate: func(c *Config) { c.Path = "" }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.ChunksPerSecond = -1 }, wantErr: true},
		{name: "bearer without env", mutate: func(c *Config) {
			c.Auth = &AuthConfig{Type: "bearer"}
		}, wantErr: true},
		{name: "unknown auth type", mutate: func(c *Config) {
			c.Auth = &AuthConfig{Type: "mtls"}
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
