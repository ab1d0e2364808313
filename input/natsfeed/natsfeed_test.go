package natsfeed

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/jsonrender/assemble"
)

type fakeSink struct {
	chunks   [][]byte
	finished bool
	aborted  bool
	resets   int
}

func (f *fakeSink) FeedChunk(chunk []byte) error {
	f.chunks = append(f.chunks, append([]byte(nil), chunk...))
	return nil
}

func (f *fakeSink) FinishStream() assemble.Report { f.finished = true; return assemble.Report{} }
func (f *fakeSink) AbortStream()                  { f.aborted = true }
func (f *fakeSink) ResetTree()                    { f.resets++ }

func newTestFeed(t *testing.T) (*Feed, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	cfg := DefaultConfig()
	cfg.SubjectPrefix = "ui.stream.s1"
	feed, err := NewFeed(cfg, sink, nil, nil)
	require.NoError(t, err)
	return feed, sink
}

func TestHandleMessageRoutesBySubjectSuffix(t *testing.T) {
	feed, sink := newTestFeed(t)

	feed.handleMessage(&nats.Msg{Subject: "ui.stream.s1.chunk", Data: []byte(`[{"key":"root"`)})
	feed.handleMessage(&nats.Msg{Subject: "ui.stream.s1.chunk", Data: []byte(`,"type":"Card"}]`)})
	feed.handleMessage(&nats.Msg{Subject: "ui.stream.s1.finish"})

	require.Len(t, sink.chunks, 2)
	assert.Equal(t, `[{"key":"root"`, string(sink.chunks[0]))
	assert.True(t, sink.finished)
}

func TestHandleMessageControlSubjects(t *testing.T) {
	feed, sink := newTestFeed(t)

	feed.handleMessage(&nats.Msg{Subject: "ui.stream.s1.abort"})
	feed.handleMessage(&nats.Msg{Subject: "ui.stream.s1.reset"})
	feed.handleMessage(&nats.Msg{Subject: "ui.stream.s1.unknown", Data: []byte("x")})

	assert.True(t, sink.aborted)
	assert.Equal(t, 1, sink.resets)
	assert.Empty(t, sink.chunks, "unknown subjects never reach the sink")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "empty url", mutate: func(c *Config) { c.URL = "" }, wantErr: true},
		{name: "empty prefix", mutate: func(c *Config) { c.SubjectPrefix = "" }, wantErr: true},
		{name: "wildcard prefix", mutate: func(c *Config) { c.SubjectPrefix = "ui.>" }, wantErr: true},
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

func TestNewFeedRequiresSink(t *testing.T) {
	_, err := NewFeed(DefaultConfig(), nil, nil, nil)
	assert.Error(t, err)
}
