// Package openai drives interface generation through an OpenAI-compatible
// chat completion API. The producer streams the model's output chunk by
// chunk into a sink as it arrives, so the tree starts assembling before the
// model finishes.
//
// Works with any OpenAI-compatible endpoint (OpenAI cloud, LocalAI, vLLM)
// via the standard OpenAI SDK.
package openai

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/c360/jsonrender/assemble"
	"github.com/c360/jsonrender/catalog"
	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/metric"
	"github.com/c360/jsonrender/pkg/retry"
)

// Sink receives the generated stream. session.Session satisfies it.
type Sink interface {
	FeedChunk(chunk []byte) error
	FinishStream() assemble.Report
	AbortStream()
}

// Config configures the producer.
type Config struct {
	// BaseURL is the base URL of the completion service. Empty means the
	// OpenAI cloud default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Model is the chat model to use.
	Model string `json:"model" yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// Optional for local services.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`

	// Timeout bounds the whole completion request (default 120s; streaming
	// generations run long).
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Temperature and MaxTokens pass through to the completion request.
	Temperature float32 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultConfig returns the default producer configuration.
func DefaultConfig() Config {
	return Config{
		Model:       openai.GPT4oMini,
		Timeout:     120 * time.Second,
		Temperature: 0.2,
		MaxTokens:   4096,
	}
}

// Validate checks the configuration for usability.
func (c Config) Validate() error {
	if c.Model == "" {
		return errors.WrapInvalid(
			fmt.Errorf("model must not be empty"),
			"openai_producer", "Validate", "model check")
	}
	return nil
}

// Producer generates interface streams from prompts.
type Producer struct {
	client  *openai.Client
	config  Config
	catalog *catalog.Catalog
	logger  *slog.Logger
	metrics *metric.Metrics
}

// NewProducer creates a producer generating against cat. apiKey may be empty
// for local services.
func NewProducer(config Config, apiKey string, cat *catalog.Catalog,
	metrics *metric.Metrics, logger *slog.Logger) (*Producer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("catalog must not be nil"),
			"openai_producer", "NewProducer", "catalog check")
	}
	if logger == nil {
		logger = slog.Default()
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	if apiKey == "" {
		apiKey = "dummy-key" // local services don't need a real key
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &Producer{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  config,
		catalog: cat,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Generate streams one interface generation for prompt into sink. Every
// content delta is fed as soon as it arrives; a cleanly ended stream
// finishes the sink, a transport failure aborts it so the last merged tree
// stays intact.
func (p *Producer) Generate(ctx context.Context, prompt string, sink Sink) error {
	req := openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
		Stream:      true,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	// Opening the stream is retryable; once deltas flow a failure aborts
	// instead, so a half-fed tree is never silently regenerated.
	var stream *openai.ChatCompletionStream
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		var openErr error
		stream, openErr = p.client.CreateChatCompletionStream(ctx, req)
		return openErr
	})
	if err != nil {
		return errors.WrapTransient(err, "openai_producer", "Generate", "completion request")
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			report := sink.FinishStream()
			if !report.Clean() {
				p.logger.Info("generation finished with loose ends",
					"incomplete", len(report.IncompleteKeys),
					"placeholders", len(report.PlaceholderKeys),
					"invalid", len(report.InvalidKeys))
			}
			return nil
		}
		if err != nil {
			sink.AbortStream()
			return errors.WrapTransient(err, "openai_producer", "Generate", "stream receive")
		}

		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if p.metrics != nil {
			p.metrics.ChunksReceived.WithLabelValues("openai").Inc()
			p.metrics.BytesReceived.WithLabelValues("openai").Add(float64(len(delta)))
		}
		if err := sink.FeedChunk([]byte(delta)); err != nil {
			p.logger.Warn("chunk rejected mid-generation", "error", err)
		}
	}
}

// systemPrompt instructs the model to emit only catalog components as a
// streamed array of flat element records.
func (p *Producer) systemPrompt() string {
	return fmt.Sprintf(`You generate user interfaces as JSON. Output ONLY a JSON array of
flat element records, no prose and no code fences. Each record has a unique
"key", a "type" from the component catalog below, optional "props",
"children" (an array of child keys) and "visible". The record with key
"root" is the tree root. You may re-emit a key with additional props to
complete it progressively.

Component catalog:

%s`, p.catalog.Describe())
}
