package ai

import (
	"context"
	"errors"
	"strings"
)

// Client provides embedding and chat-completion capabilities
type Client interface {
	// EmbedDocuments embeds a batch of chunk texts for indexing.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Complete runs one chat turn against the named model and returns the
	// response text. May fail on provider errors; callers own the fallback.
	Complete(ctx context.Context, model, system, user string) (string, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey      string
	EmbedModel  string
	ChatModel   string
	JudgeModel  string
	Dim         int
	ProjectID   string
	Provider    Provider
	Location    string
	Temperature float64
	MaxTokens   int
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient is a stub implementation of the Client interface for testing
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	return &StubClient{dim: dim}
}

// EmbedDocuments returns zero vectors of the configured dimension
func (s *StubClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dim)
	}
	return out, nil
}

// EmbedQuery returns a zero vector of the configured dimension
func (s *StubClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

// Complete returns a canned response useful for wiring tests
func (s *StubClient) Complete(ctx context.Context, model, system, user string) (string, error) {
	if strings.Contains(system, "Relevance:") {
		return "Relevance: 0\nReason: stub client", nil
	}
	return "stub answer", nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
