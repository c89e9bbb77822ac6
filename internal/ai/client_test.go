package ai

import (
	"context"
	"strings"
	"testing"
)

// Test Provider constants
func TestProviderConstants(t *testing.T) {
	tests := []struct {
		provider Provider
		expected string
	}{
		{ProviderOpenAI, "openai"},
		{ProviderVertexAI, "vertexai"},
		{ProviderStub, "stub"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if string(tt.provider) != tt.expected {
				t.Errorf("Provider constant mismatch. Expected: %s, Got: %s", tt.expected, string(tt.provider))
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		config      *ClientConfig
		expectError bool
		errorText   string
	}{
		{
			name:        "nil config",
			config:      nil,
			expectError: true,
			errorText:   "client config is required",
		},
		{
			name:   "openai provider",
			config: &ClientConfig{Provider: ProviderOpenAI, APIKey: "k"},
		},
		{
			name:   "stub provider",
			config: &ClientConfig{Provider: ProviderStub, Dim: 8},
		},
		{
			name:        "unknown provider",
			config:      &ClientConfig{Provider: Provider("bedrock")},
			expectError: true,
			errorText:   "unsupported provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)

			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errorText) {
					t.Errorf("Expected error containing %q, got %q", tt.errorText, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client == nil {
				t.Fatal("Expected a client, got nil")
			}
		})
	}
}

func TestStubClient(t *testing.T) {
	client := NewStubClient(8)
	ctx := context.Background()

	if client.Dim() != 8 {
		t.Errorf("Expected dim 8, got %d", client.Dim())
	}

	vecs, err := client.EmbedDocuments(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("Expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 8 {
			t.Errorf("Expected vector %d of dim 8, got %d", i, len(v))
		}
	}

	vec, err := client.EmbedQuery(ctx, "query")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("Expected query vector of dim 8, got %d", len(vec))
	}
}

func TestStubClient_Complete(t *testing.T) {
	client := NewStubClient(8)
	ctx := context.Background()

	// judgment-shaped prompts get a parseable judgment back
	got, err := client.Complete(ctx, "m", "Respond with Relevance: <score>", "doc")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.HasPrefix(got, "Relevance: 0") {
		t.Errorf("Expected stub judgment, got %q", got)
	}

	got, err = client.Complete(ctx, "m", "Answer the question.", "q")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "stub answer" {
		t.Errorf("Expected stub answer, got %q", got)
	}
}
