package rag

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/seanblong/docschat/pkg/models"
)

// MockAIClient implements the ai.Client interface for testing
type MockAIClient struct {
	CompleteFunc func(ctx context.Context, model, system, user string) (string, error)
}

func (m *MockAIClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (m *MockAIClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (m *MockAIClient) Complete(ctx context.Context, model, system, user string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, model, system, user)
	}
	return "mock answer", nil
}

func (m *MockAIClient) Dim() int { return 3 }

// MockRetriever implements the Retriever interface for testing
type MockRetriever struct {
	RetrieveFunc func(ctx context.Context, query string) ([]models.Candidate, error)
}

func (m *MockRetriever) Retrieve(ctx context.Context, query string) ([]models.Candidate, error) {
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, query)
	}
	return nil, nil
}

// MockEvaluator implements the Evaluator interface for testing
type MockEvaluator struct {
	EvaluateFunc func(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error)
}

func (m *MockEvaluator) Evaluate(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error) {
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, query, candidates)
	}
	return nil, nil
}

func candidate(pageID string) models.Candidate {
	return models.Candidate{
		PageID:        pageID,
		Title:         "Title " + pageID,
		URL:           "http://wiki/" + pageID,
		ParentContent: "parent content " + pageID,
	}
}

func scored(pageID string, score float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate:      candidate(pageID),
		RelevanceScore: score,
		Judgment:       "scripted",
	}
}

func TestChain_Ask_NoDocuments(t *testing.T) {
	chain := New(
		&MockRetriever{},
		&MockEvaluator{},
		&MockAIClient{},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "anything")

	if answer.Answer != NoDocumentsMessage {
		t.Errorf("Expected %q, got %q", NoDocumentsMessage, answer.Answer)
	}
	if len(answer.Sources) != 0 || len(answer.ContextDocs) != 0 {
		t.Errorf("Expected empty sources and context docs, got %+v", answer)
	}
	if answer.Sources == nil || answer.ContextDocs == nil {
		t.Error("Expected empty slices rather than nil for a well-formed answer")
	}
}

func TestChain_Ask_NoRelevantDocuments(t *testing.T) {
	chain := New(
		&MockRetriever{
			RetrieveFunc: func(ctx context.Context, query string) ([]models.Candidate, error) {
				return []models.Candidate{candidate("a"), candidate("b")}, nil
			},
		},
		&MockEvaluator{
			EvaluateFunc: func(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error) {
				return nil, nil
			},
		},
		&MockAIClient{},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "anything")

	if answer.Answer != NoRelevantMessage {
		t.Errorf("Expected %q, got %q", NoRelevantMessage, answer.Answer)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("Expected no sources, got %v", answer.Sources)
	}
}

func TestChain_Ask_RetrievalFailure(t *testing.T) {
	chain := New(
		&MockRetriever{
			RetrieveFunc: func(ctx context.Context, query string) ([]models.Candidate, error) {
				return nil, errors.New("database connection failed")
			},
		},
		&MockEvaluator{},
		&MockAIClient{},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "anything")

	if !strings.Contains(answer.Answer, "Document search failed") {
		t.Errorf("Expected search failure surfaced in answer text, got %q", answer.Answer)
	}
	if !strings.Contains(answer.Answer, "database connection failed") {
		t.Errorf("Expected cause included, got %q", answer.Answer)
	}
}

func TestChain_Ask_EvaluationFailure(t *testing.T) {
	chain := New(
		&MockRetriever{
			RetrieveFunc: func(ctx context.Context, query string) ([]models.Candidate, error) {
				return []models.Candidate{candidate("a")}, nil
			},
		},
		&MockEvaluator{
			EvaluateFunc: func(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error) {
				return nil, errors.New("judge unavailable")
			},
		},
		&MockAIClient{},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "anything")

	if !strings.Contains(answer.Answer, "Relevance evaluation failed") {
		t.Errorf("Expected evaluation failure surfaced in answer text, got %q", answer.Answer)
	}
}

func TestChain_Ask_GenerationFailureKeepsSources(t *testing.T) {
	chain := New(
		&MockRetriever{
			RetrieveFunc: func(ctx context.Context, query string) ([]models.Candidate, error) {
				return []models.Candidate{candidate("a"), candidate("b")}, nil
			},
		},
		&MockEvaluator{
			EvaluateFunc: func(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error) {
				return []models.ScoredCandidate{scored("a", 90), scored("b", 70)}, nil
			},
		},
		&MockAIClient{
			CompleteFunc: func(ctx context.Context, model, system, user string) (string, error) {
				return "", errors.New("model overloaded")
			},
		},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "anything")

	if !strings.Contains(answer.Answer, "Answer generation failed") {
		t.Errorf("Expected generation failure surfaced in answer text, got %q", answer.Answer)
	}
	expectedSources := []models.Source{
		{Title: "Title a", URL: "http://wiki/a"},
		{Title: "Title b", URL: "http://wiki/b"},
	}
	if !reflect.DeepEqual(answer.Sources, expectedSources) {
		t.Errorf("Expected sources kept on generation failure, got %v", answer.Sources)
	}
	if len(answer.ContextDocs) != 2 {
		t.Errorf("Expected context docs kept on generation failure, got %d", len(answer.ContextDocs))
	}
}

func TestChain_Ask_Success(t *testing.T) {
	var seenModel, seenUser string
	chain := New(
		&MockRetriever{
			RetrieveFunc: func(ctx context.Context, query string) ([]models.Candidate, error) {
				if query != "how do I deploy" {
					t.Errorf("Expected query passed to retriever, got %q", query)
				}
				return []models.Candidate{candidate("a"), candidate("b")}, nil
			},
		},
		&MockEvaluator{
			EvaluateFunc: func(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error) {
				if len(candidates) != 2 {
					t.Errorf("Expected 2 candidates forwarded to evaluator, got %d", len(candidates))
				}
				return []models.ScoredCandidate{scored("b", 95), scored("a", 70)}, nil
			},
		},
		&MockAIClient{
			CompleteFunc: func(ctx context.Context, model, system, user string) (string, error) {
				seenModel, seenUser = model, user
				return "Deploy with the release pipeline.", nil
			},
		},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "how do I deploy")

	if answer.Answer != "Deploy with the release pipeline." {
		t.Errorf("Expected generated answer, got %q", answer.Answer)
	}
	if seenModel != "chat-model" {
		t.Errorf("Expected chat model used, got %q", seenModel)
	}
	// sources follow the evaluator's ranked order
	expectedSources := []models.Source{
		{Title: "Title b", URL: "http://wiki/b"},
		{Title: "Title a", URL: "http://wiki/a"},
	}
	if !reflect.DeepEqual(answer.Sources, expectedSources) {
		t.Errorf("Expected ranked sources %v, got %v", expectedSources, answer.Sources)
	}
	if !strings.Contains(seenUser, "Question: how do I deploy") {
		t.Errorf("Expected question in prompt, got %q", seenUser)
	}
	if !strings.Contains(seenUser, "parent content b") || !strings.Contains(seenUser, "parent content a") {
		t.Errorf("Expected document contents in prompt, got %q", seenUser)
	}
}

func TestBuildContext(t *testing.T) {
	docs := []models.ScoredCandidate{scored("a", 90), scored("b", 70)}

	got := buildContext(docs)

	if !strings.Contains(got, "[Doc 1] Title a") {
		t.Errorf("Expected first document header, got %q", got)
	}
	if !strings.Contains(got, "[Doc 2] Title b") {
		t.Errorf("Expected second document header, got %q", got)
	}
	if strings.Index(got, "[Doc 1]") > strings.Index(got, "[Doc 2]") {
		t.Error("Expected documents in ranked order")
	}
}

func TestBuildContext_TruncatesLongDocuments(t *testing.T) {
	doc := scored("a", 90)
	doc.ParentContent = strings.Repeat("x", 10000)

	got := buildContext([]models.ScoredCandidate{doc})

	if n := strings.Count(got, "x"); n != contextDocChars {
		t.Errorf("Expected document capped at %d chars, got %d", contextDocChars, n)
	}
}

func TestChain_Ask_ManyDocsAllInContext(t *testing.T) {
	var candidates []models.Candidate
	var relevant []models.ScoredCandidate
	for i := 0; i < 5; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("p%d", i)))
		relevant = append(relevant, scored(fmt.Sprintf("p%d", i), float64(90-i)))
	}

	chain := New(
		&MockRetriever{
			RetrieveFunc: func(ctx context.Context, query string) ([]models.Candidate, error) {
				return candidates, nil
			},
		},
		&MockEvaluator{
			EvaluateFunc: func(ctx context.Context, query string, cs []models.Candidate) ([]models.ScoredCandidate, error) {
				return relevant, nil
			},
		},
		&MockAIClient{
			CompleteFunc: func(ctx context.Context, model, system, user string) (string, error) {
				for i := 0; i < 5; i++ {
					if !strings.Contains(user, fmt.Sprintf("parent content p%d", i)) {
						t.Errorf("Expected document p%d in prompt", i)
					}
				}
				return "ok", nil
			},
		},
		"chat-model",
	)

	answer := chain.Ask(context.Background(), "query")

	if len(answer.Sources) != 5 || len(answer.ContextDocs) != 5 {
		t.Errorf("Expected all 5 documents reflected, got %d sources, %d docs", len(answer.Sources), len(answer.ContextDocs))
	}
}
