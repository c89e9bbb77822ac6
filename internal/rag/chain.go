package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docschat/internal/ai"
	"github.com/seanblong/docschat/pkg/models"
)

const systemPrompt = `You are an assistant that answers questions from internal documentation.

Answer the question using only the reference documents provided.

Rules:
1. Base your answer strictly on the reference documents.
2. If the answer cannot be found in the documents, say "I could not find that information in the documentation."
3. Keep answers clear and concise.
4. Mention the titles of relevant documents where possible.
5. Never guess or fabricate information that is not in the documents.`

const userPromptFormat = `Question: %s

Reference documents:
%s

Answer the question using the reference documents above.`

const (
	// NoDocumentsMessage is returned when retrieval finds nothing at all.
	NoDocumentsMessage = "I could not find any documents related to your question."
	// NoRelevantMessage is returned when retrieval found pages but none
	// passed the relevance filter.
	NoRelevantMessage = "I could not find any documents relevant to your question."

	// contextDocChars caps each document's contribution to the prompt.
	contextDocChars = 3000
)

// Retriever produces page-level candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]models.Candidate, error)
}

// Evaluator filters candidates down to the relevant set.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error)
}

// Chain orchestrates one query: retrieval, relevance filtering, context
// assembly and answer generation.
type Chain struct {
	Retriever Retriever
	Evaluator Evaluator
	Client    ai.Client
	Model     string
}

// New creates a Chain.
func New(retriever Retriever, evaluator Evaluator, client ai.Client, model string) *Chain {
	return &Chain{
		Retriever: retriever,
		Evaluator: evaluator,
		Client:    client,
		Model:     model,
	}
}

// Ask runs the full pipeline for one query. It always returns a well-formed
// Answer: internal failures become the answer text rather than a fault
// surfaced to the transport.
func (c *Chain) Ask(ctx context.Context, query string) models.Answer {
	candidates, err := c.Retriever.Retrieve(ctx, query)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("retrieval failed")
		return models.Answer{
			Answer:      fmt.Sprintf("Document search failed: %v", err),
			Sources:     []models.Source{},
			ContextDocs: []models.ScoredCandidate{},
		}
	}
	if len(candidates) == 0 {
		return models.Answer{
			Answer:      NoDocumentsMessage,
			Sources:     []models.Source{},
			ContextDocs: []models.ScoredCandidate{},
		}
	}

	log.Info().Int("candidates", len(candidates)).Str("query", query).Msg("evaluating relevance")

	relevant, err := c.Evaluator.Evaluate(ctx, query, candidates)
	if err != nil {
		log.Error().Err(err).Str("query", query).Msg("relevance evaluation failed")
		return models.Answer{
			Answer:      fmt.Sprintf("Relevance evaluation failed: %v", err),
			Sources:     []models.Source{},
			ContextDocs: []models.ScoredCandidate{},
		}
	}
	if len(relevant) == 0 {
		return models.Answer{
			Answer:      NoRelevantMessage,
			Sources:     []models.Source{},
			ContextDocs: []models.ScoredCandidate{},
		}
	}

	sources := make([]models.Source, 0, len(relevant))
	for _, doc := range relevant {
		sources = append(sources, models.Source{Title: doc.Title, URL: doc.URL})
	}

	answer, err := c.generate(ctx, query, buildContext(relevant))
	if err != nil {
		// Retrieval work is not discarded: sources still reflect the
		// relevant candidates found before generation was attempted.
		log.Error().Err(err).Str("query", query).Msg("answer generation failed")
		return models.Answer{
			Answer:      fmt.Sprintf("Answer generation failed: %v", err),
			Sources:     sources,
			ContextDocs: relevant,
		}
	}

	return models.Answer{
		Answer:      answer,
		Sources:     sources,
		ContextDocs: relevant,
	}
}

// buildContext concatenates the relevant documents in ranked order, each
// introduced by a labeled header and capped per document to bound the
// prompt size.
func buildContext(docs []models.ScoredCandidate) string {
	parts := make([]string, 0, 3*len(docs))
	for i, doc := range docs {
		parts = append(parts, fmt.Sprintf("[Doc %d] %s", i+1, doc.Title))
		parts = append(parts, truncateRunes(doc.ParentContent, contextDocChars))
		parts = append(parts, "")
	}
	return strings.Join(parts, "\n")
}

func (c *Chain) generate(ctx context.Context, query, context string) (string, error) {
	user := fmt.Sprintf(userPromptFormat, query, context)
	return c.Client.Complete(ctx, c.Model, systemPrompt, user)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
