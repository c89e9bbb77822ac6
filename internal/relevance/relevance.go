package relevance

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/seanblong/docschat/internal/ai"
	"github.com/seanblong/docschat/pkg/models"
)

const systemPrompt = `You are an assistant that judges how relevant a document is to a query.

Analyze the query and document below and rate their relevance from 0 (not related) to 100 (highly related).

Scoring bands:
- 0-20: not related at all
- 21-40: slightly related
- 41-60: moderately related
- 61-80: highly related
- 81-100: directly answers the question

Your response must use exactly this format:
Relevance: <score>
Reason: <brief explanation>`

const userPromptFormat = `Query: %s

Document:
Title: %s
Content: %s

Rate how relevant this document is to the query.`

// defaultExcerptChars bounds how much of a document the judge model sees.
const defaultExcerptChars = 2000

// Evaluator scores retrieval candidates against a query with an LLM
// judgment, then filters, ranks and caps the batch.
type Evaluator struct {
	Client       ai.Client
	Model        string
	Parser       ScoreParser
	Threshold    float64
	MaxDocs      int
	ExcerptChars int
}

// New creates an Evaluator with the default pattern parser.
func New(client ai.Client, model string, threshold float64, maxDocs int) *Evaluator {
	return &Evaluator{
		Client:       client,
		Model:        model,
		Parser:       NewPatternParser(),
		Threshold:    threshold,
		MaxDocs:      maxDocs,
		ExcerptChars: defaultExcerptChars,
	}
}

// Evaluate judges every candidate concurrently and returns those scoring
// above the threshold, sorted descending and capped at MaxDocs. Judgment
// failures degrade the affected candidate to score 0 instead of aborting
// the batch, so Evaluate only completes once every judgment has resolved.
func (e *Evaluator) Evaluate(ctx context.Context, query string, candidates []models.Candidate) ([]models.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	// Results land at their input index so the concurrent fan-out keeps a
	// deterministic order ahead of the score sort.
	scored := make([]models.ScoredCandidate, len(candidates))
	var g errgroup.Group
	for i, c := range candidates {
		g.Go(func() error {
			scored[i] = e.evaluateOne(ctx, query, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var kept []models.ScoredCandidate
	for _, sc := range scored {
		if sc.RelevanceScore > e.Threshold {
			kept = append(kept, sc)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RelevanceScore > kept[j].RelevanceScore
	})

	if e.MaxDocs > 0 && len(kept) > e.MaxDocs {
		kept = kept[:e.MaxDocs]
	}

	log.Debug().Int("candidates", len(candidates)).Int("relevant", len(kept)).Msg("relevance evaluation done")
	return kept, nil
}

// evaluateOne never fails: a judgment-call error or an unparseable response
// yields score 0 with the error or raw response kept as the judgment text.
func (e *Evaluator) evaluateOne(ctx context.Context, query string, c models.Candidate) models.ScoredCandidate {
	excerpt := truncateRunes(c.ParentContent, e.ExcerptChars)
	user := fmt.Sprintf(userPromptFormat, query, c.Title, excerpt)

	resp, err := e.Client.Complete(ctx, e.Model, systemPrompt, user)
	if err != nil {
		log.Warn().Err(err).Str("page_id", c.PageID).Msg("relevance judgment failed")
		return models.ScoredCandidate{Candidate: c, RelevanceScore: 0, Judgment: err.Error()}
	}

	score, ok := e.Parser.Parse(resp)
	if !ok {
		log.Warn().Str("page_id", c.PageID).Msg("unparseable relevance judgment")
	}
	return models.ScoredCandidate{Candidate: c, RelevanceScore: score, Judgment: resp}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
