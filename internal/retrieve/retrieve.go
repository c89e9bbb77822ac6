package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docschat/internal/ai"
	"github.com/seanblong/docschat/internal/store"
	"github.com/seanblong/docschat/pkg/models"
)

// Retriever performs hybrid search and merges chunk hits into page-level
// candidates.
type Retriever struct {
	Client         ai.Client
	Index          store.Index
	TopK           int
	ScoreThreshold float64
}

// New creates a Retriever with the provided AI client and index.
func New(client ai.Client, index store.Index, topK int, scoreThreshold float64) *Retriever {
	return &Retriever{
		Client:         client,
		Index:          index,
		TopK:           topK,
		ScoreThreshold: scoreThreshold,
	}
}

// Retrieve embeds the query, runs one hybrid search, drops hits at or below
// the score threshold and merges the survivors by page. Candidates come back
// ranked descending by max chunk score; an empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]models.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vec, err := r.Client.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.Index.HybridQuery(ctx, query, vec, r.TopK)
	if err != nil {
		return nil, fmt.Errorf("hybrid query: %w", err)
	}

	var kept []store.Hit
	for _, h := range hits {
		if h.Score > r.ScoreThreshold {
			kept = append(kept, h)
		}
	}

	log.Debug().Int("hits", len(hits)).Int("kept", len(kept)).Str("query", query).Msg("retrieved chunks")

	return mergeParents(kept), nil
}

// mergeParents groups chunk hits by page id preserving encounter order. The
// first hit of a page supplies title/url/parent content; every hit of that
// page joins its chunk list and the page's max score tracks the best chunk.
// The final sort is stable, so equal-score pages keep insertion order.
func mergeParents(hits []store.Hit) []models.Candidate {
	byPage := make(map[string]int, len(hits))
	var out []models.Candidate

	for _, h := range hits {
		i, ok := byPage[h.PageID]
		if !ok {
			i = len(out)
			byPage[h.PageID] = i
			out = append(out, models.Candidate{
				PageID:        h.PageID,
				Title:         h.Title,
				URL:           h.URL,
				ParentContent: h.ParentContent,
				MaxScore:      h.Score,
			})
		}
		out[i].Chunks = append(out[i].Chunks, models.ChunkHit{
			Content:    h.Content,
			ChunkIndex: h.ChunkIndex,
			Score:      h.Score,
		})
		if h.Score > out[i].MaxScore {
			out[i].MaxScore = h.Score
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MaxScore > out[j].MaxScore
	})
	return out
}
