package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seanblong/docschat/internal/ai"
	"github.com/seanblong/docschat/internal/chunk"
	"github.com/seanblong/docschat/internal/convert"
	"github.com/seanblong/docschat/internal/source"
	"github.com/seanblong/docschat/internal/store"
	"github.com/seanblong/docschat/pkg/models"
)

// Indexer drives batch ingestion: fetch, convert, chunk, embed, index.
// Pages are processed sequentially; one bad page is counted and skipped,
// never aborting the run.
type Indexer struct {
	Source    source.ContentSource
	Converter convert.Converter
	Chunker   *chunk.Chunker
	Client    ai.Client
	Index     store.Index
	Spaces    []string
}

// New creates an Indexer.
func New(src source.ContentSource, conv convert.Converter, ch *chunk.Chunker, client ai.Client, idx store.Index, spaces []string) *Indexer {
	return &Indexer{
		Source:    src,
		Converter: conv,
		Chunker:   ch,
		Client:    client,
		Index:     idx,
		Spaces:    spaces,
	}
}

// RunFull indexes every page of every configured space. The index schema is
// ensured first; an unreachable index or content source is fatal to the run.
func (ix *Indexer) RunFull(ctx context.Context) (models.IndexStats, error) {
	log.Info().Msg("starting full index")
	start := time.Now()

	if err := ix.Index.EnsureSchema(ctx, ix.Client.Dim()); err != nil {
		return models.IndexStats{}, fmt.Errorf("ensure schema: %w", err)
	}

	pages, err := ix.Source.AllPages(ctx)
	if err != nil {
		return models.IndexStats{}, fmt.Errorf("fetch pages: %w", err)
	}
	log.Info().Int("pages", len(pages)).Msg("fetched pages to index")

	stats := ix.processPages(ctx, pages, false)
	stats.ElapsedSeconds = time.Since(start).Seconds()

	log.Info().
		Int("pages_processed", stats.PagesProcessed).
		Int("chunks_indexed", stats.ChunksIndexed).
		Int("errors", stats.Errors).
		Float64("elapsed_seconds", stats.ElapsedSeconds).
		Msg("full index completed")
	return stats, nil
}

// RunIncremental indexes pages modified at or after since. Each page's old
// chunks are deleted immediately before it is reprocessed, so stale chunk
// counts never leak and the delete never races the page's own re-insert.
func (ix *Indexer) RunIncremental(ctx context.Context, since time.Time) (models.IndexStats, error) {
	log.Info().Time("since", since).Msg("starting incremental index")
	start := time.Now()

	if err := ix.Index.EnsureSchema(ctx, ix.Client.Dim()); err != nil {
		return models.IndexStats{}, fmt.Errorf("ensure schema: %w", err)
	}

	var pages []models.Page
	for _, space := range ix.Spaces {
		updated, err := ix.Source.UpdatedPagesSince(ctx, space, since)
		if err != nil {
			return models.IndexStats{}, fmt.Errorf("fetch updated pages in %s: %w", space, err)
		}
		pages = append(pages, updated...)
	}
	log.Info().Int("pages", len(pages)).Msg("fetched updated pages")

	stats := ix.processPages(ctx, pages, true)
	stats.ElapsedSeconds = time.Since(start).Seconds()

	log.Info().
		Int("pages_processed", stats.PagesProcessed).
		Int("chunks_indexed", stats.ChunksIndexed).
		Int("errors", stats.Errors).
		Float64("elapsed_seconds", stats.ElapsedSeconds).
		Msg("incremental index completed")
	return stats, nil
}

// ReindexPage deletes and reprocesses a single page, for externally
// triggered repair. Returns false when the source no longer has the page.
func (ix *Indexer) ReindexPage(ctx context.Context, pageID string) (bool, error) {
	page, ok, err := ix.Source.PageByID(ctx, pageID)
	if err != nil {
		return false, fmt.Errorf("fetch page %s: %w", pageID, err)
	}
	if !ok {
		log.Warn().Str("page_id", pageID).Msg("page not found")
		return false, nil
	}

	if err := ix.Index.DeleteByPageID(ctx, pageID); err != nil {
		return false, fmt.Errorf("delete chunks for %s: %w", pageID, err)
	}
	if err := ix.processPage(ctx, page); err != nil {
		return false, err
	}
	return true, nil
}

// processPages runs the per-page pipeline over a batch. With deleteFirst
// set, each page's existing chunks are removed right before reprocessing
// (incremental mode). Failures are isolated per page.
func (ix *Indexer) processPages(ctx context.Context, pages []models.Page, deleteFirst bool) models.IndexStats {
	var stats models.IndexStats

	for _, page := range pages {
		if deleteFirst {
			if err := ix.Index.DeleteByPageID(ctx, page.ID); err != nil {
				log.Error().Err(err).Str("page_id", page.ID).Str("title", page.Title).Msg("failed to delete stale chunks")
				stats.Errors++
				continue
			}
		}

		n, err := ix.indexPage(ctx, page)
		if err != nil {
			log.Error().Err(err).Str("page_id", page.ID).Str("title", page.Title).Msg("failed to process page")
			stats.Errors++
			continue
		}
		if n == 0 {
			// empty after cleaning, skipped without error
			continue
		}

		stats.PagesProcessed++
		stats.ChunksIndexed += n
		log.Debug().Str("title", page.Title).Int("chunks", n).Msg("indexed page")
	}

	return stats
}

func (ix *Indexer) processPage(ctx context.Context, page models.Page) error {
	_, err := ix.indexPage(ctx, page)
	return err
}

// indexPage converts, chunks, embeds and indexes one page, returning the
// number of chunks written. Empty pages yield zero chunks and no error.
func (ix *Indexer) indexPage(ctx context.Context, page models.Page) (int, error) {
	markdown := ix.Converter.ToMarkdown(page.HTMLContent)
	plain := ix.Converter.ToPlainText(page.HTMLContent)
	if plain == "" {
		log.Warn().Str("title", page.Title).Msg("skipping empty page")
		return 0, nil
	}

	chunks := ix.Chunker.Split(page.ID, page.Title, page.URL, plain, markdown)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := ix.Client.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	if err := ix.Index.UpsertChunks(ctx, chunks, embeddings); err != nil {
		return 0, fmt.Errorf("index chunks: %w", err)
	}
	return len(chunks), nil
}
