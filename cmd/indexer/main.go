package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/seanblong/docschat/internal/ai"
	"github.com/seanblong/docschat/internal/chunk"
	"github.com/seanblong/docschat/internal/config"
	"github.com/seanblong/docschat/internal/convert"
	"github.com/seanblong/docschat/internal/indexer"
	"github.com/seanblong/docschat/internal/source"
	"github.com/seanblong/docschat/internal/store"
)

func main() {
	fs := pflag.NewFlagSet("docschat-indexer", pflag.ExitOnError)
	fs.Bool("full", false, "Run a full index of all configured spaces")
	fs.String("since", "", "Run an incremental index of pages modified since this date (YYYY-MM-DD)")
	fs.String("page", "", "Reindex a single page by id")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zlog.Logger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	full, _ := fs.GetBool("full")
	since, _ := fs.GetString("since")
	pageID, _ := fs.GetString("page")

	clientConfig := buildClientConfig(cfg)
	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	if client.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}

	ctx := context.Background()

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}

	var src source.ContentSource
	if cfg.SourceDir != "" {
		src = source.NewFSSource(cfg.SourceDir)
	} else {
		if cfg.Wiki.BaseURL == "" {
			log.Fatal("either DOCSCHAT_WIKI_BASE_URL or --source-dir is required")
		}
		src = source.NewWikiClient(cfg.Wiki.BaseURL, cfg.Wiki.Username, cfg.Wiki.APIToken, cfg.Wiki.Spaces)
	}

	ix := indexer.New(
		src,
		convert.NewHTMLConverter(),
		chunk.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		client,
		st,
		cfg.Wiki.Spaces,
	)

	switch {
	case pageID != "":
		ok, err := ix.ReindexPage(ctx, pageID)
		if err != nil {
			log.Fatalf("Reindex failed: %v", err)
		}
		if !ok {
			log.Fatalf("Page not found: %s", pageID)
		}
		zlog.Info().Str("page_id", pageID).Msg("page reindexed")
	case since != "":
		t, err := time.Parse("2006-01-02", strings.TrimSpace(since))
		if err != nil {
			log.Fatalf("Invalid --since date %q (want YYYY-MM-DD): %v", since, err)
		}
		if _, err := ix.RunIncremental(ctx, t); err != nil {
			log.Fatalf("Incremental index failed: %v", err)
		}
	case full:
		if _, err := ix.RunFull(ctx); err != nil {
			log.Fatalf("Full index failed: %v", err)
		}
	default:
		log.Fatal("one of --full, --since or --page is required")
	}
}

func buildClientConfig(cfg config.Specification) *ai.ClientConfig {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			ChatModel:   cfg.ChatModel,
			JudgeModel:  cfg.JudgeModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Provider:    ai.ProviderOpenAI,
			Temperature: cfg.RAG.Temperature,
			MaxTokens:   cfg.RAG.MaxTokens,
		}
	case "vertexai", "google":
		return &ai.ClientConfig{
			APIKey:      cfg.APIKey,
			EmbedModel:  cfg.EmbedModel,
			ChatModel:   cfg.ChatModel,
			JudgeModel:  cfg.JudgeModel,
			Dim:         cfg.Dim,
			ProjectID:   cfg.ProjectID,
			Location:    cfg.Location,
			Provider:    ai.ProviderVertexAI,
			Temperature: cfg.RAG.Temperature,
			MaxTokens:   cfg.RAG.MaxTokens,
		}
	case "stub":
		return &ai.ClientConfig{
			Dim:      cfg.Dim,
			Provider: ai.ProviderStub,
		}
	default:
		log.Fatalf("unsupported provider: %s", cfg.Provider)
		return nil
	}
}
