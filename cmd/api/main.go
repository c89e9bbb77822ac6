package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/pflag"

	"github.com/seanblong/docschat/internal/ai"
	"github.com/seanblong/docschat/internal/auth"
	"github.com/seanblong/docschat/internal/chunk"
	"github.com/seanblong/docschat/internal/config"
	"github.com/seanblong/docschat/internal/convert"
	"github.com/seanblong/docschat/internal/indexer"
	"github.com/seanblong/docschat/internal/rag"
	"github.com/seanblong/docschat/internal/relevance"
	"github.com/seanblong/docschat/internal/retrieve"
	"github.com/seanblong/docschat/internal/source"
	"github.com/seanblong/docschat/internal/store"
)

type askRequest struct {
	Query string `json:"query"`
}

func main() {
	fs := pflag.NewFlagSet("docschat-api", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Str("provider", cfg.Provider).Str("log_level", cfg.LogLevel).Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting docschat api")

	clientConfig := buildClientConfig(cfg)
	client, err := ai.NewClient(clientConfig)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}

	auth.Initialize(cfg.Auth.JwtSecret, cfg.Auth.Enabled)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}

	dim := client.Dim()
	logger.Info().Int("embedding_dim", dim).Str("embed_model", clientConfig.EmbedModel).Msg("AI client initialized")

	if err := st.EnsureSchema(ctx, dim); err != nil {
		log.Fatalf("Failed to ensure index schema: %v", err)
	}

	retriever := retrieve.New(client, st, cfg.RAG.SearchTopK, cfg.RAG.ScoreThreshold)
	evaluator := relevance.New(client, clientConfig.JudgeModel, cfg.RAG.RelevanceThreshold, cfg.RAG.MaxContextDocs)
	chain := rag.New(retriever, evaluator, client, clientConfig.ChatModel)

	var src source.ContentSource
	if cfg.SourceDir != "" {
		src = source.NewFSSource(cfg.SourceDir)
	} else if cfg.Wiki.BaseURL != "" {
		src = source.NewWikiClient(cfg.Wiki.BaseURL, cfg.Wiki.Username, cfg.Wiki.APIToken, cfg.Wiki.Spaces)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/auth/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(map[string]bool{"enabled": auth.IsEnabled()})
		if err != nil {
			http.Error(w, "Failed to encode response", 500)
		}
	})

	mux.HandleFunc("/ask", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		start := time.Now()

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		req.Query = strings.TrimSpace(req.Query)
		if req.Query == "" {
			http.Error(w, "missing query", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		answer := chain.Ask(ctx, req.Query)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(answer); err != nil {
			log.Printf("failed to encode response: %v", err)
		}

		hlog.FromRequest(r).Info().Str("path", "/ask").Str("q", req.Query).Int("sources", len(answer.Sources)).Dur("dur", time.Since(start)).Msg("served")
	}))

	mux.HandleFunc("/reindex", auth.OptionalAuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if src == nil {
			http.Error(w, "no content source configured", http.StatusServiceUnavailable)
			return
		}
		pageID := r.URL.Query().Get("page")
		if pageID == "" {
			http.Error(w, "missing query parameter page", http.StatusBadRequest)
			return
		}

		ix := indexer.New(
			src,
			convert.NewHTMLConverter(),
			chunk.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
			client,
			st,
			cfg.Wiki.Spaces,
		)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
		defer cancel()

		ok, err := ix.ReindexPage(ctx, pageID)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
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
