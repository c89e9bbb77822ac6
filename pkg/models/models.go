package models

import (
	"strconv"
	"time"
)

// Page is a document as fetched from the wiki. The pipeline never mutates
// pages; they are re-fetched and re-indexed as a whole.
type Page struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	SpaceKey     string    `json:"space_key"`
	URL          string    `json:"url"`
	HTMLContent  string    `json:"html_content"`
	LastModified time.Time `json:"last_modified"`
	Author       string    `json:"author"`
}

// Chunk is a bounded fragment of a page's plain text, the unit of embedding
// and lexical indexing. ParentContent carries the full page markdown so a
// single hit can hand the LLM the whole document as context.
type Chunk struct {
	PageID        string `json:"page_id"`
	ChunkIndex    int    `json:"chunk_index"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	ParentContent string `json:"parent_content"`
}

// DocID is the deterministic index identifier for a chunk, so re-indexing
// overwrites instead of duplicating.
func (c Chunk) DocID() string {
	return c.PageID + "_" + strconv.Itoa(c.ChunkIndex)
}

// ChunkHit is a single chunk-level search hit.
type ChunkHit struct {
	Content    string  `json:"content"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Candidate is a page-level retrieval result formed by merging every
// matching chunk of one page. Never persisted.
type Candidate struct {
	PageID        string     `json:"page_id"`
	Title         string     `json:"title"`
	URL           string     `json:"url"`
	ParentContent string     `json:"parent_content"`
	Chunks        []ChunkHit `json:"chunks"`
	MaxScore      float64    `json:"max_score"`
}

// ScoredCandidate is a Candidate annotated with an LLM relevance judgment.
// Judgment keeps the raw model response (or the error text on failure) for
// diagnostics.
type ScoredCandidate struct {
	Candidate
	RelevanceScore float64 `json:"relevance_score"`
	Judgment       string  `json:"judgment"`
}

// Source identifies a page cited by an answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Answer is the terminal output of one query.
type Answer struct {
	Answer      string            `json:"answer"`
	Sources     []Source          `json:"sources"`
	ContextDocs []ScoredCandidate `json:"context_docs"`
}

// IndexStats summarizes one batch indexing run.
type IndexStats struct {
	PagesProcessed int     `json:"pages_processed"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	Errors         int     `json:"errors"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}
