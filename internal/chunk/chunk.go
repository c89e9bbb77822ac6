package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/seanblong/docschat/pkg/models"
)

// separators in boundary-preference order: paragraph break, line break,
// sentence end, word break, hard character cut.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits page plain text into overlapping, size-capped fragments.
// Splitting is deterministic: the same input always yields the same chunk
// sequence, which keeps re-indexing idempotent.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Non-positive size falls back to 800/100; overlap is
// clamped below size.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = 800
		overlap = 100
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split chunks one page. Empty or whitespace-only plain text yields no
// chunks and no error. Every chunk carries the full markdown as parent
// context; only the embedding-facing Content field is split.
func (c *Chunker) Split(pageID, title, url, plainText, markdown string) []models.Chunk {
	if strings.TrimSpace(plainText) == "" {
		return nil
	}

	pieces := c.splitText(plainText, separators)

	chunks := make([]models.Chunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, models.Chunk{
			PageID:        pageID,
			ChunkIndex:    i,
			Title:         title,
			URL:           url,
			Content:       content,
			ParentContent: markdown,
		})
	}
	return chunks
}

// splitText recursively splits text at the first separator present, merging
// small splits back together up to the size cap and recursing with the
// remaining separators on any split that is still too large.
func (c *Chunker) splitText(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, s := range seps {
		if s == "" || strings.Contains(text, s) {
			sep = s
			rest = seps[i+1:]
			break
		}
	}

	if sep == "" {
		return stridedCut(text, c.size, c.overlap)
	}

	// SplitAfter keeps the separator attached to the preceding piece, so
	// overlap windows carry the boundary text.
	splits := strings.SplitAfter(text, sep)

	var out []string
	var small []string
	for _, s := range splits {
		if runeLen(s) <= c.size {
			small = append(small, s)
			continue
		}
		out = append(out, c.merge(small)...)
		small = nil
		out = append(out, c.splitText(s, rest)...)
	}
	out = append(out, c.merge(small)...)
	return out
}

// merge greedily joins splits into chunks of at most size runes. When a
// chunk is emitted, trailing splits totaling at most overlap runes are
// retained as the start of the next chunk.
func (c *Chunker) merge(splits []string) []string {
	var out []string
	var cur []string
	curLen := 0

	for _, s := range splits {
		n := runeLen(s)
		if curLen+n > c.size && curLen > 0 {
			if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
				out = append(out, doc)
			}
			for curLen > c.overlap || (curLen+n > c.size && curLen > 0) {
				curLen -= runeLen(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, s)
		curLen += n
	}

	if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
		out = append(out, doc)
	}
	return out
}

// stridedCut is the hard fallback for text with no usable boundary: fixed
// windows of size runes advancing by size-overlap.
func stridedCut(text string, size, overlap int) []string {
	runes := []rune(text)
	stride := size - overlap
	if stride <= 0 {
		stride = size
	}

	var out []string
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
