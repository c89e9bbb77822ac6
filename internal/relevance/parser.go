package relevance

import (
	"regexp"
	"strconv"
)

// ScoreParser extracts a 0-100 relevance score from a model response. The
// textual contract with the model is brittle, so parsing is pluggable:
// implementations report ok=false instead of failing, and callers fall back
// to a zero score.
type ScoreParser interface {
	Parse(response string) (score float64, ok bool)
}

// PatternParser matches the constrained "Relevance: <integer>" response
// format.
type PatternParser struct {
	re *regexp.Regexp
}

// NewPatternParser returns the default parser for the judgment format.
func NewPatternParser() *PatternParser {
	return &PatternParser{re: regexp.MustCompile(`Relevance:\s*(\d+)`)}
}

// Parse returns the first matched integer. Scores above 100 are clamped;
// an absent or malformed pattern reports ok=false.
func (p *PatternParser) Parse(response string) (float64, bool) {
	m := p.re.FindStringSubmatch(response)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if n > 100 {
		n = 100
	}
	return float64(n), true
}
