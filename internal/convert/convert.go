package convert

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Converter turns raw wiki markup into the two cleaned forms the pipeline
// needs: plain text for embedding and lexical match, markdown for LLM
// context.
type Converter interface {
	ToPlainText(rawHTML string) string
	ToMarkdown(rawHTML string) string
}

// HTMLConverter converts wiki storage-format HTML.
type HTMLConverter struct{}

func NewHTMLConverter() *HTMLConverter { return &HTMLConverter{} }

var (
	punctRunRe   = regexp.MustCompile(`([!?.,]){2,}`)
	spaceRunRe   = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	wsRe         = regexp.MustCompile(`\s+`)
)

// ToPlainText extracts visible text, dropping scripts and styles and
// collapsing all whitespace to single spaces.
func (c *HTMLConverter) ToPlainText(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()

	var sb strings.Builder
	for _, n := range doc.Nodes {
		collectText(n, &sb)
	}

	text := wsRe.ReplaceAllString(sb.String(), " ")
	text = punctRunRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// ToMarkdown renders a reduced markdown form: ATX headings, paragraphs,
// lists and emphasis survive; images are dropped and links collapse to
// their visible text.
func (c *HTMLConverter) ToMarkdown(rawHTML string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()

	var sb strings.Builder
	for _, n := range doc.Nodes {
		renderMarkdown(n, &sb)
	}

	return cleanMarkdown(sb.String())
}

// collectText appends the data of every text node, separated by spaces so
// adjacent elements do not run together.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

func renderMarkdown(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(wsRe.ReplaceAllString(n.Data, " "))
		return
	}
	if n.Type != html.ElementNode && n.Type != html.DocumentNode {
		return
	}

	switch n.Data {
	case "script", "style", "img", "head":
		return
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		sb.WriteString("\n\n")
		sb.WriteString(strings.Repeat("#", level))
		sb.WriteByte(' ')
		renderChildren(n, sb)
		sb.WriteString("\n\n")
		return
	case "p", "div", "section", "article", "blockquote":
		sb.WriteString("\n\n")
		renderChildren(n, sb)
		sb.WriteString("\n\n")
		return
	case "br":
		sb.WriteByte('\n')
		return
	case "hr":
		sb.WriteString("\n\n---\n\n")
		return
	case "li":
		sb.WriteString("\n- ")
		renderChildren(n, sb)
		return
	case "ul", "ol":
		renderChildren(n, sb)
		sb.WriteByte('\n')
		return
	case "tr":
		sb.WriteByte('\n')
		renderChildren(n, sb)
		return
	case "td", "th":
		renderChildren(n, sb)
		sb.WriteByte(' ')
		return
	case "strong", "b":
		sb.WriteString("**")
		renderChildren(n, sb)
		sb.WriteString("**")
		return
	case "em", "i":
		sb.WriteByte('*')
		renderChildren(n, sb)
		sb.WriteByte('*')
		return
	case "code":
		sb.WriteByte('`')
		renderChildren(n, sb)
		sb.WriteByte('`')
		return
	case "a":
		// link text only, no URL
		renderChildren(n, sb)
		return
	}
	renderChildren(n, sb)
}

func renderChildren(n *html.Node, sb *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		renderMarkdown(child, sb)
	}
}

func cleanMarkdown(md string) string {
	md = punctRunRe.ReplaceAllString(md, "$1")
	md = spaceRunRe.ReplaceAllString(md, " ")

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	md = strings.Join(lines, "\n")

	md = blankLinesRe.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}
