package render

import (
	"bytes"
	"regexp"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Button syntax: [!button|Label](URL).
const buttonPrefix = "[!button|"

// buttonPattern matches button syntax in the plain-text part.
var buttonPattern = regexp.MustCompile(`\[!button\|([^\]]*)\]\(([^)]*)\)`)

// plainButtons rewrites buttons as "Label: URL" for text output.
func plainButtons(s string) string {
	return buttonPattern.ReplaceAllString(s, "$1: $2")
}

var kindButton = ast.NewNodeKind("Button")

type buttonNode struct {
	ast.BaseInline
	URL   []byte
	Label []byte
}

func (n *buttonNode) Kind() ast.NodeKind { return kindButton }

func (n *buttonNode) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"URL":   string(n.URL),
		"Label": string(n.Label),
	}, nil)
}

type buttonParser struct{}

func (buttonParser) Trigger() []byte { return []byte{'['} }

func (buttonParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, []byte(buttonPrefix)) {
		return nil
	}

	labelEnd := bytes.IndexByte(line[len(buttonPrefix):], ']')
	if labelEnd == -1 {
		return nil
	}
	labelEnd += len(buttonPrefix)
	if labelEnd+1 >= len(line) || line[labelEnd+1] != '(' {
		return nil
	}

	urlStart := labelEnd + 2
	urlEnd := bytes.IndexByte(line[urlStart:], ')')
	if urlEnd == -1 {
		return nil
	}
	urlEnd += urlStart

	node := &buttonNode{
		Label: line[len(buttonPrefix):labelEnd],
		URL:   line[urlStart:urlEnd],
	}
	block.Advance(urlEnd + 1)
	return node
}

type buttonRenderer struct {
	html.Config
}

func (r *buttonRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindButton, r.render)
}

func (r *buttonRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*buttonNode)

	url := n.URL
	if !html.IsDangerousURL(url) {
		url = util.URLEscape(url, true)
	} else {
		url = nil
	}

	_, _ = w.WriteString(`<a href="`)
	_, _ = w.Write(util.EscapeHTML(url))
	_, _ = w.WriteString(`" class="btn">`)
	_, _ = w.Write(util.EscapeHTML(n.Label))
	_, _ = w.WriteString(`</a>`)
	return ast.WalkContinue, nil
}

// buttonExtension adds call-to-action buttons to goldmark.
type buttonExtension struct{}

func (buttonExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(buttonParser{}, 50),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&buttonRenderer{Config: html.NewConfig()}, 50),
	))
}
