package extract

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

// markdownText parses markdown and walks the AST collecting only character
// data, so markers and link targets never reach the chunker.
func markdownText(payload []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(gtext.NewReader(payload))

	var text strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			switch t := n.(type) {
			case *ast.Text:
				text.Write(t.Segment.Value(payload))
				if t.SoftLineBreak() || t.HardLineBreak() {
					text.WriteByte('\n')
				}
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					text.Write(seg.Value(payload))
				}
			}
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote,
			*ast.FencedCodeBlock, *ast.CodeBlock:
			text.WriteString("\n\n")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return text.String(), nil
}
