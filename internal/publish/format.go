package publish

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Character limits per platform.
var limits = map[string]int{
	"twitter":   280,
	"linkedin":  3000,
	"facebook":  63206,
	"instagram": 2200,
	"pinterest": 500,
}

const ellipsis = "…"

var markdown = goldmark.New()

// PlainText renders markdown as the plain text social platforms accept.
func PlainText(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				sb.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					sb.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				sb.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				sb.Write(node.URL(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			if !entering {
				sb.WriteString(" (" + string(node.Destination) + ")")
			}
		case *ast.ListItem:
			if entering {
				sb.WriteString("• ")
			} else {
				ensureNewline(&sb)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					sb.Write(seg.Value(source))
				}
				sb.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		case *ast.List:
			if !entering {
				ensureNewline(&sb)
				sb.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering && n.Parent() != nil && n.Parent().Kind() != ast.KindListItem {
				ensureNewline(&sb)
				sb.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(collapseBlankLines(sb.String()))
}

// Compose produces the final post text: plain content followed by hashtags,
// truncated to the platform limit. Hashtags are never cut.
func Compose(platform, content string, hashtags []string) (string, error) {
	body := PlainText(content)
	tags := strings.Join(hashtags, " ")

	limit, ok := limits[platform]
	if !ok {
		return joinPost(body, tags), nil
	}

	full := joinPost(body, tags)
	if runeLen(full) <= limit {
		return full, nil
	}

	reserved := 0
	if tags != "" {
		reserved = runeLen(tags) + 2
	}
	room := limit - reserved - runeLen(ellipsis)
	if room <= 0 {
		return "", fmt.Errorf("hashtags alone exceed the %d character limit of %s", limit, platform)
	}
	return joinPost(truncateWords(body, room)+ellipsis, tags), nil
}

func joinPost(body, tags string) string {
	switch {
	case tags == "":
		return body
	case body == "":
		return tags
	default:
		return body + "\n\n" + tags
	}
}

func truncateWords(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndexAny(cut, " \n"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \n.,;:")
}

func ensureNewline(sb *strings.Builder) {
	s := sb.String()
	if len(s) > 0 && s[len(s)-1] != '\n' {
		sb.WriteByte('\n')
	}
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

func runeLen(s string) int {
	return len([]rune(s))
}
