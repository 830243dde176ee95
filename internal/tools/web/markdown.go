package web

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var collapseNewlines = regexp.MustCompile(`\n{3,}`)

// htmlToMarkdown renders an HTML document as plain markdown: headings,
// links, emphasis, lists, code, and paragraph breaks. Script, style, and
// head content is dropped.
func htmlToMarkdown(source string) (string, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	renderMarkdown(&sb, doc)
	out := collapseNewlines.ReplaceAllString(sb.String(), "\n\n")
	return strings.TrimSpace(out), nil
}

func renderMarkdown(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := strings.Join(strings.Fields(n.Data), " ")
		if text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head", "noscript", "iframe":
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
			sb.WriteString(strings.Repeat("#", int(n.Data[1]-'0')))
			sb.WriteString(" ")
			renderChildren(sb, n)
			sb.WriteString("\n\n")
			return
		case "p", "div", "section", "article", "tr":
			sb.WriteString("\n")
			renderChildren(sb, n)
			sb.WriteString("\n")
			return
		case "br":
			sb.WriteString("\n")
			return
		case "li":
			sb.WriteString("\n* ")
			renderChildren(sb, n)
			return
		case "ul", "ol":
			renderChildren(sb, n)
			sb.WriteString("\n")
			return
		case "a":
			href := attr(n, "href")
			if href != "" && !strings.HasPrefix(href, "#") {
				var inner strings.Builder
				renderChildren(&inner, n)
				text := strings.TrimSpace(inner.String())
				if text != "" {
					fmt.Fprintf(sb, "[%s](%s) ", text, href)
				}
				return
			}
			renderChildren(sb, n)
			return
		case "img":
			if src := attr(n, "src"); src != "" {
				fmt.Fprintf(sb, "![%s](%s) ", attr(n, "alt"), src)
			}
			return
		case "strong", "b":
			sb.WriteString("**")
			renderChildren(sb, n)
			sb.WriteString("** ")
			return
		case "em", "i":
			sb.WriteString("*")
			renderChildren(sb, n)
			sb.WriteString("* ")
			return
		case "code":
			sb.WriteString("`")
			renderChildren(sb, n)
			sb.WriteString("` ")
			return
		case "pre":
			sb.WriteString("\n```\n")
			sb.WriteString(textContent(n))
			sb.WriteString("\n```\n")
			return
		}
	}
	renderChildren(sb, n)
}

func renderChildren(sb *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderMarkdown(sb, c)
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
