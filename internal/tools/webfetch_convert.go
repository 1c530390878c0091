package tools

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlToText extracts plain, readable text from an HTML document using a
// real parser rather than regex scraping, skipping script/style/nav/footer
// subtrees and collapsing runs of blank lines.
func htmlToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	skip := map[atom.Atom]bool{
		atom.Script: true, atom.Style: true, atom.Nav: true,
		atom.Footer: true, atom.Header: true, atom.Noscript: true,
	}
	blockTags := map[atom.Atom]bool{
		atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
		atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
		atom.H5: true, atom.H6: true, atom.Tr: true, atom.Blockquote: true,
	}
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.DataAtom] {
			b.WriteString("\n")
		}
	}
	walk(doc)
	return cleanWhitespace(b.String()), nil
}

// htmlToMarkdown converts the common subset of HTML producing readable
// markdown: headings, paragraphs, links, emphasis, lists, and code blocks.
func htmlToMarkdown(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	var walk func(*html.Node)
	skip := map[atom.Atom]bool{atom.Script: true, atom.Style: true, atom.Nav: true, atom.Footer: true}

	headingPrefix := map[atom.Atom]string{
		atom.H1: "\n# ", atom.H2: "\n## ", atom.H3: "\n### ",
		atom.H4: "\n#### ", atom.H5: "\n##### ", atom.H6: "\n###### ",
	}

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.DataAtom] {
			return
		}
		switch {
		case n.Type == html.ElementNode && headingPrefix[n.DataAtom] != "":
			b.WriteString(headingPrefix[n.DataAtom])
			writeChildrenText(&b, n)
			b.WriteString("\n")
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.A:
			href := attr(n, "href")
			b.WriteString("[")
			writeChildrenText(&b, n)
			b.WriteString("](")
			b.WriteString(href)
			b.WriteString(")")
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Strong || n.DataAtom == atom.B):
			b.WriteString("**")
			writeChildrenText(&b, n)
			b.WriteString("**")
			return
		case n.Type == html.ElementNode && (n.DataAtom == atom.Em || n.DataAtom == atom.I):
			b.WriteString("*")
			writeChildrenText(&b, n)
			b.WriteString("*")
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Pre:
			b.WriteString("\n```\n")
			writeChildrenText(&b, n)
			b.WriteString("\n```\n")
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Code:
			b.WriteString("`")
			writeChildrenText(&b, n)
			b.WriteString("`")
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Li:
			b.WriteString("\n- ")
			writeChildrenText(&b, n)
			return
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			b.WriteString("\n")
			return
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text + " ")
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && (n.DataAtom == atom.P || n.DataAtom == atom.Div) {
			b.WriteString("\n")
		}
	}
	walk(doc)
	return cleanWhitespace(b.String()), nil
}

func writeChildrenText(b *strings.Builder, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(c.Data))
		} else {
			writeChildrenText(b, c)
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var reMultiNL = regexp.MustCompile(`\n{3,}`)
var reMultiSP = regexp.MustCompile(`[ \t]{2,}`)

func cleanWhitespace(s string) string {
	s = reMultiSP.ReplaceAllString(s, " ")
	s = reMultiNL.ReplaceAllString(s, "\n\n")
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
