package crawl

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// Render reduces a parsed page to text: "# title", then every heading of the
// content region as a Markdown heading, then every non-empty paragraph.
// When that yields nothing, the page's flattened text is returned instead.
// Render removes script, style and noscript elements from doc.
func Render(doc *html.Node) string {
	stripNonContent(doc)

	var parts []string
	if title := pageTitle(doc); title != "" {
		parts = append(parts, "# "+title)
	}

	region := findFirst(doc, atom.Main)
	if region == nil {
		region = findFirst(doc, atom.Article)
	}
	if region == nil {
		region = doc
	}

	for _, h := range findAll(region, func(n *html.Node) bool { return headingLevels[n.DataAtom] > 0 }) {
		text := flatten(h, "")
		if text == "" {
			continue
		}
		parts = append(parts, "\n"+strings.Repeat("#", headingLevels[h.DataAtom])+" "+text+"\n")
	}
	for _, p := range findAll(region, func(n *html.Node) bool { return n.DataAtom == atom.P }) {
		if text := flatten(p, " "); text != "" {
			parts = append(parts, text)
		}
	}

	if out := Collapse(strings.Join(parts, "\n\n")); out != "" {
		return out
	}
	return flatten(doc, "\n")
}

// Collapse shrinks runs of three or more newlines to two and trims the result.
func Collapse(s string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}

func stripNonContent(doc *html.Node) {
	doomed := findAll(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// pageTitle returns the first <title> when it holds a single piece of text.
func pageTitle(doc *html.Node) string {
	t := findFirst(doc, atom.Title)
	if t == nil {
		return ""
	}
	n := t
	for n.FirstChild != nil && n.FirstChild == n.LastChild {
		n = n.FirstChild
	}
	if n.Type != html.TextNode {
		return ""
	}
	return strings.TrimSpace(n.Data)
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	if all := findAll(root, func(n *html.Node) bool { return n.DataAtom == a }); len(all) > 0 {
		return all[0]
	}
	return nil
}

// findAll returns matching element descendants of root in document order.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

// flatten joins the trimmed, non-empty text fragments under n with sep.
func flatten(n *html.Node, sep string) string {
	var frags []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				frags = append(frags, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(frags, sep)
}
