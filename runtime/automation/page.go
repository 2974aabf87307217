package automation

import (
	"bytes"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Page is what an extraction script sees as its argument.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Article string `json:"article"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

func (p *Page) toScript() map[string]any {
	return map[string]any{
		"url":     p.URL,
		"title":   p.Title,
		"article": p.Article,
		"text":    p.Text,
		"html":    p.HTML,
	}
}

// ParsePage builds a Page from an HTML document. The readable article is best
// effort; data pages often have no article at all.
func ParsePage(body []byte, pageURL string) (*Page, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	page := &Page{URL: pageURL, HTML: string(body)}
	page.Title, page.Text = walkText(root)

	if base, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(bytes.NewReader(body), base); err == nil {
			page.Article = strings.TrimSpace(article.TextContent)
			if page.Title == "" {
				page.Title = article.Title
			}
		}
	}
	return page, nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"pre": true, "section": true, "article": true, "ul": true, "ol": true,
	"dt": true, "dd": true,
}

// walkText returns the document title and its visible text, one line per block.
func walkText(root *html.Node) (string, string) {
	var title string
	var b strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				if n.Data == "head" {
					for c := n.FirstChild; c != nil; c = c.NextSibling {
						if c.Type == html.ElementNode && c.Data == "title" && c.FirstChild != nil {
							title = strings.TrimSpace(c.FirstChild.Data)
						}
					}
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				b.WriteString(s)
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	walk(root)

	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return title, strings.Join(out, "\n")
}
