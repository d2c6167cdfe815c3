package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	browseTimeout  = 15 * time.Second
	maxExtractText = 15000
	userAgent      = "Mozilla/5.0 (compatible; rys/1.0)"
)

// Browser fetches pages over HTTP and keeps the last page opened by each
// user so a later extract call can read it.
type Browser struct {
	client *http.Client

	mu    sync.Mutex
	pages map[string]*page
}

type page struct {
	url string
	doc *goquery.Document
}

func NewBrowser(client *http.Client) *Browser {
	if client == nil {
		client = &http.Client{Timeout: browseTimeout}
	}
	return &Browser{client: client, pages: make(map[string]*page)}
}

// Navigate loads url and makes it the user's current page.
func (b *Browser) Navigate(ctx context.Context, userID, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("url is required for navigate")
	}
	doc, err := b.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.pages[userID] = &page{url: url, doc: doc}
	b.mu.Unlock()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return "opened: " + url, nil
	}
	return fmt.Sprintf("opened: %s (%s)", url, title), nil
}

// Extract returns the visible text of the user's current page, or of the
// elements matching selector.
func (b *Browser) Extract(userID, selector string) (string, error) {
	b.mu.Lock()
	p := b.pages[userID]
	b.mu.Unlock()
	if p == nil {
		return "", errors.New("no page open; call browse with action=navigate first")
	}

	sel := p.doc.Find("body")
	if selector != "" {
		sel = p.doc.Find(selector)
		if sel.Length() == 0 {
			return "no elements match " + selector, nil
		}
	}
	text := truncateRunes(visibleText(sel), maxExtractText)
	if text == "" {
		return "(page has no text)", nil
	}
	return text, nil
}

func (b *Browser) fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	return doc, nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "section": true, "article": true,
	"header": true, "footer": true, "pre": true, "blockquote": true, "table": true,
}

var hiddenElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true, "svg": true, "head": true,
}

// visibleText renders the selection as text, one line per block element,
// skipping scripts and styles.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.Join(strings.Fields(n.Data), " "); s != "" {
				if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
					b.WriteByte(' ')
				}
				b.WriteString(s)
			}
			return
		case html.ElementNode:
			if hiddenElements[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func browseTools(b *Browser) []Tool {
	return []Tool{{
		Name:        "browse",
		Description: "Open a web page and read its text. action=navigate opens url; action=extract returns the current page's text (optionally only elements matching a CSS selector).",
		Params: []Param{
			{Name: "action", Type: String, Description: "navigate | extract", Required: true},
			{Name: "url", Type: String, Description: "Page URL, for navigate"},
			{Name: "selector", Type: String, Description: "CSS selector, for extract"},
		},
		Handler: func(ctx context.Context, c Caller, args Args) (string, error) {
			switch action := args.String("action"); action {
			case "navigate":
				return b.Navigate(ctx, c.UserID, args.String("url"))
			case "extract":
				return b.Extract(c.UserID, args.String("selector"))
			default:
				return fmt.Sprintf("invalid action %q, expected navigate or extract", action), nil
			}
		},
	}}
}
