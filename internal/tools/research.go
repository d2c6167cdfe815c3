package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultSearchPage = "https://html.duckduckgo.com/html/?q="

// Search queries a JSON search API and falls back to scraping a search page
// through the browser when no API is configured.
type Search struct {
	client  *http.Client
	apiURL  string
	apiKey  string
	browser *Browser // nil disables the fallback
	pageURL string
}

func NewSearch(client *http.Client, apiURL, apiKey string, browser *Browser) *Search {
	if client == nil {
		client = &http.Client{Timeout: browseTimeout}
	}
	return &Search{client: client, apiURL: apiURL, apiKey: apiKey, browser: browser, pageURL: defaultSearchPage}
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Search) Query(ctx context.Context, userID, query string, num int) (string, error) {
	num = min(20, max(1, num))
	if s.apiURL != "" && s.apiKey != "" {
		return s.queryAPI(ctx, query, num)
	}
	if s.browser != nil {
		if _, err := s.browser.Navigate(ctx, userID, s.pageURL+url.QueryEscape(query)); err != nil {
			return "", err
		}
		text, err := s.browser.Extract(userID, "")
		if err != nil {
			return "", err
		}
		return strings.Join(strings.Fields(truncateRunes(text, 6000)), " "), nil
	}
	return "", errors.New("no search API configured and the browser is disabled; set search.api_url and search.api_key")
}

func (s *Search) queryAPI(ctx context.Context, query string, num int) (string, error) {
	u, err := url.Parse(s.apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid search.api_url: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", s.apiKey)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decoding search response: %w", err)
	}
	if len(sr.Organic) == 0 {
		return "(no results)", nil
	}
	var b strings.Builder
	for i, o := range sr.Organic {
		if i == num {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s\n   %s", i+1, o.Title, o.Snippet)
		if o.Link != "" {
			fmt.Fprintf(&b, "\n   %s", o.Link)
		}
	}
	return b.String(), nil
}

// Summarize collapses whitespace and cuts text to maxLen runes, clamped to
// [100, 2000].
func Summarize(text string, maxLen int) string {
	maxLen = min(2000, max(100, maxLen))
	cleaned := strings.Join(strings.Fields(text), " ")
	if len([]rune(cleaned)) <= maxLen {
		return cleaned
	}
	return truncateRunes(cleaned, maxLen) + "..."
}

func researchTools(s *Search) []Tool {
	return []Tool{
		{
			Name:        "research_search",
			Description: "Search the web and return the top results with titles and snippets.",
			Params: []Param{
				{Name: "query", Type: String, Description: "Search query", Required: true},
				{Name: "num_results", Type: Integer, Description: "Number of results, 1-20, default 5"},
			},
			Handler: func(ctx context.Context, c Caller, args Args) (string, error) {
				return s.Query(ctx, c.UserID, args.String("query"), args.Int("num_results", 5))
			},
		},
		{
			Name:        "research_summarize",
			Description: "Condense text by collapsing whitespace and truncating it to max_length characters.",
			Params: []Param{
				{Name: "text", Type: String, Description: "Text to condense", Required: true},
				{Name: "max_length", Type: Integer, Description: "Maximum length, 100-2000, default 500"},
			},
			Handler: func(_ context.Context, _ Caller, args Args) (string, error) {
				return Summarize(args.String("text"), args.Int("max_length", 500)), nil
			},
		},
	}
}
