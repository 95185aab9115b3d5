// Package webfetch downloads web pages and extracts their readable text for
// use as research evidence. Failures are reported as structured results so a
// single unreachable site never aborts a research pass.
package webfetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sweetpotato0/blackwell/pkg/logging"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultMaxContent = 15000

	// Some medical sites refuse requests without a browser user agent.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Result is the outcome of fetching one URL.
type Result struct {
	URL          string `json:"url"`
	SourceDomain string `json:"source_domain"`
	Title        string `json:"title,omitempty"`
	Content      string `json:"content,omitempty"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// Config controls fetch behaviour.
type Config struct {
	Timeout    time.Duration
	MaxContent int
	Client     *http.Client
}

// Option customizes the fetcher.
type Option func(*Config)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.Timeout = d
		}
	}
}

// WithMaxContent caps extracted text length in characters.
func WithMaxContent(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxContent = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *Config) {
		if c != nil {
			cfg.Client = c
		}
	}
}

// Fetcher downloads pages and extracts readable text.
type Fetcher struct {
	client     *http.Client
	maxContent int
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	cfg := Config{
		Timeout:    defaultTimeout,
		MaxContent: defaultMaxContent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Fetcher{
		client:     client,
		maxContent: cfg.MaxContent,
	}
}

// Fetch downloads one URL and extracts its text. Network or HTTP failures are
// returned inside the Result, never as an error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Result {
	result := Result{URL: rawURL, SourceDomain: domainOf(rawURL)}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("invalid URL: %v", err)
		return result
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		logging.WithComponent("webfetch").Warn("fetch failed", "url", rawURL, "error", err)
		result.Error = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		return result
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("parse HTML: %v", err)
		return result
	}

	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	result.Content = f.extract(doc)
	result.Success = result.Content != ""
	if !result.Success {
		result.Error = "no readable content extracted"
	}
	return result
}

// FetchAll fetches several URLs sequentially, preserving order. Individual
// failures appear as unsuccessful results.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, 0, len(urls))
	for _, u := range urls {
		if ctx.Err() != nil {
			results = append(results, Result{URL: u, SourceDomain: domainOf(u), Error: ctx.Err().Error()})
			continue
		}
		results = append(results, f.Fetch(ctx, u))
	}
	return results
}

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// extract strips page chrome and returns the collapsed body text, capped at
// maxContent characters.
func (f *Fetcher) extract(doc *goquery.Document) string {
	doc.Find("script,style,nav,header,footer,aside,form,iframe,noscript").Remove()

	root := doc.Find("main,article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var out []string
	root.Find("h1,h2,h3,h4,p,li,table").Each(func(i int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+strings.TrimSpace(s.Text()))
		case "h2":
			out = append(out, "## "+strings.TrimSpace(s.Text()))
		case "h3":
			out = append(out, "### "+strings.TrimSpace(s.Text()))
		case "h4":
			out = append(out, "#### "+strings.TrimSpace(s.Text()))
		case "p":
			out = append(out, strings.TrimSpace(s.Text()))
		case "li":
			out = append(out, "- "+strings.TrimSpace(s.Text()))
		case "table":
			out = append(out, parseTable(s))
		}
	})

	text := strings.Join(out, "\n\n")
	if text == "" {
		text = root.Text()
	}
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if len(text) > f.maxContent {
		text = text[:f.maxContent] + "\n\n[content truncated]"
	}
	return text
}

func parseTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(i int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(j int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// FormatResults renders fetch outcomes as observation text for the research
// agent, labelled per source domain.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No pages were fetched."
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if r.Success {
			fmt.Fprintf(&sb, "[%s] %s\n%s", r.SourceDomain, r.Title, r.Content)
		} else {
			fmt.Fprintf(&sb, "[%s] fetch failed: %s", r.SourceDomain, r.Error)
		}
	}
	return sb.String()
}
