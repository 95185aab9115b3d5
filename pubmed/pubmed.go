// Package pubmed is a client for the NCBI E-utilities API. It searches the
// PubMed index and fetches article metadata, throttled to stay inside NCBI's
// published request limits.
package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweetpotato0/blackwell/pkg/logging"
)

const defaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// Sort orders for search results.
const (
	SortRelevance = "relevance"
	SortPubDate   = "pub_date"
)

// SearchOptions narrows a PubMed query.
type SearchOptions struct {
	MaxResults int
	YearsBack  int
	Sort       string
}

// Article is the subset of PubMed metadata surfaced to the research agent.
type Article struct {
	PMID     string
	Title    string
	Abstract string
	Journal  string
	Year     string
	Authors  []string
	DOI      string
}

// Config holds client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Email   string
	Client  *http.Client
	// RequestsPerSecond defaults to 3, NCBI's limit for unkeyed clients.
	RequestsPerSecond float64
}

// Option customizes the client.
type Option func(*Config)

// WithBaseURL overrides the E-utilities endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(cfg *Config) {
		if u != "" {
			cfg.BaseURL = u
		}
	}
}

// WithAPIKey attaches an NCBI API key, which raises the rate limit to 10 rps.
func WithAPIKey(key string) Option {
	return func(cfg *Config) {
		cfg.APIKey = key
		if key != "" && cfg.RequestsPerSecond < 10 {
			cfg.RequestsPerSecond = 10
		}
	}
}

// WithEmail sets the contact email NCBI asks heavy users to provide.
func WithEmail(email string) Option {
	return func(cfg *Config) { cfg.Email = email }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *Config) {
		if c != nil {
			cfg.Client = c
		}
	}
}

// Client talks to the E-utilities API.
type Client struct {
	baseURL string
	apiKey  string
	email   string
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a Client.
func New(opts ...Option) *Client {
	cfg := Config{
		BaseURL:           defaultBaseURL,
		RequestsPerSecond: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		email:   cfg.Email,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

type esearchResponse struct {
	ESearchResult struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// Search returns the PMIDs matching the query.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty pubmed query")
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}

	term := query
	if opts.YearsBack > 0 {
		now := time.Now().Year()
		term = fmt.Sprintf("(%s) AND %d:%d[dp]", query, now-opts.YearsBack, now)
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(opts.MaxResults))
	params.Set("retmode", "json")
	if opts.Sort != "" && opts.Sort != SortRelevance {
		params.Set("sort", opts.Sort)
	}

	body, err := c.get(ctx, "/esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("pubmed search: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}

	logging.WithComponent("pubmed").Debug("search complete",
		"query", query, "count", resp.ESearchResult.Count, "returned", len(resp.ESearchResult.IDList))
	return resp.ESearchResult.IDList, nil
}

// efetch XML shapes, trimmed to the fields we read.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation struct {
		PMID    string `xml:"PMID"`
		Article struct {
			Title    string `xml:"ArticleTitle"`
			Abstract struct {
				Text []abstractText `xml:"AbstractText"`
			} `xml:"Abstract"`
			Journal struct {
				Title string `xml:"Title"`
				Issue struct {
					PubDate struct {
						Year string `xml:"Year"`
					} `xml:"PubDate"`
				} `xml:"JournalIssue"`
			} `xml:"Journal"`
			AuthorList struct {
				Authors []struct {
					LastName string `xml:"LastName"`
					Initials string `xml:"Initials"`
				} `xml:"Author"`
			} `xml:"AuthorList"`
			ELocationIDs []struct {
				Type  string `xml:"EIdType,attr"`
				Value string `xml:",chardata"`
			} `xml:"ELocationID"`
		} `xml:"Article"`
	} `xml:"MedlineCitation"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	Value string `xml:",chardata"`
}

// FetchDetails retrieves article metadata for the given PMIDs.
func (c *Client) FetchDetails(ctx context.Context, pmids []string) ([]Article, error) {
	if len(pmids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")

	body, err := c.get(ctx, "/efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("pubmed fetch: %w", err)
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode efetch response: %w", err)
	}

	articles := make([]Article, 0, len(set.Articles))
	for _, raw := range set.Articles {
		art := Article{
			PMID:    raw.Citation.PMID,
			Title:   strings.TrimSpace(raw.Citation.Article.Title),
			Journal: strings.TrimSpace(raw.Citation.Article.Journal.Title),
			Year:    raw.Citation.Article.Journal.Issue.PubDate.Year,
		}

		var parts []string
		for _, t := range raw.Citation.Article.Abstract.Text {
			text := strings.TrimSpace(t.Value)
			if text == "" {
				continue
			}
			if t.Label != "" {
				text = t.Label + ": " + text
			}
			parts = append(parts, text)
		}
		art.Abstract = strings.Join(parts, "\n")

		for _, a := range raw.Citation.Article.AuthorList.Authors {
			if a.LastName == "" {
				continue
			}
			name := a.LastName
			if a.Initials != "" {
				name += " " + a.Initials
			}
			art.Authors = append(art.Authors, name)
		}

		for _, loc := range raw.Citation.Article.ELocationIDs {
			if loc.Type == "doi" {
				art.DOI = strings.TrimSpace(loc.Value)
				break
			}
		}

		articles = append(articles, art)
	}
	return articles, nil
}

// SearchArticles combines Search and FetchDetails.
func (c *Client) SearchArticles(ctx context.Context, query string, opts SearchOptions) ([]Article, error) {
	pmids, err := c.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return c.FetchDetails(ctx, pmids)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	if c.email != "" {
		params.Set("email", c.email)
	}
	params.Set("tool", "blackwell")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eutils status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Citation renders the reference-list form of an article.
func (a Article) Citation() string {
	var sb strings.Builder
	switch {
	case len(a.Authors) == 0:
	case len(a.Authors) <= 3:
		sb.WriteString(strings.Join(a.Authors, ", "))
		sb.WriteString(". ")
	default:
		sb.WriteString(a.Authors[0])
		sb.WriteString(" et al. ")
	}
	sb.WriteString(a.Title)
	if a.Journal != "" {
		sb.WriteString(" ")
		sb.WriteString(a.Journal)
	}
	if a.Year != "" {
		sb.WriteString(" (")
		sb.WriteString(a.Year)
		sb.WriteString(")")
	}
	if a.PMID != "" {
		sb.WriteString(". PMID: ")
		sb.WriteString(a.PMID)
	}
	if a.DOI != "" {
		sb.WriteString(". doi:")
		sb.WriteString(a.DOI)
	}
	return sb.String()
}

// FormatArticles renders articles as observation text for the research agent.
func FormatArticles(articles []Article) string {
	if len(articles) == 0 {
		return "No PubMed articles matched the query."
	}
	var sb strings.Builder
	for i, a := range articles {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, a.Citation())
		if a.Abstract != "" {
			sb.WriteString("\nAbstract: ")
			sb.WriteString(a.Abstract)
		}
	}
	return sb.String()
}
