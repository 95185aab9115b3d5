package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/blackwell/pubmed"
	"github.com/sweetpotato0/blackwell/retrieval"
	"github.com/sweetpotato0/blackwell/tool"
	"github.com/sweetpotato0/blackwell/webfetch"
)

// Tool budgets per sub-agent flavor.
const (
	KnowledgeBudget  = 15
	LiteratureBudget = 30
)

// Default result counts for the knowledge base search tool.
const (
	defaultRetrieveK = 8
	maxRetrieveK     = 20
)

// KnowledgeTools builds the registry for the knowledge sub-agent: local
// document retrieval plus batched web fetching.
func KnowledgeTools(retriever *retrieval.Retriever, fetcher *webfetch.Fetcher) *tool.Registry {
	registry := tool.NewRegistry()

	registry.Register(&tool.Tool{
		Name:        "retrieve_documents",
		Description: "Search the local knowledge base of medical literature. Returns the most relevant passages with their source documents.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "Focused medical search query", Required: true},
			{Name: "k", Type: "number", Description: "Number of passages to return (max 20)", Default: defaultRetrieveK},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			k := intArg(args, "k", defaultRetrieveK)
			if k > maxRetrieveK {
				k = maxRetrieveK
			}
			passages, err := retriever.Search(ctx, query, k)
			if err != nil {
				return "", fmt.Errorf("retrieve documents: %w", err)
			}
			return retrieval.FormatPassages(passages), nil
		},
	})

	registry.Register(&tool.Tool{
		Name:        "web_crawl",
		Description: "Fetch readable content from trusted medical websites (MedlinePlus, Mayo Clinic, CDC, NIH). Pass multiple URLs comma-separated to fetch them in one call.",
		Parameters: []tool.Parameter{
			{Name: "urls", Type: "string", Description: "Comma-separated list of URLs to fetch", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			raw, _ := args["urls"].(string)
			var urls []string
			for _, u := range strings.Split(raw, ",") {
				if u = strings.TrimSpace(u); u != "" {
					urls = append(urls, u)
				}
			}
			if len(urls) == 0 {
				return "", fmt.Errorf("no URLs provided")
			}
			return webfetch.FormatResults(fetcher.FetchAll(ctx, urls)), nil
		},
	})

	return registry
}

// LiteratureTools builds the registry for the literature sub-agent: three
// PubMed search tools scoped by recency window.
func LiteratureTools(client *pubmed.Client) *tool.Registry {
	registry := tool.NewRegistry()

	registry.Register(&tool.Tool{
		Name:        "research_treatment_options",
		Description: "Research treatment options for a diagnosis on PubMed. Searches recent clinical trials, systematic reviews, and meta-analyses.",
		Parameters: []tool.Parameter{
			{Name: "diagnosis", Type: "string", Description: "The medical diagnosis or condition to research", Required: true},
			{Name: "max_results", Type: "number", Description: "Maximum number of articles (max 20)", Default: 10},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			diagnosis, _ := args["diagnosis"].(string)
			query := fmt.Sprintf("%s[Title/Abstract] AND treatment[Title/Abstract] AND "+
				"((systematic review[Publication Type]) OR (meta-analysis[Publication Type]) OR "+
				"(clinical trial[Publication Type]) OR (randomized controlled trial[Publication Type]))",
				diagnosis)
			articles, err := client.SearchArticles(ctx, query, pubmed.SearchOptions{
				MaxResults: clampResults(intArg(args, "max_results", 10), 20),
				YearsBack:  5,
			})
			if err != nil {
				return "", fmt.Errorf("research treatment options: %w", err)
			}
			return pubmed.FormatArticles(articles), nil
		},
	})

	registry.Register(&tool.Tool{
		Name:        "research_specific_treatment_efficacy",
		Description: "Research the efficacy of one specific treatment for a diagnosis. Useful when you have a treatment hypothesis and want evidence.",
		Parameters: []tool.Parameter{
			{Name: "diagnosis", Type: "string", Description: "The medical diagnosis or condition", Required: true},
			{Name: "treatment", Type: "string", Description: "The specific treatment to research", Required: true},
			{Name: "max_results", Type: "number", Description: "Maximum number of articles (max 20)", Default: 8},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			diagnosis, _ := args["diagnosis"].(string)
			treatment, _ := args["treatment"].(string)
			query := fmt.Sprintf("%s[Title/Abstract] AND %s[Title/Abstract] AND (treatment[Title/Abstract] OR therapy[Title/Abstract])",
				diagnosis, treatment)
			articles, err := client.SearchArticles(ctx, query, pubmed.SearchOptions{
				MaxResults: clampResults(intArg(args, "max_results", 8), 20),
				YearsBack:  5,
			})
			if err != nil {
				return "", fmt.Errorf("research treatment efficacy: %w", err)
			}
			return pubmed.FormatArticles(articles), nil
		},
	})

	registry.Register(&tool.Tool{
		Name:        "get_treatment_guidelines",
		Description: "Find clinical practice guidelines and consensus statements from medical societies for treating a diagnosis.",
		Parameters: []tool.Parameter{
			{Name: "diagnosis", Type: "string", Description: "The medical diagnosis or condition", Required: true},
			{Name: "max_results", Type: "number", Description: "Maximum number of guidelines (max 10)", Default: 5},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			diagnosis, _ := args["diagnosis"].(string)
			query := fmt.Sprintf("%s[Title/Abstract] AND (guideline[Publication Type] OR practice guideline[Publication Type] OR consensus[Title/Abstract] OR recommendation[Title/Abstract])",
				diagnosis)
			articles, err := client.SearchArticles(ctx, query, pubmed.SearchOptions{
				MaxResults: clampResults(intArg(args, "max_results", 5), 10),
				YearsBack:  3,
			})
			if err != nil {
				return "", fmt.Errorf("get treatment guidelines: %w", err)
			}
			return pubmed.FormatArticles(articles), nil
		},
	})

	return registry
}

// intArg reads a numeric tool argument, tolerating the float64 that JSON
// decoding produces.
func intArg(args map[string]any, name string, fallback int) int {
	switch v := args[name].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return fallback
}

func clampResults(n, max int) int {
	if n > max {
		return max
	}
	if n < 1 {
		return 1
	}
	return n
}
