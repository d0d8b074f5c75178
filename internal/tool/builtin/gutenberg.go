package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	toolcore "github.com/harunnryd/shiori/internal/tool"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/time/rate"
)

const (
	gutenbergToolName          = "search_gutenberg_books"
	defaultGutenbergBaseURL    = "https://gutendex.com/books"
	defaultGutenbergRateLimit  = 2.0
	defaultGutenbergRateBurst  = 4
	defaultGutenbergMaxResults = 32
	defaultUserAgent           = "Shiori/1.0"
	maxGutenbergResponseBytes  = 4 << 20
)

type gutenbergRequest struct {
	SearchTerms []string `json:"search_terms" jsonschema:"List of search terms to find books (e.g. [\"dickens\", \"great\"] to search for books by Dickens with 'great' in the title)"`
}

type gutendexBook struct {
	ID      int             `json:"id"`
	Title   string          `json:"title"`
	Authors json.RawMessage `json:"authors"`
}

type gutendexResponse struct {
	Count   int            `json:"count"`
	Results []gutendexBook `json:"results"`
}

// Book is the simplified record returned to callers.
type Book struct {
	ID      int             `json:"id"`
	Title   string          `json:"title"`
	Authors json.RawMessage `json:"authors"`
}

func init() {
	toolcore.RegisterBuiltin(gutenbergToolName, func(options toolcore.BuiltinOptions) (toolcore.Tool, error) {
		return NewGutenbergTool(options)
	})
}

// GutenbergTool searches the Project Gutenberg catalog through the Gutendex API.
type GutenbergTool struct {
	Client     *http.Client
	BaseURL    string
	MaxResults int
	UserAgent  string
	Limiter    *rate.Limiter

	schema *jsonschema.Schema
}

func NewGutenbergTool(options toolcore.BuiltinOptions) (*GutenbergTool, error) {
	timeout := options.GutenbergTimeout
	if timeout <= 0 {
		timeout = toolcore.DefaultBuiltinHTTPTimeout
	}

	baseURL := strings.TrimSpace(options.GutenbergBaseURL)
	if baseURL == "" {
		baseURL = defaultGutenbergBaseURL
	}
	if _, err := gutenbergEndpoint(baseURL, "check"); err != nil {
		return nil, err
	}

	limit := options.GutenbergRateLimit
	if limit <= 0 {
		limit = defaultGutenbergRateLimit
	}
	burst := options.GutenbergRateBurst
	if burst <= 0 {
		burst = defaultGutenbergRateBurst
	}

	maxResults := options.GutenbergMaxResults
	if maxResults <= 0 {
		maxResults = defaultGutenbergMaxResults
	}

	userAgent := strings.TrimSpace(options.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	schema, err := gutenbergSchema()
	if err != nil {
		return nil, err
	}

	return &GutenbergTool{
		Client:     &http.Client{Timeout: timeout},
		BaseURL:    baseURL,
		MaxResults: maxResults,
		UserAgent:  userAgent,
		Limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		schema:     schema,
	}, nil
}

func gutenbergSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[gutenbergRequest](nil)
	if err != nil {
		return nil, fmt.Errorf("infer %s schema: %w", gutenbergToolName, err)
	}
	if terms, ok := schema.Properties["search_terms"]; ok {
		terms.MinItems = jsonschema.Ptr(1)
	}
	return schema, nil
}

func (t *GutenbergTool) Name() string { return gutenbergToolName }

func (t *GutenbergTool) Description() string {
	return "Search for books in the Project Gutenberg library."
}

func (t *GutenbergTool) ToolMetadata() toolcore.ToolMetadata {
	return toolcore.ToolMetadata{
		Source: "builtin",
		Capabilities: []string{
			"books.search",
			"http.get",
		},
	}
}

func (t *GutenbergTool) InputSchema() *jsonschema.Schema {
	if t.schema == nil {
		t.schema, _ = gutenbergSchema()
	}
	return t.schema
}

func (t *GutenbergTool) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args gutenbergRequest
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}

	terms := make([]string, 0, len(args.SearchTerms))
	for _, term := range args.SearchTerms {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("search_terms must contain at least one non-empty term")
	}

	books, err := t.search(ctx, strings.Join(terms, " "))
	if err != nil {
		return nil, err
	}
	return json.Marshal(books)
}

func (t *GutenbergTool) search(ctx context.Context, query string) ([]Book, error) {
	endpoint, err := gutenbergEndpoint(t.BaseURL, query)
	if err != nil {
		return nil, err
	}

	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("acquire gutenberg rate limit token: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: toolcore.DefaultBuiltinHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gutenberg request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("gutenberg request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGutenbergResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read gutenberg response: %w", err)
	}

	var payload gutendexResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode gutenberg response: %w", err)
	}

	books := make([]Book, 0, len(payload.Results))
	for _, b := range payload.Results {
		if t.MaxResults > 0 && len(books) == t.MaxResults {
			break
		}
		authors := b.Authors
		if len(authors) == 0 {
			authors = json.RawMessage("[]")
		}
		books = append(books, Book{ID: b.ID, Title: b.Title, Authors: authors})
	}
	return books, nil
}

func gutenbergEndpoint(baseURL, query string) (string, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultGutenbergBaseURL
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid gutenberg endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return "", fmt.Errorf("invalid gutenberg endpoint: %q", base)
	}

	q := parsed.Query()
	q.Set("search", query)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}
