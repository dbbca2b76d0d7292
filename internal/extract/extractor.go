package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// FetchStatus classifies the outcome of a single page fetch.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchFailed  FetchStatus = "failed"
	FetchTimeout FetchStatus = "timeout"
	FetchBlocked FetchStatus = "blocked"
)

// Metadata carries document-level details pulled from head tags.
type Metadata struct {
	Title       string
	Author      string
	PublishedAt *time.Time
	ImageURL    string
}

// Content is the normalized extraction of one page.
type Content struct {
	URL         string
	Snippet     string
	Headings    []string
	Images      []string
	Metadata    Metadata
	WordCount   int
	FetchStatus FetchStatus
	FetchError  string
}

// Options tunes fetching and snippet production.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int           // retries for generic failures; blocked/timeout are never retried
	RetryDelay    time.Duration // grows linearly per attempt
	Concurrency   int           // fetches in flight per batch
	SnippetWords  int           // target word budget
	MinSnippetLen int           // minimum rune length before a sentence boundary counts
	UserAgent     string
}

// DefaultOptions matches the usual crawl budget: 10s fetch timeout,
// batches of 3, 300-word snippets.
func DefaultOptions() Options {
	return Options{
		Timeout:       10 * time.Second,
		MaxRetries:    2,
		RetryDelay:    time.Second,
		Concurrency:   3,
		SnippetWords:  300,
		MinSnippetLen: 100,
		UserAgent:     "ResearchRadar/1.0",
	}
}

// contentSelectors is the priority list tried for main-content text.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	".article-body",
	".post-content",
	".entry-content",
	".content",
	"#content",
}

const minContentChars = 200

// Extractor fetches pages and reduces them to scored-ready snippets.
type Extractor struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

// New builds an extractor; a nil client gets a timeout-bounded default.
func New(client *http.Client, opts Options, logger *slog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.SnippetWords <= 0 {
		opts.SnippetWords = DefaultOptions().SnippetWords
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Extractor{client: client, opts: opts, logger: logger}
}

// Extract fetches one URL and parses it into Content. The returned
// Content always has FetchStatus set; errors are folded into it rather
// than returned, so a batch can keep its failure budget per URL.
func (e *Extractor) Extract(ctx context.Context, pageURL string) Content {
	content := Content{URL: pageURL}

	var doc *goquery.Document
	attempts := e.opts.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		var status FetchStatus
		var err error
		doc, status, err = e.fetch(ctx, pageURL)
		if err == nil {
			content.FetchStatus = FetchSuccess
			break
		}

		content.FetchStatus = status
		content.FetchError = err.Error()

		// Blocked and timed-out fetches are permanent for this run.
		if status == FetchBlocked || status == FetchTimeout || attempt == attempts {
			return content
		}

		select {
		case <-ctx.Done():
			content.FetchStatus = FetchTimeout
			content.FetchError = ctx.Err().Error()
			return content
		case <-time.After(e.opts.RetryDelay * time.Duration(attempt)):
		}
	}

	e.parse(doc, &content)
	return content
}

// ExtractMultiple processes URLs in batches of Concurrency fetches,
// moving to the next batch only once the current one completes. Results
// preserve the input order.
func (e *Extractor) ExtractMultiple(ctx context.Context, urls []string) []Content {
	results := make([]Content, len(urls))

	for start := 0; start < len(urls); start += e.opts.Concurrency {
		end := start + e.opts.Concurrency
		if end > len(urls) {
			end = len(urls)
		}

		group, groupCtx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			group.Go(func() error {
				results[i] = e.Extract(groupCtx, urls[i])
				return nil
			})
		}
		_ = group.Wait()

		if ctx.Err() != nil {
			break
		}
	}

	return results
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) (*goquery.Document, FetchStatus, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, FetchFailed, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, FetchTimeout, fmt.Errorf("fetch timed out: %w", err)
		}
		return nil, FetchFailed, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, FetchBlocked, fmt.Errorf("access blocked: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, FetchFailed, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, FetchFailed, fmt.Errorf("parse document: %w", err)
	}

	return doc, FetchSuccess, nil
}

func (e *Extractor) parse(doc *goquery.Document, content *Content) {
	if doc == nil {
		return
	}

	content.Metadata = extractMetadata(doc)

	doc.Find("script, style, nav, footer, header, aside").Remove()

	doc.Find("h1, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" && len(content.Headings) < 10 {
			content.Headings = append(content.Headings, text)
		}
	})

	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok && strings.HasPrefix(src, "http") && len(content.Images) < 5 {
			content.Images = append(content.Images, src)
		}
	})

	text := mainContentText(doc)
	words := strings.Fields(text)
	content.WordCount = len(words)
	content.Snippet = makeSnippet(words, e.opts.SnippetWords, e.opts.MinSnippetLen)
}

// mainContentText tries the selector priority list and falls back to the
// full body when none yields enough text.
func mainContentText(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		text := collapseWhitespace(sel.Text())
		if len(text) >= minContentChars {
			return text
		}
	}
	return collapseWhitespace(doc.Find("body").Text())
}

// makeSnippet truncates to the word budget, then backs up to the nearest
// sentence boundary past the minimum length; otherwise hard-truncates
// with an ellipsis.
func makeSnippet(words []string, budget, minLen int) string {
	if len(words) == 0 {
		return ""
	}
	if len(words) <= budget {
		return strings.Join(words, " ")
	}

	truncated := strings.Join(words[:budget], " ")
	if idx := lastSentenceEnd(truncated); idx >= minLen {
		return truncated[:idx+1]
	}
	return truncated + "..."
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractMetadata(doc *goquery.Document) Metadata {
	meta := Metadata{}

	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		meta.Title = strings.TrimSpace(title)
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		meta.Author = strings.TrimSpace(author)
	}

	if img, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		meta.ImageURL = strings.TrimSpace(img)
	}

	if published, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(published)); err == nil {
			meta.PublishedAt = &parsed
		}
	}

	return meta
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
