// Package scrape fetches city service pages and extracts their text for
// ingestion. HTML parsing mirrors what the offline scraper produces, so
// pages ingested live and pages loaded from raw data files chunk the same
// way.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cityrag/backend/internal/corpus"
	"github.com/cityrag/backend/pkg/logger"
)

var whitespaceRE = regexp.MustCompile(`\s+`)

type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchPage downloads a page and extracts it into a document ready for
// ingestion.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (corpus.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return corpus.Document{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "cityrag-bot/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return corpus.Document{}, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return corpus.Document{}, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return corpus.Document{}, fmt.Errorf("failed to read page body: %w", err)
	}

	doc, err := ExtractPage(pageURL, string(body))
	if err != nil {
		return corpus.Document{}, err
	}

	logger.Info("Page scraped",
		zap.String("url", pageURL),
		zap.Int("content_length", doc.ContentLength),
	)
	return doc, nil
}

// ExtractPage turns raw HTML into a document: boilerplate elements are
// stripped and body text is whitespace-normalized.
func ExtractPage(pageURL, html string) (corpus.Document, error) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return corpus.Document{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	parsed.Find("script, style, nav, footer, header, aside").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	text := whitespaceRE.ReplaceAllString(parsed.Find("body").Text(), " ")
	text = strings.TrimSpace(text)
	if text == "" {
		return corpus.Document{}, fmt.Errorf("no content extracted from %s", pageURL)
	}

	description, _ := parsed.Find(`meta[name="description"]`).Attr("content")

	return corpus.Document{
		URL:           pageURL,
		Title:         extractTitle(parsed),
		Description:   strings.TrimSpace(description),
		Content:       text,
		ContentLength: len(text),
		ScrapedAt:     time.Now().Format(time.RFC3339),
		SourceFile:    "live_scrape",
	}, nil
}

func extractTitle(doc *goquery.Document) string {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = "Untitled"
	}
	return title
}
