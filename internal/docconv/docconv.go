// Package docconv extracts analyzable plain text from HTML and text documents.
package docconv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const maxFetchBytes = 10 * 1024 * 1024

var fetchClient = &http.Client{Timeout: 15 * time.Second}

// Result is the text content recovered from a document.
type Result struct {
	Title     string `json:"title,omitempty"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated,omitempty"`
}

// IsConvertible reports whether a content type can be turned into text here.
func IsConvertible(contentType string) bool {
	switch {
	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml+xml"),
		strings.Contains(contentType, "text/plain"):
		return true
	default:
		return false
	}
}

// FromHTML extracts the readable text from an HTML document. maxLen of 0
// means no length cap.
func FromHTML(htmlStr string, maxLen int) *Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return truncated(&Result{Text: normalizeWhitespace(stripHTMLTags(htmlStr))}, maxLen)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, nav, header, footer, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	// Prefer the main content region when one is substantial enough.
	var text string
	for _, selector := range []string{"main", "article", "[role='main']", ".content", "#content"} {
		content := doc.Find(selector).First().Text()
		if len(content) > 100 {
			text = content
			break
		}
	}
	if text == "" {
		text = doc.Find("body").Text()
	}
	if text == "" {
		text = doc.Text()
	}

	return truncated(&Result{Title: title, Text: normalizeWhitespace(text)}, maxLen)
}

// FromReader converts a document stream according to its content type.
func FromReader(r io.Reader, contentType string, maxLen int) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	if strings.Contains(contentType, "html") {
		return FromHTML(string(data), maxLen), nil
	}
	return truncated(&Result{Text: normalizeWhitespace(string(data))}, maxLen), nil
}

// FetchURL downloads a page and extracts its text content.
func FetchURL(ctx context.Context, rawURL string, maxLen int) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("only HTTP/HTTPS URLs are supported")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return FromReader(resp.Body, resp.Header.Get("Content-Type"), maxLen)
}

func truncated(r *Result, maxLen int) *Result {
	if maxLen <= 0 {
		return r
	}
	runes := []rune(r.Text)
	if len(runes) <= maxLen {
		return r
	}
	r.Text = string(runes[:maxLen]) + "\n\n... [content truncated]"
	r.Truncated = true
	return r
}

// stripHTMLTags is a fallback regex-based HTML stripper.
func stripHTMLTags(html string) string {
	scriptRe := regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	html = scriptRe.ReplaceAllString(html, "")

	tagRe := regexp.MustCompile(`<[^>]+>`)
	return tagRe.ReplaceAllString(html, " ")
}

var (
	hSpaceRe  = regexp.MustCompile(`[ \t\r\f]+`)
	nlSpaceRe = regexp.MustCompile(` ?\n ?`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

// normalizeWhitespace collapses runs of spaces but keeps paragraph breaks.
func normalizeWhitespace(text string) string {
	text = hSpaceRe.ReplaceAllString(text, " ")
	text = nlSpaceRe.ReplaceAllString(text, "\n")
	text = blankRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
