// Package capture renders web pages to screenshots for the document pipeline.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Qualiasolutions/ai-document-processor-sub001/internal/ai"
)

// Config holds browser settings.
type Config struct {
	Headless       bool
	ExecutablePath string
	UserDataDir    string
	Timeout        time.Duration
}

// Options adjusts a single capture.
type Options struct {
	// WaitFor is a CSS selector to wait for before capturing. Empty waits
	// for the body to be ready.
	WaitFor string
	// ViewportOnly captures just the visible viewport instead of the full
	// page height.
	ViewportOnly bool
}

// Capturer drives a headless browser to turn URLs into images.
type Capturer struct {
	config Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Capturer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return &Capturer{config: cfg, logger: logger}
}

// Page renders the URL and returns a PNG screenshot ready for OCR.
func (c *Capturer) Page(ctx context.Context, rawURL string, opts Options) (*ai.Image, error) {
	url := normalizeURL(rawURL)

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	taskCtx, cancelChrome := c.chromeContext(ctx)
	defer cancelChrome()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if opts.WaitFor != "" {
		actions = append(actions, chromedp.WaitVisible(opts.WaitFor, chromedp.ByQuery))
	} else {
		actions = append(actions, chromedp.WaitReady("body"))
	}

	var buf []byte
	if opts.ViewportOnly {
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
	} else {
		// Quality 100 makes FullScreenshot emit PNG.
		actions = append(actions, chromedp.FullScreenshot(&buf, 100))
	}

	start := time.Now()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", url, err)
	}

	c.logger.Info("Captured page",
		zap.String("url", url),
		zap.Int("size_bytes", len(buf)),
		zap.Duration("elapsed", time.Since(start)))
	return &ai.Image{MimeType: "image/png", Data: buf}, nil
}

// Text returns the rendered text of a page. Useful for pages that only
// produce their content from script.
func (c *Capturer) Text(ctx context.Context, rawURL, selector string) (string, error) {
	url := normalizeURL(rawURL)
	if selector == "" {
		selector = "body"
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	taskCtx, cancelChrome := c.chromeContext(ctx)
	defer cancelChrome()

	var text string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return text, nil
}

func (c *Capturer) chromeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if c.config.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if c.config.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(c.config.ExecutablePath))
	}
	if c.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(c.config.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		taskCancel()
		allocCancel()
	}
	return taskCtx, cancel
}

func normalizeURL(url string) string {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "https://" + url
	}
	return url
}
