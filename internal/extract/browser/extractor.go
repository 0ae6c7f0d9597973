// Package browser implements ingest.Extractor with a local headless Chrome and
// an LLM that structures the rendered page into the requested schema.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const (
	defaultNavTimeout  = 45 * time.Second
	defaultScrollSteps = 8
	defaultMaxTextRune = 60000
	maxLinks           = 400
	structureMaxTokens = 8192
)

const structureSystemPrompt = `You convert the rendered text and links of web pages into JSON.
Follow the instruction exactly and return a single JSON value that validates
against the provided JSON Schema. Use only information present in the page.
Respond with JSON only, without commentary or code fences.`

// Config controls the headless extractor.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ScrollSteps       int
	ScrollPause       time.Duration
	MaxTextRunes      int
}

// Page is the rendered content of one URL.
type Page struct {
	URL   string
	Text  string
	Links []string
}

type renderFunc func(ctx context.Context, url string) (Page, error)

// Extractor renders pages in headless Chrome and asks the completer to shape them.
type Extractor struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	completer   ingest.Completer
	logger      *zap.Logger
	render      renderFunc
}

// NewChromedp creates a browser extractor backed by chromedp.
func NewChromedp(cfg Config, completer ingest.Completer, logger *zap.Logger) (*Extractor, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	e := &Extractor{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		completer:   completer,
		logger:      logger,
	}
	e.render = e.renderChromedp
	return e, nil
}

// Close cancels the allocator context.
func (e *Extractor) Close() {
	if e.allocCancel != nil {
		e.allocCancel()
	}
}

// Extract renders every requested URL and returns the completer's JSON.
func (e *Extractor) Extract(ctx context.Context, req ingest.ExtractRequest) (json.RawMessage, error) {
	if len(req.URLs) == 0 {
		return nil, errors.New("at least one url required")
	}
	pages := make([]Page, 0, len(req.URLs))
	for _, u := range req.URLs {
		page, err := e.renderLimited(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", u, err)
		}
		pages = append(pages, page)
	}

	user, err := buildUserPrompt(req, pages, e.maxTextRunes())
	if err != nil {
		return nil, err
	}
	out, err := e.completer.Complete(ctx, ingest.CompletionRequest{
		System:    structureSystemPrompt,
		User:      user,
		MaxTokens: structureMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("structure page content: %w", err)
	}
	body := stripCodeFence(out)
	if !json.Valid([]byte(body)) {
		return nil, fmt.Errorf("structured output is not valid JSON")
	}
	return json.RawMessage(body), nil
}

func (e *Extractor) renderLimited(ctx context.Context, url string) (Page, error) {
	if err := e.acquire(ctx); err != nil {
		return Page{}, err
	}
	defer e.release()
	return e.render(ctx, url)
}

func (e *Extractor) renderChromedp(ctx context.Context, url string) (Page, error) {
	taskCtx, taskCancel := chromedp.NewContext(e.allocator)
	defer taskCancel()

	// Tie the tab to the caller's context as well as the allocator.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, e.navTimeout())
	defer cancel()

	var (
		text     string
		links    []string
		finalURL string
	)
	actions := []chromedp.Action{
		e.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		e.scrollAction(),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text),
		chromedp.Evaluate(`Array.from(document.querySelectorAll("a[href]")).map(a => a.href)`, &links),
	}
	start := time.Now()
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return Page{}, fmt.Errorf("chromedp run: %w", err)
	}
	if finalURL == "" {
		finalURL = url
	}
	e.logger.Debug("page rendered",
		zap.String("url", finalURL),
		zap.Int("text_len", len(text)),
		zap.Int("links", len(links)),
		zap.Duration("duration", time.Since(start)),
	)
	return Page{URL: finalURL, Text: text, Links: uniqueLinks(links)}, nil
}

func (e *Extractor) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if e.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if err := network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": "en-US,en;q=0.9"}).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		return nil
	})
}

// scrollAction steps to the bottom of the page so lazy lists load.
func (e *Extractor) scrollAction() chromedp.Action {
	steps := e.cfg.ScrollSteps
	if steps <= 0 {
		steps = defaultScrollSteps
	}
	pause := e.cfg.ScrollPause
	if pause <= 0 {
		pause = 500 * time.Millisecond
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var lastHeight float64
		for i := 0; i < steps; i++ {
			var height float64
			if err := chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height).Do(ctx); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if i > 0 && height == lastHeight {
				return nil
			}
			lastHeight = height
			if err := chromedp.Sleep(pause).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Extractor) acquire(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	select {
	case e.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (e *Extractor) release() {
	if e.limiter == nil {
		return
	}
	select {
	case <-e.limiter:
	default:
	}
}

func (e *Extractor) navTimeout() time.Duration {
	if e.cfg.NavigationTimeout > 0 {
		return e.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (e *Extractor) maxTextRunes() int {
	if e.cfg.MaxTextRunes > 0 {
		return e.cfg.MaxTextRunes
	}
	return defaultMaxTextRune
}

func buildUserPrompt(req ingest.ExtractRequest, pages []Page, maxText int) (string, error) {
	schema, err := json.MarshalIndent(req.Schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	var b strings.Builder
	b.WriteString("Instruction:\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n\nJSON Schema:\n")
	b.Write(schema)
	budget := maxText / len(pages)
	for _, p := range pages {
		b.WriteString("\n\n=== Page: ")
		b.WriteString(p.URL)
		b.WriteString(" ===\nText:\n")
		b.WriteString(truncateRunes(p.Text, budget))
		if len(p.Links) > 0 {
			b.WriteString("\n\nLinks:\n")
			links := p.Links
			if len(links) > maxLinks {
				links = links[:maxLinks]
			}
			for _, l := range links {
				b.WriteString(l)
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func uniqueLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "javascript:") || strings.HasPrefix(l, "mailto:") {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// stripCodeFence removes a surrounding markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
