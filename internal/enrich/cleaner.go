package enrich

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/metrics"
)

const (
	cleanMaxTokens = 4096
	minCleanedLen  = 50
)

const cleanerSystemPrompt = `You are a job description formatter. You will receive a raw job posting description in Markdown.

Remove ONLY the metadata header fields that appear at the top of the posting, things like:
- Job title headers
- Location
- Employment Type
- Department
- Compensation/Salary
- Location Type

These are short label-value pairs that are already captured in structured fields.

KEEP everything else exactly as-is, including:
- Role overview / description
- Responsibilities
- Qualifications / Requirements
- Who We Are / About Us
- Perks / Benefits / What You Get
- Any other body content

Preserve the original Markdown formatting (headings, bullet points, paragraphs). Return ONLY the cleaned description, nothing else.`

// CleanOutcome says which text a Cleaning carries.
type CleanOutcome string

// Cleaner outcomes.
const (
	CleanCleaned       CleanOutcome = "cleaned"
	CleanFallbackShort CleanOutcome = "fallback_short"
	CleanFallbackError CleanOutcome = "fallback_error"
	CleanSkipped       CleanOutcome = "skipped"
)

// Cleaning is the typed result of Clean.
type Cleaning struct {
	Text    string
	Outcome CleanOutcome
	Err     error
}

// Cleaner strips restated metadata lines from the top of a description.
type Cleaner struct {
	llm    ingest.Completer
	logger *zap.Logger
}

// NewCleaner constructs a Cleaner over the given completer.
func NewCleaner(llm ingest.Completer, logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{llm: llm, logger: logger}
}

// Clean returns the model's cleaned description, or raw unchanged when the
// call fails or the answer is implausibly short.
func (c *Cleaner) Clean(ctx context.Context, raw string) Cleaning {
	if strings.TrimSpace(raw) == "" {
		return Cleaning{Text: raw, Outcome: CleanSkipped}
	}
	text, err := c.llm.Complete(ctx, ingest.CompletionRequest{
		System:    cleanerSystemPrompt,
		User:      raw,
		MaxTokens: cleanMaxTokens,
	})
	if err != nil {
		c.logger.Warn("description cleaning failed, keeping raw text", zap.Error(err))
		metrics.ObserveCleaning(string(CleanFallbackError))
		return Cleaning{Text: raw, Outcome: CleanFallbackError, Err: err}
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minCleanedLen {
		c.logger.Debug("cleaned description too short, keeping raw text", zap.Int("length", len(text)))
		metrics.ObserveCleaning(string(CleanFallbackShort))
		return Cleaning{Text: raw, Outcome: CleanFallbackShort}
	}
	metrics.ObserveCleaning(string(CleanCleaned))
	return Cleaning{Text: text, Outcome: CleanCleaned}
}
