// Package enrich classifies and cleans extracted job postings through an LLM,
// degrading to safe defaults when the model misbehaves.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
	"github.com/JakeFAU/careers-ingest/internal/metrics"
)

const (
	classifyAttempts         = 2
	classifyMaxTokens        = 50
	classifyDescriptionChars = 500
)

// ClassifyOutcome says how a department tag was chosen.
type ClassifyOutcome string

// Classifier outcomes.
const (
	// ClassifyAgreed means the model returned a taxonomy value.
	ClassifyAgreed ClassifyOutcome = "agreed"
	// ClassifyDefaulted means every attempt answered but none matched.
	ClassifyDefaulted ClassifyOutcome = "defaulted"
	// ClassifyExhausted means the final attempt failed outright.
	ClassifyExhausted ClassifyOutcome = "exhausted"
)

// Classification is the typed result of Classify. Tag is always a taxonomy value.
type Classification struct {
	Tag      ingest.DepartmentTag
	Outcome  ClassifyOutcome
	Attempts int
	Err      error
}

// Classifier maps a posting to one department tag.
type Classifier struct {
	llm    ingest.Completer
	system string
	logger *zap.Logger
}

// NewClassifier constructs a Classifier over the given completer.
func NewClassifier(llm ingest.Completer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		llm:    llm,
		system: classifierSystemPrompt(),
		logger: logger,
	}
}

// Classify asks the model for a tag, retrying once on an error or an answer
// outside the taxonomy. It falls back to Other.
func (c *Classifier) Classify(ctx context.Context, title string, departmentRaw *string, description string) Classification {
	req := ingest.CompletionRequest{
		System:    c.system,
		User:      classifierUserPrompt(title, departmentRaw, description),
		MaxTokens: classifyMaxTokens,
	}

	var lastErr error
	attempts := 0
	for attempts < classifyAttempts {
		attempts++
		text, err := c.llm.Complete(ctx, req)
		if err != nil {
			lastErr = err
			c.logger.Warn("classification attempt failed",
				zap.String("title", title),
				zap.Int("attempt", attempts),
				zap.Error(err),
			)
			continue
		}
		lastErr = nil
		if tag, ok := ingest.ParseDepartmentTag(text); ok {
			metrics.ObserveClassification(string(ClassifyAgreed))
			return Classification{Tag: tag, Outcome: ClassifyAgreed, Attempts: attempts}
		}
		c.logger.Debug("classification outside taxonomy",
			zap.String("title", title),
			zap.Int("attempt", attempts),
			zap.String("answer", text),
		)
	}

	outcome := ClassifyDefaulted
	if lastErr != nil {
		outcome = ClassifyExhausted
	}
	metrics.ObserveClassification(string(outcome))
	return Classification{Tag: ingest.DeptOther, Outcome: outcome, Attempts: attempts, Err: lastErr}
}

func classifierSystemPrompt() string {
	tags := make([]string, 0, len(ingest.DepartmentTags))
	for _, tag := range ingest.DepartmentTags {
		tags = append(tags, string(tag))
	}
	return fmt.Sprintf(`You are a job department classifier. Given a job title, raw department string, and job description, return exactly one department tag from this list:

%s

Return ONLY the tag, nothing else.`, strings.Join(tags, ", "))
}

func classifierUserPrompt(title string, departmentRaw *string, description string) string {
	dept := "not specified"
	if departmentRaw != nil && *departmentRaw != "" {
		dept = *departmentRaw
	}
	return fmt.Sprintf("Job title: %s\nDepartment: %s\nDescription (first 500 chars): %s",
		title, dept, truncateRunes(description, classifyDescriptionChars))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
