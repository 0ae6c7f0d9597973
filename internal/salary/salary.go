// Package salary extracts a canonical compensation substring from free text.
package salary

import (
	"regexp"
	"strings"
)

var (
	rangePattern  = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?[Kk]?\s*[-–—to]+\s*\$[\d,]+(?:\.\d+)?[Kk]?`)
	singlePattern = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?[Kk]?`)
)

// Clean returns the first dollar range found in raw, else the first single
// dollar amount, else nil. No arithmetic or currency conversion is done.
func Clean(raw *string) *string {
	if raw == nil {
		return nil
	}
	text := strings.TrimSpace(*raw)
	if text == "" {
		return nil
	}
	if m := rangePattern.FindString(text); m != "" {
		return &m
	}
	if m := singlePattern.FindString(text); m != "" {
		return &m
	}
	return nil
}
