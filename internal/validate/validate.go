// Package validate gates extraction output before it is published.
package validate

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/careers-ingest/internal/ingest"
)

const (
	// MinDescriptionLen is the shortest description a linked job may carry.
	MinDescriptionLen = 50
	// DefaultThreshold is the minimum fraction of listings that must yield a valid detail.
	DefaultThreshold = 0.70
)

// ValidDetail applies the strict policy used for linked jobs.
func ValidDetail(d ingest.JobDetail) bool {
	return strings.TrimSpace(d.Title) != "" && utf8.RuneCountInString(d.Description) >= MinDescriptionLen
}

// ValidInline applies the relaxed policy used for inline jobs.
func ValidInline(d ingest.JobDetail) bool {
	return strings.TrimSpace(d.Title) != ""
}

// Verdict is the run-level acceptance decision.
type Verdict struct {
	Accepted  bool
	Rate      float64
	Listings  int
	Valid     int
	Threshold float64
}

// Message renders the failure text recorded on a rejected snapshot.
func (v Verdict) Message() string {
	return fmt.Sprintf("Validation failed: %d/%d valid (%.0f%%, need %.0f%%)",
		v.Valid, v.Listings, v.Rate*100, v.Threshold*100)
}

// Policy evaluates run-level acceptance.
type Policy struct {
	threshold float64
}

// NewPolicy returns a Policy. Non-positive thresholds fall back to DefaultThreshold.
func NewPolicy(threshold float64) Policy {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Policy{threshold: threshold}
}

// Run accepts a linked-job run when at least one listing was found and the
// valid fraction meets the threshold.
func (p Policy) Run(listings, valid int) Verdict {
	v := Verdict{Listings: listings, Valid: valid, Threshold: p.threshold}
	if listings < 1 {
		return v
	}
	v.Rate = float64(valid) / float64(listings)
	v.Accepted = v.Rate >= p.threshold
	v.Rate = math.Round(v.Rate*10000) / 10000
	return v
}
