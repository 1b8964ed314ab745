// Package model defines the core data types shared across revu.
package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Severity of a single finding. The analysis service owns the value space;
// unknown values are carried through verbatim.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for sorting and exit codes. Unknown severities rank
// below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Mode selects the analysis dimension requested from the service.
type Mode string

const (
	ModeFullScan  Mode = "full_scan"
	ModeQuality   Mode = "quality"
	ModeSecurity  Mode = "security"
	ModeCodeSmell Mode = "code_smell"
)

// ParseMode validates a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFullScan, ModeQuality, ModeSecurity, ModeCodeSmell:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid analysis mode %q (want full_scan, quality, security or code_smell)", s)
}

// Issue is one finding reported by the analysis service. Immutable once
// received. Line is 0 when the finding is not line-addressable.
type Issue struct {
	Line        int      `json:"line"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion"`
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence,omitempty"`
	Category    string   `json:"category,omitempty"`
	SourceAgent string   `json:"source_agent,omitempty"`
}

// AnalysisResult is the output of one analyze call. Issue order within a
// category is the service-reported order and is preserved.
type AnalysisResult struct {
	OverallScore      float64            `json:"overall_score"`
	CategoryScores    map[string]float64 `json:"category_scores,omitempty"`
	IssuesByCategory  map[string][]Issue `json:"issues_by_category"`
	TotalUniqueIssues int                `json:"total_unique_issues"`
	AnalysesRun       []string           `json:"analyses_run,omitempty"`

	// Context is opaque aggregation metadata from the service, passed back
	// unchanged on fix calls.
	Context json.RawMessage `json:"context,omitempty"`
}

// Categories returns the category names in stable (sorted) order.
func (r *AnalysisResult) Categories() []string {
	cats := make([]string, 0, len(r.IssuesByCategory))
	for c := range r.IssuesByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Issues flattens all findings with the category field filled in, categories
// in stable order and service order within each.
func (r *AnalysisResult) Issues() []Issue {
	var out []Issue
	for _, cat := range r.Categories() {
		for _, iss := range r.IssuesByCategory[cat] {
			iss.Category = cat
			out = append(out, iss)
		}
	}
	return out
}

// KeySet derives the identity of every finding in the result. Duplicate
// reports of the same (category, line, description) collapse to one key.
func (r *AnalysisResult) KeySet() map[IssueKey]struct{} {
	keys := make(map[IssueKey]struct{})
	for cat, issues := range r.IssuesByCategory {
		for _, iss := range issues {
			keys[Key(cat, iss)] = struct{}{}
		}
	}
	return keys
}

// UniqueIssueCount is the number of distinct issue keys across categories.
func (r *AnalysisResult) UniqueIssueCount() int {
	return len(r.KeySet())
}

// IssueByKey finds the full record for a key. When duplicate findings share a
// key the first in service order wins.
func (r *AnalysisResult) IssueByKey(k IssueKey) (Issue, bool) {
	for _, cat := range r.Categories() {
		for _, iss := range r.IssuesByCategory[cat] {
			if Key(cat, iss) == k {
				iss.Category = cat
				return iss, true
			}
		}
	}
	return Issue{}, false
}

// Normalize recomputes derived fields after decoding a service response. The
// unique count is always re-derived locally rather than trusted from the
// wire.
func (r *AnalysisResult) Normalize() {
	for cat, issues := range r.IssuesByCategory {
		for i := range issues {
			issues[i].Category = cat
		}
	}
	r.TotalUniqueIssues = r.UniqueIssueCount()
}

// FixResult is the output of one fix call. Feedback is a free-form structure
// owned by the service; revu displays it but never interprets it.
type FixResult struct {
	FinalCode string          `json:"final_code"`
	Feedback  json.RawMessage `json:"feedback,omitempty"`
}
