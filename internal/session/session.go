// Package session implements the review workflow: the mutable session record
// and the state machine driving the analyze, review, select, fix, re-analyze
// cycle.
package session

import (
	"errors"

	"github.com/sprite-ai/revu/internal/model"
)

// Phase is the workflow's current state. The three in-flight phases
// (Analyzing, Fixing, Reanalyzing) double as a mutex: a second remote
// operation is rejected while one is outstanding.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseReviewed    Phase = "reviewed"
	PhaseFixing      Phase = "fixing"
	PhaseReanalyzing Phase = "reanalyzing"
	PhaseFixed       Phase = "fixed"
	PhaseError       Phase = "error"
)

// InFlight reports whether a remote operation is outstanding.
func (p Phase) InFlight() bool {
	return p == PhaseAnalyzing || p == PhaseFixing || p == PhaseReanalyzing
}

// Validation errors, detected before any remote call is issued. They never
// move the workflow into the Error phase.
var (
	ErrEmptySource         = errors.New("no code to analyze")
	ErrNoIssuesSelected    = errors.New("no issues selected for fixing")
	ErrOperationInProgress = errors.New("another operation is already in progress")
	ErrNoAnalysis          = errors.New("no analysis result to act on")
	ErrUnknownIssue        = errors.New("issue key not present in the current analysis")
	ErrWrongPhase          = errors.New("operation not valid in the current phase")
)

// Session is the orchestrator's working state. It is owned and mutated only
// by a Controller; Snapshot returns copies for display. Result and fix
// pointers are shared across snapshots and must be treated as immutable.
type Session struct {
	// SourceCode is the code currently under review. After a successful fix
	// it holds the fixed code; PreFixCode keeps what it replaced so the two
	// can be diffed.
	SourceCode string   `json:"source_code"`
	PreFixCode string   `json:"-"`
	Manifest   []string `json:"manifest,omitempty"`
	Language   string   `json:"language,omitempty"`

	CurrentResult *model.AnalysisResult       `json:"current_result,omitempty"`
	SelectedKeys  map[model.IssueKey]struct{} `json:"-"`
	FixResult     *model.FixResult            `json:"fix_result,omitempty"`

	// RemainingResult holds specifically the most recent post-fix
	// re-analysis, distinct from CurrentResult which moves on with every
	// analyze.
	RemainingResult *model.AnalysisResult `json:"remaining_result,omitempty"`

	// InitialScore and InitialIssueCount are captured at the first
	// successful analyze of a cycle and held fixed until a fresh cycle
	// starts, so improvement is always measured against the cycle's
	// starting point.
	InitialScore      *float64 `json:"initial_score,omitempty"`
	InitialIssueCount int      `json:"initial_issue_count"`

	Phase        Phase           `json:"phase"`
	LastError    model.ErrorKind `json:"last_error,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Selected reports whether a key is in the selection set.
func (s Session) Selected(k model.IssueKey) bool {
	_, ok := s.SelectedKeys[k]
	return ok
}

// SelectedCount returns the size of the selection set.
func (s Session) SelectedCount() int {
	return len(s.SelectedKeys)
}

// Event is emitted on every phase transition and surfaced error.
type Event struct {
	Phase   Phase           `json:"phase"`
	Kind    model.ErrorKind `json:"error_kind,omitempty"`
	Message string          `json:"message,omitempty"`
}
