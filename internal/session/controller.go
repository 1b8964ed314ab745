package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/model"
	"github.com/sprite-ai/revu/internal/score"
)

// Service is the remote analysis collaborator. Implementations own transport
// concerns (timeouts, retries, TLS); the controller only sequences calls.
type Service interface {
	Analyze(ctx context.Context, code string, mode model.Mode) (*model.AnalysisResult, error)
	Fix(ctx context.Context, code string, issues []model.Issue, mode model.Mode, analysisContext json.RawMessage) (*model.FixResult, error)
}

// Controller owns one Session and serializes all transitions on it. Multiple
// controllers in one process are fully independent; nothing is shared.
//
// Remote calls run with the internal lock released, so selection toggles and
// snapshots stay responsive while a call is outstanding. Re-entrant remote
// operations are rejected with ErrOperationInProgress, never queued.
type Controller struct {
	mu        sync.Mutex
	svc       Service
	mode      model.Mode
	s         Session
	listeners []func(Event)

	// fixSelection is the selection the last fix call was built from, kept
	// after SelectedKeys is cleared so the fixed-issue count can still be
	// derived from the re-analysis.
	fixSelection map[model.IssueKey]struct{}
}

// New creates a controller in the Idle phase.
func New(svc Service, mode model.Mode) *Controller {
	return &Controller{
		svc:  svc,
		mode: mode,
		s: Session{
			Phase:        PhaseIdle,
			SelectedKeys: make(map[model.IssueKey]struct{}),
		},
	}
}

// Watch registers a listener invoked after every phase transition or surfaced
// error. Listeners run synchronously on the transitioning goroutine.
func (c *Controller) Watch(fn func(Event)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Snapshot returns a copy of the session for display. The selection set is
// copied; result pointers are shared and immutable.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Session {
	s := c.s
	s.SelectedKeys = make(map[model.IssueKey]struct{}, len(c.s.SelectedKeys))
	for k := range c.s.SelectedKeys {
		s.SelectedKeys[k] = struct{}{}
	}
	if c.s.Manifest != nil {
		s.Manifest = append([]string(nil), c.s.Manifest...)
	}
	return s
}

// Mode returns the analysis mode the controller was created with.
func (c *Controller) Mode() model.Mode {
	return c.mode
}

// SetSource replaces the code under review with the aggregation of the given
// units and resets the workflow to Idle, discarding prior results and
// selections. Rejected while a remote operation is in flight.
func (c *Controller) SetSource(units []aggregate.Unit) error {
	code, manifest, err := aggregate.Aggregate(units)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.s.Phase.InFlight() {
		c.mu.Unlock()
		return ErrOperationInProgress
	}
	c.s = Session{
		Phase:        PhaseIdle,
		SourceCode:   code,
		Manifest:     manifest,
		Language:     aggregate.DetectLanguage(code),
		SelectedKeys: make(map[model.IssueKey]struct{}),
	}
	c.fixSelection = nil
	ev := Event{Phase: PhaseIdle}
	listeners := c.listeners
	c.mu.Unlock()

	emit(listeners, ev)
	return nil
}

// Analyze submits the current source to the service and, on success, moves
// the workflow to Reviewed. Starting from Idle or Fixed begins a new cycle
// and re-captures the initial score and issue count.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	if c.s.Phase.InFlight() {
		c.mu.Unlock()
		return ErrOperationInProgress
	}
	if c.s.SourceCode == "" {
		c.mu.Unlock()
		return ErrEmptySource
	}

	newCycle := c.s.Phase == PhaseIdle || c.s.Phase == PhaseFixed
	code := c.s.SourceCode
	c.s.Phase = PhaseAnalyzing
	listeners := c.listeners
	c.mu.Unlock()
	emit(listeners, Event{Phase: PhaseAnalyzing})

	result, err := c.svc.Analyze(ctx, code, c.mode)

	c.mu.Lock()
	if err != nil {
		c.failLocked(model.ErrKindAnalysisFailed, err)
		ev := c.errEventLocked()
		c.mu.Unlock()
		emit(listeners, ev)
		return fmt.Errorf("analysis failed: %w", err)
	}

	result.Normalize()
	c.s.CurrentResult = result
	c.s.SelectedKeys = make(map[model.IssueKey]struct{})
	if newCycle || c.s.InitialScore == nil {
		initial := result.OverallScore
		c.s.InitialScore = &initial
		c.s.InitialIssueCount = result.TotalUniqueIssues
		c.s.RemainingResult = nil
		c.s.FixResult = nil
		c.s.PreFixCode = ""
	}
	c.s.Phase = PhaseReviewed
	c.s.LastError = ""
	c.s.ErrorMessage = ""
	c.mu.Unlock()

	emit(listeners, Event{Phase: PhaseReviewed})
	return nil
}

// ToggleSelection flips a key's membership in the selection set. Valid only
// in Reviewed, against keys present in the current result.
func (c *Controller) ToggleSelection(k model.IssueKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.s.Phase != PhaseReviewed {
		return fmt.Errorf("%w: selection requires phase %s, have %s", ErrWrongPhase, PhaseReviewed, c.s.Phase)
	}
	if c.s.CurrentResult == nil {
		return ErrNoAnalysis
	}
	if _, ok := c.s.CurrentResult.KeySet()[k]; !ok {
		return ErrUnknownIssue
	}

	if _, ok := c.s.SelectedKeys[k]; ok {
		delete(c.s.SelectedKeys, k)
	} else {
		c.s.SelectedKeys[k] = struct{}{}
	}
	return nil
}

// Fix submits issues to the service for repair and then re-analyzes the
// returned code. With selectedOnly, exactly the issues whose keys are in the
// selection set are submitted; otherwise every issue in the current result
// is. On success the workflow lands in Fixed with the re-analysis as both
// current and remaining result.
func (c *Controller) Fix(ctx context.Context, selectedOnly bool) error {
	c.mu.Lock()
	if c.s.Phase.InFlight() {
		c.mu.Unlock()
		return ErrOperationInProgress
	}
	if c.s.Phase != PhaseReviewed && !(c.s.Phase == PhaseError && c.s.LastError == model.ErrKindFixFailed) {
		c.mu.Unlock()
		return fmt.Errorf("%w: fix requires phase %s, have %s", ErrWrongPhase, PhaseReviewed, c.s.Phase)
	}
	if c.s.CurrentResult == nil {
		c.mu.Unlock()
		return ErrNoAnalysis
	}

	var issues []model.Issue
	if selectedOnly {
		if len(c.s.SelectedKeys) == 0 {
			c.s.LastError = model.ErrKindNoIssuesSelected
			c.s.ErrorMessage = ErrNoIssuesSelected.Error()
			c.mu.Unlock()
			return ErrNoIssuesSelected
		}
		for _, iss := range c.s.CurrentResult.Issues() {
			if _, ok := c.s.SelectedKeys[model.Key(iss.Category, iss)]; ok {
				issues = append(issues, iss)
			}
		}
	} else {
		issues = c.s.CurrentResult.Issues()
	}

	c.fixSelection = make(map[model.IssueKey]struct{}, len(issues))
	for _, iss := range issues {
		c.fixSelection[model.Key(iss.Category, iss)] = struct{}{}
	}

	code := c.s.SourceCode
	analysisCtx := c.s.CurrentResult.Context
	c.s.Phase = PhaseFixing
	listeners := c.listeners
	c.mu.Unlock()
	emit(listeners, Event{Phase: PhaseFixing})

	fix, err := c.svc.Fix(ctx, code, issues, c.mode, analysisCtx)

	c.mu.Lock()
	if err != nil {
		c.failLocked(model.ErrKindFixFailed, err)
		ev := c.errEventLocked()
		c.mu.Unlock()
		emit(listeners, ev)
		return fmt.Errorf("fix failed: %w", err)
	}

	c.s.FixResult = fix
	c.s.PreFixCode = code
	c.s.Phase = PhaseReanalyzing
	c.mu.Unlock()
	emit(listeners, Event{Phase: PhaseReanalyzing})

	return c.reanalyze(ctx, listeners)
}

// Reanalyze re-runs the post-fix analysis. It is the retry path after a
// ReanalysisFailed error; the fix result is retained from the failed run.
func (c *Controller) Reanalyze(ctx context.Context) error {
	c.mu.Lock()
	if c.s.Phase.InFlight() {
		c.mu.Unlock()
		return ErrOperationInProgress
	}
	if c.s.FixResult == nil || !(c.s.Phase == PhaseError && c.s.LastError == model.ErrKindReanalysisFailed) {
		c.mu.Unlock()
		return fmt.Errorf("%w: no failed re-analysis to retry", ErrWrongPhase)
	}
	c.s.Phase = PhaseReanalyzing
	listeners := c.listeners
	c.mu.Unlock()
	emit(listeners, Event{Phase: PhaseReanalyzing})

	return c.reanalyze(ctx, listeners)
}

// reanalyze performs the analysis of the fixed code. Phase must already be
// Reanalyzing and the lock released.
func (c *Controller) reanalyze(ctx context.Context, listeners []func(Event)) error {
	c.mu.Lock()
	fixedCode := c.s.FixResult.FinalCode
	c.mu.Unlock()

	result, err := c.svc.Analyze(ctx, fixedCode, c.mode)

	c.mu.Lock()
	if err != nil {
		// The fix result is retained; only the measurement failed.
		c.failLocked(model.ErrKindReanalysisFailed, err)
		ev := c.errEventLocked()
		c.mu.Unlock()
		emit(listeners, ev)
		return fmt.Errorf("re-analysis failed: %w", err)
	}

	result.Normalize()
	c.s.SourceCode = fixedCode
	c.s.CurrentResult = result
	c.s.RemainingResult = result
	c.s.SelectedKeys = make(map[model.IssueKey]struct{})
	c.s.Phase = PhaseFixed
	c.s.LastError = ""
	c.s.ErrorMessage = ""
	c.mu.Unlock()

	emit(listeners, Event{Phase: PhaseFixed})
	return nil
}

// Delta reports the cycle's improvement: the first analysis of the cycle
// against the latest re-analysis, using the selection the fix was built
// from. Unmeasured until a re-analysis has completed.
func (c *Controller) Delta() score.Delta {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.s.InitialScore == nil || c.s.RemainingResult == nil {
		return score.Delta{}
	}
	before := &model.AnalysisResult{OverallScore: *c.s.InitialScore}
	d := score.Compute(before, c.s.RemainingResult, c.fixSelection)
	return d
}

// failLocked records a remote failure without discarding the last good
// session fields, so results stay displayable and the operation can be
// retried.
func (c *Controller) failLocked(kind model.ErrorKind, err error) {
	c.s.Phase = PhaseError
	c.s.LastError = kind
	c.s.ErrorMessage = err.Error()
}

func (c *Controller) errEventLocked() Event {
	return Event{Phase: PhaseError, Kind: c.s.LastError, Message: c.s.ErrorMessage}
}

func emit(listeners []func(Event), ev Event) {
	for _, fn := range listeners {
		fn(ev)
	}
}
