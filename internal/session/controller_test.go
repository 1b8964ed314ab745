package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/model"
)

// fakeService scripts analyze and fix responses and records the requests it
// received.
type fakeService struct {
	mu sync.Mutex

	analyzeResults []*model.AnalysisResult
	analyzeErrs    []error
	analyzedCode   []string

	fixResults []*model.FixResult
	fixErrs    []error
	fixedWith  [][]model.Issue

	// blockAnalyze, when set, makes the next Analyze wait until released.
	blockAnalyze chan struct{}
	started      chan struct{}
}

func (f *fakeService) Analyze(ctx context.Context, code string, mode model.Mode) (*model.AnalysisResult, error) {
	f.mu.Lock()
	block := f.blockAnalyze
	started := f.started
	f.blockAnalyze = nil
	f.started = nil
	f.analyzedCode = append(f.analyzedCode, code)

	var res *model.AnalysisResult
	var err error
	if len(f.analyzeErrs) > 0 {
		err = f.analyzeErrs[0]
		f.analyzeErrs = f.analyzeErrs[1:]
	}
	if err == nil && len(f.analyzeResults) > 0 {
		res = f.analyzeResults[0]
		f.analyzeResults = f.analyzeResults[1:]
	}
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &model.AnalysisResult{IssuesByCategory: map[string][]model.Issue{}}
	}
	return res, nil
}

func (f *fakeService) Fix(ctx context.Context, code string, issues []model.Issue, mode model.Mode, analysisContext json.RawMessage) (*model.FixResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fixedWith = append(f.fixedWith, issues)
	if len(f.fixErrs) > 0 {
		err := f.fixErrs[0]
		f.fixErrs = f.fixErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.fixResults) > 0 {
		res := f.fixResults[0]
		f.fixResults = f.fixResults[1:]
		return res, nil
	}
	return &model.FixResult{FinalCode: "fixed: " + code}, nil
}

func qualityResult(overall float64, issues ...model.Issue) *model.AnalysisResult {
	return &model.AnalysisResult{
		OverallScore:     overall,
		IssuesByCategory: map[string][]model.Issue{"quality": issues},
	}
}

var docstringIssue = model.Issue{
	Line:        1,
	Description: "missing docstring",
	Suggestion:  "add docstring",
	Severity:    model.SeverityLow,
}

func newReviewed(t *testing.T, svc *fakeService) *Controller {
	t.Helper()
	c := New(svc, model.ModeQuality)
	if err := c.SetSource([]aggregate.Unit{{Name: "f.py", Content: "def f(): pass"}}); err != nil {
		t.Fatalf("SetSource: %v", err)
	}
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return c
}

func TestAnalyzeHappyPath(t *testing.T) {
	svc := &fakeService{analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)}}
	c := newReviewed(t, svc)

	s := c.Snapshot()
	if s.Phase != PhaseReviewed {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseReviewed)
	}
	if s.CurrentResult == nil || s.CurrentResult.OverallScore != 80 {
		t.Fatal("current result not recorded")
	}
	if s.CurrentResult.TotalUniqueIssues != 1 {
		t.Errorf("TotalUniqueIssues = %d, want 1", s.CurrentResult.TotalUniqueIssues)
	}
	if s.InitialScore == nil || *s.InitialScore != 80 {
		t.Error("initial score not captured at first analyze")
	}
	if s.InitialIssueCount != 1 {
		t.Errorf("InitialIssueCount = %d, want 1", s.InitialIssueCount)
	}
	if s.SelectedCount() != 0 {
		t.Error("selection must start empty")
	}
}

func TestAnalyzeEmptySource(t *testing.T) {
	c := New(&fakeService{}, model.ModeQuality)
	err := c.Analyze(context.Background())
	if !errors.Is(err, ErrEmptySource) {
		t.Fatalf("expected ErrEmptySource, got %v", err)
	}
	if got := c.Snapshot().Phase; got != PhaseIdle {
		t.Errorf("validation errors must not move the phase, got %s", got)
	}
}

func TestAnalyzeFailure(t *testing.T) {
	svc := &fakeService{analyzeErrs: []error{errors.New("service exploded")}}
	c := New(svc, model.ModeQuality)
	if err := c.SetSource([]aggregate.Unit{{Name: "f.py", Content: "x=1"}}); err != nil {
		t.Fatal(err)
	}

	if err := c.Analyze(context.Background()); err == nil {
		t.Fatal("expected analyze error")
	}

	s := c.Snapshot()
	if s.Phase != PhaseError {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseError)
	}
	if s.LastError != model.ErrKindAnalysisFailed {
		t.Errorf("LastError = %s, want %s", s.LastError, model.ErrKindAnalysisFailed)
	}
	if s.ErrorMessage != "service exploded" {
		t.Errorf("service message must pass through verbatim, got %q", s.ErrorMessage)
	}

	// The same transition is retryable from Error.
	svc.mu.Lock()
	svc.analyzeResults = []*model.AnalysisResult{qualityResult(75)}
	svc.mu.Unlock()
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatalf("retry after error: %v", err)
	}
	if got := c.Snapshot().Phase; got != PhaseReviewed {
		t.Errorf("phase after retry = %s, want %s", got, PhaseReviewed)
	}
}

func TestToggleSelectionRoundTrip(t *testing.T) {
	svc := &fakeService{analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)}}
	c := newReviewed(t, svc)

	k := model.Key("quality", docstringIssue)
	if err := c.ToggleSelection(k); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	if !c.Snapshot().Selected(k) {
		t.Fatal("key should be selected after first toggle")
	}
	if err := c.ToggleSelection(k); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if c.Snapshot().Selected(k) {
		t.Fatal("double toggle must return the selection to its original state")
	}
}

func TestToggleSelectionUnknownKey(t *testing.T) {
	svc := &fakeService{analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)}}
	c := newReviewed(t, svc)

	if err := c.ToggleSelection(model.IssueKey("bogus")); !errors.Is(err, ErrUnknownIssue) {
		t.Errorf("expected ErrUnknownIssue, got %v", err)
	}
}

func TestFixEmptySelection(t *testing.T) {
	svc := &fakeService{analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)}}
	c := newReviewed(t, svc)

	err := c.Fix(context.Background(), true)
	if !errors.Is(err, ErrNoIssuesSelected) {
		t.Fatalf("expected ErrNoIssuesSelected, got %v", err)
	}

	s := c.Snapshot()
	if s.Phase != PhaseReviewed {
		t.Errorf("phase = %s, validation errors must leave it at %s", s.Phase, PhaseReviewed)
	}
	if s.LastError != model.ErrKindNoIssuesSelected {
		t.Errorf("LastError = %s, want %s", s.LastError, model.ErrKindNoIssuesSelected)
	}
	if len(svc.fixedWith) != 0 {
		t.Error("no remote call may be issued for a validation error")
	}
}

func TestFixSelectedOnlySendsExactlySelection(t *testing.T) {
	smell := model.Issue{Line: 40, Description: "long method", Severity: model.SeverityMedium}
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{
			{
				OverallScore: 70,
				IssuesByCategory: map[string][]model.Issue{
					"quality":    {docstringIssue},
					"code_smell": {smell},
				},
			},
			qualityResult(95),
		},
	}
	c := newReviewed(t, svc)

	if err := c.ToggleSelection(model.Key("code_smell", smell)); err != nil {
		t.Fatal(err)
	}
	if err := c.Fix(context.Background(), true); err != nil {
		t.Fatalf("Fix: %v", err)
	}

	if len(svc.fixedWith) != 1 {
		t.Fatalf("expected one fix call, got %d", len(svc.fixedWith))
	}
	sent := svc.fixedWith[0]
	if len(sent) != 1 {
		t.Fatalf("expected exactly the selected issue to be sent, got %d issues", len(sent))
	}
	if sent[0].Description != "long method" || sent[0].Category != "code_smell" {
		t.Errorf("wrong issue sent: %+v", sent[0])
	}
}

func TestFixAllIssues(t *testing.T) {
	smell := model.Issue{Line: 40, Description: "long method"}
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{
			{
				OverallScore: 70,
				IssuesByCategory: map[string][]model.Issue{
					"quality":    {docstringIssue},
					"code_smell": {smell},
				},
			},
			qualityResult(90),
		},
	}
	c := newReviewed(t, svc)

	if err := c.Fix(context.Background(), false); err != nil {
		t.Fatalf("Fix: %v", err)
	}
	if len(svc.fixedWith[0]) != 2 {
		t.Errorf("fix with selectedOnly=false must send all issues, sent %d", len(svc.fixedWith[0]))
	}
}

func TestFixCycleLandsInFixed(t *testing.T) {
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{
			qualityResult(80, docstringIssue),
			qualityResult(95),
		},
		fixResults: []*model.FixResult{{FinalCode: "def f():\n    \"\"\"doc\"\"\"\n    pass"}},
	}
	c := newReviewed(t, svc)

	if err := c.ToggleSelection(model.Key("quality", docstringIssue)); err != nil {
		t.Fatal(err)
	}
	if err := c.Fix(context.Background(), true); err != nil {
		t.Fatalf("Fix: %v", err)
	}

	s := c.Snapshot()
	if s.Phase != PhaseFixed {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseFixed)
	}
	if s.FixResult == nil || s.FixResult.FinalCode == "" {
		t.Fatal("fix result not recorded")
	}
	if s.RemainingResult == nil || s.RemainingResult.OverallScore != 95 {
		t.Fatal("re-analysis not recorded as remaining result")
	}
	if s.CurrentResult != s.RemainingResult {
		t.Error("current result must move to the re-analysis")
	}
	if s.SourceCode != s.FixResult.FinalCode {
		t.Error("source under review must advance to the fixed code")
	}
	if s.SelectedCount() != 0 {
		t.Error("re-analysis must clear the selection")
	}
	if s.InitialScore == nil || *s.InitialScore != 80 {
		t.Error("initial score must stay pinned to the cycle start")
	}

	// The second analyze call must have received the fixed code.
	if got := svc.analyzedCode[1]; got != s.FixResult.FinalCode {
		t.Errorf("re-analysis ran on %q, want the fixed code", got)
	}

	d := c.Delta()
	if !d.Measured {
		t.Fatal("delta must be measured after a re-analysis")
	}
	if d.ScoreImprovement != 15 {
		t.Errorf("ScoreImprovement = %v, want 15", d.ScoreImprovement)
	}
	if d.IssuesFixed != 1 {
		t.Errorf("IssuesFixed = %d, want 1", d.IssuesFixed)
	}
	if d.IssuesRemaining != 0 {
		t.Errorf("IssuesRemaining = %d, want 0", d.IssuesRemaining)
	}
}

func TestFixFailure(t *testing.T) {
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)},
		fixErrs:        []error{errors.New("fix blew up")},
	}
	c := newReviewed(t, svc)

	if err := c.Fix(context.Background(), false); err == nil {
		t.Fatal("expected fix error")
	}

	s := c.Snapshot()
	if s.Phase != PhaseError || s.LastError != model.ErrKindFixFailed {
		t.Fatalf("phase/kind = %s/%s, want error/fix_failed", s.Phase, s.LastError)
	}
	if s.CurrentResult == nil {
		t.Error("prior results must survive a failed fix")
	}

	// Retry the same transition from Error.
	if err := c.Fix(context.Background(), false); err != nil {
		t.Fatalf("fix retry: %v", err)
	}
	if got := c.Snapshot().Phase; got != PhaseFixed {
		t.Errorf("phase after retry = %s, want %s", got, PhaseFixed)
	}
}

func TestReanalysisFailureRetainsFixResult(t *testing.T) {
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)},
		analyzeErrs:    []error{nil, errors.New("reanalysis down")},
	}
	c := newReviewed(t, svc)

	if err := c.Fix(context.Background(), false); err == nil {
		t.Fatal("expected re-analysis error")
	}

	s := c.Snapshot()
	if s.Phase != PhaseError || s.LastError != model.ErrKindReanalysisFailed {
		t.Fatalf("phase/kind = %s/%s, want error/reanalysis_failed", s.Phase, s.LastError)
	}
	if s.FixResult == nil {
		t.Fatal("fix result must be retained when only the re-analysis failed")
	}

	svc.mu.Lock()
	svc.analyzeResults = []*model.AnalysisResult{qualityResult(95)}
	svc.mu.Unlock()
	if err := c.Reanalyze(context.Background()); err != nil {
		t.Fatalf("reanalyze retry: %v", err)
	}
	if got := c.Snapshot().Phase; got != PhaseFixed {
		t.Errorf("phase after retry = %s, want %s", got, PhaseFixed)
	}
}

func TestOperationInProgress(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)},
		blockAnalyze:   block,
		started:        started,
	}
	c := New(svc, model.ModeQuality)
	if err := c.SetSource([]aggregate.Unit{{Name: "f.py", Content: "x=1"}}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Analyze(context.Background()) }()
	<-started

	if err := c.Analyze(context.Background()); !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("concurrent analyze: expected ErrOperationInProgress, got %v", err)
	}
	if err := c.Fix(context.Background(), false); !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("concurrent fix: expected ErrOperationInProgress, got %v", err)
	}
	if err := c.SetSource([]aggregate.Unit{{Name: "g.py", Content: "y=2"}}); !errors.Is(err, ErrOperationInProgress) {
		t.Errorf("concurrent source change: expected ErrOperationInProgress, got %v", err)
	}
	if got := c.Snapshot().CurrentResult; got != nil {
		t.Error("rejected calls must not alter the current result")
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("in-flight analyze: %v", err)
	}
	if got := c.Snapshot().Phase; got != PhaseReviewed {
		t.Errorf("phase = %s, want %s", got, PhaseReviewed)
	}
}

func TestSetSourceResetsWorkflow(t *testing.T) {
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{
			qualityResult(80, docstringIssue),
			qualityResult(95),
		},
	}
	c := newReviewed(t, svc)
	if err := c.Fix(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	err := c.SetSource([]aggregate.Unit{
		{Name: "a.py", Content: "x=1"},
		{Name: "b.py", Content: "y=2"},
	})
	if err != nil {
		t.Fatalf("SetSource: %v", err)
	}

	s := c.Snapshot()
	if s.Phase != PhaseIdle {
		t.Errorf("phase = %s, want %s", s.Phase, PhaseIdle)
	}
	if s.CurrentResult != nil || s.FixResult != nil || s.RemainingResult != nil {
		t.Error("source change must clear prior results")
	}
	if s.SelectedCount() != 0 {
		t.Error("source change must clear the selection")
	}
	if len(s.Manifest) != 2 || s.Manifest[0] != "a.py" || s.Manifest[1] != "b.py" {
		t.Errorf("manifest = %v, want [a.py b.py]", s.Manifest)
	}
}

func TestNewCycleResetsInitialScore(t *testing.T) {
	svc := &fakeService{
		analyzeResults: []*model.AnalysisResult{
			qualityResult(80, docstringIssue),
			qualityResult(95),
			qualityResult(60, docstringIssue),
		},
	}
	c := newReviewed(t, svc)
	if err := c.Fix(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	// Analyze from Fixed starts a fresh cycle.
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatal(err)
	}

	s := c.Snapshot()
	if s.Phase != PhaseReviewed {
		t.Fatalf("phase = %s, want %s", s.Phase, PhaseReviewed)
	}
	if s.InitialScore == nil || *s.InitialScore != 60 {
		t.Errorf("new cycle must re-capture the initial score, got %v", s.InitialScore)
	}
	if s.RemainingResult != nil {
		t.Error("new cycle must discard the prior re-analysis")
	}
	if c.Delta().Measured {
		t.Error("delta must be unmeasured at the start of a new cycle")
	}
}

func TestWatchEvents(t *testing.T) {
	svc := &fakeService{analyzeResults: []*model.AnalysisResult{qualityResult(80, docstringIssue)}}
	c := New(svc, model.ModeQuality)

	var mu sync.Mutex
	var phases []Phase
	c.Watch(func(ev Event) {
		mu.Lock()
		phases = append(phases, ev.Phase)
		mu.Unlock()
	})

	if err := c.SetSource([]aggregate.Unit{{Name: "f.py", Content: "x=1"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Analyze(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseIdle, PhaseAnalyzing, PhaseReviewed}
	if len(phases) != len(want) {
		t.Fatalf("events = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("events = %v, want %v", phases, want)
		}
	}
}
