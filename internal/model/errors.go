package model

// ErrorKind labels a workflow failure so callers and the API can report it
// without string matching.
type ErrorKind string

const (
	ErrKindEmptySource         ErrorKind = "empty_source"
	ErrKindNoIssuesSelected    ErrorKind = "no_issues_selected"
	ErrKindOperationInProgress ErrorKind = "operation_in_progress"
	ErrKindAnalysisFailed      ErrorKind = "analysis_failed"
	ErrKindFixFailed           ErrorKind = "fix_failed"
	ErrKindReanalysisFailed    ErrorKind = "reanalysis_failed"
	ErrKindUploadFailed        ErrorKind = "upload_failed"
	ErrKindRepoFetchFailed     ErrorKind = "repo_fetch_failed"
)
