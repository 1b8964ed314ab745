// Package remote implements the JSON HTTP client for the code-analysis
// service. It speaks the service's wire contract and nothing else; workflow
// sequencing lives in the session package.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/model"
)

// Client talks to one analysis service endpoint. Timeout policy lives here,
// in the transport, not in the workflow.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

// New creates a client for the service at baseURL. Analysis calls can take
// minutes for large inputs, so the default timeout is generous.
func New(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

type analyzeRequest struct {
	Code   string     `json:"code"`
	Mode   model.Mode `json:"mode"`
	APIKey string     `json:"api_key"`
}

type fixRequest struct {
	Code    string          `json:"code"`
	Issues  []model.Issue   `json:"issues"`
	APIKey  string          `json:"api_key"`
	Mode    model.Mode      `json:"mode"`
	Context json.RawMessage `json:"context,omitempty"`
}

// serviceError is the error envelope the service uses for failures it
// reports inside a 200 response as well as for HTTP-level errors.
type serviceError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (e *serviceError) message() string {
	if e.Details != "" {
		return e.Error + ": " + e.Details
	}
	return e.Error
}

// Analyze submits code for analysis. The result's unique-issue count is
// re-derived locally rather than trusted from the wire.
func (c *Client) Analyze(ctx context.Context, code string, mode model.Mode) (*model.AnalysisResult, error) {
	c.logger.Debug("analyze request", "mode", mode, "code_bytes", len(code))

	var result model.AnalysisResult
	if err := c.post(ctx, "/analyze", analyzeRequest{Code: code, Mode: mode, APIKey: c.apiKey}, &result); err != nil {
		return nil, err
	}
	result.Normalize()
	c.logger.Debug("analyze response", "overall_score", result.OverallScore, "unique_issues", result.TotalUniqueIssues)
	return &result, nil
}

// Fix submits issues for repair against the given code. analysisContext is
// the opaque context from the analysis that produced the issues, passed back
// unchanged.
func (c *Client) Fix(ctx context.Context, code string, issues []model.Issue, mode model.Mode, analysisContext json.RawMessage) (*model.FixResult, error) {
	c.logger.Debug("fix request", "mode", mode, "issues", len(issues))

	var result model.FixResult
	req := fixRequest{Code: code, Issues: issues, APIKey: c.apiKey, Mode: mode, Context: analysisContext}
	if err := c.post(ctx, "/fix", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type projectResponse struct {
	FileCount int              `json:"file_count"`
	Files     []aggregate.Unit `json:"files"`
}

// UploadProject sends source units for server-side ingestion and returns the
// unit list the service settled on.
func (c *Client) UploadProject(ctx context.Context, units []aggregate.Unit) ([]aggregate.Unit, error) {
	var resp projectResponse
	body := struct {
		Files []aggregate.Unit `json:"files"`
	}{Files: units}
	if err := c.post(ctx, "/upload", body, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("upload response", "file_count", resp.FileCount)
	return resp.Files, nil
}

// FetchRepo asks the service to fetch a remote repository and returns its
// source units.
func (c *Client) FetchRepo(ctx context.Context, repoURL string) ([]aggregate.Unit, error) {
	var resp projectResponse
	body := struct {
		RepoURL string `json:"repo_url"`
	}{RepoURL: repoURL}
	if err := c.post(ctx, "/fetch-repo", body, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("fetch-repo response", "repo_url", repoURL, "file_count", resp.FileCount)
	return resp.Files, nil
}

// Health checks service reachability.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analysis service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analysis service unhealthy: %s", resp.Status)
	}
	return nil
}

// post sends a JSON request and decodes the response into out. Service error
// envelopes and non-2xx statuses surface their message verbatim.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var svcErr serviceError
	if jsonErr := json.Unmarshal(raw, &svcErr); jsonErr == nil && svcErr.Error != "" {
		return fmt.Errorf("%s", svcErr.message())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
