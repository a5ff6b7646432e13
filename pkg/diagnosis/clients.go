// Package diagnosis defines the incident data model and the thin adapters
// to the external vision and reasoning services. The services' internals are
// out of scope; only their request/response contract lives here.
package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrAnalysisTimeout = errors.New("analysis request timed out")
	ErrAnalysisFailed  = errors.New("analysis failed")
	ErrLowConfidence   = errors.New("analysis confidence below minimum")
	ErrPlanTimeout     = errors.New("plan request timed out")
	ErrPlanFailed      = errors.New("plan generation failed")
	ErrIncidentFinal   = errors.New("incident already has an analysis attached")
	ErrMissingAnalysis = errors.New("plan requires an analysis result")
)

const (
	// DefaultCallTimeout bounds each external call
	DefaultCallTimeout = 30 * time.Second
	// DefaultMinConfidence is the threshold below which an analysis is
	// treated as a failure and the workflow does not advance
	DefaultMinConfidence = 0.5
)

// AnalysisClient classifies captured evidence
type AnalysisClient interface {
	Analyze(ctx context.Context, incidentID, evidenceRef string) (*AnalysisResult, error)
}

// PlanClient produces a remediation plan from an analysis result
type PlanClient interface {
	GeneratePlan(ctx context.Context, result *AnalysisResult) (*SolutionPlan, error)
}

// HTTPAnalysisClient talks to the vision service over HTTP
type HTTPAnalysisClient struct {
	baseURL       string
	client        *http.Client
	timeout       time.Duration
	minConfidence float64
}

// NewHTTPAnalysisClient creates an analysis client. Non-positive timeout and
// confidence select defaults.
func NewHTTPAnalysisClient(baseURL string, timeout time.Duration, minConfidence float64) *HTTPAnalysisClient {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &HTTPAnalysisClient{
		baseURL:       baseURL,
		client:        &http.Client{Timeout: timeout},
		timeout:       timeout,
		minConfidence: minConfidence,
	}
}

type analyzeRequest struct {
	IncidentID  string `json:"incident_id"`
	EvidenceRef string `json:"evidence_ref"`
}

// Analyze submits evidence for classification. Results below the minimum
// confidence are surfaced as ErrLowConfidence and do not advance the
// workflow.
func (c *HTTPAnalysisClient) Analyze(ctx context.Context, incidentID, evidenceRef string) (*AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result AnalysisResult
	err := c.post(ctx, "/v1/analyze", &analyzeRequest{IncidentID: incidentID, EvidenceRef: evidenceRef}, &result)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrAnalysisTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	if result.Confidence < c.minConfidence {
		return nil, fmt.Errorf("%w: %.2f < %.2f", ErrLowConfidence, result.Confidence, c.minConfidence)
	}
	result.IncidentID = incidentID
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	return &result, nil
}

// HTTPPlanClient talks to the reasoning service over HTTP
type HTTPPlanClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPPlanClient creates a plan client
func NewHTTPPlanClient(baseURL string, timeout time.Duration) *HTTPPlanClient {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &HTTPPlanClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// GeneratePlan requests a remediation plan for an analysis result
func (c *HTTPPlanClient) GeneratePlan(ctx context.Context, result *AnalysisResult) (*SolutionPlan, error) {
	if result == nil {
		return nil, ErrMissingAnalysis
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var plan SolutionPlan
	err := c.post(ctx, "/v1/plan", result, &plan)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrPlanTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrPlanFailed, err)
	}
	plan.IncidentID = result.IncidentID
	return &plan, nil
}

func (c *HTTPAnalysisClient) post(ctx context.Context, path string, in, out any) error {
	return postJSON(ctx, c.client, c.baseURL+path, in, out)
}

func (c *HTTPPlanClient) post(ctx context.Context, path string, in, out any) error {
	return postJSON(ctx, c.client, c.baseURL+path, in, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
