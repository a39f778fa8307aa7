// Package platform is the HTTP client for the upstream assessment platform.
// The console consumes the platform's REST contract and owns nothing behind it;
// all persistence of clients, environments and assessments is server-side.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/govlens/assessment-console/internal/models"
)

// ErrQuotaExceeded signals the platform's 402-class "assessment limit reached"
// failure mode, which callers surface distinctly from generic failures.
var ErrQuotaExceeded = errors.New("assessment quota exceeded")

// APIError carries a structured error message returned by the platform
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client talks to the assessment platform REST API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new platform client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListClients retrieves all clients managed by the MSP
func (c *Client) ListClients(ctx context.Context) ([]models.Client, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/clients", nil)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		ClientID string `json:"clientId"`
		ID       string `json:"client_id"`
		Name     string `json:"name"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal clients: %w", err)
	}

	clients := make([]models.Client, 0, len(payload))
	for _, p := range payload {
		id := p.ClientID
		if id == "" {
			id = p.ID
		}
		clients = append(clients, models.Client{ID: id, Name: p.Name})
	}
	return clients, nil
}

// ListEnvironments retrieves the environments belonging to a client.
// An empty list is a valid result, not an error.
func (c *Client) ListEnvironments(ctx context.Context, clientID string) ([]models.Environment, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/environments/client/"+clientID, nil)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		EnvironmentID   string   `json:"environmentId"`
		ID              string   `json:"environment_id"`
		Name            string   `json:"name"`
		SubscriptionIDs []string `json:"subscriptionIds"`
		SubscriptionAlt []string `json:"subscription_ids"`
	}
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environments: %w", err)
	}

	envs := make([]models.Environment, 0, len(payload))
	for _, p := range payload {
		id := p.EnvironmentID
		if id == "" {
			id = p.ID
		}
		subs := p.SubscriptionIDs
		if len(subs) == 0 {
			subs = p.SubscriptionAlt
		}
		envs = append(envs, models.Environment{ID: id, Name: p.Name, SubscriptionIDs: subs})
	}
	return envs, nil
}

// CreateAssessment issues one assessment creation request
func (c *Client) CreateAssessment(ctx context.Context, req models.CreateAssessmentRequest) (*models.Assessment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/assessments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var payload assessmentPayload
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment: %w", err)
	}

	return payload.normalize(), nil
}

// GetAssessmentStatus fetches a fresh status snapshot for an assessment
func (c *Client) GetAssessmentStatus(ctx context.Context, id string) (*models.Assessment, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/assessments/%s/status", id), nil)
	if err != nil {
		return nil, err
	}

	var payload assessmentPayload
	if err := json.Unmarshal(resp, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment status: %w", err)
	}

	snap := payload.normalize()
	if snap.ID == "" {
		snap.ID = id
	}
	return snap, nil
}

// ListFindings retrieves the findings of a completed assessment
func (c *Client) ListFindings(ctx context.Context, id string) ([]models.Finding, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/assessments/%s/findings", id), nil)
	if err != nil {
		return nil, err
	}

	var findings []models.Finding
	if err := json.Unmarshal(resp, &findings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal findings: %w", err)
	}
	return findings, nil
}

// assessmentPayload absorbs the platform's inconsistently-cased assessment
// fields. Different backend paths return the type as "type" or
// "assessmentType" and dates as camelCase or snake_case; normalization
// happens once here so the rest of the console sees one canonical shape.
type assessmentPayload struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Type          int      `json:"type"`
	TypeAlt       int      `json:"assessmentType"`
	Status        string   `json:"status"`
	StartedDate   string   `json:"startedDate"`
	StartedAlt    string   `json:"started_date"`
	CompletedDate string   `json:"completedDate"`
	CompletedAlt  string   `json:"completed_date"`
	OverallScore  *float64 `json:"overallScore"`
	ScoreAlt      *float64 `json:"overall_score"`
	ResourceCount *int     `json:"resourceCount"`
	ResourceAlt   *int     `json:"resource_count"`
}

func (p *assessmentPayload) normalize() *models.Assessment {
	a := &models.Assessment{
		ID:     p.ID,
		Name:   p.Name,
		Type:   p.Type,
		Status: models.AssessmentStatus(p.Status),
	}

	if a.Type == 0 {
		a.Type = p.TypeAlt
	}
	if t := parseDate(p.StartedDate, p.StartedAlt); t != nil {
		a.StartedAt = *t
	}
	a.CompletedAt = parseDate(p.CompletedDate, p.CompletedAlt)

	a.OverallScore = p.OverallScore
	if a.OverallScore == nil {
		a.OverallScore = p.ScoreAlt
	}
	a.ResourceCount = p.ResourceCount
	if a.ResourceCount == nil {
		a.ResourceCount = p.ResourceAlt
	}

	return a
}

func parseDate(candidates ...string) *time.Time {
	for _, s := range candidates {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return &t
		}
	}
	return nil
}

// doRequest performs an HTTP request and maps failure modes to the error taxonomy
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, errorFromResponse(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// errorFromResponse maps an error response to the taxonomy: 402-class means
// quota exceeded, a structured error body is surfaced verbatim, anything else
// falls back to a generic HTTP error.
func errorFromResponse(status int, body []byte) error {
	if status == http.StatusPaymentRequired {
		return ErrQuotaExceeded
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &APIError{StatusCode: status, Message: payload.Error}
	}

	return fmt.Errorf("platform request failed: HTTP %d", status)
}
