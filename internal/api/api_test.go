package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govlens/assessment-console/internal/catalog"
	"github.com/govlens/assessment-console/internal/config"
	"github.com/govlens/assessment-console/internal/models"
	"github.com/govlens/assessment-console/internal/tracker"
	"github.com/govlens/assessment-console/internal/wizard"
)

// stubPlatform backs the wizard manager, the tracker manager, and the API's
// direct platform calls in one fake
type stubPlatform struct {
	mu       sync.Mutex
	statuses map[string]models.AssessmentStatus
}

func newStubPlatform() *stubPlatform {
	return &stubPlatform{statuses: map[string]models.AssessmentStatus{}}
}

func (s *stubPlatform) ListClients(ctx context.Context) ([]models.Client, error) {
	return []models.Client{{ID: "c-1", Name: "Contoso"}}, nil
}

func (s *stubPlatform) ListEnvironments(ctx context.Context, clientID string) ([]models.Environment, error) {
	return []models.Environment{{ID: "env-1", Name: "Production"}}, nil
}

func (s *stubPlatform) CreateAssessment(ctx context.Context, req models.CreateAssessmentRequest) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := fmt.Sprintf("a-%d", req.Type)
	s.statuses[id] = models.StatusPending
	return &models.Assessment{ID: id, Name: req.Name, Type: req.Type, Status: models.StatusPending}, nil
}

func (s *stubPlatform) GetAssessmentStatus(ctx context.Context, id string) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[id]
	if !ok {
		status = models.StatusInProgress
	}
	return &models.Assessment{ID: id, Status: status, StartedAt: time.Now()}, nil
}

func (s *stubPlatform) ListFindings(ctx context.Context, id string) ([]models.Finding, error) {
	return []models.Finding{
		{ID: "f-1", Severity: "High", Description: "Public storage account"},
		{ID: "f-2", Severity: "Low", Description: "Missing resource tags"},
		{ID: "f-3", Severity: "high", Description: "RBAC role too broad"},
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testConsole struct {
	srv      *httptest.Server
	platform *stubPlatform
}

func newTestConsole(t *testing.T, token string) *testConsole {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bcdr.yaml"), []byte(`
id: bcdr
name: Business Continuity
types:
  - id: 7
    name: Backup Coverage
    estimated_duration: "5-10"
  - id: 8
    name: Recovery Configuration
    estimated_duration: "10-15"
`), 0o644))

	loader := catalog.NewLoader()
	require.NoError(t, loader.LoadFromDir(dir))

	p := newStubPlatform()
	trackers := tracker.NewManager(p, tracker.WithInterval(20*time.Millisecond), tracker.WithGraceDelay(time.Millisecond))
	t.Cleanup(trackers.StopAll)

	wizards := wizard.NewManager(p, loader)

	server := NewServer(config.ServerConfig{AuthToken: token}, wizards, trackers, p, loader, nil)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	return &testConsole{srv: srv, platform: p}
}

func (c *testConsole) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (c *testConsole) decode(t *testing.T, raw json.RawMessage, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, out))
}

func TestHealthIsPublic(t *testing.T) {
	c := newTestConsole(t, "test-token")

	resp, err := http.Get(c.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthGuardsAPIRoutes(t *testing.T) {
	c := newTestConsole(t, "test-token")

	resp, err := http.Get(c.srv.URL + "/api/v1/clients")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, c.srv.URL+"/api/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	status, env := c.do(t, http.MethodGet, "/api/v1/clients", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestCatalogEndpoints(t *testing.T) {
	c := newTestConsole(t, "test-token")

	status, env := c.do(t, http.MethodGet, "/api/v1/catalog/domains", nil)
	require.Equal(t, http.StatusOK, status)

	var domains struct {
		Domains []*models.AssessmentDomain `json:"domains"`
		Total   int                        `json:"total"`
	}
	c.decode(t, env.Data, &domains)
	require.Equal(t, 1, domains.Total)
	assert.Equal(t, "bcdr", domains.Domains[0].ID)

	status, env = c.do(t, http.MethodGet, "/api/v1/catalog/types/7", nil)
	require.Equal(t, http.StatusOK, status)
	var typ models.AssessmentType
	c.decode(t, env.Data, &typ)
	assert.Equal(t, "Backup Coverage", typ.Name)

	status, env = c.do(t, http.MethodGet, "/api/v1/catalog/types/999", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestWizardFlowEndToEnd(t *testing.T) {
	c := newTestConsole(t, "test-token")

	// Open a session
	status, env := c.do(t, http.MethodPost, "/api/v1/wizards", nil)
	require.Equal(t, http.StatusCreated, status)
	var state wizard.State
	c.decode(t, env.Data, &state)
	require.NotEmpty(t, state.ID)
	assert.Equal(t, models.StepDetails, state.Step)

	base := "/api/v1/wizards/" + state.ID

	// Premature advance fails validation without moving
	status, env = c.do(t, http.MethodPost, base+"/advance", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_error", env.Error.Code)

	// Fill in the details step
	status, _ = c.do(t, http.MethodPost, base+"/name", models.SetNameRequest{Name: "Q3 Compliance"})
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(t, http.MethodPost, base+"/client", models.SelectClientRequest{Client: models.Client{ID: "c-1", Name: "Contoso"}})
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(t, http.MethodPost, base+"/types/7/toggle", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(t, http.MethodPost, base+"/types/8/toggle", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = c.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, status)
	c.decode(t, env.Data, &state)
	assert.Equal(t, models.StepEnvironment, state.Step)

	// Environments load asynchronously after client selection
	require.Eventually(t, func() bool {
		_, env := c.do(t, http.MethodGet, base, nil)
		c.decode(t, env.Data, &state)
		return len(state.Environments) == 1
	}, 2*time.Second, 10*time.Millisecond)

	status, _ = c.do(t, http.MethodPost, base+"/environment", models.SelectEnvironmentRequest{EnvironmentID: "env-1"})
	require.Equal(t, http.StatusOK, status)

	status, env = c.do(t, http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, status)
	c.decode(t, env.Data, &state)
	assert.Equal(t, models.StepReview, state.Step)

	// Review summary
	status, env = c.do(t, http.MethodGet, base+"/summary", nil)
	require.Equal(t, http.StatusOK, status)
	var summary struct {
		Summary          string `json:"summary"`
		EstimatedMinutes int    `json:"estimated_minutes"`
		SelectedCount    int    `json:"selected_count"`
	}
	c.decode(t, env.Data, &summary)
	assert.Equal(t, "2 assessments selected", summary.Summary)
	assert.Equal(t, 25, summary.EstimatedMinutes)

	// Submit creates one assessment per type with disambiguated names
	status, env = c.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusCreated, status)
	var submitted models.SubmitResponse
	c.decode(t, env.Data, &submitted)
	require.Len(t, submitted.Created, 2)
	assert.Equal(t, "Q3 Compliance - Backup Coverage", submitted.Created[0].Name)
	assert.Equal(t, "Q3 Compliance - Recovery Configuration", submitted.Created[1].Name)

	// The session is gone after a successful submit
	status, _ = c.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWizardNotFound(t *testing.T) {
	c := newTestConsole(t, "test-token")

	status, env := c.do(t, http.MethodGet, "/api/v1/wizards/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Code)

	status, _ = c.do(t, http.MethodDelete, "/api/v1/wizards/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProgressTrackingEndpoints(t *testing.T) {
	c := newTestConsole(t, "test-token")

	status, env := c.do(t, http.MethodPost, "/api/v1/assessments/a-7/track", nil)
	require.Equal(t, http.StatusOK, status)
	var p tracker.Progress
	c.decode(t, env.Data, &p)
	assert.Equal(t, "a-7", p.AssessmentID)

	// The stub reports InProgress for unknown assessments, so the poll loop
	// keeps running and the snapshot advances to 50%.
	require.Eventually(t, func() bool {
		status, env := c.do(t, http.MethodGet, "/api/v1/assessments/a-7/progress", nil)
		if status != http.StatusOK {
			return false
		}
		c.decode(t, env.Data, &p)
		return p.Status == models.StatusInProgress && p.Percent == 50
	}, 2*time.Second, 10*time.Millisecond)

	// Results handoff is only offered once the assessment has completed
	status, env = c.do(t, http.MethodPost, "/api/v1/assessments/a-7/results/view", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "not_completed", env.Error.Code)

	status, _ = c.do(t, http.MethodDelete, "/api/v1/assessments/a-7/track", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = c.do(t, http.MethodGet, "/api/v1/assessments/a-7/progress", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = c.do(t, http.MethodPost, "/api/v1/assessments/a-7/results/view", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestProgressStreamDeliversSnapshotsUntilTerminal(t *testing.T) {
	c := newTestConsole(t, "test-token")
	c.platform.mu.Lock()
	c.platform.statuses["a-done"] = models.StatusCompleted
	c.platform.mu.Unlock()

	url := "ws" + strings.TrimPrefix(c.srv.URL, "http") + "/api/v1/assessments/a-done/progress/stream"
	header := http.Header{"Authorization": []string{"Bearer test-token"}}

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var last tracker.Progress
	for {
		var p tracker.Progress
		if err := conn.ReadJSON(&p); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close: %v", err)
			break
		}
		last = p
	}

	assert.Equal(t, models.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
}

func TestFindingsPassthrough(t *testing.T) {
	c := newTestConsole(t, "test-token")

	status, env := c.do(t, http.MethodGet, "/api/v1/assessments/a-1/findings", nil)
	require.Equal(t, http.StatusOK, status)

	var payload struct {
		Findings []models.Finding `json:"findings"`
		Total    int              `json:"total"`
		Counts   map[string]int   `json:"counts_by_severity"`
	}
	c.decode(t, env.Data, &payload)
	require.Equal(t, 3, payload.Total)
	assert.Equal(t, map[string]int{"high": 2, "low": 1}, payload.Counts)

	status, env = c.do(t, http.MethodGet, "/api/v1/assessments/a-1/findings?severity=high", nil)
	require.Equal(t, http.StatusOK, status)
	c.decode(t, env.Data, &payload)
	require.Equal(t, 2, payload.Total)
	for _, f := range payload.Findings {
		assert.Equal(t, "high", strings.ToLower(f.Severity))
	}
	// counts stay unfiltered so the UI can render the severity tabs
	assert.Equal(t, map[string]int{"high": 2, "low": 1}, payload.Counts)
}

func TestSubmissionsEndpointWithoutAuditStore(t *testing.T) {
	c := newTestConsole(t, "test-token")

	status, env := c.do(t, http.MethodGet, "/api/v1/submissions", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "audit_disabled", env.Error.Code)
}
