// Package wizard implements the assessment-creation wizard: a linear
// three-step form (details, environment, review) that validates at each step
// boundary and submits one creation request per selected assessment type.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/govlens/assessment-console/internal/models"
	"github.com/govlens/assessment-console/internal/platform"
)

// Common errors
var (
	ErrWizardNotFound   = errors.New("wizard session not found")
	ErrWizardClosed     = errors.New("wizard session is closed")
	ErrSubmitInProgress = errors.New("submit already in progress")
	ErrSubmitFailed     = errors.New("submit failed")
	ErrUnknownEnvironment = errors.New("environment does not belong to the selected client")
)

// ValidationError blocks a step transition; it is fully recoverable by
// correcting the input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// User-facing submission messages. The quota message is fixed so the UI can
// distinguish "upgrade/contact support" from generic failures.
const (
	quotaMessage         = "Assessment limit reached for your plan. Upgrade your subscription or contact support to run more assessments."
	genericSubmitMessage = "Failed to create assessments. Please try again."
	envLoadMessage       = "Failed to load environments for the selected client. Re-select the client to retry."
)

// PlatformAPI is the slice of the platform client the wizard needs
type PlatformAPI interface {
	ListClients(ctx context.Context) ([]models.Client, error)
	ListEnvironments(ctx context.Context, clientID string) ([]models.Environment, error)
	CreateAssessment(ctx context.Context, req models.CreateAssessmentRequest) (*models.Assessment, error)
}

// TypeCatalog resolves assessment type ids to their descriptors
type TypeCatalog interface {
	GetType(id int) *models.AssessmentType
}

// Recorder receives one audit entry per creation request issued by Submit,
// success or failure. A nil Recorder disables auditing.
type Recorder interface {
	RecordSubmission(ctx context.Context, rec *models.SubmissionRecord) error
}

// State is the wizard's form state. It is owned exclusively by one wizard
// session and discarded on close.
type State struct {
	ID                    string               `json:"id"`
	Step                  models.WizardStep    `json:"step"`
	AssessmentName        string               `json:"assessment_name"`
	SelectedClient        *models.Client       `json:"selected_client,omitempty"`
	SelectedTypeIDs       []int                `json:"selected_type_ids"`
	SelectedEnvironmentID string               `json:"selected_environment_id,omitempty"`
	UseClientPreferences  bool                 `json:"use_client_preferences"`
	Environments          []models.Environment `json:"environments"`
	SubmissionError       string               `json:"submission_error,omitempty"`
	IsSubmitting          bool                 `json:"is_submitting"`
}

// HasType reports membership in the selected type set
func (s *State) HasType(id int) bool {
	for _, t := range s.SelectedTypeIDs {
		if t == id {
			return true
		}
	}
	return false
}

// CanOfferPreferences reports whether the client-preferences toggle may be
// offered: both a client and an environment must be selected.
func (s *State) CanOfferPreferences() bool {
	return s.SelectedClient != nil && s.SelectedEnvironmentID != ""
}

// SummaryText renders the selected-types summary for the review step
func (s *State) SummaryText(catalog TypeCatalog) string {
	switch len(s.SelectedTypeIDs) {
	case 0:
		return "No assessments selected"
	case 1:
		if t := catalog.GetType(s.SelectedTypeIDs[0]); t != nil {
			return t.Name
		}
		return "1 assessment selected"
	default:
		return fmt.Sprintf("%d assessments selected", len(s.SelectedTypeIDs))
	}
}

// EstimatedMinutes sums the upper-bound duration estimates of the selection
func (s *State) EstimatedMinutes(catalog TypeCatalog) int {
	total := 0
	for _, id := range s.SelectedTypeIDs {
		if t := catalog.GetType(id); t != nil {
			total += t.EstimatedUpperMinutes()
		}
	}
	return total
}

// Wizard is one open wizard session
type Wizard struct {
	mu        sync.Mutex
	state     State
	closed    bool
	envGen    int
	lastTouch time.Time

	platform  PlatformAPI
	catalog   TypeCatalog
	recorder  Recorder
	onCreated func(*models.Assessment)

	loadTimeout time.Duration
}

func newWizard(id string, platform PlatformAPI, catalog TypeCatalog, recorder Recorder, onCreated func(*models.Assessment)) *Wizard {
	return &Wizard{
		state: State{
			ID:              id,
			Step:            models.StepDetails,
			SelectedTypeIDs: []int{},
			Environments:    []models.Environment{},
		},
		lastTouch:   time.Now(),
		platform:    platform,
		catalog:     catalog,
		recorder:    recorder,
		onCreated:   onCreated,
		loadTimeout: 30 * time.Second,
	}
}

// ID returns the session id
func (w *Wizard) ID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.ID
}

// Snapshot returns a copy of the current state safe to hand to callers
func (w *Wizard) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() State {
	s := w.state
	s.SelectedTypeIDs = append([]int(nil), w.state.SelectedTypeIDs...)
	s.Environments = append([]models.Environment(nil), w.state.Environments...)
	if w.state.SelectedClient != nil {
		c := *w.state.SelectedClient
		s.SelectedClient = &c
	}
	return s
}

// IdleSince returns the time of the last interaction
func (w *Wizard) IdleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastTouch
}

func (w *Wizard) touchLocked() {
	w.lastTouch = time.Now()
}

// SelectClient switches the wizard's client. The environment selection and
// the preferences flag are reset unconditionally: environment choices are
// client-scoped and stale selections must not leak across clients. A fresh
// environment load is started for the new client.
func (w *Wizard) SelectClient(client models.Client) (State, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return State{}, ErrWizardClosed
	}

	c := client
	w.state.SelectedClient = &c
	w.state.SelectedEnvironmentID = ""
	w.state.UseClientPreferences = false
	w.state.Environments = []models.Environment{}
	w.envGen++
	gen := w.envGen
	w.touchLocked()
	snap := w.snapshotLocked()
	w.mu.Unlock()

	go w.loadEnvironments(client.ID, gen)

	return snap, nil
}

// loadEnvironments fetches the environment list for a client. The generation
// counter discards results that arrive after the wizard closed or after a
// later SelectClient superseded this load.
func (w *Wizard) loadEnvironments(clientID string, gen int) {
	ctx, cancel := context.WithTimeout(context.Background(), w.loadTimeout)
	defer cancel()

	envs, err := w.platform.ListEnvironments(ctx, clientID)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || gen != w.envGen {
		slog.Debug("discarding stale environment load", "wizard", w.state.ID, "client", clientID)
		return
	}

	if err != nil {
		slog.Warn("environment load failed", "wizard", w.state.ID, "client", clientID, "error", err)
		w.state.Environments = []models.Environment{}
		w.state.SubmissionError = envLoadMessage
		return
	}

	w.state.Environments = envs
	w.state.SubmissionError = ""
}

// SetName sets the assessment name
func (w *Wizard) SetName(name string) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return State{}, ErrWizardClosed
	}
	w.state.AssessmentName = name
	w.touchLocked()
	return w.snapshotLocked(), nil
}

// ToggleType flips membership of a type id in the selection: add if absent,
// remove if present. The selection is replaced copy-on-write so snapshots
// handed out earlier never alias the live slice. No bounds are enforced here;
// emptiness is checked at step-advance time.
func (w *Wizard) ToggleType(id int) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return State{}, ErrWizardClosed
	}

	next := make([]int, 0, len(w.state.SelectedTypeIDs)+1)
	found := false
	for _, t := range w.state.SelectedTypeIDs {
		if t == id {
			found = true
			continue
		}
		next = append(next, t)
	}
	if !found {
		next = append(next, id)
	}
	w.state.SelectedTypeIDs = next
	w.touchLocked()
	return w.snapshotLocked(), nil
}

// SelectEnvironment picks a target environment from the loaded list
func (w *Wizard) SelectEnvironment(envID string) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return State{}, ErrWizardClosed
	}

	found := false
	for _, env := range w.state.Environments {
		if env.ID == envID {
			found = true
			break
		}
	}
	if !found {
		return w.snapshotLocked(), ErrUnknownEnvironment
	}

	w.state.SelectedEnvironmentID = envID
	w.touchLocked()
	return w.snapshotLocked(), nil
}

// SetUsePreferences toggles applying client-specific preference overrides.
// Enabling it requires both a client and an environment to be selected.
func (w *Wizard) SetUsePreferences(use bool) (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return State{}, ErrWizardClosed
	}

	if use && !w.state.CanOfferPreferences() {
		return w.snapshotLocked(), &ValidationError{Message: "select a client and environment before applying client preferences"}
	}

	w.state.UseClientPreferences = use
	w.touchLocked()
	return w.snapshotLocked(), nil
}

// Advance validates the current step's required fields and moves forward.
// On validation failure the step does not change, and the message is surfaced
// through the state.
func (w *Wizard) Advance() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return State{}, ErrWizardClosed
	}

	if msg := w.validateStepLocked(); msg != "" {
		w.state.SubmissionError = msg
		w.touchLocked()
		return w.snapshotLocked(), &ValidationError{Message: msg}
	}

	w.state.SubmissionError = ""
	w.state.Step++
	w.touchLocked()
	return w.snapshotLocked(), nil
}

func (w *Wizard) validateStepLocked() string {
	switch w.state.Step {
	case models.StepDetails:
		if w.state.AssessmentName == "" {
			return "assessment name is required"
		}
		if w.state.SelectedClient == nil {
			return "select a client before continuing"
		}
		if len(w.state.SelectedTypeIDs) == 0 {
			return "select at least one assessment type"
		}
	case models.StepEnvironment:
		if w.state.SelectedEnvironmentID == "" {
			return "select a target environment"
		}
	case models.StepReview:
		return "the review step submits, it does not advance"
	}
	return ""
}

// Retreat moves one step back and clears any error. No-op at the first step.
func (w *Wizard) Retreat() (State, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return State{}, ErrWizardClosed
	}

	if w.state.Step > models.StepDetails {
		w.state.Step--
		w.state.SubmissionError = ""
	}
	w.touchLocked()
	return w.snapshotLocked(), nil
}

// Submit issues one creation request per selected type, all concurrently, and
// waits for all of them to settle. Either every request succeeds — the
// creation hook fires once per result in the order the types were selected
// and the wizard closes — or the whole submit is treated as failed: the
// wizard stays open at the review step with an actionable error and no hook
// fires for the requests that did succeed. Re-entrant calls while a submit is
// in flight are rejected without side effects.
func (w *Wizard) Submit(ctx context.Context) ([]*models.Assessment, State, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, State{}, ErrWizardClosed
	}
	if w.state.IsSubmitting {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return nil, snap, ErrSubmitInProgress
	}
	if w.state.Step != models.StepReview {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return nil, snap, &ValidationError{Message: "complete all wizard steps before submitting"}
	}

	// Resolve descriptors up front so every request has a display name for
	// disambiguation.
	types := make([]*models.AssessmentType, 0, len(w.state.SelectedTypeIDs))
	for _, id := range w.state.SelectedTypeIDs {
		t := w.catalog.GetType(id)
		if t == nil {
			snap := w.snapshotLocked()
			w.mu.Unlock()
			return nil, snap, &ValidationError{Message: fmt.Sprintf("unknown assessment type selected: %d", id)}
		}
		types = append(types, t)
	}

	baseName := w.state.AssessmentName
	envID := w.state.SelectedEnvironmentID
	usePrefs := w.state.UseClientPreferences
	clientID := ""
	if w.state.SelectedClient != nil {
		clientID = w.state.SelectedClient.ID
	}
	wizardID := w.state.ID

	w.state.IsSubmitting = true
	w.state.SubmissionError = ""
	w.touchLocked()
	w.mu.Unlock()

	// All requests are fired together; completions may interleave in any
	// order, but results stay indexed by issue position.
	requests := make([]models.CreateAssessmentRequest, len(types))
	for i, t := range types {
		name := baseName
		if len(types) > 1 {
			name = baseName + " - " + t.Name
		}
		requests[i] = models.CreateAssessmentRequest{
			EnvironmentID:        envID,
			Name:                 name,
			Type:                 t.ID,
			UseClientPreferences: usePrefs,
		}
	}

	results := make([]*models.Assessment, len(requests))
	errs := make([]error, len(requests))

	var wg sync.WaitGroup
	for i := range requests {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = w.platform.CreateAssessment(ctx, requests[i])
		}(i)
	}
	wg.Wait()

	w.audit(wizardID, clientID, requests, results, errs)

	failure := pickSubmissionError(errs)

	w.mu.Lock()
	if w.closed {
		// The host dismissed the wizard mid-flight; there is no state left
		// to receive the outcome and no callbacks may fire into a dead view.
		w.mu.Unlock()
		return nil, State{}, ErrWizardClosed
	}

	if failure != "" {
		w.state.IsSubmitting = false
		w.state.SubmissionError = failure
		w.touchLocked()
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return nil, snap, fmt.Errorf("%w: %s", ErrSubmitFailed, failure)
	}

	w.closed = true
	w.state = State{ID: wizardID, Step: models.StepDetails, SelectedTypeIDs: []int{}, Environments: []models.Environment{}}
	w.mu.Unlock()

	// Hooks fire in request-issue order so downstream consumers see a
	// deterministic sequence regardless of completion order.
	if w.onCreated != nil {
		for _, a := range results {
			w.onCreated(a)
		}
	}

	slog.Info("wizard submitted", "wizard", wizardID, "client", clientID, "created", len(results))
	return results, State{}, nil
}

// audit records one entry per settled request. Failures here are logged, not
// surfaced; the audit trail is operational, not part of the submit contract.
func (w *Wizard) audit(wizardID, clientID string, requests []models.CreateAssessmentRequest, results []*models.Assessment, errs []error) {
	if w.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i, req := range requests {
		rec := &models.SubmissionRecord{
			WizardID:      wizardID,
			ClientID:      clientID,
			EnvironmentID: req.EnvironmentID,
			Name:          req.Name,
			TypeID:        req.Type,
			Succeeded:     errs[i] == nil,
			CreatedAt:     time.Now(),
		}
		if errs[i] != nil {
			rec.ErrorMessage = errs[i].Error()
		} else if results[i] != nil {
			rec.AssessmentID = results[i].ID
		}

		if err := w.recorder.RecordSubmission(ctx, rec); err != nil {
			slog.Error("failed to record submission", "error", err, "wizard", wizardID, "type", req.Type)
		}
	}
}

// pickSubmissionError chooses the most actionable message from the settled
// errors: a quota signal wins, then the first server-supplied message in
// issue order, then the generic fallback.
func pickSubmissionError(errs []error) string {
	any := false
	serverMsg := ""
	for _, err := range errs {
		if err == nil {
			continue
		}
		any = true
		if errors.Is(err, platform.ErrQuotaExceeded) {
			return quotaMessage
		}
		var apiErr *platform.APIError
		if serverMsg == "" && errors.As(err, &apiErr) && apiErr.Message != "" {
			serverMsg = apiErr.Message
		}
	}
	if !any {
		return ""
	}
	if serverMsg != "" {
		return serverMsg
	}
	return genericSubmitMessage
}

// Close resets the state to defaults and marks the session closed. Safe to
// call at any step; in-flight loads and submissions discard their results.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.state = State{ID: w.state.ID, Step: models.StepDetails, SelectedTypeIDs: []int{}, Environments: []models.Environment{}}
}

// Closed reports whether the session has been closed
func (w *Wizard) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Submitting reports whether a submit is currently in flight
func (w *Wizard) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.IsSubmitting
}
