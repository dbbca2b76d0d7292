package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
	"ResearchRadar/internal/research"
)

// --- fakes ---

type memProjects struct {
	mu       sync.Mutex
	projects map[string]*domain.Project
}

func newMemProjects(projects ...*domain.Project) *memProjects {
	m := &memProjects{projects: map[string]*domain.Project{}}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *memProjects) Get(_ context.Context, _, projectID string) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memProjects) ListActive(_ context.Context) ([]domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []domain.Project
	for _, p := range m.projects {
		if p.Status == domain.StatusActive {
			active = append(active, *p)
		}
	}
	return active, nil
}

func (m *memProjects) Update(_ context.Context, p *domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.projects[p.ID] = &copied
	return nil
}

func (m *memProjects) get(id string) domain.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.projects[id]
}

type statusUpdate struct {
	logID  string
	status domain.DeliveryStatus
}

type memLogs struct {
	mu      sync.Mutex
	updates []statusUpdate
}

func (m *memLogs) Save(_ context.Context, _ *domain.DeliveryLog) error { return nil }

func (m *memLogs) Get(_ context.Context, _, _, _ string) (*domain.DeliveryLog, error) {
	return nil, ports.ErrNotFound
}

func (m *memLogs) UpdateStatus(_ context.Context, _, _, logID string, status domain.DeliveryStatus, _ *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, statusUpdate{logID: logID, status: status})
	return nil
}

type memNotifications struct {
	mu    sync.Mutex
	saved []domain.AdminNotification
}

func (m *memNotifications) Save(_ context.Context, n *domain.AdminNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, *n)
	return nil
}

func (m *memNotifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type runCall struct {
	projectID string
	logStatus domain.DeliveryStatus
}

type scriptedRunner struct {
	mu      sync.Mutex
	calls   []runCall
	results []research.Result
}

func (s *scriptedRunner) Run(_ context.Context, _, projectID string, logStatus domain.DeliveryStatus) research.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, runCall{projectID: projectID, logStatus: logStatus})
	if len(s.results) == 0 {
		return research.Result{Success: true, DeliveryLogID: "log-default"}
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result
}

func (s *scriptedRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// --- helpers ---

var tickNow = time.Date(2026, time.March, 10, 8, 50, 0, 0, time.UTC)

func activeProject(id string, nextRunAt time.Time) *domain.Project {
	return &domain.Project{
		ID:           id,
		UserID:       "u1",
		Name:         "Project " + id,
		Frequency:    domain.FrequencyDaily,
		DeliveryTime: "09:00",
		Timezone:     "UTC",
		Status:       domain.StatusActive,
		NextRunAt:    &nextRunAt,
	}
}

func controller(projects *memProjects, logs *memLogs, notifications *memNotifications, runner Runner) *Controller {
	return New(Config{LookAhead: 15 * time.Minute}, projects, logs, notifications, nil, runner, nil)
}

// --- tests ---

func TestPreRunWithinLookAhead(t *testing.T) {
	t.Parallel()

	projects := newMemProjects(activeProject("p1", tickNow.Add(10*time.Minute)))
	runner := &scriptedRunner{results: []research.Result{{Success: true, DeliveryLogID: "log-1"}}}
	c := controller(projects, &memLogs{}, &memNotifications{}, runner)

	require.NoError(t, c.researchJob(context.Background(), tickNow))

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, domain.DeliveryPending, runner.calls[0].logStatus, "pre-run result is held as pending")

	p := projects.get("p1")
	assert.Equal(t, domain.StatusActive, p.Status)
	assert.Equal(t, "log-1", p.PreparedDeliveryLogID)
}

func TestProjectBeyondLookAheadNotSelected(t *testing.T) {
	t.Parallel()

	projects := newMemProjects(activeProject("p1", tickNow.Add(20*time.Minute)))
	runner := &scriptedRunner{}
	c := controller(projects, &memLogs{}, &memNotifications{}, runner)

	require.NoError(t, c.researchJob(context.Background(), tickNow))
	assert.Zero(t, runner.callCount())
}

func TestPreparedProjectNotSelectedForResearch(t *testing.T) {
	t.Parallel()

	p := activeProject("p1", tickNow.Add(5*time.Minute))
	p.PreparedDeliveryLogID = "log-held"
	projects := newMemProjects(p)
	runner := &scriptedRunner{}
	c := controller(projects, &memLogs{}, &memNotifications{}, runner)

	require.NoError(t, c.researchJob(context.Background(), tickNow))
	assert.Zero(t, runner.callCount(), "a prepared project must not run again")
}

func TestRetryRunReleasesImmediately(t *testing.T) {
	t.Parallel()

	projects := newMemProjects(activeProject("p1", tickNow.Add(-30*time.Minute)))
	runner := &scriptedRunner{results: []research.Result{{Success: true, DeliveryLogID: "log-2"}}}
	c := controller(projects, &memLogs{}, &memNotifications{}, runner)

	require.NoError(t, c.researchJob(context.Background(), tickNow))

	require.Equal(t, 1, runner.callCount())
	assert.Equal(t, domain.DeliverySuccess, runner.calls[0].logStatus, "retry run releases immediately")

	p := projects.get("p1")
	assert.Equal(t, domain.StatusActive, p.Status)
	assert.Empty(t, p.PreparedDeliveryLogID)
	require.NotNil(t, p.LastRunAt)
	require.NotNil(t, p.NextRunAt)
	assert.True(t, p.NextRunAt.After(tickNow), "schedule must advance")
}

func TestFirstFailureStaysSilent(t *testing.T) {
	t.Parallel()

	projects := newMemProjects(activeProject("p1", tickNow.Add(5*time.Minute)))
	runner := &scriptedRunner{results: []research.Result{{Success: false, Error: "search down"}}}
	notifications := &memNotifications{}
	c := controller(projects, &memLogs{}, notifications, runner)

	require.NoError(t, c.researchJob(context.Background(), tickNow))

	p := projects.get("p1")
	assert.Equal(t, domain.StatusActive, p.Status, "first failure leaves the project retryable")
	assert.Equal(t, "search down", p.LastError)
	assert.Zero(t, notifications.count(), "first failure must not notify")
}

func TestSecondConsecutiveFailureEscalatesOnce(t *testing.T) {
	t.Parallel()

	// Past due with no prepared log: the pre-run already failed, so
	// this run is the retry and its failure is the second in a row.
	projects := newMemProjects(activeProject("p1", tickNow.Add(-10*time.Minute)))
	runner := &scriptedRunner{results: []research.Result{{Success: false, Error: "still down"}}}
	notifications := &memNotifications{}
	c := controller(projects, &memLogs{}, notifications, runner)

	require.NoError(t, c.researchJob(context.Background(), tickNow))

	require.Equal(t, 1, notifications.count(), "exactly one escalation")
	assert.Equal(t, domain.SeverityCritical, notifications.saved[0].Severity)
	assert.Equal(t, "p1", notifications.saved[0].ProjectID)

	p := projects.get("p1")
	assert.Equal(t, domain.StatusError, p.Status)
	require.NotNil(t, p.NextRunAt)
	assert.True(t, p.NextRunAt.After(tickNow), "schedule forced forward")

	// The next tick must not produce a third immediate retry: the
	// project is errored and no longer selectable.
	require.NoError(t, c.researchJob(context.Background(), tickNow.Add(time.Minute)))
	assert.Equal(t, 1, runner.callCount())
	assert.Equal(t, 1, notifications.count())
}

func TestDeliveryJobReleasesPreparedResult(t *testing.T) {
	t.Parallel()

	p := activeProject("p1", tickNow.Add(-time.Minute))
	p.PreparedDeliveryLogID = "log-3"
	projects := newMemProjects(p)
	logs := &memLogs{}
	c := controller(projects, logs, &memNotifications{}, &scriptedRunner{})

	require.NoError(t, c.deliveryJob(context.Background(), tickNow))

	require.Len(t, logs.updates, 1)
	assert.Equal(t, "log-3", logs.updates[0].logID)
	assert.Equal(t, domain.DeliverySuccess, logs.updates[0].status)

	updated := projects.get("p1")
	assert.Empty(t, updated.PreparedDeliveryLogID)
	require.NotNil(t, updated.LastRunAt)
	assert.True(t, updated.LastRunAt.Equal(tickNow))
	require.NotNil(t, updated.NextRunAt)
	assert.True(t, updated.NextRunAt.After(tickNow))
}

func TestDeliveryJobWaitsForDueInstant(t *testing.T) {
	t.Parallel()

	p := activeProject("p1", tickNow.Add(5*time.Minute))
	p.PreparedDeliveryLogID = "log-4"
	projects := newMemProjects(p)
	logs := &memLogs{}
	c := controller(projects, logs, &memNotifications{}, &scriptedRunner{})

	require.NoError(t, c.deliveryJob(context.Background(), tickNow))
	assert.Empty(t, logs.updates, "delivery must wait for the scheduled instant")
}

func TestTickRunsBothJobs(t *testing.T) {
	t.Parallel()

	duePrep := activeProject("deliver-me", tickNow.Add(-time.Minute))
	duePrep.PreparedDeliveryLogID = "log-5"
	dueRun := activeProject("run-me", tickNow.Add(10*time.Minute))

	projects := newMemProjects(duePrep, dueRun)
	logs := &memLogs{}
	runner := &scriptedRunner{}
	c := controller(projects, logs, &memNotifications{}, runner)

	c.Tick(context.Background(), tickNow)

	assert.Equal(t, 1, runner.callCount())
	assert.Len(t, logs.updates, 1)
}
