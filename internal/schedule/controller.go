package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
	"ResearchRadar/internal/research"
)

// Runner executes one research run for one project.
type Runner interface {
	Run(ctx context.Context, userID, projectID string, logStatus domain.DeliveryStatus) research.Result
}

// Config tunes the controller.
type Config struct {
	// LookAhead is how far before the delivery instant a pre-run may
	// start. Default 15 minutes.
	LookAhead time.Duration
}

// Controller drives the two-phase scheduling protocol on every tick:
// research (pre-run and retry) and delivery finalization.
type Controller struct {
	cfg           Config
	projects      ports.ProjectRepository
	logs          ports.DeliveryLogRepository
	notifications ports.NotificationRepository
	notifier      ports.Notifier
	runner        Runner
	logger        *slog.Logger
}

// New builds the controller. The notifier may be nil; escalations are
// always recorded through the notification repository.
func New(cfg Config, projects ports.ProjectRepository, logs ports.DeliveryLogRepository, notifications ports.NotificationRepository, notifier ports.Notifier, runner Runner, logger *slog.Logger) *Controller {
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = 15 * time.Minute
	}
	return &Controller{
		cfg:           cfg,
		projects:      projects,
		logs:          logs,
		notifications: notifications,
		notifier:      notifier,
		runner:        runner,
		logger:        logger,
	}
}

// Tick runs the research and delivery jobs concurrently for one instant.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := c.researchJob(ctx, now); err != nil {
			c.warn("research job failed", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.deliveryJob(ctx, now); err != nil {
			c.warn("delivery job failed", "error", err)
		}
	}()

	wg.Wait()
}

// researchJob selects due projects in two disjoint sets: pre-run (due
// within the look-ahead window) and retry (already past due), both with
// no prepared result, and runs them one at a time.
func (c *Controller) researchJob(ctx context.Context, now time.Time) error {
	projects, err := c.projects.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active projects: %w", err)
	}

	for i := range projects {
		project := projects[i]
		if project.NextRunAt == nil || project.PreparedDeliveryLogID != "" {
			continue
		}

		due := *project.NextRunAt
		switch {
		case due.After(now) && !due.After(now.Add(c.cfg.LookAhead)):
			c.executeRun(ctx, &project, now, false)
		case !due.After(now):
			c.executeRun(ctx, &project, now, true)
		}
	}

	return nil
}

// executeRun marks the project running, invokes the orchestrator, and
// applies the lifecycle transition its result demands. isRetry marks a
// run whose scheduled instant has already passed; its failure is by
// construction the second consecutive one and escalates.
func (c *Controller) executeRun(ctx context.Context, project *domain.Project, now time.Time, isRetry bool) {
	project.Status = domain.StatusRunning
	if err := c.projects.Update(ctx, project); err != nil {
		c.warn("could not mark project running", "project_id", project.ID, "error", err)
		return
	}

	logStatus := domain.DeliveryPending
	if isRetry {
		logStatus = domain.DeliverySuccess
	}

	c.info("starting research run", "project_id", project.ID, "retry", isRetry)
	result := c.runner.Run(ctx, project.UserID, project.ID, logStatus)

	if result.Success {
		c.applySuccess(ctx, project, result, now, isRetry)
		return
	}
	c.applyFailure(ctx, project, result, now, isRetry)
}

func (c *Controller) applySuccess(ctx context.Context, project *domain.Project, result research.Result, now time.Time, isRetry bool) {
	project.Status = domain.StatusActive
	project.LastError = ""

	if isRetry {
		// Released immediately; schedule the next period.
		project.LastRunAt = &now
		next := NextRunAt(now, project)
		project.NextRunAt = &next
		project.PreparedDeliveryLogID = ""
	} else {
		// Held as pending until the delivery instant arrives.
		project.PreparedDeliveryLogID = result.DeliveryLogID
	}

	if err := c.projects.Update(ctx, project); err != nil {
		c.warn("could not finalize successful run", "project_id", project.ID, "error", err)
	}
}

func (c *Controller) applyFailure(ctx context.Context, project *domain.Project, result research.Result, now time.Time, isRetry bool) {
	project.LastError = result.Error

	if !isRetry {
		// First failure stays silent; the project is retried at its
		// due time on a later tick.
		project.Status = domain.StatusActive
		if err := c.projects.Update(ctx, project); err != nil {
			c.warn("could not reset project after first failure", "project_id", project.ID, "error", err)
		}
		return
	}

	// Second consecutive failure: escalate and push the schedule
	// forward so the project does not retry indefinitely.
	project.Status = domain.StatusError
	next := NextRunAt(now, project)
	project.NextRunAt = &next
	if err := c.projects.Update(ctx, project); err != nil {
		c.warn("could not mark project errored", "project_id", project.ID, "error", err)
	}

	c.escalate(ctx, project, result)
}

func (c *Controller) escalate(ctx context.Context, project *domain.Project, result research.Result) {
	notification := domain.AdminNotification{
		ID:          uuid.New().String(),
		UserID:      project.UserID,
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Message:     fmt.Sprintf("research failed twice in a row for project %q", project.Name),
		Error:       result.Error,
		RetryCount:  1,
		Severity:    domain.SeverityCritical,
		CreatedAt:   time.Now(),
	}

	if err := c.notifications.Save(ctx, &notification); err != nil {
		c.warn("could not record admin notification", "project_id", project.ID, "error", err)
	}
	if c.notifier != nil {
		if err := c.notifier.NotifyAdmin(ctx, notification); err != nil {
			c.warn("could not push admin notification", "project_id", project.ID, "error", err)
		}
	}

	c.warn("project escalated after repeated failure",
		"project_id", project.ID, "error", result.Error)
}

// deliveryJob releases prepared results whose scheduled instant has
// arrived: pending flips to success, the prepared id clears, and the
// next run is computed.
func (c *Controller) deliveryJob(ctx context.Context, now time.Time) error {
	projects, err := c.projects.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active projects: %w", err)
	}

	for i := range projects {
		project := projects[i]
		if project.PreparedDeliveryLogID == "" || project.NextRunAt == nil || project.NextRunAt.After(now) {
			continue
		}

		logID := project.PreparedDeliveryLogID
		if err := c.logs.UpdateStatus(ctx, project.UserID, project.ID, logID, domain.DeliverySuccess, &now); err != nil {
			c.warn("could not release delivery", "project_id", project.ID, "log_id", logID, "error", err)
			continue
		}

		project.PreparedDeliveryLogID = ""
		project.LastRunAt = &now
		next := NextRunAt(now, &project)
		project.NextRunAt = &next

		if err := c.projects.Update(ctx, &project); err != nil {
			c.warn("could not advance project schedule", "project_id", project.ID, "error", err)
			continue
		}

		c.info("delivery released", "project_id", project.ID, "log_id", logID)
	}

	return nil
}

func (c *Controller) info(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
