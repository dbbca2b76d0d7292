package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ResearchRadar/internal/domain"
	"ResearchRadar/internal/ports"
)

// ProjectRepository persists projects in Postgres. The nested search
// parameters and settings live in JSONB columns; the scheduling fields
// are plain columns so the controller can filter on them.
type ProjectRepository struct {
	pool *pgxpool.Pool
}

var _ ports.ProjectRepository = (*ProjectRepository)(nil)

// NewProjectRepository wires a connection pool.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{pool: pool}
}

var projectColumns = []string{
	"id", "user_id", "name", "description",
	"frequency", "delivery_time", "timezone",
	"search_parameters", "settings",
	"status", "last_run_at", "next_run_at", "last_error",
	"prepared_delivery_log_id", "created_at", "updated_at",
}

// Get loads one project scoped to its owner.
func (r *ProjectRepository) Get(ctx context.Context, userID, projectID string) (*domain.Project, error) {
	query, args, err := psql.Select(projectColumns...).
		From("projects").
		Where(sq.Eq{"user_id": userID, "id": projectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build project query: %w", err)
	}

	project, err := scanProject(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListActive returns every project in the active state, across users.
func (r *ProjectRepository) ListActive(ctx context.Context) ([]domain.Project, error) {
	query, args, err := psql.Select(projectColumns...).
		From("projects").
		Where(sq.Eq{"status": string(domain.StatusActive)}).
		OrderBy("next_run_at ASC NULLS LAST").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active projects query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	defer rows.Close()

	var projects []domain.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return projects, nil
}

// Update writes the mutable project fields back.
func (r *ProjectRepository) Update(ctx context.Context, project *domain.Project) error {
	searchParams, err := json.Marshal(project.SearchParameters)
	if err != nil {
		return fmt.Errorf("marshal search parameters: %w", err)
	}
	settings, err := json.Marshal(project.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query, args, err := psql.Update("projects").
		Set("name", project.Name).
		Set("description", project.Description).
		Set("frequency", string(project.Frequency)).
		Set("delivery_time", project.DeliveryTime).
		Set("timezone", project.Timezone).
		Set("search_parameters", searchParams).
		Set("settings", settings).
		Set("status", string(project.Status)).
		Set("last_run_at", project.LastRunAt).
		Set("next_run_at", project.NextRunAt).
		Set("last_error", project.LastError).
		Set("prepared_delivery_log_id", project.PreparedDeliveryLogID).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"user_id": project.UserID, "id": project.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build project update: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var (
		project      domain.Project
		searchParams []byte
		settings     []byte
	)
	err := row.Scan(
		&project.ID, &project.UserID, &project.Name, &project.Description,
		&project.Frequency, &project.DeliveryTime, &project.Timezone,
		&searchParams, &settings,
		&project.Status, &project.LastRunAt, &project.NextRunAt, &project.LastError,
		&project.PreparedDeliveryLogID, &project.CreatedAt, &project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(searchParams) > 0 {
		if err := json.Unmarshal(searchParams, &project.SearchParameters); err != nil {
			return nil, fmt.Errorf("unmarshal search parameters: %w", err)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &project.Settings); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	}
	return &project, nil
}
