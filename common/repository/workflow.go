package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/theoneeye/oneeye/common/db"
	"github.com/theoneeye/oneeye/common/models"
)

// ErrNotFound is returned when a workflow does not exist
var ErrNotFound = errors.New("workflow not found")

// WorkflowRepository handles database operations for stored workflows
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// Create inserts a new workflow
func (r *WorkflowRepository) Create(ctx context.Context, wf *models.Workflow) error {
	query := `
		INSERT INTO workflows (workflow_id, name, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	_, err := r.db.Exec(
		ctx,
		query,
		wf.WorkflowID,
		wf.Name,
		wf.Description,
		wf.CreatedBy,
		wf.CreatedAt,
		wf.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// GetByID retrieves a workflow by its ID
func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID uuid.UUID) (*models.Workflow, error) {
	query := `
		SELECT workflow_id, name, description, created_by, created_at, updated_at
		FROM workflows
		WHERE workflow_id = $1
	`

	wf := &models.Workflow{}
	err := r.db.QueryRow(ctx, query, workflowID).Scan(
		&wf.WorkflowID,
		&wf.Name,
		&wf.Description,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// List retrieves all workflows, newest first
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `
		SELECT workflow_id, name, description, created_by, created_at, updated_at
		FROM workflows
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf := &models.Workflow{}
		if err := rows.Scan(
			&wf.WorkflowID,
			&wf.Name,
			&wf.Description,
			&wf.CreatedBy,
			&wf.CreatedAt,
			&wf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	return workflows, rows.Err()
}

// UpdateDescription replaces the stored description
func (r *WorkflowRepository) UpdateDescription(ctx context.Context, workflowID uuid.UUID, description []byte) error {
	query := `
		UPDATE workflows
		SET description = $2, updated_at = $3
		WHERE workflow_id = $1
	`

	tag, err := r.db.Exec(ctx, query, workflowID, description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a workflow
func (r *WorkflowRepository) Delete(ctx context.Context, workflowID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workflows WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}
