// task_result_repository.go implements TaskResultRepository, the worker's
// result store. Writes are keyed upserts so reprocessing a task overwrites
// its previous result instead of adding a row.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MURUGANQA/auth-service/internal/db/models"
)

// TaskResultRepository handles database operations for task results
type TaskResultRepository struct {
	db Handle
}

// NewTaskResultRepository creates a new task result repository
func NewTaskResultRepository(db Handle) *TaskResultRepository {
	return &TaskResultRepository{db: db}
}

// Upsert stores result under result.TaskID. On conflict the response and
// status are replaced and attempts is incremented; result.Attempts and
// result.CreatedAt are refreshed from the stored row.
func (r *TaskResultRepository) Upsert(ctx context.Context, result *models.TaskResult) error {
	now := nowUnix()
	query := `
		INSERT INTO task_results (task_id, task, response, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (task_id) DO UPDATE SET
			task = EXCLUDED.task,
			response = EXCLUDED.response,
			status = EXCLUDED.status,
			attempts = task_results.attempts + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING attempts, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		result.TaskID, result.Task, result.Response, result.Status, now,
	).Scan(&result.Attempts, &result.CreatedAt)
	if err != nil {
		return mapStoreError("upsert task result", err)
	}
	result.UpdatedAt = now
	return nil
}

// GetByTaskID retrieves a stored result. Returns nil, nil when absent.
func (r *TaskResultRepository) GetByTaskID(ctx context.Context, taskID string) (*models.TaskResult, error) {
	query := `
		SELECT task_id, task, response, status, attempts, created_at, updated_at
		FROM task_results
		WHERE task_id = $1
	`
	res := &models.TaskResult{}
	err := r.db.QueryRowxContext(ctx, query, taskID).Scan(
		&res.TaskID, &res.Task, &res.Response, &res.Status, &res.Attempts, &res.CreatedAt, &res.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStoreError("get task result", err)
	}
	return res, nil
}
