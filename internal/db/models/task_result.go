// Package models - task_result.go defines the persisted outcome of a queued task.
package models

// TaskStatusSubmitted is recorded once a task has been processed and stored.
const TaskStatusSubmitted = "submitted"

// TaskResult is keyed by TaskID; reprocessing the same task overwrites the
// response and bumps Attempts.
type TaskResult struct {
	TaskID    string `json:"task_id"`
	Task      string `json:"task"`
	Response  string `json:"response"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}
