package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Workflow is a persisted workflow description
type Workflow struct {
	WorkflowID  uuid.UUID       `json:"workflow_id"`
	Name        string          `json:"name"`
	Description json.RawMessage `json:"description"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
