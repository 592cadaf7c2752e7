package coding

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunRecord is one persisted pipeline run. The full result is stored as a
// document; Approved and ClaimStatus are denormalized for listing without
// unpacking it.
type RunRecord struct {
	ID          uuid.UUID       `json:"id"`
	Approved    bool            `json:"approved"`
	ClaimStatus string          `json:"claim_status"`
	Result      *PipelineResult `json:"result"`
	CreatedAt   time.Time       `json:"created_at"`
}

type RunRepository interface {
	Create(ctx context.Context, r *RunRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	List(ctx context.Context, limit, offset int) ([]*RunRecord, int, error)
}
