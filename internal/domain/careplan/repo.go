package careplan

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrTerminalState is returned by Update when the stored record has already
// reached COMPLETED or FAILED.
var ErrTerminalState = errors.New("care plan is in a terminal state")

type CarePlanRepository interface {
	// Create assigns ID and timestamps and stores cp with status PENDING.
	Create(ctx context.Context, cp *CarePlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*CarePlan, error)
	// List returns care plans newest first. A limit <= 0 returns every row.
	List(ctx context.Context, limit, offset int) ([]*CarePlan, int, error)
	// Update persists status and care_plan_text and refreshes UpdatedAt.
	Update(ctx context.Context, cp *CarePlan) error
	Delete(ctx context.Context, id uuid.UUID) error
	Ping(ctx context.Context) error
}
