package reimbursement

import (
	"context"

	"github.com/google/uuid"
)

// EstimationRepository is the estimation store. Writes are insert-only.
type EstimationRepository interface {
	// Create inserts e. It returns ErrDuplicateEstimation when an estimation
	// for e.MedicalBulletinID already exists.
	Create(ctx context.Context, e *Estimation) error
	// GetByBulletin returns ErrEstimationNotFound when there is none.
	GetByBulletin(ctx context.Context, bulletinID uuid.UUID) (*Estimation, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*Estimation, error)
}
