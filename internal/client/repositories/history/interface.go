// Package history keeps the local record of operations run against devices.
package history

import (
	"context"

	"github.com/dmitrijs2005/blefs/internal/client/models"
)

// Repository stores transfer records.
type Repository interface {
	// Start inserts t, normally with StatusRunning.
	Start(ctx context.Context, t *models.Transfer) error

	// Finish records the outcome of the operation with the given id.
	Finish(ctx context.Context, id string, out models.Outcome) error

	// List returns up to limit records, newest first. A non-positive limit
	// returns everything.
	List(ctx context.Context, limit int) ([]models.Transfer, error)
}
