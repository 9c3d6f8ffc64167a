package storage

import (
	"context"

	"github.com/keybrokerhq/keybroker/pkg/models"
)

// HandlesRepo persists key handles. There is deliberately no Delete:
// destroyed handles are kept as tombstones so an ID can never be reborn.
type HandlesRepo interface {
	Count(ctx context.Context) (int, error)
	SelectAll(ctx context.Context, applyFunc func(handle models.KeyHandle)) error
	SelectExistsByID(ctx context.Context, id string) (bool, *models.KeyHandle, error)

	Insert(ctx context.Context, handle *models.KeyHandle) (*models.KeyHandle, error)
	Update(ctx context.Context, handle *models.KeyHandle) (*models.KeyHandle, error)
}
