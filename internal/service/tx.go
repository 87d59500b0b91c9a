package service

import (
	"context"

	"github.com/convinceme/convince-server-go/internal/database"
)

// TxRunner runs a function inside a database transaction, committing on
// nil and rolling back on error. Satisfied by *database.DB.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

var _ TxRunner = (*database.DB)(nil)
