package repositories

import "context"

// UnitOfWork executes a function within a single database transaction.
// Balance mutations run under serializable isolation so that the syncer and
// the settlement engine cannot produce lost updates on the same wallet.
type UnitOfWork interface {
	// Do runs fn inside a transaction; the transaction handle travels in the
	// returned context and is picked up by the repositories.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
