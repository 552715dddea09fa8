package repository

import (
	"context"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside one database transaction and hands the
// transaction handle to repositories through the Tx argument.
//
// USAGE
// tm.WithTx(ctx, func(ctx context.Context, tx Tx) error {
// changed, err := payments.Transition(ctx, tx, id, result)
// ...
// return outbox.Enqueue(ctx, tx, msgs...)
// })
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres).
// Repositories MUST accept a nil Tx and fall back to the pool.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
