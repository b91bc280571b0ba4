package registry

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medyassinekhlif/TrueCare/internal/platform/db"
	"github.com/medyassinekhlif/TrueCare/internal/platform/mongodb"
)

type transactorPG struct{ pool *pgxpool.Pool }

// NewTransactorPG runs units of work in a Postgres transaction.
func NewTransactorPG(pool *pgxpool.Pool) Transactor { return &transactorPG{pool: pool} }

func (t *transactorPG) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.RunInTx(ctx, t.pool, fn)
}

type transactorMongo struct{ store *mongodb.Store }

// NewTransactorMongo runs units of work in a MongoDB session transaction.
func NewTransactorMongo(store *mongodb.Store) Transactor { return &transactorMongo{store: store} }

func (t *transactorMongo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.store.WithTransaction(ctx, fn)
}
