package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/medyassinekhlif/TrueCare/internal/config"
	"github.com/medyassinekhlif/TrueCare/internal/domain/registry"
	"github.com/medyassinekhlif/TrueCare/internal/domain/reimbursement"
	"github.com/medyassinekhlif/TrueCare/internal/platform/db"
	"github.com/medyassinekhlif/TrueCare/internal/platform/mongodb"
)

// stores is the persistence selected by STORE_DRIVER.
type stores struct {
	registry    *registry.Repos
	estimations reimbursement.EstimationRepository
	health      db.Pinger
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := mongodb.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		indexes := append(registry.MongoIndexes(), reimbursement.MongoIndexes()...)
		if err := store.EnsureIndexes(ctx, indexes); err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		return &stores{
			registry:    registry.NewReposMongo(store),
			estimations: reimbursement.NewEstimationRepoMongo(store),
			health:      store,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = store.Close(ctx)
			},
		}, nil

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &stores{
			registry:    registry.NewReposPG(pool),
			estimations: reimbursement.NewEstimationRepoPG(pool),
			health:      pool,
			close:       pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
