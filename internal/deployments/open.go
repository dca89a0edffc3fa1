package deployments

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lakeza551/Paramk-Smart-Contract-Senior-Project/internal/config"
)

// Open returns the store the registry config selects and a function that
// releases it.
func Open(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch cfg.Registry.Driver {
	case "", config.DriverFile:
		return NewFileStore(cfg.Paths.Deployments), func() {}, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.Registry.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect registry: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping registry: %w", err)
		}
		return NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
	}
}
