package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/ownerportal/internal/store"
	memorystore "github.com/wolfeidau/ownerportal/internal/store/memory"
	postgresstore "github.com/wolfeidau/ownerportal/internal/store/postgres"
)

type Globals struct {
	Dev     bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns           int32         `help:"maximum number of connections in pool" default:"20" env:"OWNERPORTAL_POSTGRES_MAX_CONNS"`
	MinConns           int32         `help:"minimum number of connections in pool" default:"2" env:"OWNERPORTAL_POSTGRES_MIN_CONNS"`
	MaxConnLifetime    time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime    time.Duration `help:"maximum connection idle time" default:"30m"`
	ConnectRetryWindow time.Duration `help:"how long to wait for the database on startup" default:"30s" env:"OWNERPORTAL_POSTGRES_RETRY_WINDOW"`
}

func (f *PostgresFlags) Validate() error {
	if f.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (f *PostgresFlags) pool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
		ConnString:         f.ConnString,
		MaxConns:           f.MaxConns,
		MinConns:           f.MinConns,
		MaxConnLifetime:    f.MaxConnLifetime,
		MaxConnIdleTime:    f.MaxConnIdleTime,
		ConnectRetryWindow: f.ConnectRetryWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return pool, nil
}

// stores is the set of persistence backends used by the portal services.
type stores struct {
	identities store.IdentityStore
	sessions   store.SessionStore
	companies  store.CompanyStore
	members    store.MemberStore
	payouts    store.PayoutStore
	close      func()
}

func openStores(ctx context.Context, log zerolog.Logger, storeType string, pg *PostgresFlags, autoMigrate bool) (*stores, error) {
	switch storeType {
	case "postgres":
		pool, err := pg.pool(ctx)
		if err != nil {
			return nil, err
		}

		if autoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return &stores{
			identities: postgresstore.NewIdentityStore(pool),
			sessions:   postgresstore.NewSessionStore(pool),
			companies:  postgresstore.NewCompanyStore(pool),
			members:    postgresstore.NewMemberStore(pool),
			payouts:    postgresstore.NewPayoutStore(pool),
			close:      pool.Close,
		}, nil

	default:
		log.Warn().Msg("Using in-memory stores, all data is lost on restart")
		companies := memorystore.NewCompanyStore()
		return &stores{
			identities: memorystore.NewIdentityStore(),
			sessions:   memorystore.NewSessionStore(),
			companies:  companies,
			members:    memorystore.NewMemberStore(companies),
			payouts:    memorystore.NewPayoutStore(companies),
			close:      func() {},
		}, nil
	}
}
