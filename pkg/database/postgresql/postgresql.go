package postgresql

import (
	"context"
	"sync"
	"time"

	"github.com/S1riyS/vfsd/internal/config"
	"github.com/S1riyS/vfsd/pkg/logging"
	"github.com/S1riyS/vfsd/pkg/logging/slogext"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Client interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	instance *pgxpool.Pool
	once     sync.Once
)

func MustNewClient(ctx context.Context, cfg config.DatabaseConfig, timeout time.Duration) *pgxpool.Pool {
	once.Do(func() {
		const op = "postgresql.MustNewClient"

		logger := logging.GetLoggerFromContextWithOp(ctx, op)

		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			logger.Error("Failed to create connection pool", slogext.Err(err))
			panic(err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err = pool.Ping(pingCtx); err != nil {
			logger.Error("Failed to connect to database", slogext.Err(err))
			panic(err)
		}

		logger.Info("Connected to database")
		instance = pool
	})

	return instance
}
