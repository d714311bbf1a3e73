package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/S1riyS/vfsd/internal/models"
	"github.com/S1riyS/vfsd/pkg/database/postgresql"
	"github.com/S1riyS/vfsd/pkg/logging"
	"github.com/lib/pq"
)

// ProcessRepository stores the process registry the kernel boots with.
type ProcessRepository interface {
	List(ctx context.Context) ([]models.Process, error)
	SaveAll(ctx context.Context, procs []models.Process) error
}

type processQueries struct {
	list   string
	upsert string
}

func newProcessQueries(table string) processQueries {
	t := pq.QuoteIdentifier(table)
	return processQueries{
		list: `
		SELECT pid, father_pid, owner, cmd
		FROM ` + t + `
		ORDER BY pid
	`,
		upsert: `
		INSERT INTO ` + t + ` (pid, father_pid, owner, cmd)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pid) DO UPDATE
		SET father_pid = EXCLUDED.father_pid, owner = EXCLUDED.owner, cmd = EXCLUDED.cmd
	`,
	}
}

type processRepository struct {
	db      postgresql.Client
	queries processQueries
}

func NewProcessRepository(db postgresql.Client, table string) ProcessRepository {
	return &processRepository{db: db, queries: newProcessQueries(table)}
}

func (r *processRepository) List(ctx context.Context) ([]models.Process, error) {
	const op = "repository.processRepository.List"

	db := postgresql.GetDBClient(ctx, r.db)
	rows, err := db.Query(ctx, r.queries.list)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var procs []models.Process
	for rows.Next() {
		var p models.Process
		if err := rows.Scan(&p.PID, &p.FatherPID, &p.Owner, &p.Cmd); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		procs = append(procs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return procs, nil
}

func (r *processRepository) SaveAll(ctx context.Context, procs []models.Process) error {
	const op = "repository.processRepository.SaveAll"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	err := postgresql.WithTransaction(ctx, r.db, func(ctx context.Context) error {
		db := postgresql.GetDBClient(ctx, r.db)
		for _, p := range procs {
			if _, err := db.Exec(ctx, r.queries.upsert, p.PID, p.FatherPID, p.Owner, p.Cmd); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	logger.Debug("Processes saved", slog.Int("count", len(procs)))
	return nil
}
