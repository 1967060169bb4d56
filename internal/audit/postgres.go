// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// poolIface is the subset of *pgxpool.Pool the recorder uses, so tests
// can substitute pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRecorder writes logins to the login_history table.
type PostgresRecorder struct {
	pool poolIface
}

// NewPostgresRecorder creates a recorder on pool.
func NewPostgresRecorder(pool poolIface) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// Connect opens a pgx pool for dsn and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	return pool, nil
}

// Record inserts l.
func (r *PostgresRecorder) Record(ctx context.Context, l Login) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO login_history (id, player_id, name, address, properties, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID.String(),
		l.PlayerID,
		l.Name,
		l.Address,
		l.Properties,
		l.CreatedAt,
	)
	if err != nil {
		return classify(err, CodeWriteFailed).
			With("login_id", l.ID.String()).
			With("player_id", l.PlayerID.String()).
			Wrap(err)
	}
	return nil
}

// Recent returns the newest logins of the player, newest first.
func (r *PostgresRecorder) Recent(ctx context.Context, playerID uuid.UUID, limit int) ([]Login, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, player_id, name, address, properties, created_at
		 FROM login_history WHERE player_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		playerID, limit)
	if err != nil {
		return nil, classify(err, CodeReadFailed).With("player_id", playerID.String()).Wrap(err)
	}
	defer rows.Close()

	var out []Login
	for rows.Next() {
		var l Login
		var id string
		if err := rows.Scan(&id, &l.PlayerID, &l.Name, &l.Address, &l.Properties, &l.CreatedAt); err != nil {
			return nil, oops.Code(CodeReadFailed).Wrap(err)
		}
		l.ID, err = ulid.Parse(id)
		if err != nil {
			return nil, oops.Code(CodeReadFailed).With("login_id", id).Wrapf(err, "corrupt login id")
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code(CodeReadFailed).Wrap(err)
	}
	return out, nil
}

func classify(err error, fallback string) oops.OopsErrorBuilder {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return oops.Code(CodeDuplicate)
		case pgerrcode.UndefinedTable:
			return oops.Code(CodeSchemaMissing).Hint("run glowline migrate")
		}
	}
	return oops.Code(fallback)
}
