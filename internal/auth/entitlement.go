package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// entitlementQuery reads the access flag the web application maintains on the
// shared account database. Column and table names match its Prisma schema.
const entitlementQuery = `SELECT "hasNinaAccess" FROM "User" WHERE id = $1`

// PostgresEntitlements checks assistant access against the account database.
type PostgresEntitlements struct {
	pool *pgxpool.Pool
}

// Ensure PostgresEntitlements implements EntitlementStore at compile time.
var _ EntitlementStore = (*PostgresEntitlements)(nil)

// NewPostgresEntitlements connects to the account database at dsn and verifies
// the connection with a ping.
func NewPostgresEntitlements(ctx context.Context, dsn string) (*PostgresEntitlements, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("auth: connect account database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("auth: ping account database: %w", err)
	}
	return &PostgresEntitlements{pool: pool}, nil
}

// HasAccess reports whether the account may open assistant sessions.
// Unknown user ids are simply not entitled.
func (s *PostgresEntitlements) HasAccess(ctx context.Context, userID string) (bool, error) {
	var entitled bool
	err := s.pool.QueryRow(ctx, entitlementQuery, userID).Scan(&entitled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: query entitlement: %w", err)
	}
	return entitled, nil
}

// Ping verifies database connectivity, for health checks.
func (s *PostgresEntitlements) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresEntitlements) Close() {
	s.pool.Close()
}
