// Package repository provides data access for the tracking bounded context:
// events, per-event scores, per-subject rollups, intent signals, identities
// and ingest API keys.
package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides tracking data access backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new tracking repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}
