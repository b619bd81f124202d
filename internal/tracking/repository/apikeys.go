package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

// APIKey identifies an ingest collaborator. Only the SHA-256 of the key
// material is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID         uuid.UUID
	Name       string
	KeyPrefix  string
	KeyHash    string
	IsActive   bool
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// HashAPIKey returns the hex SHA-256 digest of the plaintext key.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// CreateAPIKey stores a new ingest key.
func (r *Repository) CreateAPIKey(ctx context.Context, key APIKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracking_api_keys (id, name, key_prefix, key_hash, is_active)
		VALUES ($1, $2, $3, $4, true)
	`, key.ID, key.Name, key.KeyPrefix, key.KeyHash)
	return err
}

// FindActiveAPIKeyByHash resolves a presented key to its record and touches
// last_used_at. Inactive keys do not authenticate.
func (r *Repository) FindActiveAPIKeyByHash(ctx context.Context, keyHash string) (APIKey, error) {
	var key APIKey
	err := r.pool.QueryRow(ctx, `
		UPDATE tracking_api_keys
		SET last_used_at = now()
		WHERE key_hash = $1 AND is_active = true
		RETURNING id, name, key_prefix, key_hash, is_active, last_used_at, created_at
	`, keyHash).Scan(&key.ID, &key.Name, &key.KeyPrefix, &key.KeyHash,
		&key.IsActive, &key.LastUsedAt, &key.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListAPIKeys returns all keys, newest first.
func (r *Repository) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, key_prefix, key_hash, is_active, last_used_at, created_at
		FROM tracking_api_keys
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		err := rows.Scan(&key.ID, &key.Name, &key.KeyPrefix, &key.KeyHash,
			&key.IsActive, &key.LastUsedAt, &key.CreatedAt)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates a key. Revocation is permanent.
func (r *Repository) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tracking_api_keys SET is_active = false WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}
