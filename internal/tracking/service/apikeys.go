package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/apperr"

	"github.com/google/uuid"
)

const apiKeyPrefix = "trk_"

// CreateAPIKey mints a new ingest key. The plaintext is returned exactly once;
// only its hash is stored.
func (s *Service) CreateAPIKey(ctx context.Context, req transport.CreateAPIKeyRequest) (transport.APIKeyResponse, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return transport.APIKeyResponse{}, apperr.Wrap(apperr.KindInternal, "failed to generate api key", err)
	}
	plaintext := apiKeyPrefix + hex.EncodeToString(raw)

	key := repository.APIKey{
		ID:        uuid.New(),
		Name:      req.Name,
		KeyPrefix: plaintext[:len(apiKeyPrefix)+8],
		KeyHash:   repository.HashAPIKey(plaintext),
		IsActive:  true,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return transport.APIKeyResponse{}, apperr.Wrap(apperr.KindInternal, "failed to store api key", err)
	}

	s.logger.Info("tracking api key created", "keyId", key.ID.String(), "name", key.Name)
	return transport.APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		Key:       plaintext,
		IsActive:  true,
	}, nil
}

// ListAPIKeys returns all ingest keys without key material.
func (s *Service) ListAPIKeys(ctx context.Context) ([]transport.APIKeyResponse, error) {
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list api keys", err)
	}
	out := make([]transport.APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, transport.APIKeyResponse{
			ID:         key.ID,
			Name:       key.Name,
			KeyPrefix:  key.KeyPrefix,
			IsActive:   key.IsActive,
			LastUsedAt: key.LastUsedAt,
			CreatedAt:  key.CreatedAt,
		})
	}
	return out, nil
}

// RevokeAPIKey permanently deactivates a key.
func (s *Service) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	err := s.store.RevokeAPIKey(ctx, id)
	if errors.Is(err, repository.ErrAPIKeyNotFound) {
		return apperr.NotFound("api key not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to revoke api key", err)
	}
	s.logger.Info("tracking api key revoked", "keyId", id.String())
	return nil
}

// Authenticate resolves a presented ingest key. Constant work regardless of
// key validity: the lookup is by hash, never by prefix scanning.
func (s *Service) Authenticate(ctx context.Context, presented string) error {
	if len(presented) < len(apiKeyPrefix) || presented[:len(apiKeyPrefix)] != apiKeyPrefix {
		return apperr.Unauthorized("invalid api key")
	}
	_, err := s.store.FindActiveAPIKeyByHash(ctx, repository.HashAPIKey(presented))
	if errors.Is(err, repository.ErrAPIKeyNotFound) {
		return apperr.Unauthorized("invalid api key")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "api key lookup failed", err)
	}
	return nil
}
