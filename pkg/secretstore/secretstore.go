/*
 * Copyright (c) 2026, The Covault Authors.
 *
 * The Covault Authors license this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package secretstore implements the secret lifecycle: create, read,
// update, rotate, soft delete and list. Values are encrypted before
// they reach storage and decrypted on the way out; ciphertext never
// leaves this package. All mutating operations run inside a caller
// supplied transaction so the orchestrating service can commit them
// together with their audit entries.
package secretstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/covault/covault/pkg/encryption"
	"github.com/covault/covault/pkg/ledger"
	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/storage"
	"github.com/covault/covault/pkg/vaulterr"
)

const (
	// MaxSecretSize bounds how large a plaintext value may be.
	MaxSecretSize = 64 * 1024

	generatedPasswordLength  = 20
	generatedPasswordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*"
)

// SecretStore carries out lifecycle operations against one store.
type SecretStore struct {
	store  storage.Store
	crypto *encryption.Manager
	ledger *ledger.Ledger
	logger *zap.Logger
}

// New creates a SecretStore.
func New(store storage.Store, crypto *encryption.Manager, versionLedger *ledger.Ledger, logger *zap.Logger) *SecretStore {
	return &SecretStore{
		store:  store,
		crypto: crypto,
		ledger: versionLedger,
		logger: logger,
	}
}

// CreateParams describes a new secret.
type CreateParams struct {
	OwnerID     int64
	Name        string
	Type        models.SecretType
	Value       string
	Description string
	Tags        map[string]string
	AuthorID    *int64
}

// Create inserts a new secret at version 1 together with its first
// ledger snapshot. The (owner, name) pair must not collide with a live
// secret; soft-deleted rows do not block name reuse.
func (s *SecretStore) Create(ctx context.Context, tx storage.Tx, params CreateParams) (*models.Secret, error) {
	if err := validateName(params.Name); err != nil {
		return nil, err
	}
	if !params.Type.Valid() {
		return nil, vaulterr.Invalid(fmt.Sprintf("unknown secret type %q", params.Type))
	}
	if len(params.Value) > MaxSecretSize {
		return nil, errValueTooLarge
	}

	if _, err := tx.FindActiveSecretByName(ctx, params.OwnerID, params.Name); err == nil {
		return nil, vaulterr.DuplicateName(params.Name)
	} else if !storage.IsNotFound(err) {
		return nil, err
	}

	encrypted, keyVersion, err := s.encrypt(params.Value)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	secret := &models.Secret{
		OwnerID:        params.OwnerID,
		Name:           params.Name,
		Type:           params.Type,
		EncryptedValue: encrypted,
		Description:    params.Description,
		Tags:           params.Tags,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	id, err := tx.InsertSecret(ctx, secret)
	if storage.IsConflict(err) {
		// Lost a race with a concurrent create of the same name.
		return nil, vaulterr.DuplicateName(params.Name)
	}
	if err != nil {
		return nil, err
	}
	secret.ID = id

	if err := s.ledger.Append(ctx, tx, id, 1, encrypted, keyVersion, params.AuthorID); err != nil {
		return nil, err
	}

	s.logger.Info("Created secret",
		zap.Int64("secretId", id),
		zap.Int64("ownerId", params.OwnerID),
		zap.String("type", string(params.Type)))
	return secret, nil
}

// Read loads a live secret and decrypts its current value. Soft-deleted
// secrets read as NotFound.
func (s *SecretStore) Read(ctx context.Context, tx storage.Tx, id int64) (*models.Secret, string, error) {
	secret, err := s.getLive(ctx, tx, id)
	if err != nil {
		return nil, "", err
	}

	plaintext, err := s.decrypt(secret.EncryptedValue)
	if err != nil {
		return secret, "", err
	}
	return secret, plaintext, nil
}

// UpdateParams describes a secret update. A nil Value leaves the stored
// value untouched; the version only moves when the value does.
type UpdateParams struct {
	Value           *string
	ExpectedVersion int64
	Description     *string
	Tags            map[string]string
	AuthorID        *int64
}

// Update applies a value and/or metadata change to a live secret. Value
// changes are guarded by optimistic concurrency: the caller states the
// version it read, and the update fails with VersionConflict when the
// stored version has moved on.
func (s *SecretStore) Update(ctx context.Context, tx storage.Tx, id int64, params UpdateParams) (*models.Secret, error) {
	secret, err := s.getLive(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if params.Value != nil {
		if len(*params.Value) > MaxSecretSize {
			return nil, errValueTooLarge
		}
		if secret.Version != params.ExpectedVersion {
			return nil, vaulterr.VersionConflict(params.ExpectedVersion, secret.Version)
		}

		encrypted, keyVersion, err := s.encrypt(*params.Value)
		if err != nil {
			return nil, err
		}

		if err := tx.UpdateSecretValue(ctx, id, encrypted, params.ExpectedVersion, now); err != nil {
			if storage.IsConflict(err) {
				return nil, vaulterr.VersionConflict(params.ExpectedVersion, secret.Version)
			}
			return nil, err
		}
		newVersion := secret.Version + 1
		if err := s.ledger.Append(ctx, tx, id, newVersion, encrypted, keyVersion, params.AuthorID); err != nil {
			return nil, err
		}

		secret.EncryptedValue = encrypted
		secret.Version = newVersion
		secret.UpdatedAt = now
	}

	if params.Description != nil || params.Tags != nil {
		if err := tx.UpdateSecretMetadata(ctx, id, params.Description, params.Tags, now); err != nil {
			if storage.IsNotFound(err) {
				return nil, vaulterr.NotFound()
			}
			return nil, err
		}
		if params.Description != nil {
			secret.Description = *params.Description
		}
		if params.Tags != nil {
			secret.Tags = params.Tags
		}
		secret.UpdatedAt = now
	}

	s.logger.Info("Updated secret",
		zap.Int64("secretId", id),
		zap.Int64("version", secret.Version))
	return secret, nil
}

// Rotate replaces the value of a live secret against its latest version.
// When newValue is empty a random password is generated. The new
// plaintext is returned so the caller can hand it to the requester.
func (s *SecretStore) Rotate(ctx context.Context, tx storage.Tx, id int64, newValue string, authorID *int64) (*models.Secret, string, error) {
	secret, err := s.getLive(ctx, tx, id)
	if err != nil {
		return nil, "", err
	}

	if newValue == "" {
		newValue, err = GeneratePassword(generatedPasswordLength)
		if err != nil {
			return nil, "", err
		}
	}

	encrypted, keyVersion, err := s.encrypt(newValue)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	if err := tx.UpdateSecretValue(ctx, id, encrypted, secret.Version, now); err != nil {
		if storage.IsConflict(err) {
			return nil, "", vaulterr.VersionConflict(secret.Version, secret.Version)
		}
		return nil, "", err
	}
	newVersion := secret.Version + 1
	if err := s.ledger.Append(ctx, tx, id, newVersion, encrypted, keyVersion, authorID); err != nil {
		return nil, "", err
	}

	secret.EncryptedValue = encrypted
	secret.Version = newVersion
	secret.UpdatedAt = now

	s.logger.Info("Rotated secret",
		zap.Int64("secretId", id),
		zap.Int64("version", newVersion))
	return secret, newValue, nil
}

// Delete soft-deletes a live secret. Its version history stays behind.
func (s *SecretStore) Delete(ctx context.Context, tx storage.Tx, id int64) error {
	if err := tx.SoftDeleteSecret(ctx, id, time.Now().UTC()); err != nil {
		if storage.IsNotFound(err) {
			return vaulterr.NotFound()
		}
		return err
	}

	s.logger.Info("Deleted secret", zap.Int64("secretId", id))
	return nil
}

// List returns the metadata of an owner's secrets ordered by name.
// Soft-deleted secrets are excluded unless includeDeleted is set.
func (s *SecretStore) List(ctx context.Context, ownerID int64, includeDeleted bool) ([]*models.SecretMetadata, error) {
	secrets, err := s.store.ListSecrets(ctx, ownerID, includeDeleted)
	if err != nil {
		return nil, err
	}

	metadata := make([]*models.SecretMetadata, 0, len(secrets))
	for _, secret := range secrets {
		metadata = append(metadata, secret.Metadata())
	}
	return metadata, nil
}

// Get loads a secret by ID inside the transaction, soft-deleted rows
// included. Callers that must not see deleted rows use Read instead.
func (s *SecretStore) Get(ctx context.Context, tx storage.Tx, id int64) (*models.Secret, error) {
	secret, err := tx.GetSecret(ctx, id)
	if storage.IsNotFound(err) {
		return nil, vaulterr.NotFound()
	}
	if err != nil {
		return nil, err
	}
	return secret, nil
}

func (s *SecretStore) getLive(ctx context.Context, tx storage.Tx, id int64) (*models.Secret, error) {
	secret, err := s.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if secret.State() == models.SecretStateDeleted {
		return nil, vaulterr.NotFound()
	}
	return secret, nil
}

func (s *SecretStore) encrypt(plaintext string) (marshalled, keyVersion string, err error) {
	payload, err := s.crypto.Encrypt([]byte(plaintext))
	if err != nil {
		return "", "", vaulterr.KeyUnavailable(err)
	}
	return encryption.MarshalPayload(payload), payload.KeyVersion, nil
}

func (s *SecretStore) decrypt(marshalled string) (string, error) {
	payload, err := encryption.UnmarshalPayload(marshalled)
	if err != nil {
		return "", vaulterr.DecryptionFailed(err)
	}
	plaintext, err := s.crypto.Decrypt(payload)
	if err != nil {
		var keyErr *encryption.ErrKeyVersionUnknown
		if errors.As(err, &keyErr) {
			return "", vaulterr.KeyUnavailable(err)
		}
		return "", vaulterr.DecryptionFailed(err)
	}
	return string(plaintext), nil
}

// GeneratePassword returns a random password drawn uniformly from the
// generation charset.
func GeneratePassword(length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)
	max := big.NewInt(int64(len(generatedPasswordCharset)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(generatedPasswordCharset[n.Int64()])
	}
	return sb.String(), nil
}

var errValueTooLarge = vaulterr.Invalid(fmt.Sprintf("secret value exceeds %d bytes", MaxSecretSize))

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return vaulterr.Invalid("secret name must not be empty")
	}
	return nil
}
