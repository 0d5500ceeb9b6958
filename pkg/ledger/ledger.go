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

// Package ledger keeps the append-only version history of secrets. Every
// value a secret has ever held, the current one included, is a ledger row;
// the row count of a secret always equals its current version number.
package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/storage"
	"github.com/covault/covault/pkg/vaulterr"
)

// Ledger records and reads version snapshots.
type Ledger struct {
	store  storage.Store
	logger *zap.Logger
}

// New creates a Ledger over the given store.
func New(store storage.Store, logger *zap.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// Append writes version snapshot no. version for a secret inside the
// caller's transaction. The version must be exactly one past the number
// of snapshots already present; anything else is a VersionConflict. The
// unique (secret, version) constraint backstops the count check under
// concurrent writers.
func (l *Ledger) Append(ctx context.Context, tx storage.Tx, secretID, version int64, encryptedValue, keyVersion string, authorID *int64) error {
	count, err := tx.CountVersions(ctx, secretID)
	if err != nil {
		return err
	}
	if version != count+1 {
		return vaulterr.VersionConflict(version, count)
	}

	err = tx.InsertVersion(ctx, &models.SecretVersion{
		SecretID:       secretID,
		Version:        version,
		EncryptedValue: encryptedValue,
		KeyVersion:     keyVersion,
		AuthorID:       authorID,
		CreatedAt:      time.Now().UTC(),
	})
	if storage.IsConflict(err) {
		return vaulterr.VersionConflict(version, count)
	}
	if err != nil {
		return err
	}

	l.logger.Debug("Appended version snapshot",
		zap.Int64("secretId", secretID),
		zap.Int64("version", version),
		zap.String("keyVersion", keyVersion))
	return nil
}

// History returns all version snapshots of a secret, oldest first. The
// slice is freshly built on every call. Snapshots of soft-deleted
// secrets remain readable.
func (l *Ledger) History(ctx context.Context, secretID int64) ([]*models.SecretVersion, error) {
	return l.store.ListVersions(ctx, secretID)
}
