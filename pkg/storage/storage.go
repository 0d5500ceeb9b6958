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

// Package storage is the durable row store beneath the vault engine. It
// holds four record sets - users, secrets, secret_versions, audit_logs -
// and exposes them through serializable transactions so that the
// uniqueness and version checks layered on top are race-free.
package storage

import (
	"context"
	"time"

	"github.com/covault/covault/pkg/models"
)

// Store is the interface over the durable transactional store. Read
// methods run outside any explicit transaction and may be called
// concurrently; all mutations go through WithinTx.
type Store interface {
	// WithinTx runs fn inside one serializable transaction. If fn
	// returns an error or the context is cancelled before commit, the
	// whole transaction rolls back and no partial state survives.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// GetSecret retrieves a secret row by ID, including soft-deleted rows.
	GetSecret(ctx context.Context, id int64) (*models.Secret, error)

	// ListSecrets retrieves an owner's secrets ordered by name. Soft-deleted
	// rows are excluded unless includeDeleted is set.
	ListSecrets(ctx context.Context, ownerID int64, includeDeleted bool) ([]*models.Secret, error)

	// ListVersions retrieves all version snapshots of a secret ordered by
	// version ascending. Each call re-issues the full sequence.
	ListVersions(ctx context.Context, secretID int64) ([]*models.SecretVersion, error)

	// QueryAudit retrieves audit entries matching the filter, ordered by
	// creation time ascending.
	QueryAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error)

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id int64) (*models.User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// PurgeDeletedSecrets hard-deletes soft-deleted secrets whose deletion
	// timestamp is older than before. Version rows cascade away with their
	// secret; audit rows are never touched. Returns the number of secrets
	// removed.
	PurgeDeletedSecrets(ctx context.Context, before time.Time) (int64, error)

	// Close closes the storage connection.
	Close() error
}

// Tx is the set of row operations available inside one transaction.
type Tx interface {
	// InsertSecret inserts a new secret row and returns its ID. Fails
	// with ErrConflict when an active secret with the same (owner, name)
	// exists.
	InsertSecret(ctx context.Context, secret *models.Secret) (int64, error)

	// GetSecret retrieves a secret row by ID inside the transaction,
	// including soft-deleted rows.
	GetSecret(ctx context.Context, id int64) (*models.Secret, error)

	// FindActiveSecretByName retrieves the live secret of an owner by
	// name. Fails with ErrNotFound when no active row matches.
	FindActiveSecretByName(ctx context.Context, ownerID int64, name string) (*models.Secret, error)

	// UpdateSecretValue replaces the encrypted value of an active secret,
	// incrementing its version by exactly one. The update is conditional
	// on the stored version still matching expectedVersion; ErrConflict
	// otherwise.
	UpdateSecretValue(ctx context.Context, id int64, encryptedValue string, expectedVersion int64, now time.Time) error

	// UpdateSecretMetadata updates description and tags of an active
	// secret. Nil leaves a field unchanged.
	UpdateSecretMetadata(ctx context.Context, id int64, description *string, tags map[string]string, now time.Time) error

	// SoftDeleteSecret stamps an active secret as deleted. Fails with
	// ErrNotFound when the secret is absent or already deleted.
	SoftDeleteSecret(ctx context.Context, id int64, now time.Time) error

	// InsertVersion appends an immutable version snapshot. Fails with
	// ErrConflict when (secret_id, version) is already present.
	InsertVersion(ctx context.Context, version *models.SecretVersion) error

	// CountVersions returns the number of version snapshots of a secret.
	CountVersions(ctx context.Context, secretID int64) (int64, error)

	// InsertAuditEntry appends an audit row. There is deliberately no
	// update or delete counterpart anywhere in this interface.
	InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error

	// UpsertUser inserts a user or refreshes an existing row by email,
	// returning the user ID.
	UpsertUser(ctx context.Context, user *models.User) (int64, error)

	// TouchUserLogin stamps a user's last_login.
	TouchUserLogin(ctx context.Context, userID int64, now time.Time) error

	// DeleteUser removes a user. Owned secrets and their versions cascade
	// away; audit entries keep their rows with user_id set to null.
	DeleteUser(ctx context.Context, userID int64) error
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	UserEmail string
	Action    models.Action
	SecretID  *int64
	From      time.Time
	To        time.Time
	Limit     int
}
