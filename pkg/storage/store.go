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

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/covault/covault/pkg/models"
)

// dialect captures the few places SQLite and Postgres behave differently.
type dialect interface {
	name() string
	txOptions() *sql.TxOptions
	isUniqueViolation(err error) bool
	isTransient(err error) bool
}

// sqlStore implements Store over sqlx for both supported dialects. All
// queries are written with ? placeholders and rebound per driver.
type sqlStore struct {
	db        *sqlx.DB
	dialect   dialect
	logger    *zap.Logger
	txTimeout time.Duration
}

const secretColumns = "id, owner_id, name, type, encrypted_value, description, tags, version, created_at, updated_at, deleted_at"

// secretRow adds the serialized tags column to the domain struct.
type secretRow struct {
	models.Secret
	TagsJSON string `db:"tags"`
}

func (r *secretRow) toSecret() (*models.Secret, error) {
	secret := r.Secret
	if r.TagsJSON != "" {
		if err := json.Unmarshal([]byte(r.TagsJSON), &secret.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	return &secret, nil
}

func marshalTags(tags map[string]string) (string, error) {
	if tags == nil {
		tags = map[string]string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(raw), nil
}

// mapError translates driver errors into the backend-agnostic sentinels.
func (s *sqlStore) mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTxTimeout, err)
	case s.dialect.isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case s.dialect.isTransient(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// WithinTx runs fn in one serializable transaction. A caller context
// without a deadline gets the configured default so a wedged backend
// cannot hang a request forever.
func (s *sqlStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if _, ok := ctx.Deadline(); !ok && s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, s.dialect.txOptions())
	if err != nil {
		return s.mapError(err)
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn("Transaction rollback failed", zap.Error(rbErr))
			}
		}
	}()

	if err := fn(&sqlTx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return s.mapError(err)
	}
	committed = true
	return nil
}

func (s *sqlStore) getSecret(ctx context.Context, q sqlx.ExtContext, id int64) (*models.Secret, error) {
	var row secretRow
	query := q.Rebind("SELECT " + secretColumns + " FROM secrets WHERE id = ?")
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		return nil, s.mapError(err)
	}
	return row.toSecret()
}

// GetSecret retrieves a secret row by ID, including soft-deleted rows.
func (s *sqlStore) GetSecret(ctx context.Context, id int64) (*models.Secret, error) {
	return s.getSecret(ctx, s.db, id)
}

// ListSecrets retrieves an owner's secrets ordered by name.
func (s *sqlStore) ListSecrets(ctx context.Context, ownerID int64, includeDeleted bool) ([]*models.Secret, error) {
	query := "SELECT " + secretColumns + " FROM secrets WHERE owner_id = ?"
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY name ASC"

	var rows []secretRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(query), ownerID); err != nil {
		return nil, s.mapError(err)
	}

	secrets := make([]*models.Secret, 0, len(rows))
	for i := range rows {
		secret, err := rows[i].toSecret()
		if err != nil {
			return nil, err
		}
		secrets = append(secrets, secret)
	}
	return secrets, nil
}

// ListVersions retrieves all version snapshots ordered by version ascending.
func (s *sqlStore) ListVersions(ctx context.Context, secretID int64) ([]*models.SecretVersion, error) {
	query := s.db.Rebind(`SELECT id, secret_id, version, encrypted_value, key_version, author_id, created_at
		FROM secret_versions WHERE secret_id = ? ORDER BY version ASC`)

	var versions []*models.SecretVersion
	if err := sqlx.SelectContext(ctx, s.db, &versions, query, secretID); err != nil {
		return nil, s.mapError(err)
	}
	return versions, nil
}

// QueryAudit retrieves audit entries matching the filter, oldest first.
func (s *sqlStore) QueryAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditEntry, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, user_id, user_email, action, secret_id, ip_address, user_agent, status, error_code, created_at
		FROM audit_logs WHERE 1=1`)
	args := make([]interface{}, 0, 6)

	if filter.UserEmail != "" {
		sb.WriteString(" AND user_email = ?")
		args = append(args, filter.UserEmail)
	}
	if filter.Action != "" {
		sb.WriteString(" AND action = ?")
		args = append(args, filter.Action)
	}
	if filter.SecretID != nil {
		sb.WriteString(" AND secret_id = ?")
		args = append(args, *filter.SecretID)
	}
	if !filter.From.IsZero() {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		sb.WriteString(" AND created_at <= ?")
		args = append(args, filter.To)
	}

	sb.WriteString(" ORDER BY created_at ASC, id ASC")
	if filter.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var entries []*models.AuditEntry
	if err := sqlx.SelectContext(ctx, s.db, &entries, s.db.Rebind(sb.String()), args...); err != nil {
		return nil, s.mapError(err)
	}
	return entries, nil
}

// GetUser retrieves a user by ID.
func (s *sqlStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	query := s.db.Rebind(`SELECT id, email, credential_hash, full_name, role, active, last_login, created_at
		FROM users WHERE id = ?`)
	if err := sqlx.GetContext(ctx, s.db, &user, query, id); err != nil {
		return nil, s.mapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email.
func (s *sqlStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := s.db.Rebind(`SELECT id, email, credential_hash, full_name, role, active, last_login, created_at
		FROM users WHERE email = ?`)
	if err := sqlx.GetContext(ctx, s.db, &user, query, email); err != nil {
		return nil, s.mapError(err)
	}
	return &user, nil
}

// PurgeDeletedSecrets hard-deletes soft-deleted secrets older than before.
func (s *sqlStore) PurgeDeletedSecrets(ctx context.Context, before time.Time) (int64, error) {
	query := s.db.Rebind("DELETE FROM secrets WHERE deleted_at IS NOT NULL AND deleted_at < ?")
	res, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, s.mapError(err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, s.mapError(err)
	}

	if purged > 0 {
		s.logger.Info("Purged soft-deleted secrets",
			zap.Int64("count", purged),
			zap.Time("cutoff", before))
	}
	return purged, nil
}

// Close closes the underlying connection pool.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// sqlTx implements Tx over one open sqlx transaction.
type sqlTx struct {
	tx    *sqlx.Tx
	store *sqlStore
}

func (t *sqlTx) InsertSecret(ctx context.Context, secret *models.Secret) (int64, error) {
	tagsJSON, err := marshalTags(secret.Tags)
	if err != nil {
		return 0, err
	}

	query := t.tx.Rebind(`INSERT INTO secrets (owner_id, name, type, encrypted_value, description, tags, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

	var id int64
	err = t.tx.QueryRowxContext(ctx, query,
		secret.OwnerID,
		secret.Name,
		secret.Type,
		secret.EncryptedValue,
		secret.Description,
		tagsJSON,
		secret.Version,
		secret.CreatedAt,
		secret.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, t.store.mapError(err)
	}
	return id, nil
}

func (t *sqlTx) GetSecret(ctx context.Context, id int64) (*models.Secret, error) {
	return t.store.getSecret(ctx, t.tx, id)
}

func (t *sqlTx) FindActiveSecretByName(ctx context.Context, ownerID int64, name string) (*models.Secret, error) {
	var row secretRow
	query := t.tx.Rebind("SELECT " + secretColumns + " FROM secrets WHERE owner_id = ? AND name = ? AND deleted_at IS NULL")
	if err := sqlx.GetContext(ctx, t.tx, &row, query, ownerID, name); err != nil {
		return nil, t.store.mapError(err)
	}
	return row.toSecret()
}

func (t *sqlTx) UpdateSecretValue(ctx context.Context, id int64, encryptedValue string, expectedVersion int64, now time.Time) error {
	query := t.tx.Rebind(`UPDATE secrets SET encrypted_value = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL`)

	res, err := t.tx.ExecContext(ctx, query, encryptedValue, now, id, expectedVersion)
	if err != nil {
		return t.store.mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return t.store.mapError(err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

func (t *sqlTx) UpdateSecretMetadata(ctx context.Context, id int64, description *string, tags map[string]string, now time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{now}

	if description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *description)
	}
	if tags != nil {
		tagsJSON, err := marshalTags(tags)
		if err != nil {
			return err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tagsJSON)
	}
	args = append(args, id)

	query := t.tx.Rebind("UPDATE secrets SET " + strings.Join(sets, ", ") + " WHERE id = ? AND deleted_at IS NULL")
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return t.store.mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return t.store.mapError(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) SoftDeleteSecret(ctx context.Context, id int64, now time.Time) error {
	query := t.tx.Rebind("UPDATE secrets SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL")
	res, err := t.tx.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return t.store.mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return t.store.mapError(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) InsertVersion(ctx context.Context, version *models.SecretVersion) error {
	query := t.tx.Rebind(`INSERT INTO secret_versions (secret_id, version, encrypted_value, key_version, author_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)

	_, err := t.tx.ExecContext(ctx, query,
		version.SecretID,
		version.Version,
		version.EncryptedValue,
		version.KeyVersion,
		version.AuthorID,
		version.CreatedAt,
	)
	return t.store.mapError(err)
}

func (t *sqlTx) CountVersions(ctx context.Context, secretID int64) (int64, error) {
	var count int64
	query := t.tx.Rebind("SELECT COUNT(*) FROM secret_versions WHERE secret_id = ?")
	if err := sqlx.GetContext(ctx, t.tx, &count, query, secretID); err != nil {
		return 0, t.store.mapError(err)
	}
	return count, nil
}

func (t *sqlTx) InsertAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	query := t.tx.Rebind(`INSERT INTO audit_logs (id, user_id, user_email, action, secret_id, ip_address, user_agent, status, error_code, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := t.tx.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.UserEmail,
		entry.Action,
		entry.SecretID,
		entry.IPAddress,
		entry.UserAgent,
		entry.Status,
		entry.ErrorCode,
		entry.CreatedAt,
	)
	return t.store.mapError(err)
}

func (t *sqlTx) UpsertUser(ctx context.Context, user *models.User) (int64, error) {
	query := t.tx.Rebind(`INSERT INTO users (email, credential_hash, full_name, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET
			credential_hash = excluded.credential_hash,
			full_name = excluded.full_name,
			role = excluded.role,
			active = excluded.active
		RETURNING id`)

	var id int64
	err := t.tx.QueryRowxContext(ctx, query,
		user.Email,
		user.CredentialHash,
		user.FullName,
		user.Role,
		user.Active,
		user.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, t.store.mapError(err)
	}
	return id, nil
}

func (t *sqlTx) TouchUserLogin(ctx context.Context, userID int64, now time.Time) error {
	query := t.tx.Rebind("UPDATE users SET last_login = ? WHERE id = ?")
	res, err := t.tx.ExecContext(ctx, query, now, userID)
	if err != nil {
		return t.store.mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return t.store.mapError(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *sqlTx) DeleteUser(ctx context.Context, userID int64) error {
	query := t.tx.Rebind("DELETE FROM users WHERE id = ?")
	res, err := t.tx.ExecContext(ctx, query, userID)
	if err != nil {
		return t.store.mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return t.store.mapError(err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
