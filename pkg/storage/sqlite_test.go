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
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"gotest.tools/v3/assert"

	"github.com/covault/covault/pkg/models"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "covault-test.db")
	store, err := NewSQLiteStore(dbPath, 5*time.Second, 10*time.Second, zap.NewNop())
	assert.NilError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestUser(t *testing.T, store Store, email string, role models.Role) int64 {
	t.Helper()
	var id int64
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		var err error
		id, err = tx.UpsertUser(context.Background(), &models.User{
			Email:          email,
			CredentialHash: "argon2id$test",
			FullName:       "Test User",
			Role:           role,
			Active:         true,
			CreatedAt:      time.Now().UTC(),
		})
		return err
	})
	assert.NilError(t, err)
	return id
}

func createTestSecret(t *testing.T, store Store, ownerID int64, name string) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		var err error
		id, err = tx.InsertSecret(context.Background(), &models.Secret{
			OwnerID:        ownerID,
			Name:           name,
			Type:           models.SecretTypePassword,
			EncryptedValue: "enc:aesgcm:v1:key-v1:Zm9v",
			Description:    "test secret",
			Tags:           map[string]string{"env": "test"},
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		if err != nil {
			return err
		}
		return tx.InsertVersion(context.Background(), &models.SecretVersion{
			SecretID:       id,
			Version:        1,
			EncryptedValue: "enc:aesgcm:v1:key-v1:Zm9v",
			KeyVersion:     "key-v1",
			AuthorID:       &ownerID,
			CreatedAt:      now,
		})
	})
	assert.NilError(t, err)
	return id
}

func TestSchemaInitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "covault-test.db")
	store, err := NewSQLiteStore(dbPath, 5*time.Second, 10*time.Second, zap.NewNop())
	assert.NilError(t, err)
	store.Close()

	// Reopening an initialized database must not re-run the schema.
	store, err = NewSQLiteStore(dbPath, 5*time.Second, 10*time.Second, zap.NewNop())
	assert.NilError(t, err)
	store.Close()
}

func TestInsertAndGetSecret(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "db-password")

	secret, err := store.GetSecret(context.Background(), secretID)
	assert.NilError(t, err)
	assert.Equal(t, secret.Name, "db-password")
	assert.Equal(t, secret.OwnerID, ownerID)
	assert.Equal(t, secret.Type, models.SecretTypePassword)
	assert.Equal(t, secret.Version, int64(1))
	assert.Equal(t, secret.Tags["env"], "test")
	assert.Equal(t, secret.State(), models.SecretStateActive)
}

func TestGetSecretNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSecret(context.Background(), 9999)
	assert.Assert(t, IsNotFound(err))
}

func TestFindActiveSecretByName(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "by-name")

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		secret, err := tx.FindActiveSecretByName(context.Background(), ownerID, "by-name")
		assert.NilError(t, err)
		assert.Equal(t, secret.ID, secretID)

		_, err = tx.FindActiveSecretByName(context.Background(), ownerID, "no-such-name")
		assert.Assert(t, IsNotFound(err))
		return nil
	})
	assert.NilError(t, err)

	err = store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.SoftDeleteSecret(context.Background(), secretID, time.Now().UTC())
	})
	assert.NilError(t, err)

	// Soft-deleted rows are invisible to the name lookup.
	err = store.WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.FindActiveSecretByName(context.Background(), ownerID, "by-name")
		assert.Assert(t, IsNotFound(err))
		return nil
	})
	assert.NilError(t, err)
}

func TestDuplicateActiveNameConflicts(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	createTestSecret(t, store, ownerID, "api-key")

	now := time.Now().UTC()
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.InsertSecret(context.Background(), &models.Secret{
			OwnerID:        ownerID,
			Name:           "api-key",
			Type:           models.SecretTypeAPIKey,
			EncryptedValue: "enc:aesgcm:v1:key-v1:YmFy",
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		return err
	})
	assert.Assert(t, IsConflict(err))
}

func TestSameNameDifferentOwnersAllowed(t *testing.T) {
	store := newTestStore(t)
	alice := createTestUser(t, store, "alice@covault.test", models.RoleUser)
	bob := createTestUser(t, store, "bob@covault.test", models.RoleUser)

	createTestSecret(t, store, alice, "shared-name")
	createTestSecret(t, store, bob, "shared-name")
}

func TestNameReusableAfterSoftDelete(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "rotating-name")

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.SoftDeleteSecret(context.Background(), secretID, time.Now().UTC())
	})
	assert.NilError(t, err)

	// The partial unique index only covers live rows.
	createTestSecret(t, store, ownerID, "rotating-name")
}

func TestUpdateSecretValueOptimistic(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "db-password")

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.UpdateSecretValue(context.Background(), secretID, "enc:aesgcm:v1:key-v1:bmV3", 1, time.Now().UTC())
	})
	assert.NilError(t, err)

	secret, err := store.GetSecret(context.Background(), secretID)
	assert.NilError(t, err)
	assert.Equal(t, secret.Version, int64(2))
	assert.Equal(t, secret.EncryptedValue, "enc:aesgcm:v1:key-v1:bmV3")

	// Stale expected version must not apply.
	err = store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.UpdateSecretValue(context.Background(), secretID, "enc:aesgcm:v1:key-v1:b2xk", 1, time.Now().UTC())
	})
	assert.Assert(t, IsConflict(err))
}

func TestUpdateSecretMetadata(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "db-password")

	desc := "updated description"
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.UpdateSecretMetadata(context.Background(), secretID, &desc,
			map[string]string{"env": "prod", "team": "platform"}, time.Now().UTC())
	})
	assert.NilError(t, err)

	secret, err := store.GetSecret(context.Background(), secretID)
	assert.NilError(t, err)
	assert.Equal(t, secret.Description, "updated description")
	assert.Equal(t, secret.Tags["team"], "platform")
	// Metadata updates never bump the value version.
	assert.Equal(t, secret.Version, int64(1))
}

func TestSoftDelete(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "doomed")

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.SoftDeleteSecret(context.Background(), secretID, time.Now().UTC())
	})
	assert.NilError(t, err)

	// Row survives reads, state flips to deleted.
	secret, err := store.GetSecret(context.Background(), secretID)
	assert.NilError(t, err)
	assert.Equal(t, secret.State(), models.SecretStateDeleted)

	// Deleting twice reports not found.
	err = store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.SoftDeleteSecret(context.Background(), secretID, time.Now().UTC())
	})
	assert.Assert(t, IsNotFound(err))
}

func TestListSecretsOrderingAndFiltering(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	other := createTestUser(t, store, "other@covault.test", models.RoleUser)

	createTestSecret(t, store, ownerID, "zeta")
	createTestSecret(t, store, ownerID, "alpha")
	deletedID := createTestSecret(t, store, ownerID, "mid")
	createTestSecret(t, store, other, "not-yours")

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.SoftDeleteSecret(context.Background(), deletedID, time.Now().UTC())
	})
	assert.NilError(t, err)

	secrets, err := store.ListSecrets(context.Background(), ownerID, false)
	assert.NilError(t, err)
	assert.Equal(t, len(secrets), 2)
	assert.Equal(t, secrets[0].Name, "alpha")
	assert.Equal(t, secrets[1].Name, "zeta")

	withDeleted, err := store.ListSecrets(context.Background(), ownerID, true)
	assert.NilError(t, err)
	assert.Equal(t, len(withDeleted), 3)
	assert.Equal(t, withDeleted[1].Name, "mid")
}

func TestVersionLedger(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "versioned")

	now := time.Now().UTC()
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.InsertVersion(context.Background(), &models.SecretVersion{
			SecretID:       secretID,
			Version:        2,
			EncryptedValue: "enc:aesgcm:v1:key-v1:djI=",
			KeyVersion:     "key-v1",
			AuthorID:       &ownerID,
			CreatedAt:      now,
		})
	})
	assert.NilError(t, err)

	versions, err := store.ListVersions(context.Background(), secretID)
	assert.NilError(t, err)
	assert.Equal(t, len(versions), 2)
	assert.Equal(t, versions[0].Version, int64(1))
	assert.Equal(t, versions[1].Version, int64(2))

	// Duplicate (secret, version) pairs are rejected by the schema.
	err = store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.InsertVersion(context.Background(), &models.SecretVersion{
			SecretID:       secretID,
			Version:        2,
			EncryptedValue: "enc:aesgcm:v1:key-v1:ZHVw",
			KeyVersion:     "key-v1",
			CreatedAt:      now,
		})
	})
	assert.Assert(t, IsConflict(err))

	err = store.WithinTx(context.Background(), func(tx Tx) error {
		count, err := tx.CountVersions(context.Background(), secretID)
		assert.NilError(t, err)
		assert.Equal(t, count, int64(2))
		return nil
	})
	assert.NilError(t, err)
}

func TestAuditInsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "audited")

	base := time.Now().UTC().Truncate(time.Second)
	entries := []*models.AuditEntry{
		{ID: "a1", UserID: &ownerID, UserEmail: "owner@covault.test", Action: models.ActionCreate,
			SecretID: &secretID, IPAddress: "10.0.0.1", UserAgent: "cli", Status: models.AuditStatusSuccess, CreatedAt: base},
		{ID: "a2", UserID: &ownerID, UserEmail: "owner@covault.test", Action: models.ActionView,
			SecretID: &secretID, IPAddress: "10.0.0.1", UserAgent: "cli", Status: models.AuditStatusSuccess, CreatedAt: base.Add(time.Second)},
		{ID: "a3", UserID: &ownerID, UserEmail: "owner@covault.test", Action: models.ActionView,
			SecretID: &secretID, IPAddress: "10.0.0.2", UserAgent: "cli", Status: models.AuditStatusFailed,
			ErrorCode: "DECRYPTION_FAILED", CreatedAt: base.Add(2 * time.Second)},
	}

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		for _, entry := range entries {
			if err := tx.InsertAuditEntry(context.Background(), entry); err != nil {
				return err
			}
		}
		return nil
	})
	assert.NilError(t, err)

	all, err := store.QueryAudit(context.Background(), AuditFilter{})
	assert.NilError(t, err)
	assert.Equal(t, len(all), 3)
	assert.Equal(t, all[0].ID, "a1")

	views, err := store.QueryAudit(context.Background(), AuditFilter{Action: models.ActionView})
	assert.NilError(t, err)
	assert.Equal(t, len(views), 2)

	limited, err := store.QueryAudit(context.Background(), AuditFilter{Limit: 1})
	assert.NilError(t, err)
	assert.Equal(t, len(limited), 1)

	windowed, err := store.QueryAudit(context.Background(), AuditFilter{From: base.Add(time.Second)})
	assert.NilError(t, err)
	assert.Equal(t, len(windowed), 2)

	bySecret, err := store.QueryAudit(context.Background(), AuditFilter{SecretID: &secretID, UserEmail: "owner@covault.test"})
	assert.NilError(t, err)
	assert.Equal(t, len(bySecret), 3)
	assert.Equal(t, bySecret[2].Status, models.AuditStatusFailed)
	assert.Equal(t, bySecret[2].ErrorCode, "DECRYPTION_FAILED")
}

func TestUserLifecycle(t *testing.T) {
	store := newTestStore(t)
	userID := createTestUser(t, store, "dev@covault.test", models.RoleDeveloper)

	user, err := store.GetUser(context.Background(), userID)
	assert.NilError(t, err)
	assert.Equal(t, user.Email, "dev@covault.test")
	assert.Equal(t, user.Role, models.RoleDeveloper)
	assert.Assert(t, user.LastLogin == nil)

	// Upsert by email keeps the same row.
	err = store.WithinTx(context.Background(), func(tx Tx) error {
		id, err := tx.UpsertUser(context.Background(), &models.User{
			Email:          "dev@covault.test",
			CredentialHash: "argon2id$rotated",
			FullName:       "Dev User",
			Role:           models.RoleDevOps,
			Active:         true,
			CreatedAt:      time.Now().UTC(),
		})
		assert.Equal(t, id, userID)
		return err
	})
	assert.NilError(t, err)

	user, err = store.GetUserByEmail(context.Background(), "dev@covault.test")
	assert.NilError(t, err)
	assert.Equal(t, user.Role, models.RoleDevOps)
	assert.Equal(t, user.FullName, "Dev User")

	err = store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.TouchUserLogin(context.Background(), userID, time.Now().UTC())
	})
	assert.NilError(t, err)

	user, err = store.GetUser(context.Background(), userID)
	assert.NilError(t, err)
	assert.Assert(t, user.LastLogin != nil)
}

func TestDeleteUserCascades(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	secretID := createTestSecret(t, store, ownerID, "cascade-me")

	err := store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.InsertAuditEntry(context.Background(), &models.AuditEntry{
			ID: "cascade-audit", UserID: &ownerID, UserEmail: "owner@covault.test",
			Action: models.ActionCreate, SecretID: &secretID, Status: models.AuditStatusSuccess,
			CreatedAt: time.Now().UTC(),
		})
	})
	assert.NilError(t, err)

	err = store.WithinTx(context.Background(), func(tx Tx) error {
		return tx.DeleteUser(context.Background(), ownerID)
	})
	assert.NilError(t, err)

	_, err = store.GetSecret(context.Background(), secretID)
	assert.Assert(t, IsNotFound(err))

	versions, err := store.ListVersions(context.Background(), secretID)
	assert.NilError(t, err)
	assert.Equal(t, len(versions), 0)

	// Audit history outlives the user, with actor detached but email kept.
	audits, err := store.QueryAudit(context.Background(), AuditFilter{UserEmail: "owner@covault.test"})
	assert.NilError(t, err)
	assert.Equal(t, len(audits), 1)
	assert.Assert(t, audits[0].UserID == nil)
	assert.Equal(t, audits[0].UserEmail, "owner@covault.test")
}

func TestPurgeDeletedSecrets(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)
	oldID := createTestSecret(t, store, ownerID, "old-deleted")
	newID := createTestSecret(t, store, ownerID, "fresh-deleted")
	keepID := createTestSecret(t, store, ownerID, "still-live")

	now := time.Now().UTC()
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		if err := tx.SoftDeleteSecret(context.Background(), oldID, now.Add(-48*time.Hour)); err != nil {
			return err
		}
		return tx.SoftDeleteSecret(context.Background(), newID, now)
	})
	assert.NilError(t, err)

	purged, err := store.PurgeDeletedSecrets(context.Background(), now.Add(-24*time.Hour))
	assert.NilError(t, err)
	assert.Equal(t, purged, int64(1))

	_, err = store.GetSecret(context.Background(), oldID)
	assert.Assert(t, IsNotFound(err))

	_, err = store.GetSecret(context.Background(), newID)
	assert.NilError(t, err)
	_, err = store.GetSecret(context.Background(), keepID)
	assert.NilError(t, err)
}

func TestTxRollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ownerID := createTestUser(t, store, "owner@covault.test", models.RoleUser)

	now := time.Now().UTC()
	errBoom := context.Canceled
	err := store.WithinTx(context.Background(), func(tx Tx) error {
		_, err := tx.InsertSecret(context.Background(), &models.Secret{
			OwnerID:        ownerID,
			Name:           "never-committed",
			Type:           models.SecretTypeToken,
			EncryptedValue: "enc:aesgcm:v1:key-v1:eA==",
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		assert.NilError(t, err)
		return errBoom
	})
	assert.Assert(t, err == errBoom)

	secrets, err := store.ListSecrets(context.Background(), ownerID, true)
	assert.NilError(t, err)
	assert.Equal(t, len(secrets), 0)
}
