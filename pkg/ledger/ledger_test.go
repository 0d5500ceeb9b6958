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

package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/storage"
	"github.com/covault/covault/pkg/vaulterr"
)

func newTestLedger(t *testing.T) (*Ledger, storage.Store, int64) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "ledger-test.db")
	store, err := storage.NewSQLiteStore(dbPath, 5*time.Second, 10*time.Second, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	var secretID int64
	err = store.WithinTx(context.Background(), func(tx storage.Tx) error {
		ownerID, err := tx.UpsertUser(context.Background(), &models.User{
			Email:          "owner@covault.test",
			CredentialHash: "argon2id$test",
			Role:           models.RoleUser,
			Active:         true,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		secretID, err = tx.InsertSecret(context.Background(), &models.Secret{
			OwnerID:        ownerID,
			Name:           "ledgered",
			Type:           models.SecretTypePassword,
			EncryptedValue: "enc:aesgcm:v1:key-v1:djE=",
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		return err
	})
	require.NoError(t, err)

	return New(store, zap.NewNop()), store, secretID
}

func TestAppendSequence(t *testing.T) {
	ledger, store, secretID := newTestLedger(t)

	for v := int64(1); v <= 3; v++ {
		err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
			return ledger.Append(context.Background(), tx, secretID, v,
				fmt.Sprintf("enc:aesgcm:v1:key-v1:dj%d=", v), "key-v1", nil)
		})
		require.NoError(t, err)
	}

	history, err := ledger.History(context.Background(), secretID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, snapshot := range history {
		assert.Equal(t, int64(i+1), snapshot.Version)
		assert.Equal(t, "key-v1", snapshot.KeyVersion)
	}
}

func TestAppendRejectsGapAndReplay(t *testing.T) {
	ledger, store, secretID := newTestLedger(t)

	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return ledger.Append(context.Background(), tx, secretID, 1, "enc:aesgcm:v1:key-v1:djE=", "key-v1", nil)
	})
	require.NoError(t, err)

	// Skipping ahead is a conflict.
	err = store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return ledger.Append(context.Background(), tx, secretID, 3, "enc:aesgcm:v1:key-v1:djM=", "key-v1", nil)
	})
	assert.Equal(t, vaulterr.CodeVersionConflict, vaulterr.CodeOf(err))

	// So is re-appending an existing version.
	err = store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return ledger.Append(context.Background(), tx, secretID, 1, "enc:aesgcm:v1:key-v1:ZHVw", "key-v1", nil)
	})
	assert.Equal(t, vaulterr.CodeVersionConflict, vaulterr.CodeOf(err))

	history, err := ledger.History(context.Background(), secretID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestHistoryEmptyForUnknownSecret(t *testing.T) {
	ledger, _, _ := newTestLedger(t)

	history, err := ledger.History(context.Background(), 424242)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendRecordsAuthor(t *testing.T) {
	ledger, store, secretID := newTestLedger(t)

	var authorID int64 = 1
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		return ledger.Append(context.Background(), tx, secretID, 1, "enc:aesgcm:v1:key-v1:djE=", "key-v1", &authorID)
	})
	require.NoError(t, err)

	history, err := ledger.History(context.Background(), secretID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].AuthorID)
	assert.Equal(t, authorID, *history[0].AuthorID)
}
