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

// Package audit records who did what to which secret. Entries are
// append-only: nothing in this package, or in the storage layer below
// it, can change or remove one once written.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/storage"
)

// Filter narrows an audit query. Zero values mean "any".
type Filter = storage.AuditFilter

// Recorder writes and reads audit entries.
type Recorder struct {
	store  storage.Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store storage.Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends an entry inside the caller's transaction, so the entry
// commits or rolls back together with the mutation it describes. A
// missing ID, status or timestamp is filled in.
func (r *Recorder) Record(ctx context.Context, tx storage.Tx, entry *models.AuditEntry) error {
	if err := r.prepare(entry); err != nil {
		return err
	}
	if err := tx.InsertAuditEntry(ctx, entry); err != nil {
		return err
	}

	r.logger.Debug("Recorded audit entry",
		zap.String("id", entry.ID),
		zap.String("action", string(entry.Action)),
		zap.String("status", string(entry.Status)))
	return nil
}

// RecordStandalone appends an entry in its own transaction. Used for
// LOGIN events and for failure entries where no mutation transaction
// exists to piggyback on.
func (r *Recorder) RecordStandalone(ctx context.Context, entry *models.AuditEntry) error {
	return r.store.WithinTx(ctx, func(tx storage.Tx) error {
		return r.Record(ctx, tx, entry)
	})
}

// Query returns entries matching the filter, oldest first.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]*models.AuditEntry, error) {
	return r.store.QueryAudit(ctx, filter)
}

func (r *Recorder) prepare(entry *models.AuditEntry) error {
	if !entry.Action.Valid() {
		return fmt.Errorf("invalid audit action %q", entry.Action)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Status == "" {
		entry.Status = models.AuditStatusSuccess
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return nil
}
