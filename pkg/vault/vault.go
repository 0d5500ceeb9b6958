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

// Package vault is the service layer callers talk to. It checks
// authorization on every call, runs each mutation and its audit entry
// in one transaction, and retries transient storage failures with
// exponential backoff. An operation is only acknowledged once both the
// mutation and its audit entry are durably committed.
package vault

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/covault/covault/pkg/audit"
	"github.com/covault/covault/pkg/config"
	"github.com/covault/covault/pkg/ledger"
	"github.com/covault/covault/pkg/metrics"
	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/secretstore"
	"github.com/covault/covault/pkg/storage"
	"github.com/covault/covault/pkg/vaulterr"
)

// Service orchestrates the secret lifecycle components.
type Service struct {
	store     storage.Store
	secrets   *secretstore.SecretStore
	ledger    *ledger.Ledger
	recorder  *audit.Recorder
	retry     config.RetryConfig
	retention config.RetentionConfig
	logger    *zap.Logger
}

// NewService creates a Service.
func NewService(
	store storage.Store,
	secrets *secretstore.SecretStore,
	versionLedger *ledger.Ledger,
	recorder *audit.Recorder,
	retry config.RetryConfig,
	retention config.RetentionConfig,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:     store,
		secrets:   secrets,
		ledger:    versionLedger,
		recorder:  recorder,
		retry:     retry,
		retention: retention,
		logger:    logger,
	}
}

// CreateSecretRequest describes a new secret.
type CreateSecretRequest struct {
	Name        string
	Type        models.SecretType
	Value       string
	Description string
	Tags        map[string]string
}

// UpdateSecretRequest describes a secret update. A nil Value leaves the
// stored value alone; ExpectedVersion only matters when Value is set.
type UpdateSecretRequest struct {
	Value           *string
	ExpectedVersion int64
	Description     *string
	Tags            map[string]string
}

// SecretValue is a decrypted read result.
type SecretValue struct {
	Metadata *models.SecretMetadata
	Value    string
}

// VersionInfo describes one historical version without exposing the
// stored ciphertext.
type VersionInfo struct {
	Version    int64
	KeyVersion string
	AuthorID   *int64
	CreatedAt  time.Time
}

// ListOptions narrows a list call. OwnerID zero means the requester's
// own secrets; listing another owner requires the admin role.
type ListOptions struct {
	OwnerID        int64
	IncludeDeleted bool
}

// CreateSecret creates a secret owned by the requester.
func (s *Service) CreateSecret(ctx context.Context, principal models.Principal, origin models.Origin, req CreateSecretRequest) (*models.SecretMetadata, error) {
	var meta *models.SecretMetadata
	err := s.run(ctx, "create", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx storage.Tx) error {
			secret, err := s.secrets.Create(ctx, tx, secretstore.CreateParams{
				OwnerID:     principal.UserID,
				Name:        req.Name,
				Type:        req.Type,
				Value:       req.Value,
				Description: req.Description,
				Tags:        req.Tags,
				AuthorID:    &principal.UserID,
			})
			if err != nil {
				return err
			}
			meta = secret.Metadata()
			return s.recorder.Record(ctx, tx, s.entry(principal, origin, models.ActionCreate, &secret.ID))
		})
	})
	if err != nil {
		return nil, err
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(models.ActionCreate)).Inc()
	metrics.SecretsActive.Inc()
	return meta, nil
}

// ReadSecret returns the decrypted current value of a secret. The VIEW
// audit entry commits in the same transaction as the row read; a
// decryption failure is recorded as a failed VIEW instead.
func (s *Service) ReadSecret(ctx context.Context, principal models.Principal, origin models.Origin, secretID int64) (*SecretValue, error) {
	var result *SecretValue
	err := s.run(ctx, "read", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx storage.Tx) error {
			secret, plaintext, err := s.secrets.Read(ctx, tx, secretID)
			if err != nil {
				if secret != nil {
					if authzErr := authorize(principal, secret.OwnerID); authzErr != nil {
						return authzErr
					}
				}
				return err
			}
			if err := authorize(principal, secret.OwnerID); err != nil {
				return err
			}
			result = &SecretValue{Metadata: secret.Metadata(), Value: plaintext}
			return s.recorder.Record(ctx, tx, s.entry(principal, origin, models.ActionView, &secretID))
		})
	})
	if err != nil {
		s.auditFailure(ctx, principal, origin, models.ActionView, secretID, err)
		return nil, err
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(models.ActionView)).Inc()
	return result, nil
}

// UpdateSecret applies a value and/or metadata change.
func (s *Service) UpdateSecret(ctx context.Context, principal models.Principal, origin models.Origin, secretID int64, req UpdateSecretRequest) (*models.SecretMetadata, error) {
	var meta *models.SecretMetadata
	err := s.run(ctx, "update", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx storage.Tx) error {
			if err := s.authorizeSecret(ctx, tx, principal, secretID); err != nil {
				return err
			}
			secret, err := s.secrets.Update(ctx, tx, secretID, secretstore.UpdateParams{
				Value:           req.Value,
				ExpectedVersion: req.ExpectedVersion,
				Description:     req.Description,
				Tags:            req.Tags,
				AuthorID:        &principal.UserID,
			})
			if err != nil {
				return err
			}
			meta = secret.Metadata()
			return s.recorder.Record(ctx, tx, s.entry(principal, origin, models.ActionUpdate, &secretID))
		})
	})
	if err != nil {
		s.auditFailure(ctx, principal, origin, models.ActionUpdate, secretID, err)
		return nil, err
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(models.ActionUpdate)).Inc()
	return meta, nil
}

// RotateSecret replaces the value of a secret against its latest
// version. With an empty newValue a random password is generated. The
// new plaintext is returned exactly once, here.
func (s *Service) RotateSecret(ctx context.Context, principal models.Principal, origin models.Origin, secretID int64, newValue string) (*models.SecretMetadata, string, error) {
	var (
		meta      *models.SecretMetadata
		plaintext string
	)
	err := s.run(ctx, "rotate", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx storage.Tx) error {
			if err := s.authorizeSecret(ctx, tx, principal, secretID); err != nil {
				return err
			}
			secret, value, err := s.secrets.Rotate(ctx, tx, secretID, newValue, &principal.UserID)
			if err != nil {
				return err
			}
			meta = secret.Metadata()
			plaintext = value
			return s.recorder.Record(ctx, tx, s.entry(principal, origin, models.ActionRotate, &secretID))
		})
	})
	if err != nil {
		return nil, "", err
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(models.ActionRotate)).Inc()
	return meta, plaintext, nil
}

// DeleteSecret soft-deletes a secret. Its audit trail and version
// history stay behind.
func (s *Service) DeleteSecret(ctx context.Context, principal models.Principal, origin models.Origin, secretID int64) error {
	err := s.run(ctx, "delete", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx storage.Tx) error {
			if err := s.authorizeSecret(ctx, tx, principal, secretID); err != nil {
				return err
			}
			if err := s.secrets.Delete(ctx, tx, secretID); err != nil {
				return err
			}
			return s.recorder.Record(ctx, tx, s.entry(principal, origin, models.ActionDelete, &secretID))
		})
	})
	if err != nil {
		return err
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(models.ActionDelete)).Inc()
	metrics.SecretsActive.Dec()
	return nil
}

// ListSecrets returns secret metadata ordered by name.
func (s *Service) ListSecrets(ctx context.Context, principal models.Principal, opts ListOptions) ([]*models.SecretMetadata, error) {
	ownerID := opts.OwnerID
	if ownerID == 0 {
		ownerID = principal.UserID
	}
	if err := authorize(principal, ownerID); err != nil {
		return nil, err
	}

	var listed []*models.SecretMetadata
	err := s.run(ctx, "list", func(ctx context.Context) error {
		var err error
		listed, err = s.secrets.List(ctx, ownerID, opts.IncludeDeleted)
		return err
	})
	if err != nil {
		return nil, err
	}
	return listed, nil
}

// GetSecretHistory returns the version history of a secret, oldest
// first. The history of a soft-deleted secret remains readable.
func (s *Service) GetSecretHistory(ctx context.Context, principal models.Principal, secretID int64) ([]VersionInfo, error) {
	var history []VersionInfo
	err := s.run(ctx, "history", func(ctx context.Context) error {
		secret, err := s.store.GetSecret(ctx, secretID)
		if storage.IsNotFound(err) {
			return vaulterr.NotFound()
		}
		if err != nil {
			return err
		}
		if err := authorize(principal, secret.OwnerID); err != nil {
			return err
		}

		versions, err := s.ledger.History(ctx, secretID)
		if err != nil {
			return err
		}
		history = make([]VersionInfo, 0, len(versions))
		for _, v := range versions {
			history = append(history, VersionInfo{
				Version:    v.Version,
				KeyVersion: v.KeyVersion,
				AuthorID:   v.AuthorID,
				CreatedAt:  v.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// QueryAuditLog returns audit entries, oldest first. Requesters without
// the admin role only see their own entries.
func (s *Service) QueryAuditLog(ctx context.Context, principal models.Principal, filter audit.Filter) ([]*models.AuditEntry, error) {
	if !principal.Role.Privileged() {
		if filter.UserEmail != "" && filter.UserEmail != principal.Email {
			return nil, vaulterr.Forbidden()
		}
		filter.UserEmail = principal.Email
	}

	var entries []*models.AuditEntry
	err := s.run(ctx, "audit_query", func(ctx context.Context) error {
		var err error
		entries, err = s.recorder.Query(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RecordLogin stamps the requester's last login and records a LOGIN
// audit entry, both in one transaction.
func (s *Service) RecordLogin(ctx context.Context, principal models.Principal, origin models.Origin) error {
	err := s.run(ctx, "login", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx storage.Tx) error {
			if err := tx.TouchUserLogin(ctx, principal.UserID, time.Now().UTC()); err != nil {
				if storage.IsNotFound(err) {
					return vaulterr.Forbidden()
				}
				return err
			}
			return s.recorder.Record(ctx, tx, s.entry(principal, origin, models.ActionLogin, nil))
		})
	})
	if err != nil {
		return err
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(models.ActionLogin)).Inc()
	return nil
}

// PurgeDeleted hard-deletes soft-deleted secrets older than the
// configured retention window. It does nothing unless retention is
// explicitly configured, and it never touches audit entries.
func (s *Service) PurgeDeleted(ctx context.Context) (int64, error) {
	if s.retention.PurgeDeletedAfter <= 0 {
		s.logger.Debug("Retention purge not configured, skipping")
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-s.retention.PurgeDeletedAfter)
	var purged int64
	err := s.run(ctx, "purge", func(ctx context.Context) error {
		var err error
		purged, err = s.store.PurgeDeletedSecrets(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

// authorizeSecret loads a secret inside the transaction and checks the
// requester may act on it. The row is looked at before its liveness so a
// forbidden requester cannot learn whether a secret exists as deleted.
func (s *Service) authorizeSecret(ctx context.Context, tx storage.Tx, principal models.Principal, secretID int64) error {
	secret, err := s.secrets.Get(ctx, tx, secretID)
	if err != nil {
		return err
	}
	return authorize(principal, secret.OwnerID)
}

func authorize(principal models.Principal, ownerID int64) error {
	if principal.UserID == ownerID || principal.Role.Privileged() {
		return nil
	}
	return vaulterr.Forbidden()
}

func (s *Service) entry(principal models.Principal, origin models.Origin, action models.Action, secretID *int64) *models.AuditEntry {
	return &models.AuditEntry{
		UserID:    &principal.UserID,
		UserEmail: principal.Email,
		Action:    action,
		SecretID:  secretID,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		Status:    models.AuditStatusSuccess,
	}
}

// auditFailure records a failed audit entry for decryption errors. The
// failing transaction has already rolled back, so the entry gets its
// own.
func (s *Service) auditFailure(ctx context.Context, principal models.Principal, origin models.Origin, action models.Action, secretID int64, cause error) {
	code := vaulterr.CodeOf(cause)
	if code != vaulterr.CodeDecryptionFailed && code != vaulterr.CodeKeyUnavailable {
		return
	}

	entry := s.entry(principal, origin, action, &secretID)
	entry.Status = models.AuditStatusFailed
	entry.ErrorCode = string(code)
	if err := s.recorder.RecordStandalone(ctx, entry); err != nil {
		s.logger.Error("Failed to record failure audit entry",
			zap.Int64("secretId", secretID),
			zap.Error(err))
		return
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(action)).Inc()
}

// run wraps an operation with retry, metrics and error translation.
func (s *Service) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()
	err := s.withRetry(ctx, operation, fn)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SecretOperationsTotal.WithLabelValues(operation, status).Inc()
	metrics.SecretOperationDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	return err
}

// withRetry re-runs fn for retryable errors only, with exponential
// backoff and jitter between attempts. Each attempt sees a fresh
// transaction, so a retried mutation still carries exactly one audit
// entry.
func (s *Service) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := s.retry.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := s.retry.InitialBackoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = translate(fn(ctx))
		if err == nil || !vaulterr.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		metrics.RetriesTotal.WithLabelValues(operation).Inc()
		s.logger.Warn("Retrying operation after transient failure",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(jitter(backoff)):
		}
		backoff *= 2
		if s.retry.MaxBackoff > 0 && backoff > s.retry.MaxBackoff {
			backoff = s.retry.MaxBackoff
		}
	}
	return err
}

// translate maps storage sentinels onto the engine error taxonomy.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case vaulterr.CodeOf(err) != "":
		return err
	case storage.IsTimeout(err):
		metrics.StorageErrorsTotal.WithLabelValues("store").Inc()
		return vaulterr.TransactionTimeout(err)
	case storage.IsUnavailable(err):
		metrics.StorageErrorsTotal.WithLabelValues("store").Inc()
		return vaulterr.StorageUnavailable(err)
	case storage.IsNotFound(err):
		return vaulterr.NotFound()
	}
	return err
}

// jitter returns a random duration in [d/2, d). Sub-2ns backoffs have no
// room to randomize and are returned as-is; rand.Int63n rejects a zero bound.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
