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

package models

import "time"

// SecretType identifies the kind of credential stored in a secret.
type SecretType string

const (
	SecretTypePassword    SecretType = "password"
	SecretTypeAPIKey      SecretType = "api_key"
	SecretTypeToken       SecretType = "token"
	SecretTypeCertificate SecretType = "certificate"
	SecretTypeSSHKey      SecretType = "ssh_key"
)

// Valid reports whether t is one of the supported secret types.
func (t SecretType) Valid() bool {
	switch t {
	case SecretTypePassword, SecretTypeAPIKey, SecretTypeToken,
		SecretTypeCertificate, SecretTypeSSHKey:
		return true
	}
	return false
}

// SecretState is the lifecycle state of a secret. A soft-deleted secret
// keeps its row, versions and audit trail but is excluded from listings
// and name-uniqueness checks.
type SecretState string

const (
	SecretStateActive  SecretState = "active"
	SecretStateDeleted SecretState = "deleted"
)

// Secret is a stored credential. The value is persisted only in encrypted
// form; EncryptedValue holds the marshalled payload including the provider
// and key version needed to decrypt it later.
type Secret struct {
	ID             int64             `db:"id"`
	OwnerID        int64             `db:"owner_id"`
	Name           string            `db:"name"`
	Type           SecretType        `db:"type"`
	EncryptedValue string            `db:"encrypted_value"`
	Description    string            `db:"description"`
	Tags           map[string]string `db:"-"`
	Version        int64             `db:"version"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
	DeletedAt      *time.Time        `db:"deleted_at"`
}

// State derives the lifecycle state from the deletion timestamp.
func (s *Secret) State() SecretState {
	if s.DeletedAt != nil {
		return SecretStateDeleted
	}
	return SecretStateActive
}

// Metadata returns the listing view of the secret. It never carries the
// encrypted value.
func (s *Secret) Metadata() *SecretMetadata {
	return &SecretMetadata{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Name:        s.Name,
		Type:        s.Type,
		Description: s.Description,
		Tags:        s.Tags,
		Version:     s.Version,
		State:       s.State(),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// SecretMetadata is what list operations expose to callers.
type SecretMetadata struct {
	ID          int64             `json:"id"`
	OwnerID     int64             `json:"owner_id"`
	Name        string            `json:"name"`
	Type        SecretType        `json:"type"`
	Description string            `json:"description,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Version     int64             `json:"version"`
	State       SecretState       `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SecretVersion is an immutable snapshot of a secret's encrypted value at
// one version. Rows are append-only: once written they are never updated,
// and they disappear only when their parent secret is hard-purged.
type SecretVersion struct {
	ID             int64     `db:"id"`
	SecretID       int64     `db:"secret_id"`
	Version        int64     `db:"version"`
	EncryptedValue string    `db:"encrypted_value"`
	KeyVersion     string    `db:"key_version"`
	AuthorID       *int64    `db:"author_id"`
	CreatedAt      time.Time `db:"created_at"`
}
