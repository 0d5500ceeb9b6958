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

// Package encryption isolates all key material behind a provider chain.
// Callers hand plaintext in and get an opaque payload back; nothing in
// this package persists keys next to ciphertext or logs payload contents.
package encryption

import (
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Provider is the contract an encryption implementation fulfils. Every
// implementation must use authenticated encryption: a tampered payload
// fails at decrypt time instead of producing garbage plaintext.
type Provider interface {
	// Name returns the provider identifier (e.g. "aesgcm").
	Name() string

	// Encrypt transforms plaintext into an encrypted payload using the
	// primary key.
	Encrypt(plaintext []byte) (*EncryptedPayload, error)

	// Decrypt transforms an encrypted payload back to plaintext, using
	// the key version recorded in the payload.
	Decrypt(payload *EncryptedPayload) ([]byte, error)

	// HealthCheck validates provider initialization and key availability.
	HealthCheck() error
}

// EncryptedPayload is encrypted data plus the metadata needed to decrypt
// it later: which provider produced it and under which key version.
type EncryptedPayload struct {
	Provider   string
	KeyVersion string
	Ciphertext []byte
}

// Manager routes encryption to the primary provider and decryption to
// whichever provider produced the payload.
type Manager struct {
	providers []Provider
	logger    *zap.Logger
}

// NewManager creates a manager over the given providers. The first
// provider encrypts all new payloads.
func NewManager(providers []Provider, logger *zap.Logger) (*Manager, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one encryption provider is required")
	}

	for _, provider := range providers {
		if err := provider.HealthCheck(); err != nil {
			return nil, fmt.Errorf("provider %s failed health check: %w", provider.Name(), err)
		}
	}

	logger.Info("Initialized encryption provider chain",
		zap.Int("provider_count", len(providers)),
		zap.String("primary_provider", providers[0].Name()))

	return &Manager{providers: providers, logger: logger}, nil
}

// Encrypt encrypts plaintext with the primary provider.
func (m *Manager) Encrypt(plaintext []byte) (*EncryptedPayload, error) {
	primary := m.providers[0]

	payload, err := primary.Encrypt(plaintext)
	if err != nil {
		m.logger.Error("Encryption failed",
			zap.String("provider", primary.Name()),
			zap.Error(err))
		return nil, &ErrEncryptionFailed{ProviderName: primary.Name(), Cause: err}
	}

	return payload, nil
}

// Decrypt decrypts the payload with the provider named in its metadata.
func (m *Manager) Decrypt(payload *EncryptedPayload) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("encrypted payload is nil")
	}

	for _, provider := range m.providers {
		if provider.Name() != payload.Provider {
			continue
		}

		plaintext, err := provider.Decrypt(payload)
		if err != nil {
			m.logger.Error("Decryption failed",
				zap.String("provider", provider.Name()),
				zap.String("key_version", payload.KeyVersion),
				zap.Error(err))
			return nil, err
		}
		return plaintext, nil
	}

	m.logger.Error("No provider found for decryption",
		zap.String("requested_provider", payload.Provider),
		zap.String("key_version", payload.KeyVersion))

	return nil, &ErrProviderNotFound{ProviderName: payload.Provider}
}

// HealthCheck validates all providers in the chain.
func (m *Manager) HealthCheck() error {
	for _, provider := range m.providers {
		if err := provider.HealthCheck(); err != nil {
			return fmt.Errorf("provider %s health check failed: %w", provider.Name(), err)
		}
	}
	return nil
}

// MarshalPayload converts an EncryptedPayload to its storage form.
// Format: enc:provider:v1:key-version:base64-ciphertext
func MarshalPayload(payload *EncryptedPayload) string {
	encoded := base64.StdEncoding.EncodeToString(payload.Ciphertext)
	return fmt.Sprintf("enc:%s:v1:%s:%s", payload.Provider, payload.KeyVersion, encoded)
}

// UnmarshalPayload parses the storage form back into an EncryptedPayload.
func UnmarshalPayload(stored string) (*EncryptedPayload, error) {
	parts := strings.SplitN(stored, ":", 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("invalid payload format: expected 5 parts, got %d", len(parts))
	}

	if parts[0] != "enc" {
		return nil, fmt.Errorf("invalid payload prefix: expected 'enc', got '%s'", parts[0])
	}

	if parts[2] != "v1" {
		return nil, fmt.Errorf("unsupported payload version: %s", parts[2])
	}

	ciphertext, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	return &EncryptedPayload{
		Provider:   parts[1],
		KeyVersion: parts[3],
		Ciphertext: ciphertext,
	}, nil
}
