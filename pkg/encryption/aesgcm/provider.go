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

package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"go.uber.org/zap"

	"github.com/covault/covault/pkg/encryption"
)

// NonceSize is the nonce size for AES-GCM (12 bytes is standard).
const NonceSize = 12

// Provider implements authenticated encryption using AES-256-GCM.
type Provider struct {
	name       string
	keyManager *KeyManager
	logger     *zap.Logger
}

// NewProvider creates a new AES-GCM encryption provider.
func NewProvider(keyConfigs []KeyConfig, logger *zap.Logger) (*Provider, error) {
	keyManager, err := NewKeyManager(keyConfigs, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	provider := &Provider{
		name:       "aesgcm",
		keyManager: keyManager,
		logger:     logger,
	}

	logger.Info("AES-GCM provider initialized",
		zap.String("provider", provider.name),
		zap.String("primary_key_version", keyManager.GetPrimaryVersion()))

	return provider, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Encrypt encrypts plaintext using AES-GCM with a random nonce. The
// returned ciphertext layout is nonce || encrypted data || auth tag.
func (p *Provider) Encrypt(plaintext []byte) (*encryption.EncryptedPayload, error) {
	key := p.keyManager.GetPrimaryKey()

	block, err := aes.NewCipher(key.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// GCM appends the auth tag to the ciphertext automatically.
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)

	return &encryption.EncryptedPayload{
		Provider:   p.name,
		KeyVersion: key.Version,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt decrypts ciphertext using AES-GCM under the key version named
// in the payload. Any bit flip in the stored bytes fails the auth check.
func (p *Provider) Decrypt(payload *encryption.EncryptedPayload) ([]byte, error) {
	key, err := p.keyManager.GetKey(payload.KeyVersion)
	if err != nil {
		return nil, err
	}

	if len(payload.Ciphertext) < NonceSize {
		return nil, &encryption.ErrDecryptionFailed{
			ProviderName: p.name,
			Cause:        fmt.Errorf("ciphertext too short: %d bytes", len(payload.Ciphertext)),
		}
	}

	block, err := aes.NewCipher(key.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := payload.Ciphertext[:NonceSize]
	ciphertext := payload.Ciphertext[NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &encryption.ErrDecryptionFailed{
			ProviderName: p.name,
			Cause:        fmt.Errorf("authentication error: %w", err),
		}
	}

	return plaintext, nil
}

// HealthCheck validates that the provider is properly initialized.
func (p *Provider) HealthCheck() error {
	primaryKey := p.keyManager.GetPrimaryKey()
	if primaryKey == nil {
		return fmt.Errorf("no primary key available")
	}

	if len(primaryKey.Data) != AESKeySize {
		return &encryption.ErrInvalidKeySize{
			Minimum: AESKeySize,
			Actual:  len(primaryKey.Data),
		}
	}

	testData := []byte("health-check-test-data")
	encrypted, err := p.Encrypt(testData)
	if err != nil {
		return fmt.Errorf("health check encryption failed: %w", err)
	}

	decrypted, err := p.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("health check decryption failed: %w", err)
	}

	if string(decrypted) != string(testData) {
		return fmt.Errorf("health check round-trip failed: data mismatch")
	}

	return nil
}
