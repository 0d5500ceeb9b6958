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
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"github.com/covault/covault/pkg/encryption"
)

const (
	// AESKeySize is the derived data-key size for AES-256 (32 bytes).
	AESKeySize = 32

	// MinMasterKeySize is the minimum accepted master key file size.
	MinMasterKeySize = 16
)

// KeyConfig references one master key file by version label.
type KeyConfig struct {
	Version  string
	FilePath string
}

// Key is a derived data-encryption key with its version label.
type Key struct {
	Version string
	Data    []byte
}

// KeyManager loads master key files and derives per-version data keys.
// The first configured key is the primary key used for new encryptions;
// older versions stay loaded so historical payloads remain decryptable
// after rotation.
type KeyManager struct {
	keys           map[string]*Key
	primaryKey     *Key
	primaryVersion string
	logger         *zap.Logger
}

// NewKeyManager creates a key manager and loads all configured keys.
func NewKeyManager(keyConfigs []KeyConfig, logger *zap.Logger) (*KeyManager, error) {
	if len(keyConfigs) == 0 {
		return nil, fmt.Errorf("at least one encryption key is required")
	}

	km := &KeyManager{
		keys:   make(map[string]*Key),
		logger: logger,
	}

	for i, cfg := range keyConfigs {
		key, err := km.loadKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load key %s: %w", cfg.Version, err)
		}

		km.keys[cfg.Version] = key

		if i == 0 {
			km.primaryKey = key
			km.primaryVersion = cfg.Version
		}
	}

	logger.Info("Key manager initialized",
		zap.Int("total_keys", len(km.keys)),
		zap.String("primary_version", km.primaryVersion))

	return km, nil
}

// loadKey reads a master key file and derives the AES-256 data key for
// the configured version via HKDF-SHA256. Deriving per version means the
// raw file contents never touch the cipher directly.
func (km *KeyManager) loadKey(cfg KeyConfig) (*Key, error) {
	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		return nil, &encryption.ErrKeyNotFound{KeyPath: cfg.FilePath}
	}

	perm := info.Mode().Perm()
	if perm&0004 != 0 {
		km.logger.Warn("Encryption key file is world-readable - consider restricting permissions",
			zap.String("key_version", cfg.Version),
			zap.String("file_path", cfg.FilePath),
			zap.String("permissions", perm.String()))
	}

	master, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	master = bytes.TrimRight(master, "\r\n")

	if len(master) < MinMasterKeySize {
		return nil, &encryption.ErrInvalidKeySize{
			Minimum: MinMasterKeySize,
			Actual:  len(master),
		}
	}

	derived := make([]byte, AESKeySize)
	kdf := hkdf.New(sha256.New, master, nil, []byte("covault:aesgcm:"+cfg.Version))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, fmt.Errorf("failed to derive data key: %w", err)
	}

	return &Key{Version: cfg.Version, Data: derived}, nil
}

// GetPrimaryKey returns the primary encryption key.
func (km *KeyManager) GetPrimaryKey() *Key {
	return km.primaryKey
}

// GetKey returns a specific key by version.
func (km *KeyManager) GetKey(version string) (*Key, error) {
	key, exists := km.keys[version]
	if !exists {
		return nil, &encryption.ErrKeyVersionUnknown{Version: version}
	}
	return key, nil
}

// GetPrimaryVersion returns the primary key version.
func (km *KeyManager) GetPrimaryVersion() string {
	return km.primaryVersion
}
