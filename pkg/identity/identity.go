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

// Package identity turns bearer tokens issued by the authentication
// collaborator into principals the engine can authorize against. Token
// issuance, password hashing and session handling all live outside this
// module; only verification happens here.
package identity

import (
	"bytes"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/vaulterr"
)

const minSecretSize = 32

// Verifier validates HS256 tokens against a shared secret.
type Verifier struct {
	secret []byte
	logger *zap.Logger
}

type tokenClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewVerifier creates a Verifier from a raw shared secret.
func NewVerifier(secret []byte, logger *zap.Logger) (*Verifier, error) {
	if len(secret) < minSecretSize {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", minSecretSize, len(secret))
	}
	return &Verifier{secret: secret, logger: logger}, nil
}

// NewVerifierFromFile creates a Verifier with the secret read from a
// file. A trailing newline is tolerated.
func NewVerifierFromFile(path string, logger *zap.Logger) (*Verifier, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt secret file: %w", err)
	}
	return NewVerifier(bytes.TrimRight(raw, "\r\n"), logger)
}

// Verify parses and validates a token, returning the principal it
// carries. Any defect, expiry or signature mismatch surfaces as
// Forbidden without detail.
func (v *Verifier) Verify(tokenString string) (*models.Principal, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		v.logger.Debug("Rejected token", zap.Error(err))
		return nil, vaulterr.Forbidden()
	}

	role := models.Role(claims.Role)
	if claims.UserID <= 0 || claims.Email == "" || !role.Valid() {
		v.logger.Debug("Rejected token with malformed claims")
		return nil, vaulterr.Forbidden()
	}

	return &models.Principal{
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   role,
	}, nil
}
