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

package identity

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/covault/covault/pkg/models"
	"github.com/covault/covault/pkg/vaulterr"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, method jwt.SigningMethod, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": 42,
		"email":   "dev@covault.test",
		"role":    "developer",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func TestVerifyValidToken(t *testing.T) {
	verifier, err := NewVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	principal, err := verifier.Verify(signToken(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Equal(t, "dev@covault.test", principal.Email)
	assert.Equal(t, models.RoleDeveloper, principal.Role)
}

func TestVerifyRejections(t *testing.T) {
	verifier, err := NewVerifier(testSecret, zap.NewNop())
	require.NoError(t, err)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	badRole := validClaims()
	badRole["role"] = "superuser"

	noUser := validClaims()
	delete(noUser, "user_id")

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not.a.token"},
		{"expired", signToken(t, jwt.SigningMethodHS256, testSecret, expired)},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), validClaims())},
		{"wrong algorithm", signToken(t, jwt.SigningMethodHS512, testSecret, validClaims())},
		{"unknown role", signToken(t, jwt.SigningMethodHS256, testSecret, badRole)},
		{"missing user id", signToken(t, jwt.SigningMethodHS256, testSecret, noUser)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(tc.token)
			assert.Equal(t, vaulterr.CodeForbidden, vaulterr.CodeOf(err))
		})
	}
}

func TestNewVerifierSecretTooShort(t *testing.T) {
	_, err := NewVerifier([]byte("short"), zap.NewNop())
	assert.Error(t, err)
}

func TestNewVerifierFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt.secret")
	require.NoError(t, os.WriteFile(path, append(testSecret, '\n'), 0o600))

	verifier, err := NewVerifierFromFile(path, zap.NewNop())
	require.NoError(t, err)

	// The trailing newline was trimmed, so tokens signed with the raw
	// secret verify.
	_, err = verifier.Verify(signToken(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	require.NoError(t, err)

	_, err = NewVerifierFromFile(filepath.Join(t.TempDir(), "absent"), zap.NewNop())
	assert.Error(t, err)
}
