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

// Package vaulterr defines the stable error taxonomy exposed by the vault
// engine. Every error returned to a caller maps to one of these codes;
// storage and crypto internals never leak into the message text.
package vaulterr

import (
	"errors"
	"fmt"
)

// Code is a stable, documented error code.
type Code string

const (
	CodeDuplicateName      Code = "DUPLICATE_NAME"
	CodeNotFound           Code = "NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
	CodeVersionConflict    Code = "VERSION_CONFLICT"
	CodeDecryptionFailed   Code = "DECRYPTION_FAILED"
	CodeKeyUnavailable     Code = "KEY_UNAVAILABLE"
	CodeTransactionTimeout Code = "TRANSACTION_TIMEOUT"
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
)

// Error carries a taxonomy code and a caller-safe message. The underlying
// cause is preserved for logging via Unwrap but is not part of the message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a taxonomy error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a taxonomy error preserving the underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf extracts the taxonomy code from err, or "" if err is not a
// taxonomy error.
func CodeOf(err error) Code {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// Retryable reports whether err is a transient infrastructure failure that
// may succeed on retry. Authorization and validation errors are never
// retryable: repeating them cannot change the outcome.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeKeyUnavailable, CodeTransactionTimeout, CodeStorageUnavailable:
		return true
	}
	return false
}

// DuplicateName reports a (name, owner) collision among active secrets.
func DuplicateName(name string) *Error {
	return New(CodeDuplicateName, fmt.Sprintf("an active secret named %q already exists for this owner", name))
}

// NotFound reports an absent or soft-deleted secret.
func NotFound() *Error {
	return New(CodeNotFound, "secret not found")
}

// Forbidden reports a failed ownership or role check.
func Forbidden() *Error {
	return New(CodeForbidden, "requester is neither the owner nor privileged")
}

// VersionConflict reports a stale expected version from an optimistic
// concurrency check.
func VersionConflict(expected, current int64) *Error {
	return New(CodeVersionConflict, fmt.Sprintf("expected version %d but current version is %d", expected, current))
}

// DecryptionFailed reports corrupt, tampered or mismatched ciphertext. The
// cause is retained for logs; the message never includes payload bytes.
func DecryptionFailed(cause error) *Error {
	return Wrap(CodeDecryptionFailed, "stored payload could not be decrypted", cause)
}

// KeyUnavailable reports that required key material could not be obtained.
func KeyUnavailable(cause error) *Error {
	return Wrap(CodeKeyUnavailable, "encryption key material is unavailable", cause)
}

// TransactionTimeout reports that the storage transaction exceeded the
// caller's deadline.
func TransactionTimeout(cause error) *Error {
	return Wrap(CodeTransactionTimeout, "storage transaction timed out", cause)
}

// StorageUnavailable reports a transient storage failure.
func StorageUnavailable(cause error) *Error {
	return Wrap(CodeStorageUnavailable, "durable storage is unavailable", cause)
}

// Invalid reports a request rejected before it reached storage: an unknown
// secret type, an empty name or an oversized value.
func Invalid(message string) *Error {
	return New(CodeInvalidArgument, message)
}
