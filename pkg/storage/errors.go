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

package storage

import "errors"

// Common storage errors - backend agnostic.
var (
	// ErrNotFound is returned when a row is not found.
	ErrNotFound = errors.New("row not found")

	// ErrConflict is returned when an insert or conditional update loses
	// to a unique constraint or a version check.
	ErrConflict = errors.New("row already exists or was concurrently modified")

	// ErrTxTimeout is returned when a transaction exceeds the caller's
	// deadline. Retryable.
	ErrTxTimeout = errors.New("storage transaction timed out")

	// ErrUnavailable is returned on transient backend failures such as a
	// locked SQLite database or a Postgres serialization failure.
	// Retryable.
	ErrUnavailable = errors.New("storage is unavailable")
)

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error. Callers distinguish
// name collisions from version collisions by the operation they ran.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTimeout checks if an error is a transaction timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTxTimeout)
}

// IsUnavailable checks if an error is a transient backend failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
