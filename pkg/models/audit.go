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

// Action is the kind of event recorded in the audit trail.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionView   Action = "VIEW"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionRotate Action = "ROTATE"
	ActionLogin  Action = "LOGIN"
)

// Valid reports whether a is a known audit action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionView, ActionUpdate, ActionDelete,
		ActionRotate, ActionLogin:
		return true
	}
	return false
}

// AuditStatus marks whether the audited operation succeeded. Failed
// entries exist so that decryption failures leave a forensic trace.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailed  AuditStatus = "failed"
)

// AuditEntry is one immutable fact in the audit trail. UserID is nullable
// because users may be removed after the fact; UserEmail is retained so
// the entry stays identifiable. SecretID is a plain integer rather than an
// enforced reference: audited secrets may later be hard-purged while the
// trail must survive.
type AuditEntry struct {
	ID        string      `db:"id"`
	UserID    *int64      `db:"user_id"`
	UserEmail string      `db:"user_email"`
	Action    Action      `db:"action"`
	SecretID  *int64      `db:"secret_id"`
	IPAddress string      `db:"ip_address"`
	UserAgent string      `db:"user_agent"`
	Status    AuditStatus `db:"status"`
	ErrorCode string      `db:"error_code"`
	CreatedAt time.Time   `db:"created_at"`
}
