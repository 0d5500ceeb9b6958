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

// Role is the coarse role assigned to a user by the authentication
// collaborator. Only admins hold vault-wide privileges; the remaining
// roles are equivalent to plain ownership for authorization purposes.
type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleDevOps    Role = "devops"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleDeveloper, RoleDevOps:
		return true
	}
	return false
}

// Privileged reports whether the role grants access to secrets owned by
// other users.
func (r Role) Privileged() bool {
	return r == RoleAdmin
}

// User is an identity record. Users are created and authenticated by an
// external collaborator; the engine only reads them for ownership checks
// and touches last_login when a LOGIN event is recorded.
type User struct {
	ID             int64      `db:"id"`
	Email          string     `db:"email"`
	CredentialHash string     `db:"credential_hash"`
	FullName       string     `db:"full_name"`
	Role           Role       `db:"role"`
	Active         bool       `db:"active"`
	LastLogin      *time.Time `db:"last_login"`
	CreatedAt      time.Time  `db:"created_at"`
}

// Principal is the authenticated requester identity supplied by the
// authentication collaborator with every Vault Service call.
type Principal struct {
	UserID int64
	Email  string
	Role   Role
}

// Origin carries the network metadata recorded with every audit entry.
type Origin struct {
	IPAddress string
	UserAgent string
}
