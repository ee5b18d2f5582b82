//  Copyright 2025 UserCreation Authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package accounts is the adapter over the OS account database, it wraps the
// system account management tools (getent, useradd, groupadd, gpasswd,
// chpasswd) behind query and mutation operations.
package accounts

// User is the representation of an OS user account.
type User struct {
	// Username is the username of the user.
	Username string
	// Password is the password field of the passwd entry, not a cleartext
	// credential.
	Password string
	// UID is the user id of the user.
	UID string
	// GID is the group id of the user's primary group.
	GID string
	// Name is the full name of the user.
	Name string
	// HomeDir is the home directory of the user.
	HomeDir string
	// Shell is the login shell of the user.
	Shell string
}

// Group is the representation of an OS group. Unlike os/user's Group it
// carries the member list, which the membership update path needs.
type Group struct {
	// Name is the name of the group.
	Name string
	// GID is the group id of the group.
	GID string
	// Members is the list of members of the group.
	Members []string
}
