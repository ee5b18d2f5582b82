//  Copyright 2025 UserCreation Authors
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

//go:build linux

package cfg

const (
	// defaultConfigFile is the path to the provisioner's config file.
	defaultConfigFile = `/etc/userprov.cfg`
	// defaultAuditLogFile is where provisioning actions are recorded.
	defaultAuditLogFile = "/var/log/user_management.log"
	// defaultCredentialStoreFile is where generated credentials are recorded.
	defaultCredentialStoreFile = "/var/secure/user_passwords.csv"
	// defaultProvisionedUsersDir is the directory holding the bookkeeping file
	// listing accounts created by the provisioner.
	defaultProvisionedUsersDir = "/var/lib/userprov"
)
