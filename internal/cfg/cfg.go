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

// Package cfg is the package responsible for loading and accessing the
// provisioner's configuration.
package cfg

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"text/template"

	"github.com/GoogleCloudPlatform/galog"
	"gopkg.in/ini.v1"
)

var (
	// instance is the single instance of configuration sections, once loaded
	// this package should always return it.
	instance *Sections

	// dataSources is a pointer to a data source loading/defining function, unit
	// tests will want to change this pointer to whatever makes sense to its
	// implementation.
	dataSources = defaultDataSources

	// defaultConfigValues holds the default values for the template.
	defaultConfigValues = map[string]string{
		"auditLogFile":        defaultAuditLogFile,
		"credentialStoreFile": defaultCredentialStoreFile,
		"provisionedUsersDir": defaultProvisionedUsersDir,
	}

	// panicFc is a reference to panic(), it's overridden in unit tests.
	panicFc = panicWrapper

	// cfgMu protects the initialization and retrieval of config instance.
	cfgMu sync.RWMutex
)

const (
	// defaultConfigTemplate is the default configuration template for the
	// configuration sections.
	defaultConfigTemplate = `
[Core]
log_level = 3
log_verbosity = 0
log_file =

[Accounts]
deprovision_remove = false
gpasswd_add_cmd = gpasswd -a {user} {group}
gpasswd_remove_cmd = gpasswd -d {user} {group}
groupadd_cmd = groupadd {group}
useradd_cmd = useradd -m -s {shell} -d {home} -g {group} {user}
userdel_cmd = userdel -r {user}
setpasswd_cmd = {user}:{password}|chpasswd
reuse_homedir = false
provisioned_users_dir = {{.provisionedUsersDir}}

[Provision]
default_shell = /bin/bash
home_base_dir = /home
home_dir_mode = 0750
password_length = 16

[AuditLog]
file = {{.auditLogFile}}
mode = 0644

[CredentialStore]
file = {{.credentialStoreFile}}
mode = 0600
`
)

// Sections encapsulates all the configuration sections.
type Sections struct {
	// Core defines the provisioner's core configuration entries/keys.
	Core *Core `ini:"Core,omitempty"`

	// Accounts defines the account management commands and behaviors.
	Accounts *Accounts `ini:"Accounts,omitempty"`

	// Provision defines the account provisioning conventions, i.e. default
	// shell, home directory placement and credential length.
	Provision *Provision `ini:"Provision,omitempty"`

	// AuditLog defines the audit log sink options.
	AuditLog *AuditLog `ini:"AuditLog,omitempty"`

	// CredentialStore defines the credential store options.
	CredentialStore *CredentialStore `ini:"CredentialStore,omitempty"`
}

// Core contains the core configuration entries of the provisioner, all
// configurations not tied/specific to a subsystem are defined in here.
type Core struct {
	// LogLevel defines the log level of the provisioner. The CLI's flag takes
	// precedence over this configuration.
	LogLevel int `ini:"log_level,omitempty"`
	// LogVerbosity defines the log verbosity of the provisioner.
	LogVerbosity int `ini:"log_verbosity,omitempty"`
	// LogFile defines the diagnostics log file of the provisioner. This is not
	// the audit log, see the AuditLog section for it.
	LogFile string `ini:"log_file,omitempty"`
}

// Accounts contains the configurations of the Accounts section. The command
// entries are templates, {user}, {group}, {home}, {shell} and {password} are
// replaced before execution; a "input|cmd" form sends input to the command's
// stdin.
type Accounts struct {
	DeprovisionRemove   bool   `ini:"deprovision_remove,omitempty"`
	GPasswdAddCmd       string `ini:"gpasswd_add_cmd,omitempty"`
	GPasswdRemoveCmd    string `ini:"gpasswd_remove_cmd,omitempty"`
	GroupAddCmd         string `ini:"groupadd_cmd,omitempty"`
	UserAddCmd          string `ini:"useradd_cmd,omitempty"`
	UserDelCmd          string `ini:"userdel_cmd,omitempty"`
	SetPasswdCmd        string `ini:"setpasswd_cmd,omitempty"`
	ReuseHomedir        bool   `ini:"reuse_homedir,omitempty"`
	ProvisionedUsersDir string `ini:"provisioned_users_dir,omitempty"`
}

// Provision contains the configurations of the Provision section.
type Provision struct {
	// DefaultShell is the login shell assigned to newly created accounts.
	DefaultShell string `ini:"default_shell,omitempty"`
	// HomeBaseDir is the directory under which account home directories are
	// created, i.e. /home.
	HomeBaseDir string `ini:"home_base_dir,omitempty"`
	// HomeDirMode is the octal permission mode applied to home directories of
	// newly created accounts.
	HomeDirMode string `ini:"home_dir_mode,omitempty"`
	// PasswordLength is the length of generated credentials.
	PasswordLength int `ini:"password_length,omitempty"`
}

// AuditLog contains the configurations of the AuditLog section.
type AuditLog struct {
	// File is the path of the append-only audit log.
	File string `ini:"file,omitempty"`
	// Mode is the octal permission mode of the audit log file.
	Mode string `ini:"mode,omitempty"`
}

// CredentialStore contains the configurations of the CredentialStore section.
type CredentialStore struct {
	// File is the path of the append-only credential store.
	File string `ini:"file,omitempty"`
	// Mode is the octal permission mode of the credential store file.
	Mode string `ini:"mode,omitempty"`
}

// panicWrapper is a wrapper over panic() to make it testable.
func panicWrapper(args ...any) {
	panic(args)
}

func applyTemplate(templateStr string, data map[string]string, buffer io.Writer) error {
	t, err := template.New("").Parse(templateStr)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	err = t.Execute(buffer, data)
	if err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

func defaultDataSources(extraDefaults []byte) []any {
	var res []any

	if len(extraDefaults) > 0 {
		res = append(res, extraDefaults)
	}

	return append(res, []any{
		defaultConfigFile,
		defaultConfigFile + ".distro",
		defaultConfigFile + ".template",
	}...)
}

// Load loads default configuration and the configuration from default config
// files.
func Load(extraDefaults []byte) error {
	cfgMu.Lock()
	defer cfgMu.Unlock()
	opts := ini.LoadOptions{
		Loose:       true,
		Insensitive: true,
	}

	var buffer bytes.Buffer
	err := applyTemplate(defaultConfigTemplate, defaultConfigValues, &buffer)
	if err != nil {
		return fmt.Errorf("unable to apply %v to config template: %w", defaultConfigValues, err)
	}

	sources := dataSources(extraDefaults)
	galog.V(3).Debugf("Loading configuration from sources: %v", sources)
	cfg, err := ini.LoadSources(opts, buffer.Bytes(), sources...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %+w", err)
	}

	sections := new(Sections)
	if err := cfg.MapTo(sections); err != nil {
		return fmt.Errorf("failed to map configuration to object: %w", err)
	}

	instance = sections
	return nil
}

// Retrieve returns the configuration's instance previously loaded with Load().
func Retrieve() *Sections {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if instance == nil {
		panicFc("cfg package was not initialized, Load() should be called in the early initialization code path")
	}
	return instance
}
