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

//go:build linux

// Package provision implements the provisioning engine. Records are processed
// sequentially in input order; each record runs through a small state machine
// and a failed step truncates that record only, the run always continues with
// the next one. Every action and failure is recorded in the audit log, the
// generated credential values themselves are only ever written to the
// credential store.
package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/sivapidathala/UserCreation/internal/accounts"
	"github.com/sivapidathala/UserCreation/internal/auditlog"
	"github.com/sivapidathala/UserCreation/internal/cfg"
	"github.com/sivapidathala/UserCreation/internal/credstore"
	"github.com/sivapidathala/UserCreation/internal/roster"
	"github.com/sivapidathala/UserCreation/internal/secret"
)

// State is how far a record made it through the provisioning steps.
type State int

const (
	// StateParsed is the initial state of every record.
	StateParsed State = iota
	// StateGroupEnsured means the personal and supplementary groups exist.
	StateGroupEnsured
	// StateExistingUpdated is the terminal state of a record whose account
	// already existed, only additive membership updates were performed.
	StateExistingUpdated
	// StateCreated means a new account was created.
	StateCreated
	// StateHomeConfigured means the new account's home directory ownership and
	// permissions were applied.
	StateHomeConfigured
	// StateCredentialApplied means the generated credential was set on the
	// account.
	StateCredentialApplied
	// StateCredentialStored is the terminal state of a fully provisioned new
	// account.
	StateCredentialStored
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateGroupEnsured:
		return "group-ensured"
	case StateExistingUpdated:
		return "existing-updated"
	case StateCreated:
		return "created"
	case StateHomeConfigured:
		return "home-configured"
	case StateCredentialApplied:
		return "credential-applied"
	case StateCredentialStored:
		return "credential-stored"
	default:
		return "unknown"
	}
}

// Outcome is the per record result of a provisioning pass.
type Outcome struct {
	// Username is the record's account name.
	Username string
	// State is the last state the record reached.
	State State
	// Err is the error that truncated the record, nil if it ran to a terminal
	// state.
	Err error
}

// Engine drives the provisioning steps for a parsed roster. The audit sink
// and credential store are injected so the record state machine never binds
// to fixed paths.
type Engine struct {
	audit *auditlog.Sink
	store *credstore.Store
}

// New returns an engine writing to the given audit sink and credential store.
func New(audit *auditlog.Sink, store *credstore.Store) *Engine {
	return &Engine{audit: audit, store: store}
}

// Apply processes the records sequentially in input order. A record's failure
// never aborts the pass; the returned outcomes preserve input order and carry
// the error that truncated each failed record.
func (e *Engine) Apply(ctx context.Context, records []roster.Record) []Outcome {
	outcomes := make([]Outcome, 0, len(records))
	for _, rec := range records {
		outcome := e.applyRecord(ctx, rec)
		if outcome.Err != nil {
			galog.Warnf("Record %q truncated at state %v: %v", outcome.Username, outcome.State, outcome.Err)
		} else {
			galog.Infof("Record %q completed with state %v", outcome.Username, outcome.State)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// applyRecord runs a single record through the provisioning state machine.
func (e *Engine) applyRecord(ctx context.Context, rec roster.Record) Outcome {
	outcome := Outcome{Username: rec.Username, State: StateParsed}

	// The personal group is a precondition of account creation, its failure
	// truncates the record.
	if _, err := e.ensureGroup(ctx, rec.Username); err != nil {
		e.auditf("Failed to create group %s: %v", rec.Username, err)
		outcome.Err = fmt.Errorf("failed to ensure personal group %q: %w", rec.Username, err)
		return outcome
	}

	// Supplementary groups are ensured independently, a failed one is dropped
	// from the resolved list and the record carries on with the rest.
	var resolved []string
	for _, groupName := range rec.Groups {
		if _, err := e.ensureGroup(ctx, groupName); err != nil {
			e.auditf("Failed to create group %s: %v", groupName, err)
			continue
		}
		resolved = append(resolved, groupName)
	}
	outcome.State = StateGroupEnsured

	u, err := accounts.FindUser(ctx, rec.Username)
	if err == nil {
		e.auditf("User %s already exists", rec.Username)
		e.updateMemberships(ctx, u, resolved)
		outcome.State = StateExistingUpdated
		return outcome
	}
	if !errors.As(err, new(user.UnknownUserError)) {
		e.auditf("Failed to look up user %s: %v", rec.Username, err)
		outcome.Err = fmt.Errorf("failed to look up user %q: %w", rec.Username, err)
		return outcome
	}

	newUser := &accounts.User{
		Username: rec.Username,
		UID:      "-1",
		GID:      "-1",
		HomeDir:  filepath.Join(cfg.Retrieve().Provision.HomeBaseDir, rec.Username),
		Shell:    cfg.Retrieve().Provision.DefaultShell,
	}
	if err := accounts.CreateUser(ctx, newUser, resolved); err != nil {
		e.auditf("Failed to create user %s: %v", rec.Username, err)
		outcome.Err = fmt.Errorf("failed to create user %q: %w", rec.Username, err)
		return outcome
	}
	e.auditf("User %s created with home directory %s", rec.Username, newUser.HomeDir)
	outcome.State = StateCreated

	// Home directory ownership and mode failures are surfaced but do not block
	// the credential steps.
	if err := e.configureHome(ctx, newUser); err != nil {
		e.auditf("Failed to configure home directory of user %s: %v", rec.Username, err)
	} else {
		outcome.State = StateHomeConfigured
	}

	credential := secret.NewPassword(cfg.Retrieve().Provision.PasswordLength)
	if err := accounts.SetPassword(ctx, newUser, credential); err != nil {
		e.auditf("Failed to set password for user %s: %v", rec.Username, err)
		outcome.Err = fmt.Errorf("failed to set password for user %q: %w", rec.Username, err)
		return outcome
	}
	e.auditf("Password set for user %s", rec.Username)
	outcome.State = StateCredentialApplied

	if err := e.store.Append(rec.Username, credential); err != nil {
		e.auditf("Failed to store credential for user %s: %v", rec.Username, err)
		outcome.Err = fmt.Errorf("failed to store credential for user %q: %w", rec.Username, err)
		return outcome
	}
	e.auditf("Credential for user %s stored", rec.Username)
	outcome.State = StateCredentialStored

	return outcome
}

// ensureGroup finds the named group, creating it if absent. Both outcomes are
// audited. Lookup or creation failures are returned to the caller.
func (e *Engine) ensureGroup(ctx context.Context, groupName string) (*accounts.Group, error) {
	g, err := accounts.FindGroup(ctx, groupName)
	if err == nil {
		e.auditf("Group %s already exists", groupName)
		return g, nil
	}
	if !errors.As(err, new(user.UnknownGroupError)) {
		return nil, fmt.Errorf("failed to look up group %q: %w", groupName, err)
	}

	if err := accounts.CreateGroup(ctx, groupName); err != nil {
		return nil, err
	}
	e.auditf("Group %s created", groupName)
	return &accounts.Group{Name: groupName}, nil
}

// updateMemberships adds the existing user to each resolved group it is not
// yet a member of. Updates are additive only, memberships outside the roster
// are never touched. A single group's failure is audited and the rest are
// still attempted.
func (e *Engine) updateMemberships(ctx context.Context, u *accounts.User, resolved []string) {
	for _, groupName := range resolved {
		g, err := accounts.FindGroup(ctx, groupName)
		if err != nil {
			e.auditf("Failed to add user %s to group %s: %v", u.Username, groupName, err)
			continue
		}
		if slices.Contains(g.Members, u.Username) {
			e.auditf("User %s is already a member of group %s", u.Username, groupName)
			continue
		}
		if err := accounts.AddUserToGroup(ctx, u, g); err != nil {
			e.auditf("Failed to add user %s to group %s: %v", u.Username, groupName, err)
			continue
		}
		e.auditf("Added user %s to group %s", u.Username, groupName)
	}
}

// configureHome applies the configured ownership and mode to the new
// account's home directory. The account tools create the directory, this step
// only tightens it.
func (e *Engine) configureHome(ctx context.Context, u *accounts.User) error {
	created, err := accounts.FindUser(ctx, u.Username)
	if err != nil {
		return fmt.Errorf("failed to look up created user %q: %w", u.Username, err)
	}

	// The account database is authoritative for the home location, a custom
	// creation command may have placed it elsewhere.
	if err := os.Chown(created.HomeDir, created.UnixUID(), created.UnixGID()); err != nil {
		return fmt.Errorf("failed to set ownership of %q: %w", created.HomeDir, err)
	}

	mode, err := strconv.ParseUint(cfg.Retrieve().Provision.HomeDirMode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid home_dir_mode %q: %w", cfg.Retrieve().Provision.HomeDirMode, err)
	}
	if err := os.Chmod(created.HomeDir, os.FileMode(mode)); err != nil {
		return fmt.Errorf("failed to set permissions of %q: %w", created.HomeDir, err)
	}

	return nil
}

// Deprovision removes or trims accounts previously created by this tool that
// no longer appear in the roster. With deprovision_remove set the accounts
// are deleted outright; otherwise only their supplementary group memberships
// are dropped, the account and its personal group stay. Per account failures
// are audited and the pass continues.
func (e *Engine) Deprovision(ctx context.Context, records []roster.Record) error {
	keep := make(map[string]bool)
	for _, rec := range records {
		keep[rec.Username] = true
	}

	provisioned, err := accounts.ListProvisionedUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list provisioned users: %w", err)
	}

	for _, username := range provisioned {
		if keep[username] {
			continue
		}

		u, err := accounts.FindUser(ctx, username)
		if err != nil {
			e.auditf("Failed to look up user %s for deprovisioning: %v", username, err)
			continue
		}

		if cfg.Retrieve().Accounts.DeprovisionRemove {
			if err := accounts.DelUser(ctx, u); err != nil {
				e.auditf("Failed to remove user %s: %v", username, err)
				continue
			}
			e.auditf("User %s removed", username)
			continue
		}

		if err := e.trimMemberships(ctx, u); err != nil {
			e.auditf("Failed to trim group memberships of user %s: %v", username, err)
		}
	}

	return nil
}

// trimMemberships removes the user from every supplementary group. The
// personal group and the primary membership stay.
func (e *Engine) trimMemberships(ctx context.Context, u *accounts.User) error {
	groups, err := accounts.ListUserGroups(ctx, u.Username)
	if err != nil {
		return err
	}

	for _, groupName := range groups {
		if groupName == u.Username {
			continue
		}
		if err := accounts.RemoveUserFromGroup(ctx, u, &accounts.Group{Name: groupName}); err != nil {
			e.auditf("Failed to remove user %s from group %s: %v", u.Username, groupName, err)
			continue
		}
		e.auditf("Removed user %s from group %s", u.Username, groupName)
	}

	return nil
}

// auditf writes one audit log entry. The audit log never blocks provisioning,
// write failures are reported through the diagnostics log only.
func (e *Engine) auditf(format string, args ...any) {
	if err := e.audit.Logf(format, args...); err != nil {
		galog.Errorf("Failed to write audit log entry: %v", err)
	}
}
