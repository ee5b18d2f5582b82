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

package accounts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/sivapidathala/UserCreation/internal/cfg"
	"github.com/sivapidathala/UserCreation/internal/run"
	"github.com/sivapidathala/UserCreation/internal/utils/file"
)

const (
	// getentNoSuchKey is the exit code returned by getent when a key is not
	// found in the database.
	//
	// Per documentation, exit code 2: "One or more supplied key could not be
	// found in the database", see the man page:
	//
	// https://man7.org/linux/man-pages/man1/getent.1.html.
	getentNoSuchKey = 2

	// provisionedUsersFileName is the name of the bookkeeping file listing the
	// accounts created by the provisioner, kept under the configured
	// provisioned_users_dir.
	provisionedUsersFileName = "provisioned_users"
)

// systemsHomeDir is the base directory for system's users home directories,
// overridden in tests.
var systemsHomeDir = "/home"

// UnixUID returns the UID of the user as an integer.
func (u *User) UnixUID() int {
	val, err := strconv.Atoi(u.UID)
	// The validity of the UID must be checked during the instantiation of
	// User objects.
	if err != nil {
		panic(fmt.Errorf("failed to convert UID to int: %v", err))
	}
	return val
}

// UnixGID returns the GID of the user as an integer.
func (u *User) UnixGID() int {
	val, err := strconv.Atoi(u.GID)
	// The validity of the GID must be checked during the instantiation of
	// User objects.
	if err != nil {
		panic(fmt.Errorf("failed to convert GID to int: %v", err))
	}
	return val
}

// ValidateUnixIDS validates the UID and GID of the user - it determines if the
// set values are valid integers.
func (u *User) ValidateUnixIDS() error {
	if _, err := strconv.Atoi(u.UID); err != nil {
		return fmt.Errorf("failed to convert UID to int: %v", err)
	}

	if _, err := strconv.Atoi(u.GID); err != nil {
		return fmt.Errorf("failed to convert GID to int: %v", err)
	}
	return nil
}

// UnixGID returns the GID of the group as an integer.
func (g *Group) UnixGID() int {
	val, err := strconv.Atoi(g.GID)
	// The validity of the GID must be checked during the instantiation of
	// Group objects.
	if err != nil {
		panic(fmt.Errorf("failed to convert GID to int: %v", err))
	}
	return val
}

// ValidateUnixGID validates the GID of the group - it determines if the
// set value is a valid integer.
func (g *Group) ValidateUnixGID() error {
	if _, err := strconv.Atoi(g.GID); err != nil {
		return fmt.Errorf("failed to convert GID to int: %v", err)
	}
	return nil
}

// FindUser gets the information of the user, returning user.UnknownUserError
// if the user does not exist on the system or the wrapped run error if the
// user list could not be obtained.
//
// Any user returned by this function is guaranteed to have a valid UID and GID
// - a call to ValidateUnixIDS() will never return an error.
func FindUser(ctx context.Context, username string) (*User, error) {
	getent, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "getent",
		Args:       []string{"passwd", username},
	})

	if err != nil {
		// No such key exit code is returned when the user does not exist.
		if err, ok := run.AsExitError(err); ok && err.ExitCode() == getentNoSuchKey {
			return nil, user.UnknownUserError(username)
		}
		return nil, fmt.Errorf("could not get user list: %w", err)
	}

	// The result of getent will contain a single entry (given we are querying a
	// single user).
	passwdEntry, err := parsePasswdEntry(getent.Output, username)
	if err != nil {
		return nil, fmt.Errorf("could not parse user %s: %w", username, err)
	}

	return passwdEntry, nil
}

// parsePasswdEntry parses /etc/passwd style input for the named user.
func parsePasswdEntry(line string, username string) (*User, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\n"))
	prefix := username + ":"

	// Validate the correctness of the entry format, it should contain the
	// username followed by a colon as a prefix (i.e. "kevin:").
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("invalid passwd entry for %q, expected prefix %q", username, prefix)
	}

	// kevin:x:1005:1006::/home/kevin:/usr/bin/zsh
	parts := strings.SplitN(line, ":", 7)
	if len(parts) < 7 {
		return nil, fmt.Errorf("invalid passwd entry for %s", username)
	}

	res := &User{
		Username: parts[0],
		Password: parts[1],
		UID:      parts[2],
		GID:      parts[3],
		Name:     parts[4],
		HomeDir:  parts[5],
		Shell:    parts[6],
	}

	if err := res.ValidateUnixIDS(); err != nil {
		return nil, err
	}

	return res, nil
}

// FindGroup gets the information of the group, returning
// user.UnknownGroupError if the group does not exist on the system. Returns
// the wrapped run error if the command failed.
//
// Any group returned by this function is guaranteed to have a valid GID - a
// call to ValidateUnixGID() will never return an error.
func FindGroup(ctx context.Context, groupName string) (*Group, error) {
	getent, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "getent",
		Args:       []string{"group", groupName},
	})

	if err != nil {
		// No such key exit code is returned when the group does not exist.
		if err, ok := run.AsExitError(err); ok && err.ExitCode() == getentNoSuchKey {
			return nil, user.UnknownGroupError(groupName)
		}
		return nil, fmt.Errorf("could not get group: %w", err)
	}

	// The result of getent will contain a single entry (given we are querying a
	// single group).
	groupEntry, err := parseGroupEntry(getent.Output, groupName)
	if err != nil {
		return nil, fmt.Errorf("could not parse group %s: %w", groupName, err)
	}

	return groupEntry, nil
}

// parseGroupEntry parses /etc/group style input for the named group.
func parseGroupEntry(line string, groupName string) (*Group, error) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\n"))
	prefix := groupName + ":"

	// Validate the correctness of the entry format, it should contain the group
	// name followed by a colon as a prefix (i.e. "staff:").
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("invalid group entry for %q, expected prefix %q", groupName, prefix)
	}

	// staff:!:1:shadow,cjf
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return nil, fmt.Errorf("invalid group entry for %s", groupName)
	}

	var members []string
	for _, m := range strings.Split(parts[3], ",") {
		if strings.TrimSpace(m) != "" {
			members = append(members, m)
		}
	}

	res := &Group{
		Name:    parts[0],
		GID:     parts[2],
		Members: members,
	}

	if err := res.ValidateUnixGID(); err != nil {
		return nil, err
	}

	return res, nil
}

// ListUserGroups returns the names of the groups the user is a member of,
// primary group included. Returns the wrapped run error if the command failed.
func ListUserGroups(ctx context.Context, username string) ([]string, error) {
	res, err := run.WithContext(ctx, run.Options{
		OutputType: run.OutputStdout,
		Name:       "id",
		Args:       []string{"-nG", username},
	})
	if err != nil {
		return nil, fmt.Errorf("could not get groups of user %s: %w", username, err)
	}
	return strings.Fields(res.Output), nil
}

// CreateUser creates a user with the given username. The account's primary
// group, home directory and shell come from the [User] - the caller must have
// ensured the primary group exists. Supplementary groups, when non-empty, are
// passed to the creation command as a single -G argument; an empty -G is
// invalid and is never passed. Returns the wrapped run error if the command
// failed.
func CreateUser(ctx context.Context, u *User, supplementary []string) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	galog.V(1).Debugf("Creating user %s", u.Username)

	cmd := cfg.Retrieve().Accounts.UserAddCmd
	if cfg.Retrieve().Accounts.ReuseHomedir {
		if uid, _, err := userHomeDirUIDAndGID(u.Username); err == nil {
			galog.V(1).Debugf("Reusing uid %d from leftover home directory of %s", uid, u.Username)
			cmd = fmt.Sprintf("%s -u %d", cmd, uid)
		}
	}
	if len(supplementary) > 0 {
		cmd = fmt.Sprintf("%s -G %s", cmd, strings.Join(supplementary, ","))
	}

	if _, err := runCommandTemplate(ctx, cmd, u, &Group{Name: u.Username}); err != nil {
		return fmt.Errorf("failed to run useradd command %s: %w", cmd, err)
	}

	if err := addToProvisionedUsers(ctx, u.Username); err != nil {
		galog.Errorf("user %s was created but not added to provisioned users: %v", u.Username, err)
	}
	galog.V(1).Debugf("Successfully created user %s", u.Username)
	return nil
}

// userHomeDirUIDAndGID returns the UID and GID of the user's home directory.
func userHomeDirUIDAndGID(uname string) (int, int, error) {
	dir, err := os.Stat(filepath.Join(systemsHomeDir, uname))
	if err != nil {
		return -1, -1, fmt.Errorf("could not stat user's(%q) directory: %w", uname, err)
	}
	stat, ok := dir.Sys().(*syscall.Stat_t)
	if !ok {
		return -1, -1, fmt.Errorf("could not get stat_t for %s", dir.Name())
	}
	return int(stat.Uid), int(stat.Gid), nil
}

// CreateGroup creates a group with the given group name. Returns the wrapped
// run error if the command failed.
func CreateGroup(ctx context.Context, groupName string) error {
	galog.V(1).Debugf("Creating group %s", groupName)
	cmd := cfg.Retrieve().Accounts.GroupAddCmd
	if _, err := runCommandTemplate(ctx, cmd, nil, &Group{Name: groupName}); err != nil {
		return fmt.Errorf("failed to run group add command %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully created group %s", groupName)
	return nil
}

// AddUserToGroup adds the user to the named group. Membership updates are
// additive only, the user is never removed from groups not named here.
// Returns the wrapped run error if the command failed.
func AddUserToGroup(ctx context.Context, u *User, g *Group) error {
	if u == nil && g == nil {
		return fmt.Errorf("user and group are nil")
	}
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	if g == nil {
		return fmt.Errorf("group is nil")
	}

	galog.V(1).Debugf("Adding user %s to group %s", u.Username, g.Name)
	cmd := cfg.Retrieve().Accounts.GPasswdAddCmd
	if _, err := runCommandTemplate(ctx, cmd, u, g); err != nil {
		return fmt.Errorf("failed to run gpasswd add command %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully added user %s to group %s", u.Username, g.Name)
	return nil
}

// RemoveUserFromGroup removes the user from the named group. Returns the run
// error if the command failed.
func RemoveUserFromGroup(ctx context.Context, u *User, g *Group) error {
	if u == nil && g == nil {
		return fmt.Errorf("user and group are nil")
	}
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	if g == nil {
		return fmt.Errorf("group is nil")
	}

	galog.V(1).Debugf("Removing user %s from group %s", u.Username, g.Name)
	cmd := cfg.Retrieve().Accounts.GPasswdRemoveCmd
	if _, err := runCommandTemplate(ctx, cmd, u, g); err != nil {
		return fmt.Errorf("failed to run gpasswd remove command %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Successfully removed user %s from group %s", u.Username, g.Name)
	return nil
}

// DelUser removes the user from the OS. Returns the wrapped run error if the
// command failed.
func DelUser(ctx context.Context, u *User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}

	galog.V(1).Debugf("Deleting user %s", u.Username)
	cmd := cfg.Retrieve().Accounts.UserDelCmd
	if _, err := runCommandTemplate(ctx, cmd, u, nil); err != nil {
		return fmt.Errorf("failed to run userdel command %s: %w", cmd, err)
	}
	galog.V(1).Debugf("Attempting to remove user %s from provisioned users file", u.Username)
	if err := removeFromProvisionedUsers(ctx, u.Username); err != nil {
		return err
	}
	galog.V(1).Debugf("Successfully deleted user %s", u.Username)
	return nil
}

// SetPassword applies the given cleartext password to the user's account via
// the configured setpasswd command. The default configuration pipes a
// "user:password" line to chpasswd's stdin; the password value is never
// logged.
func SetPassword(ctx context.Context, u *User, password string) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	if password == "" {
		return fmt.Errorf("password is empty")
	}

	galog.V(1).Debugf("Setting password for user %s", u.Username)
	cmd := cfg.Retrieve().Accounts.SetPasswdCmd
	userCopy := *u
	userCopy.Password = password
	if _, err := runCommandTemplate(ctx, cmd, &userCopy, nil); err != nil {
		// The wrapped error carries the command's stderr, which the account
		// tools do not echo secrets into.
		return fmt.Errorf("failed to run setpasswd command: %w", err)
	}
	galog.V(1).Debugf("Successfully set password for user %s", u.Username)
	return nil
}

// provisionedUsersFile returns the path of the bookkeeping file listing the
// accounts created by the provisioner.
func provisionedUsersFile() string {
	return filepath.Join(cfg.Retrieve().Accounts.ProvisionedUsersDir, provisionedUsersFileName)
}

// addToProvisionedUsers writes name to the provisioned users file if it's not
// already there. Returns wrapped os errors on failure.
func addToProvisionedUsers(ctx context.Context, username string) error {
	fpath := provisionedUsersFile()

	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return fmt.Errorf("could not create directory %s for provisioned users: %w", filepath.Dir(fpath), err)
	}

	f, err := os.OpenFile(fpath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open provisioned users file: %w", err)
	}
	defer f.Close()

	// Determine if the user is already in the file.
	bs := bufio.NewScanner(f)
	for bs.Scan() {
		if bs.Text() == username {
			return nil
		}
		if err := bs.Err(); err != nil {
			return fmt.Errorf("failed to read provisioned users data %s: %w", fpath, err)
		}
	}

	// No user found, append the user to the file.
	data := fmt.Sprintf("%s\n", username)
	n, err := f.WriteString(data)
	if err != nil {
		return fmt.Errorf("failed to append %s to %s: %w", username, fpath, err)
	}

	if n != len(data) {
		return fmt.Errorf("failed writing %s to %s, wrote %d bytes, expected %d", username, fpath, n, len(data))
	}

	return nil
}

// removeFromProvisionedUsers removes the user's entry from the provisioned
// users file.
func removeFromProvisionedUsers(ctx context.Context, username string) error {
	fpath := provisionedUsersFile()

	// If the file does not exist, we don't have to do anything - there's no
	// entry to be removed.
	if !file.Exists(fpath, file.TypeFile) {
		galog.V(2).Debugf("Provisioned users file %s does not exist, skipping.", fpath)
		return nil
	}

	contents, err := os.ReadFile(fpath)
	if err != nil {
		return fmt.Errorf("could not read provisioned users file: %w", err)
	}

	lines := strings.Split(string(contents), "\n")
	for i, line := range lines {
		if line != username {
			continue
		}

		// Write the file with all lines before the user's line and all lines
		// after the user's line.
		lines = append(lines[:i], lines[i+1:]...)
		data := []byte(strings.Join(lines, "\n"))

		if err := file.SaferWriteFile(ctx, data, fpath, file.Options{Perm: 0600}); err != nil {
			return fmt.Errorf("failed writing provisioned users file %s: %w", fpath, err)
		}

		return nil
	}

	// No need to write anything if user was not found.
	return nil
}

// ListProvisionedUsers lists accounts created by the provisioner. Returns
// wrapped os errors on failure.
func ListProvisionedUsers(ctx context.Context) ([]string, error) {
	contents, err := os.ReadFile(provisionedUsersFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read provisioned users file: %w", err)
	}

	// Make sure we are filtering out empty lines.
	list := strings.Split(string(contents), "\n")
	out := make([]string, 0, len(list))
	for _, elem := range list {
		if elem != "" {
			out = append(out, elem)
		}
	}

	return out, nil
}

// runCommandTemplate runs a templated command in the style of cfg.Accounts
// config options. A "input|cmd" form sends the templated input to the
// command's stdin. See execCommandTemplate and cfg for options.
func runCommandTemplate(ctx context.Context, cmd string, u *User, g *Group) (*run.Result, error) {
	var input string

	before, after, found := strings.Cut(cmd, "|")
	if found {
		input = execCommandTemplate(before, u, g) + "\n"
		cmd = after
	}

	cmd = execCommandTemplate(cmd, u, g)
	tokens := strings.Fields(cmd)
	if len(tokens) < 1 {
		return nil, errors.New("no command configured")
	}

	cmdopts := run.Options{
		OutputType: run.OutputCombined,
		Name:       tokens[0],
		Args:       tokens[1:],
		Input:      input,
	}

	return run.WithContext(ctx, cmdopts)
}

// execCommandTemplate replaces {user}, {group}, {home}, {shell} and
// {password} in the given string with the given user and group attributes.
func execCommandTemplate(in string, u *User, g *Group) string {
	out := in
	if u != nil {
		out = strings.Replace(out, "{user}", u.Username, 1)
		out = strings.Replace(out, "{home}", u.HomeDir, 1)
		out = strings.Replace(out, "{shell}", u.Shell, 1)
		out = strings.Replace(out, "{password}", u.Password, 1)
	}
	if g != nil {
		out = strings.Replace(out, "{group}", g.Name, 1)
	}
	return out
}
