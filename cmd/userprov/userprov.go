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

// Package main is the implementation of the bulk account provisioner CLI. It
// reads a roster file and ensures the groups, accounts, home directories and
// credentials it describes exist on the system.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/GoogleCloudPlatform/galog"
	"github.com/sivapidathala/UserCreation/internal/auditlog"
	"github.com/sivapidathala/UserCreation/internal/cfg"
	"github.com/sivapidathala/UserCreation/internal/credstore"
	"github.com/sivapidathala/UserCreation/internal/logger"
	"github.com/sivapidathala/UserCreation/internal/provision"
	"github.com/sivapidathala/UserCreation/internal/roster"
	"github.com/sivapidathala/UserCreation/internal/utils/file"
	"github.com/spf13/cobra"
)

const (
	// galogShutdownTimeout is the period of time we should wait for galog to
	// shutdown.
	galogShutdownTimeout = time.Second
)

// euid is swapped out in tests.
var euid = os.Geteuid

// newRootCommand generates the root command with the [deprovision]
// subcommand.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "userprov <roster-file>",
		Short: "Bulk OS account provisioner.",
		Long: "Bulk OS account provisioner. Reads a roster file of" +
			" 'username ; group1,group2' records and ensures the described" +
			" groups, accounts, home directories and credentials exist.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), args[0])
		},
		SilenceUsage: true,
	}

	root.AddCommand(newDeprovisionCommand())

	return root
}

// newDeprovisionCommand generates the deprovision subcommand.
func newDeprovisionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deprovision <roster-file>",
		Short: "Remove accounts previously created by this tool that no longer appear in the roster.",
		Long: "Remove accounts previously created by this tool that no longer" +
			" appear in the roster. Accounts are deleted only when" +
			" deprovision_remove is set in the configuration, otherwise only" +
			" their supplementary group memberships are dropped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeprovision(cmd.Context(), args[0])
		},
		SilenceUsage: true,
	}
}

// loadRecords enforces the fatal preconditions and parses the roster file.
// Malformed lines were already skipped by the parser, an error here means no
// record was touched.
func loadRecords(rosterPath string) ([]roster.Record, error) {
	if euid() != 0 {
		return nil, fmt.Errorf("this command must be run as root")
	}

	f, err := os.Open(rosterPath)
	if err != nil {
		return nil, fmt.Errorf("could not open roster file %q: %w", rosterPath, err)
	}
	defer f.Close()

	records, err := roster.Parse(f)
	if err != nil {
		return nil, err
	}

	galog.Infof("Parsed %d records from %q", len(records), rosterPath)
	return records, nil
}

// newEngine builds the provisioning engine with the configured audit log sink
// and credential store.
func newEngine() (*provision.Engine, error) {
	config := cfg.Retrieve()

	auditMode, err := parseMode(config.AuditLog.Mode)
	if err != nil {
		return nil, fmt.Errorf("invalid audit log mode: %w", err)
	}
	storeMode, err := parseMode(config.CredentialStore.Mode)
	if err != nil {
		return nil, fmt.Errorf("invalid credential store mode: %w", err)
	}

	audit := auditlog.New(config.AuditLog.File, auditMode)
	store := credstore.New(config.CredentialStore.File, storeMode, &file.GUID{UID: 0, GID: 0})

	return provision.New(audit, store), nil
}

// parseMode parses an octal file mode configuration value.
func parseMode(value string) (fs.FileMode, error) {
	mode, err := strconv.ParseUint(value, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("could not parse %q as an octal mode: %w", value, err)
	}
	return fs.FileMode(mode), nil
}

// runApply processes the roster sequentially. Per record failures are
// reported through the audit log and never fail the command, only the fatal
// preconditions do.
func runApply(ctx context.Context, rosterPath string) error {
	records, err := loadRecords(rosterPath)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	var failed int
	for _, outcome := range engine.Apply(ctx, records) {
		if outcome.Err != nil {
			failed++
		}
	}

	galog.Infof("Provisioning pass finished, %d records processed, %d truncated", len(records), failed)
	return nil
}

// runDeprovision removes or trims accounts created by this tool that are
// absent from the roster.
func runDeprovision(ctx context.Context, rosterPath string) error {
	records, err := loadRecords(rosterPath)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	return engine.Deprovision(ctx, records)
}

func main() {
	ctx := context.Background()

	if err := cfg.Load(nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logOpts := logger.Options{
		Ident:       filepath.Base(os.Args[0]),
		LogToStderr: true,
		Level:       cfg.Retrieve().Core.LogLevel,
		Verbosity:   cfg.Retrieve().Core.LogVerbosity,
		LogFile:     cfg.Retrieve().Core.LogFile,
	}

	if err := logger.Init(ctx, logOpts); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer galog.Shutdown(galogShutdownTimeout)

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		galog.Fatalf("Failed to execute: %v", err)
	}
}
