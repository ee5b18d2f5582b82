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

package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestQuietSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	dataFile := filepath.Join(tmpDir, "data")

	tests := []struct {
		name    string
		command string
	}{
		{
			name:    "success_grep",
			command: fmt.Sprintf("grep -R data %s", tmpDir),
		},
		{
			name:    "success_echo_no_data",
			command: "echo",
		},
	}

	if err := os.WriteFile(dataFile, []byte("random data"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%s, []byte('random data'), 0644) failed: %v", dataFile, err)
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens := strings.Split(tc.command, " ")
			opts := Options{Name: tokens[0], Args: tokens[1:], OutputType: OutputNone}
			if _, err := WithContext(context.Background(), opts); err != nil {
				t.Errorf("run.WithContext(%v) failed with error: %v, expected success.", opts, err)
			}
		})
	}
}

func TestQuietFail(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{
			name:    "fail_grep_datax",
			command: "grep -R datax /root/data",
		},
		{
			name:    "fail_cat",
			command: "cat /root/data/nonexistent",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens := strings.Split(tc.command, " ")
			opts := Options{Name: tokens[0], Args: tokens[1:], OutputType: OutputNone}
			if _, err := WithContext(context.Background(), opts); err == nil {
				t.Errorf("run.WithContext(%v) command succeed, expected failure.", opts)
			}
		})
	}
}

func TestOutputSuccess(t *testing.T) {
	tmpDir := t.TempDir()
	dataFile := filepath.Join(tmpDir, "data")

	if err := os.WriteFile(dataFile, []byte("random data"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%s, []byte('random data'), 0644) failed: %v", dataFile, err)
	}

	tests := []struct {
		name       string
		cmd        string
		input      string
		output     string
		outputType OutputType
	}{
		{
			name:       "success_echo_foobar",
			cmd:        "echo foobar",
			output:     "foobar\n",
			outputType: OutputCombined,
		},
		{
			name:       "success_echo_n_foobar",
			cmd:        "echo -n foobar",
			output:     "foobar",
			outputType: OutputStdout,
		},
		{
			name:       "success_cat_data",
			cmd:        fmt.Sprintf("cat %s", dataFile),
			output:     "random data",
			outputType: OutputStdout,
		},
		{
			name:       "success_cat_stdin",
			cmd:        "cat -",
			input:      "random data",
			output:     "random data",
			outputType: OutputStdout,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens := strings.Split(tc.cmd, " ")
			opts := Options{
				Name:       tokens[0],
				Args:       tokens[1:],
				Input:      tc.input,
				OutputType: tc.outputType,
			}
			res, err := WithContext(context.Background(), opts)
			if err != nil {
				t.Fatalf("run.WithContext(%v) failed with error: %v, expected success.", opts, err)
			}
			if diff := cmp.Diff(tc.output, res.Output); diff != "" {
				t.Errorf("run.WithContext(%v) returned unexpected output diff (-want +got):\n%s", opts, diff)
			}
		})
	}
}

func TestTimeout(t *testing.T) {
	opts := Options{
		Name:       "sleep",
		Args:       []string{"5"},
		OutputType: OutputNone,
		Timeout:    10 * time.Millisecond,
	}

	_, err := WithContext(context.Background(), opts)
	if err == nil {
		t.Fatalf("run.WithContext(%v) succeeded, expected timeout error", opts)
	}
	if _, ok := AsTimeoutError(err); !ok {
		t.Errorf("run.WithContext(%v) returned error %v, want TimeoutError", opts, err)
	}
}

func TestAsExitError(t *testing.T) {
	opts := Options{
		Name:       "grep",
		Args:       []string{"datax", "/dev/null"},
		OutputType: OutputNone,
	}

	_, err := WithContext(context.Background(), opts)
	if err == nil {
		t.Fatalf("run.WithContext(%v) succeeded, expected failure", opts)
	}

	ee, ok := AsExitError(err)
	if !ok {
		t.Fatalf("AsExitError(%v) = false, want true", err)
	}
	if ee.ExitCode() != 1 {
		t.Errorf("AsExitError(%v) returned exit code %d, want 1", err, ee.ExitCode())
	}

	var wantNil *exec.ExitError
	if got, ok := AsExitError(errors.New("not an exit error")); ok || got != wantNil {
		t.Errorf("AsExitError(non-exit error) = %v, %t, want nil, false", got, ok)
	}
}
