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

package cfg

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestApplyTemplate(t *testing.T) {
	data := map[string]string{
		"auditLogFile":        "testfile1",
		"credentialStoreFile": "testfile2",
		"provisionedUsersDir": "testdir1",
	}

	buffer := new(strings.Builder)
	err := applyTemplate(defaultConfigTemplate, data, buffer)
	if err != nil {
		t.Fatalf("Failed to apply template: %v", err)
	}
	got := buffer.String()

	if !strings.Contains(got, fmt.Sprintf("file = %s", data["auditLogFile"])) {
		t.Errorf("Expected audit log file to be: %s, got: %s", data["auditLogFile"], got)
	}

	if !strings.Contains(got, fmt.Sprintf("file = %s", data["credentialStoreFile"])) {
		t.Errorf("Expected credential store file to be: %s, got: %s", data["credentialStoreFile"], got)
	}

	if !strings.Contains(got, fmt.Sprintf("provisioned_users_dir = %s", data["provisionedUsersDir"])) {
		t.Errorf("Expected provisioned_users_dir to be: %s, got: %s", data["provisionedUsersDir"], got)
	}
}

func TestLoad(t *testing.T) {
	if err := Load(nil); err != nil {
		t.Fatalf("Failed to load configuration: %+v", err)
	}

	cfg := Retrieve()
	if cfg.Accounts.DeprovisionRemove {
		t.Errorf("Expected Accounts.deprovision_remove to be: false, got: true")
	}

	if cfg.Provision.PasswordLength != 16 {
		t.Errorf("Expected Provision.password_length to be: 16, got: %d", cfg.Provision.PasswordLength)
	}

	if cfg.Provision.DefaultShell != "/bin/bash" {
		t.Errorf("Expected Provision.default_shell to be: /bin/bash, got: %s", cfg.Provision.DefaultShell)
	}

	if !strings.Contains(cfg.Accounts.SetPasswdCmd, "chpasswd") {
		t.Errorf("Expected Accounts.setpasswd_cmd to use chpasswd, got: %s", cfg.Accounts.SetPasswdCmd)
	}
}

func TestInvalidConfig(t *testing.T) {
	invalidConfig := `
[Section
key = value
`

	dataSources = func(extraDefaults []byte) []any {
		return []any{
			[]byte(invalidConfig),
		}
	}

	// After testing set it back to the default one.
	defer func() {
		dataSources = defaultDataSources
	}()

	if err := Load(nil); err == nil {
		t.Errorf("Load(nil) succeeded for invalid configuration, expected error")
	}
}

func TestDefaultDataSources(t *testing.T) {
	tests := []struct {
		name          string
		wantSources   int
		extraDefaults []byte
	}{
		{
			name:        "empty_extra_defaults",
			wantSources: 3,
		},
		{
			name:          "extra_defaults",
			wantSources:   4,
			extraDefaults: []byte("test_sources"),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sources := defaultDataSources(test.extraDefaults)
			if len(sources) != test.wantSources {
				t.Errorf("defaultDataSources(%s) returned %d sources, want: %d", string(test.extraDefaults), len(sources), test.wantSources)
			}
		})
	}
}

func TestGetTwice(t *testing.T) {
	if err := Load(nil); err != nil {
		t.Fatalf("Failed to load configuration: %+v", err)
	}

	firstCfg := Retrieve()
	secondCfg := Retrieve()

	if firstCfg != secondCfg {
		t.Errorf("Retrieve() should return always the same pointer, got: %p, expected: %p", secondCfg, firstCfg)
	}
}

func TestRetrieveBeforeLoad(t *testing.T) {
	hitPanic := false
	panicFc = func(args ...any) {
		hitPanic = true
	}

	// Emulate the situation when Load() is not called.
	oldInstance := instance
	instance = nil

	t.Cleanup(func() {
		instance = oldInstance
		panicFc = panicWrapper
	})

	Retrieve()
	if !hitPanic {
		t.Errorf("Retrieve() should panic if called before Load()")
	}
}

type failureWriter struct{}

func (w *failureWriter) Write(p []byte) (n int, err error) {
	return -1, errors.New("write error")
}

func TestApplyTemplateFailure(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "invalid-template",
			data: `{{.Foobar`,
		},
		{
			name: "invalid-field",
			data: `{{.Foobar}}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := applyTemplate(test.data, map[string]string{}, &failureWriter{})
			if err == nil {
				t.Errorf("applyTemplate(%s) succeeded, expected error", test.data)
			}
		})
	}
}
