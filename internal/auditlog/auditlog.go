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

// Package auditlog implements the append-only provisioning action log. The
// log is world readable and must never reference credential values, generated
// secrets are recorded by the credential store only.
package auditlog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// timestampLayout is the format of the timestamp prefixing every entry.
const timestampLayout = "2006-01-02 15:04:05"

// timeNow is a reference to time.Now, overridden in unit tests.
var timeNow = time.Now

// Sink is an append-only timestamped action log.
type Sink struct {
	// Path is the log file path.
	Path string
	// Mode is the permission mode of the log file.
	Mode fs.FileMode
}

// New returns a sink appending to the given path with the given mode.
func New(path string, mode fs.FileMode) *Sink {
	return &Sink{Path: path, Mode: mode}
}

// Logf appends a timestamped entry to the log, creating the file and its
// parent directory on first use.
func (s *Sink) Logf(format string, args ...any) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("could not create audit log directory %s: %w", filepath.Dir(s.Path), err)
	}

	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, s.Mode)
	if err != nil {
		return fmt.Errorf("failed to open audit log %s: %w", s.Path, err)
	}
	defer f.Close()

	entry := fmt.Sprintf("%s %s\n", timeNow().Format(timestampLayout), fmt.Sprintf(format, args...))
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("failed to append to audit log %s: %w", s.Path, err)
	}

	return nil
}
