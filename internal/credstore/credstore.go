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

// Package credstore implements the restricted credential store. Generated
// credentials are appended to a csv file readable only by its owner so an
// administrator can hand them out to the account holders.
package credstore

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sivapidathala/UserCreation/internal/utils/file"
)

// header is written as the first line of a newly created store file.
const header = "username,password"

// Store appends username and credential pairs to a restricted csv file.
type Store struct {
	// Path is the store file location.
	Path string
	// Mode is the file mode enforced on every append.
	Mode fs.FileMode
	// Owner is the ownership enforced on every append, no ownership is
	// enforced if nil.
	Owner *file.GUID
}

// New returns a store writing to fpath with the provided mode and owner.
func New(fpath string, mode fs.FileMode, owner *file.GUID) *Store {
	return &Store{Path: fpath, Mode: mode, Owner: owner}
}

// Append records the credential generated for username. The store file and
// its parent directory are created on first use, permissions and ownership
// are re-asserted on every call so a store file left behind with looser
// permissions is tightened before the credential is written.
func (s *Store) Append(username, credential string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("unable to create required directories for %q: %w", s.Path, err)
	}

	if !file.Exists(s.Path, file.TypeFile) {
		if err := os.WriteFile(s.Path, []byte(header+"\n"), s.Mode); err != nil {
			return fmt.Errorf("unable to create credential store %q: %w", s.Path, err)
		}
	}

	if err := os.Chmod(s.Path, s.Mode); err != nil {
		return fmt.Errorf("unable to set permissions on %q: %w", s.Path, err)
	}

	if s.Owner != nil {
		if err := os.Chown(s.Path, s.Owner.UID, s.Owner.GID); err != nil {
			return fmt.Errorf("error setting ownership of %q: %w", s.Path, err)
		}
	}

	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_APPEND, s.Mode)
	if err != nil {
		return fmt.Errorf("unable to open credential store %q: %w", s.Path, err)
	}

	if _, err := fmt.Fprintf(f, "%s,%s\n", username, credential); err != nil {
		f.Close()
		return fmt.Errorf("unable to append to credential store %q: %w", s.Path, err)
	}

	return f.Close()
}
