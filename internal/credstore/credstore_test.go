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

package credstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAppend(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "secure", "user_passwords.csv")
	store := New(fpath, 0600, nil)

	if err := store.Append("light", "Ab12Cd34Ef56Gh78"); err != nil {
		t.Fatalf("Append() = %v, want nil", err)
	}
	if err := store.Append("yagami", "Zz98Yy76Xx54Ww32"); err != nil {
		t.Fatalf("Append() = %v, want nil", err)
	}

	contents, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}

	want := []string{
		"username,password",
		"light,Ab12Cd34Ef56Gh78",
		"yagami,Zz98Yy76Xx54Ww32",
		"",
	}
	if diff := cmp.Diff(want, strings.Split(string(contents), "\n")); diff != "" {
		t.Errorf("Append() wrote an unexpected diff (-want +got):\n%v", diff)
	}
}

func TestAppendEnforcesMode(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "user_passwords.csv")

	// Simulate a store file left behind with looser permissions.
	if err := os.WriteFile(fpath, []byte("username,password\n"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) failed: %v", fpath, err)
	}

	store := New(fpath, 0600, nil)
	if err := store.Append("light", "Ab12Cd34Ef56Gh78"); err != nil {
		t.Fatalf("Append() = %v, want nil", err)
	}

	stat, err := os.Stat(fpath)
	if err != nil {
		t.Fatalf("os.Stat(%q) failed: %v", fpath, err)
	}
	if stat.Mode().Perm() != 0600 {
		t.Errorf("Append() left %q with mode %v, want 0600", fpath, stat.Mode().Perm())
	}

	contents, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}
	if strings.Count(string(contents), "username,password") != 1 {
		t.Errorf("Append() duplicated the header in %q:\n%s", fpath, string(contents))
	}
}
