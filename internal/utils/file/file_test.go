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

package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()
	fpath := filepath.Join(tmpDir, "data")
	if err := os.WriteFile(fpath, []byte("data"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%s) failed: %v", fpath, err)
	}

	tests := []struct {
		name  string
		fpath string
		ftype Type
		want  bool
	}{
		{
			name:  "existing_file",
			fpath: fpath,
			ftype: TypeFile,
			want:  true,
		},
		{
			name:  "existing_dir",
			fpath: tmpDir,
			ftype: TypeDir,
			want:  true,
		},
		{
			name:  "file_as_dir",
			fpath: fpath,
			ftype: TypeDir,
			want:  false,
		},
		{
			name:  "missing_file",
			fpath: filepath.Join(tmpDir, "missing"),
			ftype: TypeFile,
			want:  false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Exists(tc.fpath, tc.ftype); got != tc.want {
				t.Errorf("Exists(%q, %v) = %t, want %t", tc.fpath, tc.ftype, got, tc.want)
			}
		})
	}
}

func TestWriteFile(t *testing.T) {
	ctx := context.Background()
	fpath := filepath.Join(t.TempDir(), "subdir", "data")

	if err := WriteFile(ctx, []byte("content"), fpath, Options{Perm: 0600}); err != nil {
		t.Fatalf("WriteFile(%q) failed: %v", fpath, err)
	}

	got, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}
	if string(got) != "content" {
		t.Errorf("WriteFile(%q) wrote %q, want %q", fpath, string(got), "content")
	}

	stat, err := os.Stat(fpath)
	if err != nil {
		t.Fatalf("os.Stat(%q) failed: %v", fpath, err)
	}
	if stat.Mode().Perm() != 0600 {
		t.Errorf("WriteFile(%q) set mode %v, want 0600", fpath, stat.Mode().Perm())
	}
}

func TestSaferWriteFile(t *testing.T) {
	ctx := context.Background()
	fpath := filepath.Join(t.TempDir(), "data")

	if err := os.WriteFile(fpath, []byte("old"), 0644); err != nil {
		t.Fatalf("os.WriteFile(%q) failed: %v", fpath, err)
	}

	if err := SaferWriteFile(ctx, []byte("new"), fpath, Options{Perm: 0600}); err != nil {
		t.Fatalf("SaferWriteFile(%q) failed: %v", fpath, err)
	}

	got, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("os.ReadFile(%q) failed: %v", fpath, err)
	}
	if string(got) != "new" {
		t.Errorf("SaferWriteFile(%q) wrote %q, want %q", fpath, string(got), "new")
	}
}
