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

// Package roster reads the declarative account list consumed by the
// provisioning engine. The file format is line oriented, one record per line:
//
//	username ; group1,group2,...
//
// Empty lines and lines starting with '#' are ignored; whitespace around the
// separators is insignificant.
package roster

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/GoogleCloudPlatform/galog"
)

const (
	// fieldSeparator splits the username from the group list.
	fieldSeparator = ";"
	// groupSeparator splits the group list into group names.
	groupSeparator = ","
)

// Record is the parsed form of one input line.
type Record struct {
	// Username is the account name, stripped of all whitespace.
	Username string
	// Groups is the ordered supplementary group list. Duplicates are permitted
	// and inert, empty tokens are dropped.
	Groups []string
}

// Parse reads records from r. Malformed lines (missing the field separator or
// yielding an empty username) are logged and skipped, they never abort the
// scan. The returned records preserve input order.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			galog.Warnf("Skipping malformed roster line %d: %v", lineno, err)
			continue
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	return records, nil
}

// parseLine parses a single non-empty, non-comment line.
func parseLine(line string) (Record, error) {
	username, remainder, found := strings.Cut(line, fieldSeparator)
	if !found {
		return Record{}, fmt.Errorf("no %q separator in %q", fieldSeparator, line)
	}

	// All whitespace is removed from the username, not just the leading and
	// trailing runs, malformed identifiers are silently normalized rather than
	// rejected.
	username = strings.Join(strings.Fields(username), "")
	if username == "" {
		return Record{}, fmt.Errorf("empty username in %q", line)
	}

	var groups []string
	for _, g := range strings.Split(remainder, groupSeparator) {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		groups = append(groups, g)
	}

	return Record{Username: username, Groups: groups}, nil
}
