// Copyright 2024 The Fprint Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fprint

import "time"

// StaleItemKind discriminates the variants of StaleItem (spec §3.5 / §4.3).
type StaleItemKind int

const (
	// StaleMissingFile means a reference or candidate file could not be
	// stat'd.
	StaleMissingFile StaleItemKind = iota
	// StaleChangedFile means a candidate file's mtime is strictly newer than
	// the reference's.
	StaleChangedFile
	// StaleChangedEnv means a watched environment variable's current value
	// differs from the value captured at the last successful compile.
	StaleChangedEnv
)

func (k StaleItemKind) String() string {
	switch k {
	case StaleMissingFile:
		return "missing_file"
	case StaleChangedFile:
		return "changed_file"
	case StaleChangedEnv:
		return "changed_env"
	default:
		return "unknown"
	}
}

// StaleItem identifies the single input that made a LocalFingerprint's
// staleness check fail (spec §3.5, §4.3, B3).
type StaleItem struct {
	Kind StaleItemKind

	// Path is set for StaleMissingFile and StaleChangedFile.
	Path string

	// Var, Previous, and Current are set for StaleChangedEnv. A nil Previous
	// or Current represents "was unset".
	Var      string
	Previous *string
	Current  *string
}

// FsStatusKind discriminates the variants of FsStatus (spec §3.5).
type FsStatusKind int

const (
	// FsStale is the default: treat the unit as dirty with no further
	// detail.
	FsStale FsStatusKind = iota
	// FsStaleItem means a specific LocalFingerprint reported a StaleItem.
	FsStaleItem
	// FsStaleDependency means a dependency's representative output is newer
	// than this unit's newest output.
	FsStaleDependency
	// FsStaleDepFingerprint means a dependency is itself not up to date.
	FsStaleDepFingerprint
	// FsUpToDate means every output exists and every input is older.
	FsUpToDate
)

// FsStatus is the dynamic, non-serialized outcome of the filesystem check
// (spec §3.5, §4.4). It is recomputed every build and is never part of a
// Fingerprint's content hash (invariant I5).
type FsStatus struct {
	Kind FsStatusKind

	// Item is set when Kind == FsStaleItem.
	Item *StaleItem

	// DepName, DepMtime, and MaxMtime are set when Kind ==
	// FsStaleDependency.
	DepName            string
	DepMtime, MaxMtime time.Time

	// Mtimes maps each declared output path to its mtime. Populated only
	// when Kind == FsUpToDate, so dependents can compare against it (spec
	// §3.5 "output mtimes are exposed upward").
	Mtimes map[string]time.Time
}

// UpToDate reports whether this status represents a fresh unit (spec §4.8
// step 1).
func (s FsStatus) UpToDate() bool {
	return s.Kind == FsUpToDate
}
