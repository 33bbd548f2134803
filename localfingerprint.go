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

import (
	"errors"
	"fmt"
	"path/filepath"
	"unicode/utf8"
)

// LocalFingerprintKind discriminates the four tagged variants of
// LocalFingerprint (spec §3.4).
type LocalFingerprintKind int

const (
	// LocalPrecalculated carries an arbitrary opaque string summary. It never
	// triggers a filesystem check; any change to the string rehashes the
	// fingerprint.
	LocalPrecalculated LocalFingerprintKind = iota
	// LocalCheckDepInfo carries a target-root-relative path to a binary
	// dep-info record (see depinfo.go).
	LocalCheckDepInfo
	// LocalRerunIfChanged carries a target-root-relative output anchor and a
	// list of package-root-relative watched paths.
	LocalRerunIfChanged
	// LocalRerunIfEnvChanged carries a watched environment variable name and
	// its captured value. It never triggers a filesystem check; value
	// changes propagate purely via the fingerprint hash.
	LocalRerunIfEnvChanged
)

func (k LocalFingerprintKind) String() string {
	switch k {
	case LocalPrecalculated:
		return "precalculated"
	case LocalCheckDepInfo:
		return "check_dep_info"
	case LocalRerunIfChanged:
		return "rerun_if_changed"
	case LocalRerunIfEnvChanged:
		return "rerun_if_env_changed"
	default:
		return "unknown"
	}
}

// LocalFingerprint is a single staleness source localized to one unit (spec
// §3.4). Only the fields relevant to Kind are meaningful.
type LocalFingerprint struct {
	Kind LocalFingerprintKind

	// Precalculated is used when Kind == LocalPrecalculated.
	Precalculated string

	// DepInfoPath is used when Kind == LocalCheckDepInfo. It is relative to
	// the target root.
	DepInfoPath string

	// Output is used when Kind == LocalRerunIfChanged; relative to the
	// target root.
	Output string
	// Paths is used when Kind == LocalRerunIfChanged; relative to the
	// package root.
	Paths []string

	// EnvVar and EnvValue are used when Kind == LocalRerunIfEnvChanged.
	EnvVar   string
	EnvValue string
}

// staleEnvConfig carries the configured launcher env var name and the
// launcher's current path. staleItem substitutes that path for an
// environment lookup whenever a dep-info env entry's key matches the name
// (spec §4.3, §4.1 "the singular exception").
type staleEnvConfig struct {
	launcherVar  string
	launcherPath string
}

// staleItem implements the per-variant staleness check of spec §4.3, given
// the shared mtime cache, the package and target roots, the launcher
// configuration, and a way to read the current value of an environment
// variable.
func (l *LocalFingerprint) staleItem(mc *mtimeCache, pkgRoot, targetRoot string, launcher staleEnvConfig, env EnvLookup) (*StaleItem, error) {
	switch l.Kind {
	case LocalPrecalculated, LocalRerunIfEnvChanged:
		// Never stale via filesystem; the hash carries the signal.
		return nil, nil

	case LocalCheckDepInfo:
		depInfoAbs := filepath.Join(targetRoot, l.DepInfoPath)
		di, err := LoadEncodedDepInfo(depInfoAbs)
		if err != nil {
			return nil, err
		}
		if di == nil {
			return &StaleItem{Kind: StaleMissingFile, Path: depInfoAbs}, nil
		}
		var candidates []string
		for _, f := range di.Files {
			switch f.Anchor {
			case anchorTargetRoot:
				if filepath.IsAbs(f.Path) {
					candidates = append(candidates, f.Path)
				} else {
					candidates = append(candidates, filepath.Join(targetRoot, f.Path))
				}
			case anchorPackageRoot:
				candidates = append(candidates, filepath.Join(pkgRoot, f.Path))
			}
		}
		for _, e := range di.Envs {
			var curPtr, prevPtr *string
			if launcher.launcherVar != "" && e.Key == launcher.launcherVar {
				if !utf8.ValidString(launcher.launcherPath) {
					return nil, errors.New("fprint: launcher path is not valid UTF-8")
				}
				current := launcher.launcherPath
				curPtr = &current
			} else if current, ok := env.Lookup(e.Key); ok {
				curPtr = &current
			}
			if e.Present {
				v := e.Value
				prevPtr = &v
			}
			if changedEnv(prevPtr, curPtr) {
				return &StaleItem{Kind: StaleChangedEnv, Var: e.Key, Previous: prevPtr, Current: curPtr}, nil
			}
		}
		return mc.staleVs(depInfoAbs, candidates)

	case LocalRerunIfChanged:
		reference := filepath.Join(targetRoot, l.Output)
		candidates := make([]string, len(l.Paths))
		for i, p := range l.Paths {
			candidates[i] = filepath.Join(pkgRoot, p)
		}
		return mc.staleVs(reference, candidates)

	default:
		return nil, fmt.Errorf("fprint: unknown LocalFingerprint kind %d", l.Kind)
	}
}

func changedEnv(previous, current *string) bool {
	if (previous == nil) != (current == nil) {
		return true
	}
	if previous == nil {
		return false
	}
	return *previous != *current
}
