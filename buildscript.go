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
	"fmt"
	"path/filepath"
)

// relIfUnder relativizes path against root, failing if path does not lie
// under root.
func relIfUnder(path, root string) (string, error) {
	if !isUnderRoot(path, root) {
		return "", fmt.Errorf("fprint: %q is not under %q", path, root)
	}
	return filepath.Rel(root, path)
}

// BuildScriptOutput is the parsed form of a build script's stdout capture:
// the `rerun-if-changed` and `rerun-if-env-changed` directives it printed,
// if any (spec §4.7). A script that prints neither directive is classified
// "legacy".
type BuildScriptOutput struct {
	RerunIfChanged    []string
	RerunIfEnvChanged []RustcDepInfoEnv
}

// HasRerunDirectives reports whether out contains at least one modern
// rerun-if directive.
func (out *BuildScriptOutput) HasRerunDirectives() bool {
	return out != nil && (len(out.RerunIfChanged) > 0 || len(out.RerunIfEnvChanged) > 0)
}

// PackageSummarizer produces the opaque "precalculated" string used for a
// legacy build script's local fingerprint (spec §4.7 phase 1, "chosen by the
// package source layer"): a registry version, a git commit, or the newest
// mtime across the package tree, depending on the kind of package source.
type PackageSummarizer interface {
	SummarizePackage(pkgID string) (string, error)
}

// BuildScriptOverride carries the configuration-supplied replacement for a
// build script that the host orchestrator has overridden (spec §4.7 "If the
// script is overridden").
type BuildScriptOverride struct {
	Data map[string]string
}

// classifyBuildScript implements the phase-1/phase-2 classification shared
// by both halves of spec §4.7: given the most recently known build-script
// output (nil if none yet, i.e. first build), produce the local fingerprint
// list for either the legacy or modern case.
func classifyBuildScript(pkgID string, out *BuildScriptOutput, targetRootOutputFile string, pkgRoot string, summarize PackageSummarizer) ([]LocalFingerprint, error) {
	if !out.HasRerunDirectives() {
		summary, err := summarize.SummarizePackage(pkgID)
		if err != nil {
			return nil, err
		}
		return []LocalFingerprint{{Kind: LocalPrecalculated, Precalculated: summary}}, nil
	}

	locals := make([]LocalFingerprint, 0, 1+len(out.RerunIfEnvChanged))
	locals = append(locals, LocalFingerprint{
		Kind:   LocalRerunIfChanged,
		Output: targetRootOutputFile,
		Paths:  collapseToPkgRoot(out.RerunIfChanged, pkgRoot),
	})
	for _, e := range out.RerunIfEnvChanged {
		value := ""
		if e.Value != nil {
			value = *e.Value
		}
		locals = append(locals, LocalFingerprint{Kind: LocalRerunIfEnvChanged, EnvVar: e.Var, EnvValue: value})
	}
	return locals, nil
}

// buildScriptOverrideLocal implements the final branch of spec §4.7: when
// the script is overridden, local is a single Precalculated of the stable
// hash of the override data, and the unit has no dependencies.
func buildScriptOverrideLocal(override BuildScriptOverride) LocalFingerprint {
	keys := make([]string, 0, len(override.Data))
	for k := range override.Data {
		keys = append(keys, k)
	}
	h := HashConfig("", override.Data, keys)
	return LocalFingerprint{Kind: LocalPrecalculated, Precalculated: formatHashHex(h)}
}

// collapseToPkgRoot relativizes each rerun-if-changed path against pkgRoot
// (spec §4.7 "paths collapsed relative to the package root"); a path that
// fails to relativize is kept as given.
func collapseToPkgRoot(paths []string, pkgRoot string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		rel, err := relIfUnder(p, pkgRoot)
		if err != nil {
			out[i] = p
			continue
		}
		out[i] = rel
	}
	return out
}

func formatHashHex(h uint64) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		b[i] = hexDigits[h&0xf]
		h >>= 4
	}
	return string(b)
}

// reevaluateBuildScript implements phase 2 of spec §4.7: re-run the same
// classification against the freshly produced build-script output, and
// report whether the directive set changed (in which case the caller
// overwrites the owning Fingerprint's local list via SetLocal).
func reevaluateBuildScript(pkgID string, newOut *BuildScriptOutput, targetRootOutputFile, pkgRoot string, summarize PackageSummarizer, previous []LocalFingerprint) ([]LocalFingerprint, bool, error) {
	fresh, err := classifyBuildScript(pkgID, newOut, targetRootOutputFile, pkgRoot, summarize)
	if err != nil {
		return nil, false, err
	}
	if localListsEqual(fresh, previous) {
		return previous, false, nil
	}
	return fresh, true, nil
}

func localListsEqual(a, b []LocalFingerprint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if compareLocal(&a[i], &b[i]) != nil {
			return false
		}
	}
	return true
}
