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

// Package fprint implements an incremental rebuild-detection engine: given a
// unit graph of compilation units, it decides per unit whether previously
// produced artifacts may be reused, and produces closures that record new
// state on disk once a unit has been recompiled.
//
// The engine never invokes a compiler and never parses a build manifest; the
// unit graph, the scheduler, and the package source integrity layer are all
// external collaborators reached through the interfaces in this file and in
// unitgraph.go.
package fprint

import "os"

// Options carries the ambient configuration the host orchestrator feeds the
// engine (spec §6.3). It is read by Context and by the mtime probe; fprint
// never parses configuration files itself.
type Options struct {
	// MtimeOnUse, if set, touches a unit's hash file mtime to "now" after a
	// successful fresh check, so external cache eviction (e.g. an LRU sweep
	// over .fingerprint directories) can tell which units are still live.
	MtimeOnUse bool

	// BinaryDepDepinfo, if set, includes binary (rlib/dylib) sysroot
	// artifacts in dep-info translation, so sysroot changes propagate to
	// dependents.
	BinaryDepDepinfo bool

	// ImmutableDirs lists directory prefixes whose mtimes are never compared
	// (spec §4.2 step 3): typically a shared registry cache or cloned-repo
	// cache that changes mtime under CI caching without changing content.
	ImmutableDirs []string

	// HostInjectedEnvPrefixes lists env var name prefixes the launcher
	// injects into a compile (OUT_DIR, build-script outputs, ...); these are
	// stripped from translated dep-info (spec §4.1).
	HostInjectedEnvPrefixes []string

	// LauncherEnvVar is the single env var name that identifies the
	// launcher executable. It is the exception to HostInjectedEnvPrefixes
	// stripping: relocating the launcher must trigger a rebuild (spec §4.1,
	// §9 "Open questions" — which variable this is is ecosystem-specific and
	// is provided here rather than guessed).
	LauncherEnvVar string

	// LauncherPath is the launcher executable's current absolute path. The
	// engine compares this against the value captured in a unit's dep-info
	// the same way it would any other watched env var, rather than reading
	// LauncherEnvVar from the process environment itself, so a host that
	// exec's a wrapper under a different path than the one it advertises to
	// children is still tracked correctly.
	LauncherPath string
}

// EnvLookup resolves the current value of an environment variable. Passed in
// rather than read directly from the process environment so that tests (and
// hosts embedding the engine in a long-lived daemon with per-build env
// overrides) can control it.
type EnvLookup interface {
	Lookup(name string) (string, bool)
}

// osEnv is the EnvLookup backed by the process environment.
type osEnv struct{}

func (osEnv) Lookup(name string) (string, bool) { return os.LookupEnv(name) }

// PackageSource verifies the integrity of a unit's package sources before a
// dirty unit is allowed to recompile (spec §4.6 step 4, §7 "Source
// verification failure"). The package source layer itself — content
// checksums, registry signature verification, directory source caches — is
// out of scope for this engine (spec §1).
type PackageSource interface {
	VerifyIntegrity(pkgID string) error
}
