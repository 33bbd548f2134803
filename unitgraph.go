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

// UnitKey identifies a single compilation unit (spec §3.1): a package under a
// target, a mode, a compile kind, a profile, and a feature set. The engine
// treats it as opaque beyond equality and use as a map key; the unit graph
// itself is an external collaborator.
type UnitKey struct {
	PkgID       string
	Target      string
	Mode        string
	CompileKind string
	Profile     string
	Features    string
}

// UnitGraph answers the structural questions the engine needs about the
// build's dependency graph without owning any part of it (spec §1, §3.1).
// A host orchestrator's manifest-aware graph implements this directly.
type UnitGraph interface {
	// Deps returns unit's immediate dependency edges, already known to the
	// graph's topological order: every element of the returned slice has
	// itself been prepared before unit is.
	Deps(unit UnitKey) []DependencyEdge

	// IsBuildScriptExecution reports whether unit runs a custom build script
	// rather than compiling a source target (spec §4.7).
	IsBuildScriptExecution(unit UnitKey) bool

	// IsDocTest reports whether unit is a documentation test, which the
	// engine must never be asked to fingerprint (spec §4.6 step 1).
	IsDocTest(unit UnitKey) bool
}

// DependencyEdge is one immediate dependency relationship as seen from the
// dependent's side (spec §3.1, §3.3).
type DependencyEdge struct {
	Dep               UnitKey
	ExternName        string
	Public            bool
	OnlyRequiresRmeta bool
	IsArtifactDep     bool
}
