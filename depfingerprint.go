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

// DepFingerprint is an edge in a Fingerprint's dependency list (spec §3.3):
// a reference to one immediate dependency, carrying just enough to detect
// staleness and to hash without needing the dependency's full Fingerprint in
// memory.
type DepFingerprint struct {
	// PkgID is the package-identity hash input: the package name alone for
	// in-tree path packages, the full identity otherwise, so that renaming
	// the workspace root does not invalidate edges.
	PkgID string

	// Name is the extern-crate name this dependency is bound to.
	Name string

	// Public marks a publicly re-exported dependency edge.
	Public bool

	// OnlyRequiresRmeta marks an edge where the consumer needs only the
	// dependency's interface artifact, not its full compiled output. It is
	// an external unit-graph flag, refreshed every build, and is
	// deliberately not part of what gets serialized or hashed.
	OnlyRequiresRmeta bool

	// Dep is the live, in-memory Fingerprint of the dependency, shared via
	// the Context's memoization map. It is nil for a DepFingerprint
	// reconstructed from disk (see NewDepFingerprintShell); in that case
	// depHash carries the precomputed value instead.
	Dep *Fingerprint

	// depHash is the dependency's hash, used only when Dep == nil.
	depHash uint64
}

// Hash returns the dependency's current 64-bit hash: live if Dep is set
// (so a post-compile mutation of the dependency's local list is reflected
// immediately, per spec §4.6 "memoization is essential"), otherwise the
// precomputed value captured at deserialization.
func (d *DepFingerprint) Hash() uint64 {
	if d.Dep != nil {
		return d.Dep.HashU64()
	}
	return d.depHash
}

// NewDepFingerprintShell reconstructs a dependency edge from its serialized
// form. Per spec §3.3, "the full dependency Fingerprint is reconstructed on
// read as an empty shell whose precomputed hash is that stored value" — the
// shell is used only to compare past state, never to recompute a hash.
func NewDepFingerprintShell(pkgID, name string, public bool, depHash uint64) DepFingerprint {
	return DepFingerprint{PkgID: pkgID, Name: name, Public: public, depHash: depHash}
}
