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
	"sort"
	"sync"
)

// Fingerprint is the composite, unit-level record of everything the engine
// believes affects a unit's output (spec §3.2). The exported scalar fields
// are set once at construction and never change; Deps is set once via
// SetDeps; only the local slot mutates after construction (invariant I2),
// guarded by mu together with the memoized hash.
type Fingerprint struct {
	Rustc       uint64
	Features    string
	Target      uint64
	Profile     uint64
	Path        uint64
	Rustflags   []string
	Metadata    uint64
	Config      uint64
	CompileKind uint64

	// Deps is sorted by PkgID (invariant I3) so hashing is independent of
	// graph-traversal order.
	Deps []DepFingerprint

	// Outputs lists the files this unit produces, relative to the target
	// root. Not part of the content hash and not persisted to the JSON
	// sidecar (spec §4.8 step 2).
	Outputs []string

	// FsStatus is the dynamic result of the most recent filesystem check.
	// Not part of the content hash (invariant I5) and not persisted.
	FsStatus FsStatus

	mu           sync.Mutex
	local        []LocalFingerprint
	memoizedHash *uint64
}

// FingerprintInputs bundles the scalar, immutable inputs of a Fingerprint.
// Each field is produced by one of the Hash* helpers in fields.go, which
// encode the structured configuration spec §3.2 names for that field.
type FingerprintInputs struct {
	Rustc       uint64
	Features    string
	Target      uint64
	Profile     uint64
	Path        uint64
	Rustflags   []string
	Metadata    uint64
	Config      uint64
	CompileKind uint64
}

// NewFingerprint constructs a Fingerprint with no dependencies, no local
// fingerprints, and no outputs; callers fill those in via SetDeps, SetLocal,
// and by assigning Outputs directly (Outputs is never mutated after
// construction by this package, so no accessor is needed for invariant I2).
func NewFingerprint(in FingerprintInputs) *Fingerprint {
	return &Fingerprint{
		Rustc:       in.Rustc,
		Features:    in.Features,
		Target:      in.Target,
		Profile:     in.Profile,
		Path:        in.Path,
		Rustflags:   append([]string(nil), in.Rustflags...),
		Metadata:    in.Metadata,
		Config:      in.Config,
		CompileKind: in.CompileKind,
		FsStatus:    FsStatus{Kind: FsStale},
	}
}

// SetDeps installs the dependency edge list, sorting by PkgID to satisfy
// invariant I3, and clears the memoized hash.
func (f *Fingerprint) SetDeps(deps []DepFingerprint) {
	sorted := append([]DepFingerprint(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PkgID < sorted[j].PkgID })
	f.mu.Lock()
	f.Deps = sorted
	f.memoizedHash = nil
	f.mu.Unlock()
}

// Local returns a snapshot of the current local fingerprint list. Safe to
// call concurrently with SetLocal from a post-compile closure (spec §5).
func (f *Fingerprint) Local() []LocalFingerprint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LocalFingerprint(nil), f.local...)
}

// SetLocal replaces the local fingerprint list and clears the memoized hash
// in the same critical section (invariant I2). This is the only mutation a
// Fingerprint ever undergoes after construction, and is how a build-script
// execution unit's post-run directives reach a unit that dependents may
// already be holding a shared reference to (spec §4.7, §9).
func (f *Fingerprint) SetLocal(local []LocalFingerprint) {
	f.mu.Lock()
	f.local = append([]LocalFingerprint(nil), local...)
	f.memoizedHash = nil
	f.mu.Unlock()
}

// primeMemoizedHash sets the memoized hash directly, bypassing the normal
// compute path. Used only when materializing a Fingerprint loaded from the
// JSON sidecar, where the authoritative hash comes from the adjacent hash
// file rather than from recomputation (spec §4.8 step 2: "memoized_hash is
// populated from the loaded hash value").
func (f *Fingerprint) primeMemoizedHash(h uint64) {
	f.mu.Lock()
	f.memoizedHash = &h
	f.mu.Unlock()
}

// HashU64 returns the Fingerprint's memoized 64-bit content hash, computing
// it on first use or after any mutation of local/Deps (invariant I2). Field
// order matches the table in spec §3.2; mtimes and FsStatus never
// participate (invariant I5).
func (f *Fingerprint) HashU64() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memoizedHash != nil {
		return *f.memoizedHash
	}

	h := newHasher()
	h.writeUint64(f.Rustc)
	h.writeString(f.Features)
	h.writeUint64(f.Target)
	h.writeUint64(f.Profile)
	h.writeUint64(f.Path)
	h.writeUint64(hashStrings(f.Rustflags))
	h.writeUint64(f.Metadata)
	h.writeUint64(f.Config)
	h.writeUint64(f.CompileKind)

	h.writeUint64(uint64(len(f.Deps)))
	for i := range f.Deps {
		d := &f.Deps[i]
		h.writeString(d.PkgID)
		h.writeString(d.Name)
		h.writeBool(d.Public)
		h.writeUint64(d.Hash())
	}

	h.writeUint64(uint64(len(f.local)))
	for _, l := range f.local {
		h.writeUint64(uint64(l.Kind))
		switch l.Kind {
		case LocalPrecalculated:
			h.writeString(l.Precalculated)
		case LocalCheckDepInfo:
			h.writeString(l.DepInfoPath)
		case LocalRerunIfChanged:
			h.writeString(l.Output)
			h.writeUint64(hashStrings(l.Paths))
		case LocalRerunIfEnvChanged:
			h.writeString(l.EnvVar)
			h.writeString(l.EnvValue)
		}
	}

	sum := h.sum()
	f.memoizedHash = &sum
	return sum
}
