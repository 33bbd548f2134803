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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// unitPaths resolves the on-disk layout of spec §6.1 for a single unit:
// target/<profile>/.fingerprint/<unit-dirname>/.
type unitPaths struct {
	dir string
}

func newUnitPaths(targetRoot, profile, unitDirname string) unitPaths {
	return unitPaths{dir: filepath.Join(targetRoot, profile, ".fingerprint", unitDirname)}
}

func (p unitPaths) hashFile() string               { return filepath.Join(p.dir, "hash") }
func (p unitPaths) jsonFile() string               { return p.hashFile() + ".json" }
func (p unitPaths) depInfoFile(name string) string { return filepath.Join(p.dir, "dep-"+name) }
func (p unitPaths) sentinelFile() string           { return filepath.Join(p.dir, "invoked.timestamp") }

// persistedFingerprint is the JSON sidecar shape (spec §3.2 minus the fields
// marked not-serialized: fs_status and outputs; §4.8 step 2).
type persistedFingerprint struct {
	Rustc       uint64           `json:"rustc"`
	Features    string           `json:"features"`
	Target      uint64           `json:"target"`
	Profile     uint64           `json:"profile"`
	Path        uint64           `json:"path"`
	Rustflags   []string         `json:"rustflags"`
	Metadata    uint64           `json:"metadata"`
	Config      uint64           `json:"config"`
	CompileKind uint64           `json:"compile_kind"`
	Deps        []persistedDep   `json:"deps"`
	Local       []persistedLocal `json:"local"`
}

type persistedDep struct {
	PkgID  string `json:"pkg_id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
	Hash   string `json:"hash"`
}

type persistedLocal struct {
	Kind          string   `json:"kind"`
	Precalculated string   `json:"precalculated,omitempty"`
	DepInfoPath   string   `json:"dep_info_path,omitempty"`
	Output        string   `json:"output,omitempty"`
	Paths         []string `json:"paths,omitempty"`
	EnvVar        string   `json:"env_var,omitempty"`
	EnvValue      string   `json:"env_value,omitempty"`
}

func toPersisted(f *Fingerprint) persistedFingerprint {
	pf := persistedFingerprint{
		Rustc: f.Rustc, Features: f.Features, Target: f.Target, Profile: f.Profile,
		Path: f.Path, Rustflags: f.Rustflags, Metadata: f.Metadata, Config: f.Config,
		CompileKind: f.CompileKind,
	}
	for _, d := range f.Deps {
		pf.Deps = append(pf.Deps, persistedDep{
			PkgID: d.PkgID, Name: d.Name, Public: d.Public,
			Hash: fmt.Sprintf("%016x", d.Hash()),
		})
	}
	for _, l := range f.Local() {
		pf.Local = append(pf.Local, persistedLocal{
			Kind: l.Kind.String(), Precalculated: l.Precalculated, DepInfoPath: l.DepInfoPath,
			Output: l.Output, Paths: l.Paths, EnvVar: l.EnvVar, EnvValue: l.EnvValue,
		})
	}
	return pf
}

// fromPersisted reconstructs a Fingerprint shell from its JSON form, sharing
// the reconstruction rules of spec §3.3: each dep is rebuilt as an empty
// shell carrying only its precomputed hash.
func fromPersisted(pf persistedFingerprint) (*Fingerprint, error) {
	f := NewFingerprint(FingerprintInputs{
		Rustc: pf.Rustc, Features: pf.Features, Target: pf.Target, Profile: pf.Profile,
		Path: pf.Path, Rustflags: pf.Rustflags, Metadata: pf.Metadata, Config: pf.Config,
		CompileKind: pf.CompileKind,
	})
	deps := make([]DepFingerprint, 0, len(pf.Deps))
	for _, d := range pf.Deps {
		h, err := parseHashHex(d.Hash)
		if err != nil {
			return nil, err
		}
		deps = append(deps, NewDepFingerprintShell(d.PkgID, d.Name, d.Public, h))
	}
	f.SetDeps(deps)

	locals := make([]LocalFingerprint, 0, len(pf.Local))
	for _, l := range pf.Local {
		kind, err := localKindFromString(l.Kind)
		if err != nil {
			return nil, err
		}
		locals = append(locals, LocalFingerprint{
			Kind: kind, Precalculated: l.Precalculated, DepInfoPath: l.DepInfoPath,
			Output: l.Output, Paths: l.Paths, EnvVar: l.EnvVar, EnvValue: l.EnvValue,
		})
	}
	f.SetLocal(locals)
	return f, nil
}

func localKindFromString(s string) (LocalFingerprintKind, error) {
	switch s {
	case "precalculated":
		return LocalPrecalculated, nil
	case "check_dep_info":
		return LocalCheckDepInfo, nil
	case "rerun_if_changed":
		return LocalRerunIfChanged, nil
	case "rerun_if_env_changed":
		return LocalRerunIfEnvChanged, nil
	default:
		return 0, fmt.Errorf("fprint: unknown local fingerprint kind %q in sidecar", s)
	}
}

func parseHashHex(s string) (uint64, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("fprint: malformed dependency hash %q", s)
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// readHashFile reads the short hash file (spec §6.1): 16 lowercase hex
// ASCII bytes, or zero-length when truncated. A zero-length or missing file
// is reported via ok == false, never as an error (the caller treats it as
// "no prior record").
func readHashFile(path string) (hash uint64, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(data) == 0 {
		return 0, false, nil
	}
	if len(data) != 16 {
		return 0, false, nil
	}
	v, err := parseHashHex(string(data))
	if err != nil {
		return 0, false, nil
	}
	return v, true, nil
}

// truncateHashFile implements spec §4.6 step 5: the hash file is truncated,
// not deleted, the instant a unit is found dirty and before the compiler
// runs (invariant P6). The directory is created if this is the unit's first
// build.
func truncateHashFile(p unitPaths) error {
	if err := os.MkdirAll(p.dir, 0o777); err != nil {
		return err
	}
	f, err := os.OpenFile(p.hashFile(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	return f.Close()
}

// writeSentinel creates or refreshes the zero-byte invoked.timestamp
// sentinel (spec §6.1) so its mtime marks the start-of-build instant.
func writeSentinel(p unitPaths, now time.Time) error {
	if err := os.MkdirAll(p.dir, 0o777); err != nil {
		return err
	}
	path := p.sentinelFile()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Chtimes(path, now, now)
}

// rewindDepInfoMtime implements the back half of the sentinel protocol (spec
// §6.1, §4.2 step 5 rationale): after a successful compile, the freshly
// translated dep-info file's mtime is rewound to the sentinel's, so the next
// build's mtime probe treats only files genuinely touched during the build
// as newer than it.
func rewindDepInfoMtime(p unitPaths, depInfoPath string) error {
	sentinelInfo, err := os.Stat(p.sentinelFile())
	if err != nil {
		return err
	}
	t := sentinelInfo.ModTime()
	return os.Chtimes(depInfoPath, t, t)
}

// finalize implements the write-back half of spec §4.6 step 6: writes the
// hash file and JSON sidecar for a freshly compiled unit. Called from the
// post-compile closure, potentially on a worker goroutine distinct from the
// one that called prepareTarget.
func finalize(p unitPaths, f *Fingerprint) error {
	if err := os.MkdirAll(p.dir, 0o777); err != nil {
		return err
	}
	hash := f.HashU64()
	hexHash := fmt.Sprintf("%016x", hash)
	if err := os.WriteFile(p.hashFile(), []byte(hexHash), 0o666); err != nil {
		return err
	}
	data, err := json.Marshal(toPersisted(f))
	if err != nil {
		return err
	}
	return os.WriteFile(p.jsonFile(), data, 0o666)
}

// touchHashFile implements the mtime_on_use option (spec §6.3): after a
// successful fresh check, bump the hash file's mtime to now so an external
// LRU sweep over fingerprint directories can tell it is still live.
func touchHashFile(p unitPaths, now time.Time) error {
	return os.Chtimes(p.hashFile(), now, now)
}

// errCorruptSidecar is returned by loadPersisted when the JSON sidecar is
// missing, cannot be read, or cannot be parsed; per spec §4.8 step 3 and §7
// "Corrupt fingerprint JSON", the caller treats every such case as dirty
// with no reason.
var errCorruptSidecar = errors.New("fprint: corrupt fingerprint JSON sidecar")

// loadPersisted reads and deserializes the JSON sidecar at p.jsonFile(). A
// missing or corrupt file is reported via the second return value.
func loadPersisted(p unitPaths) (*Fingerprint, error) {
	data, err := os.ReadFile(p.jsonFile())
	if err != nil {
		return nil, errCorruptSidecar
	}
	var pf persistedFingerprint
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, errCorruptSidecar
	}
	f, err := fromPersisted(pf)
	if err != nil {
		return nil, errCorruptSidecar
	}
	return f, nil
}
