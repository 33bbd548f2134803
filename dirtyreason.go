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

import "fmt"

// DirtyReasonKind enumerates the structured reasons a fingerprint comparison
// can report (spec §4.5). The zero value is ReasonRustcChanged. A dirty
// verdict with no prior record to compare against has no kind of its own:
// PrepareTarget surfaces it as a nil *DirtyReason.
type DirtyReasonKind int

const (
	ReasonRustcChanged DirtyReasonKind = iota
	ReasonFeaturesChanged
	ReasonTargetConfigurationChanged
	ReasonPathToSourceChanged
	ReasonProfileConfigurationChanged
	ReasonRustflagsChanged
	ReasonMetadataChanged
	ReasonConfigSettingsChanged
	ReasonCompileKindChanged
	ReasonLocalLengthsChanged
	ReasonLocalFingerprintTypeChanged
	ReasonPrecalculatedComponentsChanged
	ReasonDepInfoOutputChanged
	ReasonRerunIfChangedOutputFileChanged
	ReasonRerunIfChangedOutputPathsChanged
	ReasonEnvVarsChanged
	ReasonEnvVarChanged
	ReasonNumberOfDependenciesChanged
	ReasonUnitDependencyNameChanged
	ReasonUnitDependencyInfoChanged
	ReasonFsStatusOutdated
	ReasonForced
	ReasonNothingObvious
)

func (k DirtyReasonKind) String() string {
	names := [...]string{
		"RustcChanged", "FeaturesChanged", "TargetConfigurationChanged",
		"PathToSourceChanged", "ProfileConfigurationChanged", "RustflagsChanged",
		"MetadataChanged", "ConfigSettingsChanged", "CompileKindChanged",
		"LocalLengthsChanged", "LocalFingerprintTypeChanged",
		"PrecalculatedComponentsChanged", "DepInfoOutputChanged",
		"RerunIfChangedOutputFileChanged", "RerunIfChangedOutputPathsChanged",
		"EnvVarsChanged", "EnvVarChanged", "NumberOfDependenciesChanged",
		"UnitDependencyNameChanged", "UnitDependencyInfoChanged",
		"FsStatusOutdated", "Forced", "NothingObvious",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// DirtyReason is the structured explanation for a dirty verdict (spec §4.5).
// Only the fields relevant to Kind are populated.
type DirtyReason struct {
	Kind DirtyReasonKind

	OldStr, NewStr         string
	OldHash, NewHash       uint64
	Name, OldName, NewName string
	EnvVar                 string

	FsStatus FsStatus
}

func (r *DirtyReason) String() string {
	switch r.Kind {
	case ReasonFeaturesChanged, ReasonRustflagsChanged, ReasonPrecalculatedComponentsChanged,
		ReasonDepInfoOutputChanged, ReasonRerunIfChangedOutputFileChanged,
		ReasonRerunIfChangedOutputPathsChanged, ReasonEnvVarsChanged,
		ReasonLocalFingerprintTypeChanged:
		return fmt.Sprintf("%s{old:%q, new:%q}", r.Kind, r.OldStr, r.NewStr)
	case ReasonEnvVarChanged:
		return fmt.Sprintf("%s{name:%q, old:%q, new:%q}", r.Kind, r.EnvVar, r.OldStr, r.NewStr)
	case ReasonUnitDependencyNameChanged:
		return fmt.Sprintf("%s{old:%q, new:%q}", r.Kind, r.OldName, r.NewName)
	case ReasonUnitDependencyInfoChanged:
		return fmt.Sprintf("%s{new_name:%q, new_hash:%x, old_name:%q, old_hash:%x}",
			r.Kind, r.NewName, r.NewHash, r.OldName, r.OldHash)
	case ReasonFsStatusOutdated:
		return fmt.Sprintf("%s(%v)", r.Kind, r.FsStatus.Kind)
	default:
		return r.Kind.String()
	}
}

// compareFingerprints implements the comparison half of spec §4.8: given the
// freshly computed Fingerprint and the Fingerprint reconstructed from the
// on-disk JSON sidecar, find the first difference and return it as a
// DirtyReason. Fields are compared in the declaration order of
// DirtyReasonKind: rustc, features, target, path, profile, rustflags,
// metadata, config, compile kind, the local list, the deps, and finally
// fs_status. It never returns nil: when no field differs it returns
// ReasonNothingObvious (the caller is expected to have already ruled out
// "fresh" via the hash/fs_status short-circuit in compareOnDisk before
// reaching here).
func compareFingerprints(newF, oldF *Fingerprint) *DirtyReason {
	if newF.Rustc != oldF.Rustc {
		return &DirtyReason{Kind: ReasonRustcChanged}
	}
	if newF.Features != oldF.Features {
		return &DirtyReason{Kind: ReasonFeaturesChanged, OldStr: oldF.Features, NewStr: newF.Features}
	}
	if newF.Target != oldF.Target {
		return &DirtyReason{Kind: ReasonTargetConfigurationChanged}
	}
	if newF.Path != oldF.Path {
		return &DirtyReason{Kind: ReasonPathToSourceChanged}
	}
	if newF.Profile != oldF.Profile {
		return &DirtyReason{Kind: ReasonProfileConfigurationChanged}
	}
	if !stringsEqual(newF.Rustflags, oldF.Rustflags) {
		return &DirtyReason{
			Kind:   ReasonRustflagsChanged,
			OldStr: fmt.Sprint(oldF.Rustflags),
			NewStr: fmt.Sprint(newF.Rustflags),
		}
	}
	if newF.Metadata != oldF.Metadata {
		return &DirtyReason{Kind: ReasonMetadataChanged}
	}
	if newF.Config != oldF.Config {
		return &DirtyReason{Kind: ReasonConfigSettingsChanged}
	}
	if newF.CompileKind != oldF.CompileKind {
		return &DirtyReason{Kind: ReasonCompileKindChanged}
	}

	if len(newF.local) != len(oldF.local) {
		return &DirtyReason{Kind: ReasonLocalLengthsChanged}
	}
	for i := range newF.local {
		if r := compareLocal(&newF.local[i], &oldF.local[i]); r != nil {
			return r
		}
	}

	if len(newF.Deps) != len(oldF.Deps) {
		return &DirtyReason{Kind: ReasonNumberOfDependenciesChanged}
	}
	for i := range newF.Deps {
		nd, od := &newF.Deps[i], &oldF.Deps[i]
		if nd.Name != od.Name {
			return &DirtyReason{Kind: ReasonUnitDependencyNameChanged, OldName: od.Name, NewName: nd.Name}
		}
		if nd.Hash() != od.Hash() {
			return &DirtyReason{
				Kind:    ReasonUnitDependencyInfoChanged,
				NewName: nd.Name, NewHash: nd.Hash(),
				OldName: od.Name, OldHash: od.Hash(),
			}
		}
	}

	if !newF.FsStatus.UpToDate() {
		return &DirtyReason{Kind: ReasonFsStatusOutdated, FsStatus: newF.FsStatus}
	}

	return &DirtyReason{Kind: ReasonNothingObvious}
}

func compareLocal(a, b *LocalFingerprint) *DirtyReason {
	if a.Kind != b.Kind {
		return &DirtyReason{Kind: ReasonLocalFingerprintTypeChanged, OldStr: b.Kind.String(), NewStr: a.Kind.String()}
	}
	switch a.Kind {
	case LocalPrecalculated:
		if a.Precalculated != b.Precalculated {
			return &DirtyReason{Kind: ReasonPrecalculatedComponentsChanged, OldStr: b.Precalculated, NewStr: a.Precalculated}
		}
	case LocalCheckDepInfo:
		if a.DepInfoPath != b.DepInfoPath {
			return &DirtyReason{Kind: ReasonDepInfoOutputChanged, OldStr: b.DepInfoPath, NewStr: a.DepInfoPath}
		}
	case LocalRerunIfChanged:
		if a.Output != b.Output {
			return &DirtyReason{Kind: ReasonRerunIfChangedOutputFileChanged, OldStr: b.Output, NewStr: a.Output}
		}
		if !stringsEqual(a.Paths, b.Paths) {
			return &DirtyReason{
				Kind:   ReasonRerunIfChangedOutputPathsChanged,
				OldStr: fmt.Sprint(b.Paths),
				NewStr: fmt.Sprint(a.Paths),
			}
		}
	case LocalRerunIfEnvChanged:
		if a.EnvVar != b.EnvVar {
			return &DirtyReason{Kind: ReasonEnvVarsChanged, OldStr: b.EnvVar, NewStr: a.EnvVar}
		}
		if a.EnvValue != b.EnvValue {
			return &DirtyReason{Kind: ReasonEnvVarChanged, EnvVar: a.EnvVar, OldStr: b.EnvValue, NewStr: a.EnvValue}
		}
	}
	return nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
