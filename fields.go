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

import "sort"

// The Hash* helpers in this file each encode one of the structured
// configuration inputs named in spec §3.2 into the 64-bit hash stored on a
// Fingerprint. They exist so a caller never hand-rolls the encoding of a
// composite field — getting the field order or a missing sort wrong would
// silently violate invariant P1 (permutation independence) or P2
// (relocatability).

// HashToolchainVersion hashes the compiler's self-reported version string
// (spec §3.2 "rustc").
func HashToolchainVersion(version string) uint64 {
	return hashString(version)
}

// HashTargetDescriptor hashes the target descriptor: name, kind, edition,
// workspace-relative source path, and the test/bench/for-host flags (spec
// §3.2 "target").
func HashTargetDescriptor(name, kind, edition, workspaceRelativeSrcPath string, isTest, isBench, forHost bool) uint64 {
	h := newHasher()
	h.writeString(name)
	h.writeString(kind)
	h.writeString(edition)
	h.writeString(workspaceRelativeSrcPath)
	h.writeBool(isTest)
	h.writeBool(isBench)
	h.writeBool(forHost)
	return h.sum()
}

// HashProfile hashes the profile name, mode, extra compiler args, LTO mode,
// and manifest-level lint configuration (spec §3.2 "profile"). extraArgs is
// hashed in the order given (compiler flag order is significant); lints is
// sorted first, since lint configuration is conceptually a set.
func HashProfile(profileName, mode string, extraArgs []string, ltoMode string, lints []string) uint64 {
	h := newHasher()
	h.writeString(profileName)
	h.writeString(mode)
	h.writeUint64(hashStrings(extraArgs))
	h.writeString(ltoMode)
	sortedLints := append([]string(nil), lints...)
	sort.Strings(sortedLints)
	h.writeUint64(hashStrings(sortedLints))
	return h.sum()
}

// HashPath hashes the workspace-relative primary source path only (spec
// §3.2 "path"). It deliberately does not incorporate the profile, target, or
// feature set — those are separate fields.
func HashPath(workspaceRelativeSrcPath string) uint64 {
	return hashString(workspaceRelativeSrcPath)
}

// HashMetadata hashes the manifest fields exposed to a compile via
// environment variables: authors, description, homepage, repository (spec
// §3.2 "metadata"). authors is hashed in declaration order, since reordering
// authors in a manifest is itself a content change a rebuild should notice.
func HashMetadata(authors []string, description, homepage, repository string) uint64 {
	h := newHasher()
	h.writeUint64(hashStrings(authors))
	h.writeString(description)
	h.writeString(homepage)
	h.writeString(repository)
	return h.sum()
}

// HashConfig hashes ambient configuration not captured elsewhere: linker
// selection, the doc-extern map (when applicable), and the list of allowed
// unstable features (spec §3.2 "config"). Both the map and the unstable
// feature list are sorted before hashing, since their configured order
// carries no meaning.
func HashConfig(linker string, docExternMap map[string]string, allowedUnstable []string) uint64 {
	h := newHasher()
	h.writeString(linker)

	keys := make([]string, 0, len(docExternMap))
	for k := range docExternMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h.writeUint64(uint64(len(keys)))
	for _, k := range keys {
		h.writeString(k)
		h.writeString(docExternMap[k])
	}

	sortedUnstable := append([]string(nil), allowedUnstable...)
	sort.Strings(sortedUnstable)
	h.writeUint64(hashStrings(sortedUnstable))
	return h.sum()
}

// HashCompileKind discriminates host vs. cross targets (spec §3.2
// "compile_kind"). It is only material when the target is a JSON spec file;
// callers building a unit for the host toolchain or a string-named target
// triple pass an empty jsonSpecFilePath, which always hashes to zero so it
// never contributes a spurious difference.
func HashCompileKind(jsonSpecFilePath string) uint64 {
	if jsonSpecFilePath == "" {
		return 0
	}
	return hashString(jsonSpecFilePath)
}
