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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseRustcDepInfoBasic(t *testing.T) {
	data := []byte("# env-dep:FOO=bar\n# env-dep:BAZ\ntarget/debug/libfoo.rlib: src/lib.rs src/a\\ b.rs\n")
	di, err := ParseRustcDepInfo(data)
	require.NoError(t, err)

	require.Len(t, di.Env, 2)
	require.Equal(t, "FOO", di.Env[0].Var)
	require.NotNil(t, di.Env[0].Value)
	require.Equal(t, "bar", *di.Env[0].Value)
	require.Equal(t, "BAZ", di.Env[1].Var)
	require.Nil(t, di.Env[1].Value)

	require.Equal(t, []string{"src/lib.rs", "src/a b.rs"}, di.Files)
}

func TestParseRustcDepInfoOnlyFirstRule(t *testing.T) {
	data := []byte("a: x\nb: y\n")
	di, err := ParseRustcDepInfo(data)
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, di.Files)
}

func TestParseRustcDepInfoBadEscape(t *testing.T) {
	data := []byte("# env-dep:FOO=ba\\qr\n")
	_, err := ParseRustcDepInfo(data)
	require.Error(t, err)
}

func TestEncodedDepInfoRoundTrip(t *testing.T) {
	val := "v1"
	orig := &EncodedDepInfo{
		Files: []EncodedDepInfoFile{
			{Anchor: anchorPackageRoot, Path: "src/lib.rs"},
			{Anchor: anchorTargetRoot, Path: "deps/libfoo.rmeta"},
		},
		Envs: []EncodedDepInfoEnv{
			{Key: "K1", Present: true, Value: val},
			{Key: "K2", Present: false},
		},
	}
	decoded, err := DecodeEncodedDepInfo(orig.Encode())
	require.NoError(t, err)
	if diff := cmp.Diff(orig, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEncodedDepInfoTruncated(t *testing.T) {
	full := (&EncodedDepInfo{Files: []EncodedDepInfoFile{{Anchor: anchorTargetRoot, Path: "x"}}}).Encode()
	_, err := DecodeEncodedDepInfo(full[:len(full)-1])
	require.ErrorIs(t, err, errMalformedDepInfo)
}

func TestDecodeEncodedDepInfoBadAnchor(t *testing.T) {
	full := (&EncodedDepInfo{Files: []EncodedDepInfoFile{{Anchor: anchorTargetRoot, Path: "x"}}}).Encode()
	full[4] = 0xFF // corrupt the anchor tag byte
	_, err := DecodeEncodedDepInfo(full)
	require.ErrorIs(t, err, errMalformedDepInfo)
}

func TestTranslateDepInfoClassifiesRoots(t *testing.T) {
	rdi := &RustcDepInfo{
		Files: []string{
			"/proj/target/deps/libfoo.rmeta",
			"/proj/src/lib.rs",
			"/opt/sysroot/libstd.rlib",
		},
		Env: []RustcDepInfoEnv{
			{Var: "OUT_DIR", Value: strPtr("/proj/target/debug/build/foo/out")},
			{Var: "LAUNCHER", Value: strPtr("/usr/bin/rustc-wrapper")},
		},
	}
	opts := TranslateOptions{
		PkgRoot: "/proj", TargetRoot: "/proj/target",
		AllowPackagePaths:       true,
		HostInjectedEnvPrefixes: []string{"OUT_"},
		LauncherEnvVar:          "LAUNCHER",
		IncludeSysrootArtifacts: true,
	}
	out := TranslateDepInfo(rdi, opts)

	require.Len(t, out.Envs, 1)
	require.Equal(t, "LAUNCHER", out.Envs[0].Key)

	var sawTarget, sawPkg, sawAbs bool
	for _, f := range out.Files {
		switch {
		case f.Anchor == anchorTargetRoot && f.Path == "deps/libfoo.rmeta":
			sawTarget = true
		case f.Anchor == anchorPackageRoot && f.Path == "src/lib.rs":
			sawPkg = true
		case f.Anchor == anchorTargetRoot && f.Path == "/opt/sysroot/libstd.rlib":
			sawAbs = true
		}
	}
	require.True(t, sawTarget, "target-root file not classified correctly")
	require.True(t, sawPkg, "package-root file not classified correctly")
	require.True(t, sawAbs, "outside-root file not classified correctly")
}

func TestTranslateDepInfoDropsSysrootArtifactsByDefault(t *testing.T) {
	rdi := &RustcDepInfo{Files: []string{"/proj/target/deps/libstd.rlib"}}
	opts := TranslateOptions{PkgRoot: "/proj", TargetRoot: "/proj/target", IncludeSysrootArtifacts: false}
	out := TranslateDepInfo(rdi, opts)
	require.Empty(t, out.Files)
}

func strPtr(s string) *string { return &s }
