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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// chainGraph models three units A -> B -> C (C depends on B, B depends on A)
// as used by the first-build/source-edit/workspace-rename scenarios of spec
// §8.
type chainGraph struct {
	deps map[string][]DependencyEdge
}

func newChainGraph() *chainGraph {
	return &chainGraph{deps: map[string][]DependencyEdge{
		"A": nil,
		"B": {{Dep: key("A"), ExternName: "a", Public: true}},
		"C": {{Dep: key("B"), ExternName: "b", Public: true}},
	}}
}

func key(name string) UnitKey { return UnitKey{PkgID: name, Target: name, Mode: "build"} }

func (g *chainGraph) Deps(u UnitKey) []DependencyEdge     { return g.deps[u.PkgID] }
func (g *chainGraph) IsBuildScriptExecution(UnitKey) bool { return false }
func (g *chainGraph) IsDocTest(UnitKey) bool              { return false }

// fakeCompute synthesizes fingerprints for the chain graph. Each unit gets a
// single CheckDepInfo local naming the "dep-<name>" record that setupUnit
// writes, so source mtimes are read through that record's file list.
type fakeCompute struct {
	pkgRoot    string
	targetRoot string
	rustcVer   string
	features   map[string]string
}

func (c *fakeCompute) Compute(unit UnitKey, deps []DepFingerprint) (FingerprintInputs, []LocalFingerprint, []string, error) {
	feat := c.features[unit.PkgID]
	in := FingerprintInputs{
		Rustc:    HashToolchainVersion(c.rustcVer),
		Features: feat,
		Target:   HashTargetDescriptor(unit.PkgID, unit.Target, "2021", unit.PkgID+"/src/lib.rs", false, false, false),
		Profile:  HashProfile("dev", "build", nil, "off", nil),
		Path:     HashPath(unit.PkgID + "/src/lib.rs"),
	}
	depInfoName := "dep-" + unit.PkgID
	local := []LocalFingerprint{{Kind: LocalCheckDepInfo, DepInfoPath: depInfoName}}
	outputs := []string{"lib" + unit.PkgID + ".rlib"}
	return in, local, outputs, nil
}

func setupUnit(t *testing.T, pkgRoot, targetRoot, name string, srcMtime time.Time) {
	t.Helper()
	srcDir := filepath.Join(pkgRoot, name, "src")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	writeAt(t, filepath.Join(srcDir, "lib.rs"), srcMtime)

	require.NoError(t, os.MkdirAll(targetRoot, 0o755))
	writeAt(t, filepath.Join(targetRoot, "lib"+name+".rlib"), time.Now())

	enc := &EncodedDepInfo{Files: []EncodedDepInfoFile{
		{Anchor: anchorPackageRoot, Path: name + "/src/lib.rs"},
	}}
	depInfoPath := filepath.Join(targetRoot, "dep-"+name)
	require.NoError(t, os.WriteFile(depInfoPath, enc.Encode(), 0o644))
	require.NoError(t, os.Chtimes(depInfoPath, time.Now(), time.Now()))
}

func newTestContext(t *testing.T, pkgRoot, targetRoot string) (*Context, *chainGraph) {
	g := newChainGraph()
	comp := &fakeCompute{pkgRoot: pkgRoot, targetRoot: targetRoot, rustcVer: "1.70.0", features: map[string]string{
		"A": "[]", "B": "[]", "C": "[]",
	}}
	ctx := NewContext(g, comp, alwaysOKSource{}, Options{}, pkgRoot, targetRoot, "debug", zerolog.Nop(), "test")
	return ctx, g
}

type alwaysOKSource struct{}

func (alwaysOKSource) VerifyIntegrity(string) error { return nil }

// TestFirstBuildAllDirtyThenFresh covers scenario 1 of spec §8.
func TestFirstBuildAllDirtyThenFresh(t *testing.T) {
	dir := t.TempDir()
	pkgRoot := filepath.Join(dir, "pkg")
	targetRoot := filepath.Join(dir, "target")
	past := time.Now().Add(-time.Hour)
	setupUnit(t, pkgRoot, targetRoot, "A", past)
	setupUnit(t, pkgRoot, targetRoot, "B", past)
	setupUnit(t, pkgRoot, targetRoot, "C", past)

	ctx, _ := newTestContext(t, pkgRoot, targetRoot)

	for _, name := range []string{"A", "B", "C"} {
		reason, closure, err := ctx.PrepareTarget(key(name), false)
		require.NoError(t, err)
		require.NotNil(t, closure)
		_ = reason // first build: dirty (no prior hash file), reason is nil by convention
		require.NoError(t, closure.Finish(true, nil, "", time.Now()))
	}

	// Second round: every unit must now be fresh.
	ctx2, _ := newTestContext(t, pkgRoot, targetRoot)
	for _, name := range []string{"A", "B", "C"} {
		reason, _, err := ctx2.PrepareTarget(key(name), false)
		require.NoError(t, err)
		require.Nil(t, reason, "unit %s should be fresh on second prepare", name)
	}
}

// TestWorkspaceRenamePreservesFreshness covers scenario 5 (P2 + P4).
func TestWorkspaceRenamePreservesFreshness(t *testing.T) {
	dirA := t.TempDir()
	pkgRootA := filepath.Join(dirA, "proj", "pkg")
	targetRootA := filepath.Join(dirA, "proj", "target")
	past := time.Now().Add(-time.Hour)
	setupUnit(t, pkgRootA, targetRootA, "A", past)

	ctxA, _ := newTestContext(t, pkgRootA, targetRootA)
	_, closureA, err := ctxA.PrepareTarget(key("A"), false)
	require.NoError(t, err)
	require.NoError(t, closureA.Finish(true, nil, "", time.Now()))

	dirB := t.TempDir()
	projB := filepath.Join(dirB, "proj")
	require.NoError(t, os.Rename(filepath.Join(dirA, "proj"), projB))

	ctxB, _ := newTestContext(t, filepath.Join(projB, "pkg"), filepath.Join(projB, "target"))
	reason, _, err := ctxB.PrepareTarget(key("A"), false)
	require.NoError(t, err)
	require.Nil(t, reason, "relocated workspace must still report fresh")
}

// TestForceAlwaysDirty covers the force-dirty branch of spec §4.6 step 3.
func TestForceAlwaysDirty(t *testing.T) {
	dir := t.TempDir()
	pkgRoot := filepath.Join(dir, "pkg")
	targetRoot := filepath.Join(dir, "target")
	past := time.Now().Add(-time.Hour)
	setupUnit(t, pkgRoot, targetRoot, "A", past)

	ctx, _ := newTestContext(t, pkgRoot, targetRoot)
	_, closure, err := ctx.PrepareTarget(key("A"), false)
	require.NoError(t, err)
	require.NoError(t, closure.Finish(true, nil, "", time.Now()))

	ctx2, _ := newTestContext(t, pkgRoot, targetRoot)
	reason, _, err := ctx2.PrepareTarget(key("A"), true)
	require.NoError(t, err)
	require.NotNil(t, reason)
	require.Equal(t, ReasonForced, reason.Kind)
}

// TestFeatureFlipDirty covers scenario 3 of spec §8.
func TestFeatureFlipDirty(t *testing.T) {
	dir := t.TempDir()
	pkgRoot := filepath.Join(dir, "pkg")
	targetRoot := filepath.Join(dir, "target")
	past := time.Now().Add(-time.Hour)
	setupUnit(t, pkgRoot, targetRoot, "A", past)

	ctx, _ := newTestContext(t, pkgRoot, targetRoot)
	_, closure, err := ctx.PrepareTarget(key("A"), false)
	require.NoError(t, err)
	require.NoError(t, closure.Finish(true, nil, "", time.Now()))

	g := newChainGraph()
	comp := &fakeCompute{pkgRoot: pkgRoot, targetRoot: targetRoot, rustcVer: "1.70.0", features: map[string]string{
		"A": `["x"]`,
	}}
	ctx2 := NewContext(g, comp, alwaysOKSource{}, Options{}, pkgRoot, targetRoot, "debug", zerolog.Nop(), "test2")
	reason, _, err := ctx2.PrepareTarget(key("A"), false)
	require.NoError(t, err)
	require.NotNil(t, reason)
	require.Equal(t, ReasonFeaturesChanged, reason.Kind)
	require.Equal(t, "[]", reason.OldStr)
	require.Equal(t, `["x"]`, reason.NewStr)
}
