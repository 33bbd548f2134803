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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ComputeFingerprint builds the scalar, dep, and local portions of a unit's
// Fingerprint. The host orchestrator supplies this; the engine only knows
// how to hash, compare, and persist the result. Implementations read the
// manifest and invoke the Hash* helpers in fields.go.
type ComputeFingerprint interface {
	Compute(unit UnitKey, deps []DepFingerprint) (FingerprintInputs, []LocalFingerprint, []string, error)
}

// Context is the per-build fingerprint engine state (spec §4.6): the
// fingerprint memoization map, the shared mtime cache, and references to the
// external collaborators. It is not safe for concurrent preparation calls
// (spec §5 "preparation runs serially on the main thread"); the closures it
// returns are safe for concurrent invocation from worker goroutines.
type Context struct {
	mu           sync.Mutex
	fingerprints map[UnitKey]*Fingerprint

	mtimeCache *mtimeCache
	graph      UnitGraph
	compute    ComputeFingerprint
	source     PackageSource
	summarizer PackageSummarizer
	env        EnvLookup
	opts       Options
	profile    string
	pkgRoot    string
	targetRoot string
	launcher   staleEnvConfig

	log zerolog.Logger
}

// NewContext constructs a Context for a single build invocation. runID, if
// empty, is generated fresh so every log line from this invocation can be
// correlated even across worker goroutines.
func NewContext(graph UnitGraph, compute ComputeFingerprint, source PackageSource, opts Options, pkgRoot, targetRoot, profile string, log zerolog.Logger, runID string) *Context {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Context{
		fingerprints: make(map[UnitKey]*Fingerprint),
		mtimeCache:   newMtimeCache(realDisk{}, opts.ImmutableDirs, 4096),
		graph:        graph,
		compute:      compute,
		source:       source,
		summarizer:   noopSummarizer{},
		env:          osEnv{},
		opts:         opts,
		profile:      profile,
		pkgRoot:      pkgRoot,
		targetRoot:   targetRoot,
		launcher:     staleEnvConfig{launcherVar: opts.LauncherEnvVar, launcherPath: opts.LauncherPath},
		log:          log.With().Str("run_id", runID).Logger(),
	}
}

// SetEnvLookup overrides the environment lookup used for staleness checks;
// primarily a testing seam.
func (c *Context) SetEnvLookup(env EnvLookup) { c.env = env }

// SetPackageSummarizer overrides the collaborator used to classify legacy
// (no rerun-if directives) build scripts (spec §4.7 phase 1). Hosts whose
// package source can report a registry version or VCS commit should install
// one; the default never recognizes a script as unchanged across runs.
func (c *Context) SetPackageSummarizer(s PackageSummarizer) { c.summarizer = s }

// noopSummarizer is the default PackageSummarizer: every call reports a
// distinct, non-repeating summary, so an un-configured host's legacy build
// scripts are conservatively always re-run rather than silently reused.
type noopSummarizer struct{}

func (noopSummarizer) SummarizePackage(pkgID string) (string, error) {
	return uuid.NewString(), nil
}

// Closure is returned by PrepareTarget. Finish must be called exactly once,
// after the scheduler has either run the compiler (ok == true) or abandoned
// the unit (ok == false, in which case Finish is a no-op per spec §5
// "dropping leaves on-disk state inconsistent ... that is the correct
// state").
type Closure struct {
	unit     UnitKey
	paths    unitPaths
	f        *Fingerprint
	isScript bool

	scriptPkgID      string
	scriptOutputFile string
	scriptPkgRoot    string
	scriptSummarizer PackageSummarizer
}

// DepInfoPath returns the path under this unit's fingerprint directory where
// its binary dep-info record named name should be written (spec §6.1's
// "dep-<…>" file).
func (c *Closure) DepInfoPath(name string) string { return c.paths.depInfoFile(name) }

// Finish runs the post-compile half of spec §4.6 step 6. For a build-script
// execution unit it first re-evaluates local from the freshly written
// build-script output (phase 2 of spec §4.7); for every unit it then writes
// the hash and JSON sidecar and rewinds the dep-info file's mtime to the
// build's start-of-build sentinel.
func (c *Closure) Finish(ok bool, newOutput *BuildScriptOutput, depInfoPath string, now time.Time) error {
	if !ok {
		return nil
	}
	if c.isScript && newOutput != nil {
		fresh, changed, err := reevaluateBuildScript(c.scriptPkgID, newOutput, c.scriptOutputFile, c.scriptPkgRoot, c.scriptSummarizer, c.f.Local())
		if err != nil {
			return err
		}
		if changed {
			c.f.SetLocal(fresh)
		}
	}
	if err := finalize(c.paths, c.f); err != nil {
		return err
	}
	if depInfoPath != "" {
		if err := rewindDepInfoMtime(c.paths, depInfoPath); err != nil {
			return err
		}
	}
	return nil
}

// PrepareTarget implements spec §4.6: compute or fetch the unit's memoized
// fingerprint, compare it against the on-disk record, and if dirty, truncate
// the hash file and return a closure for the caller to invoke post-compile.
// A nil *DirtyReason is returned both for a fresh unit and for a dirty unit
// whose previous record is missing, corrupt or unreadable (dirty with no
// reason); the return values do not tell these two cases apart. The Closure
// is non-nil on success, and its Finish rewrites the hash file and JSON
// sidecar whether or not the unit was fresh.
func (c *Context) PrepareTarget(unit UnitKey, force bool) (*DirtyReason, *Closure, error) {
	if c.graph.IsDocTest(unit) {
		return nil, nil, fmt.Errorf("fprint: unit %+v is a doc test and must never be fingerprinted", unit)
	}

	f, err := c.fingerprintFor(unit)
	if err != nil {
		return nil, nil, err
	}

	unitDirname := unitDirnameFor(unit)
	paths := newUnitPaths(c.targetRoot, c.profile, unitDirname)

	if err := checkFilesystem(f, c.mtimeCache, c.pkgRoot, c.targetRoot, c.launcher, c.env); err != nil {
		c.log.Warn().Err(err).Str("unit", unitDirname).Msg("filesystem check failed")
	}

	reason, cmpErr := c.compareOnDisk(paths, f)
	isScript := c.graph.IsBuildScriptExecution(unit)
	closure := &Closure{unit: unit, paths: paths, f: f, isScript: isScript}
	if isScript {
		closure.scriptPkgID = unit.PkgID
		closure.scriptPkgRoot = c.pkgRoot
		closure.scriptOutputFile = filepath.Join(paths.dir, "output")
		closure.scriptSummarizer = c.summarizer
	}

	if cmpErr != nil {
		c.log.Debug().Err(cmpErr).Str("unit", unitDirname).Msg("comparison I/O error, treating as dirty")
		reason = nil
	} else if reason == nil {
		if force {
			forced := &DirtyReason{Kind: ReasonForced}
			c.log.Info().Str("unit", unitDirname).Str("reason", forced.String()).Msg("unit forced dirty")
			if err := c.markDirty(unit, paths); err != nil {
				return nil, nil, err
			}
			return forced, closure, nil
		}
		if c.opts.MtimeOnUse {
			if err := touchHashFile(paths, nowFunc()); err != nil {
				c.log.Debug().Err(err).Msg("mtime_on_use touch failed")
			}
		}
		c.log.Debug().Str("unit", unitDirname).Msg("unit fresh")
		return nil, closure, nil
	}

	c.log.Info().Str("unit", unitDirname).Str("reason", safeReasonString(reason)).Msg("unit dirty")

	if err := c.markDirty(unit, paths); err != nil {
		return nil, nil, err
	}
	return reason, closure, nil
}

// markDirty implements spec §4.6 steps 4-5: verify source integrity, then
// truncate the hash file and refresh the start-of-build sentinel before the
// scheduler is allowed to invoke the compiler.
func (c *Context) markDirty(unit UnitKey, paths unitPaths) error {
	if err := c.source.VerifyIntegrity(unit.PkgID); err != nil {
		return fmt.Errorf("fprint: source verification failed for %s: %w", unit.PkgID, err)
	}
	if err := truncateHashFile(paths); err != nil {
		return err
	}
	return writeSentinel(paths, nowFunc())
}

func safeReasonString(r *DirtyReason) string {
	if r == nil {
		return "<none>"
	}
	return r.String()
}

// compareOnDisk implements spec §4.8. A nil reason with a nil error means
// fresh; any other combination means dirty. A missing or corrupt sidecar, or
// an I/O error reading the hash file, yields a nil reason with a non-nil
// error (dirty, no reason).
func (c *Context) compareOnDisk(p unitPaths, newF *Fingerprint) (*DirtyReason, error) {
	hash, ok, err := readHashFile(p.hashFile())
	if err != nil {
		return nil, err
	}
	if ok && hash == newF.HashU64() && newF.FsStatus.UpToDate() {
		return nil, nil
	}

	oldF, err := loadPersisted(p)
	if err != nil {
		return nil, err // corrupt or missing sidecar: dirty, no reason (spec §4.8 step 3)
	}
	if ok {
		oldF.primeMemoizedHash(hash)
	}
	return compareFingerprints(newF, oldF), nil
}

// fingerprintFor returns the memoized Fingerprint for unit, computing it
// (recursively memoizing its dependencies first) if this is the first time
// this build invocation has seen it.
func (c *Context) fingerprintFor(unit UnitKey) (*Fingerprint, error) {
	c.mu.Lock()
	if f, ok := c.fingerprints[unit]; ok {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	edges := c.graph.Deps(unit)
	deps := make([]DepFingerprint, 0, len(edges))
	for _, e := range edges {
		depF, err := c.fingerprintFor(e.Dep)
		if err != nil {
			return nil, err
		}
		deps = append(deps, DepFingerprint{
			PkgID: e.Dep.PkgID, Name: e.ExternName, Public: e.Public,
			OnlyRequiresRmeta: e.OnlyRequiresRmeta, Dep: depF,
		})
	}

	inputs, locals, outputs, err := c.compute.Compute(unit, deps)
	if err != nil {
		return nil, err
	}
	f := NewFingerprint(inputs)
	f.SetDeps(deps)
	f.SetLocal(locals)
	f.Outputs = outputs

	c.mu.Lock()
	if existing, ok := c.fingerprints[unit]; ok {
		c.mu.Unlock()
		return existing, nil
	}
	c.fingerprints[unit] = f
	c.mu.Unlock()
	return f, nil
}

// unitDirnameFor derives the fingerprint directory name for a unit: its
// target name followed by a 16-hex-digit hash of its PkgID, Target, Mode and
// Features. The unit's CompileKind and Profile are not part of the name.
func unitDirnameFor(u UnitKey) string {
	return fmt.Sprintf("%s-%016x", u.Target, HashTargetDescriptor(u.PkgID, u.Target, u.Mode, u.Features, false, false, false))
}

var nowFunc = time.Now
