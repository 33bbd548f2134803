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
	"path/filepath"
	"strings"
	"time"
)

// checkFilesystem runs the filesystem check of spec §4.4 against f and
// writes the result into f.FsStatus. pkgRoot and targetRoot anchor relative
// paths; launcher and env feed LocalFingerprint.staleItem for CheckDepInfo
// entries.
func checkFilesystem(f *Fingerprint, mc *mtimeCache, pkgRoot, targetRoot string, launcher staleEnvConfig, env EnvLookup) error {
	f.FsStatus = FsStatus{Kind: FsStale}

	if len(f.Outputs) == 0 {
		f.FsStatus = FsStatus{Kind: FsUpToDate, Mtimes: map[string]time.Time{}}
		return nil
	}

	mtimes := make(map[string]time.Time, len(f.Outputs))
	var maxOutputMtime time.Time
	for _, out := range f.Outputs {
		abs := filepath.Join(targetRoot, out)
		t, err := mc.mtime(abs)
		if err != nil {
			return nil // leaves fs_status == Stale, per spec step 1
		}
		mtimes[out] = t
		if t.After(maxOutputMtime) {
			maxOutputMtime = t
		}
	}

	for i := range f.Deps {
		d := &f.Deps[i]
		if d.Dep == nil {
			continue // a shell reconstructed from disk carries no live fs_status
		}
		depStatus := d.Dep.FsStatus
		if !depStatus.UpToDate() {
			f.FsStatus = FsStatus{Kind: FsStaleDepFingerprint, DepName: d.Name}
			return nil
		}
		depMtime, ok := representativeOutputMtime(depStatus, d.OnlyRequiresRmeta)
		if !ok {
			continue
		}
		if depMtime.After(maxOutputMtime) {
			f.FsStatus = FsStatus{
				Kind:     FsStaleDependency,
				DepName:  d.Name,
				DepMtime: depMtime,
				MaxMtime: maxOutputMtime,
			}
			return nil
		}
	}

	for _, local := range f.Local() {
		l := local
		item, err := l.staleItem(mc, pkgRoot, targetRoot, launcher, env)
		if err != nil {
			return err
		}
		if item != nil {
			f.FsStatus = FsStatus{Kind: FsStaleItem, Item: item}
			return nil
		}
	}

	f.FsStatus = FsStatus{Kind: FsUpToDate, Mtimes: mtimes}
	return nil
}

// representativeOutputMtime picks the mtime a dependent compares its own
// outputs against, per spec §4.4 step 4: the unique rmeta output when the
// edge only requires rmeta, otherwise the newest of all outputs.
func representativeOutputMtime(status FsStatus, onlyRequiresRmeta bool) (time.Time, bool) {
	if len(status.Mtimes) == 0 {
		return time.Time{}, false
	}
	if onlyRequiresRmeta {
		for path, t := range status.Mtimes {
			if strings.EqualFold(filepath.Ext(path), ".rmeta") {
				return t, true
			}
		}
		return time.Time{}, false
	}
	var newest time.Time
	for _, t := range status.Mtimes {
		if t.After(newest) {
			newest = t
		}
	}
	return newest, true
}
