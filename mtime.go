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
	"io/fs"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// diskStat is the filesystem facade the mtime cache reads through, so a fake
// can stand in for the real filesystem; this package's tests use realDisk.
type diskStat interface {
	Stat(path string) (os.FileInfo, error)
	WalkDir(root string, fn fs.WalkDirFunc) error
}

type realDisk struct{}

func (realDisk) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }
func (realDisk) WalkDir(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}

// mtimeCache amortizes mtime syscalls across a single build invocation (spec
// §4.2, §3.7 "the in-process mtime cache lives for one build invocation").
// It is an LRU rather than an unbounded map so a long-running build
// coordinator juggling thousands of units across many invocations cannot
// grow it without bound; ordinary builds never evict.
type mtimeCache struct {
	disk          diskStat
	cache         *lru.Cache[string, time.Time]
	immutableDirs []string
}

func newMtimeCache(disk diskStat, immutableDirs []string, size int) *mtimeCache {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, time.Time](size)
	return &mtimeCache{disk: disk, cache: c, immutableDirs: immutableDirs}
}

// isImmutable reports whether path falls under one of the configured
// immutable directories (spec §4.2 step 3): the shared registry cache and
// cloned-repo cache whose mtimes drift under CI caching without content
// changes.
func (mc *mtimeCache) isImmutable(path string) bool {
	for _, dir := range mc.immutableDirs {
		if isUnderRoot(path, dir) {
			return true
		}
	}
	return false
}

// mtime returns path's mtime, using the recursive newest-mtime of a
// directory's contents when path is a directory (spec §4.2 step 4).
func (mc *mtimeCache) mtime(path string) (time.Time, error) {
	if t, ok := mc.cache.Get(path); ok {
		return t, nil
	}
	fi, err := mc.disk.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	t := fi.ModTime()
	if fi.IsDir() {
		t, err = mc.recursiveNewest(path)
		if err != nil {
			return time.Time{}, err
		}
	}
	mc.cache.Add(path, t)
	return t, nil
}

func (mc *mtimeCache) recursiveNewest(root string) (time.Time, error) {
	var newest time.Time
	err := mc.disk.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newest, nil
}

// staleVs implements the mtime probe of spec §4.2: reads reference's mtime,
// then compares each candidate strictly against it (equality is not stale —
// the reference mtime is deliberately rewound to the start-of-build instant,
// so any file genuinely modified during the build has a strictly greater
// mtime; see persist.go's sentinel rewind and spec §4.2 step 5's rationale).
// Candidates under an immutable directory are skipped entirely.
func (mc *mtimeCache) staleVs(reference string, candidates []string) (*StaleItem, error) {
	refT, err := mc.mtime(reference)
	if err != nil {
		return &StaleItem{Kind: StaleMissingFile, Path: reference}, nil
	}
	for _, c := range candidates {
		if mc.isImmutable(c) {
			continue
		}
		ct, err := mc.mtime(c)
		if err != nil {
			return &StaleItem{Kind: StaleMissingFile, Path: c}, nil
		}
		if ct.After(refT) {
			return &StaleItem{Kind: StaleChangedFile, Path: c}, nil
		}
	}
	return nil, nil
}

