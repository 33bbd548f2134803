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
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// hasher accumulates a content hash using the fixed-seed 64-bit xxhash
// algorithm (spec §9: "a stable, fast, collision-resistant-for-non-adversarial
// inputs 64-bit hasher with a fixed seed across runs"). Every write is
// length- or type-prefixed so that writeString("ab"); writeString("c") can
// never collide with writeString("a"); writeString("bc").
type hasher struct {
	d *xxhash.Digest
}

func newHasher() hasher {
	return hasher{d: xxhash.New()}
}

func (h hasher) writeString(s string) {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.d.Write(lenBuf[:])
	h.d.Write([]byte(s))
}

func (h hasher) writeUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.d.Write(buf[:])
}

func (h hasher) writeBool(b bool) {
	if b {
		h.writeUint64(1)
	} else {
		h.writeUint64(0)
	}
}

func (h hasher) sum() uint64 {
	return h.d.Sum64()
}

// hashString hashes a single self-contained string, such as the compiler's
// self-reported version string (spec §3.2 "rustc").
func hashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// hashStrings hashes an ordered list of strings. Order matters: callers that
// need an order-independent hash (DepFingerprint.deps, sorted by package
// identity per invariant I3) must sort the slice before calling this.
func hashStrings(ss []string) uint64 {
	h := newHasher()
	h.writeUint64(uint64(len(ss)))
	for _, s := range ss {
		h.writeString(s)
	}
	return h.sum()
}
