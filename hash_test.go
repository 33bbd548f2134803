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

import "testing"

func TestHashStringDeterministic(t *testing.T) {
	if hashString("abc") != hashString("abc") {
		t.Fatal("hashString is not deterministic")
	}
	if hashString("abc") == hashString("abd") {
		t.Fatal("distinct strings hashed equal")
	}
}

func TestHashStringsLengthPrefixed(t *testing.T) {
	a := hashStrings([]string{"ab", "c"})
	b := hashStrings([]string{"a", "bc"})
	if a == b {
		t.Fatal("hashStrings collided across a boundary shift, length-prefixing broken")
	}
}

func TestHasherWriteOrderMatters(t *testing.T) {
	h1 := newHasher()
	h1.writeString("a")
	h1.writeUint64(1)
	s1 := h1.sum()

	h2 := newHasher()
	h2.writeUint64(1)
	h2.writeString("a")
	s2 := h2.sum()

	if s1 == s2 {
		t.Fatal("hasher is insensitive to write order")
	}
}

func TestHasherWriteBool(t *testing.T) {
	h1 := newHasher()
	h1.writeBool(true)
	h2 := newHasher()
	h2.writeBool(false)
	if h1.sum() == h2.sum() {
		t.Fatal("writeBool(true) and writeBool(false) collided")
	}
}
