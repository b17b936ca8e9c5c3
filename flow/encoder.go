// Copyright 2026 The go-shroud Authors
// This file is part of go-shroud.
//
// go-shroud is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-shroud is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-shroud. If not, see <http://www.gnu.org/licenses/>.

// Package flow implements the encoded-state dispatch obfuscation shared by
// the Java-level control-flow flattener and the native emitter: raw state
// ids are mixed into opaque 32-bit keys by a strength-dependent function
// whose parameters are drawn per method.
package flow

import (
	"fmt"
	"hash/fnv"
	"math/bits"
	"math/rand"
)

// Strength selects the state-mixing profile.
type Strength int

const (
	// StrengthLow leaves state ids raw: structural flattening only.
	StrengthLow Strength = iota
	// StrengthMedium applies a single affine mix (raw^mask)*mul + bias.
	StrengthMedium
	// StrengthHigh salts the mask with a pre-rotation and adds a right-xor
	// diffusion step after the affine mix.
	StrengthHigh
)

func (s Strength) String() string {
	switch s {
	case StrengthLow:
		return "low"
	case StrengthMedium:
		return "medium"
	case StrengthHigh:
		return "high"
	}
	return fmt.Sprintf("strength(%d)", int(s))
}

// DummyStates is the number of decoy dispatch states a flattened method
// carries at each strength.
func (s Strength) DummyStates() int {
	switch s {
	case StrengthMedium:
		return 1
	case StrengthHigh:
		return 3
	}
	return 0
}

// Encoder maps raw state ids to encoded dispatch keys. Parameters are drawn
// from a PRNG seeded by the method identity, so a build is reproducible, and
// redrawn until the key set is injective over the raw ids in use.
type Encoder struct {
	strength Strength
	mask     uint32
	mul      uint32
	bias     uint32
	rng      *rand.Rand
}

// maxDraws bounds the parameter redraw loop. Collisions over at most five
// 32-bit keys are rare enough that hitting the bound indicates a bug.
const maxDraws = 64

// NewEncoder derives an encoder for the method named by identity, injective
// over rawIDs. identity is only a deterministic seed; it never appears in
// the output.
func NewEncoder(identity string, strength Strength, rawIDs []uint32) (*Encoder, error) {
	h := fnv.New64a()
	h.Write([]byte(identity))
	e := &Encoder{
		strength: strength,
		rng:      rand.New(rand.NewSource(int64(h.Sum64()))),
	}
	if strength == StrengthLow {
		// Identity encoding: raw ids are pairwise distinct by construction.
		return e, nil
	}
	for draw := 0; draw < maxDraws; draw++ {
		e.mask = e.rng.Uint32()
		e.mul = e.rng.Uint32() | 1 // odd, so the mix stays invertible mod 2^32
		e.bias = e.rng.Uint32()
		if injective(e, rawIDs) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("flow: no injective parameters for %q after %d draws", identity, maxDraws)
}

func injective(e *Encoder, rawIDs []uint32) bool {
	seen := make(map[uint32]bool, len(rawIDs))
	for _, raw := range rawIDs {
		k := e.Encode(raw)
		if seen[k] {
			return false
		}
		seen[k] = true
	}
	return true
}

// Encode maps a raw state id to its dispatch key. All arithmetic wraps in
// uint32.
func (e *Encoder) Encode(raw uint32) uint32 {
	switch e.strength {
	case StrengthMedium:
		return (raw^e.mask)*e.mul + e.bias
	case StrengthHigh:
		x := raw ^ bits.RotateLeft32(e.mask, 7)
		x *= e.mul
		x = bits.RotateLeft32(x, 3)
		x += e.bias
		x ^= x >> 13
		return x
	}
	return raw
}

// Strength returns the profile the encoder was built with.
func (e *Encoder) Strength() Strength { return e.strength }

// Params exposes the drawn constants for inlining into bytecode or C++.
func (e *Encoder) Params() (mask, mul, bias uint32) {
	return e.mask, e.mul, e.bias
}

// Noise returns a deterministic pseudo-random constant for decoy states.
func (e *Encoder) Noise() int32 { return int32(e.rng.Uint32()) }

// CxxHelper renders the encoding algebra as a C++ inline function, so the
// generated native code computes the same keys the dispatch switch was built
// with. name becomes the function identifier.
func (e *Encoder) CxxHelper(name string) string {
	switch e.strength {
	case StrengthMedium:
		return fmt.Sprintf(
			"static inline uint32_t %s(uint32_t raw) { return (raw ^ 0x%08xu) * 0x%08xu + 0x%08xu; }\n",
			name, e.mask, e.mul, e.bias)
	case StrengthHigh:
		return fmt.Sprintf(
			"static inline uint32_t %s(uint32_t raw) {\n"+
				"    uint32_t x = raw ^ 0x%08xu;\n"+
				"    x *= 0x%08xu;\n"+
				"    x = (x << 3) | (x >> 29);\n"+
				"    x += 0x%08xu;\n"+
				"    x ^= x >> 13;\n"+
				"    return x;\n"+
				"}\n",
			name, bits.RotateLeft32(e.mask, 7), e.mul, e.bias)
	}
	return fmt.Sprintf("static inline uint32_t %s(uint32_t raw) { return raw; }\n", name)
}
