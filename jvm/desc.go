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

package jvm

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// TypeKind classifies a descriptor element by the slot shape the compiler
// cares about, not by the full Java type.
type TypeKind uint8

const (
	KindVoid TypeKind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindFloat
	KindLong
	KindDouble
	KindRef
)

// Wide reports whether the kind occupies two locals slots.
func (k TypeKind) Wide() bool { return k == KindLong || k == KindDouble }

// JNIType returns the jvalue union member letter used by the native emitter
// ("i" for jint, "j" for jlong, "l" for jobject, ...).
func (k TypeKind) JNIType() string {
	switch k {
	case KindBoolean:
		return "z"
	case KindByte:
		return "b"
	case KindChar:
		return "c"
	case KindShort:
		return "s"
	case KindInt:
		return "i"
	case KindFloat:
		return "f"
	case KindLong:
		return "j"
	case KindDouble:
		return "d"
	case KindRef:
		return "l"
	}
	return ""
}

// MethodSig is the parsed form of a method descriptor.
type MethodSig struct {
	Args     []TypeKind
	Ret      TypeKind
	ArgSlots int // locals slots consumed by the arguments (wide kinds count 2)
}

// ErrBadDescriptor is returned for descriptors that do not follow JVMS §4.3.
var ErrBadDescriptor = errors.New("jvm: malformed descriptor")

// Descriptor parsing shows up once per emitted JNI call, so results are
// memoized. The cache is shared by all classes of a build; descriptors repeat
// heavily across a JAR.
var sigCache, _ = lru.New(4096)

// ParseMethodDesc parses a method descriptor such as "(ILjava/lang/String;)J".
func ParseMethodDesc(desc string) (*MethodSig, error) {
	if v, ok := sigCache.Get(desc); ok {
		return v.(*MethodSig), nil
	}
	if len(desc) < 3 || desc[0] != '(' {
		return nil, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	sig := &MethodSig{}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		kind, next, err := parseType(desc, i)
		if err != nil {
			return nil, err
		}
		sig.Args = append(sig.Args, kind)
		if kind.Wide() {
			sig.ArgSlots += 2
		} else {
			sig.ArgSlots++
		}
		i = next
	}
	if i >= len(desc) || desc[i] != ')' {
		return nil, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	ret, next, err := parseType(desc, i+1)
	if err != nil {
		return nil, err
	}
	if next != len(desc) {
		return nil, fmt.Errorf("%w: trailing garbage in %q", ErrBadDescriptor, desc)
	}
	sig.Ret = ret
	sigCache.Add(desc, sig)
	return sig, nil
}

// ParseFieldDesc parses a single field descriptor.
func ParseFieldDesc(desc string) (TypeKind, error) {
	kind, next, err := parseType(desc, 0)
	if err != nil {
		return KindVoid, err
	}
	if next != len(desc) || kind == KindVoid {
		return KindVoid, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	return kind, nil
}

func parseType(desc string, i int) (TypeKind, int, error) {
	if i >= len(desc) {
		return KindVoid, i, fmt.Errorf("%w: %q", ErrBadDescriptor, desc)
	}
	switch desc[i] {
	case 'V':
		return KindVoid, i + 1, nil
	case 'Z':
		return KindBoolean, i + 1, nil
	case 'B':
		return KindByte, i + 1, nil
	case 'C':
		return KindChar, i + 1, nil
	case 'S':
		return KindShort, i + 1, nil
	case 'I':
		return KindInt, i + 1, nil
	case 'F':
		return KindFloat, i + 1, nil
	case 'J':
		return KindLong, i + 1, nil
	case 'D':
		return KindDouble, i + 1, nil
	case 'L':
		for j := i + 1; j < len(desc); j++ {
			if desc[j] == ';' {
				return KindRef, j + 1, nil
			}
		}
		return KindVoid, i, fmt.Errorf("%w: unterminated class type in %q", ErrBadDescriptor, desc)
	case '[':
		// Arrays are references regardless of element type; skip the element.
		_, next, err := parseType(desc, i+1)
		if err != nil {
			return KindVoid, i, err
		}
		return KindRef, next, nil
	}
	return KindVoid, i, fmt.Errorf("%w: %q at %d", ErrBadDescriptor, desc, i)
}
