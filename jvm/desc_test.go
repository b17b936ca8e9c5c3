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
	"reflect"
	"testing"
)

func TestParseMethodDesc(t *testing.T) {
	sig, err := ParseMethodDesc("(ILjava/lang/String;[IJ)D")
	if err != nil {
		t.Fatal(err)
	}
	wantArgs := []TypeKind{KindInt, KindRef, KindRef, KindLong}
	if !reflect.DeepEqual(sig.Args, wantArgs) {
		t.Fatalf("args = %v, want %v", sig.Args, wantArgs)
	}
	if sig.Ret != KindDouble {
		t.Fatalf("ret = %v, want double", sig.Ret)
	}
	if sig.ArgSlots != 5 {
		t.Fatalf("arg slots = %d, want 5", sig.ArgSlots)
	}
}

func TestParseMethodDescMemoized(t *testing.T) {
	a, err := ParseMethodDesc("()V")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseMethodDesc("()V")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("memoized parse returned distinct values")
	}
}

func TestParseMethodDescErrors(t *testing.T) {
	for _, desc := range []string{"", "()", "I", "(Ljava/lang/String)V", "(I)VX", "(X)V"} {
		if _, err := ParseMethodDesc(desc); !errors.Is(err, ErrBadDescriptor) {
			t.Errorf("%q: err = %v, want ErrBadDescriptor", desc, err)
		}
	}
}

func TestParseFieldDesc(t *testing.T) {
	cases := map[string]TypeKind{
		"I": KindInt, "J": KindLong, "D": KindDouble, "Z": KindBoolean,
		"Ljava/lang/Object;": KindRef, "[J": KindRef, "[[Lfoo/Bar;": KindRef,
	}
	for desc, want := range cases {
		got, err := ParseFieldDesc(desc)
		if err != nil {
			t.Errorf("%q: %v", desc, err)
			continue
		}
		if got != want {
			t.Errorf("%q = %v, want %v", desc, got, want)
		}
	}
	if _, err := ParseFieldDesc("V"); err == nil {
		t.Error("void field descriptor accepted")
	}
	if _, err := ParseFieldDesc("II"); err == nil {
		t.Error("trailing garbage accepted")
	}
}

func TestTypeKindHelpers(t *testing.T) {
	if !KindLong.Wide() || !KindDouble.Wide() || KindInt.Wide() {
		t.Fatal("Wide() misclassifies")
	}
	if KindLong.JNIType() != "j" || KindRef.JNIType() != "l" || KindFloat.JNIType() != "f" {
		t.Fatal("JNIType() misclassifies")
	}
}
