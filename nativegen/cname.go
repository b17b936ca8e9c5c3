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

package nativegen

import (
	"fmt"
	"strings"

	"github.com/shroudlabs/go-shroud/jvm"
)

// cxxMethodName builds the emitted function identifier for a protected
// method. Names are positional, not mangled from the Java name: the id pair
// keeps them stable, short, and free of any hint of the original.
func cxxMethodName(classID, methodID int) string {
	return fmt.Sprintf("sp_c%d_m%d", classID, methodID)
}

// sanitizeComment strips characters that would break a C++ comment.
func sanitizeComment(s string) string {
	s = strings.ReplaceAll(s, "*/", "*_/")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// cxxEscape renders a Go string as a C++ string literal body. Non-ASCII and
// control bytes are hex-escaped; hex escapes are terminated by splitting the
// literal, since C++ hex escapes are maximal-munch.
func cxxEscape(s string) string {
	var b strings.Builder
	pendingHex := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"' || ch == '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
			pendingHex = false
		case ch >= 0x20 && ch < 0x7f:
			if pendingHex && isHexDigit(ch) {
				b.WriteString("\" \"")
			}
			b.WriteByte(ch)
			pendingHex = false
		default:
			fmt.Fprintf(&b, "\\x%02x", ch)
			pendingHex = true
		}
	}
	return b.String()
}

func isHexDigit(ch byte) bool {
	return ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'f' || ch >= 'A' && ch <= 'F'
}

// jniType maps a slot kind to the JNI C type of a method signature.
func jniType(k jvm.TypeKind) string {
	switch k {
	case jvm.KindVoid:
		return "void"
	case jvm.KindBoolean:
		return "jboolean"
	case jvm.KindByte:
		return "jbyte"
	case jvm.KindChar:
		return "jchar"
	case jvm.KindShort:
		return "jshort"
	case jvm.KindInt:
		return "jint"
	case jvm.KindFloat:
		return "jfloat"
	case jvm.KindLong:
		return "jlong"
	case jvm.KindDouble:
		return "jdouble"
	}
	return "jobject"
}

// callSuffix maps a return kind to the JNI Call<Kind>Method suffix.
func callSuffix(k jvm.TypeKind) string {
	switch k {
	case jvm.KindVoid:
		return "Void"
	case jvm.KindBoolean:
		return "Boolean"
	case jvm.KindByte:
		return "Byte"
	case jvm.KindChar:
		return "Char"
	case jvm.KindShort:
		return "Short"
	case jvm.KindInt:
		return "Int"
	case jvm.KindFloat:
		return "Float"
	case jvm.KindLong:
		return "Long"
	case jvm.KindDouble:
		return "Double"
	}
	return "Object"
}
