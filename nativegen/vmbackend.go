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

	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/mvm"
)

// emitVMBody renders the micro-VM backend: the translated program embedded
// as an obfuscated static image and one call into the runtime interpreter.
// The body contains no interop state machine; the two backends never share a
// hot path.
func (e *methodEmitter) emitVMBody(prog *mvm.Program) error {
	image, err := mvm.Encode(prog, e.ctx.Cfg.BuildKey)
	if err != nil {
		return err
	}

	c := e.ctx
	c.deff("\n// %s.%s%s\n", sanitizeComment(c.Class.Name), sanitizeComment(e.m.Name), sanitizeComment(e.m.Desc))
	c.deff("static const uint8_t %s_img[] = {", e.name)
	for i, b := range image {
		if i%16 == 0 {
			c.deff("\n    ")
		}
		c.deff("0x%02x,", b)
	}
	c.deff("\n};\n")
	if len(c.Cfg.BuildKey) > 0 {
		c.deff("static const uint8_t %s_key[] = {", e.name)
		for i, b := range c.Cfg.BuildKey {
			if i%16 == 0 {
				c.deff("\n    ")
			}
			c.deff("0x%02x,", b)
		}
		c.deff("\n};\n")
	}

	c.deff("%s {\n", e.prototype())

	// Arguments are packed under the Java slot numbering the translator
	// preserved, so the interpreter's locals line up with the original
	// method's frame.
	nargs := e.sig.ArgSlots
	if !e.m.IsStatic() {
		nargs++
	}
	if nargs > 0 {
		c.deff("    jvalue args[%d];\n", nargs)
		c.deff("    std::memset(args, 0, sizeof args);\n")
		slot := 0
		if !e.m.IsStatic() {
			c.deff("    args[0].l = obj;\n")
			slot = 1
		}
		for _, k := range e.sig.Args {
			c.deff("    args[%d].%s = a%d;\n", slot, k.JNIType(), slot)
			if k.Wide() {
				slot += 2
			} else {
				slot++
			}
		}
	} else {
		c.deff("    jvalue *args = nullptr;\n")
	}

	host := "clazz"
	if !e.m.IsStatic() {
		host = "env->GetObjectClass(obj)"
	}
	keyExpr, keyLen := "nullptr", "0"
	if len(c.Cfg.BuildKey) > 0 {
		keyExpr = e.name + "_key"
		keyLen = fmt.Sprintf("sizeof %s_key", e.name)
	}
	if e.sig.Ret == jvm.KindVoid {
		c.deff("    shroud::vm_invoke(env, %s, %s_img, sizeof %s_img, %s, %s, args, %d, nullptr);\n",
			host, e.name, e.name, keyExpr, keyLen, nargs)
		c.deff("    return;\n")
	} else {
		c.deff("    jvalue ret;\n")
		c.deff("    std::memset(&ret, 0, sizeof ret);\n")
		c.deff("    shroud::vm_invoke(env, %s, %s_img, sizeof %s_img, %s, %s, args, %d, &ret);\n",
			host, e.name, e.name, keyExpr, keyLen, nargs)
		c.deff("    return ret.%s;\n", e.sig.Ret.JNIType())
	}
	c.deff("}\n")
	return nil
}
