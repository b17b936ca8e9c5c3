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

	"github.com/shroudlabs/go-shroud/flow"
	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/mvm"
)

// methodEmitter renders one protected method. It owns the per-method state:
// the case index of every label, the per-use local class handles, and the
// reference-tracking decision.
type methodEmitter struct {
	ctx  *ClassContext
	m    *jvm.Method
	sig  *jvm.MethodSig
	name string
	enc  *flow.Encoder

	steps    []*jvm.Insn
	labelTo  map[*jvm.Label]int
	regions  []nativeRegion
	usesRefs bool

	// localCls maps a class-cache slot to the per-use local handle id that
	// collapses repeated lookups inside the method.
	localCls map[int]int

	body strings.Builder
}

type nativeRegion struct {
	start, end, handler int
	typeSlot            int // class-cache slot of the caught type; -1 catch-all
}

// EmitMethod renders m into the context buffers. When prog is non-nil and
// virtualization is enabled the micro-VM backend is used; otherwise the
// method becomes an interop state machine. The returned entry names the
// binding the registration routine installs.
func (c *ClassContext) EmitMethod(m *jvm.Method, prog *mvm.Program) (RegEntry, error) {
	sig, err := jvm.ParseMethodDesc(m.Desc)
	if err != nil {
		return RegEntry{}, err
	}
	e := &methodEmitter{
		ctx:      c,
		m:        m,
		sig:      sig,
		name:     cxxMethodName(c.ClassID, c.nextMethodID()),
		labelTo:  make(map[*jvm.Label]int),
		localCls: make(map[int]int),
	}
	if c.Cfg.NativeFlatten {
		enc, err := flow.NewEncoder(m.Identity(c.Class.Name), c.Cfg.Strength, nil)
		if err != nil {
			return RegEntry{}, err
		}
		e.enc = enc
	}

	// A failed emission must leave the class buffers untouched so the
	// method can fall back to the Java path cleanly.
	defMark := c.def.Len()
	if prog != nil && c.Cfg.Virtualization {
		if err := e.emitVMBody(prog); err != nil {
			c.def.Truncate(defMark)
			return RegEntry{}, err
		}
	} else {
		if err := e.emitStateMachineBody(); err != nil {
			c.def.Truncate(defMark)
			return RegEntry{}, err
		}
	}

	proto := e.prototype()
	c.Prototypes = append(c.Prototypes, proto)
	c.declf("%s;\n", proto)

	entry := RegEntry{JavaName: m.Name, JavaDesc: m.Desc, CxxName: e.name}
	c.Plan = append(c.Plan, entry)
	return entry, nil
}

// encState renders a next-state constant: the mixing helper applied to the
// raw index when native flattening is on, the raw index otherwise.
func (e *methodEmitter) encState(raw int) string {
	if e.enc == nil {
		return fmt.Sprintf("%du", raw)
	}
	return fmt.Sprintf("0x%08xu", e.enc.Encode(uint32(raw)))
}

// caseLabel renders the dispatch key of a step.
func (e *methodEmitter) caseLabel(raw int) string { return e.encState(raw) }

func (e *methodEmitter) prototype() string {
	var b strings.Builder
	fmt.Fprintf(&b, "JNIEXPORT %s JNICALL %s(JNIEnv *env, ", jniType(e.sig.Ret), e.name)
	if e.m.IsStatic() {
		b.WriteString("jclass clazz")
	} else {
		b.WriteString("jobject obj")
	}
	slot := 0
	for _, k := range e.sig.Args {
		fmt.Fprintf(&b, ", %s a%d", jniType(k), slot)
		if k.Wide() {
			slot += 2
		} else {
			slot++
		}
	}
	b.WriteString(")")
	return b.String()
}

// collectSteps flattens label markers out of the code list, assigning each
// real instruction a raw state id and mapping labels to the id of the
// instruction that follows them.
func (e *methodEmitter) collectSteps() {
	for _, in := range e.m.Code {
		if in.IsLabel() {
			e.labelTo[in.Pos] = len(e.steps)
			continue
		}
		e.steps = append(e.steps, in)
	}
	for _, tc := range e.m.TryCatch {
		r := nativeRegion{
			start:    e.labelTo[tc.Start],
			end:      e.labelTo[tc.End],
			handler:  e.labelTo[tc.Handler],
			typeSlot: -1,
		}
		if tc.Type != "" {
			r.typeSlot = e.ctx.classCache(tc.Type)
		}
		e.regions = append(e.regions, r)
	}
}

// scanRefs decides whether the body can ever hold a local reference. A
// primitive-only method skips the tracking set entirely.
func (e *methodEmitter) scanRefs() {
	if !e.m.IsStatic() {
		e.usesRefs = true
		return
	}
	for _, k := range e.sig.Args {
		if k == jvm.KindRef {
			e.usesRefs = true
			return
		}
	}
	for _, in := range e.steps {
		switch in.Op {
		case jvm.OpAconstNull, jvm.OpAload, jvm.OpAstore, jvm.OpAaload, jvm.OpAastore,
			jvm.OpNew, jvm.OpNewarray, jvm.OpAnewarray, jvm.OpMultianewarray,
			jvm.OpAthrow, jvm.OpCheckcast, jvm.OpInstanceof,
			jvm.OpMonitorenter, jvm.OpMonitorexit, jvm.OpArraylength, jvm.OpAreturn:
			e.usesRefs = true
			return
		case jvm.OpLdc, jvm.OpLdcW:
			if in.Cst.Tag == jvm.ConstString || in.Cst.Tag == jvm.ConstClass {
				e.usesRefs = true
				return
			}
		case jvm.OpGetstatic, jvm.OpPutstatic, jvm.OpGetfield, jvm.OpPutfield:
			if kind, err := jvm.ParseFieldDesc(in.Desc); err == nil && kind == jvm.KindRef {
				e.usesRefs = true
				return
			}
			if in.Op == jvm.OpGetfield || in.Op == jvm.OpPutfield {
				e.usesRefs = true
				return
			}
		case jvm.OpInvokevirtual, jvm.OpInvokespecial, jvm.OpInvokeinterface,
			jvm.OpInvokedynamic:
			e.usesRefs = true
			return
		case jvm.OpInvokestatic:
			if sig, err := jvm.ParseMethodDesc(in.Desc); err == nil {
				if sig.Ret == jvm.KindRef {
					e.usesRefs = true
					return
				}
				for _, k := range sig.Args {
					if k == jvm.KindRef {
						e.usesRefs = true
						return
					}
				}
			}
		}
	}
}

// track emits reference-set insertion for a freshly created local ref.
func (e *methodEmitter) track(expr string) string {
	if !e.usesRefs {
		return ""
	}
	return fmt.Sprintf("refs.track(%s); ", expr)
}

// localClassHandle returns the expression resolving a per-use cached local
// class handle for slot, declaring the handle on first use.
func (e *methodEmitter) localClassHandle(slot int) string {
	if id, ok := e.localCls[slot]; ok {
		return fmt.Sprintf("lc_%d", id)
	}
	id := len(e.localCls)
	e.localCls[slot] = id
	return fmt.Sprintf("lc_%d", id)
}

func (e *methodEmitter) bodyf(format string, args ...interface{}) {
	fmt.Fprintf(&e.body, format, args...)
}

// emitStateMachineBody renders the fallback backend: one dispatch case per
// original instruction, all exits through the shared epilogue.
func (e *methodEmitter) emitStateMachineBody() error {
	e.collectSteps()
	for _, in := range e.steps {
		for _, l := range append([]*jvm.Label{in.Target, in.Dflt}, in.Targets...) {
			if l == nil {
				continue
			}
			if _, ok := e.labelTo[l]; !ok {
				return fmt.Errorf("nativegen: branch target %s missing from %s.%s%s",
					l, e.ctx.Class.Name, e.m.Name, e.m.Desc)
			}
		}
	}
	e.scanRefs()

	c := e.ctx
	c.deff("\n// %s.%s%s\n", sanitizeComment(c.Class.Name), sanitizeComment(e.m.Name), sanitizeComment(e.m.Desc))
	if e.enc != nil {
		c.deff("%s", e.enc.CxxHelper(e.name+"_mix"))
	}
	c.deff("%s {\n", e.prototype())

	maxStack := e.m.MaxStack
	if maxStack < 2 {
		maxStack = 2
	}
	maxLocals := e.m.MaxLocals
	if maxLocals < 1 {
		maxLocals = 1
	}
	c.deff("    jvalue st[%d]; int sp = 0;\n", maxStack)
	c.deff("    jvalue lo[%d];\n", maxLocals)
	c.deff("    std::memset(lo, 0, sizeof lo);\n")
	if e.usesRefs {
		c.deff("    shroud::RefSet refs(env);\n")
	}
	if e.sig.Ret != jvm.KindVoid {
		c.deff("    jvalue rv; std::memset(&rv, 0, sizeof rv);\n")
	}

	// Arguments land in the locals array under the Java slot numbering.
	slot := 0
	if !e.m.IsStatic() {
		c.deff("    lo[0].l = obj;\n")
		slot = 1
	}
	for _, k := range e.sig.Args {
		c.deff("    lo[%d].%s = a%d;\n", slot, k.JNIType(), slot)
		if k.Wide() {
			slot += 2
		} else {
			slot++
		}
	}

	// Per-use local class handles, discovered during step emission; the
	// body text is buffered so the declarations can precede it.
	e.body.Reset()
	e.bodyf("    uint32_t state = %s;\n", e.encState(0))
	e.bodyf("    uint32_t state_raw = 0; (void)state_raw;\n")
	e.bodyf("    while (true) {\n")
	e.bodyf("        switch (state) {\n")
	for idx, in := range e.steps {
		if err := e.emitStep(idx, in); err != nil {
			return err
		}
	}
	e.bodyf("        default:\n")
	e.bodyf("            goto done;\n")
	e.bodyf("        }\n")
	e.bodyf("        continue;\n")
	e.emitExcDispatch()
	e.bodyf("    }\n")

	handleOf := make([]int, len(e.localCls)) // id -> class slot, declaration order
	for clsSlot, id := range e.localCls {
		handleOf[id] = clsSlot
	}
	for id, clsSlot := range handleOf {
		c.deff("    jclass lc_%d = nullptr; (void)lc_%d; // %s\n",
			id, id, sanitizeComment(c.classNames[clsSlot]))
	}
	c.deff("%s", e.body.String())

	c.deff("done:\n")
	if e.usesRefs {
		c.deff("    refs.release();\n")
	}
	if e.sig.Ret == jvm.KindVoid {
		c.deff("    return;\n")
	} else {
		c.deff("    return rv.%s;\n", e.sig.Ret.JNIType())
	}
	c.deff("}\n")
	return nil
}

// emitExcDispatch renders the in-loop handler scan. A pending exception
// re-enters the dispatch loop at the innermost matching region or leaves
// through the epilogue with the exception still pending.
func (e *methodEmitter) emitExcDispatch() {
	e.bodyf("    exc:\n")
	if len(e.regions) == 0 {
		e.bodyf("        goto done;\n")
		return
	}
	e.bodyf("    {\n")
	e.bodyf("        jthrowable t = env->ExceptionOccurred();\n")
	e.bodyf("        env->ExceptionClear();\n")
	for _, r := range e.regions {
		cond := fmt.Sprintf("state_raw >= %du && state_raw < %du", r.start, r.end)
		if r.typeSlot >= 0 {
			cond += fmt.Sprintf(" && env->IsInstanceOf(t, %s)",
				e.classExpr(r.typeSlot, false))
		}
		e.bodyf("        if (%s) { sp = 0; st[sp++].l = t; %sstate = %s; continue; }\n",
			cond, e.track("t"), e.encState(r.handler))
	}
	e.bodyf("        env->Throw(t);\n")
	e.bodyf("        goto done;\n")
	e.bodyf("    }\n")
}

// classExpr renders the resolution of a cached class slot. withInit routes
// through the clinit-forcing accessor for static member access.
func (e *methodEmitter) classExpr(slot int, withInit bool) string {
	if withInit {
		return fmt.Sprintf("%s_cls_init(env, %d)", e.ctx.prefix(), slot)
	}
	return fmt.Sprintf("%s_cls(env, %d)", e.ctx.prefix(), slot)
}

func (c *ClassContext) prefix() string {
	return fmt.Sprintf("sp_c%d", c.ClassID)
}
