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
)

// ClassArtifacts is everything the adapters persist for one emitted class.
type ClassArtifacts struct {
	ClassID      int
	Name         string
	Header       string
	Source       string
	Prototypes   []string
	Registration string
	Lowered      []RegEntry
}

// WriteClass assembles the final translation unit for a class: the handle
// tables, the lazy resolution helpers, the emitted method bodies, and the
// registration routine the loader entry point dispatches to.
func WriteClass(ctx *ClassContext) *ClassArtifacts {
	p := ctx.prefix()
	var src strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&src, format, args...)
	}

	w("// Generated by shroud-protect. Do not edit.\n")
	w("#include \"shroud_runtime.hpp\"\n")
	w("#include <cmath>\n")
	w("#include <cstdint>\n\n")

	nClasses := len(ctx.classNames)
	if nClasses == 0 {
		nClasses = 1 // keep the arrays well-formed for classes without refs
	}
	w("namespace {\n\n")
	w("shroud::ClassSlot g_classes[%d];\n", nClasses)
	w("const char *g_class_names[%d] = {\n", nClasses)
	if len(ctx.classNames) == 0 {
		w("    nullptr,\n")
	}
	for _, name := range ctx.classNames {
		w("    \"%s\",\n", cxxEscape(name))
	}
	w("};\n\n")

	if len(ctx.methods) > 0 {
		w("struct MemberInfo { int cls; const char *name; const char *sig; bool is_static; };\n\n")
		w("jmethodID g_mids[%d];\n", len(ctx.methods))
		w("const MemberInfo g_mid_info[%d] = {\n", len(ctx.methods))
		for _, mi := range ctx.methods {
			w("    { %d, \"%s\", \"%s\", %v },\n",
				mi.ClassCache, cxxEscape(mi.Name), cxxEscape(mi.Desc), mi.Static)
		}
		w("};\n\n")
	}
	if len(ctx.fields) > 0 {
		if len(ctx.methods) == 0 {
			w("struct MemberInfo { int cls; const char *name; const char *sig; bool is_static; };\n\n")
		}
		w("jfieldID g_fids[%d];\n", len(ctx.fields))
		w("const MemberInfo g_fid_info[%d] = {\n", len(ctx.fields))
		for _, fi := range ctx.fields {
			w("    { %d, \"%s\", \"%s\", %v },\n",
				fi.ClassCache, cxxEscape(fi.Name), cxxEscape(fi.Desc), fi.Static)
		}
		w("};\n\n")
	}
	if len(ctx.stringPool) > 0 {
		w("jobject g_strings[%d];\n\n", len(ctx.stringPool))
	}

	// Lazy accessors. The class accessor is the only place a slot is
	// resolved, so every use, whatever its lexical position, goes through
	// the same initialise-once path.
	w("jclass %s_cls(JNIEnv *env, int id) {\n", p)
	w("    shroud::ClassSlot *s = &g_classes[id];\n")
	w("    if (s->ready.load(std::memory_order_acquire)) return s->ref;\n")
	w("    return shroud::resolve_class(env, s, g_class_names[id]);\n")
	w("}\n\n")
	w("jclass %s_cls_init(JNIEnv *env, int id) {\n", p)
	w("    jclass c = %s_cls(env, id);\n", p)
	w("    if (c != nullptr) shroud::ensure_clinit(env, &g_classes[id], c);\n")
	w("    return c;\n")
	w("}\n\n")

	if len(ctx.methods) > 0 {
		w("jmethodID %s_mid(JNIEnv *env, int id) {\n", p)
		w("    if (g_mids[id] != nullptr) return g_mids[id];\n")
		w("    const MemberInfo &mi = g_mid_info[id];\n")
		w("    jclass c = %s_cls(env, mi.cls);\n", p)
		w("    if (c == nullptr) return nullptr;\n")
		w("    jmethodID m = mi.is_static ? env->GetStaticMethodID(c, mi.name, mi.sig)\n")
		w("                               : env->GetMethodID(c, mi.name, mi.sig);\n")
		w("    g_mids[id] = m; // jmethodIDs are stable; racing writers store the same value\n")
		w("    return m;\n")
		w("}\n\n")
	}
	if len(ctx.fields) > 0 {
		w("jfieldID %s_fid(JNIEnv *env, int id) {\n", p)
		w("    if (g_fids[id] != nullptr) return g_fids[id];\n")
		w("    const MemberInfo &mi = g_fid_info[id];\n")
		w("    jclass c = %s_cls(env, mi.cls);\n", p)
		w("    if (c == nullptr) return nullptr;\n")
		w("    jfieldID f = mi.is_static ? env->GetStaticFieldID(c, mi.name, mi.sig)\n")
		w("                              : env->GetFieldID(c, mi.name, mi.sig);\n")
		w("    g_fids[id] = f;\n")
		w("    return f;\n")
		w("}\n\n")
	}
	if len(ctx.stringPool) > 0 {
		w("jobject %s_str(JNIEnv *env, int id) { (void)env; return g_strings[id]; }\n\n", p)
	}

	w("} // namespace\n")

	// Method bodies reference the accessors above.
	src.WriteString(ctx.Def())

	writeRegistration(&src, ctx)

	var hdr strings.Builder
	hdr.WriteString("// Generated by shroud-protect. Do not edit.\n")
	hdr.WriteString("#pragma once\n")
	hdr.WriteString("#include \"shroud_runtime.hpp\"\n\n")
	hdr.WriteString(ctx.Decl())
	fmt.Fprintf(&hdr, "extern \"C\" void %s_register(JNIEnv *env, jclass owner);\n", p)

	return &ClassArtifacts{
		ClassID:      ctx.ClassID,
		Name:         ctx.Class.Name,
		Header:       hdr.String(),
		Source:       src.String(),
		Prototypes:   append([]string(nil), ctx.Prototypes...),
		Registration: p + "_register",
		Lowered:      append([]RegEntry(nil), ctx.Plan...),
	}
}

// writeRegistration emits the per-class registration routine. It runs once
// per class under the host VM's class-initialisation guarantees; every JNI
// call is followed by an exception check that early-returns, and a missing
// classloader is fatal because no later resolution could succeed.
func writeRegistration(src *strings.Builder, ctx *ClassContext) {
	p := ctx.prefix()
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(src, format, args...)
	}

	w("\nextern \"C\" void %s_register(JNIEnv *env, jclass owner) {\n", p)
	w("    shroud::capture_loader(env, owner); // FatalError inside when unavailable\n")
	w("    if (env->ExceptionCheck()) return;\n")

	for i, s := range ctx.stringPool {
		w("    {\n")
		w("        jstring s = env->NewStringUTF(\"%s\");\n", cxxEscape(s))
		w("        if (env->ExceptionCheck()) return;\n")
		w("        g_strings[%d] = env->NewGlobalRef(s);\n", i)
		w("        env->DeleteLocalRef(s);\n")
		w("        if (env->ExceptionCheck()) return;\n")
		w("    }\n")
	}

	// Force initialisation of classes whose static members the bodies
	// touch, before any body can run.
	for slot := range ctx.classNames {
		if !ctx.ClinitForced(slot) {
			continue
		}
		w("    {\n")
		w("        jclass c = %s_cls_init(env, %d);\n", p, slot)
		w("        (void)c;\n")
		w("        if (env->ExceptionCheck()) return;\n")
		w("    }\n")
	}

	// Pre-resolve member identifiers so first use on a hot path is a read.
	for i := range ctx.methods {
		w("    if (%s_mid(env, %d) == nullptr) { if (env->ExceptionCheck()) return; }\n", p, i)
	}
	for i := range ctx.fields {
		w("    if (%s_fid(env, %d) == nullptr) { if (env->ExceptionCheck()) return; }\n", p, i)
	}

	var own, hidden []RegEntry
	for _, e := range ctx.Plan {
		if e.HiddenOwner == "" {
			own = append(own, e)
		} else {
			hidden = append(hidden, e)
		}
	}
	if len(own) > 0 {
		w("    {\n")
		w("        static const JNINativeMethod methods[] = {\n")
		for _, e := range own {
			w("            { (char*)\"%s\", (char*)\"%s\", (void*)%s },\n",
				cxxEscape(e.JavaName), cxxEscape(e.JavaDesc), e.CxxName)
		}
		w("        };\n")
		w("        env->RegisterNatives(owner, methods, %d);\n", len(own))
		w("        if (env->ExceptionCheck()) return;\n")
		w("    }\n")
	}
	// Hidden helpers bind to the classes that host them, grouped per host.
	byHost := map[string][]RegEntry{}
	var hosts []string
	for _, e := range hidden {
		if _, ok := byHost[e.HiddenOwner]; !ok {
			hosts = append(hosts, e.HiddenOwner)
		}
		byHost[e.HiddenOwner] = append(byHost[e.HiddenOwner], e)
	}
	for _, host := range hosts {
		slot := ctx.classCache(host)
		entries := byHost[host]
		w("    {\n")
		w("        jclass hc = %s_cls(env, %d);\n", p, slot)
		w("        if (hc == nullptr || env->ExceptionCheck()) return;\n")
		w("        static const JNINativeMethod methods[] = {\n")
		for _, e := range entries {
			w("            { (char*)\"%s\", (char*)\"%s\", (void*)%s },\n",
				cxxEscape(e.JavaName), cxxEscape(e.JavaDesc), e.CxxName)
		}
		w("        };\n")
		w("        env->RegisterNatives(hc, methods, %d);\n", len(entries))
		w("        if (env->ExceptionCheck()) return;\n")
		w("    }\n")
	}
	w("}\n")
}

// WriteBuild renders the central translation unit mapping class ids to their
// registration routines. The loader entry point in the packaged library
// calls shroud::register_class with the id baked into each trampoline class.
func WriteBuild(all []*ClassArtifacts) string {
	var b strings.Builder
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&b, format, args...)
	}
	w("// Generated by shroud-protect. Do not edit.\n")
	w("#include \"shroud_runtime.hpp\"\n\n")
	for _, a := range all {
		w("extern \"C\" void %s(JNIEnv *env, jclass owner);\n", a.Registration)
	}
	w("\nnamespace shroud {\n\n")
	w("typedef void (*RegisterFn)(JNIEnv *, jclass);\n\n")
	n := len(all)
	if n == 0 {
		n = 1
	}
	w("static const RegisterFn g_registry[%d] = {\n", n)
	if len(all) == 0 {
		w("    nullptr,\n")
	}
	for _, a := range all {
		w("    %s,\n", a.Registration)
	}
	w("};\n\n")
	w("void register_class(JNIEnv *env, int class_id, jclass owner) {\n")
	w("    if (class_id < 0 || class_id >= %d) return;\n", len(all))
	w("    g_registry[class_id](env, owner);\n")
	w("}\n\n")
	w("} // namespace shroud\n")
	return b.String()
}
