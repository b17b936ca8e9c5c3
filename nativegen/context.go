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

// Package nativegen renders protected methods as C++ sources bound to the
// JVM through JNI. Each method body is emitted either as an encoded-state
// machine working an operand stack of jvalue, or as an invocation of the
// embedded micro-VM on the method's translated program. A per-class context
// deduplicates every JVM handle the generated code resolves at run time.
package nativegen

import (
	"bytes"
	"fmt"

	mapset "github.com/deckarep/golang-set"

	"github.com/shroudlabs/go-shroud/flow"
	"github.com/shroudlabs/go-shroud/jvm"
)

// Config carries the generation switches for one build.
type Config struct {
	// Virtualization routes translatable methods through the micro-VM
	// backend. The two backends are strict alternatives: a method body
	// contains either VM runtime calls or interop state-machine cases,
	// never both.
	Virtualization bool
	// VMJit is carried from the driver options; the emitted code does not
	// read it, and no trace JIT is generated.
	VMJit bool
	// NativeFlatten applies encoded-state dispatch to state-machine bodies.
	// When off, case labels are the raw instruction indices.
	NativeFlatten bool
	// Strength parameterises the state encoder for flattened bodies.
	Strength flow.Strength
	// BuildKey obfuscates embedded micro-VM images (mvm.KeySize bytes).
	BuildKey []byte
}

// CachedMethodInfo is one run-time-resolved method identifier slot.
type CachedMethodInfo struct {
	Owner  string
	Name   string
	Desc   string
	Static bool
	// ClassCache is the class-slot index the jmethodID resolves against.
	ClassCache int
}

// CachedFieldInfo is one run-time-resolved field identifier slot.
type CachedFieldInfo struct {
	Owner      string
	Name       string
	Desc       string
	Static     bool
	ClassCache int
}

type memberKey struct {
	owner, name, desc string
	static            bool
}

// RegEntry is one native binding the registration routine installs.
type RegEntry struct {
	JavaName string
	JavaDesc string
	CxxName  string
	// HiddenOwner is set when the binding targets a class other than the
	// context's owner (hidden helper methods).
	HiddenOwner string
}

// ClassContext aggregates everything emitted for one class: the two text
// buffers, the deduplicating handle caches, and the registration plan. A
// context is private to one class's processing; contexts never share state,
// which is what allows classes to be emitted in parallel.
type ClassContext struct {
	Class   *jvm.Class
	ClassID int
	Cfg     Config

	decl bytes.Buffer
	def  bytes.Buffer

	classNames []string
	classIdx   map[string]int

	methods   []CachedMethodInfo
	methodIdx map[memberKey]int

	fields   []CachedFieldInfo
	fieldIdx map[memberKey]int

	stringPool []string
	stringIdx  map[string]int

	// hidden collects methods registered on classes other than the owner.
	hidden mapset.Set
	// clinitForced collects class-slot ids whose static initialisation must
	// run before first member access.
	clinitForced mapset.Set

	Prototypes []string
	Plan       []RegEntry

	methodSeq int
}

// NewClassContext prepares the emission context for one class.
func NewClassContext(cls *jvm.Class, classID int, cfg Config) *ClassContext {
	return &ClassContext{
		Class:        cls,
		ClassID:      classID,
		Cfg:          cfg,
		classIdx:     make(map[string]int),
		methodIdx:    make(map[memberKey]int),
		fieldIdx:     make(map[memberKey]int),
		stringIdx:    make(map[string]int),
		hidden:       mapset.NewSet(),
		clinitForced: mapset.NewSet(),
	}
}

// classCache interns a referenced class and returns its slot index.
func (c *ClassContext) classCache(name string) int {
	if i, ok := c.classIdx[name]; ok {
		return i
	}
	i := len(c.classNames)
	c.classNames = append(c.classNames, name)
	c.classIdx[name] = i
	return i
}

// methodCache interns a method reference; static references also force the
// owner's <clinit>.
func (c *ClassContext) methodCache(owner, name, desc string, static bool) int {
	k := memberKey{owner, name, desc, static}
	if i, ok := c.methodIdx[k]; ok {
		return i
	}
	slot := c.classCache(owner)
	if static {
		c.clinitForced.Add(slot)
	}
	i := len(c.methods)
	c.methods = append(c.methods, CachedMethodInfo{
		Owner: owner, Name: name, Desc: desc, Static: static, ClassCache: slot,
	})
	c.methodIdx[k] = i
	return i
}

// fieldCache interns a field reference with the same clinit discipline.
func (c *ClassContext) fieldCache(owner, name, desc string, static bool) int {
	k := memberKey{owner, name, desc, static}
	if i, ok := c.fieldIdx[k]; ok {
		return i
	}
	slot := c.classCache(owner)
	if static {
		c.clinitForced.Add(slot)
	}
	i := len(c.fields)
	c.fields = append(c.fields, CachedFieldInfo{
		Owner: owner, Name: name, Desc: desc, Static: static, ClassCache: slot,
	})
	c.fieldIdx[k] = i
	return i
}

// internString interns a string constant for the registration routine to
// pre-resolve as a global reference.
func (c *ClassContext) internString(s string) int {
	if i, ok := c.stringIdx[s]; ok {
		return i
	}
	i := len(c.stringPool)
	c.stringPool = append(c.stringPool, s)
	c.stringIdx[s] = i
	return i
}

// AddHiddenMethod registers an emitted helper under a foreign host class.
// Duplicate (host, name, desc) bindings are ignored; the registration plan
// installs each hidden method once.
func (c *ClassContext) AddHiddenMethod(host, javaName, javaDesc, cxxName string) {
	key := host + "." + javaName + javaDesc
	if c.hidden.Contains(key) {
		return
	}
	c.hidden.Add(key)
	c.classCache(host)
	c.Plan = append(c.Plan, RegEntry{
		JavaName: javaName, JavaDesc: javaDesc, CxxName: cxxName, HiddenOwner: host,
	})
}

// Decl returns the accumulated declaration buffer.
func (c *ClassContext) Decl() string { return c.decl.String() }

// Def returns the accumulated definition buffer.
func (c *ClassContext) Def() string { return c.def.String() }

// ReferencedClasses exposes the interned class slots in first-use order.
func (c *ClassContext) ReferencedClasses() []string { return c.classNames }

// Methods exposes the interned method slots.
func (c *ClassContext) Methods() []CachedMethodInfo { return c.methods }

// Fields exposes the interned field slots.
func (c *ClassContext) Fields() []CachedFieldInfo { return c.fields }

// StringPool exposes interned string constants.
func (c *ClassContext) StringPool() []string { return c.stringPool }

// ClinitForced reports whether a class slot requires forced initialisation.
func (c *ClassContext) ClinitForced(slot int) bool {
	return c.clinitForced.Contains(slot)
}

func (c *ClassContext) nextMethodID() int {
	c.methodSeq++
	return c.methodSeq - 1
}

func (c *ClassContext) declf(format string, args ...interface{}) {
	fmt.Fprintf(&c.decl, format, args...)
}

func (c *ClassContext) deff(format string, args ...interface{}) {
	fmt.Fprintf(&c.def, format, args...)
}
