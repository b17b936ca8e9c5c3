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

package mvm

import "math"

// PoolTag discriminates constant-pool entries.
type PoolTag uint8

const (
	PoolInteger PoolTag = iota
	PoolLong
	PoolFloat
	PoolDouble
	PoolString
	PoolClass
)

// PoolEntry is one interned constant. Floats and doubles are stored by bit
// pattern so that equality is structural (NaN payloads intern cleanly).
type PoolEntry struct {
	Tag  PoolTag
	Bits int64  // PoolInteger, PoolLong, PoolFloat, PoolDouble
	Str  string // PoolString (value), PoolClass (internal name)
}

// Float returns the float64 view of a PoolFloat/PoolDouble entry.
func (e PoolEntry) Float() float64 {
	if e.Tag == PoolFloat {
		return float64(math.Float32frombits(uint32(e.Bits)))
	}
	return math.Float64frombits(uint64(e.Bits))
}

// MemberRef is one interned field or method reference.
type MemberRef struct {
	Owner  string
	Name   string
	Desc   string
	Static bool
}

// BootstrapRef captures an invokedynamic call site: the dynamic name/desc
// plus the bootstrap method that materialises it.
type BootstrapRef struct {
	Name      string
	Desc      string
	BootOwner string
	BootName  string
	BootDesc  string
}

// TableSwitch is a dense-switch record. Targets are instruction indices, one
// per key in [Low, High].
type TableSwitch struct {
	Low     int32
	High    int32
	Default int32
	Targets []int32
}

// LookupSwitch is a sparse-switch record. Keys are strictly increasing and
// aligned with Targets.
type LookupSwitch struct {
	Keys    []int32
	Targets []int32
	Default int32
}

// MultiArray describes one MULTIANEWARRAY site.
type MultiArray struct {
	Desc string
	Dims int32
}

// TryRegion is one exception-handler range over instruction indices.
// Start is inclusive, End exclusive. Type is the internal name of the caught
// class, or "" for catch-all.
type TryRegion struct {
	Start   int32
	End     int32
	Handler int32
	Type    string
}

// Program is a translated method: the dense instruction stream plus the side
// tables its operands index. Table indices are assigned in first-encounter
// order, so translation is deterministic.
type Program struct {
	Code       []Inst
	Pool       []PoolEntry
	Fields     []MemberRef
	Methods    []MemberRef
	Bootstraps []BootstrapRef
	Classes    []string
	TableSw    []TableSwitch
	LookupSw   []LookupSwitch
	MultiArr   []MultiArray
	Handlers   []TryRegion

	MaxLocals int
	MaxStack  int

	poolIdx   map[PoolEntry]int
	fieldIdx  map[MemberRef]int
	methodIdx map[MemberRef]int
	classIdx  map[string]int
	multiIdx  map[MultiArray]int
}

// NewProgram returns an empty program ready for interning.
func NewProgram() *Program {
	return &Program{
		poolIdx:   make(map[PoolEntry]int),
		fieldIdx:  make(map[MemberRef]int),
		methodIdx: make(map[MemberRef]int),
		classIdx:  make(map[string]int),
		multiIdx:  make(map[MultiArray]int),
	}
}

// InternConst interns a pool entry and returns its stable index.
func (p *Program) InternConst(e PoolEntry) int {
	if i, ok := p.poolIdx[e]; ok {
		return i
	}
	i := len(p.Pool)
	p.Pool = append(p.Pool, e)
	p.poolIdx[e] = i
	return i
}

// InternInt interns an integer constant.
func (p *Program) InternInt(v int32) int {
	return p.InternConst(PoolEntry{Tag: PoolInteger, Bits: int64(v)})
}

// InternLong interns a long constant.
func (p *Program) InternLong(v int64) int {
	return p.InternConst(PoolEntry{Tag: PoolLong, Bits: v})
}

// InternFloat interns a float constant by bit pattern.
func (p *Program) InternFloat(v float32) int {
	return p.InternConst(PoolEntry{Tag: PoolFloat, Bits: int64(math.Float32bits(v))})
}

// InternDouble interns a double constant by bit pattern.
func (p *Program) InternDouble(v float64) int {
	return p.InternConst(PoolEntry{Tag: PoolDouble, Bits: int64(math.Float64bits(v))})
}

// InternString interns a string constant.
func (p *Program) InternString(s string) int {
	return p.InternConst(PoolEntry{Tag: PoolString, Str: s})
}

// InternClassConst interns a class-literal constant.
func (p *Program) InternClassConst(name string) int {
	return p.InternConst(PoolEntry{Tag: PoolClass, Str: name})
}

// InternField interns a field reference.
func (p *Program) InternField(ref MemberRef) int {
	if i, ok := p.fieldIdx[ref]; ok {
		return i
	}
	i := len(p.Fields)
	p.Fields = append(p.Fields, ref)
	p.fieldIdx[ref] = i
	return i
}

// InternMethod interns a method reference.
func (p *Program) InternMethod(ref MemberRef) int {
	if i, ok := p.methodIdx[ref]; ok {
		return i
	}
	i := len(p.Methods)
	p.Methods = append(p.Methods, ref)
	p.methodIdx[ref] = i
	return i
}

// InternClass interns a class internal name.
func (p *Program) InternClass(name string) int {
	if i, ok := p.classIdx[name]; ok {
		return i
	}
	i := len(p.Classes)
	p.Classes = append(p.Classes, name)
	p.classIdx[name] = i
	return i
}

// InternMulti interns a multi-array record.
func (p *Program) InternMulti(rec MultiArray) int {
	if i, ok := p.multiIdx[rec]; ok {
		return i
	}
	i := len(p.MultiArr)
	p.MultiArr = append(p.MultiArr, rec)
	p.multiIdx[rec] = i
	return i
}

// AddBootstrap appends an invokedynamic record. Call sites are positional,
// not deduplicated: two sites with identical shapes are still distinct.
func (p *Program) AddBootstrap(rec BootstrapRef) int {
	p.Bootstraps = append(p.Bootstraps, rec)
	return len(p.Bootstraps) - 1
}

// AddTableSwitch appends a table-switch record.
func (p *Program) AddTableSwitch(rec TableSwitch) int {
	p.TableSw = append(p.TableSw, rec)
	return len(p.TableSw) - 1
}

// AddLookupSwitch appends a lookup-switch record.
func (p *Program) AddLookupSwitch(rec LookupSwitch) int {
	p.LookupSw = append(p.LookupSw, rec)
	return len(p.LookupSw) - 1
}

// AddHandler appends a try-region record.
func (p *Program) AddHandler(rec TryRegion) int {
	p.Handlers = append(p.Handlers, rec)
	return len(p.Handlers) - 1
}
