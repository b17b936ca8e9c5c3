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

import "fmt"

// MapEnv is a map-backed Env: static fields live in a map keyed by
// owner.name, instance fields on the Object itself, and invocations are
// routed to registered Go functions. It stands in for the JVM in translator
// soundness tests and in the interpreter's own tests.
type MapEnv struct {
	Statics map[string]Value
	Funcs   map[string]func(args []Value) (Value, *Object, error)

	// Supers maps a class internal name to its supertypes (classes and
	// interfaces) for IsInstance. Every class is an instance of itself and
	// of java/lang/Object.
	Supers map[string][]string

	// Clinit records classes whose first static access ran initialization,
	// in touch order.
	Clinit []string
	inited map[string]bool
}

// NewMapEnv returns an empty environment.
func NewMapEnv() *MapEnv {
	return &MapEnv{
		Statics: make(map[string]Value),
		Funcs:   make(map[string]func(args []Value) (Value, *Object, error)),
		Supers:  make(map[string][]string),
		inited:  make(map[string]bool),
	}
}

func memberKey(ref MemberRef) string { return ref.Owner + "." + ref.Name + ref.Desc }

func (e *MapEnv) touch(class string) {
	if !e.inited[class] {
		e.inited[class] = true
		e.Clinit = append(e.Clinit, class)
	}
}

// GetStatic implements Env.
func (e *MapEnv) GetStatic(ref MemberRef) (Value, *Object, error) {
	e.touch(ref.Owner)
	return e.Statics[ref.Owner+"."+ref.Name], nil, nil
}

// PutStatic implements Env.
func (e *MapEnv) PutStatic(ref MemberRef, v Value) (*Object, error) {
	e.touch(ref.Owner)
	e.Statics[ref.Owner+"."+ref.Name] = v
	return nil, nil
}

// GetField implements Env.
func (e *MapEnv) GetField(obj *Object, ref MemberRef) (Value, *Object, error) {
	return obj.Fields[ref.Name], nil, nil
}

// PutField implements Env.
func (e *MapEnv) PutField(obj *Object, ref MemberRef, v Value) (*Object, error) {
	obj.Fields[ref.Name] = v
	return nil, nil
}

// Invoke implements Env by dispatching to a registered function. Unknown
// targets are an error: the test forgot to register a callee.
func (e *MapEnv) Invoke(kind Opcode, ref MemberRef, args []Value) (Value, *Object, error) {
	if ref.Static {
		e.touch(ref.Owner)
	}
	fn, ok := e.Funcs[memberKey(ref)]
	if !ok {
		return Value{}, nil, fmt.Errorf("mvm: no host function for %s", memberKey(ref))
	}
	return fn(args)
}

// InvokeDynamic implements Env; call sites register under name+desc.
func (e *MapEnv) InvokeDynamic(site BootstrapRef, args []Value) (Value, *Object, error) {
	fn, ok := e.Funcs[site.Name+site.Desc]
	if !ok {
		return Value{}, nil, fmt.Errorf("mvm: no host call site for %s%s", site.Name, site.Desc)
	}
	return fn(args)
}

// NewInstance implements Env.
func (e *MapEnv) NewInstance(class string) (*Object, *Object, error) {
	return NewInstance(class), nil, nil
}

// IsInstance implements Env using the declared supertype table.
func (e *MapEnv) IsInstance(obj *Object, class string) bool {
	if class == "java/lang/Object" || obj.Class == class {
		return true
	}
	seen := map[string]bool{}
	work := []string{obj.Class}
	for len(work) > 0 {
		c := work[len(work)-1]
		work = work[:len(work)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		for _, s := range e.Supers[c] {
			if s == class {
				return true
			}
			work = append(work, s)
		}
	}
	return false
}
