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

// Package compiler drives the protection pipeline: it selects methods by
// allow/deny globs, lowers selected methods to native bodies (micro-VM or
// interop state machine), flattens the methods that stay in Java, and
// re-verifies every rewritten method before it is allowed into the output.
package compiler

import (
	"fmt"
	"strings"

	"github.com/shroudlabs/go-shroud/flow"
)

// Options is the configuration surface of one protection run.
type Options struct {
	// Virtualization lowers translatable methods onto the micro-VM backend.
	Virtualization bool
	// VMJit is passed to the native generator, which does not read it; no
	// trace JIT is generated.
	VMJit bool
	// NativeFlatten applies encoded-state dispatch inside generated C++.
	NativeFlatten bool
	// Strength selects the Java flattener profile.
	Strength flow.Strength
	// FlattenJava applies the control-flow flattener to methods kept in Java.
	FlattenJava bool

	// Allowlist and Denylist are class-or-method globs over
	// "pkg/Class.method(desc)". Deny wins; an empty allowlist admits all.
	Allowlist []string
	Denylist  []string
}

// ParseStrength maps a configuration string to a flattener strength.
func ParseStrength(s string) (flow.Strength, error) {
	switch strings.ToLower(s) {
	case "low", "":
		return flow.StrengthLow, nil
	case "medium":
		return flow.StrengthMedium, nil
	case "high":
		return flow.StrengthHigh, nil
	}
	return flow.StrengthLow, fmt.Errorf("compiler: unknown flattener strength %q", s)
}

// Matcher evaluates the selection globs.
type Matcher struct {
	allow []string
	deny  []string
}

// NewMatcher builds a matcher from the option lists.
func NewMatcher(opts *Options) *Matcher {
	return &Matcher{allow: opts.Allowlist, deny: opts.Denylist}
}

// Selects reports whether the method identified by owner, name and desc is
// chosen for protection. Globs match either the bare class name or the full
// "class.method(desc)" form; '*' crosses package separators.
func (m *Matcher) Selects(owner, name, desc string) bool {
	full := owner + "." + name + desc
	for _, pat := range m.deny {
		if globMatch(pat, owner) || globMatch(pat, full) {
			return false
		}
	}
	if len(m.allow) == 0 {
		return true
	}
	for _, pat := range m.allow {
		if globMatch(pat, owner) || globMatch(pat, full) {
			return true
		}
	}
	return false
}

// globMatch implements '*' (any run, including separators) and '?' (any one
// character). Class-name globs see '/' as an ordinary character, matching
// how selection lists are written against internal names.
func globMatch(pattern, s string) bool {
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '?' || pattern[pi] == s[si]):
			pi++
			si++
		case pi < len(pattern) && pattern[pi] == '*':
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}
