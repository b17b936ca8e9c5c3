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

package compiler

import (
	"crypto/rand"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shroudlabs/go-shroud/flow"
	"github.com/shroudlabs/go-shroud/jvm"
	"github.com/shroudlabs/go-shroud/log"
	"github.com/shroudlabs/go-shroud/mvm"
	"github.com/shroudlabs/go-shroud/nativegen"
	"github.com/shroudlabs/go-shroud/translate"
)

// ClassResult is the per-class outcome of a run.
type ClassResult struct {
	Artifacts *nativegen.ClassArtifacts
	Lowered   []string // methods replaced by native bodies
	VMBacked  []string // subset of Lowered on the micro-VM backend
	Flattened []string // methods flattened in Java
	Kept      []string // methods left untouched
	Errors    []string // per-method recoverable failures
}

// BuildResult aggregates a whole run.
type BuildResult struct {
	Classes  []*ClassResult
	Central  string
	Manifest *Manifest
}

// Compiler runs the protection pipeline over a class stream.
type Compiler struct {
	opts    *Options
	matcher *Matcher
	key     []byte
	logger  log.Logger
}

// New prepares a compiler. The per-build key obfuscating embedded micro-VM
// images is drawn fresh; Key exposes it for the manifest.
func New(opts *Options) (*Compiler, error) {
	key := make([]byte, mvm.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("compiler: drawing build key: %w", err)
	}
	return &Compiler{
		opts:    opts,
		matcher: NewMatcher(opts),
		key:     key,
		logger:  log.New("module", "compiler"),
	}, nil
}

// Key returns the per-build obfuscation key.
func (c *Compiler) Key() []byte { return c.key }

// Run processes all classes, in parallel up to GOMAXPROCS. Every class owns
// a private generation context; nothing is shared between class workers but
// the immutable configuration and the build key.
func (c *Compiler) Run(classes []*jvm.Class) (*BuildResult, error) {
	results := make([]*ClassResult, len(classes))

	var g errgroup.Group
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var mu sync.Mutex
	for i, cls := range classes {
		i, cls := i, cls
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()
			res, err := c.processClass(cls, i)
			if err != nil {
				return err
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var arts []*nativegen.ClassArtifacts
	for _, r := range results {
		arts = append(arts, r.Artifacts)
	}
	return &BuildResult{
		Classes:  results,
		Central:  nativegen.WriteBuild(arts),
		Manifest: buildManifest(c, results),
	}, nil
}

func (c *Compiler) genConfig() nativegen.Config {
	return nativegen.Config{
		Virtualization: c.opts.Virtualization,
		VMJit:          c.opts.VMJit,
		NativeFlatten:  c.opts.NativeFlatten,
		Strength:       c.opts.Strength,
		BuildKey:       c.key,
	}
}

// processClass runs the whole pipeline for one class.
func (c *Compiler) processClass(cls *jvm.Class, classID int) (*ClassResult, error) {
	res := &ClassResult{}
	ctx := nativegen.NewClassContext(cls, classID, c.genConfig())
	logger := c.logger.New("class", cls.Name)

	for _, m := range cls.Methods {
		ident := m.Name + m.Desc
		switch {
		case m.Access&(jvm.AccAbstract|jvm.AccNative) != 0 || len(m.Code) == 0:
			res.Kept = append(res.Kept, ident)
		case m.IsInitializer() || !c.matcher.Selects(cls.Name, m.Name, m.Desc):
			c.keepInJava(cls, m, res, logger)
		default:
			c.lowerToNative(ctx, cls, m, res, logger)
		}
	}

	res.Artifacts = nativegen.WriteClass(ctx)
	return res, nil
}

// lowerToNative replaces a selected method with a native trampoline. The
// translator decides between the two backends: a program means the micro-VM
// (when enabled), no program means the interop state machine. Failures are
// local: the method falls back to the Java path.
func (c *Compiler) lowerToNative(ctx *nativegen.ClassContext, cls *jvm.Class, m *jvm.Method, res *ClassResult, logger log.Logger) {
	ident := m.Name + m.Desc

	var prog *mvm.Program
	if c.opts.Virtualization {
		if p, ok := translate.Translate(m); ok {
			prog = p
		} else {
			logger.Debug("Method not virtualizable, using state machine", "method", ident)
		}
	}

	orig := snapshot(m)
	if _, err := ctx.EmitMethod(m, prog); err != nil {
		logger.Warn("Native emission failed, keeping method in Java", "method", ident, "err", err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ident, err))
		c.keepInJava(cls, m, res, logger)
		return
	}

	// The Java body becomes a bare native declaration bound at class load.
	m.Access |= jvm.AccNative
	m.Code = nil
	m.TryCatch = nil
	m.LocalVars = nil
	m.MaxStack = 0
	m.MaxLocals = 0

	if err := verifyWithRetry(m); err != nil {
		restore(m, orig)
		logger.Error("Trampoline failed verification, restoring original", "method", ident, "err", err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ident, err))
		res.Kept = append(res.Kept, ident)
		return
	}

	res.Lowered = append(res.Lowered, ident)
	if prog != nil {
		res.VMBacked = append(res.VMBacked, ident)
	}
}

// keepInJava flattens a surviving method when configured. Flattener errors
// are contained: the method stays as it was and the pipeline continues.
func (c *Compiler) keepInJava(cls *jvm.Class, m *jvm.Method, res *ClassResult, logger log.Logger) {
	ident := m.Name + m.Desc
	if !c.opts.FlattenJava || len(m.Code) == 0 {
		res.Kept = append(res.Kept, ident)
		return
	}
	orig := snapshot(m)
	if err := flow.Flatten(m, cls.Name, c.opts.Strength); err != nil {
		logger.Debug("Flattening skipped", "method", ident, "reason", err)
		res.Kept = append(res.Kept, ident)
		return
	}
	if err := verifyWithRetry(m); err != nil {
		restore(m, orig)
		logger.Error("Flattened method failed verification, restoring original", "method", ident, "err", err)
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ident, err))
		res.Kept = append(res.Kept, ident)
		return
	}
	res.Flattened = append(res.Flattened, ident)
}

// verifyWithRetry is the correctness gate: structural verification first,
// one frame-recompute recovery pass on failure, and a hard error when the
// method still does not verify.
func verifyWithRetry(m *jvm.Method) error {
	if len(m.Code) == 0 {
		return nil // native trampolines carry no code to verify
	}
	err := jvm.Verify(m)
	if err == nil {
		return nil
	}
	if rerr := jvm.RecomputeFrames(m); rerr != nil {
		return fmt.Errorf("verify: %v (frame recompute: %v)", err, rerr)
	}
	if err := jvm.Verify(m); err != nil {
		return fmt.Errorf("verify after frame recompute: %w", err)
	}
	return nil
}

// snapshot captures a method's mutable fields. The rewriting passes replace
// slices rather than mutating them in place, so a struct copy restores the
// method exactly.
func snapshot(m *jvm.Method) jvm.Method { return *m }

func restore(m *jvm.Method, orig jvm.Method) { *m = orig }
