// Copyright 2026 The checkcaps Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package checkcaps performs static capability (lock-discipline) analysis.
//
// A capability is a permission that code must hold to access guarded data or
// call guarded functions; lock types are the common case. The analyzer
// tracks, per control-flow path, the state of every reachable capability
// instance (not held, held-shared, held-exclusive) and verifies that every
// function's declared contract holds on every path, including early returns
// and deferred calls.
//
// Contracts are declared with comment annotations:
//
//	+checkcaps:g            must hold g exclusively on entry (and exit)
//	+checkcapsshared:g      must hold g at least shared on entry (and exit)
//	+checkcapsexclude:g     must not hold g in any mode on entry
//	+checkcapsexcludewrite:g  must not hold g exclusively on entry
//	+checkcapsacquire:g     acquires g exclusively; held on return
//	+checkcapsacquireshared:g  acquires g shared; held on return
//	+checkcapsrelease:g     releases an exclusive hold of g
//	+checkcapsreleaseshared:g  releases a shared hold of g
//	+checkcapstry:g         conditionally acquires g exclusively; held only
//	                        on paths where the boolean result is true
//	+checkcapstryshared:g   conditional shared acquisition
//	+checkcapsdowngrade:g   enters exclusive, returns with a shared hold
//	+checkcapsalias:a=b     a aliases an existing guard b (returns-capability
//	                        and accessor patterns)
//
// On struct fields and globals:
//
//	+checkcaps:g            the data is guarded by g
//	+checkcapsderef:g       the data the pointer points to is guarded by g
//
// Escape hatches:
//
//	+checkcapsignore        suppress analysis for a function, field or line
//	+checkcapsforce         force an acquisition the analyzer cannot see
//	+checkcapsfail          the line is an expected failure (test corpora)
//
// Guard names resolve against receiver and parameters ("rw.mu"), return
// values (for acquire-style annotations) and package-level variables. A
// guard must be a lock-shaped type (Mutex, RWMutex, sync.Locker), a type
// embedding cap.Cap, or a cap.Token. Shared annotations require a guard that
// can be held shared.
//
// Calls into the runtime vocabulary (package cap: Acquire, AcquireShared,
// TryAcquire, TryAcquireShared, Release, ReleaseShared, Assert, AssertShared,
// Unsafe, UnsafeDo) and the method sets of sync.Mutex and sync.RWMutex
// (Lock, RLock, TryLock, TryRLock, Unlock, RUnlock, DowngradeLock) are
// recognized directly.
package checkcaps

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"
)

// Analyzer is the capability analysis pass.
var Analyzer = &analysis.Analyzer{
	Name:      "checkcaps",
	Doc:       "checks capability preconditions, acquisition and guarded data access",
	Run:       run,
	Requires:  []*analysis.Analyzer{buildssa.Analyzer},
	FactTypes: []analysis.Fact{(*guardFacts)(nil), (*lockFunctionFacts)(nil)},
}

// degradeShared maps every shared annotation and operation to its exclusive
// counterpart. This over-constrains (never under-constrains) programs for
// backends that cannot track shared state separately.
var degradeShared = false

func init() {
	Analyzer.Flags.BoolVar(&degradeShared, "degradeshared", false, "treat shared capability state as exclusive")
}

// exclusiveMode applies the degraded-backend rule to an annotation's or
// operation's exclusivity.
func exclusiveMode(exclusive bool) bool {
	if degradeShared {
		return true
	}
	return exclusive
}

// passContext is the per-package analysis context.
type passContext struct {
	pass       *analysis.Pass
	failures   map[positionKey]*failData
	exemptions map[positionKey]struct{}
	forced     map[positionKey]struct{}
	functions  map[*ssa.Function]struct{}
}

func run(pass *analysis.Pass) (any, error) {
	pc := &passContext{
		pass:       pass,
		failures:   make(map[positionKey]*failData),
		exemptions: make(map[positionKey]struct{}),
		forced:     make(map[positionKey]struct{}),
		functions:  make(map[*ssa.Function]struct{}),
	}

	// Find all line-level failure markers and exemptions first, so that
	// fact extraction below can already honor them.
	pc.extractLineFailures()

	// Extract facts: guards on struct fields and globals, contracts on
	// functions.
	for _, f := range pass.Files {
		for _, decl := range f.Decls {
			switch d := decl.(type) {
			case *ast.GenDecl:
				switch d.Tok {
				case token.TYPE:
					for _, spec := range d.Specs {
						ts, ok := spec.(*ast.TypeSpec)
						if !ok {
							continue
						}
						ss, ok := ts.Type.(*ast.StructType)
						if !ok {
							continue
						}
						typ := pass.TypesInfo.TypeOf(ts.Name)
						if typ == nil {
							continue
						}
						structType, ok := typ.Underlying().(*types.Struct)
						if !ok {
							continue
						}
						pc.structGuardFacts(structType, ss)
					}
				case token.VAR:
					for _, spec := range d.Specs {
						if vs, ok := spec.(*ast.ValueSpec); ok {
							pc.globalGuardFacts(d, vs)
						}
					}
				}
			case *ast.FuncDecl:
				pc.functionFacts(d)
			}
		}
	}

	// Check every source function against its contract. Named functions
	// go first: they analyze the anonymous functions they invoke or hand
	// to the escape hatch, and those must not be re-analyzed standalone.
	state := pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)
	check := func(fn *ssa.Function) {
		var lff lockFunctionFacts
		if obj := fn.Object(); obj != nil {
			pc.importLockFunctionFacts(obj.(*types.Func), &lff)
		}
		pc.checkFunction(nil, fn, &lff, nil, false /* force */)
	}
	for _, fn := range state.SrcFuncs {
		if fn.Parent() == nil {
			check(fn)
		}
	}
	for _, fn := range state.SrcFuncs {
		if fn.Parent() != nil {
			check(fn)
		}
	}

	// Report any expected failures that did not materialize.
	pc.checkFailures()
	return nil, nil
}
