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

package checkcaps

import (
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
)

func resolveStruct(typ types.Type) (*types.Struct, bool) {
	structType, ok := typ.Underlying().(*types.Struct)
	if ok {
		return structType, true
	}
	ptrType, ok := typ.Underlying().(*types.Pointer)
	if ok {
		return resolveStruct(ptrType.Elem())
	}
	return nil, false
}

func findField(typ types.Type, field int) (types.Object, bool) {
	structType, ok := resolveStruct(typ)
	if !ok || field >= structType.NumFields() {
		return nil, false
	}
	return structType.Field(field), true
}

// almostInst is a generalization over ssa.Field, ssa.FieldAddr, ssa.Global.
type almostInst interface {
	Pos() token.Pos
	Referrers() *[]ssa.Instruction
}

// checkGuardedBy checks that the guards on the accessed data are held.
//
// The parameter isWrite indicates whether this data is used downstream for a
// write operation; writes require exclusive holds, reads admit shared ones.
//
// Note that this function is not called if lff.Ignore is true, since it
// cannot discover any local anonymous functions or closures.
func (pc *passContext) checkGuardedBy(inst almostInst, from ssa.Value, accessObj types.Object, gf *guardFacts, cs *capState, isWrite bool) {
	for guardName, fgr := range gf.GuardedBy {
		r := fgr.resolveField(pc, cs, from)
		if !r.valid() {
			// See below; this cannot be forced.
			pc.maybeFail(inst.Pos(), "capability %s cannot be resolved", guardName)
			continue
		}
		s, ok := cs.isHeld(r, isWrite)
		if ok {
			continue
		}
		if _, ok := pc.forced[pc.positionKey(inst.Pos())]; ok {
			// Mark this as held, since it has been forced. All forces
			// are treated as an exclusive hold.
			cs.acquire(r, true /* exclusive */)
			continue
		}
		pc.maybeFail(inst.Pos(), "invalid access, %s (%s) must be held when accessing %s (%s)", guardName, s, accessObj.Name(), cs.String())
	}
}

// checkDerefGuards checks the guards covering the data a pointer points to.
//
// The pointer value itself was already covered by checkGuardedBy; this is
// called only when the pointer loaded from the annotated field or global is
// actually dereferenced downstream.
func (pc *passContext) checkDerefGuards(inst almostInst, from ssa.Value, accessObj types.Object, gf *guardFacts, cs *capState, isWrite bool) {
	for guardName, fgr := range gf.DerefGuardedBy {
		r := fgr.resolveField(pc, cs, from)
		if !r.valid() {
			pc.maybeFail(inst.Pos(), "capability %s cannot be resolved", guardName)
			continue
		}
		s, ok := cs.isHeld(r, isWrite)
		if ok {
			continue
		}
		if _, ok := pc.forced[pc.positionKey(inst.Pos())]; ok {
			cs.acquire(r, true /* exclusive */)
			continue
		}
		pc.maybeFail(inst.Pos(), "invalid dereference, %s (%s) must be held when dereferencing %s (%s)", guardName, s, accessObj.Name(), cs.String())
	}
}

// pointerDerefs examines the uses of a pointer value and reports whether any
// use dereferences it, and whether any dereference is a write.
func pointerDerefs(v ssa.Value) (write, any bool) {
	refs := v.Referrers()
	if refs == nil {
		return false, false
	}
	for _, ref := range *refs {
		switch x := ref.(type) {
		case *ssa.UnOp:
			if x.Op == token.MUL && x.X == v {
				any = true
			}
		case *ssa.Store:
			if x.Addr == v {
				write, any = true, true
			}
		case *ssa.FieldAddr:
			if x.X == v {
				any = true
				write = write || isWrite(x)
			}
		case *ssa.Field:
			if x.X == v {
				any = true
			}
		case *ssa.IndexAddr:
			if x.X == v {
				any = true
				write = write || isWrite(x)
			}
		}
	}
	return write, any
}

// accessPointerDerefs finds the pointer loaded from an annotated field and
// reports on its dereferences. For an address access the pointer value is
// produced by an intervening load.
func accessPointerDerefs(inst almostInst) (write, any bool) {
	// A value access is the pointer itself.
	if x, ok := inst.(*ssa.Field); ok {
		return pointerDerefs(x)
	}
	refs := inst.Referrers()
	if refs == nil {
		return false, false
	}
	for _, ref := range *refs {
		if u, ok := ref.(*ssa.UnOp); ok && u.Op == token.MUL {
			w, a := pointerDerefs(u)
			write = write || w
			any = any || a
		}
	}
	return write, any
}

// checkFieldAccess checks the validity of a field access.
func (pc *passContext) checkFieldAccess(inst almostInst, structObj ssa.Value, field int, cs *capState, isWrite bool) {
	fieldObj, ok := findField(structObj.Type(), field)
	if !ok {
		return
	}
	var gf guardFacts
	pc.importGuardFacts(fieldObj, &gf)
	if gf.Ignore {
		return
	}
	pc.checkGuardedBy(inst, structObj, fieldObj, &gf, cs, isWrite)
	if len(gf.DerefGuardedBy) > 0 {
		if w, any := accessPointerDerefs(inst); any {
			pc.checkDerefGuards(inst, structObj, fieldObj, &gf, cs, w)
		}
	}
}

// globalAccess pins a guarded-global diagnostic to the instruction that
// touched the global; the global's own position is its declaration.
type globalAccess struct {
	g    *ssa.Global
	inst ssa.Instruction
}

func (ga *globalAccess) Pos() token.Pos                { return ga.inst.Pos() }
func (ga *globalAccess) Referrers() *[]ssa.Instruction { return ga.g.Referrers() }

// checkGlobalAccess checks the validity of a global access.
func (pc *passContext) checkGlobalAccess(inst ssa.Instruction, g *ssa.Global, cs *capState, isWrite bool) {
	var gf guardFacts
	pc.importGuardFacts(g.Object(), &gf)
	if gf.Ignore {
		return
	}
	pc.checkGuardedBy(&globalAccess{g: g, inst: inst}, g, g.Object(), &gf, cs, isWrite)
	if len(gf.DerefGuardedBy) > 0 {
		// Globals have no referrer lists, so the load must be found via
		// the instruction that consumed the global as an operand.
		if u, ok := inst.(*ssa.UnOp); ok && u.Op == token.MUL && u.X == g {
			if w, any := pointerDerefs(u); any {
				pc.checkDerefGuards(u, g, g.Object(), &gf, cs, w)
			}
		}
	}
}

func (pc *passContext) checkCall(call callCommon, lff *lockFunctionFacts, cs *capState) {
	// See: https://godoc.org/golang.org/x/tools/go/ssa#CallCommon
	//
	// "invoke" mode: Method is non-nil, and Value is the underlying value.
	if fn := call.Common().Method; fn != nil {
		var nlff lockFunctionFacts
		pc.importLockFunctionFacts(fn, &nlff)
		nlff.Ignore = nlff.Ignore || lff.Ignore // Inherit ignore.
		pc.checkFunctionCall(call, fn, &nlff, cs)
		return
	}

	// "call" mode: when Method is nil (!IsInvoke), a CallCommon represents
	// an ordinary function call of the value in Value, which may be a
	// *Builtin, a *Function or any other value of kind 'func'.
	switch fn := call.Common().Value.(type) {
	case *ssa.Function:
		nlff := lockFunctionFacts{
			Ignore: lff.Ignore, // Inherit ignore.
		}
		if obj := fn.Object(); obj != nil {
			pc.importLockFunctionFacts(obj.(*types.Func), &nlff)
			nlff.Ignore = nlff.Ignore || lff.Ignore // See above.
			pc.checkFunctionCall(call, obj.(*types.Func), &nlff, cs)
		} else {
			// Anonymous functions have no facts, and cannot be
			// annotated. We don't check for violations using the
			// function facts, since they cannot exist. Instead, we
			// do a fresh analysis using the current state.
			fncs := cs.fork()
			for i, arg := range call.Common().Args {
				fncs.store(fn.Params[i], arg)
			}
			pc.checkFunction(call, fn, &nlff, fncs, true /* force */)
		}
	case *ssa.MakeClosure:
		// Note that creating and then invoking closures locally is
		// allowed, but analysis of passing closures is done when
		// checking individual instructions.
		pc.checkClosure(call, fn, lff, cs)
	default:
		return
	}
}

// callBoolResult returns the ssa.Value carrying the boolean result of the
// call, extracting from a tuple if needed. It returns nil if there is no
// boolean result or it is unused.
func callBoolResult(call callCommon) ssa.Value {
	v := call.Value()
	if v == nil {
		return nil
	}
	typ := v.Type()
	if tuple, ok := typ.(*types.Tuple); ok {
		for i := 0; i < tuple.Len(); i++ {
			b, ok := tuple.At(i).Type().Underlying().(*types.Basic)
			if !ok || b.Info()&types.IsBoolean == 0 {
				continue
			}
			if refs := v.Referrers(); refs != nil {
				for _, ref := range *refs {
					if x, ok := ref.(*ssa.Extract); ok && x.Tuple == v && x.Index == i {
						return x
					}
				}
			}
			return nil
		}
		return nil
	}
	if b, ok := typ.Underlying().(*types.Basic); ok && b.Info()&types.IsBoolean != 0 {
		return v
	}
	return nil
}

// postFunctionCallUpdate updates all conditions.
func (pc *passContext) postFunctionCallUpdate(call callCommon, lff *lockFunctionFacts, cs *capState, aliases bool) {
	// Release all capabilities not still held.
	for fieldName, fg := range lff.HeldOnEntry {
		if _, ok := lff.HeldOnExit[fieldName]; ok {
			continue
		}
		if fg.IsAlias && !aliases {
			continue
		}
		r := fg.Resolver.resolveCall(pc, cs, call.Common().Args, call.Value())
		if !r.valid() {
			// See above: this cannot be forced.
			pc.maybeFail(call.Pos(), "capability %s cannot be resolved", fieldName)
			continue
		}
		if s, ok := cs.release(r, fg.Exclusive); !ok && !lff.Ignore {
			if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok && !lff.Ignore {
				pc.maybeFail(call.Pos(), "attempt to release %s (%s), but not held (%s)", fieldName, s, cs.String())
			}
		}
	}

	// Update all held capabilities if acquired.
	for fieldName, fg := range lff.HeldOnExit {
		if _, ok := lff.HeldOnEntry[fieldName]; ok {
			if fg.Downgrade {
				r := fg.Resolver.resolveCall(pc, cs, call.Common().Args, call.Value())
				if !r.valid() {
					pc.maybeFail(call.Pos(), "capability %s cannot be resolved", fieldName)
					continue
				}
				if s, ok := cs.downgrade(r); !ok && !lff.Ignore {
					if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok {
						pc.maybeFail(call.Pos(), "%s not held exclusively, cannot downgrade (%s)", s, cs.String())
					}
				}
			}
			continue
		}
		if fg.IsAlias && !aliases {
			continue
		}
		r := fg.Resolver.resolveCall(pc, cs, call.Common().Args, call.Value())
		if fg.Conditional {
			// Held only where the boolean result tests true; record a
			// pending acquisition decided at the branch.
			if cond := callBoolResult(call); cond != nil && r.valid() {
				cs.addPending(cond, r, fg.Exclusive)
			}
			continue
		}
		if !r.valid() {
			// A return-value guard whose result is unused.
			continue
		}
		// Acquire the capability per the annotation.
		if s, ok := cs.acquire(r, fg.Exclusive); !ok && !lff.Ignore {
			if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok && !lff.Ignore {
				pc.maybeFail(call.Pos(), "attempt to acquire %s (%s), but already held (%s)", fieldName, s, cs.String())
			}
		}
	}
}

// exclusiveStr returns a string describing hold mode requirements.
func exclusiveStr(exclusive bool) string {
	if exclusive {
		return "exclusively"
	}
	return "non-exclusively"
}

// checkFunctionCall checks preconditions for function calls, and tracks the
// capability state by recording relevant calls to sync and cap functions.
func (pc *passContext) checkFunctionCall(call callCommon, fn *types.Func, lff *lockFunctionFacts, cs *capState) {
	// Extract the "receiver" properly.
	var args []ssa.Value
	if call.Common().Method != nil {
		// This is an interface dispatch for sync.Locker.
		args = append([]ssa.Value{call.Common().Value}, call.Common().Args...)
	} else {
		// This matches the signature for the relevant
		// sync.Lock/sync.Unlock functions below.
		args = call.Common().Args
	}

	// Check that no forbidden capabilities are held. The caller's state is
	// not changed; these are pure preconditions.
	for fieldName, fg := range lff.ExcludedOnEntry {
		r := fg.Resolver.resolveCall(pc, cs, args, call.Value())
		if !r.valid() {
			continue
		}
		if s, ok := cs.isHeld(r, fg.Exclusive); ok {
			if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok && !lff.Ignore {
				pc.maybeFail(call.Pos(), "must not hold %s %s (%s) to call %s (%s)", fieldName, exclusiveStr(fg.Exclusive), s, fn.Name(), cs.String())
			}
		}
	}

	// Check all capabilities required are held. Note that this explicitly
	// does not include aliases, hence false being passed below.
	for fieldName, fg := range lff.HeldOnEntry {
		if fg.IsAlias {
			continue
		}
		r := fg.Resolver.resolveCall(pc, cs, args, call.Value())
		if s, ok := cs.isHeld(r, fg.Exclusive); !ok {
			if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok && !lff.Ignore {
				pc.maybeFail(call.Pos(), "must hold %s %s (%s) to call %s, but not held (%s)", fieldName, exclusiveStr(fg.Exclusive), s, fn.Name(), cs.String())
			} else {
				// Force the capability to be acquired.
				cs.acquire(r, fg.Exclusive)
			}
		}
	}

	// Update all capability state accordingly.
	pc.postFunctionCallUpdate(call, lff, cs, false /* aliases */)

	// Check if it's a method dispatch for something in the sync package.
	// See: https://godoc.org/golang.org/x/tools/go/ssa#Function
	if fn.Pkg() != nil && fn.Pkg().Name() == "sync" && len(args) > 0 {
		rv := makeResolvedValue(args[0], nil)
		isExclusive := false
		switch fn.Name() {
		case "Lock":
			isExclusive = true
			fallthrough
		case "RLock":
			if s, ok := cs.acquire(rv, exclusiveMode(isExclusive)); !ok && !lff.Ignore {
				if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok {
					// Double acquiring a capability already held.
					pc.maybeFail(call.Pos(), "%s already acquired (%s)", s, cs.String())
				}
			}
		case "Unlock":
			isExclusive = true
			fallthrough
		case "RUnlock":
			if s, ok := cs.release(rv, exclusiveMode(isExclusive)); !ok && !lff.Ignore {
				if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok {
					// Releasing something not held in that mode.
					pc.maybeFail(call.Pos(), "%s not held or held differently (%s)", s, cs.String())
				}
			}
		case "TryLock":
			isExclusive = true
			fallthrough
		case "TryRLock":
			if cond := callBoolResult(call); cond != nil {
				cs.addPending(cond, rv, exclusiveMode(isExclusive))
			}
		case "DowngradeLock":
			if s, ok := cs.downgrade(rv); !ok {
				if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok && !lff.Ignore {
					// Downgrading something that may not be downgraded.
					pc.maybeFail(call.Pos(), "%s not held exclusively, cannot downgrade (%s)", s, cs.String())
				}
			}
		}
	}

	// Recognize the cap helper family. These are generic, so the object
	// observed here is the instantiation; matching is by name.
	if fn.Pkg() != nil && fn.Pkg().Name() == "cap" && len(args) > 0 {
		rv := makeResolvedValue(args[0], nil)
		isExclusive := false
		switch fn.Name() {
		case "Acquire":
			isExclusive = true
			fallthrough
		case "AcquireShared":
			if s, ok := cs.acquire(rv, exclusiveMode(isExclusive)); !ok && !lff.Ignore {
				if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok {
					pc.maybeFail(call.Pos(), "%s already acquired (%s)", s, cs.String())
				}
			}
		case "Release":
			isExclusive = true
			fallthrough
		case "ReleaseShared":
			if s, ok := cs.release(rv, exclusiveMode(isExclusive)); !ok && !lff.Ignore {
				if _, ok := pc.forced[pc.positionKey(call.Pos())]; !ok {
					pc.maybeFail(call.Pos(), "%s not held or held differently (%s)", s, cs.String())
				}
			}
		case "TryAcquire":
			isExclusive = true
			fallthrough
		case "TryAcquireShared":
			if cond := callBoolResult(call); cond != nil {
				cs.addPending(cond, rv, exclusiveMode(isExclusive))
			}
		case "Assert":
			isExclusive = true
			fallthrough
		case "AssertShared":
			// A static assertion: the capability is treated as held
			// from here on, without a matching release obligation.
			if _, ok := cs.isHeld(rv, exclusiveMode(isExclusive)); !ok {
				cs.acquire(rv, exclusiveMode(isExclusive))
			}
		case "Unsafe", "UnsafeDo":
			// The escape hatch: analyze the wrapped function with all
			// checking suppressed.
			nlff := lockFunctionFacts{
				Ignore: true,
			}
			switch f := args[0].(type) {
			case *ssa.MakeClosure:
				clcs := cs.fork()
				clfn := f.Fn.(*ssa.Function)
				for i, fv := range clfn.FreeVars {
					clcs.store(fv, f.Bindings[i])
				}
				pc.checkFunction(call, clfn, &nlff, clcs, true /* force */)
			case *ssa.Function:
				pc.checkFunction(call, f, &nlff, nil, true /* force */)
			}
		}
	}
}

// checkClosure forks the capability state, and creates a binding for the
// FreeVars of the closure. This allows the analysis to resolve the closure.
func (pc *passContext) checkClosure(call callCommon, fn *ssa.MakeClosure, lff *lockFunctionFacts, cs *capState) {
	clcs := cs.fork()
	clfn := fn.Fn.(*ssa.Function)
	for i, fv := range clfn.FreeVars {
		clcs.store(fv, fn.Bindings[i])
	}

	// Note that this is *not* a call to check function call, which checks
	// against the function preconditions. Instead, this does a fresh
	// analysis of the function from source code with a different state.
	nlff := lockFunctionFacts{
		Ignore: lff.Ignore, // Inherit ignore.
	}
	pc.checkFunction(call, clfn, &nlff, clcs, true /* force */)
}

// freshAlloc indicates that v has been allocated within the local scope.
// There is no capability checking done on freshly allocated objects.
func freshAlloc(v ssa.Value) bool {
	switch x := v.(type) {
	case *ssa.Alloc:
		return true
	case *ssa.FieldAddr:
		return freshAlloc(x.X)
	case *ssa.Field:
		return freshAlloc(x.X)
	case *ssa.IndexAddr:
		return freshAlloc(x.X)
	case *ssa.Index:
		return freshAlloc(x.X)
	case *ssa.Convert:
		return freshAlloc(x.X)
	case *ssa.ChangeType:
		return freshAlloc(x.X)
	default:
		return false
	}
}

// isWrite indicates that this value is used as the addr field in a store.
//
// Note that this may still be used for a write. The return here is optimistic
// but sufficient for basic analysis.
func isWrite(v ssa.Value) bool {
	refs := v.Referrers()
	if refs == nil {
		return false
	}
	for _, ref := range *refs {
		if s, ok := ref.(*ssa.Store); ok && s.Addr == v {
			return true
		}
	}
	return false
}

// callCommon is an ssa.Value that also implements Common.
type callCommon interface {
	Pos() token.Pos
	Common() *ssa.CallCommon
	Value() *ssa.Call
}

// checkInstruction checks the legality of a single instruction based on the
// current capState.
func (pc *passContext) checkInstruction(inst ssa.Instruction, lff *lockFunctionFacts, cs *capState) (*ssa.Return, *capState) {
	// Check any globals consumed as operands for violations. The global
	// value is not itself an instruction.
	var stackLocal [16]*ssa.Value
	ops := inst.Operands(stackLocal[:])
	for _, v := range ops {
		if v == nil {
			continue
		}
		g, ok := (*v).(*ssa.Global)
		if !ok {
			continue
		}
		if lff.Ignore {
			continue
		}
		_, isWrite := inst.(*ssa.Store)
		pc.checkGlobalAccess(inst, g, cs, isWrite)
	}

	// Process the instruction.
	switch x := inst.(type) {
	case *ssa.Store:
		// Record that this value is holding this other value. This is
		// because at the beginning of each ssa execution, there is a
		// series of assignments of parameter values to alloc objects.
		// This allows us to trace these back to the original
		// parameters as aliases above.
		//
		// Note that this may overwrite an existing value in the
		// capability state, but this is intentional.
		cs.store(x.Addr, x.Val)
	case *ssa.Field:
		if !freshAlloc(x.X) && !lff.Ignore {
			pc.checkFieldAccess(x, x.X, x.Field, cs, false)
		}
	case *ssa.FieldAddr:
		if !freshAlloc(x.X) && !lff.Ignore {
			pc.checkFieldAccess(x, x.X, x.Field, cs, isWrite(x))
		}
	case *ssa.Call:
		pc.checkCall(x, lff, cs)
	case *ssa.Defer:
		cs.pushDefer(x)
	case *ssa.RunDefers:
		for d := cs.popDefer(); d != nil; d = cs.popDefer() {
			pc.checkCall(d, lff, cs)
		}
	case *ssa.MakeClosure:
		if refs := x.Referrers(); refs != nil {
			var (
				calls    int
				nonCalls int
			)
			for _, ref := range *refs {
				switch ref.(type) {
				case *ssa.Call, *ssa.Defer:
					// Analysis will be done on the call
					// itself subsequently, including the
					// capability state at the time of the
					// call.
					calls++
				default:
					// We need to analyze separately. Per
					// below, this means that we'll analyze
					// at closure construction time with
					// zero assumptions about when it will
					// be called.
					nonCalls++
				}
			}
			if calls > 0 && nonCalls == 0 {
				return nil, nil
			}
		}
		// Analyze the closure without bindings. This means that we
		// assume no capability facts or any existing state. Only
		// trivial closures are acceptable in this case.
		clfn := x.Fn.(*ssa.Function)
		nlff := lockFunctionFacts{
			Ignore: lff.Ignore, // Inherit ignore.
		}
		pc.checkFunction(nil, clfn, &nlff, nil, false /* force */)
	case *ssa.Return:
		return x, cs // Valid return state.
	}
	return nil, nil
}

// checkBasicBlock traverses the control flow graph starting at a set of given
// blocks and checks each instruction for allowed operations.
func (pc *passContext) checkBasicBlock(fn *ssa.Function, block *ssa.BasicBlock, lff *lockFunctionFacts, parent *capState, seen map[*ssa.BasicBlock]*capState, rg map[*ssa.BasicBlock]struct{}) *capState {
	// Check for cached results from entering this block from a *different*
	// execution path. Note that this is not the same path, which is
	// checked with the recursion guard below.
	if oldCS, ok := seen[block]; ok && oldCS.isCompatible(parent) {
		return nil
	}

	// Prevent recursion. If the capability state is constantly changing
	// and we are a recursive path, then there will never be a return
	// block.
	if rg == nil {
		rg = make(map[*ssa.BasicBlock]struct{})
	}
	if _, ok := rg[block]; ok {
		return nil
	}
	rg[block] = struct{}{}
	defer func() { delete(rg, block) }()

	// If the capability state is not compatible, then we need to do the
	// recursive analysis to ensure that it is still sane. For example, the
	// following is guaranteed to generate incompatible states:
	//
	//	if foo {
	//		mu.Lock()
	//	}
	//	other stuff ...
	//	if foo {
	//		mu.Unlock()
	//	}

	var (
		rv  *ssa.Return
		rcs *capState
	)

	// Analyze this block.
	seen[block] = parent
	cs := parent.fork()
	for _, inst := range block.Instrs {
		rv, rcs = pc.checkInstruction(inst, lff, cs)
		if rcs != nil {
			failed := false
			conditional := 0
			// Validate held capabilities.
			for fieldName, fg := range lff.HeldOnExit {
				if fg.Conditional {
					// Conditional acquisitions hold only on
					// success paths, so either state is
					// accepted at the return itself.
					conditional++
					continue
				}
				r := fg.Resolver.resolveStatic(pc, cs, fn, rv)
				if !r.valid() {
					// This cannot be forced, since we have no reference.
					pc.maybeFail(rv.Pos(), "capability %s cannot be resolved", fieldName)
					continue
				}
				if s, ok := rcs.isHeld(r, fg.Exclusive); !ok {
					if _, ok := pc.forced[pc.positionKey(rv.Pos())]; !ok && !lff.Ignore {
						pc.maybeFail(rv.Pos(), "capability %s (%s) not held %s (%s)", fieldName, s, exclusiveStr(fg.Exclusive), rcs.String())
						failed = true
					} else {
						// Force the capability to be acquired.
						rcs.acquire(r, fg.Exclusive)
					}
				}
			}
			// Check for other capabilities, but only if the above
			// didn't trip.
			if !failed && !lff.Ignore {
				if c := rcs.count(); c > len(lff.HeldOnExit) || c < len(lff.HeldOnExit)-conditional {
					pc.maybeFail(rv.Pos(), "return with unexpected capabilities held (%s)", rcs.String())
				}
			}
		}
	}

	// If the block ends in a branch on the outcome of a conditional
	// acquisition, the capability is held only on the success arm.
	var (
		condPA      pendingAcquire
		condNegated bool
		condOK      bool
	)
	if n := len(block.Instrs); n > 0 {
		if ifInst, ok := block.Instrs[n-1].(*ssa.If); ok {
			condPA, condNegated, condOK = cs.resolvePending(ifInst.Cond)
		}
	}

	// Analyze all successors.
	for i, succ := range block.Succs {
		// Collect possible return values, and make sure the capability
		// state aligns with any return value that we may have found
		// above. Note that checkBasicBlock will recursively analyze
		// the state to ensure that releases and acquisitions are
		// respected.
		scs := cs
		if condOK {
			// Succs[0] is the true branch. The acquisition succeeded
			// there, unless the condition was negated.
			if (i == 0) != condNegated {
				scs = cs.fork()
				scs.acquireNamed(condPA.name, condPA.object, condPA.exclusive)
			}
		}
		if pcs := pc.checkBasicBlock(fn, succ, lff, scs, seen, rg); pcs != nil {
			if rcs != nil && !rcs.isCompatible(pcs) {
				if _, ok := pc.forced[pc.positionKey(fn.Pos())]; !ok && !lff.Ignore {
					pc.maybeFail(fn.Pos(), "incompatible return states (first: %s, second: %s)", rcs.String(), pcs.String())
				}
			}
			rcs = pcs
		}
	}
	return rcs
}

// checkFunction checks a function invocation, typically starting with nil
// capState.
func (pc *passContext) checkFunction(call callCommon, fn *ssa.Function, lff *lockFunctionFacts, parent *capState, force bool) {
	defer func() {
		// Mark this function as checked. This is used by the top-level
		// loop to ensure that all anonymous functions are scanned, if
		// they are not explicitly invoked here. Note that this can
		// happen if the anonymous functions are e.g. passed only as
		// parameters or used to initialize some structure.
		pc.functions[fn] = struct{}{}
	}()
	if _, ok := pc.functions[fn]; !force && ok {
		// This function has already been analyzed at least once.
		// That's all we permit for each function, although this may
		// cause some anonymous functions to be analyzed in only one
		// context.
		return
	}

	// If no return value is provided, then synthesize one. This is used
	// below only to check against the preconditions, which may include
	// return values.
	if call == nil {
		call = &ssa.Call{Call: ssa.CallCommon{Value: fn}}
	}

	// Initialize the state with any preconditions that require
	// capabilities to be held for the method to be invoked. Note that in
	// the overwhelming majority of cases, parent will be nil. However, in
	// the case of closures and anonymous functions, we may start with a
	// non-nil state.
	//
	// Note that this will include all aliases, which are also released
	// appropriately below.
	cs := parent.fork()
	for fieldName, fg := range lff.HeldOnEntry {
		// The first is the method object itself so we skip that when
		// looking for receiver/function parameters.
		r := fg.Resolver.resolveStatic(pc, cs, fn, call.Value())
		if !r.valid() {
			// See above: this cannot be forced.
			pc.maybeFail(fn.Pos(), "capability %s cannot be resolved", fieldName)
			continue
		}
		if s, ok := cs.acquire(r, fg.Exclusive); !ok && !lff.Ignore {
			// This can only happen if the same value is declared
			// multiple times, and should be caught by the earlier
			// fact scanning. Keep it here as a sanity check.
			pc.maybeFail(fn.Pos(), "capability %s (%s) acquired multiple times or differently (%s)", fieldName, s, cs.String())
		}
	}

	// Scan the blocks.
	seen := make(map[*ssa.BasicBlock]*capState)
	if len(fn.Blocks) > 0 {
		pc.checkBasicBlock(fn, fn.Blocks[0], lff, cs, seen, nil)
	}

	// Scan the recover block.
	if fn.Recover != nil {
		pc.checkBasicBlock(fn, fn.Recover, lff, cs, seen, nil)
	}

	// Update all capability state accordingly. This will be called only if
	// we are doing inline analysis for e.g. an anonymous function.
	if call != nil && parent != nil {
		pc.postFunctionCallUpdate(call, lff, parent, true /* aliases */)
	}
}
