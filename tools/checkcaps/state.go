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
	"fmt"
	"go/token"
	"go/types"
	"strings"
	"sync/atomic"

	"golang.org/x/tools/go/ssa"
)

// capInfo describes a held capability.
type capInfo struct {
	exclusive bool
	object    types.Object
}

// pendingAcquire is a conditional acquisition whose outcome is decided by a
// boolean ssa.Value: the capability is held only on branches where that
// value is true.
type pendingAcquire struct {
	name      string
	object    types.Object
	exclusive bool
}

// capState tracks the capability state along one control-flow path: which
// capabilities are held and in which mode, value aliases, pending
// conditional acquisitions and the defer stack.
type capState struct {
	// held maps resolved capability names to the hold mode. Most of the
	// naming work is done by valueAndObject below, which decomposes
	// values into parameters, globals and field paths.
	held map[string]capInfo

	// pending maps boolean ssa.Values to undecided conditional
	// acquisitions.
	pending map[ssa.Value]pendingAcquire

	// stored stores values that have been stored in memory, bound to
	// FreeVars or passed as parameters.
	stored map[ssa.Value]ssa.Value

	// used is a temporary map used only by valueAndObject, preventing
	// multiple use of the same memory location during one resolution.
	used map[ssa.Value]struct{}

	// defers is the stack of defers that have been pushed.
	defers []*ssa.Defer

	// refs counts references on this structure; above one, modifications
	// copy-on-write.
	refs *int32
}

// newCapState makes a new capState.
func newCapState() *capState {
	refs := int32(1) // Not shared.
	return &capState{
		held:    make(map[string]capInfo),
		pending: make(map[ssa.Value]pendingAcquire),
		used:    make(map[ssa.Value]struct{}),
		stored:  make(map[ssa.Value]ssa.Value),
		refs:    &refs,
	}
}

// fork forks the state. Modifications after a fork copy the maps.
func (cs *capState) fork() *capState {
	if cs == nil {
		return newCapState()
	}
	atomic.AddInt32(cs.refs, 1)
	return &capState{
		held:    cs.held,
		pending: cs.pending,
		used:    make(map[ssa.Value]struct{}),
		stored:  cs.stored,
		defers:  cs.defers,
		refs:    cs.refs,
	}
}

// modify indicates that this state will be modified.
func (cs *capState) modify() {
	if atomic.LoadInt32(cs.refs) > 1 {
		held := make(map[string]capInfo, len(cs.held))
		for k, v := range cs.held {
			held[k] = v
		}
		cs.held = held

		pending := make(map[ssa.Value]pendingAcquire, len(cs.pending))
		for k, v := range cs.pending {
			pending[k] = v
		}
		cs.pending = pending

		stored := make(map[ssa.Value]ssa.Value, len(cs.stored))
		for k, v := range cs.stored {
			stored[k] = v
		}
		cs.stored = stored

		cs.used = make(map[ssa.Value]struct{})

		defers := make([]*ssa.Defer, len(cs.defers))
		copy(defers, cs.defers)
		cs.defers = defers

		atomic.AddInt32(cs.refs, -1)
		newRefs := int32(1) // Not shared.
		cs.refs = &newRefs
	}
}

// isHeld indicates whether the capability is held. A shared hold satisfies a
// shared requirement; only an exclusive hold satisfies an exclusive one.
//
// Precondition: rv must be valid.
func (cs *capState) isHeld(rv resolvedValue, exclusiveRequired bool) (string, bool) {
	if !rv.valid() {
		panic("invalid resolvedValue passed to isHeld")
	}
	s, _ := rv.valueAndObject(cs)
	info, ok := cs.held[s]
	if !ok {
		return s, false
	}
	if exclusiveRequired && !info.exclusive {
		return s, false
	}
	return s, true
}

// acquire marks the given capability held.
//
// If false is returned, the capability was already held in some mode: a
// double acquisition.
//
// Precondition: rv must be valid.
func (cs *capState) acquire(rv resolvedValue, exclusive bool) (string, bool) {
	if !rv.valid() {
		panic("invalid resolvedValue passed to acquire")
	}
	s, obj := rv.valueAndObject(cs)
	return s, cs.acquireNamed(s, obj, exclusive)
}

// acquireNamed marks an already-resolved capability held.
func (cs *capState) acquireNamed(s string, obj types.Object, exclusive bool) bool {
	if _, ok := cs.held[s]; ok {
		return false
	}
	cs.modify()
	cs.held[s] = capInfo{
		exclusive: exclusive,
		object:    obj,
	}
	return true
}

// release marks the given capability unheld.
//
// If false is returned, the capability was not held in the given mode: a
// release without a matching acquisition.
//
// Precondition: rv must be valid.
func (cs *capState) release(rv resolvedValue, exclusive bool) (string, bool) {
	if !rv.valid() {
		panic("invalid resolvedValue passed to release")
	}
	s, _ := rv.valueAndObject(cs)
	info, ok := cs.held[s]
	if !ok {
		return s, false
	}
	if info.exclusive != exclusive {
		return s, false
	}
	cs.modify()
	delete(cs.held, s)
	return s, true
}

// downgrade moves the given capability from an exclusive to a shared hold.
//
// If false is returned, the capability was not held exclusively.
//
// Precondition: rv must be valid.
func (cs *capState) downgrade(rv resolvedValue) (string, bool) {
	if !rv.valid() {
		panic("invalid resolvedValue passed to downgrade")
	}
	s, _ := rv.valueAndObject(cs)
	info, ok := cs.held[s]
	if !ok {
		return s, false
	}
	if !info.exclusive {
		return s, false
	}
	cs.modify()
	info.exclusive = false
	cs.held[s] = info // Downgraded.
	return s, true
}

// addPending registers a conditional acquisition keyed on cond.
func (cs *capState) addPending(cond ssa.Value, rv resolvedValue, exclusive bool) {
	s, obj := rv.valueAndObject(cs)
	cs.modify()
	cs.pending[cond] = pendingAcquire{
		name:      s,
		object:    obj,
		exclusive: exclusive,
	}
}

// resolvePending returns the pending acquisition decided by v, if any,
// looking through boolean negation. The boolean negated indicates that v is
// true when the acquisition failed.
func (cs *capState) resolvePending(v ssa.Value) (pendingAcquire, bool, bool) {
	if u, ok := v.(*ssa.UnOp); ok && u.Op == token.NOT {
		pa, _, ok := cs.resolvePending(u.X)
		return pa, true, ok
	}
	pa, ok := cs.pending[v]
	return pa, false, ok
}

// store records an alias.
func (cs *capState) store(addr ssa.Value, v ssa.Value) {
	cs.modify()
	cs.stored[addr] = v
}

// isSubset indicates other holds all the capabilities held by cs, in modes
// at least as strong.
func (cs *capState) isSubset(other *capState) bool {
	for k, info := range cs.held {
		otherInfo, otherOk := other.held[k]
		if !otherOk {
			return false
		}
		if info.exclusive && !otherInfo.exclusive {
			return false
		}
	}
	return true
}

// count indicates the number of capabilities held.
func (cs *capState) count() int {
	return len(cs.held)
}

// isCompatible returns true if the states hold the same capabilities in the
// same modes.
func (cs *capState) isCompatible(other *capState) bool {
	return cs.isSubset(other) && other.isSubset(cs)
}

// valueAndObject returns a stable name for a given value, along with a
// source-level object if one is available.
//
// This decomposes the value into the simplest possible representation in
// terms of parameters, free variables and globals. During resolution, stored
// values may be transferred, as well as bound free variables.
//
// Nil may not be passed here.
func (cs *capState) valueAndObject(v ssa.Value) (string, types.Object) {
	switch x := v.(type) {
	case *ssa.Parameter:
		// Was this provided as a parameter for a local anonymous
		// function invocation?
		v, ok := cs.stored[x]
		if ok {
			return cs.valueAndObject(v)
		}
		return fmt.Sprintf("{param:%s}", x.Name()), x.Object()
	case *ssa.Global:
		return fmt.Sprintf("{global:%s}", x.Name()), x.Object()
	case *ssa.FreeVar:
		// Attempt to resolve this, in case we are being invoked in a
		// scope where all the variables are bound.
		v, ok := cs.stored[x]
		if ok {
			// The FreeVar is typically bound to a location, so we
			// check what's been stored there.
			stored, ok := cs.stored[v]
			if ok {
				return cs.valueAndObject(stored)
			}
		}
		// A FreeVar has no corresponding source-level object.
		return fmt.Sprintf("{freevar:%s}", x.Name()), nil
	case *ssa.Convert:
		return cs.valueAndObject(x.X)
	case *ssa.ChangeType:
		return cs.valueAndObject(x.X)
	case *ssa.UnOp:
		if x.Op != token.MUL {
			break
		}
		// Is this loading a free variable? If yes, resolve through the
		// binding recorded at closure construction.
		if fv, ok := x.X.(*ssa.FreeVar); ok {
			return cs.valueAndObject(fv)
		}
		// A memory location can hold its own value; resolve through
		// what is known to be stored there, guarding against cycles.
		if _, ok := cs.used[x.X]; !ok {
			v, ok := cs.stored[x.X]
			if ok {
				cs.used[x.X] = struct{}{}
				defer func() { delete(cs.used, x.X) }()
				return cs.valueAndObject(v)
			}
		}
		s, obj := cs.valueAndObject(x.X)
		return fmt.Sprintf("*(%s)", s), obj
	case *ssa.Field:
		structType, ok := resolveStruct(x.X.Type())
		if !ok {
			// This should not happen.
			panic(fmt.Sprintf("structType not available for struct: %#v", x.X))
		}
		fieldObj := structType.Field(x.Field)
		s, _ := cs.valueAndObject(x.X)
		return fmt.Sprintf("%s.%s", s, fieldObj.Name()), fieldObj
	case *ssa.FieldAddr:
		structType, ok := resolveStruct(x.X.Type())
		if !ok {
			// This should not happen.
			panic(fmt.Sprintf("structType not available for struct: %#v", x.X))
		}
		fieldObj := structType.Field(x.Field)
		s, _ := cs.valueAndObject(x.X)
		return fmt.Sprintf("&(%s.%s)", s, fieldObj.Name()), fieldObj
	case *ssa.Index:
		s, _ := cs.valueAndObject(x.X)
		i, _ := cs.valueAndObject(x.Index)
		return fmt.Sprintf("%s[%s]", s, i), nil
	case *ssa.IndexAddr:
		s, _ := cs.valueAndObject(x.X)
		i, _ := cs.valueAndObject(x.Index)
		return fmt.Sprintf("&(%s[%s])", s, i), nil
	case *ssa.Lookup:
		s, _ := cs.valueAndObject(x.X)
		i, _ := cs.valueAndObject(x.Index)
		return fmt.Sprintf("%s[%s]", s, i), nil
	case *ssa.Extract:
		s, _ := cs.valueAndObject(x.Tuple)
		return fmt.Sprintf("%s[%d]", s, x.Index), nil
	}

	// For any other value (e.g. an alloc or a return value), the literal
	// pointer is unique within the ssa graph, so equal values are the
	// same location.
	return fmt.Sprintf("{%T:%p}", v, v), nil
}

// String returns the full capability state.
func (cs *capState) String() string {
	if cs.count() == 0 {
		return "no capabilities held"
	}
	keys := make([]string, 0, len(cs.held))
	for k, info := range cs.held {
		keys = append(keys, fmt.Sprintf("%s %s", k, exclusiveStr(info.exclusive)))
	}
	return strings.Join(keys, ",")
}

// pushDefer pushes a defer onto the stack.
func (cs *capState) pushDefer(d *ssa.Defer) {
	cs.modify()
	cs.defers = append(cs.defers, d)
}

// popDefer pops a defer from the stack.
func (cs *capState) popDefer() *ssa.Defer {
	// Does not technically modify the underlying slice.
	count := len(cs.defers)
	if count == 0 {
		return nil
	}
	d := cs.defers[count-1]
	cs.defers = cs.defers[:count-1]
	return d
}
