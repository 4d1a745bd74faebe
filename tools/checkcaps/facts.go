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
	"encoding/gob"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/tools/go/analysis/passes/buildssa"
	"golang.org/x/tools/go/ssa"
)

// fieldEntry is a single step of a field traversal path.
type fieldEntry interface {
	// synthesize produces a string that is compatible with
	// capState.valueAndObject, along with the object that would be
	// produced in that case.
	//
	// It is called synthesize because it works from type information
	// alone, without any ssa.Value.
	synthesize(s string, typ types.Type) (string, types.Object)
}

// fieldStruct is a non-pointer struct element.
type fieldStruct int

// synthesize implements fieldEntry.synthesize.
func (f fieldStruct) synthesize(s string, typ types.Type) (string, types.Object) {
	field, ok := findField(typ, int(f))
	if !ok {
		// Should not happen as long as fieldList construction is correct.
		panic(fmt.Sprintf("unable to resolve field %d in %s", int(f), typ.String()))
	}
	return fmt.Sprintf("&(%s.%s)", s, field.Name()), field
}

// fieldStructPtr is a pointer struct element.
type fieldStructPtr int

// synthesize implements fieldEntry.synthesize.
func (f fieldStructPtr) synthesize(s string, typ types.Type) (string, types.Object) {
	field, ok := findField(typ, int(f))
	if !ok {
		// See above, this should not happen.
		panic(fmt.Sprintf("unable to resolve ptr field %d in %s", int(f), typ.String()))
	}
	return fmt.Sprintf("*(&(%s.%s))", s, field.Name()), field
}

// fieldList is a field traversal path.
type fieldList []fieldEntry

// resolvedValue is an ssa.Value together with a traversal path, resolvable
// to a capability name within a capState.
type resolvedValue struct {
	value     ssa.Value
	fieldList fieldList
}

// makeResolvedValue makes a new resolvedValue.
func makeResolvedValue(v ssa.Value, fl fieldList) resolvedValue {
	return resolvedValue{
		value:     v,
		fieldList: fl,
	}
}

// valid indicates whether this is a valid resolvedValue.
func (rv *resolvedValue) valid() bool {
	return rv.value != nil
}

// valueAndObject resolves the base value through the capState, then
// synthesizes the traversal path on top of it.
func (rv *resolvedValue) valueAndObject(cs *capState) (string, types.Object) {
	// N.B. obj.Type() and typ should be equal, but a check is omitted
	// since, 1) pointers are chased automatically during field
	// resolution, and 2) obj may be nil if there is no source object.
	s, obj := cs.valueAndObject(rv.value)
	typ := rv.value.Type()
	for _, entry := range rv.fieldList {
		s, obj = entry.synthesize(s, typ)
		typ = obj.Type()
	}
	return s, obj
}

// fieldGuardResolver resolves a guard during a field access.
type fieldGuardResolver interface {
	// resolveField is used to resolve a guard during a field access. The
	// parent structure is available, as well as the current state.
	resolveField(pc *passContext, cs *capState, parent ssa.Value) resolvedValue
}

// functionGuardResolver resolves a guard of a function contract.
type functionGuardResolver interface {
	// resolveStatic is used to resolve a guard during static analysis of
	// the annotated function itself. The function's ssa object is
	// available, as well as the return value.
	resolveStatic(pc *passContext, cs *capState, fn *ssa.Function, rv any) resolvedValue

	// resolveCall is used to resolve a guard at a call site, where only
	// the arguments and the ssa return value are available.
	resolveCall(pc *passContext, cs *capState, args []ssa.Value, rv ssa.Value) resolvedValue
}

// guardFacts is the guard information for a field or global.
type guardFacts struct {
	// GuardedBy is the set of capabilities guarding the data itself. The
	// key is the annotation value; shared holds admit reads, exclusive
	// holds are required for writes.
	GuardedBy map[string]fieldGuardResolver

	// DerefGuardedBy is the set of capabilities guarding the data a
	// pointer field points to. Accesses through the pointer require the
	// guard; reading the pointer value itself does not.
	DerefGuardedBy map[string]fieldGuardResolver

	// Ignore means accesses to this data are never checked.
	Ignore bool
}

// AFact implements analysis.Fact.AFact.
func (*guardFacts) AFact() {}

// String renders a stable summary of the guards, used when matching
// exported facts in tests.
func (gf *guardFacts) String() string {
	var parts []string
	if gf.Ignore {
		parts = append(parts, "ignore")
	}
	appendGuards := func(verb string, m map[string]fieldGuardResolver) {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, verb+":"+name)
		}
	}
	appendGuards("guarded_by", gf.GuardedBy)
	appendGuards("deref_guarded_by", gf.DerefGuardedBy)
	return strings.Join(parts, ",")
}

// globalGuard is a package-level guard.
type globalGuard struct {
	// ObjectName indicates the object from which resolution should occur.
	ObjectName string

	// PackageName is the package where the object lives.
	PackageName string

	// FieldList is the traversal path from the object.
	FieldList fieldList
}

// resolveCommon implements resolution for all cases.
func (g *globalGuard) resolveCommon(pc *passContext, cs *capState) resolvedValue {
	state := pc.pass.ResultOf[buildssa.Analyzer].(*buildssa.SSA)
	pkg := state.Pkg
	if g.PackageName != "" && g.PackageName != state.Pkg.Pkg.Path() {
		pkg = state.Pkg.Prog.ImportedPackage(g.PackageName)
	}
	v := pkg.Members[g.ObjectName].(ssa.Value)
	return makeResolvedValue(v, g.FieldList)
}

// resolveStatic implements functionGuardResolver.resolveStatic.
func (g *globalGuard) resolveStatic(pc *passContext, cs *capState, _ *ssa.Function, v any) resolvedValue {
	return g.resolveCommon(pc, cs)
}

// resolveCall implements functionGuardResolver.resolveCall.
func (g *globalGuard) resolveCall(pc *passContext, cs *capState, _ []ssa.Value, v ssa.Value) resolvedValue {
	return g.resolveCommon(pc, cs)
}

// resolveField implements fieldGuardResolver.resolveField.
func (g *globalGuard) resolveField(pc *passContext, cs *capState, parent ssa.Value) resolvedValue {
	return g.resolveCommon(pc, cs)
}

// fieldGuard is a guard relative to the parent structure.
type fieldGuard struct {
	// FieldList is the traversal path from the parent.
	FieldList fieldList
}

// resolveField implements fieldGuardResolver.resolveField.
func (f *fieldGuard) resolveField(_ *passContext, _ *capState, parent ssa.Value) resolvedValue {
	return makeResolvedValue(parent, f.FieldList)
}

// parameterGuard is a guard relative to a parameter (or receiver).
type parameterGuard struct {
	// Index is the parameter index of the object that contains the
	// guarding capability.
	Index int

	// FieldList is the traversal path from the parameter.
	FieldList fieldList
}

// resolveStatic implements functionGuardResolver.resolveStatic.
func (p *parameterGuard) resolveStatic(_ *passContext, _ *capState, fn *ssa.Function, _ any) resolvedValue {
	return makeResolvedValue(fn.Params[p.Index], p.FieldList)
}

// resolveCall implements functionGuardResolver.resolveCall.
func (p *parameterGuard) resolveCall(_ *passContext, _ *capState, args []ssa.Value, _ ssa.Value) resolvedValue {
	return makeResolvedValue(args[p.Index], p.FieldList)
}

// returnGuard is a guard relative to a return value, used by acquire-style
// annotations on accessor functions.
type returnGuard struct {
	// Index is the index of the return value.
	Index int

	// NeedsExtract indicates that the value must be extracted from a
	// tuple.
	NeedsExtract bool

	// FieldList is the traversal path from the return value.
	FieldList fieldList
}

// resolveCommon implements resolution for both cases.
func (r *returnGuard) resolveCommon(rv any) resolvedValue {
	if rv == nil {
		// For defers and other objects, this may be nil. There is no
		// resolvedValue available in this case.
		return resolvedValue{}
	}
	// If this is a *ssa.Return object, i.e. we are analyzing the function
	// and not the call site, then we can just pull the result directly.
	if ret, ok := rv.(*ssa.Return); ok {
		return makeResolvedValue(ret.Results[r.Index], r.FieldList)
	}
	if r.NeedsExtract {
		// Resolve on the extracted field; rv must be an ssa.Value,
		// since it is not an *ssa.Return.
		v := rv.(ssa.Value)
		if refs := v.Referrers(); refs != nil {
			for _, inst := range *refs {
				if x, ok := inst.(*ssa.Extract); ok && x.Tuple == v && x.Index == r.Index {
					return makeResolvedValue(x, r.FieldList)
				}
			}
		}
		// Nothing resolved.
		return resolvedValue{}
	}
	if r.Index != 0 {
		// This should not happen, NeedsExtract should always be set.
		panic("NeedsExtract is false, but return value index is non-zero")
	}
	// Resolve on the single return.
	return makeResolvedValue(rv.(ssa.Value), r.FieldList)
}

// resolveStatic implements functionGuardResolver.resolveStatic.
func (r *returnGuard) resolveStatic(_ *passContext, _ *capState, _ *ssa.Function, rv any) resolvedValue {
	return r.resolveCommon(rv)
}

// resolveCall implements functionGuardResolver.resolveCall.
func (r *returnGuard) resolveCall(_ *passContext, _ *capState, _ []ssa.Value, rv ssa.Value) resolvedValue {
	return r.resolveCommon(rv)
}

// functionGuardInfo is one guard of a function contract.
type functionGuardInfo struct {
	// Resolver resolves the guard.
	Resolver functionGuardResolver

	// IsAlias indicates that this guard is an alias of another.
	IsAlias bool

	// Exclusive indicates the hold mode required, acquired or excluded.
	Exclusive bool

	// Conditional indicates that the acquisition is decided by the
	// function's boolean result: held only where the result is true.
	Conditional bool

	// Downgrade indicates an exclusive-to-shared transition on exit; only
	// meaningful on exit guards that also appear on entry.
	Downgrade bool
}

// lockFunctionFacts is the contract of an annotated function.
type lockFunctionFacts struct {
	// HeldOnEntry tracks the capabilities that must be held when the
	// function is called. Keys are the annotation strings, e.g. given
	//
	//	// +checkcaps:a.mu
	//	func xyz(a *A) { ... }
	//
	// HeldOnEntry maps "a.mu" to a parameterGuard for index 0.
	HeldOnEntry map[string]functionGuardInfo

	// HeldOnExit tracks the capabilities that are held on return.
	HeldOnExit map[string]functionGuardInfo

	// ExcludedOnEntry tracks capabilities that must not be held on entry.
	// It is checked at call sites only and does not affect the caller's
	// state after the call. If Exclusive is set, only an exclusive hold
	// is forbidden; otherwise any hold is.
	ExcludedOnEntry map[string]functionGuardInfo

	// Ignore means this function has local analysis suppressed.
	Ignore bool
}

// AFact implements analysis.Fact.AFact.
func (*lockFunctionFacts) AFact() {}

// String renders a stable summary of the contract, used when matching
// exported facts in tests.
func (lff *lockFunctionFacts) String() string {
	var parts []string
	if lff.Ignore {
		parts = append(parts, "ignore")
	}
	appendGuards := func(verb string, m map[string]functionGuardInfo) {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fg := m[name]
			s := verb + ":" + name
			if fg.IsAlias {
				s += ":alias"
			}
			if !fg.Exclusive {
				s += ":shared"
			}
			if fg.Conditional {
				s += ":conditional"
			}
			if fg.Downgrade {
				s += ":downgrade"
			}
			parts = append(parts, s)
		}
	}
	appendGuards("entry", lff.HeldOnEntry)
	appendGuards("exit", lff.HeldOnExit)
	names := make([]string, 0, len(lff.ExcludedOnEntry))
	for name := range lff.ExcludedOnEntry {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := "excluded:" + name
		if lff.ExcludedOnEntry[name].Exclusive {
			s += ":write"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ",")
}

// checkGuard validates and resolves guardName for an entry/exit contract.
func (lff *lockFunctionFacts) checkGuard(pc *passContext, d *ast.FuncDecl, guardName string, exclusive bool, allowReturn bool) (functionGuardInfo, bool) {
	if fg, ok := lff.ExcludedOnEntry[guardName]; ok {
		if exclusive || !fg.Exclusive {
			pc.maybeFail(d.Pos(), "annotation %s cannot be both required and forbidden", guardName)
			return functionGuardInfo{}, false
		}
	}
	if _, ok := lff.HeldOnEntry[guardName]; ok {
		pc.maybeFail(d.Pos(), "annotation %s specified more than once, already required", guardName)
		return functionGuardInfo{}, false
	}
	if _, ok := lff.HeldOnExit[guardName]; ok {
		pc.maybeFail(d.Pos(), "annotation %s specified more than once, already acquired", guardName)
		return functionGuardInfo{}, false
	}
	res, capObj, ok := pc.resolveFunctionGuard(d, guardName, allowReturn)
	if !ok {
		return functionGuardInfo{}, false
	}
	if !exclusive && !pc.validateCapability(d.Pos(), capObj, false /* exclusive */) {
		return functionGuardInfo{}, false
	}
	return functionGuardInfo{
		Resolver:  res,
		Exclusive: exclusive,
	}, true
}

func (lff *lockFunctionFacts) addExcludes(pc *passContext, d *ast.FuncDecl, guardName string, exclusiveOnly bool) {
	if _, ok := lff.ExcludedOnEntry[guardName]; ok {
		pc.maybeFail(d.Pos(), "annotation %s specified more than once, already forbidden", guardName)
		return
	}
	if fg, ok := lff.HeldOnEntry[guardName]; ok {
		if !exclusiveOnly || fg.Exclusive {
			pc.maybeFail(d.Pos(), "annotation %s cannot be both required and forbidden", guardName)
			return
		}
	}

	res, _, ok := pc.resolveFunctionGuard(d, guardName, false /* allowReturn */)
	if !ok {
		return
	}
	if lff.ExcludedOnEntry == nil {
		lff.ExcludedOnEntry = make(map[string]functionGuardInfo)
	}
	lff.ExcludedOnEntry[guardName] = functionGuardInfo{
		Resolver:  res,
		Exclusive: exclusiveOnly,
	}
}

// addGuardedBy adds a capability to both HeldOnEntry and HeldOnExit.
func (lff *lockFunctionFacts) addGuardedBy(pc *passContext, d *ast.FuncDecl, guardName string, exclusive bool) {
	if fg, ok := lff.checkGuard(pc, d, guardName, exclusive, false /* allowReturn */); ok {
		if lff.HeldOnEntry == nil {
			lff.HeldOnEntry = make(map[string]functionGuardInfo)
		}
		if lff.HeldOnExit == nil {
			lff.HeldOnExit = make(map[string]functionGuardInfo)
		}
		lff.HeldOnEntry[guardName] = fg
		lff.HeldOnExit[guardName] = fg
	}
}

// addAcquires adds a capability to HeldOnExit. If conditional, the
// acquisition is decided by the function's boolean result.
func (lff *lockFunctionFacts) addAcquires(pc *passContext, d *ast.FuncDecl, guardName string, exclusive, conditional bool) {
	if fg, ok := lff.checkGuard(pc, d, guardName, exclusive, true /* allowReturn */); ok {
		if conditional && !functionReturnsBool(d) {
			pc.maybeFail(d.Pos(), "annotation %s is conditional but the function returns no boolean", guardName)
			return
		}
		fg.Conditional = conditional
		if lff.HeldOnExit == nil {
			lff.HeldOnExit = make(map[string]functionGuardInfo)
		}
		lff.HeldOnExit[guardName] = fg
	}
}

// addReleases adds a capability to HeldOnEntry.
func (lff *lockFunctionFacts) addReleases(pc *passContext, d *ast.FuncDecl, guardName string, exclusive bool) {
	if fg, ok := lff.checkGuard(pc, d, guardName, exclusive, false /* allowReturn */); ok {
		if lff.HeldOnEntry == nil {
			lff.HeldOnEntry = make(map[string]functionGuardInfo)
		}
		lff.HeldOnEntry[guardName] = fg
	}
}

// addDowngrades declares an exclusive hold on entry that becomes a shared
// hold on exit.
func (lff *lockFunctionFacts) addDowngrades(pc *passContext, d *ast.FuncDecl, guardName string) {
	fg, ok := lff.checkGuard(pc, d, guardName, true /* exclusive */, false /* allowReturn */)
	if !ok {
		return
	}
	// The exit hold is shared, so the guard must support shared holds.
	res, capObj, ok := pc.resolveFunctionGuard(d, guardName, false /* allowReturn */)
	if !ok || !pc.validateCapability(d.Pos(), capObj, false /* exclusive */) {
		return
	}
	if lff.HeldOnEntry == nil {
		lff.HeldOnEntry = make(map[string]functionGuardInfo)
	}
	if lff.HeldOnExit == nil {
		lff.HeldOnExit = make(map[string]functionGuardInfo)
	}
	lff.HeldOnEntry[guardName] = fg
	lff.HeldOnExit[guardName] = functionGuardInfo{
		Resolver:  res,
		Exclusive: exclusiveMode(false),
		Downgrade: true,
	}
}

// addAlias adds an alias.
func (lff *lockFunctionFacts) addAlias(pc *passContext, d *ast.FuncDecl, guardName string) {
	// Parse the alias.
	parts := strings.Split(guardName, "=")
	if len(parts) != 2 {
		pc.maybeFail(d.Pos(), "invalid annotation %s for alias", guardName)
		return
	}

	// Parse the actual guard.
	fg, ok := lff.checkGuard(pc, d, parts[0], true /* exclusive */, true /* allowReturn */)
	if !ok {
		return
	}
	fg.IsAlias = true

	// Find the existing specification.
	_, entryOk := lff.HeldOnEntry[parts[1]]
	if entryOk {
		lff.HeldOnEntry[guardName] = fg
	}
	_, exitOk := lff.HeldOnExit[parts[1]]
	if exitOk {
		lff.HeldOnExit[guardName] = fg
	}
	if !entryOk && !exitOk {
		pc.maybeFail(d.Pos(), "alias annotation %s does not refer to an existing guard", guardName)
	}
}

// functionReturnsBool reports whether d has at least one boolean result.
func functionReturnsBool(d *ast.FuncDecl) bool {
	if d.Type.Results == nil {
		return false
	}
	for _, field := range d.Type.Results.List {
		if ident, ok := field.Type.(*ast.Ident); ok && ident.Name == "bool" {
			return true
		}
	}
	return false
}

// fieldEntryFor returns the fieldList entry for the given object.
func (pc *passContext) fieldEntryFor(fieldObj types.Object, index int) fieldEntry {
	// Return the resolution path.
	if _, ok := fieldObj.Type().Underlying().(*types.Pointer); ok {
		return fieldStructPtr(index)
	}
	if _, ok := fieldObj.Type().Underlying().(*types.Interface); ok {
		return fieldStructPtr(index)
	}
	return fieldStruct(index)
}

// findFieldEntry resolves a field in a single struct.
func (pc *passContext) findFieldEntry(structType *types.Struct, fieldName string) (fieldList, types.Object, bool) {
	var fl fieldList

	// Scan to match the next field.
	for i := 0; i < structType.NumFields(); i++ {
		fieldObj := structType.Field(i)
		if fieldObj.Name() != fieldName {
			continue
		}
		fl = append(fl, pc.fieldEntryFor(fieldObj, i))
		return fl, fieldObj, true
	}

	// Is this an embed?
	for i := 0; i < structType.NumFields(); i++ {
		fieldObj := structType.Field(i)
		if !fieldObj.Embedded() {
			continue
		}

		// Is this an embedded struct?
		structType, ok := resolveStruct(fieldObj.Type())
		if !ok {
			continue
		}

		// Need to check that there is a resolution path. If there is
		// no resolution path that's not a failure: we just continue
		// scanning the next embed to find a match.
		flEmbed := pc.fieldEntryFor(fieldObj, i)
		flNext, fieldObjNext, ok := pc.findFieldEntry(structType, fieldName)
		if !ok {
			continue
		}

		// Found an embedded chain.
		fl = append(fl, flEmbed)
		fl = append(fl, flNext...)
		return fl, fieldObjNext, true
	}

	return nil, nil, false
}

var (
	mutexRE   = regexp.MustCompile(".*Mutex")
	rwMutexRE = regexp.MustCompile(".*RWMutex")
	lockerRE  = regexp.MustCompile(".*sync.Locker")
	tokenRE   = regexp.MustCompile(`(.*/)?cap\.Token$`)
	markerRE  = regexp.MustCompile(`(.*/)?cap\.Cap$`)
)

// capKind classifies a guard type.
type capKind int

const (
	// capKindMutex admits only exclusive holds.
	capKindMutex capKind = iota + 1

	// capKindRWMutex admits exclusive and shared holds.
	capKindRWMutex

	// capKindCapability is a type embedding cap.Cap; the generic helper
	// family supports both modes, so both are admitted.
	capKindCapability

	// capKindToken is a cap.Token: a pure static permission marker.
	capKindToken
)

// embedsCapMarker reports whether typ is a struct embedding cap.Cap.
func embedsCapMarker(typ types.Type) bool {
	structType, ok := resolveStruct(typ)
	if !ok {
		return false
	}
	for i := 0; i < structType.NumFields(); i++ {
		f := structType.Field(i)
		if f.Embedded() && markerRE.MatchString(f.Type().String()) {
			return true
		}
	}
	return false
}

// capabilityKind classifies the guard type and returns its kind.
//
// This function returns zero iff obj is not a supported capability, and
// reports an error at the given position.
func (pc *passContext) capabilityKind(pos token.Pos, obj types.Object) capKind {
	s := obj.Type().String()
	switch {
	case tokenRE.MatchString(s):
		return capKindToken
	case embedsCapMarker(obj.Type()):
		return capKindCapability
	case rwMutexRE.MatchString(s):
		return capKindRWMutex
	case mutexRE.MatchString(s), lockerRE.MatchString(s):
		return capKindMutex
	default:
		// Not a capability at all?
		pc.maybeFail(pos, "field %s is not a Mutex, RWMutex or capability type", obj.Name())
		return 0
	}
}

// validateCapability validates the guard type against the required mode.
//
// This function returns true iff the object is a valid guard, with an error
// reported at the given position otherwise.
func (pc *passContext) validateCapability(pos token.Pos, obj types.Object, exclusive bool) bool {
	switch kind := pc.capabilityKind(pos, obj); kind {
	case 0:
		return false
	case capKindMutex:
		// A shared hold requires a kind that distinguishes readers.
		if !exclusive {
			pc.maybeFail(pos, "field %s must support shared holds (RWMutex or capability type)", obj.Name())
			return false
		}
		return true
	case capKindRWMutex, capKindCapability, capKindToken:
		return true
	default:
		panic(fmt.Sprintf("unknown capability kind: %d", kind))
	}
}

// findFieldListObj resolves a dotted path such as "a.b.c" within a struct.
//
// Note that parts must be non-zero in length. If it may be zero, then
// maybeFindFieldListObj should be used instead with an appropriate object.
func (pc *passContext) findFieldListObj(pos token.Pos, structType *types.Struct, parts []string) (fieldList, types.Object, bool) {
	var fl fieldList
	var obj types.Object

	// This loop requires at least one iteration in order to ensure that
	// obj above is non-nil, and the type can be validated.
	for i, fieldName := range parts {
		flOne, fieldObj, ok := pc.findFieldEntry(structType, fieldName)
		if !ok {
			return nil, nil, false
		}
		fl = append(fl, flOne...)
		obj = fieldObj
		if i < len(parts)-1 {
			structType, ok = resolveStruct(obj.Type())
			if !ok {
				// N.B. This is associated with the original position.
				pc.maybeFail(pos, "field %s expected to be struct", fieldName)
				return nil, nil, false
			}
		}
	}

	return fl, obj, true
}

// maybeFindFieldListObj resolves the given object.
//
// Parts may be the empty list, unlike findFieldListObj.
func (pc *passContext) maybeFindFieldListObj(pos token.Pos, obj types.Object, parts []string) (fieldList, types.Object, bool) {
	if len(parts) > 0 {
		structType, ok := resolveStruct(obj.Type())
		if !ok {
			// This does not have any fields; the access is not allowed.
			pc.maybeFail(pos, "attempted field access on non-struct")
			return nil, nil, false
		}
		return pc.findFieldListObj(pos, structType, parts)
	}

	return nil, obj, true
}

// findFieldGuardResolver finds a symbol resolver.
type findFieldGuardResolver func(pos token.Pos, guardName string) (fieldGuardResolver, bool)

// fillGuardFacts fills the facts for one field or global from its comments.
func (pc *passContext) fillGuardFacts(obj types.Object, cg *ast.CommentGroup, find findFieldGuardResolver, gf *guardFacts) {
	if cg == nil {
		return
	}
	addGuard := func(m *map[string]fieldGuardResolver, guardName string) {
		if _, ok := (*m)[guardName]; ok {
			pc.maybeFail(obj.Pos(), "annotation %s specified more than once", guardName)
			return
		}
		fr, ok := find(obj.Pos(), guardName)
		if !ok {
			pc.maybeFail(obj.Pos(), "annotation %s cannot be resolved", guardName)
			return
		}
		if *m == nil {
			*m = make(map[string]fieldGuardResolver)
		}
		(*m)[guardName] = fr
	}
	for _, l := range cg.List {
		pc.extractAnnotations(l.Text, map[string]func(string){
			capIgnore: func(string) {
				gf.Ignore = true
			},
			capAnnotation: func(guardName string) {
				addGuard(&gf.GuardedBy, guardName)
			},
			capDerefGuard: func(guardName string) {
				// Only pointed-to data can be deref-guarded.
				if _, ok := obj.Type().Underlying().(*types.Pointer); !ok {
					pc.maybeFail(obj.Pos(), "annotation %s applied to a non-pointer", guardName)
					return
				}
				addGuard(&gf.DerefGuardedBy, guardName)
			},
			// The shared variant is not legal on data: a shared hold
			// already admits reads of guarded data.
			capAnnotationShared: func(guardName string) {
				pc.maybeFail(obj.Pos(), "annotation %s not legal on fields", guardName)
			},
		})
	}
	// Save only if there is something meaningful.
	if len(gf.GuardedBy) > 0 || len(gf.DerefGuardedBy) > 0 || gf.Ignore {
		pc.pass.ExportObjectFact(obj, gf)
	}
}

// findGlobalGuard attempts to resolve a name globally.
func (pc *passContext) findGlobalGuard(pos token.Pos, guardName string) (*globalGuard, types.Object, bool) {
	// Attempt to resolve the object.
	parts := strings.Split(guardName, ".")
	globalObj := pc.pass.Pkg.Scope().Lookup(parts[0])
	if globalObj == nil {
		// No global object.
		return nil, nil, false
	}
	fl, capObj, ok := pc.maybeFindFieldListObj(pos, globalObj, parts[1:])
	if !ok {
		// Invalid fields.
		return nil, nil, false
	}
	if pc.capabilityKind(pos, capObj) == 0 {
		return nil, nil, false
	}
	return &globalGuard{
		ObjectName:  parts[0],
		PackageName: pc.pass.Pkg.Path(),
		FieldList:   fl,
	}, capObj, true
}

// findGlobalFieldGuard is compatible with findFieldGuardResolver.
func (pc *passContext) findGlobalFieldGuard(pos token.Pos, guardName string) (fieldGuardResolver, bool) {
	g, _, ok := pc.findGlobalGuard(pos, guardName)
	return g, ok
}

// structGuardFacts finds all relevant guard information for a structure.
func (pc *passContext) structGuardFacts(structType *types.Struct, ss *ast.StructType) {
	var fieldObj *types.Var
	findLocal := func(pos token.Pos, guardName string) (fieldGuardResolver, bool) {
		// Try to resolve from the local structure first.
		if fl, capObj, ok := pc.findFieldListObj(pos, structType, strings.Split(guardName, ".")); ok {
			// Validate the final field.
			if pc.validateCapability(pos, capObj, true /* exclusive */) {
				// Found a valid resolution.
				return &fieldGuard{
					FieldList: fl,
				}, true
			}
		}

		// Attempt a global resolution.
		return pc.findGlobalFieldGuard(pos, guardName)
	}
	for i, field := range ss.Fields.List {
		var gf guardFacts
		fieldObj = structType.Field(i) // N.B. Captured above.
		if field.Doc != nil {
			pc.fillGuardFacts(fieldObj, field.Doc, findLocal, &gf)
		}
		if field.Comment != nil {
			pc.fillGuardFacts(fieldObj, field.Comment, findLocal, &gf)
		}

		// See above, for anonymous structure fields.
		if ss, ok := field.Type.(*ast.StructType); ok {
			if st, ok := types.Unalias(fieldObj.Type()).(*types.Struct); ok {
				pc.structGuardFacts(st, ss)
			}
		}
	}
}

// globalGuardFacts finds all relevant guard information for a global. For a
// single-spec declaration the parser attaches the doc comment to the
// declaration rather than the spec, so fall back to that.
func (pc *passContext) globalGuardFacts(d *ast.GenDecl, vs *ast.ValueSpec) {
	doc := vs.Doc
	if doc == nil && len(d.Specs) == 1 {
		doc = d.Doc
	}
	var gf guardFacts
	globalObj := pc.pass.TypesInfo.ObjectOf(vs.Names[0])
	pc.fillGuardFacts(globalObj, doc, pc.findGlobalFieldGuard, &gf)
}

// countFields gives an accurate field count, accounting for unnamed
// arguments and return values and the compact identifier format.
func countFields(fl []*ast.Field) (count int) {
	for _, field := range fl {
		if len(field.Names) == 0 {
			count++
			continue
		}
		count += len(field.Names)
	}
	return
}

// matchFieldList attempts to match the given field.
//
// This function may or may not report an error; reported indicates that the
// specification is ambiguous or invalid and should be propagated.
func (pc *passContext) matchFieldList(pos token.Pos, fields []*ast.Field, guardName string) (number int, fl fieldList, capObj types.Object, reported, ok bool) {
	parts := strings.Split(guardName, ".")
	firstName := parts[0]
	index := 0
	for _, field := range fields {
		// See countFields, above.
		if len(field.Names) == 0 {
			index++
			continue
		}
		for _, name := range field.Names {
			if name.Name != firstName {
				index++
				continue
			}
			obj := pc.pass.TypesInfo.ObjectOf(name)
			fl, capObj, ok := pc.maybeFindFieldListObj(pos, obj, parts[1:])
			if !ok {
				// Some intermediate name does not match.
				pc.maybeFail(pos, "name %s does not resolve to a field", guardName)
				return 0, nil, nil, true, false
			}
			if pc.capabilityKind(pos, capObj) == 0 {
				return 0, nil, nil, true, false
			}
			// Successfully found a field.
			return index, fl, capObj, false, true
		}
	}

	// Nothing matching.
	return 0, nil, nil, false, false
}

// resolveFunctionGuard identifies the guard resolver for a string of the
// form "a.b" against a function declaration.
//
// This function reports errors directly, but does not impose any mode
// requirements (e.g. shared-capable guards for non-exclusive holds).
func (pc *passContext) resolveFunctionGuard(d *ast.FuncDecl, guardName string, allowReturn bool) (functionGuardResolver, types.Object, bool) {
	// Match against receiver & parameters.
	var parameterList []*ast.Field
	if d.Recv != nil {
		parameterList = append(parameterList, d.Recv.List...)
	}
	if d.Type.Params != nil {
		parameterList = append(parameterList, d.Type.Params.List...)
	}
	if index, fl, capObj, reported, ok := pc.matchFieldList(d.Pos(), parameterList, guardName); reported || ok {
		if !ok {
			return nil, nil, false
		}
		return &parameterGuard{
			Index:     index,
			FieldList: fl,
		}, capObj, true
	}

	// Match against return values, if allowed.
	if allowReturn {
		var returnList []*ast.Field
		if d.Type.Results != nil {
			returnList = append(returnList, d.Type.Results.List...)
		}
		if index, fl, capObj, reported, ok := pc.matchFieldList(d.Pos(), returnList, guardName); reported || ok {
			if !ok {
				return nil, nil, false
			}
			return &returnGuard{
				Index:        index,
				FieldList:    fl,
				NeedsExtract: countFields(returnList) > 1,
			}, capObj, true
		}
	}

	// Match against globals.
	if g, capObj, ok := pc.findGlobalGuard(d.Pos(), guardName); ok {
		return g, capObj, true
	}

	// No match found.
	pc.maybeFail(d.Pos(), "annotation %s does not match any parameter, return value or global", guardName)
	return nil, nil, false
}

// functionFacts exports relevant function findings.
func (pc *passContext) functionFacts(d *ast.FuncDecl) {
	// Extract guard information.
	if d.Doc == nil || d.Doc.List == nil {
		return
	}
	var lff lockFunctionFacts
	for _, l := range d.Doc.List {
		pc.extractAnnotations(l.Text, map[string]func(string){
			capIgnore: func(string) {
				lff.Ignore = true
			},
			capAnnotation: func(guardName string) {
				lff.addGuardedBy(pc, d, guardName, true /* exclusive */)
			},
			capAnnotationShared: func(guardName string) {
				lff.addGuardedBy(pc, d, guardName, exclusiveMode(false))
			},
			capAcquires: func(guardName string) {
				lff.addAcquires(pc, d, guardName, true /* exclusive */, false /* conditional */)
			},
			capAcquiresShared: func(guardName string) {
				lff.addAcquires(pc, d, guardName, exclusiveMode(false), false /* conditional */)
			},
			capTryAcquires: func(guardName string) {
				lff.addAcquires(pc, d, guardName, true /* exclusive */, true /* conditional */)
			},
			capTryAcquiresShared: func(guardName string) {
				lff.addAcquires(pc, d, guardName, exclusiveMode(false), true /* conditional */)
			},
			capReleases: func(guardName string) {
				lff.addReleases(pc, d, guardName, true /* exclusive */)
			},
			capReleasesShared: func(guardName string) {
				lff.addReleases(pc, d, guardName, exclusiveMode(false))
			},
			capDowngrades: func(guardName string) {
				lff.addDowngrades(pc, d, guardName)
			},
			capAlias: func(guardName string) {
				lff.addAlias(pc, d, guardName)
			},
			capExcludes: func(guardName string) {
				lff.addExcludes(pc, d, guardName, false /* exclusiveOnly */)
			},
			capExcludesWrite: func(guardName string) {
				lff.addExcludes(pc, d, guardName, true /* exclusiveOnly */)
			},
		})
	}

	// Export the function facts if there is anything to save.
	if lff.Ignore || len(lff.HeldOnEntry) > 0 || len(lff.HeldOnExit) > 0 || len(lff.ExcludedOnEntry) > 0 {
		funcObj := pc.pass.TypesInfo.Defs[d.Name].(*types.Func)
		pc.pass.ExportObjectFact(funcObj, &lff)
	}
}

func init() {
	gob.Register((*returnGuard)(nil))
	gob.Register((*globalGuard)(nil))
	gob.Register((*parameterGuard)(nil))
	gob.Register((*fieldGuard)(nil))
	gob.Register((*fieldStructPtr)(nil))
	gob.Register((*fieldStruct)(nil))
}
