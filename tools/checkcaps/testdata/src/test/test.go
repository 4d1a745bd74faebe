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

// Package test is a test package.
//
// Tests are all compilation tests in separate files.
package test

import (
	"sync"
)

// oneGuardStruct has one guarded field.
type oneGuardStruct struct {
	mu sync.Mutex
	// +checkcaps:mu
	guardedField   int // want guardedField:"guarded_by:mu"
	unguardedField int
}

// twoGuardStruct has two guarded fields.
type twoGuardStruct struct {
	mu sync.Mutex
	// +checkcaps:mu
	guardedField1 int // want guardedField1:"guarded_by:mu"
	// +checkcaps:mu
	guardedField2 int // want guardedField2:"guarded_by:mu"
}

// twoCapsStruct has two capabilities and two fields.
type twoCapsStruct struct {
	mu       sync.Mutex
	secondMu sync.Mutex
	// +checkcaps:mu
	guardedField1 int // want guardedField1:"guarded_by:mu"
	// +checkcaps:secondMu
	guardedField2 int // want guardedField2:"guarded_by:secondMu"
}

// nestedGuardStruct nests oneGuardStruct fields.
type nestedGuardStruct struct {
	val oneGuardStruct
	ptr *oneGuardStruct
}

func testAccessValid(tc *oneGuardStruct) {
	tc.mu.Lock()
	tc.guardedField = 1
	tc.unguardedField = 1
	tc.mu.Unlock()
}

func testAccessInvalid(tc *oneGuardStruct) {
	tc.guardedField = 1 // +checkcapsfail
	tc.unguardedField = 1
}

func testTwoCapsValid(tc *twoCapsStruct) {
	tc.mu.Lock()
	tc.guardedField1 = 1
	tc.secondMu.Lock()
	tc.guardedField2 = 1
	tc.secondMu.Unlock()
	tc.mu.Unlock()
}

func testTwoCapsInvalid(tc *twoCapsStruct) {
	tc.mu.Lock()
	tc.guardedField1 = 1
	tc.guardedField2 = 1 // +checkcapsfail
	tc.mu.Unlock()
}

func testNestedValid(tc *nestedGuardStruct) {
	tc.val.mu.Lock()
	tc.ptr.mu.Lock()
	tc.val.guardedField = 1
	tc.ptr.guardedField = 1
	tc.ptr.mu.Unlock()
	tc.val.mu.Unlock()
}

func testNestedInvalid(tc *nestedGuardStruct) {
	tc.val.guardedField = 1 // +checkcapsfail
	tc.ptr.guardedField = 1 // +checkcapsfail
}

func testDoubleAcquire(tc *oneGuardStruct) {
	tc.mu.Lock()
	tc.mu.Lock() // +checkcapsfail
	tc.mu.Unlock()
}

func testReleaseNotHeld(tc *oneGuardStruct) {
	tc.mu.Unlock() // +checkcapsfail
}

func testReturnHeld(tc *oneGuardStruct) {
	tc.mu.Lock()
	return // +checkcapsfail
}

func testDeferredRelease(tc *oneGuardStruct) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.guardedField = 1
}

// +checkcaps:tc.mu
func (tc *oneGuardStruct) guardedCall() { // want guardedCall:"entry:tc.mu,exit:tc.mu"
	tc.guardedField = 1
}

// +checkcapsacquire:tc.mu
func (tc *oneGuardStruct) acquireCap() { // want acquireCap:"exit:tc.mu"
	tc.mu.Lock()
}

// +checkcapsrelease:tc.mu
func (tc *oneGuardStruct) releaseCap() { // want releaseCap:"entry:tc.mu"
	tc.mu.Unlock()
}

func testRequireValid(tc *oneGuardStruct) {
	tc.mu.Lock()
	tc.guardedCall()
	tc.mu.Unlock()
}

func testRequireInvalid(tc *oneGuardStruct) {
	tc.guardedCall() // +checkcapsfail
}

func testWrappersValid(tc *oneGuardStruct) {
	tc.acquireCap()
	tc.guardedField = 1
	tc.releaseCap()
}

func testWrappersDoubleAcquire(tc *oneGuardStruct) {
	tc.acquireCap()
	tc.acquireCap() // +checkcapsfail
	tc.releaseCap()
}

func testWrappersReleaseNotHeld(tc *oneGuardStruct) {
	// Both the entry contract and the release itself fail here.
	tc.releaseCap() // +checkcapsfail=must hold|attempt to release
}

// The analyzer inspects closures with the capability state at the call.
func testClosureValid(tc *oneGuardStruct) {
	tc.mu.Lock()
	x := func() {
		tc.guardedField = 1
	}
	x()
	tc.mu.Unlock()
}

func testClosureInvalid(tc *oneGuardStruct) {
	x := func() {
		tc.guardedField = 1 // +checkcapsfail
	}
	x()
}
