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

package test

import (
	"cap"
)

// ioCap is a capability type; embedding the marker admits the helper family.
type ioCap struct {
	cap.Cap
}

// capGuardStruct has a field guarded by a declared capability.
type capGuardStruct struct {
	c ioCap
	// +checkcaps:c
	guardedField int // want guardedField:"guarded_by:c"
}

func testCapValid(tc *capGuardStruct) {
	cap.Acquire(&tc.c)
	tc.guardedField = 1
	cap.Release(&tc.c)
}

func testCapInvalid(tc *capGuardStruct) {
	tc.guardedField = 1 // +checkcapsfail
}

func testCapSharedRead(tc *capGuardStruct) {
	cap.AcquireShared(&tc.c)
	_ = tc.guardedField
	cap.ReleaseShared(&tc.c)
}

func testCapSharedWrite(tc *capGuardStruct) {
	cap.AcquireShared(&tc.c)
	tc.guardedField = 1 // +checkcapsfail
	cap.ReleaseShared(&tc.c)
}

func testCapDoubleAcquire(tc *capGuardStruct) {
	cap.Acquire(&tc.c)
	cap.Acquire(&tc.c) // +checkcapsfail
	cap.Release(&tc.c)
}

func testCapReleaseNotHeld(tc *capGuardStruct) {
	cap.Release(&tc.c) // +checkcapsfail
}

func testCapReleaseMismatch(tc *capGuardStruct) {
	cap.AcquireShared(&tc.c)
	cap.Release(&tc.c) // +checkcapsfail
	cap.ReleaseShared(&tc.c)
}

// Assertions mark the capability held without a release obligation.
func testCapAssert(tc *capGuardStruct) {
	cap.Assert(&tc.c)
	tc.guardedField = 1
}

func testCapAssertShared(tc *capGuardStruct) {
	cap.AssertShared(&tc.c)
	_ = tc.guardedField
}

func testCapTryValid(tc *capGuardStruct, ok bool) {
	if cap.TryAcquire(&tc.c, ok) {
		tc.guardedField = 1
		cap.Release(&tc.c)
	}
}

func testCapTryFailureArm(tc *capGuardStruct, ok bool) {
	if cap.TryAcquire(&tc.c, ok) {
		cap.Release(&tc.c)
		return
	}
	tc.guardedField = 1 // +checkcapsfail
}

// +checkcaps:tc.c
func (tc *capGuardStruct) capCall() { // want capCall:"entry:tc.c,exit:tc.c"
	tc.guardedField = 1
}

func testCapRequireValid(tc *capGuardStruct) {
	cap.Acquire(&tc.c)
	tc.capCall()
	cap.Release(&tc.c)
}

func testCapRequireInvalid(tc *capGuardStruct) {
	tc.capCall() // +checkcapsfail
}
