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

func testDirectTryValid(tc *oneGuardStruct) {
	if tc.mu.TryLock() {
		tc.guardedField = 1
		tc.mu.Unlock()
	}
}

func testDirectTryNegated(tc *oneGuardStruct) {
	if !tc.mu.TryLock() {
		return
	}
	tc.guardedField = 1
	tc.mu.Unlock()
}

func testDirectTryFailureArm(tc *oneGuardStruct) {
	if tc.mu.TryLock() {
		tc.mu.Unlock()
		return
	}
	tc.guardedField = 1 // +checkcapsfail
}

func testDirectTryReadValid(tc *oneReadGuardStruct) {
	if tc.mu.TryRLock() {
		_ = tc.guardedField
		tc.mu.RUnlock()
	}
}

func testDirectTryReadInvalidWrite(tc *oneReadGuardStruct) {
	if tc.mu.TryRLock() {
		tc.guardedField = 1 // +checkcapsfail
		tc.mu.RUnlock()
	}
}

// +checkcapstry:tc.mu
func (tc *oneGuardStruct) tryAcquireCap() bool { // want tryAcquireCap:"exit:tc.mu:conditional"
	return tc.mu.TryLock()
}

func testTryWrapperValid(tc *oneGuardStruct) {
	if tc.tryAcquireCap() {
		tc.guardedField = 1
		tc.mu.Unlock()
	}
}

func testTryWrapperOutsideBranch(tc *oneGuardStruct) {
	ok := tc.tryAcquireCap()
	tc.guardedField = 1 // +checkcapsfail
	if ok {
		tc.mu.Unlock()
	}
}

// +checkcapstryshared:tc.mu
func (tc *oneReadGuardStruct) tryAcquireShared() bool { // want tryAcquireShared:"exit:tc.mu:shared:conditional"
	return tc.mu.TryRLock()
}

func testTrySharedWrapperValid(tc *oneReadGuardStruct) {
	if tc.tryAcquireShared() {
		_ = tc.guardedField
		tc.mu.RUnlock()
	}
}
