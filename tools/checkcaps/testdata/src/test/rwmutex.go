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
	"sync"
)

// oneReadGuardStruct has one read-guarded field.
type oneReadGuardStruct struct {
	mu sync.RWMutex
	// +checkcaps:mu
	guardedField int // want guardedField:"guarded_by:mu"
}

func testRWAccessValidRead(tc *oneReadGuardStruct) {
	tc.mu.Lock()
	_ = tc.guardedField
	tc.mu.Unlock()
	tc.mu.RLock()
	_ = tc.guardedField
	tc.mu.RUnlock()
}

func testRWAccessValidWrite(tc *oneReadGuardStruct) {
	tc.mu.Lock()
	tc.guardedField = 1
	tc.mu.Unlock()
}

func testRWAccessInvalidWrite(tc *oneReadGuardStruct) {
	tc.guardedField = 2 // +checkcapsfail
	tc.mu.RLock()
	tc.guardedField = 2 // +checkcapsfail
	tc.mu.RUnlock()
}

func testRWAccessInvalidRead(tc *oneReadGuardStruct) {
	_ = tc.guardedField // +checkcapsfail
}

func testRWReleaseMismatch(tc *oneReadGuardStruct) {
	tc.mu.RLock()
	tc.mu.Unlock() // +checkcapsfail
}

// +checkcapsshared:tc.mu
func (tc *oneReadGuardStruct) readingCall() { // want readingCall:"entry:tc.mu:shared,exit:tc.mu:shared"
	_ = tc.guardedField
}

func testSharedRequireValid(tc *oneReadGuardStruct) {
	tc.mu.RLock()
	tc.readingCall()
	tc.mu.RUnlock()
	tc.mu.Lock()
	tc.readingCall()
	tc.mu.Unlock()
}

func testSharedRequireInvalid(tc *oneReadGuardStruct) {
	tc.readingCall() // +checkcapsfail
}

// +checkcapsacquireshared:tc.mu
func (tc *oneReadGuardStruct) acquireShared() { // want acquireShared:"exit:tc.mu:shared"
	tc.mu.RLock()
}

// +checkcapsreleaseshared:tc.mu
func (tc *oneReadGuardStruct) releaseShared() { // want releaseShared:"entry:tc.mu:shared"
	tc.mu.RUnlock()
}

func testSharedWrappersValid(tc *oneReadGuardStruct) {
	tc.acquireShared()
	_ = tc.guardedField
	tc.releaseShared()
}

func testSharedWrappersInvalidWrite(tc *oneReadGuardStruct) {
	tc.acquireShared()
	tc.guardedField = 1 // +checkcapsfail
	tc.releaseShared()
}

// +checkcapsexcludewrite:tc.mu
func (tc *oneReadGuardStruct) noWritersCall() { // want noWritersCall:"excluded:tc.mu:write"
}

func testExcludeWriteValid(tc *oneReadGuardStruct) {
	tc.noWritersCall()
	tc.mu.RLock()
	tc.noWritersCall()
	tc.mu.RUnlock()
}

func testExcludeWriteInvalid(tc *oneReadGuardStruct) {
	tc.mu.Lock()
	tc.noWritersCall() // +checkcapsfail
	tc.mu.Unlock()
}

// Exclusive acquisition while a shared hold is in place is a double
// acquisition; the shared hold must be released first.
func testRWUpgradeWhileSharedHeld(tc *oneReadGuardStruct) {
	tc.mu.RLock()
	tc.mu.Lock() // +checkcapsfail
	tc.mu.RUnlock()
}

func testRWWriteAfterSharedReleased(tc *oneReadGuardStruct) {
	tc.mu.RLock()
	_ = tc.guardedField
	tc.mu.RUnlock()
	tc.mu.Lock()
	tc.guardedField = 1
	tc.mu.Unlock()
}
