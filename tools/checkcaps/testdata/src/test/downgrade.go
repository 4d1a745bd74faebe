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

// demote converts the exclusive hold to a shared one.
//
// +checkcapsdowngrade:tc.mu
func (tc *oneReadGuardStruct) demote() { // want demote:"entry:tc.mu,exit:tc.mu:shared:downgrade"
}

func testDowngradeValid(tc *oneReadGuardStruct) {
	tc.mu.Lock()
	tc.guardedField = 1
	tc.demote()
	_ = tc.guardedField
	tc.mu.RUnlock()
}

func testDowngradeWriteAfter(tc *oneReadGuardStruct) {
	tc.mu.Lock()
	tc.demote()
	tc.guardedField = 1 // +checkcapsfail
	tc.mu.RUnlock()
}

func testDowngradeNotHeld(tc *oneReadGuardStruct) {
	tc.demote() // +checkcapsfail=must hold|cannot downgrade
}

func testDowngradeSharedHeld(tc *oneReadGuardStruct) {
	tc.mu.RLock()
	tc.demote() // +checkcapsfail=must hold|cannot downgrade
	tc.mu.RUnlock()
}
