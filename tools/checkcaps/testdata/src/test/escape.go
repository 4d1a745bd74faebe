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

// The escape hatch: wrapped accesses are never checked.
func testEscapeRead(tc *oneGuardStruct) int {
	return cap.Unsafe(func() int {
		return tc.guardedField
	})
}

func testEscapeWrite(tc *oneGuardStruct) {
	cap.UnsafeDo(func() {
		tc.guardedField = 1
	})
}

func testEscapeSequenced(tc *oneGuardStruct) int {
	a := cap.Unsafe(func() int {
		return tc.guardedField
	})
	b := cap.Unsafe(func() int {
		return tc.guardedField
	})
	return a + b
}

// Only the wrapped expression escapes checking.
func testEscapeDoesNotLeak(tc *oneGuardStruct) {
	cap.UnsafeDo(func() {
		tc.guardedField = 1
	})
	tc.guardedField = 2 // +checkcapsfail
}
