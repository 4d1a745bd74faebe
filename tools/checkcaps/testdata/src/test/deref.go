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

// derefGuardStruct guards the pointed-to data, not the pointer itself.
type derefGuardStruct struct {
	mu sync.Mutex
	// +checkcapsderef:mu
	data *int // want data:"deref_guarded_by:mu"
}

func testDerefValidWrite(tc *derefGuardStruct) {
	tc.mu.Lock()
	*tc.data = 1
	tc.mu.Unlock()
}

func testDerefValidRead(tc *derefGuardStruct) int {
	tc.mu.Lock()
	v := *tc.data
	tc.mu.Unlock()
	return v
}

// Reading the pointer value itself requires nothing.
func testDerefPointerRead(tc *derefGuardStruct) *int {
	return tc.data
}

func testDerefInvalidWrite(tc *derefGuardStruct) {
	*tc.data = 1 // +checkcapsfail
}

func testDerefInvalidRead(tc *derefGuardStruct) int {
	return *tc.data // +checkcapsfail
}
