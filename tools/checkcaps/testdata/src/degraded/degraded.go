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

// Package degraded exercises the degradeshared backend, where shared
// acquisitions are over-constrained to exclusive ones.
package degraded

import (
	"sync"
)

type readGuardStruct struct {
	mu sync.RWMutex
	// +checkcaps:mu
	guardedField int // want guardedField:"guarded_by:mu"
}

// Two nested read holds are a double acquisition under the degraded backend.
func testNestedReadHolds(tc *readGuardStruct) {
	tc.mu.RLock()
	tc.mu.RLock() // +checkcapsfail
	tc.mu.RUnlock()
	tc.mu.RUnlock() // +checkcapsfail
}

// A write under a read hold passes: the hold is tracked as exclusive.
func testWriteUnderReadHold(tc *readGuardStruct) {
	tc.mu.RLock()
	tc.guardedField = 1
	tc.mu.RUnlock()
}
