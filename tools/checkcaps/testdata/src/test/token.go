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

// sealed is a pure static permission: no data, no runtime state.
var sealed cap.Token

type tokenStruct struct {
	// +checkcaps:sealed
	guardedField int // want guardedField:"guarded_by:sealed"
}

// +checkcaps:sealed
func (tc *tokenStruct) sealedOnly() { // want sealedOnly:"entry:sealed,exit:sealed"
	tc.guardedField = 1
}

func testTokenValid(tc *tokenStruct) {
	cap.Acquire(&sealed)
	tc.sealedOnly()
	tc.guardedField = 2
	cap.Release(&sealed)
}

func testTokenInvalid(tc *tokenStruct) {
	tc.sealedOnly()     // +checkcapsfail
	tc.guardedField = 2 // +checkcapsfail
}

func testTokenSharedRead(tc *tokenStruct) {
	cap.AcquireShared(&sealed)
	_ = tc.guardedField
	cap.ReleaseShared(&sealed)
}
