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

var globalMu sync.Mutex

// +checkcaps:globalMu
var globalGuarded int // want globalGuarded:"guarded_by:globalMu"

func testGlobalValid() {
	globalMu.Lock()
	globalGuarded = 1
	globalMu.Unlock()
}

func testGlobalInvalid() {
	globalGuarded = 1 // +checkcapsfail
}

// +checkcaps:globalMu
func globalCall() { // want globalCall:"entry:globalMu,exit:globalMu"
	globalGuarded = 1
}

func testGlobalRequireValid() {
	globalMu.Lock()
	globalCall()
	globalMu.Unlock()
}

func testGlobalRequireInvalid() {
	globalCall() // +checkcapsfail
}
