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

//go:build !lockdep

package locking

import (
	"reflect"
)

// MutexClass is an opaque lock class handle. In builds without the lockdep
// tag it carries no state.
type MutexClass struct{}

// NewMutexClass registers a new lock class for the given type.
func NewMutexClass(t reflect.Type) *MutexClass {
	return nil
}

// AddGLock records that the calling goroutine acquired a lock of the given
// class. A negative subclass is a plain acquisition; a non-negative subclass
// declares an expected nested acquisition within the same class.
func AddGLock(class *MutexClass, subclass int) {}

// DelGLock records that the calling goroutine released a lock of the given
// class.
func DelGLock(class *MutexClass, subclass int) {}
