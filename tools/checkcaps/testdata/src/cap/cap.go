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

// Package cap is a self-contained copy of the capability marker package,
// used by the analysis tests.
package cap

// Cap is the capability marker; embed it to make a type a capability.
type Cap struct{}

func (Cap) isCapability() {}

// Capability is the constraint satisfied by capability types.
type Capability interface {
	isCapability()
}

// Token is a pure static permission.
type Token struct {
	Cap
	name string
}

// NewToken returns a new named token.
func NewToken(name string) *Token {
	return &Token{name: name}
}

// Acquire acquires c exclusively.
func Acquire[T Capability](c *T) {}

// AcquireShared acquires c in shared mode.
func AcquireShared[T Capability](c *T) {}

// TryAcquire attempts to acquire c exclusively; ok is the outcome.
func TryAcquire[T Capability](c *T, ok bool) bool {
	return ok
}

// TryAcquireShared attempts to acquire c in shared mode; ok is the outcome.
func TryAcquireShared[T Capability](c *T, ok bool) bool {
	return ok
}

// Release releases an exclusive hold of c.
func Release[T Capability](c *T) {}

// ReleaseShared releases a shared hold of c.
func ReleaseShared[T Capability](c *T) {}

// Assert asserts that c is held exclusively.
func Assert[T Capability](c *T) {}

// AssertShared asserts that c is held in shared mode.
func AssertShared[T Capability](c *T) {}

// Unsafe evaluates f with all capability checking suppressed.
func Unsafe[T any](f func() T) T {
	return f()
}

// UnsafeDo runs f with all capability checking suppressed.
func UnsafeDo(f func()) {
	f()
}
