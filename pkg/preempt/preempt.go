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

// Package preempt models the host's context-disable primitives: interrupt
// disable/enable, bottom-half disable/enable, and interrupt save/restore.
//
// These are opaque side-effecting operations from the point of view of
// capability analysis. They must be paired, in reverse order, around the
// lock operation they protect; that pairing is a convention verified by the
// lock wrappers and their tests, not by the analyzer.
//
// The default transitions do nothing. A host that has real context-disable
// primitives installs them with SetHooks; tests install counting hooks to
// verify pairing.
package preempt

// Flags is the opaque saved interrupt state returned by SaveIRQ and consumed
// by RestoreIRQ.
type Flags uintptr

// Hooks are the installable context-transition primitives.
type Hooks struct {
	DisableIRQ func()
	EnableIRQ  func()
	DisableBH  func()
	EnableBH   func()
	SaveIRQ    func() Flags
	RestoreIRQ func(Flags)
}

// hooks is written once at startup, before any lock wrapper is used.
var hooks Hooks

// SetHooks installs the host transitions. Passing a Hooks with nil fields
// leaves the corresponding transition a no-op. SetHooks must not be called
// concurrently with any lock wrapper operation.
func SetHooks(h Hooks) {
	hooks = h
}

// DisableIRQ enters interrupt-disabled context.
func DisableIRQ() {
	if f := hooks.DisableIRQ; f != nil {
		f()
	}
}

// EnableIRQ leaves interrupt-disabled context.
func EnableIRQ() {
	if f := hooks.EnableIRQ; f != nil {
		f()
	}
}

// DisableBH enters bottom-half-disabled context.
func DisableBH() {
	if f := hooks.DisableBH; f != nil {
		f()
	}
}

// EnableBH leaves bottom-half-disabled context.
func EnableBH() {
	if f := hooks.EnableBH; f != nil {
		f()
	}
}

// SaveIRQ enters interrupt-disabled context and returns the previous state.
func SaveIRQ() Flags {
	if f := hooks.SaveIRQ; f != nil {
		return f()
	}
	return 0
}

// RestoreIRQ restores the state returned by the matching SaveIRQ.
func RestoreIRQ(flags Flags) {
	if f := hooks.RestoreIRQ; f != nil {
		f(flags)
	}
}
