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

// Package cap provides the runtime vocabulary for static capability
// analysis.
//
// A capability is a compile-time-tracked permission that code must hold in
// order to access guarded data or call guarded functions. Lock types are the
// common case, but a capability need not be backed by a lock at all (see
// Token).
//
// Everything in this package is a no-op at runtime. The functions exist only
// so that the checkcaps analyzer has a uniform set of operations to key on:
// it transitions its per-path capability state whenever one of them is
// called. When the analyzer is not run, the only cost is an inlined empty
// function call, which the compiler eliminates.
//
// A type becomes capability-bearing by embedding Cap:
//
//	type budgetShard struct {
//		cap.Cap
//		// +checkcaps:bs
//		balance int64
//	}
//
// The helper family below is generic over all capability-bearing types, so
// guard-style constructs can acquire and release capabilities without
// knowing the concrete type they wrap.
package cap

// Cap tags the embedding struct as a capability type. The embedding type's
// identity is the capability's identity: two types embedding Cap are
// distinct capabilities unless related by a +checkcapsalias annotation.
//
// Cap may be embedded both when defining a brand-new capability struct and
// when re-declaring an existing struct as capability-bearing; either way it
// contributes no fields and no runtime state.
type Cap struct{}

func (Cap) isCapability() {}

// Capability is implemented by every type that embeds Cap. It exists only as
// a generic constraint for the helper family; there is nothing useful to do
// with a Capability value at runtime.
type Capability interface {
	isCapability()
}

// Acquire acquires c exclusively.
//
// The analyzer requires c to be unheld before the call and marks it
// held-exclusive after.
func Acquire[T Capability](c *T) {}

// AcquireShared acquires c shared.
//
// The analyzer requires c to be unheld before the call and marks it
// held-shared after.
func AcquireShared[T Capability](c *T) {}

// TryAcquire conditionally acquires c exclusively. The caller supplies the
// success value of the underlying try-lock operation; it is returned
// unchanged. The analyzer marks c held-exclusive only on paths where the
// result is true.
func TryAcquire[T Capability](c *T, ok bool) bool { return ok }

// TryAcquireShared conditionally acquires c shared, with the same result
// contract as TryAcquire.
func TryAcquireShared[T Capability](c *T, ok bool) bool { return ok }

// Release releases an exclusively-held c.
func Release[T Capability](c *T) {}

// ReleaseShared releases a shared-held c.
func ReleaseShared[T Capability](c *T) {}

// Assert tells the analyzer that c is held exclusively at this point, with
// no runtime check. It is for init-style paths where the holder is known by
// construction and the analyzer cannot see the acquisition.
func Assert[T Capability](c *T) {}

// AssertShared is Assert for shared holds.
func AssertShared[T Capability](c *T) {}
