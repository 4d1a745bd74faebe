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

package cap

// Unsafe evaluates f with capability checking suppressed and returns its
// result unchanged. The suppression is lexically scoped to the closure body:
// calls made from inside f to annotated functions are still checked against
// their own contracts at their own definitions, but the body itself is
// exempt from guarded-access and lock-state checking.
//
// Prefer the narrowest possible wrapping; a function-wide +checkcapsignore
// annotation loses checking for the entire function.
func Unsafe[T any](f func() T) T {
	return f()
}

// UnsafeDo is Unsafe for statement sequences that produce no value.
func UnsafeDo(f func()) {
	f()
}
