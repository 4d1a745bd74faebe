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

// Package locking is the optional runtime lock-ordering validator. It is an
// independent layer from the static capability analysis: the annotations
// checked by the checkcaps analyzer are compatible with it but do not depend
// on it.
//
// Locks are divided into classes and the validator checks two conditions:
//   - Locks of the same class are not taken more than once, except where a
//     nested acquisition is explicitly declared via a subclass.
//   - Locks are never taken in a reverse order. Dependencies are tracked at
//     the class level.
//
// The implementation is straightforward. For each lock class we maintain the
// set of all classes that have ever been held while acquiring it, closed
// transitively. For each goroutine we keep the list of currently held
// classes. Every acquisition checks that none of the currently held classes
// has the target class among its ancestors.
//
// The validator is compiled in only with the "lockdep" build tag; without it
// every operation in this package is an empty inline function.
package locking
