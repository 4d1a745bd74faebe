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

// Token is a capability with no backing data: a pure static permission
// marker not tied to any lock object. Tokens name abstract invariants, e.g.
// "interrupts are disabled" or "the registry is sealed", and are passed to
// functions annotated over them exactly like lock capabilities.
//
// Token has no exported fields, so there is no storage a caller could reach
// through one. The zero value is a valid token; a package-level
//
//	var sealed cap.Token
//
// declares the permission, and cap.Acquire(&sealed) grants it.
type Token struct {
	Cap
	name string
}

// NewToken declares a named token capability instance, for call sites that
// want the token to identify itself in diagnostics. A named token is
// otherwise identical to a zero-value one.
func NewToken(name string) *Token {
	return &Token{name: name}
}

// String returns the token's declared name, for diagnostics only.
func (t *Token) String() string {
	return t.name
}
