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

//go:build lockdep

package locking

import (
	"bytes"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"sync"
)

// MutexClass is a lock class. All locks created from the same class share
// ordering constraints.
type MutexClass struct {
	typ reflect.Type

	// mu protects ancestors.
	mu sync.Mutex

	// ancestors is the transitively-closed set of classes that have ever
	// been held while acquiring this class.
	ancestors map[*MutexClass]bool
}

func (c *MutexClass) String() string {
	return c.typ.String()
}

// NewMutexClass registers a new lock class for the given type.
func NewMutexClass(t reflect.Type) *MutexClass {
	return &MutexClass{
		typ:       t,
		ancestors: make(map[*MutexClass]bool),
	}
}

// heldEntry is one currently-held lock of a goroutine.
type heldEntry struct {
	class    *MutexClass
	subclass int
}

var (
	heldMu sync.Mutex
	held   = map[int64][]heldEntry{}
)

// goroutineID extracts the calling goroutine's id from its stack header.
// This is a debug-build-only facility; the cost is acceptable there.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// The header has the form "goroutine 18 [running]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		panic("lockdep: unparseable stack header")
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("lockdep: unparseable goroutine id: %v", err))
	}
	return id
}

// hasAncestor reports whether a is in c's transitive ancestor set.
func (c *MutexClass) hasAncestor(a *MutexClass) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ancestors[a]
}

// addAncestor records a, and a's own ancestors, as ancestors of c.
func (c *MutexClass) addAncestor(a *MutexClass) {
	a.mu.Lock()
	as := make([]*MutexClass, 0, len(a.ancestors)+1)
	as = append(as, a)
	for anc := range a.ancestors {
		as = append(as, anc)
	}
	a.mu.Unlock()

	c.mu.Lock()
	for _, anc := range as {
		c.ancestors[anc] = true
	}
	c.mu.Unlock()
}

// AddGLock records that the calling goroutine acquired a lock of the given
// class, after validating ordering against all locks the goroutine already
// holds. A negative subclass is a plain acquisition; a non-negative subclass
// declares an expected nested acquisition within the same class.
func AddGLock(class *MutexClass, subclass int) {
	if class == nil {
		return
	}
	gid := goroutineID()

	heldMu.Lock()
	entries := held[gid]
	heldMu.Unlock()

	for _, h := range entries {
		if h.class == class && subclass < 0 {
			panic(fmt.Sprintf("lockdep: %s acquired twice by the same goroutine", class))
		}
		if h.class != class && h.class.hasAncestor(class) {
			panic(fmt.Sprintf("lockdep: lock order violation: %s has been held before %s, now acquired after it", class, h.class))
		}
	}
	for _, h := range entries {
		if h.class != class {
			class.addAncestor(h.class)
		}
	}

	heldMu.Lock()
	held[gid] = append(held[gid], heldEntry{class: class, subclass: subclass})
	heldMu.Unlock()
}

// DelGLock records that the calling goroutine released a lock of the given
// class.
func DelGLock(class *MutexClass, subclass int) {
	if class == nil {
		return
	}
	gid := goroutineID()

	heldMu.Lock()
	defer heldMu.Unlock()
	entries := held[gid]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].class == class && entries[i].subclass == subclass {
			held[gid] = append(entries[:i], entries[i+1:]...)
			if len(held[gid]) == 0 {
				delete(held, gid)
			}
			return
		}
	}
	panic(fmt.Sprintf("lockdep: %s released but not held by this goroutine", class))
}
